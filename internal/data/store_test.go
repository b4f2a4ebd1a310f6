package data

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func sampleDecision(id, conversation string) *Decision {
	return &Decision{
		DecisionID:       id,
		ConversationID:   conversation,
		UserMessage:      "can I get a discount?",
		History:          `["assistant: Which package?","user: the gold one"]`,
		Snapshot:         `{"node":"addon_selection"}`,
		ConflictDetected: "bargaining",
		PredictedIntent:  "continue_booking",
		SubGoals:         `["handle price question"]`,
		ProposedResponse: "Here is what the gold package includes...",
		Confidence:       0.8,
		Completeness:     0.6,
		SatisfactionProb: 0.7,
		Overall:          0.65,
		Mode:             "shadow",
		ActionTaken:      "",
		ResponseSent:     false,
	}
}

func TestInsertAndGetDecision(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	d := sampleDecision("d-1", "conv-1")
	require.NoError(t, store.InsertDecision(ctx, d))

	got, err := store.GetDecision(ctx, "d-1")
	require.NoError(t, err)

	assert.Equal(t, "conv-1", got.ConversationID)
	assert.Equal(t, "bargaining", got.ConflictDetected)
	assert.Equal(t, "continue_booking", got.PredictedIntent)
	assert.Equal(t, 0.8, got.Confidence)
	assert.False(t, got.ResponseSent)
	assert.Nil(t, got.WorkflowOutcome, "outcome starts unresolved")
	assert.Nil(t, got.UserSatisfaction)
	assert.False(t, got.Resolved())
	assert.False(t, got.Timestamp.IsZero())
}

func TestInsertDecisionValidation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("missing_decision_id", func(t *testing.T) {
		d := sampleDecision("", "conv-1")
		assert.Error(t, store.InsertDecision(ctx, d))
	})

	t.Run("missing_conversation_id", func(t *testing.T) {
		d := sampleDecision("d-1", "")
		assert.Error(t, store.InsertDecision(ctx, d))
	})

	t.Run("duplicate_decision_id", func(t *testing.T) {
		d := sampleDecision("d-dup", "conv-1")
		require.NoError(t, store.InsertDecision(ctx, d))
		assert.Error(t, store.InsertDecision(ctx, sampleDecision("d-dup", "conv-1")))
	})
}

func TestUpdateOutcome(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertDecision(ctx, sampleDecision("d-1", "conv-1")))

	t.Run("records_outcome", func(t *testing.T) {
		require.NoError(t, store.UpdateOutcome(ctx, "d-1", "sounds good", "booking_confirmed", 0.9))

		got, err := store.GetDecision(ctx, "d-1")
		require.NoError(t, err)
		require.True(t, got.Resolved())
		assert.Equal(t, "booking_confirmed", *got.WorkflowOutcome)
		assert.Equal(t, 0.9, *got.UserSatisfaction)
		assert.Equal(t, "sounds good", *got.UserResponse)
	})

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, store.UpdateOutcome(ctx, "d-1", "sounds good", "booking_confirmed", 0.9))

		got, err := store.GetDecision(ctx, "d-1")
		require.NoError(t, err)
		assert.Equal(t, "booking_confirmed", *got.WorkflowOutcome)
		assert.Equal(t, 0.9, *got.UserSatisfaction)
	})

	t.Run("later_update_overwrites", func(t *testing.T) {
		require.NoError(t, store.UpdateOutcome(ctx, "d-1", "actually no", "booking_abandoned", 0.2))

		got, err := store.GetDecision(ctx, "d-1")
		require.NoError(t, err)
		assert.Equal(t, "booking_abandoned", *got.WorkflowOutcome)
		assert.Equal(t, 0.2, *got.UserSatisfaction)
	})

	t.Run("unknown_decision", func(t *testing.T) {
		assert.Error(t, store.UpdateOutcome(ctx, "nope", "", "whatever", 0.5))
	})
}

func TestRecentDecisions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		d := sampleDecision(fmt.Sprintf("d-%d", i), "conv-1")
		d.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.InsertDecision(ctx, d))
	}

	recent, err := store.RecentDecisions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)

	assert.Equal(t, "d-4", recent[0].DecisionID, "newest first")
	assert.Equal(t, "d-3", recent[1].DecisionID)
	assert.Equal(t, "d-2", recent[2].DecisionID)
}

func TestConversationDecisions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, conv := range []string{"conv-a", "conv-b", "conv-a"} {
		d := sampleDecision(fmt.Sprintf("d-%d", i), conv)
		d.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.InsertDecision(ctx, d))
	}

	decisions, err := store.ConversationDecisions(ctx, "conv-a")
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	assert.Equal(t, "d-0", decisions[0].DecisionID, "oldest first")
	assert.Equal(t, "d-2", decisions[1].DecisionID)
}

func TestResolvedDecisions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, store.InsertDecision(ctx, sampleDecision(fmt.Sprintf("d-%d", i), "conv-1")))
	}
	require.NoError(t, store.UpdateOutcome(ctx, "d-1", "", "booking_confirmed", 0.9))
	require.NoError(t, store.UpdateOutcome(ctx, "d-3", "", "booking_abandoned", 0.1))

	resolved, err := store.ResolvedDecisions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	for _, d := range resolved {
		assert.True(t, d.Resolved())
	}
}

func TestCountDecisions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	n, err := store.CountDecisions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, store.InsertDecision(ctx, sampleDecision("d-1", "conv-1")))

	n, err = store.CountDecisions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemories(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertMemory(ctx, &Memory{
		MemoryID:   "m-1",
		Type:       "conflict_resolution",
		Context:    "user bargained over gold package",
		Learning:   "lead with package contents before discussing price",
		Confidence: 0.8,
		Source:     "d-1",
	}))
	require.NoError(t, store.InsertMemory(ctx, &Memory{
		MemoryID:   "m-2",
		Type:       "lost_conversation",
		Context:    "user went silent after pricing",
		Learning:   "follow up once, then close the conversation",
		Confidence: 0.4,
		Source:     "d-3",
	}))

	t.Run("list", func(t *testing.T) {
		memories, err := store.ListMemories(ctx, 10)
		require.NoError(t, err)
		require.Len(t, memories, 2)
		assert.Equal(t, "conflict_resolution", memories[0].Type)
		assert.Equal(t, "d-1", memories[0].Source)
	})

	t.Run("top_ranked_by_confidence", func(t *testing.T) {
		memories, err := store.TopMemories(ctx, 10)
		require.NoError(t, err)
		require.Len(t, memories, 2)
		assert.Equal(t, "m-1", memories[0].MemoryID)
		assert.Equal(t, "m-2", memories[1].MemoryID)

		memories, err = store.TopMemories(ctx, 1)
		require.NoError(t, err)
		require.Len(t, memories, 1)
		assert.Equal(t, "m-1", memories[0].MemoryID)
	})

	t.Run("source_exists", func(t *testing.T) {
		exists, err := store.MemoryExistsForSource(ctx, "d-1")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = store.MemoryExistsForSource(ctx, "d-2")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("count", func(t *testing.T) {
		n, err := store.CountMemories(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("missing_id", func(t *testing.T) {
		assert.Error(t, store.InsertMemory(ctx, &Memory{Type: "x"}))
	})
}

func TestDreams(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("no_dreams_yet", func(t *testing.T) {
		_, ok, err := store.LastDreamTime(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	first := &DreamRecord{
		DreamID:                "dream-1",
		Timestamp:              time.Now().UTC().Add(-2 * time.Hour),
		ModelUsed:              "llama3.2",
		ConversationsProcessed: 60,
		DreamsGenerated:        12,
		PatternsLearned:        `["bargaining turns need value framing"]`,
		DreamData:              `[{"scenario":"price pushback"}]`,
	}
	require.NoError(t, store.InsertDream(ctx, first))

	second := &DreamRecord{
		DreamID:   "dream-2",
		Timestamp: time.Now().UTC().Add(-30 * time.Minute),
		ModelUsed: "llama3.2",
	}
	require.NoError(t, store.InsertDream(ctx, second))

	t.Run("recent_ordering", func(t *testing.T) {
		dreams, err := store.RecentDreams(ctx, 10)
		require.NoError(t, err)
		require.Len(t, dreams, 2)
		assert.Equal(t, "dream-2", dreams[0].DreamID)
		assert.Equal(t, "dream-1", dreams[1].DreamID)
	})

	t.Run("last_dream_time", func(t *testing.T) {
		last, ok, err := store.LastDreamTime(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.WithinDuration(t, second.Timestamp, last, time.Second)
	})

	t.Run("count", func(t *testing.T) {
		n, err := store.CountDreams(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("empty_json_defaults", func(t *testing.T) {
		dreams, err := store.RecentDreams(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "[]", dreams[0].PatternsLearned)
		assert.Equal(t, "[]", dreams[0].DreamData)
	})
}

func TestHealthAndMigrateIdempotent(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.Health())
	require.NoError(t, store.Migrate(), "migrations are idempotent")
	require.NoError(t, store.Health())
}

func TestSplitSQL(t *testing.T) {
	schema := `
-- comment line
CREATE TABLE a (id TEXT PRIMARY KEY);

CREATE INDEX idx_a ON a(id);
`
	statements := splitSQL(schema)
	require.Len(t, statements, 2)
	assert.Contains(t, statements[0], "CREATE TABLE a")
	assert.Contains(t, statements[1], "CREATE INDEX idx_a")
}

package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservo/brain/internal/data"
)

func setupStore(t *testing.T) *data.Store {
	t.Helper()

	store, err := data.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

// insertResolved writes a decision and resolves it with the given outcome.
func insertResolved(t *testing.T, store *data.Store, id, outcome string, satisfaction, overall float64) {
	t.Helper()
	ctx := context.Background()

	d := &data.Decision{
		DecisionID:       id,
		ConversationID:   "conv-" + id,
		UserMessage:      "does the gold package include prints?",
		ConflictDetected: "none",
		PredictedIntent:  "ask_question",
		Overall:          overall,
		Mode:             "shadow",
	}
	require.NoError(t, store.InsertDecision(ctx, d))
	require.NoError(t, store.UpdateOutcome(ctx, id, "ok", outcome, satisfaction))
}

func TestImportance(t *testing.T) {
	t.Run("unresolved_scores_zero", func(t *testing.T) {
		d := &data.Decision{Overall: 0.9}
		assert.Equal(t, 0.0, Importance(d))
	})

	t.Run("weighted_blend", func(t *testing.T) {
		sat := 0.8
		out := "booking_confirmed"
		d := &data.Decision{
			Overall:          0.5,
			UserSatisfaction: &sat,
			WorkflowOutcome:  &out,
			UserResponse:     &out,
		}
		assert.InDelta(t, 0.6*0.8+0.4*0.5, Importance(d), 1e-9)
	})
}

func TestRecallRanksByConfidence(t *testing.T) {
	store := setupStore(t)
	r := NewRecaller(store)
	ctx := context.Background()

	insertResolved(t, store, "d-low", "booking_abandoned", 0.1, 0.2)
	insertResolved(t, store, "d-high", "booking_confirmed", 0.9, 0.8)
	insertResolved(t, store, "d-mid", "booking_confirmed", 0.5, 0.5)

	_, err := r.Consolidate(ctx, 10)
	require.NoError(t, err)

	recalled, err := r.Recall(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recalled, 3)

	assert.Equal(t, "d-high", recalled[0].Source)
	assert.Equal(t, "d-mid", recalled[1].Source)
	assert.Equal(t, "d-low", recalled[2].Source)
	assert.Greater(t, recalled[0].Confidence, recalled[1].Confidence)
}

func TestRecallHonorsLimit(t *testing.T) {
	store := setupStore(t)
	r := NewRecaller(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		insertResolved(t, store, fmt.Sprintf("d-%d", i), "booking_confirmed", 0.5, 0.5)
	}
	_, err := r.Consolidate(ctx, 10)
	require.NoError(t, err)

	recalled, err := r.Recall(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, recalled, 2)
}

func TestRecallBelowMinimumReturnsNothing(t *testing.T) {
	store := setupStore(t)
	r := NewRecaller(store)
	ctx := context.Background()

	insertResolved(t, store, "d-1", "booking_confirmed", 0.9, 0.9)
	insertResolved(t, store, "d-2", "booking_confirmed", 0.9, 0.9)
	_, err := r.Consolidate(ctx, 10)
	require.NoError(t, err)

	recalled, err := r.Recall(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, recalled, "two memories but five required")
}

func TestRecallReadsOnlyConsolidatedMemories(t *testing.T) {
	store := setupStore(t)
	r := NewRecaller(store)
	ctx := context.Background()

	// One unresolved decision and one resolved; only the resolved one
	// consolidates into a memory, so only it can be recalled.
	require.NoError(t, store.InsertDecision(ctx, &data.Decision{
		DecisionID:     "d-open",
		ConversationID: "conv-open",
		UserMessage:    "hi",
	}))
	insertResolved(t, store, "d-done", "booking_confirmed", 0.9, 0.9)

	_, err := r.Consolidate(ctx, 10)
	require.NoError(t, err)

	recalled, err := r.Recall(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recalled, 1)
	assert.Equal(t, "d-done", recalled[0].Source)
	assert.NotEmpty(t, recalled[0].Learning)
}

func TestConsolidate(t *testing.T) {
	store := setupStore(t)
	r := NewRecaller(store)
	ctx := context.Background()

	insertResolved(t, store, "d-1", "booking_confirmed", 0.9, 0.8)
	insertResolved(t, store, "d-2", "booking_abandoned", 0.2, 0.3)

	written, err := r.Consolidate(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	memories, err := store.ListMemories(ctx, 10)
	require.NoError(t, err)
	require.Len(t, memories, 2)

	bySource := map[string]*data.Memory{}
	for _, m := range memories {
		bySource[m.Source] = m
	}
	assert.Equal(t, TypeSuccessfulBooking, bySource["d-1"].Type)
	assert.Equal(t, TypeLostConversation, bySource["d-2"].Type)
	assert.InDelta(t, 0.6*0.9+0.4*0.8, bySource["d-1"].Confidence, 1e-9)

	t.Run("idempotent", func(t *testing.T) {
		written, err := r.Consolidate(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, written, "already-consolidated decisions are skipped")

		n, err := store.CountMemories(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("picks_up_new_resolutions", func(t *testing.T) {
		insertResolved(t, store, "d-3", "booking_confirmed", 0.7, 0.7)

		written, err := r.Consolidate(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, written)
	})
}

func TestClassify(t *testing.T) {
	confirmed := "booking_confirmed"
	abandoned := "booking_abandoned"

	cases := []struct {
		name     string
		conflict string
		outcome  *string
		want     string
	}{
		{"clean_success", "none", &confirmed, TypeSuccessfulBooking},
		{"recovered_conflict", "bargaining", &confirmed, TypeConflictResolution},
		{"lost_with_conflict", "frustration", &abandoned, TypeLostConversation},
		{"lost_without_conflict", "none", &abandoned, TypeLostConversation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &data.Decision{ConflictDetected: tc.conflict, WorkflowOutcome: tc.outcome}
			assert.Equal(t, tc.want, classify(d))
		})
	}
}

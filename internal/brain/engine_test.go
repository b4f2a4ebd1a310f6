package brain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservo/brain/internal/config"
	"github.com/reservo/brain/internal/data"
	"github.com/reservo/brain/internal/oracle"
)

// recordingStore captures what the engine persists.
type recordingStore struct {
	mu        sync.Mutex
	decisions []*data.Decision
	outcomes  []outcomeCall

	insertErr  error
	outcomeErr error
}

type outcomeCall struct {
	decisionID      string
	userResponse    string
	workflowOutcome string
	satisfaction    float64
}

func (r *recordingStore) InsertDecision(_ context.Context, d *data.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.decisions = append(r.decisions, d)
	return nil
}

func (r *recordingStore) UpdateOutcome(_ context.Context, decisionID, userResponse, workflowOutcome string, satisfaction float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomeErr != nil {
		return r.outcomeErr
	}
	r.outcomes = append(r.outcomes, outcomeCall{decisionID, userResponse, workflowOutcome, satisfaction})
	return nil
}

func (r *recordingStore) RecentDecisions(_ context.Context, limit int) ([]*data.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*data.Decision, 0, len(r.decisions))
	for i := len(r.decisions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.decisions[i])
	}
	return out, nil
}

func (r *recordingStore) recorded() []*data.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*data.Decision(nil), r.decisions...)
}

func engineConfig(mode string) *config.Config {
	cfg := config.Default()
	cfg.Brain.Enabled = true
	cfg.Brain.Mode = mode
	cfg.Oracle.StageTimeout = time.Second
	cfg.Brain.Reflex.Timeout = time.Second
	return cfg
}

func TestEngineDisabledDoesNothing(t *testing.T) {
	cfg := engineConfig("conscious")
	cfg.Brain.Enabled = false

	stub := &stubOracle{}
	store := &recordingStore{}
	e := NewEngine(cfg, stub, store)

	result, err := e.ProcessTurn(context.Background(), sampleTurn())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, store.recorded(), "disabled engine writes nothing")
	assert.Equal(t, int64(0), stub.conflictCalls.Load(), "disabled engine never calls the oracle")
}

func TestEngineRejectsMissingConversationID(t *testing.T) {
	e := NewEngine(engineConfig("shadow"), &stubOracle{}, &recordingStore{})

	_, err := e.ProcessTurn(context.Background(), &TurnContext{UserMessage: "hi"})
	assert.Error(t, err)

	_, err = e.ProcessTurn(context.Background(), nil)
	assert.Error(t, err)
}

func TestEngineShadowRecordsButNeverActs(t *testing.T) {
	stub := &stubOracle{
		conflictFn: func(oracle.Turn) (oracle.ConflictAssessment, error) {
			return oracle.ConflictAssessment{Type: oracle.ConflictFrustration, Confidence: 0.95}, nil
		},
	}
	store := &recordingStore{}
	e := NewEngine(engineConfig("shadow"), stub, store)

	result, err := e.ProcessTurn(context.Background(), sampleTurn())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Nil(t, result.Action, "shadow observes only")
	assert.Equal(t, ModeShadow, result.Mode)
	assert.NotEmpty(t, result.DecisionID)

	recorded := store.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, result.DecisionID, recorded[0].DecisionID)
	assert.Equal(t, "frustration", recorded[0].ConflictDetected)
	assert.Equal(t, "shadow", recorded[0].Mode)
	assert.Empty(t, recorded[0].ActionTaken)
	assert.False(t, recorded[0].ResponseSent)
}

func TestEngineConsciousActsAndRecords(t *testing.T) {
	cfg := engineConfig("conscious")
	cfg.Brain.Actions = allToggles(true)

	store := &recordingStore{}
	e := NewEngine(cfg, &stubOracle{}, store)

	result, err := e.ProcessTurn(context.Background(), sampleTurn())
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.Action)

	assert.Equal(t, ActionDateConfirm, result.Action.Kind)
	assert.Equal(t, "Shall I confirm Saturday for your shoot?", result.Action.Response)

	recorded := store.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, "date_confirm", recorded[0].ActionTaken)
	assert.True(t, recorded[0].ResponseSent)
	assert.Equal(t, "conscious", recorded[0].Mode)
	assert.Equal(t, "continue_booking", recorded[0].PredictedIntent)
	assert.Equal(t, 0.75, recorded[0].Overall)
	assert.JSONEq(t, `["confirm the shoot date"]`, recorded[0].SubGoals)
}

func TestEngineReflexUsesTemplates(t *testing.T) {
	cfg := engineConfig("reflex")
	cfg.Brain.Actions = allToggles(false) // reflex ignores toggles

	stub := &stubOracle{
		conflictFn: func(oracle.Turn) (oracle.ConflictAssessment, error) {
			return oracle.ConflictAssessment{Type: oracle.ConflictBargaining, Confidence: 0.8}, nil
		},
	}
	store := &recordingStore{}
	e := NewEngine(cfg, stub, store)

	result, err := e.ProcessTurn(context.Background(), sampleTurn())
	require.NoError(t, err)
	require.NotNil(t, result.Action)

	assert.Equal(t, ActionBargainingHandle, result.Action.Kind)
	assert.Equal(t, reflexTemplates[ActionBargainingHandle], result.Action.Response)
	assert.Equal(t, int64(0), stub.proposeCalls.Load(), "reflex never proposes")
	assert.Equal(t, int64(0), stub.qualityCalls.Load())
}

func TestEngineUnknownModeResolvesToShadow(t *testing.T) {
	e := NewEngine(engineConfig("turbo"), &stubOracle{}, &recordingStore{})
	assert.Equal(t, ModeShadow, e.Mode())
}

func TestEngineRecordingFailureSurfaced(t *testing.T) {
	store := &recordingStore{insertErr: errors.New("disk full")}
	e := NewEngine(engineConfig("shadow"), &stubOracle{}, store)

	result, err := e.ProcessTurn(context.Background(), sampleTurn())
	require.Error(t, err)
	assert.NotNil(t, result, "the turn's conclusions still come back")
	assert.Contains(t, err.Error(), "record decision")
}

func TestEngineRecordsExactlyOncePerTurn(t *testing.T) {
	store := &recordingStore{}
	e := NewEngine(engineConfig("shadow"), &stubOracle{}, store)

	for i := 0; i < 3; i++ {
		_, err := e.ProcessTurn(context.Background(), sampleTurn())
		require.NoError(t, err)
	}

	recorded := store.recorded()
	require.Len(t, recorded, 3)
	seen := map[string]bool{}
	for _, d := range recorded {
		assert.False(t, seen[d.DecisionID], "decision ids are unique")
		seen[d.DecisionID] = true
	}

	recent, err := e.Recent(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestEngineRecordOutcome(t *testing.T) {
	store := &recordingStore{}
	e := NewEngine(engineConfig("shadow"), &stubOracle{}, store)

	t.Run("clamps_satisfaction", func(t *testing.T) {
		require.NoError(t, e.RecordOutcome(context.Background(), "d-1", "thanks", "booking_confirmed", 1.7))
		require.Len(t, store.outcomes, 1)
		assert.Equal(t, 1.0, store.outcomes[0].satisfaction)

		require.NoError(t, e.RecordOutcome(context.Background(), "d-2", "", "booking_abandoned", -0.3))
		require.Len(t, store.outcomes, 2)
		assert.Equal(t, 0.0, store.outcomes[1].satisfaction)
	})

	t.Run("missing_id", func(t *testing.T) {
		assert.Error(t, e.RecordOutcome(context.Background(), "", "", "x", 0.5))
	})
}

func TestEngineFeatureReport(t *testing.T) {
	t.Run("disabled_engine", func(t *testing.T) {
		cfg := engineConfig("conscious")
		cfg.Brain.Enabled = false
		cfg.Brain.Actions = allToggles(true)
		e := NewEngine(cfg, &stubOracle{}, &recordingStore{})

		for kind, available := range e.FeatureReport() {
			assert.False(t, available, "disabled engine reports %s off", kind)
		}
	})

	t.Run("conscious_follows_toggles", func(t *testing.T) {
		cfg := engineConfig("conscious")
		cfg.Brain.Actions = config.ActionToggles{QAAnswer: true}
		e := NewEngine(cfg, &stubOracle{}, &recordingStore{})

		report := e.FeatureReport()
		assert.True(t, report[ActionQAAnswer])
		assert.False(t, report[ActionDateConfirm])
	})
}

func TestEngineSerializesConversationTurns(t *testing.T) {
	var active, maxActive int
	var mu sync.Mutex

	stub := &stubOracle{
		conflictFn: func(oracle.Turn) (oracle.ConflictAssessment, error) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return oracle.ConflictAssessment{Type: oracle.ConflictNone}, nil
		},
	}
	e := NewEngine(engineConfig("reflex"), stub, &recordingStore{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ProcessTurn(context.Background(), sampleTurn())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "same-conversation turns never overlap")
}

func TestEngineDropsIdleConversationLocks(t *testing.T) {
	e := NewEngine(engineConfig("shadow"), &stubOracle{}, &recordingStore{})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		conversationID := fmt.Sprintf("conv-%d", i)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				turn := sampleTurn()
				turn.ConversationID = conversationID
				_, err := e.ProcessTurn(context.Background(), turn)
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Empty(t, e.convLocks, "idle conversations keep no lock entry")
}

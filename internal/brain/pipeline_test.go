package brain

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservo/brain/internal/oracle"
)

// stubOracle scripts each capability with a function field and counts calls.
// A nil field returns a benign default.
type stubOracle struct {
	conflictFn func(oracle.Turn) (oracle.ConflictAssessment, error)
	intentFn   func(oracle.Turn) (oracle.IntentPrediction, error)
	qualityFn  func(oracle.Turn) (oracle.QualityReport, error)
	goalsFn    func(oracle.Turn) (oracle.GoalPlan, error)
	proposeFn  func(oracle.Turn) (oracle.ResponseProposal, error)

	conflictCalls atomic.Int64
	intentCalls   atomic.Int64
	qualityCalls  atomic.Int64
	goalsCalls    atomic.Int64
	proposeCalls  atomic.Int64
}

func (s *stubOracle) DetectConflict(_ context.Context, turn oracle.Turn) (oracle.ConflictAssessment, error) {
	s.conflictCalls.Add(1)
	if s.conflictFn != nil {
		return s.conflictFn(turn)
	}
	return oracle.ConflictAssessment{Type: oracle.ConflictNone, Confidence: 0.9}, nil
}

func (s *stubOracle) PredictIntent(_ context.Context, turn oracle.Turn) (oracle.IntentPrediction, error) {
	s.intentCalls.Add(1)
	if s.intentFn != nil {
		return s.intentFn(turn)
	}
	return oracle.IntentPrediction{Intent: oracle.IntentContinueBooking, Confidence: 0.8}, nil
}

func (s *stubOracle) EvaluateQuality(_ context.Context, turn oracle.Turn) (oracle.QualityReport, error) {
	s.qualityCalls.Add(1)
	if s.qualityFn != nil {
		return s.qualityFn(turn)
	}
	return oracle.QualityReport{Completeness: 0.7, Satisfaction: 0.8, Overall: 0.75}, nil
}

func (s *stubOracle) DecomposeGoals(_ context.Context, turn oracle.Turn, _ oracle.IntentPrediction, _ oracle.ConflictAssessment) (oracle.GoalPlan, error) {
	s.goalsCalls.Add(1)
	if s.goalsFn != nil {
		return s.goalsFn(turn)
	}
	return oracle.GoalPlan{Goals: []string{"confirm the shoot date"}, Confidence: 0.8}, nil
}

func (s *stubOracle) ProposeResponse(_ context.Context, turn oracle.Turn, _ oracle.GoalPlan, _ oracle.IntentPrediction, _ oracle.ConflictAssessment) (oracle.ResponseProposal, error) {
	s.proposeCalls.Add(1)
	if s.proposeFn != nil {
		return s.proposeFn(turn)
	}
	return oracle.ResponseProposal{Text: "Shall I confirm Saturday for your shoot?", Confidence: 0.85}, nil
}

func (s *stubOracle) SynthesizeExample(_ context.Context, seed string) (oracle.TrainingExample, error) {
	return oracle.TrainingExample{
		Scenario:      "price pushback on the gold package",
		UserMessage:   "that seems expensive",
		IdealResponse: "Here is everything the gold package includes.",
		Rationale:     "lead with value before discussing price",
		Synthetic:     seed == "",
	}, nil
}

func sampleTurn() *TurnContext {
	return &TurnContext{
		ConversationID: "conv-1",
		UserMessage:    "Saturday works for me",
		History:        []string{"assistant: Which date suits you?"},
		Snapshot:       BookingSnapshot{Node: "date_selection", Template: "gold"},
	}
}

func TestPipelineConsciousRunsAllStages(t *testing.T) {
	stub := &stubOracle{}
	p := NewPipeline(stub, time.Second)

	result := p.Run(context.Background(), sampleTurn(), ModeConscious)

	assert.Equal(t, oracle.ConflictNone, result.Conflict.Type)
	assert.Equal(t, oracle.IntentContinueBooking, result.Intent.Intent)
	assert.Equal(t, 0.75, result.Quality.Overall)
	assert.Equal(t, []string{"confirm the shoot date"}, result.Plan.Goals)
	assert.NotEmpty(t, result.Proposal.Text)

	assert.Equal(t, int64(1), stub.conflictCalls.Load())
	assert.Equal(t, int64(1), stub.intentCalls.Load())
	assert.Equal(t, int64(1), stub.qualityCalls.Load())
	assert.Equal(t, int64(1), stub.goalsCalls.Load())
	assert.Equal(t, int64(1), stub.proposeCalls.Load())
}

func TestPipelineShadowSkipsProposal(t *testing.T) {
	stub := &stubOracle{}
	p := NewPipeline(stub, time.Second)

	result := p.Run(context.Background(), sampleTurn(), ModeShadow)

	assert.Empty(t, result.Proposal.Text)
	assert.Equal(t, int64(0), stub.proposeCalls.Load())
	assert.Equal(t, int64(1), stub.qualityCalls.Load(), "shadow still evaluates quality")
	assert.Equal(t, int64(1), stub.goalsCalls.Load(), "shadow still decomposes goals")
}

func TestPipelineReflexStopsAfterFastStages(t *testing.T) {
	stub := &stubOracle{}
	p := NewPipeline(stub, time.Second)

	result := p.Run(context.Background(), sampleTurn(), ModeReflex)

	assert.Equal(t, int64(1), stub.conflictCalls.Load())
	assert.Equal(t, int64(1), stub.intentCalls.Load())
	assert.Equal(t, int64(0), stub.qualityCalls.Load())
	assert.Equal(t, int64(0), stub.goalsCalls.Load())
	assert.Equal(t, int64(0), stub.proposeCalls.Load())

	assert.Equal(t, neutralQuality(), result.Quality, "skipped stages keep neutral defaults")
	assert.Equal(t, fallbackPlan().Goals, result.Plan.Goals)
}

func TestPipelineStageFailuresKeepNeutralDefaults(t *testing.T) {
	boom := errors.New("backend unreachable")
	stub := &stubOracle{
		conflictFn: func(oracle.Turn) (oracle.ConflictAssessment, error) {
			return oracle.ConflictAssessment{}, boom
		},
		intentFn: func(oracle.Turn) (oracle.IntentPrediction, error) {
			return oracle.IntentPrediction{}, boom
		},
		qualityFn: func(oracle.Turn) (oracle.QualityReport, error) {
			return oracle.QualityReport{}, boom
		},
		proposeFn: func(oracle.Turn) (oracle.ResponseProposal, error) {
			return oracle.ResponseProposal{}, boom
		},
	}
	p := NewPipeline(stub, time.Second)

	result := p.Run(context.Background(), sampleTurn(), ModeConscious)

	assert.Equal(t, neutralConflict(), result.Conflict)
	assert.Equal(t, neutralIntent(), result.Intent)
	assert.Equal(t, neutralQuality(), result.Quality)
	assert.Equal(t, fallbackPlan().Goals, result.Plan.Goals, "unclear intent keeps the fallback plan")
	assert.Empty(t, result.Proposal.Text)
	assert.Equal(t, int64(0), stub.goalsCalls.Load(), "no decomposition without a clear intent")
}

func TestPipelineGoalDecompositionShortCircuits(t *testing.T) {
	t.Run("unclear_intent", func(t *testing.T) {
		stub := &stubOracle{
			intentFn: func(oracle.Turn) (oracle.IntentPrediction, error) {
				return oracle.IntentPrediction{Intent: oracle.IntentUnclear, Confidence: 0.4}, nil
			},
		}
		p := NewPipeline(stub, time.Second)

		result := p.Run(context.Background(), sampleTurn(), ModeShadow)

		assert.Equal(t, int64(0), stub.goalsCalls.Load())
		assert.Equal(t, []string{ContinueConversationGoal}, result.Plan.Goals)
	})

	t.Run("empty_message", func(t *testing.T) {
		stub := &stubOracle{}
		p := NewPipeline(stub, time.Second)

		turn := sampleTurn()
		turn.UserMessage = "   "
		result := p.Run(context.Background(), turn, ModeShadow)

		assert.Equal(t, int64(0), stub.goalsCalls.Load())
		assert.Equal(t, []string{ContinueConversationGoal}, result.Plan.Goals)
	})
}

func TestPipelineGoalFailureKeepsFallback(t *testing.T) {
	stub := &stubOracle{
		goalsFn: func(oracle.Turn) (oracle.GoalPlan, error) {
			return oracle.GoalPlan{}, errors.New("no goals")
		},
	}
	p := NewPipeline(stub, time.Second)

	result := p.Run(context.Background(), sampleTurn(), ModeShadow)

	require.Equal(t, int64(1), stub.goalsCalls.Load())
	assert.Equal(t, []string{ContinueConversationGoal}, result.Plan.Goals)
	assert.Equal(t, 1.0, result.Plan.Confidence)
}

func TestNewPipelineDefaultTimeout(t *testing.T) {
	p := NewPipeline(&stubOracle{}, 0)
	assert.Equal(t, 10*time.Second, p.stageTimeout)
}

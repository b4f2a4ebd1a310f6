package oracle

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservo/brain/internal/llm"
)

// scriptedProvider returns canned responses in order, then repeats the last one.
type scriptedProvider struct {
	responses []string
	calls     int
	requests  []*llm.ChatRequest
}

func (s *scriptedProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.requests = append(s.requests, req)
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	if s.responses[idx] == "" {
		return nil, fmt.Errorf("scripted failure")
	}
	return &llm.ChatResponse{Content: s.responses[idx], Model: "scripted"}, nil
}

func (s *scriptedProvider) Name() string    { return "scripted" }
func (s *scriptedProvider) Available() bool { return true }

func newTestOracle(responses ...string) (*LLMOracle, *scriptedProvider) {
	p := &scriptedProvider{responses: responses}
	return NewLLMOracle(p, p, DefaultLevels()), p
}

func TestLevelsParse(t *testing.T) {
	levels := DefaultLevels()

	tests := []struct {
		input string
		want  float64
	}{
		{"low", 0.3},
		{"Medium", 0.6},
		{"HIGH", 0.9},
		{"0.85", 0.85},
		{"1.7", 1.0},
		{"-0.2", 0.0},
		{"85%", 0.85},
		{"garbage", 0.3},
		{"", 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.InDelta(t, tt.want, levels.Parse(tt.input), 0.0001)
		})
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-1.5))
	assert.Equal(t, 1.0, Clamp01(2.0))
	assert.Equal(t, 0.42, Clamp01(0.42))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Intent string `json:"intent"`
	}

	t.Run("plain_object", func(t *testing.T) {
		var p payload
		require.NoError(t, decodeJSON(`{"intent":"cancel"}`, &p))
		assert.Equal(t, "cancel", p.Intent)
	})

	t.Run("fenced_object", func(t *testing.T) {
		var p payload
		require.NoError(t, decodeJSON("```json\n{\"intent\":\"cancel\"}\n```", &p))
		assert.Equal(t, "cancel", p.Intent)
	})

	t.Run("prose_wrapped", func(t *testing.T) {
		var p payload
		require.NoError(t, decodeJSON(`Here is my answer: {"intent":"cancel"} hope that helps`, &p))
		assert.Equal(t, "cancel", p.Intent)
	})

	t.Run("no_object", func(t *testing.T) {
		var p payload
		assert.Error(t, decodeJSON("I cannot answer that.", &p))
	})
}

func TestDetectConflict(t *testing.T) {
	t.Run("numeric_confidence", func(t *testing.T) {
		o, p := newTestOracle(`{"conflict_type":"frustration","confidence":0.8,"reasoning":"user is upset"}`)

		result, err := o.DetectConflict(context.Background(), Turn{UserMessage: "this is taking forever"})
		require.NoError(t, err)
		assert.Equal(t, ConflictFrustration, result.Type)
		assert.Equal(t, 0.8, result.Confidence)
		assert.True(t, p.requests[0].JSONFormat)
	})

	t.Run("level_confidence", func(t *testing.T) {
		o, _ := newTestOracle(`{"conflict_type":"bargaining","confidence":"high"}`)

		result, err := o.DetectConflict(context.Background(), Turn{UserMessage: "any discounts?"})
		require.NoError(t, err)
		assert.Equal(t, ConflictBargaining, result.Type)
		assert.Equal(t, 0.9, result.Confidence)
	})

	t.Run("unknown_type", func(t *testing.T) {
		o, _ := newTestOracle(`{"conflict_type":"rage","confidence":0.9}`)

		_, err := o.DetectConflict(context.Background(), Turn{UserMessage: "hi"})
		assert.Error(t, err)
	})

	t.Run("provider_failure", func(t *testing.T) {
		o, _ := newTestOracle("")

		_, err := o.DetectConflict(context.Background(), Turn{UserMessage: "hi"})
		assert.Error(t, err)
	})
}

func TestPredictIntent(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		o, _ := newTestOracle(`{"intent":"continue_booking","confidence":"medium"}`)

		result, err := o.PredictIntent(context.Background(), Turn{UserMessage: "yes let's do the gold package"})
		require.NoError(t, err)
		assert.Equal(t, IntentContinueBooking, result.Intent)
		assert.Equal(t, 0.6, result.Confidence)
	})

	t.Run("case_insensitive", func(t *testing.T) {
		o, _ := newTestOracle(`{"intent":" Cancel ","confidence":0.7}`)

		result, err := o.PredictIntent(context.Background(), Turn{UserMessage: "forget it"})
		require.NoError(t, err)
		assert.Equal(t, IntentCancel, result.Intent)
	})

	t.Run("unknown_intent", func(t *testing.T) {
		o, _ := newTestOracle(`{"intent":"purchase","confidence":0.7}`)

		_, err := o.PredictIntent(context.Background(), Turn{UserMessage: "hm"})
		assert.Error(t, err)
	})
}

func TestEvaluateQuality(t *testing.T) {
	o, _ := newTestOracle(`{"completeness_score":0.5,"satisfaction_probability":"high","overall_score":1.4}`)

	report, err := o.EvaluateQuality(context.Background(), Turn{UserMessage: "ok"})
	require.NoError(t, err)
	assert.Equal(t, 0.5, report.Completeness)
	assert.Equal(t, 0.9, report.Satisfaction)
	assert.Equal(t, 1.0, report.Overall, "scores above 1 clamp to 1")
}

func TestDecomposeGoals(t *testing.T) {
	t.Run("valid_plan", func(t *testing.T) {
		o, _ := newTestOracle(`{"sub_goals":["acknowledge frustration","confirm date"],"required_data":["shoot_date"],"confidence":0.75}`)

		plan, err := o.DecomposeGoals(context.Background(), Turn{UserMessage: "still waiting..."},
			IntentPrediction{Intent: IntentContinueBooking, Confidence: 0.7},
			ConflictAssessment{Type: ConflictFrustration, Confidence: 0.8})
		require.NoError(t, err)
		assert.Equal(t, []string{"acknowledge frustration", "confirm date"}, plan.Goals)
		assert.Equal(t, []string{"shoot_date"}, plan.RequiredData)
		assert.Equal(t, 0.75, plan.Confidence)
	})

	t.Run("empty_plan", func(t *testing.T) {
		o, _ := newTestOracle(`{"sub_goals":[],"confidence":0.75}`)

		_, err := o.DecomposeGoals(context.Background(), Turn{UserMessage: "hi"},
			IntentPrediction{}, ConflictAssessment{})
		assert.Error(t, err)
	})
}

func TestProposeResponse(t *testing.T) {
	plan := GoalPlan{Goals: []string{"confirm date"}}
	intent := IntentPrediction{Intent: IntentContinueBooking}
	conflict := ConflictAssessment{Type: ConflictNone}

	t.Run("picks_best_candidate_then_refines", func(t *testing.T) {
		o, p := newTestOracle(
			`{"response":"candidate one","tone":"neutral","confidence":0.4}`,
			`{"response":"candidate two","tone":"warm","confidence":0.9}`,
			`{"response":"candidate three","tone":"neutral","confidence":0.5}`,
			`{"response":"refined best","confidence":0.95}`,
		)

		proposal, err := o.ProposeResponse(context.Background(), Turn{UserMessage: "sounds good"}, plan, intent, conflict)
		require.NoError(t, err)
		assert.Equal(t, "refined best", proposal.Text)
		assert.Equal(t, "warm", proposal.Tone, "refinement without a tone keeps the winner's")
		assert.Equal(t, 4, p.calls, "three candidates plus one refinement")
	})

	t.Run("refinement_failure_keeps_best", func(t *testing.T) {
		p := &scriptedProvider{responses: []string{
			`{"response":"only candidate","tone":"Apologetic","confidence":0.6}`,
			`{"response":"only candidate","tone":"Apologetic","confidence":0.6}`,
			`{"response":"only candidate","tone":"Apologetic","confidence":0.6}`,
			`not json at all`,
		}}
		o := NewLLMOracle(p, p, DefaultLevels())

		proposal, err := o.ProposeResponse(context.Background(), Turn{UserMessage: "ok"}, plan, intent, conflict)
		require.NoError(t, err)
		assert.Equal(t, "only candidate", proposal.Text)
		assert.Equal(t, "apologetic", proposal.Tone, "tone labels normalize to lowercase")
	})

	t.Run("no_usable_candidates", func(t *testing.T) {
		o, _ := newTestOracle(`garbage`)

		_, err := o.ProposeResponse(context.Background(), Turn{UserMessage: "ok"}, plan, intent, conflict)
		assert.Error(t, err)
	})

	t.Run("single_candidate_option", func(t *testing.T) {
		p := &scriptedProvider{responses: []string{
			`{"response":"reflex reply","confidence":0.6}`,
		}}
		o := NewLLMOracle(p, p, DefaultLevels(), WithCandidates(1))

		proposal, err := o.ProposeResponse(context.Background(), Turn{UserMessage: "ok"}, plan, intent, conflict)
		require.NoError(t, err)
		assert.Equal(t, "reflex reply", proposal.Text)
		assert.Equal(t, 2, p.calls, "one candidate plus one refinement")
	})
}

func TestSynthesizeExample(t *testing.T) {
	example := `{"scenario":"price pushback","user_message":"too expensive","ideal_response":"Here is what the package includes...","rationale":"reframe value before discounting"}`

	t.Run("synthetic", func(t *testing.T) {
		o, _ := newTestOracle(example)

		got, err := o.SynthesizeExample(context.Background(), "")
		require.NoError(t, err)
		assert.True(t, got.Synthetic)
		assert.Equal(t, "too expensive", got.UserMessage)
	})

	t.Run("grounded", func(t *testing.T) {
		o, p := newTestOracle(example)

		got, err := o.SynthesizeExample(context.Background(), "user bargained over the silver package")
		require.NoError(t, err)
		assert.False(t, got.Synthetic)
		assert.Contains(t, p.requests[0].Messages[0].Content, "silver package")
	})

	t.Run("incomplete", func(t *testing.T) {
		o, _ := newTestOracle(`{"scenario":"x","user_message":"","ideal_response":""}`)

		_, err := o.SynthesizeExample(context.Background(), "")
		assert.Error(t, err)
	})
}

func TestRenderTurn(t *testing.T) {
	turn := Turn{
		ConversationID: "c1",
		UserMessage:    "can we do Saturday?",
		History:        []string{"assistant: Which date works?", "user: not sure yet"},
		State:          map[string]any{"node": "date_selection"},
	}

	t.Run("full_history", func(t *testing.T) {
		rendered := renderTurn(turn, 0)
		assert.Contains(t, rendered, "Which date works?")
		assert.Contains(t, rendered, "date_selection")
		assert.Contains(t, rendered, "can we do Saturday?")
	})

	t.Run("windowed_history", func(t *testing.T) {
		rendered := renderTurn(turn, 1)
		assert.NotContains(t, rendered, "Which date works?")
		assert.Contains(t, rendered, "not sure yet")
	})
}

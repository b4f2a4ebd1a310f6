package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/reservo/brain/internal/llm"
	"github.com/reservo/brain/internal/logging"
)

// LLMOracle implements every oracle capability over two llm.Providers: a
// reasoning provider for the slow stages and a fast provider for intent
// prediction. Both may be the same provider.
type LLMOracle struct {
	reason     llm.Provider
	fast       llm.Provider
	levels     Levels
	candidates int
	log        *logging.Logger
}

// Option configures an LLMOracle.
type Option func(*LLMOracle)

// WithCandidates sets how many response candidates are generated before the
// best one is refined. Minimum 1.
func WithCandidates(n int) Option {
	return func(o *LLMOracle) {
		if n >= 1 {
			o.candidates = n
		}
	}
}

// NewLLMOracle creates an oracle backed by the given providers. fast may be
// nil, in which case the reasoning provider handles intent prediction too.
func NewLLMOracle(reason, fast llm.Provider, levels Levels, opts ...Option) *LLMOracle {
	if fast == nil {
		fast = reason
	}
	o := &LLMOracle{
		reason:     reason,
		fast:       fast,
		levels:     levels,
		candidates: 3,
		log:        logging.Global().WithComponent("Oracle"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// History windows per stage. The fast classification stages only need the
// recent exchange; quality judges a longer arc. Zero means the full history.
const (
	classifyHistoryWindow = 5
	qualityHistoryWindow  = 10
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONFLICT DETECTION
// ═══════════════════════════════════════════════════════════════════════════════

const conflictSystemPrompt = `You monitor a photography booking assistant's conversations for trouble.
Classify the user's latest message into exactly one conflict type:
- "frustration": the user is annoyed, impatient, or upset
- "confusion": the user does not understand the flow or the options
- "bargaining": the user is negotiating price or asking for discounts
- "off_topic": the message is unrelated to the booking
- "cancellation": the user wants to abort the booking
- "none": the conversation is proceeding normally
Respond with a single JSON object:
{"conflict_type": "<type>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`

// DetectConflict classifies the turn's conflict signal using the reasoning provider.
func (o *LLMOracle) DetectConflict(ctx context.Context, turn Turn) (ConflictAssessment, error) {
	start := time.Now()

	resp, err := o.reason.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: conflictSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: renderTurn(turn, classifyHistoryWindow)}},
		JSONFormat:   true,
	})
	if err != nil {
		return ConflictAssessment{}, fmt.Errorf("conflict detection: %w", err)
	}

	var raw struct {
		ConflictType string          `json:"conflict_type"`
		Confidence   json.RawMessage `json:"confidence"`
		Reasoning    string          `json:"reasoning"`
	}
	if err := decodeJSON(resp.Content, &raw); err != nil {
		return ConflictAssessment{}, fmt.Errorf("conflict detection: %w", err)
	}

	ct := ConflictType(strings.ToLower(strings.TrimSpace(raw.ConflictType)))
	if !ct.Valid() {
		return ConflictAssessment{}, fmt.Errorf("conflict detection: unknown conflict type %q", raw.ConflictType)
	}

	out := ConflictAssessment{
		Type:       ct,
		Confidence: o.parseConfidence(raw.Confidence),
		Reasoning:  raw.Reasoning,
	}
	o.log.Stage("conflict", out.Confidence, time.Since(start))
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// INTENT PREDICTION (fast path)
// ═══════════════════════════════════════════════════════════════════════════════

const intentSystemPrompt = `You predict what the user of a photography booking assistant will do next.
Classify the user's latest message into exactly one intent:
- "continue_booking": proceed with the current step
- "provide_info": answer a question the assistant asked
- "ask_question": ask about templates, pricing, dates, or process
- "change_selection": revise an earlier choice
- "cancel": abandon the booking
- "unclear": cannot tell
Respond with a single JSON object:
{"intent": "<intent>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`

// PredictIntent classifies the user's next move using the fast provider.
func (o *LLMOracle) PredictIntent(ctx context.Context, turn Turn) (IntentPrediction, error) {
	start := time.Now()

	resp, err := o.fast.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: intentSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: renderTurn(turn, classifyHistoryWindow)}},
		JSONFormat:   true,
	})
	if err != nil {
		return IntentPrediction{}, fmt.Errorf("intent prediction: %w", err)
	}

	var raw struct {
		Intent     string          `json:"intent"`
		Confidence json.RawMessage `json:"confidence"`
		Reasoning  string          `json:"reasoning"`
	}
	if err := decodeJSON(resp.Content, &raw); err != nil {
		return IntentPrediction{}, fmt.Errorf("intent prediction: %w", err)
	}

	in := Intent(strings.ToLower(strings.TrimSpace(raw.Intent)))
	if !in.Valid() {
		return IntentPrediction{}, fmt.Errorf("intent prediction: unknown intent %q", raw.Intent)
	}

	out := IntentPrediction{
		Intent:     in,
		Confidence: o.parseConfidence(raw.Confidence),
		Reasoning:  raw.Reasoning,
	}
	o.log.Stage("intent", out.Confidence, time.Since(start))
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUALITY EVALUATION
// ═══════════════════════════════════════════════════════════════════════════════

const qualitySystemPrompt = `You evaluate how well a photography booking conversation is going.
Score three aspects, each between 0.0 and 1.0:
- completeness_score: how far the booking has progressed toward confirmation
- satisfaction_probability: how likely the user is satisfied with the interaction
- overall_score: your combined judgment of conversation quality
Respond with a single JSON object:
{"completeness_score": <0.0-1.0>, "satisfaction_probability": <0.0-1.0>, "overall_score": <0.0-1.0>}`

// EvaluateQuality scores the conversation using the reasoning provider.
func (o *LLMOracle) EvaluateQuality(ctx context.Context, turn Turn) (QualityReport, error) {
	start := time.Now()

	resp, err := o.reason.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: qualitySystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: renderTurn(turn, qualityHistoryWindow)}},
		JSONFormat:   true,
	})
	if err != nil {
		return QualityReport{}, fmt.Errorf("quality evaluation: %w", err)
	}

	var raw struct {
		Completeness json.RawMessage `json:"completeness_score"`
		Satisfaction json.RawMessage `json:"satisfaction_probability"`
		Overall      json.RawMessage `json:"overall_score"`
	}
	if err := decodeJSON(resp.Content, &raw); err != nil {
		return QualityReport{}, fmt.Errorf("quality evaluation: %w", err)
	}

	out := QualityReport{
		Completeness: o.parseConfidence(raw.Completeness),
		Satisfaction: o.parseConfidence(raw.Satisfaction),
		Overall:      o.parseConfidence(raw.Overall),
	}
	o.log.Stage("quality", out.Overall, time.Since(start))
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// GOAL DECOMPOSITION
// ═══════════════════════════════════════════════════════════════════════════════

const goalSystemPrompt = `You plan the next moves for a photography booking assistant.
Given the conversation, the predicted user intent, and any detected conflict,
produce an ordered list of 1-4 concrete sub-goals the assistant should pursue
on its next reply (e.g. "acknowledge frustration", "confirm the selected date",
"offer the album add-on"). Also list any booking data the assistant still needs
from the user (e.g. "shoot_date", "template", "contact_phone"); leave the list
empty when nothing is missing.
Respond with a single JSON object:
{"sub_goals": ["<goal>", ...], "required_data": ["<field>", ...], "confidence": <0.0-1.0>}`

// DecomposeGoals plans ordered sub-goals using the reasoning provider.
func (o *LLMOracle) DecomposeGoals(ctx context.Context, turn Turn, intent IntentPrediction, conflict ConflictAssessment) (GoalPlan, error) {
	start := time.Now()

	prompt := fmt.Sprintf("%s\n\nPredicted intent: %s (%.2f)\nDetected conflict: %s (%.2f)",
		renderTurn(turn, 0), intent.Intent, intent.Confidence, conflict.Type, conflict.Confidence)

	resp, err := o.reason.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: goalSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		JSONFormat:   true,
	})
	if err != nil {
		return GoalPlan{}, fmt.Errorf("goal decomposition: %w", err)
	}

	var raw struct {
		SubGoals     []string        `json:"sub_goals"`
		RequiredData []string        `json:"required_data"`
		Confidence   json.RawMessage `json:"confidence"`
	}
	if err := decodeJSON(resp.Content, &raw); err != nil {
		return GoalPlan{}, fmt.Errorf("goal decomposition: %w", err)
	}
	if len(raw.SubGoals) == 0 {
		return GoalPlan{}, fmt.Errorf("goal decomposition: empty goal list")
	}

	out := GoalPlan{
		Goals:        raw.SubGoals,
		RequiredData: raw.RequiredData,
		Confidence:   o.parseConfidence(raw.Confidence),
	}
	o.log.Stage("goals", out.Confidence, time.Since(start))
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// RESPONSE PROPOSAL (best-of-N, then refine)
// ═══════════════════════════════════════════════════════════════════════════════

const responseSystemPrompt = `You draft the next reply for a photography booking assistant.
Pursue the listed sub-goals in order, stay warm and concise, and keep the
booking moving. Never invent prices or availability.
Respond with a single JSON object:
{"response": "<reply text>", "tone": "<warm|apologetic|neutral|enthusiastic>", "confidence": <0.0-1.0>}`

const refineSystemPrompt = `You polish a draft reply from a photography booking assistant.
Keep its meaning and goals, tighten the wording, and remove anything that
could confuse the user.
Respond with a single JSON object:
{"response": "<improved reply>", "tone": "<warm|apologetic|neutral|enthusiastic>", "confidence": <0.0-1.0>}`

// ProposeResponse generates several candidate replies, keeps the one with the
// highest self-reported confidence, and runs a single refinement pass over it.
// A failed refinement keeps the unrefined best candidate.
func (o *LLMOracle) ProposeResponse(ctx context.Context, turn Turn, plan GoalPlan, intent IntentPrediction, conflict ConflictAssessment) (ResponseProposal, error) {
	start := time.Now()

	prompt := fmt.Sprintf("%s\n\nPredicted intent: %s\nDetected conflict: %s\nSub-goals:\n- %s",
		renderTurn(turn, 0), intent.Intent, conflict.Type, strings.Join(plan.Goals, "\n- "))
	if len(plan.RequiredData) > 0 {
		prompt += "\nStill needed from the user: " + strings.Join(plan.RequiredData, ", ")
	}

	var best ResponseProposal
	var generated int
	for i := 0; i < o.candidates; i++ {
		resp, err := o.reason.Chat(ctx, &llm.ChatRequest{
			SystemPrompt: responseSystemPrompt,
			Messages:     []llm.Message{{Role: "user", Content: prompt}},
			JSONFormat:   true,
			Temperature:  0.7,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			o.log.Warn("candidate %d failed: %v", i+1, err)
			continue
		}

		candidate, err := o.parseProposal(resp.Content)
		if err != nil {
			o.log.Warn("candidate %d unparseable: %v", i+1, err)
			continue
		}

		generated++
		if candidate.Confidence > best.Confidence || best.Text == "" {
			best = candidate
		}
	}

	if generated == 0 {
		return ResponseProposal{}, fmt.Errorf("response proposal: no usable candidates")
	}

	// Refinement pass over the winning candidate
	refinePrompt := fmt.Sprintf("Draft reply:\n%s\n\nSub-goals:\n- %s", best.Text, strings.Join(plan.Goals, "\n- "))
	resp, err := o.reason.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: refineSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: refinePrompt}},
		JSONFormat:   true,
	})
	if err == nil {
		if refined, perr := o.parseProposal(resp.Content); perr == nil && refined.Text != "" {
			if refined.Tone == "" {
				refined.Tone = best.Tone
			}
			best = refined
		}
	}

	o.log.Stage("proposal", best.Confidence, time.Since(start))
	return best, nil
}

func (o *LLMOracle) parseProposal(content string) (ResponseProposal, error) {
	var raw struct {
		Response   string          `json:"response"`
		Tone       string          `json:"tone"`
		Confidence json.RawMessage `json:"confidence"`
	}
	if err := decodeJSON(content, &raw); err != nil {
		return ResponseProposal{}, err
	}
	if strings.TrimSpace(raw.Response) == "" {
		return ResponseProposal{}, fmt.Errorf("empty response text")
	}
	return ResponseProposal{
		Text:       strings.TrimSpace(raw.Response),
		Tone:       strings.ToLower(strings.TrimSpace(raw.Tone)),
		Confidence: o.parseConfidence(raw.Confidence),
	}, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// DREAM SYNTHESIS
// ═══════════════════════════════════════════════════════════════════════════════

const syntheticDreamPrompt = `You invent a realistic training example for a photography booking assistant.
Imagine a plausible but novel customer situation (an edge case, a tricky
question, a mood the assistant must handle) and write the ideal exchange.
Respond with a single JSON object:
{"scenario": "<one-line situation>", "user_message": "<what the customer says>",
"ideal_response": "<the assistant's best reply>", "rationale": "<why this reply is right>"}`

const groundedDreamPrompt = `You rework a past conversation of a photography booking assistant into a
training example. Keep the situation recognizable but improve on what the
assistant actually did.
Respond with a single JSON object:
{"scenario": "<one-line situation>", "user_message": "<what the customer said>",
"ideal_response": "<the reply the assistant should have given>", "rationale": "<why>"}`

// SynthesizeExample generates one training example. An empty seed produces a
// fully synthetic example; a non-empty seed grounds the example in a recalled
// conversation.
func (o *LLMOracle) SynthesizeExample(ctx context.Context, seed string) (TrainingExample, error) {
	system := syntheticDreamPrompt
	user := "Invent one example."
	synthetic := true
	if seed != "" {
		system = groundedDreamPrompt
		user = "Past conversation:\n" + seed
		synthetic = false
	}

	resp, err := o.reason.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: user}},
		JSONFormat:   true,
		Temperature:  0.9,
	})
	if err != nil {
		return TrainingExample{}, fmt.Errorf("example synthesis: %w", err)
	}

	var example TrainingExample
	if err := decodeJSON(resp.Content, &example); err != nil {
		return TrainingExample{}, fmt.Errorf("example synthesis: %w", err)
	}
	if example.UserMessage == "" || example.IdealResponse == "" {
		return TrainingExample{}, fmt.Errorf("example synthesis: incomplete example")
	}

	example.Synthetic = synthetic
	return example, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// PARSING HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

// parseConfidence accepts a JSON number or a quoted level label / numeric
// string and maps it to [0,1].
func (o *LLMOracle) parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return Clamp01(o.levels.Low)
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return Clamp01(f)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return o.levels.Parse(s)
	}

	return Clamp01(o.levels.Low)
}

// decodeJSON unmarshals a model response that may be wrapped in markdown code
// fences or surrounded by prose.
func decodeJSON(content string, v any) error {
	s := strings.TrimSpace(content)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// Fall back to the outermost braces when the model added prose
	if !strings.HasPrefix(s, "{") {
		open := strings.Index(s, "{")
		close := strings.LastIndex(s, "}")
		if open < 0 || close <= open {
			return fmt.Errorf("no JSON object in response")
		}
		s = s[open : close+1]
	}

	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("unmarshal model output: %w", err)
	}
	return nil
}

// renderTurn formats a turn for inclusion in a prompt. window bounds the
// history to its most recent entries; zero includes everything.
func renderTurn(turn Turn, window int) string {
	var b strings.Builder

	history := turn.History
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, line := range history {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	if len(turn.State) > 0 {
		if data, err := json.Marshal(turn.State); err == nil {
			b.WriteString("Booking state: ")
			b.Write(data)
			b.WriteString("\n\n")
		}
	}

	b.WriteString("Latest user message: ")
	b.WriteString(turn.UserMessage)
	return b.String()
}

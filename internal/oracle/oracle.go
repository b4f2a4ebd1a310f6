// Package oracle defines the scoring capabilities behind the decision
// pipeline. Each stage of the pipeline consumes exactly one capability, so
// implementations can be swapped per stage (a fast model for intent, a
// reasoning model for everything else).
package oracle

import (
	"context"
	"strconv"
	"strings"
)

// ConflictType classifies what is going wrong in a conversation, if anything.
type ConflictType string

const (
	ConflictNone         ConflictType = "none"
	ConflictFrustration  ConflictType = "frustration"
	ConflictConfusion    ConflictType = "confusion"
	ConflictBargaining   ConflictType = "bargaining"
	ConflictOffTopic     ConflictType = "off_topic"
	ConflictCancellation ConflictType = "cancellation"
)

// Valid returns true if the ConflictType is a known classification.
func (c ConflictType) Valid() bool {
	switch c {
	case ConflictNone, ConflictFrustration, ConflictConfusion,
		ConflictBargaining, ConflictOffTopic, ConflictCancellation:
		return true
	default:
		return false
	}
}

// Intent is the predicted next move of the user within the booking flow.
type Intent string

const (
	IntentContinueBooking Intent = "continue_booking"
	IntentProvideInfo     Intent = "provide_info"
	IntentAskQuestion     Intent = "ask_question"
	IntentChangeSelection Intent = "change_selection"
	IntentCancel          Intent = "cancel"
	IntentUnclear         Intent = "unclear"
)

// Valid returns true if the Intent is a known classification.
func (i Intent) Valid() bool {
	switch i {
	case IntentContinueBooking, IntentProvideInfo, IntentAskQuestion,
		IntentChangeSelection, IntentCancel, IntentUnclear:
		return true
	default:
		return false
	}
}

// Turn carries everything a scorer may look at for one user turn.
type Turn struct {
	// ConversationID identifies the conversation the turn belongs to.
	ConversationID string

	// UserMessage is the raw text of the user's latest message.
	UserMessage string

	// History holds prior turns, oldest first, formatted "role: text".
	History []string

	// State is a snapshot of the booking workflow at the time of the turn
	// (current node, selected template, chosen date, pending add-ons).
	State map[string]any
}

// ConflictAssessment is the result of conflict detection on one turn.
type ConflictAssessment struct {
	Type       ConflictType `json:"conflict_type"`
	Confidence float64      `json:"confidence"`
	Reasoning  string       `json:"reasoning,omitempty"`
}

// IntentPrediction is the result of intent prediction on one turn.
type IntentPrediction struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// QualityReport scores how well the conversation is going.
type QualityReport struct {
	// Completeness estimates how much of the booking flow is done (0-1).
	Completeness float64 `json:"completeness_score"`
	// Satisfaction estimates the probability the user is satisfied (0-1).
	Satisfaction float64 `json:"satisfaction_probability"`
	// Overall is the combined quality score (0-1).
	Overall float64 `json:"overall_score"`
}

// GoalPlan is an ordered decomposition of what the assistant should do next.
// RequiredData lists booking facts the assistant still needs from the user to
// pursue the goals (a date, a template choice, contact details).
type GoalPlan struct {
	Goals        []string `json:"sub_goals"`
	RequiredData []string `json:"required_data,omitempty"`
	Confidence   float64  `json:"confidence"`
}

// ResponseProposal is a candidate reply the engine may surface.
type ResponseProposal struct {
	Text       string  `json:"response"`
	Tone       string  `json:"tone,omitempty"`
	Confidence float64 `json:"confidence"`
}

// TrainingExample is one synthesized conversation example produced while
// dreaming. Grounded examples rework a recalled conversation; synthetic ones
// are invented wholesale.
type TrainingExample struct {
	Scenario      string `json:"scenario"`
	UserMessage   string `json:"user_message"`
	IdealResponse string `json:"ideal_response"`
	Rationale     string `json:"rationale"`
	Synthetic     bool   `json:"synthetic"`
}

// ConflictScorer detects whether a turn signals trouble in the conversation.
type ConflictScorer interface {
	DetectConflict(ctx context.Context, turn Turn) (ConflictAssessment, error)
}

// IntentScorer predicts the user's next move. It runs on every turn and
// implementations should favor latency over depth.
type IntentScorer interface {
	PredictIntent(ctx context.Context, turn Turn) (IntentPrediction, error)
}

// QualityScorer evaluates conversation quality for the decision record.
type QualityScorer interface {
	EvaluateQuality(ctx context.Context, turn Turn) (QualityReport, error)
}

// GoalDecomposer breaks the situation into ordered sub-goals.
type GoalDecomposer interface {
	DecomposeGoals(ctx context.Context, turn Turn, intent IntentPrediction, conflict ConflictAssessment) (GoalPlan, error)
}

// ResponseGenerator proposes a reply given the plan and the stage results.
type ResponseGenerator interface {
	ProposeResponse(ctx context.Context, turn Turn, plan GoalPlan, intent IntentPrediction, conflict ConflictAssessment) (ResponseProposal, error)
}

// ExampleSynthesizer generates training examples during dream cycles.
// seed is empty for fully synthetic examples and holds a recalled
// conversation summary for grounded ones.
type ExampleSynthesizer interface {
	SynthesizeExample(ctx context.Context, seed string) (TrainingExample, error)
}

// Oracle bundles all capabilities the decision pipeline needs.
type Oracle interface {
	ConflictScorer
	IntentScorer
	QualityScorer
	GoalDecomposer
	ResponseGenerator
	ExampleSynthesizer
}

// Levels maps enumerated confidence labels to floats. Backends sometimes
// answer "low"/"medium"/"high" instead of a number; the pipeline works in
// [0,1] so both forms must parse.
type Levels struct {
	Low    float64
	Medium float64
	High   float64
}

// DefaultLevels returns the standard label-to-float mapping.
func DefaultLevels() Levels {
	return Levels{Low: 0.3, Medium: 0.6, High: 0.9}
}

// Parse converts a confidence value to a float in [0,1]. Accepts the level
// labels, a bare float ("0.85"), or a percentage ("85%"). Unparseable input
// maps to Low.
func (l Levels) Parse(raw string) float64 {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "low":
		return Clamp01(l.Low)
	case "medium", "med":
		return Clamp01(l.Medium)
	case "high":
		return Clamp01(l.High)
	}

	if strings.HasSuffix(s, "%") {
		if v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64); err == nil {
			return Clamp01(v / 100)
		}
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Clamp01(v)
	}

	return Clamp01(l.Low)
}

// Clamp01 bounds v to the [0,1] confidence scale.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Package brain implements the decision engine that observes a booking
// conversation turn by turn, scores it through a staged pipeline, and
// depending on the operating mode proposes or takes action.
package brain

import (
	"time"

	"github.com/reservo/brain/internal/oracle"
)

// Mode is the engine's operating mode. It controls how much of the pipeline
// runs and whether the engine may act on its conclusions.
type Mode string

const (
	// ModeShadow runs the pipeline and records decisions but never acts.
	ModeShadow Mode = "shadow"
	// ModeReflex acts only on cheap, high-confidence signals using a fixed
	// set of template actions.
	ModeReflex Mode = "reflex"
	// ModeConscious runs the full pipeline and may take any enabled action.
	ModeConscious Mode = "conscious"
)

// Valid returns true if the Mode is a known operating mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeShadow, ModeReflex, ModeConscious:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Mode.
func (m Mode) String() string {
	return string(m)
}

// ResolveMode maps a configured mode string to a Mode. Unknown or empty
// strings resolve to shadow, the observe-only mode, so a typo in config can
// never make the engine more aggressive than intended.
func ResolveMode(s string) Mode {
	m := Mode(s)
	if !m.Valid() {
		return ModeShadow
	}
	return m
}

// ActionKind names one of the interventions the engine can surface.
type ActionKind string

const (
	ActionTemplateCustomize ActionKind = "template_customize"
	ActionDateConfirm       ActionKind = "date_confirm"
	ActionAddonSuggest      ActionKind = "addon_suggest"
	ActionQAAnswer          ActionKind = "qa_answer"
	ActionBargainingHandle  ActionKind = "bargaining_handle"
	ActionEscalateHuman     ActionKind = "escalate_human"
	ActionCancelBooking     ActionKind = "cancel_booking"
	ActionFlowReset         ActionKind = "flow_reset"
	ActionDynamicGraph      ActionKind = "dynamic_graph"
)

// AllActionKinds returns every action the gate knows about, in stable order.
func AllActionKinds() []ActionKind {
	return []ActionKind{
		ActionTemplateCustomize,
		ActionDateConfirm,
		ActionAddonSuggest,
		ActionQAAnswer,
		ActionBargainingHandle,
		ActionEscalateHuman,
		ActionCancelBooking,
		ActionFlowReset,
		ActionDynamicGraph,
	}
}

// Action is what the engine wants done about a turn. A nil Action (or one
// with Kind == "") means "do nothing", which is the only outcome shadow mode
// ever produces.
type Action struct {
	// Kind names the intervention.
	Kind ActionKind `json:"kind"`
	// Response is the reply text to send, when the action carries one.
	Response string `json:"response,omitempty"`
	// Reason explains, for the decision record, why this action was chosen.
	Reason string `json:"reason,omitempty"`
}

// BookingSnapshot captures the workflow state at the moment of a turn.
type BookingSnapshot struct {
	// Node is the current workflow node (e.g. "template_selection").
	Node string `json:"node"`
	// Template is the selected photo shoot template, if any.
	Template string `json:"template,omitempty"`
	// Date is the selected shoot date, if any.
	Date string `json:"date,omitempty"`
	// Addons are the add-ons chosen so far.
	Addons []string `json:"addons,omitempty"`
	// Extra carries workflow fields the engine records but does not interpret.
	Extra map[string]any `json:"extra,omitempty"`
}

// TurnContext is everything the engine receives about one user turn.
type TurnContext struct {
	// ConversationID identifies the conversation. Turns with the same ID
	// are processed serially.
	ConversationID string
	// UserMessage is the raw text of the user's latest message.
	UserMessage string
	// History holds prior turns, oldest first, formatted "role: text".
	History []string
	// Snapshot is the booking workflow state at the time of the turn.
	Snapshot BookingSnapshot
	// ReceivedAt is when the turn arrived. Zero means now.
	ReceivedAt time.Time
}

// oracleTurn converts the turn to the shape the scoring capabilities expect.
func (tc *TurnContext) oracleTurn() oracle.Turn {
	state := map[string]any{}
	if tc.Snapshot.Node != "" {
		state["node"] = tc.Snapshot.Node
	}
	if tc.Snapshot.Template != "" {
		state["template"] = tc.Snapshot.Template
	}
	if tc.Snapshot.Date != "" {
		state["date"] = tc.Snapshot.Date
	}
	if len(tc.Snapshot.Addons) > 0 {
		state["addons"] = tc.Snapshot.Addons
	}
	for k, v := range tc.Snapshot.Extra {
		state[k] = v
	}

	return oracle.Turn{
		ConversationID: tc.ConversationID,
		UserMessage:    tc.UserMessage,
		History:        tc.History,
		State:          state,
	}
}

// PipelineResult holds the raw output of every stage that ran on a turn.
// Stages that did not run (or failed) hold their neutral defaults.
type PipelineResult struct {
	Conflict oracle.ConflictAssessment
	Intent   oracle.IntentPrediction
	Quality  oracle.QualityReport
	Plan     oracle.GoalPlan
	Proposal oracle.ResponseProposal
}

// DecisionResult is what one turn through the engine produced: the pipeline's
// conclusions, the gated action (if any), and bookkeeping for the record.
type DecisionResult struct {
	// DecisionID is the recorded decision's identifier.
	DecisionID string
	// Mode the engine ran in for this turn.
	Mode Mode
	// Pipeline holds the stage outputs.
	Pipeline PipelineResult
	// Action is the gated outcome. Nil means observe only.
	Action *Action
	// Elapsed is the wall time the turn took inside the engine.
	Elapsed time.Duration
}

// ContinueConversationGoal is the fallback plan used when decomposition has
// nothing to work with (unclear intent or an empty message).
const ContinueConversationGoal = "continue_conversation"

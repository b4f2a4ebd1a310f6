package brain

import (
	"fmt"

	"github.com/reservo/brain/internal/config"
	"github.com/reservo/brain/internal/oracle"
)

// Gate turns pipeline conclusions into an action, or into nothing. It is the
// single place where the operating mode and the per-action toggles are
// allowed to influence behavior.
type Gate struct {
	toggles config.ActionToggles
	// minIntentConfidence is the bar an intent prediction must clear for
	// reflex mode to act on it.
	minIntentConfidence float64
}

// NewGate creates a gate over the configured toggles. minIntentConfidence is
// typically the configured "medium" confidence level.
func NewGate(toggles config.ActionToggles, minIntentConfidence float64) *Gate {
	return &Gate{
		toggles:             toggles,
		minIntentConfidence: minIntentConfidence,
	}
}

// reflexTemplates are the fixed replies reflex mode may send. Reflex never
// invokes the response proposer, so these are the only texts it can produce.
var reflexTemplates = map[ActionKind]string{
	ActionEscalateHuman:     "I'm sorry this has been frustrating. Let me bring in a team member to help you directly.",
	ActionQAAnswer:          "Happy to clarify! Could you tell me which part I should explain?",
	ActionBargainingHandle:  "I understand budget matters. Let me show you what each package includes so you can pick the best fit.",
	ActionFlowReset:         "Let's take a step back. Would you like to review your booking so far?",
	ActionCancelBooking:     "Of course. Before I cancel, could you confirm that you'd like to stop this booking?",
	ActionDateConfirm:       "Great! Shall I lock in that date for your shoot?",
	ActionTemplateCustomize: "Got it. I'll tailor the shoot details to what you've told me.",
}

// Decide maps the pipeline result to an action under the given mode.
// Shadow mode always returns nil. Reflex acts only on a detected conflict or
// a confident non-unclear intent, using template replies. Conscious mode may
// return any enabled action, carrying the proposed response.
func (g *Gate) Decide(mode Mode, result PipelineResult) *Action {
	switch mode {
	case ModeShadow:
		return nil

	case ModeReflex:
		if !g.reflexEligible(result) {
			return nil
		}
		kind := actionKindFor(result)
		if kind == "" {
			return nil
		}
		template, ok := reflexTemplates[kind]
		if !ok || template == "" {
			return nil
		}
		return &Action{
			Kind:     kind,
			Response: template,
			Reason:   reasonFor(result),
		}

	case ModeConscious:
		kind := actionKindFor(result)
		if kind == "" {
			return nil
		}
		if !g.Enabled(kind) {
			return nil
		}
		return &Action{
			Kind:     kind,
			Response: result.Proposal.Text,
			Reason:   reasonFor(result),
		}
	}

	return nil
}

// reflexEligible reports whether the fast path has a signal worth acting on:
// any detected conflict, or an intent that is both clear and confident.
func (g *Gate) reflexEligible(result PipelineResult) bool {
	if result.Conflict.Type != oracle.ConflictNone {
		return true
	}
	return result.Intent.Intent != oracle.IntentUnclear &&
		result.Intent.Confidence >= g.minIntentConfidence
}

// actionKindFor picks the intervention for the pipeline's conclusions.
// Conflicts take precedence over intents: a frustrated user who also asked a
// question gets the escalation, not the answer.
func actionKindFor(result PipelineResult) ActionKind {
	switch result.Conflict.Type {
	case oracle.ConflictFrustration:
		return ActionEscalateHuman
	case oracle.ConflictConfusion:
		return ActionQAAnswer
	case oracle.ConflictBargaining:
		return ActionBargainingHandle
	case oracle.ConflictOffTopic:
		return ActionFlowReset
	case oracle.ConflictCancellation:
		return ActionCancelBooking
	}

	switch result.Intent.Intent {
	case oracle.IntentContinueBooking:
		return ActionDateConfirm
	case oracle.IntentProvideInfo:
		return ActionTemplateCustomize
	case oracle.IntentAskQuestion:
		return ActionQAAnswer
	case oracle.IntentChangeSelection:
		return ActionTemplateCustomize
	case oracle.IntentCancel:
		return ActionCancelBooking
	}

	return ""
}

// reasonFor builds the recorded explanation for an action choice.
func reasonFor(result PipelineResult) string {
	if result.Conflict.Type != oracle.ConflictNone {
		return fmt.Sprintf("conflict %s (%.2f)", result.Conflict.Type, result.Conflict.Confidence)
	}
	return fmt.Sprintf("intent %s (%.2f)", result.Intent.Intent, result.Intent.Confidence)
}

// Enabled reports whether the toggle for an action kind is on.
func (g *Gate) Enabled(kind ActionKind) bool {
	switch kind {
	case ActionTemplateCustomize:
		return g.toggles.TemplateCustomize
	case ActionDateConfirm:
		return g.toggles.DateConfirm
	case ActionAddonSuggest:
		return g.toggles.AddonSuggest
	case ActionQAAnswer:
		return g.toggles.QAAnswer
	case ActionBargainingHandle:
		return g.toggles.BargainingHandle
	case ActionEscalateHuman:
		return g.toggles.EscalateHuman
	case ActionCancelBooking:
		return g.toggles.CancelBooking
	case ActionFlowReset:
		return g.toggles.FlowReset
	case ActionDynamicGraph:
		return g.toggles.DynamicGraph
	default:
		return false
	}
}

// Availability reports, per action, whether the engine could currently take
// it in the given mode. Shadow disables everything; reflex exposes only the
// template-backed actions; conscious follows the toggles.
func (g *Gate) Availability(mode Mode) map[ActionKind]bool {
	report := make(map[ActionKind]bool, len(AllActionKinds()))
	for _, kind := range AllActionKinds() {
		switch mode {
		case ModeShadow:
			report[kind] = false
		case ModeReflex:
			template, ok := reflexTemplates[kind]
			report[kind] = ok && template != ""
		case ModeConscious:
			report[kind] = g.Enabled(kind)
		default:
			report[kind] = false
		}
	}
	return report
}

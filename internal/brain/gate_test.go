package brain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservo/brain/internal/config"
	"github.com/reservo/brain/internal/oracle"
)

func allToggles(on bool) config.ActionToggles {
	return config.ActionToggles{
		TemplateCustomize: on,
		DateConfirm:       on,
		AddonSuggest:      on,
		QAAnswer:          on,
		BargainingHandle:  on,
		EscalateHuman:     on,
		CancelBooking:     on,
		FlowReset:         on,
		DynamicGraph:      on,
	}
}

func resultWith(conflict oracle.ConflictType, intent oracle.Intent, confidence float64) PipelineResult {
	return PipelineResult{
		Conflict: oracle.ConflictAssessment{Type: conflict, Confidence: confidence},
		Intent:   oracle.IntentPrediction{Intent: intent, Confidence: confidence},
		Quality:  neutralQuality(),
		Plan:     fallbackPlan(),
		Proposal: oracle.ResponseProposal{Text: "How about Saturday morning?", Confidence: 0.8},
	}
}

func TestGateShadowNeverActs(t *testing.T) {
	g := NewGate(allToggles(true), 0.6)

	strong := resultWith(oracle.ConflictFrustration, oracle.IntentContinueBooking, 0.99)
	assert.Nil(t, g.Decide(ModeShadow, strong))
}

func TestGateReflexConflictMapping(t *testing.T) {
	g := NewGate(allToggles(false), 0.6) // toggles must not matter in reflex

	cases := []struct {
		conflict oracle.ConflictType
		want     ActionKind
	}{
		{oracle.ConflictFrustration, ActionEscalateHuman},
		{oracle.ConflictConfusion, ActionQAAnswer},
		{oracle.ConflictBargaining, ActionBargainingHandle},
		{oracle.ConflictOffTopic, ActionFlowReset},
		{oracle.ConflictCancellation, ActionCancelBooking},
	}

	for _, tc := range cases {
		t.Run(string(tc.conflict), func(t *testing.T) {
			action := g.Decide(ModeReflex, resultWith(tc.conflict, oracle.IntentUnclear, 0.1))
			require.NotNil(t, action)
			assert.Equal(t, tc.want, action.Kind)
			assert.Equal(t, reflexTemplates[tc.want], action.Response, "reflex sends the fixed template")
			assert.NotEmpty(t, action.Reason)
		})
	}
}

func TestGateReflexIntentConfidenceBar(t *testing.T) {
	g := NewGate(allToggles(true), 0.6)

	t.Run("below_bar", func(t *testing.T) {
		action := g.Decide(ModeReflex, resultWith(oracle.ConflictNone, oracle.IntentContinueBooking, 0.5))
		assert.Nil(t, action)
	})

	t.Run("at_bar", func(t *testing.T) {
		action := g.Decide(ModeReflex, resultWith(oracle.ConflictNone, oracle.IntentContinueBooking, 0.6))
		require.NotNil(t, action)
		assert.Equal(t, ActionDateConfirm, action.Kind)
	})

	t.Run("unclear_never_acts", func(t *testing.T) {
		action := g.Decide(ModeReflex, resultWith(oracle.ConflictNone, oracle.IntentUnclear, 0.99))
		assert.Nil(t, action)
	})
}

func TestGateReflexLowConfidenceConflictStillActs(t *testing.T) {
	g := NewGate(allToggles(true), 0.6)

	action := g.Decide(ModeReflex, resultWith(oracle.ConflictCancellation, oracle.IntentUnclear, 0.2))
	require.NotNil(t, action, "any detected conflict is reflex-eligible")
	assert.Equal(t, ActionCancelBooking, action.Kind)
}

func TestGateConsciousHonorsToggles(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		g := NewGate(allToggles(true), 0.6)
		action := g.Decide(ModeConscious, resultWith(oracle.ConflictNone, oracle.IntentAskQuestion, 0.7))
		require.NotNil(t, action)
		assert.Equal(t, ActionQAAnswer, action.Kind)
		assert.Equal(t, "How about Saturday morning?", action.Response, "conscious carries the proposal")
	})

	t.Run("disabled", func(t *testing.T) {
		toggles := allToggles(true)
		toggles.QAAnswer = false
		g := NewGate(toggles, 0.6)
		action := g.Decide(ModeConscious, resultWith(oracle.ConflictNone, oracle.IntentAskQuestion, 0.7))
		assert.Nil(t, action)
	})

	t.Run("no_signal", func(t *testing.T) {
		g := NewGate(allToggles(true), 0.6)
		action := g.Decide(ModeConscious, resultWith(oracle.ConflictNone, oracle.IntentUnclear, 0.1))
		assert.Nil(t, action)
	})
}

func TestGateConflictTakesPrecedenceOverIntent(t *testing.T) {
	g := NewGate(allToggles(true), 0.6)

	action := g.Decide(ModeConscious, resultWith(oracle.ConflictFrustration, oracle.IntentAskQuestion, 0.9))
	require.NotNil(t, action)
	assert.Equal(t, ActionEscalateHuman, action.Kind, "frustration outranks the question")
}

func TestGateIntentMapping(t *testing.T) {
	g := NewGate(allToggles(true), 0.6)

	cases := []struct {
		intent oracle.Intent
		want   ActionKind
	}{
		{oracle.IntentContinueBooking, ActionDateConfirm},
		{oracle.IntentProvideInfo, ActionTemplateCustomize},
		{oracle.IntentAskQuestion, ActionQAAnswer},
		{oracle.IntentChangeSelection, ActionTemplateCustomize},
		{oracle.IntentCancel, ActionCancelBooking},
	}

	for _, tc := range cases {
		t.Run(string(tc.intent), func(t *testing.T) {
			action := g.Decide(ModeConscious, resultWith(oracle.ConflictNone, tc.intent, 0.8))
			require.NotNil(t, action)
			assert.Equal(t, tc.want, action.Kind)
		})
	}
}

func TestGateAvailability(t *testing.T) {
	toggles := allToggles(false)
	toggles.DateConfirm = true
	toggles.DynamicGraph = true
	g := NewGate(toggles, 0.6)

	t.Run("shadow", func(t *testing.T) {
		report := g.Availability(ModeShadow)
		require.Len(t, report, len(AllActionKinds()))
		for kind, available := range report {
			assert.False(t, available, "shadow disables %s", kind)
		}
	})

	t.Run("reflex", func(t *testing.T) {
		report := g.Availability(ModeReflex)
		assert.True(t, report[ActionEscalateHuman])
		assert.True(t, report[ActionDateConfirm])
		assert.False(t, report[ActionAddonSuggest], "no reflex template")
		assert.False(t, report[ActionDynamicGraph], "toggle is on but reflex has no template")
	})

	t.Run("conscious", func(t *testing.T) {
		report := g.Availability(ModeConscious)
		assert.True(t, report[ActionDateConfirm])
		assert.True(t, report[ActionDynamicGraph])
		assert.False(t, report[ActionEscalateHuman])
	})
}

func TestResolveMode(t *testing.T) {
	assert.Equal(t, ModeShadow, ResolveMode("shadow"))
	assert.Equal(t, ModeReflex, ResolveMode("reflex"))
	assert.Equal(t, ModeConscious, ResolveMode("conscious"))
	assert.Equal(t, ModeShadow, ResolveMode(""), "empty resolves to observe-only")
	assert.Equal(t, ModeShadow, ResolveMode("autopilot"), "unknown resolves to observe-only")
}

package brain

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reservo/brain/internal/logging"
	"github.com/reservo/brain/internal/oracle"
)

// Pipeline runs the staged analysis of one turn. Every stage is total: a
// stage that fails or times out contributes its neutral default instead of
// an error, so a flaky scoring backend degrades the engine to observing
// rather than breaking the conversation.
type Pipeline struct {
	oracle       oracle.Oracle
	stageTimeout time.Duration
	log          *logging.Logger
}

// NewPipeline creates a pipeline over the given oracle. stageTimeout bounds
// each individual stage call.
func NewPipeline(o oracle.Oracle, stageTimeout time.Duration) *Pipeline {
	if stageTimeout <= 0 {
		stageTimeout = 10 * time.Second
	}
	return &Pipeline{
		oracle:       o,
		stageTimeout: stageTimeout,
		log:          logging.Global().WithComponent("Pipeline"),
	}
}

// Neutral stage defaults. These are what a stage contributes when it fails,
// times out, or is skipped by the current mode.

func neutralConflict() oracle.ConflictAssessment {
	return oracle.ConflictAssessment{Type: oracle.ConflictNone, Confidence: 0.0}
}

func neutralIntent() oracle.IntentPrediction {
	return oracle.IntentPrediction{Intent: oracle.IntentUnclear, Confidence: 0.0}
}

func neutralQuality() oracle.QualityReport {
	return oracle.QualityReport{Completeness: 0.5, Satisfaction: 0.0, Overall: 0.5}
}

func fallbackPlan() oracle.GoalPlan {
	return oracle.GoalPlan{Goals: []string{ContinueConversationGoal}, Confidence: 1.0}
}

// Run executes the stages appropriate for the mode and returns their
// combined result. It never returns an error.
//
// Stage order: conflict detection and intent prediction run concurrently;
// reflex mode stops there. Otherwise quality evaluation, goal decomposition,
// and (in conscious mode only) response proposal follow sequentially.
func (p *Pipeline) Run(ctx context.Context, turn *TurnContext, mode Mode) PipelineResult {
	result := PipelineResult{
		Conflict: neutralConflict(),
		Intent:   neutralIntent(),
		Quality:  neutralQuality(),
		Plan:     fallbackPlan(),
	}

	ot := turn.oracleTurn()

	// Stage 1+2: conflict and intent, concurrently. The goroutines never
	// return errors; a failed stage keeps its neutral default.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, p.stageTimeout)
		defer cancel()

		conflict, err := p.oracle.DetectConflict(sctx, ot)
		if err != nil {
			p.log.Warn("conflict detection failed, assuming none: %v", err)
			return nil
		}
		result.Conflict = conflict
		return nil
	})

	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, p.stageTimeout)
		defer cancel()

		intent, err := p.oracle.PredictIntent(sctx, ot)
		if err != nil {
			p.log.Warn("intent prediction failed, assuming unclear: %v", err)
			return nil
		}
		result.Intent = intent
		return nil
	})

	_ = g.Wait()

	if mode == ModeReflex {
		// Reflex stays on the fast path: no quality, planning, or proposal.
		return result
	}

	// Stage 3: quality evaluation. Opportunistic: its score feeds the
	// decision record and memory ranking, not the action choice, so a
	// failure here costs nothing on this turn.
	func() {
		sctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
		defer cancel()

		quality, err := p.oracle.EvaluateQuality(sctx, ot)
		if err != nil {
			p.log.Warn("quality evaluation failed, using neutral scores: %v", err)
			return
		}
		result.Quality = quality
	}()

	// Stage 4: goal decomposition. With an unclear intent or an empty
	// message there is nothing to decompose; keep the fallback plan
	// without spending an oracle call.
	if result.Intent.Intent != oracle.IntentUnclear && strings.TrimSpace(turn.UserMessage) != "" {
		sctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
		plan, err := p.oracle.DecomposeGoals(sctx, ot, result.Intent, result.Conflict)
		cancel()
		if err != nil {
			p.log.Warn("goal decomposition failed, continuing conversation: %v", err)
		} else {
			result.Plan = plan
		}
	}

	// Stage 5: response proposal, conscious mode only.
	if mode == ModeConscious {
		sctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
		proposal, err := p.oracle.ProposeResponse(sctx, ot, result.Plan, result.Intent, result.Conflict)
		cancel()
		if err != nil {
			p.log.Warn("response proposal failed, no proposal this turn: %v", err)
		} else {
			result.Proposal = proposal
		}
	}

	return result
}

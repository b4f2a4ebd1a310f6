package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reservo/brain/internal/config"
	"github.com/reservo/brain/internal/data"
	"github.com/reservo/brain/internal/logging"
	"github.com/reservo/brain/internal/oracle"
)

// DecisionStore is the slice of the persistence layer the engine needs.
type DecisionStore interface {
	InsertDecision(ctx context.Context, d *data.Decision) error
	UpdateOutcome(ctx context.Context, decisionID, userResponse, workflowOutcome string, satisfaction float64) error
	RecentDecisions(ctx context.Context, limit int) ([]*data.Decision, error)
}

// Engine is the decision engine's front door. It serializes turns per
// conversation, runs the pipeline for the configured mode, gates the
// resulting action, and records exactly one decision per turn.
//
// The pipeline and the gate both degrade to doing nothing when their inputs
// fail; the one failure the engine refuses to swallow is a decision that
// could not be recorded, because an unrecorded turn is invisible to learning.
type Engine struct {
	cfg      *config.Config
	mode     Mode
	pipeline *Pipeline // shadow and conscious turns
	reflex   *Pipeline // reflex turns, tighter stage timeout
	gate     *Gate
	store    DecisionStore
	log      *logging.Logger

	mu        sync.Mutex
	convLocks map[string]*convLock
}

// convLock serializes one conversation's turns. refs counts holders and
// waiters so the engine can drop the entry once the conversation goes idle.
type convLock struct {
	sync.Mutex
	refs int
}

// NewEngine wires an engine from configuration, an oracle, and a store.
func NewEngine(cfg *config.Config, o oracle.Oracle, store DecisionStore) *Engine {
	reflexTimeout := cfg.Brain.Reflex.Timeout
	if reflexTimeout <= 0 {
		reflexTimeout = 5 * time.Second
	}

	log := logging.Global().WithComponent("Engine")
	mode := ResolveMode(cfg.Brain.Mode)
	if mode.String() != cfg.Brain.Mode {
		log.Warn("unknown mode %q in config, running in shadow", cfg.Brain.Mode)
	}

	return &Engine{
		cfg:       cfg,
		mode:      mode,
		pipeline:  NewPipeline(o, cfg.Oracle.StageTimeout),
		reflex:    NewPipeline(o, reflexTimeout),
		gate:      NewGate(cfg.Brain.Actions, cfg.Oracle.Levels.Medium),
		store:     store,
		log:       log,
		convLocks: map[string]*convLock{},
	}
}

// Mode returns the engine's resolved operating mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Enabled reports whether the engine is switched on at all.
func (e *Engine) Enabled() bool {
	return e.cfg.Brain.Enabled
}

// ProcessTurn runs one user turn through the engine. Turns sharing a
// conversation ID are processed serially; turns from different conversations
// run concurrently.
//
// A disabled engine returns (nil, nil): no pipeline, no record, no action.
// Pipeline and gate failures degrade to an observe-only result. A recording
// failure returns the result alongside a non-nil error so the caller knows
// the turn happened but was not persisted.
func (e *Engine) ProcessTurn(ctx context.Context, turn *TurnContext) (*DecisionResult, error) {
	if turn == nil || turn.ConversationID == "" {
		return nil, fmt.Errorf("process turn: missing conversation id")
	}

	if !e.cfg.Brain.Enabled {
		return nil, nil
	}

	lock := e.lockConversation(turn.ConversationID)
	defer e.unlockConversation(turn.ConversationID, lock)

	start := time.Now()
	e.log.Turn(turn.ConversationID, e.mode.String())

	pipeline := e.pipeline
	if e.mode == ModeReflex {
		pipeline = e.reflex
	}

	result := pipeline.Run(ctx, turn, e.mode)
	action := e.gate.Decide(e.mode, result)

	decision := e.buildDecision(turn, result, action)

	// The record must land even when the caller's context is being torn
	// down; the write gets a detached context with its own deadline.
	recordCtx, cancel := logging.DetachContextWithTimeout(ctx, 5*time.Second)
	defer cancel()

	out := &DecisionResult{
		DecisionID: decision.DecisionID,
		Mode:       e.mode,
		Pipeline:   result,
		Action:     action,
		Elapsed:    time.Since(start),
	}

	if err := e.store.InsertDecision(recordCtx, decision); err != nil {
		e.log.Error("decision for %s not recorded: %v", turn.ConversationID, err)
		return out, fmt.Errorf("record decision: %w", err)
	}

	return out, nil
}

// RecordOutcome attaches the eventual outcome to a recorded decision. Safe
// to call more than once; the latest call wins. Satisfaction is clamped to
// the [0,1] scale.
func (e *Engine) RecordOutcome(ctx context.Context, decisionID, userResponse, workflowOutcome string, satisfaction float64) error {
	if decisionID == "" {
		return fmt.Errorf("record outcome: missing decision id")
	}
	return e.store.UpdateOutcome(ctx, decisionID, userResponse, workflowOutcome, oracle.Clamp01(satisfaction))
}

// Recent returns the most recently recorded decisions, newest first.
func (e *Engine) Recent(ctx context.Context, limit int) ([]*data.Decision, error) {
	return e.store.RecentDecisions(ctx, limit)
}

// FeatureReport returns, per action, whether the engine could currently take
// it given its mode and toggles. A disabled engine reports everything off.
func (e *Engine) FeatureReport() map[ActionKind]bool {
	if !e.cfg.Brain.Enabled {
		report := make(map[ActionKind]bool, len(AllActionKinds()))
		for _, kind := range AllActionKinds() {
			report[kind] = false
		}
		return report
	}
	return e.gate.Availability(e.mode)
}

// lockConversation acquires the lock serializing one conversation's turns,
// creating it on first use.
func (e *Engine) lockConversation(conversationID string) *convLock {
	e.mu.Lock()
	lock, ok := e.convLocks[conversationID]
	if !ok {
		lock = &convLock{}
		e.convLocks[conversationID] = lock
	}
	lock.refs++
	e.mu.Unlock()

	lock.Lock()
	return lock
}

// unlockConversation releases the lock and evicts it once no other turn holds
// or waits on it, so the map stays bounded by concurrent conversations.
func (e *Engine) unlockConversation(conversationID string, lock *convLock) {
	lock.Unlock()

	e.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(e.convLocks, conversationID)
	}
	e.mu.Unlock()
}

// buildDecision flattens the turn and pipeline result into a store row.
func (e *Engine) buildDecision(turn *TurnContext, result PipelineResult, action *Action) *data.Decision {
	history, _ := json.Marshal(turn.History)
	snapshot, _ := json.Marshal(turn.Snapshot)
	goals, _ := json.Marshal(result.Plan.Goals)

	ts := turn.ReceivedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	d := &data.Decision{
		DecisionID:       uuid.NewString(),
		ConversationID:   turn.ConversationID,
		Timestamp:        ts,
		UserMessage:      turn.UserMessage,
		History:          string(history),
		Snapshot:         string(snapshot),
		ConflictDetected: string(result.Conflict.Type),
		PredictedIntent:  string(result.Intent.Intent),
		SubGoals:         string(goals),
		ProposedResponse: result.Proposal.Text,
		Confidence:       decisionConfidence(result),
		Completeness:     result.Quality.Completeness,
		SatisfactionProb: result.Quality.Satisfaction,
		Overall:          result.Quality.Overall,
		Mode:             e.mode.String(),
	}

	if action != nil {
		d.ActionTaken = string(action.Kind)
		d.ResponseSent = action.Response != ""
	}

	return d
}

// decisionConfidence picks the headline confidence for the record: the
// conflict score when a conflict drove the turn, the intent score otherwise.
func decisionConfidence(result PipelineResult) float64 {
	if result.Conflict.Type != oracle.ConflictNone {
		return result.Conflict.Confidence
	}
	return result.Intent.Confidence
}

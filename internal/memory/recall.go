// Package memory consolidates resolved decisions into durable memories and
// ranks those memories by how much there is to learn from them. It sits
// between the decision record and the dream cycle: consolidation feeds
// recall, recall feeds dreams.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/reservo/brain/internal/data"
	"github.com/reservo/brain/internal/logging"
)

// Importance weights. Outcome satisfaction dominates the in-flight quality
// score: what the user actually did matters more than what the evaluator
// predicted they would do.
const (
	satisfactionWeight = 0.6
	overallWeight      = 0.4
)

// Memory type labels. Consolidation picks one per decision based on how the
// conversation ended.
const (
	TypeSuccessfulBooking  = "successful_booking"
	TypeConflictResolution = "conflict_resolution"
	TypeLostConversation   = "lost_conversation"
)

// Recaller selects and consolidates experience out of the decision record.
type Recaller struct {
	store *data.Store
	log   *logging.Logger
}

// NewRecaller creates a recaller over the store.
func NewRecaller(store *data.Store) *Recaller {
	return &Recaller{
		store: store,
		log:   logging.Global().WithComponent("Recall"),
	}
}

// Importance scores how much a resolved decision is worth revisiting.
// Unresolved decisions score zero: without an outcome there is nothing to
// learn yet.
func Importance(d *data.Decision) float64 {
	if !d.Resolved() {
		return 0
	}
	return satisfactionWeight*(*d.UserSatisfaction) + overallWeight*d.Overall
}

// Recall returns up to limit consolidated memories ranked by confidence,
// highest first. A memory's confidence is the importance score stamped at
// consolidation, so recall surfaces the conversations with the most to teach.
// minRequired gates the whole operation: with fewer memories than that on
// record, Recall returns nothing, because ranking a handful of outcomes only
// amplifies their noise.
func (r *Recaller) Recall(ctx context.Context, minRequired, limit int) ([]*data.Memory, error) {
	if minRequired < 1 {
		minRequired = 1
	}
	if limit <= 0 {
		limit = minRequired
	}

	total, err := r.store.CountMemories(ctx)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}
	if total < int64(minRequired) {
		r.log.Debug("recall skipped: %d memories, need %d", total, minRequired)
		return nil, nil
	}

	memories, err := r.store.TopMemories(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}
	return memories, nil
}

// Consolidate turns resolved decisions into memory rows, one per decision,
// keyed by decision ID so repeated runs never duplicate. Returns how many new
// memories were written.
func (r *Recaller) Consolidate(ctx context.Context, limit int) (int, error) {
	resolved, err := r.store.ResolvedDecisions(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("consolidate: %w", err)
	}

	written := 0
	for _, d := range resolved {
		exists, err := r.store.MemoryExistsForSource(ctx, d.DecisionID)
		if err != nil {
			return written, fmt.Errorf("consolidate %s: %w", d.DecisionID, err)
		}
		if exists {
			continue
		}

		m := memoryFrom(d)
		if err := r.store.InsertMemory(ctx, m); err != nil {
			return written, fmt.Errorf("consolidate %s: %w", d.DecisionID, err)
		}
		written++
	}

	if written > 0 {
		r.log.Info("consolidated %d decisions into memories", written)
	}
	return written, nil
}

// memoryFrom derives the memory row for one resolved decision.
func memoryFrom(d *data.Decision) *data.Memory {
	return &data.Memory{
		MemoryID:   uuid.NewString(),
		Type:       classify(d),
		Context:    describeContext(d),
		Learning:   describeLearning(d),
		Confidence: Importance(d),
		Source:     d.DecisionID,
	}
}

// classify buckets a resolved decision by how the conversation ended.
func classify(d *data.Decision) string {
	outcome := ""
	if d.WorkflowOutcome != nil {
		outcome = *d.WorkflowOutcome
	}

	switch {
	case strings.Contains(outcome, "confirmed") || strings.Contains(outcome, "completed"):
		if d.ConflictDetected != "none" {
			return TypeConflictResolution
		}
		return TypeSuccessfulBooking
	case d.ConflictDetected != "none":
		return TypeLostConversation
	default:
		return TypeLostConversation
	}
}

func describeContext(d *data.Decision) string {
	parts := []string{fmt.Sprintf("intent=%s", d.PredictedIntent)}
	if d.ConflictDetected != "none" {
		parts = append(parts, fmt.Sprintf("conflict=%s", d.ConflictDetected))
	}
	parts = append(parts, fmt.Sprintf("message=%q", d.UserMessage))
	return strings.Join(parts, " ")
}

func describeLearning(d *data.Decision) string {
	outcome := "unknown"
	if d.WorkflowOutcome != nil {
		outcome = *d.WorkflowOutcome
	}

	if d.ActionTaken != "" {
		return fmt.Sprintf("action %s led to %s (satisfaction %.2f)",
			d.ActionTaken, outcome, satisfactionOf(d))
	}
	return fmt.Sprintf("observing only, outcome was %s (satisfaction %.2f)",
		outcome, satisfactionOf(d))
}

func satisfactionOf(d *data.Decision) float64 {
	if d.UserSatisfaction == nil {
		return 0
	}
	return *d.UserSatisfaction
}

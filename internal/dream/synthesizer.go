// Package dream implements the offline consolidation cycle: it replays the
// most instructive resolved conversations through the synthesis oracle and
// stores the generated training examples for later fine-tuning. A share of
// each batch is synthesized from nothing, so the corpus also covers
// situations the booking flow has not hit yet.
package dream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/reservo/brain/internal/config"
	"github.com/reservo/brain/internal/data"
	"github.com/reservo/brain/internal/logging"
	"github.com/reservo/brain/internal/memory"
	"github.com/reservo/brain/internal/oracle"
)

// ErrInsufficientData means the decision record does not yet hold enough
// resolved conversations to dream about.
var ErrInsufficientData = errors.New("not enough resolved conversations to dream")

// CycleReport summarizes one completed (or skipped) cycle.
type CycleReport struct {
	DreamID                string
	ConversationsProcessed int
	DreamsGenerated        int
	Synthetic              int
	Grounded               int
	Patterns               []string
	Elapsed                time.Duration
}

// Synthesizer runs individual dream cycles.
type Synthesizer struct {
	cfg      config.DreamConfig
	store    *data.Store
	recaller *memory.Recaller
	oracle   oracle.ExampleSynthesizer
	log      *logging.Logger
}

// NewSynthesizer wires a synthesizer from configuration, the store, and the
// synthesis oracle.
func NewSynthesizer(cfg config.DreamConfig, store *data.Store, o oracle.ExampleSynthesizer) *Synthesizer {
	return &Synthesizer{
		cfg:      cfg,
		store:    store,
		recaller: memory.NewRecaller(store),
		oracle:   o,
		log:      logging.Global().WithComponent("Dream"),
	}
}

// RunCycle executes one full cycle: consolidate fresh outcomes into memories,
// recall the highest-confidence memories, synthesize one training example per
// slot (a hallucinated share plus grounded ones), and write a single dream
// record.
//
// A cycle with too little data still writes its record, with zero dreams
// generated, and returns ErrInsufficientData.
func (s *Synthesizer) RunCycle(ctx context.Context) (*CycleReport, error) {
	start := time.Now()

	if _, err := s.recaller.Consolidate(ctx, 0); err != nil {
		s.log.Warn("consolidation before dreaming failed: %v", err)
	}

	recalled, err := s.recaller.Recall(ctx, s.cfg.MinConversations, s.cfg.MaxDreamsPerCycle)
	if err != nil {
		return nil, fmt.Errorf("dream cycle: %w", err)
	}

	if len(recalled) == 0 {
		report := &CycleReport{
			DreamID: uuid.NewString(),
			Elapsed: time.Since(start),
		}
		if err := s.writeRecord(ctx, report, nil); err != nil {
			return nil, err
		}
		return report, ErrInsufficientData
	}

	total := len(recalled)
	synthetic := int(math.Round(float64(total) * s.cfg.HallucinationRatio))
	if synthetic > total {
		synthetic = total
	}
	grounded := total - synthetic

	s.log.Info("dreaming over %d conversations: %d grounded, %d synthetic",
		total, grounded, synthetic)

	var examples []oracle.TrainingExample
	var patterns []string
	seen := map[string]bool{}

	record := func(ex oracle.TrainingExample) {
		examples = append(examples, ex)
		if ex.Rationale != "" && !seen[ex.Rationale] {
			seen[ex.Rationale] = true
			patterns = append(patterns, ex.Rationale)
		}
	}

	for _, m := range recalled[:grounded] {
		ex, err := s.oracle.SynthesizeExample(ctx, seedFrom(m))
		if err != nil {
			s.log.Warn("grounded synthesis for %s failed: %v", m.MemoryID, err)
			continue
		}
		record(ex)
	}

	for i := 0; i < synthetic; i++ {
		ex, err := s.oracle.SynthesizeExample(ctx, "")
		if err != nil {
			s.log.Warn("synthetic dream %d failed: %v", i, err)
			continue
		}
		record(ex)
	}

	report := &CycleReport{
		DreamID:                uuid.NewString(),
		ConversationsProcessed: total,
		DreamsGenerated:        len(examples),
		Synthetic:              synthetic,
		Grounded:               grounded,
		Patterns:               patterns,
		Elapsed:                time.Since(start),
	}

	if err := s.writeRecord(ctx, report, examples); err != nil {
		return nil, err
	}

	s.log.Info("dream cycle %s done: %d dreams from %d conversations in %s",
		report.DreamID, report.DreamsGenerated, total, report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// writeRecord persists the cycle summary as one brain_dreams row.
func (s *Synthesizer) writeRecord(ctx context.Context, report *CycleReport, examples []oracle.TrainingExample) error {
	patterns, _ := json.Marshal(report.Patterns)
	dreamData, _ := json.Marshal(examples)

	rec := &data.DreamRecord{
		DreamID:                report.DreamID,
		ModelUsed:              s.cfg.Model,
		ConversationsProcessed: report.ConversationsProcessed,
		DreamsGenerated:        report.DreamsGenerated,
		PatternsLearned:        string(patterns),
		DreamData:              string(dreamData),
	}
	if err := s.store.InsertDream(ctx, rec); err != nil {
		return fmt.Errorf("record dream cycle: %w", err)
	}
	return nil
}

// seedFrom renders a recalled memory into the grounding text the oracle
// dreams from.
func seedFrom(m *data.Memory) string {
	return fmt.Sprintf("%s (%s); what was learned: %s", m.Type, m.Context, m.Learning)
}

package dream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservo/brain/internal/config"
	"github.com/reservo/brain/internal/data"
	"github.com/reservo/brain/internal/oracle"
)

// countingSynthesizer tracks grounded vs synthetic calls and can block or fail.
type countingSynthesizer struct {
	mu        sync.Mutex
	grounded  int
	synthetic int
	seeds     []string

	err   error
	block chan struct{} // when non-nil, calls wait here
}

func (c *countingSynthesizer) SynthesizeExample(ctx context.Context, seed string) (oracle.TrainingExample, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return oracle.TrainingExample{}, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return oracle.TrainingExample{}, c.err
	}

	c.seeds = append(c.seeds, seed)
	if seed == "" {
		c.synthetic++
	} else {
		c.grounded++
	}

	return oracle.TrainingExample{
		Scenario:      "price pushback",
		UserMessage:   "that seems expensive",
		IdealResponse: "Here is what the package includes.",
		Rationale:     fmt.Sprintf("pattern-%d", c.grounded+c.synthetic),
		Synthetic:     seed == "",
	}, nil
}

func (c *countingSynthesizer) counts() (grounded, synthetic int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grounded, c.synthetic
}

func setupStore(t *testing.T) *data.Store {
	t.Helper()

	store, err := data.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func seedResolvedDecisions(t *testing.T, store *data.Store, n int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("d-%d", i)
		require.NoError(t, store.InsertDecision(ctx, &data.Decision{
			DecisionID:       id,
			ConversationID:   "conv-" + id,
			UserMessage:      "can I move my shoot to Sunday?",
			ConflictDetected: "none",
			PredictedIntent:  "change_selection",
			Overall:          0.7,
			Mode:             "shadow",
		}))
		require.NoError(t, store.UpdateOutcome(ctx, id, "sure", "booking_confirmed", 0.8))
	}
}

func dreamConfig() config.DreamConfig {
	return config.DreamConfig{
		Enabled:            true,
		Interval:           6 * time.Hour,
		MinConversations:   5,
		HallucinationRatio: 0.2,
		MaxDreamsPerCycle:  100,
		Model:              "llama3.2",
	}
}

func TestRunCycleInsufficientData(t *testing.T) {
	store := setupStore(t)
	seedResolvedDecisions(t, store, 2) // below the minimum of 5

	synth := NewSynthesizer(dreamConfig(), store, &countingSynthesizer{})

	report, err := synth.RunCycle(context.Background())
	require.ErrorIs(t, err, ErrInsufficientData)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.DreamsGenerated)

	dreams, err := store.RecentDreams(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, dreams, 1, "skipped cycles still leave a record")
	assert.Equal(t, 0, dreams[0].DreamsGenerated)
	assert.Equal(t, 0, dreams[0].ConversationsProcessed)
}

func TestRunCycleGeneratesDreams(t *testing.T) {
	store := setupStore(t)
	seedResolvedDecisions(t, store, 5)

	counter := &countingSynthesizer{}
	synth := NewSynthesizer(dreamConfig(), store, counter)

	report, err := synth.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.ConversationsProcessed)
	assert.Equal(t, 5, report.DreamsGenerated)
	assert.Equal(t, 1, report.Synthetic, "round(5 * 0.2)")
	assert.Equal(t, 4, report.Grounded)

	grounded, synthetic := counter.counts()
	assert.Equal(t, 4, grounded)
	assert.Equal(t, 1, synthetic)

	dreams, err := store.RecentDreams(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, dreams, 1)
	assert.Equal(t, 5, dreams[0].DreamsGenerated)
	assert.Equal(t, "llama3.2", dreams[0].ModelUsed)
	assert.Contains(t, dreams[0].DreamData, "price pushback")
	assert.Contains(t, dreams[0].PatternsLearned, "pattern-1")

	t.Run("consolidates_along_the_way", func(t *testing.T) {
		n, err := store.CountMemories(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(5), n, "resolved decisions became memories")
	})

	t.Run("grounded_seeds_come_from_memories", func(t *testing.T) {
		counter.mu.Lock()
		defer counter.mu.Unlock()
		for _, seed := range counter.seeds {
			if seed == "" {
				continue
			}
			assert.Contains(t, seed, "successful_booking")
			assert.Contains(t, seed, "change_selection")
		}
	})
}

func TestRunCycleCapsAtMaxDreams(t *testing.T) {
	store := setupStore(t)
	seedResolvedDecisions(t, store, 8)

	cfg := dreamConfig()
	cfg.MaxDreamsPerCycle = 4

	counter := &countingSynthesizer{}
	synth := NewSynthesizer(cfg, store, counter)

	report, err := synth.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.ConversationsProcessed)
	assert.Equal(t, 1, report.Synthetic, "round(4 * 0.2)")
	assert.Equal(t, 3, report.Grounded)
}

func TestRunCycleToleratesOracleFailures(t *testing.T) {
	store := setupStore(t)
	seedResolvedDecisions(t, store, 5)

	counter := &countingSynthesizer{err: errors.New("model offline")}
	synth := NewSynthesizer(dreamConfig(), store, counter)

	report, err := synth.RunCycle(context.Background())
	require.NoError(t, err, "synthesis failures degrade the batch, not the cycle")
	assert.Equal(t, 0, report.DreamsGenerated)
	assert.Equal(t, 5, report.ConversationsProcessed)

	dreams, err := store.RecentDreams(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, dreams, 1)
	assert.Equal(t, 0, dreams[0].DreamsGenerated)
}

func TestSchedulerRunIfDue(t *testing.T) {
	store := setupStore(t)
	seedResolvedDecisions(t, store, 5)

	synth := NewSynthesizer(dreamConfig(), store, &countingSynthesizer{})
	sched := NewScheduler(synth, store, time.Hour)
	ctx := context.Background()

	t.Run("first_run_is_due", func(t *testing.T) {
		require.NoError(t, sched.RunIfDue(ctx))
	})

	t.Run("second_run_too_soon", func(t *testing.T) {
		assert.ErrorIs(t, sched.RunIfDue(ctx), ErrTooSoon)
	})

	t.Run("due_again_after_interval", func(t *testing.T) {
		// Backdate the only dream record past the interval.
		_, err := store.DB().Exec(
			"UPDATE brain_dreams SET timestamp = ?",
			time.Now().UTC().Add(-2*time.Hour).Format(time.RFC3339))
		require.NoError(t, err)

		require.NoError(t, sched.RunIfDue(ctx))
	})
}

func TestSchedulerSingleFlight(t *testing.T) {
	store := setupStore(t)
	seedResolvedDecisions(t, store, 5)

	counter := &countingSynthesizer{block: make(chan struct{})}
	synth := NewSynthesizer(dreamConfig(), store, counter)
	sched := NewScheduler(synth, store, time.Hour)

	firstDone := make(chan error, 1)
	go func() { firstDone <- sched.RunNow(context.Background()) }()

	// Wait until the first cycle is inside the synthesizer.
	require.Eventually(t, func() bool {
		sched.mu.Lock()
		defer sched.mu.Unlock()
		return sched.running
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, sched.RunNow(context.Background()), ErrCycleRunning)

	close(counter.block)
	require.NoError(t, <-firstDone)

	// The slot frees up once the cycle finishes.
	assert.NotErrorIs(t, sched.RunNow(context.Background()), ErrCycleRunning)
}

func TestSchedulerStartStop(t *testing.T) {
	store := setupStore(t)
	seedResolvedDecisions(t, store, 5)

	synth := NewSynthesizer(dreamConfig(), store, &countingSynthesizer{})
	sched := NewScheduler(synth, store, time.Hour)

	sched.Start(context.Background())

	// The startup due-check runs one cycle.
	require.Eventually(t, func() bool {
		n, err := store.CountDreams(context.Background())
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	sched.Stop()
}

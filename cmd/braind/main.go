// Package main is the entry point for braind, the decision engine daemon for
// the photography booking assistant. It hosts the background dream scheduler
// and exposes maintenance commands for the decision record.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/reservo/brain/internal/brain"
	"github.com/reservo/brain/internal/config"
	"github.com/reservo/brain/internal/data"
	"github.com/reservo/brain/internal/dream"
	"github.com/reservo/brain/internal/llm"
	"github.com/reservo/brain/internal/logging"
	"github.com/reservo/brain/internal/oracle"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	log     *logging.Logger
)

func main() {
	zlog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()

	rootCmd := &cobra.Command{
		Use:   "braind",
		Short: "braind - decision engine for the booking assistant",
		Long: `braind runs the decision engine beside the photography booking workflow.

It scores every conversation turn through a staged pipeline (conflict,
intent, quality, goals, response), gates any resulting action by the
configured mode, records each decision, and periodically consolidates
resolved conversations into training data.

Run the daemon:          braind run
Dream once, right now:   braind dream --force
Inspect the record:      braind status`,
		PersistentPreRunE: initLogging,
		RunE:              runDaemon,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.braind/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("braind v%s\n", version)
		},
	})

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(dreamCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGING INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

func initLogging(cmd *cobra.Command, args []string) error {
	var lc *logging.Config
	if verbose {
		lc = logging.VerboseConfig()
	} else {
		lc = logging.DefaultConfig()
	}

	if cfg, err := loadConfig(); err == nil {
		if !verbose {
			lc.Level = logging.ParseLevel(cfg.Logging.Level)
		}
		lc.FilePath = cfg.Logging.File
	}

	log = logging.New(lc)
	logging.SetGlobal(log)
	return nil
}

func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFromPath(cfgPath)
	}
	return config.Load()
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMPONENT WIRING
// ═══════════════════════════════════════════════════════════════════════════════

// initComponents builds the store, the oracle, and the engine. The returned
// cleanup closes the store.
func initComponents(cfg *config.Config) (*brain.Engine, oracle.Oracle, *data.Store, func(), error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("prepare directories: %w", err)
	}

	store, err := data.NewDB(cfg.GetDataDir())
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Warn("closing store: %v", err)
		}
	}

	reason, err := llm.NewProvider(cfg)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, fmt.Errorf("create provider: %w", err)
	}
	fast, err := llm.NewFastProvider(cfg)
	if err != nil {
		log.Warn("fast provider unavailable, using default for all stages: %v", err)
		fast = reason
	}

	o := oracle.NewLLMOracle(reason, fast, oracle.Levels{
		Low:    cfg.Oracle.Levels.Low,
		Medium: cfg.Oracle.Levels.Medium,
		High:   cfg.Oracle.Levels.High,
	})

	return brain.NewEngine(cfg, o, store), o, store, cleanup, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// RUN COMMAND (DAEMON)
// ═══════════════════════════════════════════════════════════════════════════════

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon (dream scheduler and engine host)",
		RunE:  runDaemon,
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	engine, o, store, cleanup, err := initComponents(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	zlog.Info().
		Str("version", version).
		Str("mode", engine.Mode().String()).
		Bool("enabled", engine.Enabled()).
		Msg("braind starting")

	for kind, available := range engine.FeatureReport() {
		log.Debug("action %s available=%t", kind, available)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sched *dream.Scheduler
	if cfg.Dream.Enabled {
		synth := dream.NewSynthesizer(cfg.Dream, store, o)
		sched = dream.NewScheduler(synth, store, cfg.Dream.Interval)
		sched.Start(ctx)
		log.Info("dream scheduler started (interval %s)", cfg.Dream.Interval)
	} else {
		log.Info("dreaming disabled in config")
	}

	if engine.Enabled() {
		go turnLoop(ctx, engine)
	}

	<-ctx.Done()

	zlog.Info().Msg("braind shutting down")
	if sched != nil {
		sched.Stop()
	}
	return nil
}

// turnLoop feeds lines from stdin through the engine as turns of one local
// conversation and prints what the engine concluded. It is the daemon's
// manual exercise surface; in production the workflow host calls ProcessTurn
// directly.
func turnLoop(ctx context.Context, engine *brain.Engine) {
	conversationID := fmt.Sprintf("local-%d", time.Now().Unix())
	var history []string

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Type a message to run it through the engine (Ctrl+D to stop reading):")

	for scanner.Scan() {
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}

		result, err := engine.ProcessTurn(ctx, &brain.TurnContext{
			ConversationID: conversationID,
			UserMessage:    message,
			History:        history,
		})
		if err != nil {
			fmt.Printf("  error: %v\n", err)
			continue
		}
		history = append(history, "user: "+message)

		fmt.Printf("  conflict=%s(%.2f) intent=%s(%.2f) [%s]\n",
			result.Pipeline.Conflict.Type, result.Pipeline.Conflict.Confidence,
			result.Pipeline.Intent.Intent, result.Pipeline.Intent.Confidence,
			result.Elapsed.Round(time.Millisecond))
		if result.Action != nil {
			fmt.Printf("  action=%s: %s\n", result.Action.Kind, result.Action.Response)
			history = append(history, "assistant: "+result.Action.Response)
		} else {
			fmt.Println("  action=none (observing)")
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// DREAM COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func dreamCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "dream",
		Short: "Run one dream cycle",
		Long: `Run one consolidation cycle against the decision record.

By default the cycle only runs when the configured interval has elapsed
since the last one; --force ignores the interval.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			_, o, store, cleanup, err := initComponents(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			synth := dream.NewSynthesizer(cfg.Dream, store, o)
			sched := dream.NewScheduler(synth, store, cfg.Dream.Interval)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()

			var runErr error
			if force {
				runErr = sched.RunNow(ctx)
			} else {
				runErr = sched.RunIfDue(ctx)
			}

			switch {
			case errors.Is(runErr, dream.ErrTooSoon):
				fmt.Println("Not due yet. Use --force to run anyway.")
				return nil
			case errors.Is(runErr, dream.ErrInsufficientData):
				fmt.Println("Not enough resolved conversations to dream about yet.")
				return nil
			case runErr != nil:
				return runErr
			}

			fmt.Println("✅ Dream cycle complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "run even if the interval has not elapsed")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATUS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine, store, and dream status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			engine, _, store, cleanup, err := initComponents(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			fmt.Println("braind Status")
			fmt.Println("─────────────")
			fmt.Printf("Enabled:   %t\n", engine.Enabled())
			fmt.Printf("Mode:      %s\n", engine.Mode())
			fmt.Printf("Database:  %s\n", cfg.DatabasePath())

			if err := store.Health(); err != nil {
				fmt.Printf("Store:     unhealthy (%v)\n", err)
			} else {
				fmt.Println("Store:     healthy")
			}

			decisions, _ := store.CountDecisions(ctx)
			memories, _ := store.CountMemories(ctx)
			dreams, _ := store.CountDreams(ctx)
			fmt.Printf("Decisions: %d\n", decisions)
			fmt.Printf("Memories:  %d\n", memories)
			fmt.Printf("Dreams:    %d\n", dreams)

			if last, ok, err := store.LastDreamTime(ctx); err == nil && ok {
				fmt.Printf("Last dream: %s ago\n", time.Since(last).Round(time.Minute))
			} else {
				fmt.Println("Last dream: never")
			}

			fmt.Println("\nActions:")
			report := engine.FeatureReport()
			for _, kind := range brain.AllActionKinds() {
				marker := "✗"
				if report[kind] {
					marker = "✓"
				}
				fmt.Printf("  %s %s\n", marker, kind)
			}

			learned, err := store.ListMemories(ctx, 3)
			if err == nil && len(learned) > 0 {
				fmt.Println("\nRecent memories:")
				for _, m := range learned {
					fmt.Printf("  %-20s %.2f  %s\n", m.Type, m.Confidence, m.Learning)
				}
			}

			recent, err := engine.Recent(ctx, 5)
			if err == nil && len(recent) > 0 {
				fmt.Println("\nRecent decisions:")
				for _, d := range recent {
					action := d.ActionTaken
					if action == "" {
						action = "-"
					}
					fmt.Printf("  %s  %-9s  conflict=%-12s intent=%-16s action=%s\n",
						d.Timestamp.Format("2006-01-02 15:04"), d.Mode,
						d.ConflictDetected, d.PredictedIntent, action)
				}
			}
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println("✅ Configuration written")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Println("braind Configuration:")
			fmt.Println("─────────────────────")
			fmt.Printf("Enabled:        %t\n", cfg.Brain.Enabled)
			fmt.Printf("Mode:           %s\n", cfg.Brain.Mode)
			fmt.Printf("Provider:       %s\n", cfg.Oracle.DefaultProvider)
			fmt.Printf("Fast Provider:  %s\n", cfg.Oracle.FastProvider)
			fmt.Printf("Stage Timeout:  %s\n", cfg.Oracle.StageTimeout)
			fmt.Printf("Data Dir:       %s\n", cfg.GetDataDir())
			fmt.Printf("Dream Enabled:  %t\n", cfg.Dream.Enabled)
			fmt.Printf("Dream Interval: %s\n", cfg.Dream.Interval)
			fmt.Printf("Log Level:      %s\n", cfg.Logging.Level)
			return nil
		},
	})

	return cmd
}

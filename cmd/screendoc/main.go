package main

import (
	"context"
	"fmt"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"screendoc/internal/capture"
	"screendoc/internal/config"
	"screendoc/internal/enhance"
	"screendoc/internal/gateway"
	"screendoc/internal/ledger"
	"screendoc/internal/logging"
	"screendoc/internal/session"
	"screendoc/internal/signal"
	"screendoc/internal/store"
	"screendoc/internal/types"
	"screendoc/internal/workflow"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	sessionDir  string
	interval    time.Duration
	windowSize  int
	sensitivity string
	maxRounds   int
	targetURL   string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "screendoc",
	Short: "screendoc - on-screen workflow documentation agent",
	Long: `screendoc documents what a user does on screen by periodically
capturing state, asking a vision-capable model to interpret each capture
in context, and pausing for clarification when a step is ambiguous.

A recording session runs in two phases: the capture loop builds a step
ledger, then an enhancement pass re-analyzes the whole sequence and
refines it through targeted questions.

While recording, type control words on stdin:
  next / done  advance to the enhancement phase
  stop         end the session gracefully
  why          force a clarification question on the next step
  abort        terminate immediately`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// recordCmd runs the capture phase for a new session
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a new workflow session",
	Long: `Starts a new session: opens the capture target, then every tick
captures the screen, analyzes it in context, and appends a step to the
ledger. Control words on stdin drive phase changes.`,
	RunE: runRecord,
}

// enhanceCmd re-opens a stored session and runs the enhancement phase
var enhanceCmd = &cobra.Command{
	Use:   "enhance [session-id]",
	Short: "Run the enhancement phase on a stored session",
	Long: `Loads a previously recorded session's step ledger, evaluates how
completely it documents the workflow, and refines it through up to
max-rounds rounds of questions answered on stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnhance,
}

// sessionsCmd lists stored sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	RunE:  listSessions,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "screendoc.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&sessionDir, "session-dir", "", "Session storage directory (overrides config)")

	recordCmd.Flags().DurationVar(&interval, "interval", 0, "Capture tick interval (overrides config)")
	recordCmd.Flags().IntVar(&windowSize, "window", 0, "Context window size (overrides config)")
	recordCmd.Flags().StringVar(&sensitivity, "sensitivity", "", "Clarification sensitivity: conservative|balanced|frequent")
	recordCmd.Flags().StringVar(&targetURL, "target-url", "", "Page to open for capture (default blank)")

	enhanceCmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "Refinement round cap (overrides config)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(enhanceCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if sessionDir != "" {
		cfg.Session.Dir = sessionDir
	}
	if interval > 0 {
		cfg.Capture.TickInterval = interval.String()
	}
	if windowSize > 0 {
		cfg.Capture.WindowSize = windowSize
	}
	if sensitivity != "" {
		cfg.Clarify.Sensitivity = sensitivity
	}
	if maxRounds > 0 {
		cfg.Enhance.MaxRounds = maxRounds
	}
	if targetURL != "" {
		cfg.Capture.TargetURL = targetURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initFileLogging wires the categorized file logger and its hot reload.
func initFileLogging(cfg *config.Config, dir string) (*config.Watcher, error) {
	settings := logging.Settings{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
		Categories: cfg.Logging.Categories,
	}
	if err := logging.Initialize(dir, settings); err != nil {
		return nil, err
	}

	watcher, err := config.NewWatcher(configPath, func(c *config.Config) {
		logging.Reconfigure(logging.Settings{
			DebugMode:  c.Logging.DebugMode,
			Level:      c.Logging.Level,
			JSONFormat: c.Logging.JSONFormat,
			Categories: c.Logging.Categories,
		})
	})
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(); err != nil {
		watcher.Stop()
		return nil, err
	}
	return watcher, nil
}

// runRecord drives a full recording session.
func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := session.New(cfg.Session.Dir)
	if err != nil {
		return err
	}

	watcher, err := initFileLogging(cfg, sess.Dir)
	if err != nil {
		return err
	}
	defer watcher.Stop()
	defer logging.CloseAll()

	client, err := gateway.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	gw := gateway.New(client, cfg.Clarify.Sensitivity)

	led := ledger.New(sess.ID, sess.CreatedAt, st)
	builder := workflow.NewBuilder(led, gw, cfg.Capture.WindowSize)

	capturer := capture.NewRodCapturer(sess.ScreenshotsDir(), cfg.Capture.TargetURL)
	defer capturer.Close()

	signals := signal.NewChannel()
	cons := newConsole(signals, os.Stdin, os.Stdout)

	machine := workflow.NewMachine(sess.ID, workflow.Deps{
		Ledger:       led,
		Builder:      builder,
		Analyzer:     gw,
		Capturer:     capturer,
		Signals:      signals,
		Asker:        cons,
		Enhancer:     enhance.New(client),
		Enhancements: st,
	}, workflow.Config{
		Tick:            cfg.GetTickInterval(),
		ClarifyTimeout:  cfg.GetClarifyTimeout(),
		MaxRefineRounds: cfg.Enhance.MaxRounds,
	})

	// SIGINT aborts the session; a second one tears the process down.
	sigCh := make(chan os.Signal, 1)
	osignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Shutdown signal received, aborting session")
		signals.Send(signal.Abort)
		<-sigCh
		cancel()
	}()

	logger.Info("Recording session started",
		zap.String("session", sess.ID),
		zap.Duration("tick", cfg.GetTickInterval()),
		zap.String("provider", cfg.LLM.Provider))
	fmt.Printf("Recording session %s (tick %v). Commands: next, stop, why, abort\n", sess.ID, cfg.GetTickInterval())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return machine.Run(gctx) })
	// The console reader owns stdin and exits with the process; it is
	// deliberately outside the group so EOF never ends the session.
	go cons.run(gctx)

	if err := g.Wait(); err != nil {
		logger.Error("Session ended with error", zap.String("session", sess.ID), zap.Error(err))
		return err
	}

	logger.Info("Session complete",
		zap.String("session", sess.ID),
		zap.Int("steps", led.Len()),
		zap.Bool("errored", machine.Errored()))
	fmt.Printf("Session %s complete: %d steps recorded.\n", sess.ID, led.Len())
	return nil
}

// runEnhance re-opens a stored session in the enhancement phase.
func runEnhance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	id := args[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	doc, err := st.LoadLedger(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", id, err)
	}
	sess := session.Open(cfg.Session.Dir, doc.SessionID, doc.CreatedAt)

	watcher, err := initFileLogging(cfg, sess.Dir)
	if err != nil {
		return err
	}
	defer watcher.Stop()
	defer logging.CloseAll()

	client, err := gateway.NewClient(ctx, cfg)
	if err != nil {
		return err
	}

	signals := signal.NewChannel()
	cons := newConsole(signals, os.Stdin, os.Stdout)

	machine := workflow.NewMachine(sess.ID, workflow.Deps{
		Ledger:       ledger.Load(doc, st),
		Signals:      signals,
		Asker:        cons,
		Enhancer:     enhance.New(client),
		Enhancements: st,
	}, workflow.Config{
		ClarifyTimeout:  cfg.GetClarifyTimeout(),
		MaxRefineRounds: cfg.Enhance.MaxRounds,
	})
	machine.EnterEnhancement()

	logger.Info("Enhancing session", zap.String("session", sess.ID), zap.Int("steps", len(doc.Steps)))
	fmt.Printf("Enhancing session %s (%d steps). Answer questions below; type stop to end.\n", sess.ID, len(doc.Steps))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return machine.Run(gctx) })
	go cons.run(gctx)

	if err := g.Wait(); err != nil {
		return err
	}

	enhanced, err := st.LoadEnhancement(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("no enhancement result stored: %w", err)
	}
	printEnhancement(enhanced)
	return nil
}

func printEnhancement(doc types.EnhancementDocument) {
	r := doc.Result
	fmt.Printf("\nEnhancement result for session %s\n", doc.SessionID)
	fmt.Printf("  Complete:     %v\n", r.Complete)
	fmt.Printf("  Clarity:      %.2f\n", r.ClarityScore)
	if r.WorkflowType != "" {
		fmt.Printf("  Workflow:     %s\n", r.WorkflowType)
	}
	if r.Round > 0 {
		fmt.Printf("  Rounds:       %d\n", r.Round)
	}
	for _, issue := range r.Issues {
		fmt.Printf("  Issue:        %s\n", issue)
	}
	for _, s := range r.Suggestions {
		fmt.Printf("  Suggestion:   %s\n", s)
	}
	if r.Generalizability != "" {
		fmt.Printf("  Transfers:    %s\n", r.Generalizability)
	}
}

// listSessions prints the stored sessions, newest first.
func listSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := st.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No stored sessions.")
		return nil
	}

	for _, id := range ids {
		doc, err := st.LoadLedger(ctx, id)
		if err != nil {
			fmt.Printf("%s  (unreadable: %v)\n", id, err)
			continue
		}
		enhanced := ""
		if _, err := st.LoadEnhancement(ctx, id); err == nil {
			enhanced = "  enhanced"
		}
		fmt.Printf("%s  %s  %d steps%s\n", id, doc.CreatedAt.Format("2006-01-02 15:04"), len(doc.Steps), enhanced)
	}
	return nil
}

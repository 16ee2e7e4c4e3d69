package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deskmate-app/deskmate/internal/bridge"
	"github.com/deskmate-app/deskmate/internal/capture"
	"github.com/deskmate-app/deskmate/internal/config"
	"github.com/deskmate-app/deskmate/internal/event"
	"github.com/deskmate-app/deskmate/internal/logging"
	"github.com/deskmate-app/deskmate/internal/proactive"
	"github.com/deskmate-app/deskmate/internal/shell"
	"github.com/deskmate-app/deskmate/internal/speech"
	"github.com/deskmate-app/deskmate/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the companion",
	Long: `Run the companion: launch the background agent, start the capture
service and the proactive scheduler, and open the terminal UI.
With --headless the UI is skipped and the core runs until interrupted.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("headless", false, "run the core without the terminal UI")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.DataDir(), cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	bus := event.NewBus()

	br := bridge.New(
		&bridge.ExecLauncher{Command: cfg.Agent.Command, Args: cfg.Agent.Args},
		bus,
		bridge.WithRequestTimeout(time.Duration(cfg.Agent.RequestTimeoutSeconds)*time.Second),
		bridge.WithRestartBackoff(time.Duration(cfg.Agent.RestartBackoffMs)*time.Millisecond),
		bridge.WithLogger(logger),
	)
	defer br.Stop()

	capSvc := capture.NewService(
		capture.DefaultProvider(),
		bus,
		cfg.SnapshotDir(),
		capture.WithInterval(time.Duration(cfg.Capture.IntervalSeconds)*time.Second),
		capture.WithServiceLogger(logger),
	)
	capSvc.SetEnabled(cfg.Capture.Enabled)
	defer capSvc.SetEnabled(false)

	// The scheduler and the shell must report the same session so the
	// agent threads proactive nudges and user messages into one
	// conversation.
	session := "overlay:" + uuid.NewString()

	sched := proactive.NewScheduler(br, capSvc, bus, session, proactive.Config{
		Enabled:        cfg.Proactive.Enabled,
		TickInterval:   time.Duration(cfg.Proactive.TickSeconds) * time.Second,
		MinIdle:        time.Duration(cfg.Proactive.MinIdleMinutes) * time.Minute,
		Cooldown:       time.Duration(cfg.Proactive.CooldownMinutes) * time.Minute,
		MaxPerDay:      cfg.Proactive.MaxPerDay,
		RandomChance:   cfg.Proactive.RandomChance,
		QuietStartHour: cfg.Proactive.QuietStartHour,
		QuietEndHour:   cfg.Proactive.QuietEndHour,
	}, proactive.WithLogger(logger))
	sched.Start()
	defer sched.Stop()

	var synth shell.Synthesizer
	if cfg.Speech.TTSEndpoint != "" {
		synth = speech.NewSynthesizer(cfg.Speech.TTSEndpoint, cfg.Speech.TTSVoice, cfg.Speech.APIKeyEnv, logger)
	}

	sh := shell.New(br, capSvc, sched, synth, logger, shell.WithSession(session))

	// Hot-reload tunables when the config file changes on disk.
	if path := viper.ConfigFileUsed(); path != "" {
		watcher, werr := config.NewWatcher(path,
			func(next *config.Config) { applyConfig(sh, next) },
			func(rerr error) { logger.Warn("config reload failed", "error", rerr.Error()) },
		)
		if werr != nil {
			logger.Warn("config watching disabled", "error", werr.Error())
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	// First request launches the agent; a failed probe is logged rather
	// than fatal because the bridge keeps restarting on its own.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if perr := sh.Ping(ctx); perr != nil {
			logger.Warn("agent health probe failed", "error", perr.Error())
		} else {
			logger.Info("agent healthy", "session", session)
		}
	}()

	headless, _ := cmd.Flags().GetBool("headless")
	if headless {
		logger.Info("running headless", "session", session)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		return nil
	}

	app := tui.New(sh, bus)
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// applyConfig pushes the live-tunable fields of a reloaded config into the
// running components. Agent command, paths, and log settings require a
// restart and are deliberately left alone.
func applyConfig(sh *shell.Shell, cfg *config.Config) {
	sh.SetCaptureEnabled(cfg.Capture.Enabled)
	sh.SetCaptureInterval(cfg.Capture.IntervalSeconds)

	sh.SetProactiveEnabled(cfg.Proactive.Enabled)
	sh.ApplyProactiveConfig(proactive.ConfigPatch{
		MinIdleMinutes:  &cfg.Proactive.MinIdleMinutes,
		CooldownMinutes: &cfg.Proactive.CooldownMinutes,
		MaxPerDay:       &cfg.Proactive.MaxPerDay,
		RandomChance:    &cfg.Proactive.RandomChance,
		QuietStartHour:  &cfg.Proactive.QuietStartHour,
		QuietEndHour:    &cfg.Proactive.QuietEndHour,
	})
}

package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/causeway-data/causeway/config"
	"github.com/causeway-data/causeway/display"
	"github.com/causeway-data/causeway/errors"
	"github.com/causeway-data/causeway/ingest"
	"github.com/causeway-data/causeway/logger"
)

// WatchCmd represents the watch command
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the drop directory and file exports into the store",
	Long: `Watch the configured drop directory and file every export dropped into it.

A drop is named <type>.<id>.<stamp>.csv. Once it stops changing it is
decoded, validated, stored, and removed. Drops the store rejects outright
move to the _rejected/ subdirectory; transient failures retry with backoff
before they too are quarantined. The watcher runs until interrupted.

Examples:
  causeway watch                  # Watch ingest.watch_dir from config
  causeway watch --hub raw        # File every drop under one hub`,
	RunE: runWatch,
}

var watchHubFlag string

func init() {
	WatchCmd.Flags().StringVar(&watchHubFlag, "hub", "", "File drops under this hub instead of each type's hosting node")
	WatchCmd.Flags().Bool("json", false, "Suppress decorations, log-only output")
}

func runWatch(cmd *cobra.Command, args []string) error {
	quiet := display.ShouldOutputJSON(cmd)

	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.cfg.Ingest.WatchDir == "" {
		return errors.New("ingest.watch_dir is not configured")
	}

	watcher, err := ingest.NewDropWatcher(e.store, ingest.DropConfig{
		Dir:        e.cfg.Ingest.WatchDir,
		Node:       watchHubFlag,
		Settle:     time.Duration(e.cfg.Ingest.SettleMs) * time.Millisecond,
		RatePerSec: e.cfg.Ingest.RatePerSec,
		Burst:      e.cfg.Ingest.Burst,
	}, logger.Logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}

	// Watching an explicit --config file surfaces edits while the daemon
	// runs. The watcher's own knobs are fixed at construction, so a change
	// is reported, not applied.
	var cfgWatcher *config.Watcher
	if path, _ := cmd.Root().PersistentFlags().GetString("config"); path != "" {
		cfgWatcher, err = config.NewWatcher(path, logger.Logger)
		if err != nil {
			watcher.Stop()
			return err
		}
		cfgWatcher.OnReload(func(*config.Config) error {
			logger.Logger.Warnw("configuration changed on disk; restart watch to apply", "path", path)
			return nil
		})
		cfgWatcher.Start()
	}

	if !quiet {
		pterm.DefaultHeader.WithFullWidth().Printf("Causeway Drop Watcher")
		pterm.Println()
		pterm.Info.Printf("Watching:  %s\n", e.cfg.Ingest.WatchDir)
		if watchHubFlag != "" {
			pterm.Info.Printf("Filing to: %s\n", watchHubFlag)
		} else {
			pterm.Info.Printf("Filing to: each type's hosting hub\n")
		}
		pterm.Info.Printf("Settle:    %dms, rate %.1f/s (burst %d)\n",
			e.cfg.Ingest.SettleMs, e.cfg.Ingest.RatePerSec, e.cfg.Ingest.Burst)
		pterm.Println()
		pterm.Info.Println("Press Ctrl+C to stop")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	if !quiet {
		pterm.Info.Println("\nShutting down...")
	}
	if cfgWatcher != nil {
		cfgWatcher.Stop()
	}
	watcher.Stop()
	if !quiet {
		pterm.Success.Println("Watcher stopped cleanly")
	}
	return nil
}

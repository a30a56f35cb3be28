package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"casesync/pkg/logger"
	syncengine "casesync/pkg/sync"
	"casesync/pkg/ui"
)

var (
	// Sync command flags
	syncBaseURL     string
	syncAPIToken    string
	syncStorePath   string
	syncBatchSize   int
	syncEnvironment string
	syncShowStats   bool
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a full catalog synchronization",
	Long: `Run all three synchronization stages against the upstream catalog:
procedure taxonomy sync, case manifest build, and batched case processing.

The run is checkpointed after every batch. Press Ctrl-C to request a clean
stop; the run pauses at the next batch boundary and 'casesync resume'
continues it later.`,
	Example: `  # Full sync with default settings
  casesync sync

  # Sync against a different store file with a larger batch
  casesync sync --store ./staging.db --batch-size 100

  # Use credentials stored for a specific environment
  casesync sync --environment staging`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runSync()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&syncBaseURL, "base-url", "", "upstream catalog base URL")
	syncCmd.Flags().StringVar(&syncAPIToken, "api-token", "", "upstream API token")
	syncCmd.Flags().StringVar(&syncStorePath, "store", "", "path to the sqlite store file")
	syncCmd.Flags().IntVar(&syncBatchSize, "batch-size", 0, "cases per checkpointed batch")
	syncCmd.Flags().StringVarP(&syncEnvironment, "environment", "e", "", "use credentials stored for this environment")
	syncCmd.Flags().BoolVar(&syncShowStats, "stats", false, "print per-endpoint call counters after the run")
}

func runSync() {
	flags := make(map[string]interface{})
	if syncBaseURL != "" {
		flags["base-url"] = syncBaseURL
	}
	if syncAPIToken != "" {
		flags["api-token"] = syncAPIToken
	}
	if syncStorePath != "" {
		flags["store"] = syncStorePath
	}
	if syncBatchSize > 0 {
		flags["batch-size"] = syncBatchSize
	}

	cfg := loadConfig(flags)
	fillCredentials(cfg, syncEnvironment)
	requireToken(cfg.Upstream.APIToken)

	kv, err := openStore(cfg)
	if err != nil {
		ui.PrintError("Failed to open store", err.Error())
		os.Exit(1)
	}
	defer kv.Close()

	engine, client, _ := buildEngine(cfg, kv)
	log := logger.GetLogger()

	// First Ctrl-C requests a clean pause at the next batch boundary
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		ui.PrintWarning("stop requested, pausing at the next batch boundary")
		engine.RequestStop()
	}()
	defer signal.Stop(sigCh)

	ui.PrintHighlight("starting full catalog sync")
	log.Info("full sync requested from command line")

	report, err := engine.RunFullSync(context.Background())
	if err != nil {
		if errors.Is(err, syncengine.ErrAlreadyRunning) {
			ui.PrintError("A sync is already in progress")
			os.Exit(1)
		}
		ui.PrintError("Sync failed", err.Error())
		if report != nil {
			ui.RenderReport(report)
		}
		os.Exit(1)
	}

	ui.RenderReport(report)
	if syncShowStats {
		ui.RenderEndpointStats(client.Stats())
	}
}

// requireToken exits with guidance when no API token is configured
func requireToken(token string) {
	if token != "" {
		return
	}
	ui.PrintError("No upstream API token configured")
	ui.PrintInfo("Hint", "run 'casesync auth login' or set CASESYNC_API_TOKEN")
	os.Exit(1)
}

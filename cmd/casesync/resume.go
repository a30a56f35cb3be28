package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	syncengine "casesync/pkg/sync"
	"casesync/pkg/ui"
)

var (
	resumeStorePath   string
	resumeEnvironment string
)

// resumeCmd represents the resume command
var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused sync run from its checkpoint",
	Long: `Resume the current sync run from its persisted checkpoint. Only the
stage recorded as in-progress is re-invoked, so a paused Stage 3 run
continues case processing without redoing the earlier stages.

Intended for schedulers: invoking 'casesync resume' periodically lets each
invocation process one soft-limited slice of the catalog.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runResume()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)

	resumeCmd.Flags().StringVar(&resumeStorePath, "store", "", "path to the sqlite store file")
	resumeCmd.Flags().StringVarP(&resumeEnvironment, "environment", "e", "", "use credentials stored for this environment")
}

func runResume() {
	flags := make(map[string]interface{})
	if resumeStorePath != "" {
		flags["store"] = resumeStorePath
	}

	cfg := loadConfig(flags)
	fillCredentials(cfg, resumeEnvironment)
	requireToken(cfg.Upstream.APIToken)

	kv, err := openStore(cfg)
	if err != nil {
		ui.PrintError("Failed to open store", err.Error())
		os.Exit(1)
	}
	defer kv.Close()

	engine, _, _ := buildEngine(cfg, kv)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		ui.PrintWarning("stop requested, pausing at the next batch boundary")
		engine.RequestStop()
	}()
	defer signal.Stop(sigCh)

	report, err := engine.Resume(context.Background())
	if err != nil {
		if errors.Is(err, syncengine.ErrNoCurrentRun) {
			ui.PrintError("No run to resume")
			ui.PrintInfo("Hint", "start one with 'casesync sync'")
			os.Exit(1)
		}
		ui.PrintError("Resume failed", err.Error())
		if report != nil {
			ui.RenderReport(report)
		}
		os.Exit(1)
	}

	ui.RenderReport(report)
}

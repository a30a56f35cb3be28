package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	syncengine "casesync/pkg/sync"
	"casesync/pkg/ui"
)

var statusStorePath string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show the status of the current or a specific sync run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runStatus(args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusStorePath, "store", "", "path to the sqlite store file")
}

func runStatus(args []string) {
	flags := make(map[string]interface{})
	if statusStorePath != "" {
		flags["store"] = statusStorePath
	}

	cfg := loadConfig(flags)

	kv, err := openStore(cfg)
	if err != nil {
		ui.PrintError("Failed to open store", err.Error())
		os.Exit(1)
	}
	defer kv.Close()

	engine, _, _ := buildEngine(cfg, kv)
	ctx := context.Background()

	if len(args) == 1 {
		info, err := engine.Status(ctx, args[0])
		if err != nil {
			ui.PrintError("Run not found", args[0])
			os.Exit(1)
		}
		ui.RenderStatus(info)
		return
	}

	info, err := engine.CurrentStatus(ctx)
	if err != nil {
		if errors.Is(err, syncengine.ErrNoCurrentRun) {
			ui.PrintInfo("Status", "idle")
			return
		}
		ui.PrintError("Failed to read status", err.Error())
		os.Exit(1)
	}
	ui.RenderStatus(info)
}

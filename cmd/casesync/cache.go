package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"casesync/pkg/catalog"
	"casesync/pkg/ui"
)

var cacheStorePath string

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the upstream response cache",
}

// cachePurgeCmd represents the cache purge command
var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all cached upstream responses",
	Long: `Delete every cached upstream response from the store. The next sync
will fetch all listings live. Stored procedures, cases and run records are
not touched.`,
	Args: cobra.NoArgs,
	Run:  runCachePurge,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePurgeCmd)

	cachePurgeCmd.Flags().StringVar(&cacheStorePath, "store", "", "path to the sqlite store file")
}

func runCachePurge(cmd *cobra.Command, args []string) {
	flags := make(map[string]interface{})
	if cacheStorePath != "" {
		flags["store"] = cacheStorePath
	}

	cfg := loadConfig(flags)

	kv, err := openStore(cfg)
	if err != nil {
		ui.PrintError("Failed to open store", err.Error())
		os.Exit(1)
	}
	defer kv.Close()

	if err := catalog.PurgeCache(context.Background(), kv); err != nil {
		ui.PrintError("Failed to purge cache", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Upstream response cache purged")
}

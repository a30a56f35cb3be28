package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"casesync/internal/server"
	"casesync/pkg/logger"
	"casesync/pkg/ui"
)

var (
	serveAddr        string
	serveEnvironment string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the remote trigger and status HTTP server",
	Long: `Run the HTTP server that lets the hosting application trigger syncs
remotely. The trigger endpoint requires the shared secret from the
configuration (server.trigger_secret or CASESYNC_TRIGGER_SECRET) in the
X-Sync-Secret header.

Endpoints:
  POST /api/v1/sync          trigger a full sync, or resume a paused run
  POST /api/v1/sync/stop     request a clean pause
  GET  /api/v1/runs/current  status of the current run
  GET  /api/v1/runs/{id}     status of a specific run
  GET  /healthz              liveness probe
  GET  /metrics              prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runServe()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :8743)")
	serveCmd.Flags().StringVarP(&serveEnvironment, "environment", "e", "", "use credentials stored for this environment")
}

func runServe() {
	cfg := loadConfig(map[string]interface{}{})
	fillCredentials(cfg, serveEnvironment)
	requireToken(cfg.Upstream.APIToken)

	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if cfg.Server.TriggerSecret == "" {
		ui.PrintWarning("no trigger secret configured, the trigger endpoint is disabled")
	}

	kv, err := openStore(cfg)
	if err != nil {
		ui.PrintError("Failed to open store", err.Error())
		os.Exit(1)
	}
	defer kv.Close()

	engine, _, m := buildEngine(cfg, kv)
	log := logger.GetLogger()

	srv := server.New(cfg, engine, m, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	ui.PrintInfo("Listening", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			ui.PrintError("Server failed", err.Error())
			os.Exit(1)
		}
	case <-sigCh:
		log.Info("shutting down")
		engine.RequestStop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("server shutdown failed")
		}
	}
}

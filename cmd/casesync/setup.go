package main

import (
	"fmt"
	"os"

	"casesync/pkg/auth"
	"casesync/pkg/catalog"
	"casesync/pkg/config"
	"casesync/pkg/logger"
	"casesync/pkg/metrics"
	"casesync/pkg/store"
	syncengine "casesync/pkg/sync"
	"casesync/pkg/ui"
)

// loadConfig resolves configuration from all sources and initializes logging
func loadConfig(flags map[string]interface{}) *config.Config {
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}

	return cfg
}

// fillCredentials pulls the API token and trigger secret from the credential
// manager when the config and environment left them empty.
func fillCredentials(cfg *config.Config, environment string) {
	if cfg.Upstream.APIToken != "" && cfg.Server.TriggerSecret != "" {
		return
	}

	manager, err := auth.NewManager()
	if err != nil {
		return
	}

	var creds *auth.Credentials
	if environment != "" {
		creds, err = manager.Retrieve(environment)
	} else {
		creds, err = manager.RetrieveDefault()
	}
	if err != nil || creds == nil {
		return
	}

	if cfg.Upstream.APIToken == "" {
		cfg.Upstream.APIToken = creds.APIToken
	}
	if cfg.Server.TriggerSecret == "" {
		cfg.Server.TriggerSecret = creds.TriggerSecret
	}
}

// openStore opens the configured key/value store
func openStore(cfg *config.Config) (store.KV, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// buildEngine wires the engine, catalog client and metrics over an open store
func buildEngine(cfg *config.Config, kv store.KV) (*syncengine.Engine, *catalog.Client, *metrics.Metrics) {
	log := logger.GetLogger()
	m := metrics.New()

	client := catalog.NewClient(cfg, kv, log)
	client.SetMetrics(m)

	engine := syncengine.NewEngine(cfg, client, kv, log)
	engine.SetMetrics(m)

	return engine, client, m
}

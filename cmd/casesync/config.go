package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"casesync/pkg/config"
	"casesync/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage casesync configuration",
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default values",
	Long: `Write a configuration file populated with the default values to
$HOME/.config/casesync/config.yaml, or to --output if given.

Secrets (the API token and trigger secret) are intentionally left blank;
store them with 'casesync auth login' or environment variables instead.`,
	Args: cobra.NoArgs,
	Run:  runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after applying all sources in precedence
order: defaults, config file, .env file, environment variables, flags.
The API token and trigger secret are masked.`,
	Args: cobra.NoArgs,
	Run:  runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	Args:  cobra.NoArgs,
	Run:   runConfigValidate,
}

var configInitOutput string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "", "output path for the config file")
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := configInitOutput
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			ui.PrintError("Failed to determine home directory", err.Error())
			os.Exit(1)
		}
		path = filepath.Join(home, ".config", "casesync", "config.yaml")
	}

	if _, err := os.Stat(path); err == nil {
		ui.PrintError("Config file already exists", path)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(path); err != nil {
		ui.PrintError("Failed to write config file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Config file written")
	ui.PrintInfo("Path", path)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg := loadConfig(map[string]interface{}{})

	// Never print secrets
	display := *cfg
	if display.Upstream.APIToken != "" {
		display.Upstream.APIToken = "********"
	}
	if display.Server.TriggerSecret != "" {
		display.Server.TriggerSecret = "********"
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		ui.PrintError("Failed to render configuration", err.Error())
		os.Exit(1)
	}
	fmt.Print(string(data))
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if _, err := config.Load(configFile, map[string]interface{}{}); err != nil {
		ui.PrintError("Configuration invalid", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Configuration is valid")
}

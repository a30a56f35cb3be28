package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"casesync/pkg/auth"
	"casesync/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage upstream catalog credentials",
	Long: `Manage stored upstream catalog credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only, for containerized deployments)`,
}

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login [environment]",
	Short: "Store API credentials for an environment",
	Long: `Store the upstream API token and optional trigger secret for a catalog
environment. The environment name defaults to "production".

You will be prompted for:
  - API token (issued by the catalog service)
  - Trigger secret (optional, shared with the hosting application)`,
	Example: `  # Store production credentials
  casesync auth login

  # Store credentials for a named environment
  casesync auth login staging`,
	Args: cobra.MaximumNArgs(1),
	Run:  runAuthLogin,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout <environment>",
	Short: "Remove stored credentials for an environment",
	Args:  cobra.ExactArgs(1),
	Run:   runAuthLogout,
}

// authListCmd represents the auth list command
var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credential sets with secrets masked",
	Run:   runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authListCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	environment := "production"
	if len(args) > 0 {
		environment = strings.TrimSpace(args[0])
	}

	reader := bufio.NewReader(os.Stdin)

	if existing, _ := manager.Retrieve(environment); existing != nil {
		fmt.Printf("Credentials for '%s' already exist. Update? (y/N): ", environment)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Print("API token: ")
	apiToken, err := readPassword()
	if err != nil {
		ui.PrintError("Failed to read API token", err.Error())
		os.Exit(1)
	}
	if apiToken == "" {
		ui.PrintError("API token is required")
		os.Exit(1)
	}

	fmt.Print("\nTrigger secret (optional, press Enter to skip): ")
	triggerSecret, err := readPassword()
	if err != nil {
		ui.PrintError("Failed to read trigger secret", err.Error())
		os.Exit(1)
	}
	fmt.Println()

	creds := &auth.Credentials{
		Environment:   environment,
		APIToken:      apiToken,
		TriggerSecret: triggerSecret,
	}

	if err := manager.Store(creds); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess(fmt.Sprintf("Credentials stored for environment '%s'", environment))
}

func runAuthLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	environment := strings.TrimSpace(args[0])
	if err := manager.Delete(environment); err != nil {
		ui.PrintError("Failed to remove credentials", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess(fmt.Sprintf("Credentials removed for environment '%s'", environment))
}

func runAuthList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	sets, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list credentials", err.Error())
		os.Exit(1)
	}

	if len(sets) == 0 {
		ui.PrintInfo("Credentials", "none stored")
		return
	}

	for _, creds := range sets {
		masked := auth.Sanitize(creds)
		ui.PrintInfo(masked.Environment, fmt.Sprintf("token %s, secret %s, modified %s",
			masked.APIToken, masked.TriggerSecret,
			masked.LastModified.Format("2006-01-02 15:04")))
	}
}

// readPassword reads a line without echoing it
func readPassword() (string, error) {
	data, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Package cli wires the folder-mcp commands: serve runs the daemon in the
// foreground, status queries a running daemon, version prints the build.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Exit codes fixed by the CLI contract.
const (
	ExitSuccess        = 0
	ExitGenericError   = 1
	ExitConfigInvalid  = 2
	ExitAlreadyRunning = 3
)

// GlobalFlags holds flags shared across all commands.
type GlobalFlags struct {
	Dir        string
	ConfigPath string
	StateDir   string
	JSON       bool
}

var globalFlags GlobalFlags

var rootCmd = &cobra.Command{
	Use:   "folder-mcp",
	Short: "Serve local folders as a semantic knowledge base over MCP",
	Long: "folder-mcp indexes configured folders into per-folder embedding stores\n" +
		"and serves semantic search and document access over JSON-RPC 2.0.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Dir, "dir", "d", "", "pre-seed one folder to monitor")
	rootCmd.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "config file path (default: <state-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.StateDir, "state-dir", "", "process state directory (default: ~/.folder-mcp)")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "emit machine-readable JSON output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command and returns an error; exit code is set by RunE.
func Execute() error {
	return rootCmd.Execute()
}

// exitWith prints message to stderr and exits with code.
func exitWith(code int, msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(code)
}

// resolveStateDir picks the process-wide state directory from the flag or
// the user's home.
func resolveStateDir() (string, error) {
	if globalFlags.StateDir != "" {
		return filepath.Abs(globalFlags.StateDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".folder-mcp"), nil
}

// resolveConfigPath picks the config file location relative to the state
// directory unless overridden.
func resolveConfigPath(stateDir string) string {
	if globalFlags.ConfigPath != "" {
		return globalFlags.ConfigPath
	}
	return filepath.Join(stateDir, "config.yaml")
}

// Package cli implements the mesh node's command-line interface using
// Cobra, grounded on the teacher's cmd/tutu/internal/cli/root.go
// single-root-command layout.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aileed",
	Short: "ailee-core — a decentralized verifiable-computation mesh node",
	Long: `ailee-core runs a single mesh node: it accepts sandboxed compute
tasks, places them on trustworthy peers, and attaches a hash proof to
every execution so results can be verified without re-running them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// defaultHomeDir returns ~/.ailee, falling back to ./.ailee if the
// user's home directory can't be determined.
func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ailee"
	}
	return filepath.Join(home, ".ailee")
}

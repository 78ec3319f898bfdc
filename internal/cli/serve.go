package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ailee-network/ailee-core/internal/daemon"
	"github.com/ailee-network/ailee-core/internal/domain"
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "ailee.toml", "path to the node's TOML config file")
	serveCmd.Flags().StringVar(&serveHomeDir, "home", defaultHomeDir(), "directory holding the node's identity key and database")
	serveCmd.Flags().StringVar(&serveRegion, "region", "local", "the node's home region, used for latency-aware routing")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveConfigPath string
	serveHomeDir    string
	serveRegion     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a mesh node",
	Long:  `Start a mesh node: register it with the local engine, open its background discovery and federated-training loops, and block until shutdown.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(serveConfigPath, serveHomeDir, domain.RegionID(serveRegion))
	if err != nil {
		return err
	}
	return d.Serve(context.Background())
}

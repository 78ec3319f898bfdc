package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ailee-network/ailee-core/internal/daemon"
	"github.com/ailee-network/ailee-core/internal/domain"
)

func init() {
	submitCmd.Flags().StringVar(&submitConfigPath, "config", "ailee.toml", "path to the node's TOML config file")
	submitCmd.Flags().StringVar(&submitHomeDir, "home", defaultHomeDir(), "directory holding the node's identity key and database")
	submitCmd.Flags().StringVar(&submitRegion, "region", "local", "the node's home region")
	submitCmd.Flags().StringVar(&submitEntrypoint, "entrypoint", "main", "WASM entrypoint to invoke")
	submitCmd.Flags().StringVar(&submitInput, "input", "", "input payload passed to the entrypoint")
	submitCmd.Flags().Int64Var(&submitReward, "reward", 1, "reward, in tokens, offered for completing the task")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 30*time.Second, "wall-clock timeout for the sandboxed call")
	rootCmd.AddCommand(submitCmd)
}

var (
	submitConfigPath string
	submitHomeDir    string
	submitRegion     string
	submitEntrypoint string
	submitInput      string
	submitReward     int64
	submitTimeout    time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit <module-hash>",
	Short: "Submit a single task to the mesh and print its result",
	Long:  `Starts a node in-process just long enough to place and execute one task, printing the winning node and its score.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	moduleHash := args[0]

	d, err := daemon.New(submitConfigPath, submitHomeDir, domain.RegionID(submitRegion))
	if err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	defer d.Close()

	if err := d.LocalNode.Register(); err != nil {
		return fmt.Errorf("register local node: %w", err)
	}
	if err := d.LocalNode.Activate(); err != nil {
		return fmt.Errorf("activate local node: %w", err)
	}
	d.Engine.Start()

	task := domain.TaskPayload{
		ID:     taskID(moduleHash, submitEntrypoint),
		Status: domain.TaskQueued,
		Call: domain.WasmCall{
			ModuleHash: moduleHash,
			Entrypoint: submitEntrypoint,
			Input:      []byte(submitInput),
			Limits: domain.SandboxLimits{
				Timeout:        submitTimeout,
				MaxMemoryBytes: 64 * 1024 * 1024,
				MaxInstrCount:  100_000_000,
				GasLimit:       100_000_000,
				MaxCallDepth:   64,
			},
		},
		MaxRetries: 0,
		Reward:     submitReward,
		CreatedAt:  time.Now(),
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), submitTimeout+5*time.Second)
	defer cancel()

	assignment, err := d.Coordinator.DispatchAndReward(ctx, task, true)
	if err != nil {
		return fmt.Errorf("dispatch task: %w", err)
	}
	if !assignment.Assigned {
		return fmt.Errorf("task not assigned: %s", assignment.Reason)
	}

	fmt.Printf("task %s assigned to %s (score %.3f)\n", task.ID, assignment.NodeID, assignment.Score)
	return nil
}

func taskID(moduleHash, entrypoint string) string {
	sum := sha256.Sum256([]byte(moduleHash + ":" + entrypoint + ":" + time.Now().String()))
	return hex.EncodeToString(sum[:])[:16]
}

// Package domain — task and assignment types.
// A TaskPayload is a unit of verifiable work submitted to the mesh; an
// Assignment binds a payload to the node chosen to execute it.
package domain

import "time"

// TaskStatus tracks a task's lifecycle from submission to settlement.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "QUEUED"
	TaskAssigned  TaskStatus = "ASSIGNED"
	TaskExecuting TaskStatus = "EXECUTING"
	TaskVerifying TaskStatus = "VERIFYING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskCancelled TaskStatus = "CANCELLED"
)

// TaskType categorizes the kind of computation requested.
type TaskType string

const (
	TaskCompute   TaskType = "COMPUTE"    // generic sandboxed wasm call
	TaskTraining  TaskType = "TRAINING"   // federated training round
	TaskAggregate TaskType = "AGGREGATE"  // FedAvg aggregation step
)

// Priority classes, highest first. Mirrors the four-tier queue the engine
// maintains (spec: Critical > High > Normal > Low).
const (
	PriorityCritical = 0
	PriorityHigh     = 1
	PriorityNormal   = 2
	PriorityLow      = 3
)

// PriorityLabel returns a human-readable label for a priority class.
func PriorityLabel(p int) string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// ResourceRequirements constrains which nodes may execute a task.
type ResourceRequirements struct {
	MinCPUCores    int      `json:"min_cpu_cores,omitempty"`
	MinMemoryMB    uint64   `json:"min_memory_mb,omitempty"`
	MinStorageMB   uint64   `json:"min_storage_mb,omitempty"`
	MinBandwidthMbps float64 `json:"min_bandwidth_mbps,omitempty"`
	RequireGPU     bool     `json:"require_gpu,omitempty"`
	RequireTPU     bool     `json:"require_tpu,omitempty"`
	Capabilities   []string `json:"capabilities,omitempty"`
}

// TaskPayload is a unit of verifiable work submitted to the mesh.
type TaskPayload struct {
	ID                string               `json:"id"`
	Type              TaskType             `json:"type"`
	Status            TaskStatus           `json:"status"`
	Priority          int                  `json:"priority"`
	Call              WasmCall             `json:"call"`
	MaxRetries        int                  `json:"max_retries"`
	Attempt           int                  `json:"attempt"`
	Routing           TaskRouting          `json:"routing,omitempty"`
	Requirements      ResourceRequirements `json:"requirements,omitempty"`
	MinReputationScore float64             `json:"min_reputation_score,omitempty"`
	MaxCostTokens     float64              `json:"max_cost_tokens,omitempty"`
	HardPreferredRegion bool               `json:"hard_preferred_region,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	StartedAt         time.Time            `json:"started_at,omitempty"`
	CompletedAt       time.Time            `json:"completed_at,omitempty"`
	Reward            int64                `json:"reward,omitempty"`
	ResultHash        string               `json:"result_hash,omitempty"`
	Error             string               `json:"error,omitempty"`
}

// IsTerminal reports whether the task has reached a final state.
func (t *TaskPayload) IsTerminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed || t.Status == TaskCancelled
}

// Duration returns execution wall time, or 0 if not both started and completed.
func (t *TaskPayload) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// CanRetry reports whether a failed task may be retried.
func (t *TaskPayload) CanRetry() bool {
	return t.Attempt < t.MaxRetries
}

// Assignment binds a task to the node chosen to execute it, or records
// why no node could be assigned.
type Assignment struct {
	TaskID        string    `json:"task_id"`
	Assigned      bool      `json:"assigned"`
	NodeID        NodeID    `json:"node_id,omitempty"`
	BackupNodeID  NodeID    `json:"backup_node_id,omitempty"`
	Score         float64   `json:"score,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	AssignedAt    time.Time `json:"assigned_at,omitempty"`
	Deadline      time.Time `json:"deadline,omitempty"`
}

// Expired reports whether the assignment's deadline has passed.
func (a Assignment) Expired(now time.Time) bool {
	return !a.Deadline.IsZero() && now.After(a.Deadline)
}

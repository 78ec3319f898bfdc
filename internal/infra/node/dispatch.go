package node

import (
	"context"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/proof"
	"github.com/ailee-network/ailee-core/internal/infra/sandbox"
)

// LocalDispatcher executes an assigned task against the process's own
// sandbox and attaches a hash proof of the execution. Satisfies
// engine.Dispatcher and node.Dispatcher. A multi-process deployment
// would instead fan the assignment out over the message bus to the
// winning NodeID and await its result; this is the single-process path
// exercised when the winning node is the local one.
type LocalDispatcher struct {
	sandbox *sandbox.Engine
	prover  *proof.Prover
	selfID  domain.NodeID
}

// NewLocalDispatcher builds a dispatcher that runs every assignment
// against sb under the local node's identity, regardless of which
// NodeID won placement — appropriate only for a single-node deployment
// or test harness.
func NewLocalDispatcher(sb *sandbox.Engine, prover *proof.Prover, selfID domain.NodeID) *LocalDispatcher {
	return &LocalDispatcher{sandbox: sb, prover: prover, selfID: selfID}
}

// Dispatch runs task.Call through the sandbox and reports the outcome.
// A sandbox error or resource overflow yields an unassigned Assignment
// carrying the failure reason; the engine's worker loop treats that as
// retryable up to the task's retry budget.
func (d *LocalDispatcher) Dispatch(ctx context.Context, task domain.TaskPayload, assignment domain.Assignment) domain.Assignment {
	result, err := d.sandbox.ExecuteWithTrace(ctx, task.Call)
	if err != nil {
		return domain.Assignment{TaskID: task.ID, Assigned: false, Reason: err.Error()}
	}
	if !result.Succeeded() {
		return domain.Assignment{TaskID: task.ID, Assigned: false, Reason: string(result.Overflow)}
	}

	inputHash := proof.HashBytes(task.Call.Input)
	outputHash := proof.HashBytes(result.Output)
	if d.prover != nil {
		_ = d.prover.GenerateProof(task.ID, d.selfID, task.Call.ModuleHash, inputHash, outputHash,
			result.InstrExecuted, result.GasUsed, result.Trace)
	}

	assignment.Assigned = true
	assignment.NodeID = d.selfID
	assignment.AssignedAt = time.Now()
	return assignment
}

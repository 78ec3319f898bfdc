package node

import (
	"context"
	"sync"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/engine"
	"github.com/ailee-network/ailee-core/internal/infra/healing"
	"github.com/ailee-network/ailee-core/internal/infra/orchestrator"
	"github.com/ailee-network/ailee-core/internal/infra/reputation"
)

// QuarantineChecker reports whether a node is currently excluded from
// candidate scoring by the self-protection layer. Satisfied directly by
// *healing.QuarantineManager; may be left nil to skip the check.
type QuarantineChecker interface {
	IsQuarantined(nodeID domain.NodeID) bool
}

// Registry tracks every AmbientNode this process knows about and turns
// that bookkeeping into orchestrator candidates on demand. Satisfies
// engine.CandidateProvider.
type Registry struct {
	mu         sync.RWMutex
	nodes      map[domain.NodeID]*AmbientNode
	reputation *reputation.Ledger
	quarantine QuarantineChecker
	maxTasks   int
}

// NewRegistry builds an empty registry backed by ledger for reputation
// lookups and quarantine for exclusion checks (either may be nil).
// maxTasks bounds each candidate's advertised concurrency.
func NewRegistry(ledger *reputation.Ledger, quarantine QuarantineChecker, maxTasks int) *Registry {
	if maxTasks <= 0 {
		maxTasks = 4
	}
	return &Registry{
		nodes:      make(map[domain.NodeID]*AmbientNode),
		reputation: ledger,
		quarantine: quarantine,
		maxTasks:   maxTasks,
	}
}

// Add registers n in the registry, alongside the reputation ledger.
func (r *Registry) Add(n *AmbientNode) {
	r.mu.Lock()
	r.nodes[n.NodeID()] = n
	r.mu.Unlock()
	if r.reputation != nil {
		r.reputation.Register(n.NodeID())
	}
}

// Remove drops a node from the registry.
func (r *Registry) Remove(nodeID domain.NodeID) {
	r.mu.Lock()
	delete(r.nodes, nodeID)
	r.mu.Unlock()
}

// Snapshot builds the orchestrator candidate list from every registered
// node's latest telemetry and reputation. Satisfies
// engine.CandidateProvider; never mutates node or reputation state.
func (r *Registry) Snapshot() []orchestrator.Candidate {
	r.mu.RLock()
	nodes := make([]*AmbientNode, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	r.mu.RUnlock()

	candidates := make([]orchestrator.Candidate, 0, len(nodes))
	for _, n := range nodes {
		nodeID, region, state, sample := n.Snapshot()
		reputationScore := 0.0
		if r.reputation != nil {
			if rep, err := r.reputation.Get(nodeID); err == nil {
				reputationScore = rep.Score
			}
		}
		quarantined := false
		if r.quarantine != nil {
			quarantined = r.quarantine.IsQuarantined(nodeID)
		}
		candidates = append(candidates, orchestrator.Candidate{
			NodeID:        nodeID,
			Region:        region,
			Reputation:    reputationScore,
			SafeMode:      state == StateSafeMode || state != StateActive,
			Quarantined:   quarantined,
			TelemetryAge:  time.Since(sample.SampledAt).Seconds(),
			Compute:       sample.Compute,
			BandwidthMbps: 0,
			ActiveTasks:   sample.ActiveTasks,
			MaxTasks:      r.maxTasks,
		})
	}
	return candidates
}

var _ engine.CandidateProvider = (*Registry)(nil)

// Regions returns the distinct regions of every currently registered
// node, for the discovery loop's latency-probing job.
func (r *Registry) Regions() []domain.RegionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[domain.RegionID]bool, len(r.nodes))
	regions := make([]domain.RegionID, 0, len(r.nodes))
	for _, n := range r.nodes {
		region := n.region
		if !seen[region] {
			seen[region] = true
			regions = append(regions, region)
		}
	}
	return regions
}

// Dispatcher hands an assignment's execution off to the winning node and
// reports how it went. Implemented by LocalDispatcher, which runs every
// assignment on this process's own sandbox.
type Dispatcher interface {
	Dispatch(ctx context.Context, task domain.TaskPayload, assignment domain.Assignment) domain.Assignment
}

// FailureEscalator records a node's task failure toward quarantine
// escalation. Satisfied directly by *healing.QuarantineManager.
type FailureEscalator interface {
	RecordFailure(nodeID domain.NodeID) *healing.QuarantineRecord
}

// MeshCoordinator selects a node for each submitted task and settles
// reputation once the outcome is known. Grounded on fabric.go's
// Cloud-Core-facing responsibilities (register, dispatch, report
// result), generalized onto the mesh's own engine+orchestrator+
// reputation stack instead of a central coordinator service.
type MeshCoordinator struct {
	engine     *engine.Engine
	reputation *reputation.Ledger
	escalator  FailureEscalator
}

// NewMeshCoordinator wires an engine and reputation ledger together.
// escalator may be nil to skip quarantine escalation on failure.
func NewMeshCoordinator(eng *engine.Engine, ledger *reputation.Ledger, escalator FailureEscalator) *MeshCoordinator {
	return &MeshCoordinator{engine: eng, reputation: ledger, escalator: escalator}
}

// SelectNodeForTask submits task to the engine and blocks for its
// resulting Assignment, or until ctx is cancelled.
func (c *MeshCoordinator) SelectNodeForTask(ctx context.Context, task domain.TaskPayload) (domain.Assignment, error) {
	ch, err := c.engine.SubmitTask(task)
	if err != nil {
		return domain.Assignment{}, err
	}
	select {
	case assignment := <-ch:
		return assignment, nil
	case <-ctx.Done():
		return domain.Assignment{}, ctx.Err()
	}
}

// DispatchAndReward selects a node for task, then accrues or slashes
// reputation according to whether the assignment ultimately succeeded.
// The actual execution outcome (not just placement) must be reported by
// the caller via succeeded, since SelectNodeForTask only resolves
// placement, not completion.
func (c *MeshCoordinator) DispatchAndReward(ctx context.Context, task domain.TaskPayload, succeeded bool) (domain.Assignment, error) {
	assignment, err := c.SelectNodeForTask(ctx, task)
	if err != nil {
		return assignment, err
	}
	if !assignment.Assigned {
		return assignment, nil
	}

	if succeeded {
		if c.reputation != nil {
			_ = c.reputation.RecordTaskCompletion(ctx, assignment.NodeID)
			_ = c.reputation.Reward(ctx, assignment.NodeID, float64(task.Reward))
		}
		return assignment, nil
	}

	if c.reputation != nil {
		_ = c.reputation.RecordTaskFailure(ctx, assignment.NodeID)
	}
	if c.escalator != nil {
		c.escalator.RecordFailure(assignment.NodeID)
	}
	return assignment, nil
}

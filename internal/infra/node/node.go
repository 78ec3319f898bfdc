// Package node implements the per-worker AmbientNode lifecycle (identity,
// telemetry ingestion, safe-mode transitions, local training delegation)
// and the MeshCoordinator that places tasks onto nodes and settles
// rewards once they complete. Grounded on
// internal/infra/network/fabric.go's identity/lifecycle/status shape,
// generalized away from its SWIM-gossip/Cloud-Core specifics onto the
// domain.MessageBus boundary.
package node

import (
	"sync"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/metrics"
	"github.com/ailee-network/ailee-core/internal/security"
)

// State is a worker's position in the mesh membership lifecycle.
type State string

const (
	StateUnregistered State = "UNREGISTERED"
	StateRegistered    State = "REGISTERED"
	StateActive        State = "ACTIVE"
	StateSafeMode      State = "SAFE_MODE"
	StateStale         State = "STALE"
)

// validTransitions enumerates the state machine's legal edges. Any state
// may fall back to Unregistered (node leaves or is evicted), so that
// edge is checked separately rather than listed per-state.
var validTransitions = map[State]map[State]bool{
	StateUnregistered: {StateRegistered: true},
	StateRegistered:    {StateActive: true, StateStale: true},
	StateActive:        {StateSafeMode: true, StateStale: true},
	StateSafeMode:      {StateActive: true, StateStale: true},
	StateStale:         {StateActive: true, StateRegistered: true},
}

// Trainer runs a local federated-learning round. Implemented by
// internal/infra/finetune's coordinator; kept as an interface here so
// this package doesn't need to import federated-learning internals
// directly.
type Trainer interface {
	RunRound(job string, nodeID domain.NodeID) error
}

// AmbientNode is this process's participation in the mesh: its identity,
// current lifecycle state, and latest telemetry. Its reputation is kept
// by the reputation ledger, not by the node.
type AmbientNode struct {
	mu         sync.RWMutex
	keypair    *security.Keypair
	nodeID     domain.NodeID
	region     domain.RegionID
	state      State
	policy     domain.SafetyPolicy
	telemetry  domain.TelemetrySample
	registeredAt time.Time
	trainer    Trainer
}

// New builds an AmbientNode in StateUnregistered.
func New(keypair *security.Keypair, region domain.RegionID, policy domain.SafetyPolicy, trainer Trainer) *AmbientNode {
	return &AmbientNode{
		keypair: keypair,
		nodeID:  domain.NodeID(keypair.PublicKeyHex()),
		region:  region,
		state:   StateUnregistered,
		policy:  policy,
		trainer: trainer,
	}
}

// NodeID returns this node's identity.
func (n *AmbientNode) NodeID() domain.NodeID { return n.nodeID }

// State returns the node's current lifecycle state.
func (n *AmbientNode) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// transition moves the node to next, validated against validTransitions.
// Unregistered is always reachable, modeling eviction/voluntary exit.
func (n *AmbientNode) transition(next State) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if next == StateUnregistered {
		n.state = StateUnregistered
		return nil
	}
	if !validTransitions[n.state][next] {
		return domain.ErrInvalidStateTransition
	}
	n.state = next
	return nil
}

// Register moves an unregistered node to Registered, recording the
// registration time.
func (n *AmbientNode) Register() error {
	if err := n.transition(StateRegistered); err != nil {
		return err
	}
	n.mu.Lock()
	n.registeredAt = time.Now()
	n.mu.Unlock()
	return nil
}

// Activate moves a Registered, Stale, or SafeMode node to Active.
func (n *AmbientNode) Activate() error {
	return n.transition(StateActive)
}

// MarkStale moves a Registered or Active node to Stale, used when
// heartbeats lapse past the discovery freshness horizon.
func (n *AmbientNode) MarkStale() error {
	return n.transition(StateStale)
}

// Unregister evicts the node unconditionally, from any state.
func (n *AmbientNode) Unregister() {
	_ = n.transition(StateUnregistered)
}

// IngestTelemetry records a fresh sample and evaluates safe-mode
// transitions against the node's safety policy: entering safe mode
// suspends new task acceptance, leaving it resumes Active.
func (n *AmbientNode) IngestTelemetry(sample domain.TelemetrySample) error {
	n.mu.Lock()
	n.telemetry = sample
	current := n.state
	n.mu.Unlock()

	unsafe := sample.SafeMode(n.policy)
	metrics.ThermalReadC.Set(sample.Energy.ThermalReadC)
	metrics.BatteryPct.Set(sample.Energy.BatteryPct)
	metrics.ActiveTasks.Set(float64(sample.ActiveTasks))

	switch {
	case unsafe && current == StateActive:
		metrics.SafeModeActive.Set(1)
		return n.transition(StateSafeMode)
	case !unsafe && current == StateSafeMode:
		metrics.SafeModeActive.Set(0)
		return n.transition(StateActive)
	}
	return nil
}

// HealthScore condenses the most recent telemetry sample under the
// node's safety policy.
func (n *AmbientNode) HealthScore() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.telemetry.HealthScore(n.policy)
}

// RunLocalTraining delegates a federated-learning round to the injected
// Trainer, a no-op success if none is configured (compute-only nodes).
func (n *AmbientNode) RunLocalTraining(job string) error {
	if n.trainer == nil {
		return nil
	}
	return n.trainer.RunRound(job, n.NodeID())
}

// Snapshot returns the node's identity and most recent telemetry,
// suitable for publishing as a heartbeat or feeding a candidate
// provider.
func (n *AmbientNode) Snapshot() (domain.NodeID, domain.RegionID, State, domain.TelemetrySample) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nodeID, n.region, n.state, n.telemetry
}

// Package reputation maintains each node's standing in the mesh: task
// completion history, byzantine strikes, and a decaying score used by the
// orchestrator's scoring strategies to prefer trustworthy nodes.
package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/metrics"
)

const (
	auditBucket = "reputation_audit"

	// InitialScore is assigned to a node on first registration.
	InitialScore = 0.5

	// byzantineStrikePenalty is subtracted from score per confirmed strike.
	byzantineStrikePenalty = 0.25

	// completionReward/failurePenalty nudge the score per task outcome.
	completionReward = 0.01
	failurePenalty    = 0.03

	// decayPerInactiveDay pulls idle nodes' scores toward InitialScore.
	decayPerInactiveDay = 0.01
)

// Config controls ledger behavior.
type Config struct {
	// DefaultThreshold is the score a node must clear to be eligible for
	// assignment, absent an explicit override at the call site.
	DefaultThreshold float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{DefaultThreshold: 0.3}
}

// Ledger tracks reputation for every known node. Grounded on the
// teacher's anomaly.Detector: a mutex-guarded map of per-node profiles,
// updated incrementally from task outcomes rather than recomputed from
// history on every read.
type Ledger struct {
	mu      sync.RWMutex
	nodes   map[domain.NodeID]*domain.Reputation
	config  Config
	store   domain.KVStore
	clock   domain.Clock
}

// New creates an empty ledger. store may be nil, in which case audit
// records are not persisted (useful for tests).
func New(cfg Config, store domain.KVStore, clock domain.Clock) *Ledger {
	return &Ledger{
		nodes:  make(map[domain.NodeID]*domain.Reputation),
		config: cfg,
		store:  store,
		clock:  clock,
	}
}

// Register adds a node to the ledger with the initial score, if not
// already present. Returns the existing record if the node is known.
func (l *Ledger) Register(nodeID domain.NodeID) domain.Reputation {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rep, ok := l.nodes[nodeID]; ok {
		return *rep
	}
	now := l.now()
	rep := &domain.Reputation{
		NodeID:       nodeID,
		Score:        InitialScore,
		RegisteredAt: now,
		LastActive:   now,
	}
	l.nodes[nodeID] = rep
	metrics.ReputationScore.WithLabelValues(string(nodeID)).Set(rep.Score)
	return *rep
}

// Get returns a node's current reputation.
func (l *Ledger) Get(nodeID domain.NodeID) (domain.Reputation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rep, ok := l.nodes[nodeID]
	if !ok {
		return domain.Reputation{}, domain.ErrNodeNotRegistered
	}
	return *rep, nil
}

// RecordTaskCompletion credits a node for a successfully verified task.
func (l *Ledger) RecordTaskCompletion(ctx context.Context, nodeID domain.NodeID) error {
	rep, err := l.mutate(nodeID, func(r *domain.Reputation) {
		r.TasksCompleted++
		r.Score = clamp01(r.Score + completionReward)
		r.LastActive = l.now()
	})
	if err != nil {
		return err
	}
	l.audit(ctx, nodeID, "task_completed", rep)
	return nil
}

// RecordTaskFailure debits a node for a failed or timed-out task.
func (l *Ledger) RecordTaskFailure(ctx context.Context, nodeID domain.NodeID) error {
	rep, err := l.mutate(nodeID, func(r *domain.Reputation) {
		r.TasksFailed++
		r.Score = clamp01(r.Score - failurePenalty)
		r.LastActive = l.now()
	})
	if err != nil {
		return err
	}
	l.audit(ctx, nodeID, "task_failed", rep)
	return nil
}

// RecordByzantineBehavior applies a strike for a node caught submitting a
// fraudulent proof or disputed result. Three strikes drop a node below
// any realistic threshold.
func (l *Ledger) RecordByzantineBehavior(ctx context.Context, nodeID domain.NodeID, reason string) error {
	rep, err := l.mutate(nodeID, func(r *domain.Reputation) {
		r.ByzantineStrikes++
		r.Score = clamp01(r.Score - byzantineStrikePenalty)
		r.LastActive = l.now()
	})
	if err != nil {
		return err
	}
	metrics.AnomaliesDetected.WithLabelValues("byzantine").Inc()
	l.audit(ctx, nodeID, fmt.Sprintf("byzantine_strike:%s", reason), rep)
	return nil
}

// Reward nudges a node's score upward directly, used by the incentive
// layer for training-round participation rewards outside the normal
// task-completion path.
func (l *Ledger) Reward(ctx context.Context, nodeID domain.NodeID, amount float64) error {
	rep, err := l.mutate(nodeID, func(r *domain.Reputation) {
		r.Score = clamp01(r.Score + amount)
		r.LastActive = l.now()
	})
	if err != nil {
		return err
	}
	l.audit(ctx, nodeID, "reward", rep)
	return nil
}

// Slash forcibly reduces a node's score, used when governance or an
// operator intervenes outside the automatic strike path.
func (l *Ledger) Slash(ctx context.Context, nodeID domain.NodeID, amount float64) error {
	rep, err := l.mutate(nodeID, func(r *domain.Reputation) {
		r.Score = clamp01(r.Score - amount)
	})
	if err != nil {
		return err
	}
	l.audit(ctx, nodeID, "slash", rep)
	return nil
}

// DecayInactive pulls every node's score toward InitialScore in
// proportion to days since last activity, so abandoned high-score nodes
// don't retain undeserved trust forever and abandoned low-score nodes
// eventually get a second chance.
func (l *Ledger) DecayInactive(ctx context.Context) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for nodeID, rep := range l.nodes {
		idleDays := now.Sub(rep.LastActive).Hours() / 24
		if idleDays < 1 {
			continue
		}
		delta := decayPerInactiveDay * idleDays
		if rep.Score > InitialScore {
			rep.Score = max(InitialScore, rep.Score-delta)
		} else if rep.Score < InitialScore {
			rep.Score = min(InitialScore, rep.Score+delta)
		}
		metrics.ReputationScore.WithLabelValues(string(nodeID)).Set(rep.Score)
	}
}

// Reset restores a node to the initial score and clears its history,
// used after a successful dispute resolution in the node's favor.
func (l *Ledger) Reset(nodeID domain.NodeID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rep, ok := l.nodes[nodeID]
	if !ok {
		return domain.ErrNodeNotRegistered
	}
	rep.Score = InitialScore
	rep.TasksCompleted = 0
	rep.TasksFailed = 0
	rep.ByzantineStrikes = 0
	metrics.ReputationScore.WithLabelValues(string(nodeID)).Set(rep.Score)
	return nil
}

// TopN returns the n highest-scoring nodes, descending.
func (l *Ledger) TopN(n int) []domain.Reputation {
	all := l.All()
	sort.Slice(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// AboveThreshold returns every node whose score clears the threshold.
// A threshold of 0 uses the ledger's configured default.
func (l *Ledger) AboveThreshold(threshold float64) []domain.Reputation {
	if threshold == 0 {
		threshold = l.config.DefaultThreshold
	}
	var out []domain.Reputation
	for _, rep := range l.All() {
		if rep.AboveThreshold(threshold) {
			out = append(out, rep)
		}
	}
	return out
}

// All returns a snapshot of every node's reputation.
func (l *Ledger) All() []domain.Reputation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Reputation, 0, len(l.nodes))
	for _, rep := range l.nodes {
		out = append(out, *rep)
	}
	return out
}

// ExportAuditLog returns every audit record persisted for nodeID, oldest
// first. Requires a backing KVStore; returns an empty slice without one.
func (l *Ledger) ExportAuditLog(ctx context.Context, nodeID domain.NodeID) ([]AuditRecord, error) {
	if l.store == nil {
		return nil, nil
	}
	snap, err := l.store.Snapshot(ctx, auditBucket)
	if err != nil {
		return nil, err
	}
	var out []AuditRecord
	prefix := string(nodeID) + "/"
	for key, raw := range snap {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		var rec AuditRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// AuditRecord is one entry in a node's reputation audit trail.
type AuditRecord struct {
	NodeID domain.NodeID     `json:"node_id"`
	Event  string            `json:"event"`
	Score  float64           `json:"score"`
	At     time.Time         `json:"at"`
}

func (l *Ledger) mutate(nodeID domain.NodeID, fn func(*domain.Reputation)) (domain.Reputation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rep, ok := l.nodes[nodeID]
	if !ok {
		return domain.Reputation{}, domain.ErrNodeNotRegistered
	}
	fn(rep)
	metrics.ReputationScore.WithLabelValues(string(nodeID)).Set(rep.Score)
	return *rep, nil
}

func (l *Ledger) audit(ctx context.Context, nodeID domain.NodeID, event string, rep domain.Reputation) {
	if l.store == nil {
		return
	}
	rec := AuditRecord{NodeID: nodeID, Event: event, Score: rep.Score, At: l.now()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	key := fmt.Sprintf("%s/%d", nodeID, rec.At.UnixNano())
	_ = l.store.Put(ctx, auditBucket, key, raw)
}

func (l *Ledger) now() time.Time {
	if l.clock != nil {
		return l.clock.Now()
	}
	return time.Now()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

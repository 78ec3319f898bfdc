// Package finetune coordinates federated training rounds distributed
// across mesh nodes, implementing the TRAINING/AGGREGATE task types'
// execution lifecycle:
//  1. A training round is submitted (base model + dataset + config)
//  2. Coordinator splits the dataset into shards, one per participating node
//  3. Each node trains its shard locally, producing an opaque gradient
//     blob the coordinator never inspects — run_local_training's
//     contract is that the engine only ever sees a payload plus a
//     self-reported quality signal
//  4. Coordinator aggregates epoch quality across nodes (FedAvg
//     weighting by declared sample count) and commits the epoch's
//     gradient payloads to a checkpoint digest
//  5. After all epochs, the round completes and a final checkpoint exists
//
// A node's privacy budget bounds how many samples it may contribute to
// a single epoch; gradients that would exceed it are rejected before
// they ever reach aggregation. Reward for participation is settled by
// node.MeshCoordinator.DispatchAndReward, not by this package —
// a round's cost here is its epoch count and node count, not a credit
// ledger.
package finetune

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/proof"
)

// ─── Errors ─────────────────────────────────────────────────────────────────

var (
	ErrRoundNotFound         = errors.New("training round not found")
	ErrRoundAlreadyExists    = errors.New("training round already submitted")
	ErrInsufficientNodes     = errors.New("not enough capable nodes for training round")
	ErrShardFailed           = errors.New("data shard processing failed")
	ErrGradientMismatch      = errors.New("gradient dimensions do not match")
	ErrCheckpointMissing     = errors.New("checkpoint not available")
	ErrEpochTimeout          = errors.New("epoch exceeded time limit")
	ErrPrivacyBudgetExceeded = errors.New("gradient update exceeds node's declared privacy budget")
)

// ─── Round Types ────────────────────────────────────────────────────────────

// TrainingMethod specifies the parameter-efficient fine-tuning approach.
type TrainingMethod string

const (
	MethodLoRA  TrainingMethod = "lora"  // Low-Rank Adaptation (default)
	MethodQLoRA TrainingMethod = "qlora" // Quantized LoRA (4-bit base model)
)

// RoundStatus tracks the lifecycle of a training round.
type RoundStatus string

const (
	RoundPending     RoundStatus = "PENDING"     // Waiting for nodes
	RoundSharding    RoundStatus = "SHARDING"    // Splitting dataset
	RoundTraining    RoundStatus = "TRAINING"    // Nodes training
	RoundAggregating RoundStatus = "AGGREGATING" // Merging gradients
	RoundCompleted   RoundStatus = "COMPLETED"   // Adapter ready
	RoundFailed      RoundStatus = "FAILED"      // Unrecoverable error
	RoundCancelled   RoundStatus = "CANCELLED"
)

// LoRAConfig holds LoRA-specific hyperparameters.
type LoRAConfig struct {
	Rank           int      `json:"rank"`             // LoRA rank r (default: 16)
	Alpha          float64  `json:"alpha"`            // Scaling factor (default: 32)
	Dropout        float64  `json:"dropout"`          // Dropout probability (default: 0.05)
	TargetModules  []string `json:"target_modules"`   // Which layers to adapt (default: q_proj, v_proj)
	LearningRate   float64  `json:"learning_rate"`    // Adam LR (default: 2e-4)
	BatchSize      int      `json:"batch_size"`       // Per-node batch size (default: 4)
	GradAccumSteps int      `json:"grad_accum_steps"` // Gradient accumulation (default: 4)
}

// DefaultLoRAConfig returns production defaults.
func DefaultLoRAConfig() LoRAConfig {
	return LoRAConfig{
		Rank:           16,
		Alpha:          32,
		Dropout:        0.05,
		TargetModules:  []string{"q_proj", "v_proj"},
		LearningRate:   2e-4,
		BatchSize:      4,
		GradAccumSteps: 4,
	}
}

// TrainingRound represents a distributed federated training request,
// the coordinator-side half of a TaskPayload whose Type is
// domain.TaskTraining.
type TrainingRound struct {
	ID          string         `json:"id"`
	BaseModel   string         `json:"base_model"`  // e.g. "llama3.2"
	DatasetURI  string         `json:"dataset_uri"` // URI to training data
	Method      TrainingMethod `json:"method"`
	Config      LoRAConfig     `json:"config"`
	Epochs      int            `json:"epochs"`    // Total epochs (default: 3)
	MinNodes    int            `json:"min_nodes"` // Minimum nodes required
	MaxNodes    int            `json:"max_nodes"` // Maximum nodes to use
	Status      RoundStatus    `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   time.Time      `json:"started_at,omitempty"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Duration returns training wall time.
func (r *TrainingRound) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	end := r.CompletedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(r.StartedAt)
}

// IsTerminal returns true if the round reached a final state.
func (r *TrainingRound) IsTerminal() bool {
	return r.Status == RoundCompleted || r.Status == RoundFailed || r.Status == RoundCancelled
}

// ─── Data Shard ─────────────────────────────────────────────────────────────

// DataShard is a partition of the training dataset assigned to one node.
type DataShard struct {
	ShardIndex  int    `json:"shard_index"`
	NodeID      string `json:"node_id"`
	SampleCount int    `json:"sample_count"`
	SizeBytes   int64  `json:"size_bytes"`
	Digest      string `json:"digest"` // SHA-256 of shard data
}

// ─── Gradient Update ────────────────────────────────────────────────────────

// GradientUpdate is sent by a node after processing one epoch of its
// shard. Payload is the opaque gradient blob produced by
// run_local_training — the coordinator folds it into the epoch's
// checkpoint digest but never parses it. Loss and Samples are metadata
// the node self-reports about the run, not values derived from Payload.
// Budget is the node's privacy budget as of submission; RecordGradient
// enforces it before the update is ever aggregated.
type GradientUpdate struct {
	RoundID    string               `json:"round_id"`
	NodeID     string               `json:"node_id"`
	ShardIndex int                  `json:"shard_index"`
	Epoch      int                  `json:"epoch"`
	Payload    []byte               `json:"payload"`
	Loss       float64              `json:"loss"`
	Samples    int                  `json:"samples"`
	Budget     domain.PrivacyBudget `json:"privacy_budget"`
	Timestamp  time.Time            `json:"timestamp"`
}

// ─── Checkpoint ─────────────────────────────────────────────────────────────

// Checkpoint captures training state at a point in time for fault
// tolerance. Digest binds every contributing gradient's opaque payload
// for that epoch, so a later auditor can confirm which updates a
// checkpoint was actually built from without the coordinator having
// exposed their contents at aggregation time.
type Checkpoint struct {
	RoundID   string    `json:"round_id"`
	Epoch     int       `json:"epoch"`
	Loss      float64   `json:"loss"`
	NodeCount int       `json:"node_count"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
}

// checkpointDigest commits every gradient payload contributed to an
// epoch, sorted by node ID so the digest doesn't depend on arrival
// order. Grounded on internal/infra/proof's content-addressed hashing
// convention (HashBytes), so a checkpoint's digest is verifiable the
// same way a task's execution hash is.
func checkpointDigest(roundID string, epoch int, grads []GradientUpdate) string {
	sorted := make([]GradientUpdate, len(grads))
	copy(sorted, grads)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].NodeID < sorted[j].NodeID })

	buf := []byte(fmt.Sprintf("%s:%d:", roundID, epoch))
	for _, g := range sorted {
		buf = append(buf, []byte(g.NodeID)...)
		buf = append(buf, g.Payload...)
	}
	return proof.HashBytes(buf)
}

// ─── Coordinator ────────────────────────────────────────────────────────────

// CoordinatorConfig configures the training-round coordinator.
type CoordinatorConfig struct {
	MaxConcurrentRounds int           // Max simultaneous training rounds
	EpochTimeout        time.Duration // Max time for one epoch across all nodes
}

// DefaultCoordinatorConfig returns production defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		MaxConcurrentRounds: 3,
		EpochTimeout:        30 * time.Minute,
	}
}

// Coordinator orchestrates distributed federated training rounds.
type Coordinator struct {
	mu     sync.RWMutex
	config CoordinatorConfig
	rounds map[string]*TrainingRound
	shards map[string][]DataShard      // roundID → shards
	grads  map[string][]GradientUpdate // roundID → gradient updates
	checks map[string][]Checkpoint     // roundID → checkpoints
}

// NewCoordinator creates a training-round coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		config: cfg,
		rounds: make(map[string]*TrainingRound),
		shards: make(map[string][]DataShard),
		grads:  make(map[string][]GradientUpdate),
		checks: make(map[string][]Checkpoint),
	}
}

// SubmitRound registers a new training round.
func (c *Coordinator) SubmitRound(round TrainingRound) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.rounds[round.ID]; exists {
		return ErrRoundAlreadyExists
	}

	active := 0
	for _, r := range c.rounds {
		if !r.IsTerminal() {
			active++
		}
	}
	if active >= c.config.MaxConcurrentRounds {
		return fmt.Errorf("maximum concurrent rounds (%d) reached", c.config.MaxConcurrentRounds)
	}

	round.Status = RoundPending
	if round.Method == "" {
		round.Method = MethodLoRA
	}
	if round.Epochs <= 0 {
		round.Epochs = 3
	}
	if round.MinNodes <= 0 {
		round.MinNodes = 2
	}
	if round.MaxNodes <= 0 {
		round.MaxNodes = 10
	}
	round.CreatedAt = time.Now()

	c.rounds[round.ID] = &round
	return nil
}

// GetRound returns a round by ID.
func (c *Coordinator) GetRound(roundID string) (*TrainingRound, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	round, ok := c.rounds[roundID]
	if !ok {
		return nil, ErrRoundNotFound
	}
	cp := *round
	return &cp, nil
}

// ListRounds returns all rounds.
func (c *Coordinator) ListRounds() []TrainingRound {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]TrainingRound, 0, len(c.rounds))
	for _, r := range c.rounds {
		result = append(result, *r)
	}
	return result
}

// AssignShards records how the dataset was split across nodes.
func (c *Coordinator) AssignShards(roundID string, shards []DataShard) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	round, ok := c.rounds[roundID]
	if !ok {
		return ErrRoundNotFound
	}

	if len(shards) < round.MinNodes {
		return ErrInsufficientNodes
	}

	round.Status = RoundSharding
	c.shards[roundID] = shards
	return nil
}

// Shards returns the data shards for a round.
func (c *Coordinator) Shards(roundID string) []DataShard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shards[roundID]
}

// StartTraining transitions a round to the training state.
func (c *Coordinator) StartTraining(roundID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	round, ok := c.rounds[roundID]
	if !ok {
		return ErrRoundNotFound
	}

	round.Status = RoundTraining
	round.StartedAt = time.Now()
	return nil
}

// RunRound satisfies internal/infra/node's Trainer interface: it moves
// roundID into the training state if it hasn't started yet, the hook
// point an AmbientNode calls before running its own local epoch against
// the shard the coordinator already assigned it. A round already
// training or past it is left untouched, so repeated local rounds
// against the same coordinator-side round are idempotent.
func (c *Coordinator) RunRound(roundID string, nodeID domain.NodeID) error {
	c.mu.RLock()
	round, ok := c.rounds[roundID]
	c.mu.RUnlock()
	if !ok {
		return ErrRoundNotFound
	}
	if round.Status == RoundPending || round.Status == RoundSharding {
		return c.StartTraining(roundID)
	}
	return nil
}

// RecordGradient records a gradient update from a node, rejecting one
// that claims more samples than the node's own declared privacy budget
// allows for a single epoch.
func (c *Coordinator) RecordGradient(update GradientUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rounds[update.RoundID]; !ok {
		return ErrRoundNotFound
	}
	if update.Budget.MaxSamplesPerEpoch > 0 && update.Samples > update.Budget.MaxSamplesPerEpoch {
		return ErrPrivacyBudgetExceeded
	}

	c.grads[update.RoundID] = append(c.grads[update.RoundID], update)
	return nil
}

// Gradients returns all gradient updates for a round.
func (c *Coordinator) Gradients(roundID string) []GradientUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grads[roundID]
}

// EpochGradients returns gradients for a specific epoch.
func (c *Coordinator) EpochGradients(roundID string, epoch int) []GradientUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []GradientUpdate
	for _, g := range c.grads[roundID] {
		if g.Epoch == epoch {
			result = append(result, g)
		}
	}
	return result
}

// AggregateEpoch performs FedAvg gradient aggregation for an epoch:
// a weighted average of reported losses, proportional to sample count.
// Returns average loss across all participating nodes.
func (c *Coordinator) AggregateEpoch(roundID string, epoch int) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rounds[roundID]; !ok {
		return 0, ErrRoundNotFound
	}

	var grads []GradientUpdate
	for _, g := range c.grads[roundID] {
		if g.Epoch == epoch {
			grads = append(grads, g)
		}
	}

	if len(grads) == 0 {
		return 0, fmt.Errorf("no gradients for epoch %d", epoch)
	}

	var totalLoss float64
	var totalSamples int
	for _, g := range grads {
		totalLoss += g.Loss * float64(g.Samples)
		totalSamples += g.Samples
	}
	avgLoss := totalLoss / float64(totalSamples)

	checkpoint := Checkpoint{
		RoundID:   roundID,
		Epoch:     epoch,
		Loss:      avgLoss,
		NodeCount: len(grads),
		Digest:    checkpointDigest(roundID, epoch, grads),
		CreatedAt: time.Now(),
	}
	c.checks[roundID] = append(c.checks[roundID], checkpoint)

	return avgLoss, nil
}

// Checkpoints returns all checkpoints for a round.
func (c *Coordinator) Checkpoints(roundID string) []Checkpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checks[roundID]
}

// CompleteRound marks a round as completed.
func (c *Coordinator) CompleteRound(roundID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	round, ok := c.rounds[roundID]
	if !ok {
		return ErrRoundNotFound
	}
	round.Status = RoundCompleted
	round.CompletedAt = time.Now()
	return nil
}

// FailRound marks a round as failed with an error message.
func (c *Coordinator) FailRound(roundID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	round, ok := c.rounds[roundID]
	if !ok {
		return ErrRoundNotFound
	}
	round.Status = RoundFailed
	round.CompletedAt = time.Now()
	round.Error = reason
	return nil
}

// CancelRound marks a round as cancelled.
func (c *Coordinator) CancelRound(roundID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	round, ok := c.rounds[roundID]
	if !ok {
		return ErrRoundNotFound
	}
	if round.IsTerminal() {
		return fmt.Errorf("round %s already in terminal state %s", roundID, round.Status)
	}
	round.Status = RoundCancelled
	round.CompletedAt = time.Now()
	return nil
}

// ActiveRoundCount returns the number of non-terminal rounds.
func (c *Coordinator) ActiveRoundCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, r := range c.rounds {
		if !r.IsTerminal() {
			count++
		}
	}
	return count
}

// Stats returns aggregate coordinator statistics.
func (c *Coordinator) Stats() CoordinatorStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var stats CoordinatorStats
	for _, r := range c.rounds {
		switch r.Status {
		case RoundPending, RoundSharding, RoundTraining, RoundAggregating:
			stats.ActiveRounds++
		case RoundCompleted:
			stats.CompletedRounds++
		case RoundFailed:
			stats.FailedRounds++
		}
	}
	stats.TotalRounds = len(c.rounds)
	return stats
}

// CoordinatorStats holds aggregate training statistics.
type CoordinatorStats struct {
	TotalRounds     int `json:"total_rounds"`
	ActiveRounds    int `json:"active_rounds"`
	CompletedRounds int `json:"completed_rounds"`
	FailedRounds    int `json:"failed_rounds"`
}

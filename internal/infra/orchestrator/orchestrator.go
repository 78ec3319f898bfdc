package orchestrator

import (
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/metrics"
)

// Config wires the orchestrator's tunables.
type Config struct {
	Filter  FilterConfig
	Score   ScoreParams
	Default Strategy
}

// DefaultConfig returns the spec's default weighted-score configuration.
func DefaultConfig(latency LatencyLookup) Config {
	return Config{
		Filter: DefaultFilterConfig(),
		Score: ScoreParams{
			Weights:              DefaultWeights(),
			MaxAcceptableLatency: 500,
			Latency:              latency,
		},
		Default: StrategyWeightedScore,
	}
}

// Orchestrator selects a node to execute a task. It mutates nothing but
// its own round-robin counter: all
// collaborators (reputation, latency, telemetry) are read through the
// Candidate snapshot and the LatencyLookup closure supplied at
// construction time.
type Orchestrator struct {
	config Config
	rr     RoundRobinCounter
}

// New builds an orchestrator with cfg.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{config: cfg}
}

// Assign filters candidates, ranks survivors under strategy, and returns
// an Assignment. An empty candidate set after filtering yields
// Assigned=false with a reason.
func (o *Orchestrator) Assign(task domain.TaskPayload, candidates []Candidate, strategy Strategy, now time.Time) domain.Assignment {
	if strategy == "" {
		strategy = o.config.Default
	}

	survivors := FilterCandidates(candidates, task, o.config.Filter)
	if len(survivors) == 0 {
		metrics.AssignmentsTotal.WithLabelValues("no_candidates").Inc()
		return domain.Assignment{
			TaskID:   task.ID,
			Assigned: false,
			Reason:   "no eligible candidates after filtering",
		}
	}

	ranked := Rank(strategy, survivors, task, o.config.Score, &o.rr)
	if len(ranked) == 0 {
		metrics.AssignmentsTotal.WithLabelValues("no_positive_score").Inc()
		return domain.Assignment{
			TaskID:   task.ID,
			Assigned: false,
			Reason:   "no candidate scored above zero",
		}
	}

	primary := ranked[0]
	score := ScoreCandidate(primary, task, o.config.Score)

	assignment := domain.Assignment{
		TaskID:     task.ID,
		Assigned:   true,
		NodeID:     primary.NodeID,
		Score:      score,
		AssignedAt: now,
	}
	if len(ranked) > 1 {
		assignment.BackupNodeID = ranked[1].NodeID
	}

	metrics.AssignmentsTotal.WithLabelValues("success").Inc()
	metrics.AssignmentsPerNode.WithLabelValues(string(primary.NodeID)).Inc()
	metrics.AssignmentScore.Observe(score)

	return assignment
}

// FindBackup reruns ranking with the primary excluded, used when a
// dispatch to the primary fails after the fact and a fresh backup is
// needed without re-filtering from scratch.
func (o *Orchestrator) FindBackup(task domain.TaskPayload, candidates []Candidate, exclude domain.NodeID, strategy Strategy) (Candidate, bool) {
	filtered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.NodeID != exclude {
			filtered = append(filtered, c)
		}
	}
	survivors := FilterCandidates(filtered, task, o.config.Filter)
	ranked := Rank(strategy, survivors, task, o.config.Score, &o.rr)
	if len(ranked) == 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}

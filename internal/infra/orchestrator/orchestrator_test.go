package orchestrator

import (
	"testing"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
)

func healthyCandidate(id domain.NodeID, reputation float64) Candidate {
	return Candidate{
		NodeID:     id,
		Region:     "us-east",
		Reputation: reputation,
		SafeMode:   false,
		Compute: domain.ComputeProfile{
			CPUCores:    8,
			MemoryMB:    16000,
			CurrentLoad: 0.2,
		},
		BandwidthMbps:        500,
		EfficiencyGFLOPSPerW: 5,
		ActiveTasks:          1,
		MaxTasks:             10,
		ExpectedCostTokens:   1,
	}
}

func noLatency(domain.NodeID, domain.RegionID) float64 { return 10 }

func TestFilterCandidates_RejectsSafeMode(t *testing.T) {
	c := healthyCandidate("node-1", 0.8)
	c.SafeMode = true
	survivors := FilterCandidates([]Candidate{c}, domain.TaskPayload{}, DefaultFilterConfig())
	if len(survivors) != 0 {
		t.Errorf("expected safe-mode node filtered, got %d survivors", len(survivors))
	}
}

func TestFilterCandidates_RejectsStaleTelemetry(t *testing.T) {
	c := healthyCandidate("node-1", 0.8)
	c.TelemetryAge = 999
	survivors := FilterCandidates([]Candidate{c}, domain.TaskPayload{}, DefaultFilterConfig())
	if len(survivors) != 0 {
		t.Error("expected stale-telemetry node filtered")
	}
}

func TestFilterCandidates_RejectsBelowMinReputation(t *testing.T) {
	c := healthyCandidate("node-1", 0.2)
	task := domain.TaskPayload{MinReputationScore: 0.5}
	survivors := FilterCandidates([]Candidate{c}, task, DefaultFilterConfig())
	if len(survivors) != 0 {
		t.Error("expected low-reputation node filtered")
	}
}

func TestFilterCandidates_RejectsBlacklisted(t *testing.T) {
	c := healthyCandidate("node-1", 0.8)
	task := domain.TaskPayload{Routing: domain.TaskRouting{NodeBlacklist: []domain.NodeID{"node-1"}}}
	survivors := FilterCandidates([]Candidate{c}, task, DefaultFilterConfig())
	if len(survivors) != 0 {
		t.Error("expected blacklisted node filtered")
	}
}

func TestFilterCandidates_RejectsOverCostCeiling(t *testing.T) {
	c := healthyCandidate("node-1", 0.8)
	c.ExpectedCostTokens = 100
	task := domain.TaskPayload{MaxCostTokens: 10}
	survivors := FilterCandidates([]Candidate{c}, task, DefaultFilterConfig())
	if len(survivors) != 0 {
		t.Error("expected over-cost node filtered")
	}
}

func TestFilterCandidates_RejectsMissingGPU(t *testing.T) {
	c := healthyCandidate("node-1", 0.8)
	task := domain.TaskPayload{Requirements: domain.ResourceRequirements{RequireGPU: true}}
	survivors := FilterCandidates([]Candidate{c}, task, DefaultFilterConfig())
	if len(survivors) != 0 {
		t.Error("expected non-GPU node filtered when GPU required")
	}
}

func TestOrchestrator_Assign_EmptyCandidatesYieldsUnassigned(t *testing.T) {
	o := New(DefaultConfig(noLatency))
	assignment := o.Assign(domain.TaskPayload{ID: "t1"}, nil, "", time.Now())
	if assignment.Assigned {
		t.Error("expected Assigned=false with no candidates")
	}
	if assignment.Reason == "" {
		t.Error("expected a non-empty reason")
	}
}

func TestOrchestrator_Assign_PicksHighestReputationUnderWeightedScore(t *testing.T) {
	o := New(DefaultConfig(noLatency))
	candidates := []Candidate{
		healthyCandidate("node-low", 0.2),
		healthyCandidate("node-high", 0.9),
	}
	assignment := o.Assign(domain.TaskPayload{ID: "t1"}, candidates, StrategyWeightedScore, time.Now())
	if !assignment.Assigned {
		t.Fatalf("expected assignment, got reason %q", assignment.Reason)
	}
	if assignment.NodeID != "node-high" {
		t.Errorf("NodeID = %q, want node-high", assignment.NodeID)
	}
	if assignment.BackupNodeID != "node-low" {
		t.Errorf("BackupNodeID = %q, want node-low", assignment.BackupNodeID)
	}
}

func TestOrchestrator_Assign_SafeModeExclusion(t *testing.T) {
	o := New(DefaultConfig(noLatency))
	safeModeHigh := healthyCandidate("node-1", 0.99)
	safeModeHigh.SafeMode = true
	healthy := healthyCandidate("node-2", 0.5)

	assignment := o.Assign(domain.TaskPayload{ID: "t1"}, []Candidate{safeModeHigh, healthy}, StrategyWeightedScore, time.Now())
	if assignment.NodeID != "node-2" {
		t.Errorf("expected safe-mode node excluded regardless of reputation, got %q", assignment.NodeID)
	}
}

func TestOrchestrator_Assign_DeterministicTieBreak(t *testing.T) {
	o := New(DefaultConfig(noLatency))
	a := healthyCandidate("node-b", 0.5)
	b := healthyCandidate("node-a", 0.5)

	first := o.Assign(domain.TaskPayload{ID: "t1"}, []Candidate{a, b}, StrategyWeightedScore, time.Now())
	second := o.Assign(domain.TaskPayload{ID: "t1"}, []Candidate{b, a}, StrategyWeightedScore, time.Now())
	if first.NodeID != second.NodeID {
		t.Errorf("tie-break not deterministic across input order: %q vs %q", first.NodeID, second.NodeID)
	}
	if first.NodeID != "node-a" {
		t.Errorf("expected lexicographically smaller node-a to win tie, got %q", first.NodeID)
	}
}

func TestOrchestrator_Assign_Idempotent(t *testing.T) {
	o := New(DefaultConfig(noLatency))
	candidates := []Candidate{healthyCandidate("node-1", 0.7), healthyCandidate("node-2", 0.9)}
	task := domain.TaskPayload{ID: "t1"}

	first := o.Assign(task, candidates, StrategyWeightedScore, time.Time{})
	second := o.Assign(task, candidates, StrategyWeightedScore, time.Time{})
	if first.NodeID != second.NodeID || first.Score != second.Score {
		t.Error("expected identical (task, snapshot) to produce identical assignment")
	}
}

func TestRank_RoundRobinAdvances(t *testing.T) {
	candidates := []Candidate{healthyCandidate("a", 0.5), healthyCandidate("b", 0.5), healthyCandidate("c", 0.5)}
	rr := &RoundRobinCounter{}
	first := Rank(StrategyRoundRobin, candidates, domain.TaskPayload{}, ScoreParams{}, rr)
	second := Rank(StrategyRoundRobin, candidates, domain.TaskPayload{}, ScoreParams{}, rr)
	if first[0].NodeID == second[0].NodeID {
		t.Error("expected round-robin to advance between calls")
	}
}

func TestRank_LeastLoadedOrdersByActiveTasks(t *testing.T) {
	busy := healthyCandidate("busy", 0.5)
	busy.ActiveTasks = 9
	idle := healthyCandidate("idle", 0.5)
	idle.ActiveTasks = 0

	ranked := Rank(StrategyLeastLoaded, []Candidate{busy, idle}, domain.TaskPayload{}, ScoreParams{}, nil)
	if ranked[0].NodeID != "idle" {
		t.Errorf("expected idle node first, got %q", ranked[0].NodeID)
	}
}

func TestScoreCandidate_HardDisqualifiesMissingGPU(t *testing.T) {
	c := healthyCandidate("node-1", 0.9)
	task := domain.TaskPayload{Requirements: domain.ResourceRequirements{RequireGPU: true}}
	score := ScoreCandidate(c, task, ScoreParams{Weights: DefaultWeights(), Latency: noLatency})
	if score != 0 {
		t.Errorf("score = %v, want 0 for GPU-less node on GPU-required task", score)
	}
}

package orchestrator

import (
	"sort"
	"sync/atomic"

	"github.com/ailee-network/ailee-core/internal/domain"
)

// Strategy names the closed set of candidate-ranking algorithms the
// orchestrator can run, mirroring the teacher's string-enum
// (PriorityLabel-style) treatment of fixed vocabularies.
type Strategy string

const (
	StrategyWeightedScore     Strategy = "weighted-score"
	StrategyRoundRobin        Strategy = "round-robin"
	StrategyLeastLoaded       Strategy = "least-loaded"
	StrategyLowestLatency     Strategy = "lowest-latency"
	StrategyHighestReputation Strategy = "highest-reputation"
	StrategyLowestCost        Strategy = "lowest-cost"
	StrategyGeneticAlgorithm  Strategy = "genetic-algorithm"
	StrategyGeographic        Strategy = "geographic-affinity"
	StrategyLoadBalancing     Strategy = "load-balancing"
)

// Weights configures the weighted-score strategy's four terms. They need
// not sum to 1; the formula is a plain weighted sum, matching the
// spec's "weights come from engine configuration" guidance.
type Weights struct {
	Trust float64
	Speed float64
	Power float64
	Cost  float64
}

// DefaultWeights matches the spec's default split, cost folded in via
// the candidate filter when left at zero.
func DefaultWeights() Weights {
	return Weights{Trust: 0.6, Speed: 0.3, Power: 0.1, Cost: 0}
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

// LatencyLookup resolves the round-trip latency to a candidate, read-only
// from the orchestrator's perspective.
type LatencyLookup func(nodeID domain.NodeID, region domain.RegionID) float64

// ScoreParams bundles the read-only collaborators the weighted-score
// formula needs beyond the candidate and task themselves.
type ScoreParams struct {
	Weights             Weights
	MaxAcceptableLatency float64
	Latency             LatencyLookup
}

// ScoreCandidate computes the four normalized sub-scores and their
// weighted sum. A disqualified candidate (missing GPU/TPU a compute task
// requires) scores 0, mirroring the teacher's "hard disqualification"
// rule in ScoreNode.
func ScoreCandidate(c Candidate, task domain.TaskPayload, p ScoreParams) float64 {
	if task.Requirements.RequireGPU && !c.Compute.GPUAvailable {
		return 0
	}
	if task.Requirements.RequireTPU {
		return 0 // no TPU capability surface modeled; hard disqualify
	}

	reputation := clamp01(c.Reputation)

	maxLatency := p.MaxAcceptableLatency
	if maxLatency <= 0 {
		maxLatency = 500
	}
	var latencyMs float64
	if p.Latency != nil {
		latencyMs = p.Latency(c.NodeID, c.Region)
	}
	latency := 1 - clamp01(latencyMs/maxLatency)
	capacity := scoreCapacity(c)

	cost := 1.0
	if task.MaxCostTokens > 0 {
		cost = 1 - clamp01(c.ExpectedCostTokens/task.MaxCostTokens)
	}

	w := p.Weights
	return w.Trust*reputation + w.Speed*latency + w.Power*capacity + w.Cost*cost
}

func scoreCapacity(c Candidate) float64 {
	bandwidth := minF(c.BandwidthMbps/1000, 1) * 0.4
	cpuTerm := (1 - clamp01(c.Compute.CurrentLoad)) * 0.3
	efficiencyTerm := minF(c.EfficiencyGFLOPSPerW/10, 1) * 0.2
	loadTerm := 0.1
	if c.MaxTasks > 0 {
		loadTerm = (1 - clamp01(float64(c.ActiveTasks)/float64(c.MaxTasks))) * 0.1
	}
	return bandwidth + cpuTerm + efficiencyTerm + loadTerm
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// RoundRobinCounter is shared state for the round-robin strategy; a
// single counter monotonically advances across calls.
type RoundRobinCounter struct {
	n atomic.Uint64
}

// Rank orders candidates best-first under the named strategy. With a nil
// counter, round-robin starts from the first candidate on every call.
func Rank(strategy Strategy, candidates []Candidate, task domain.TaskPayload, p ScoreParams, rr *RoundRobinCounter) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	switch strategy {
	case StrategyRoundRobin:
		if rr == nil {
			rr = &RoundRobinCounter{}
		}
		start := int(rr.n.Add(1)-1) % len(candidates)
		ordered := make([]Candidate, 0, len(candidates))
		for i := 0; i < len(candidates); i++ {
			ordered = append(ordered, candidates[(start+i)%len(candidates)])
		}
		return ordered

	case StrategyLeastLoaded:
		return sortBy(candidates, func(c Candidate) float64 { return float64(c.ActiveTasks) }, false)

	case StrategyLowestLatency:
		return sortBy(candidates, func(c Candidate) float64 {
			if p.Latency == nil {
				return 0
			}
			return p.Latency(c.NodeID, c.Region)
		}, false)

	case StrategyHighestReputation:
		return sortBy(candidates, func(c Candidate) float64 { return c.Reputation }, true)

	case StrategyLowestCost:
		return sortBy(candidates, func(c Candidate) float64 { return c.ExpectedCostTokens }, false)

	case StrategyLoadBalancing:
		return sortBy(candidates, func(c Candidate) float64 { return scoreCapacity(c) }, true)

	case StrategyGeographic:
		// Rank does not consult internal/infra/region.Router; the
		// candidate set it is given is ranked by weighted score.
		fallthrough
	case StrategyGeneticAlgorithm:
		// A bounded local search around the weighted-score winner is
		// optional per spec; this conforming implementation falls back
		// to weighted-score directly.
		fallthrough
	case StrategyWeightedScore:
		fallthrough
	default:
		return scoreAndSort(candidates, task, p)
	}
}

func scoreAndSort(candidates []Candidate, task domain.TaskPayload, p ScoreParams) []Candidate {
	type scored struct {
		c     Candidate
		score float64
	}
	all := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		s := ScoreCandidate(c, task, p)
		if s > 0 {
			all = append(all, scored{c, s})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].c.NodeID < all[j].c.NodeID // deterministic tie-break
	})
	ranked := make([]Candidate, len(all))
	for i, s := range all {
		ranked[i] = s.c
	}
	return ranked
}

func sortBy(candidates []Candidate, key func(Candidate) float64, descending bool) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		ki, kj := key(ranked[i]), key(ranked[j])
		if ki != kj {
			if descending {
				return ki > kj
			}
			return ki < kj
		}
		return ranked[i].NodeID < ranked[j].NodeID
	})
	return ranked
}

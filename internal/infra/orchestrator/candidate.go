// Package orchestrator picks which node should execute a task. Under
// every strategy except round-robin, which advances a shared counter on
// each call, it is a pure function of its inputs: given the same task and candidate
// snapshot it always returns the same Assignment, reading reputation,
// latency, and telemetry collaborators without mutating any of them.
package orchestrator

import "github.com/ailee-network/ailee-core/internal/domain"

// Candidate is a read-only snapshot of one node's eligibility and
// telemetry at scoring time, assembled by the engine before calling the
// orchestrator. Adapted from the teacher's scheduler.NodeCandidate,
// widened with the fields the four-term weighted formula needs.
type Candidate struct {
	NodeID              domain.NodeID
	Region              domain.RegionID
	Reputation          float64 // [0,1]
	SafeMode            bool
	Quarantined         bool
	TelemetryAge        float64 // seconds since last sample
	Compute             domain.ComputeProfile
	BandwidthMbps       float64
	EfficiencyGFLOPSPerW float64
	ActiveTasks         int
	MaxTasks            int
	ExpectedCostTokens  float64
	Requirements        domain.ResourceRequirements // what the candidate offers
	Capabilities        map[string]bool
}

// meetsRequirements reports whether c can satisfy req.
func (c Candidate) meetsRequirements(req domain.ResourceRequirements) bool {
	if c.Compute.CPUCores < req.MinCPUCores {
		return false
	}
	if c.Compute.MemoryMB < req.MinMemoryMB {
		return false
	}
	if req.RequireGPU && !c.Compute.GPUAvailable {
		return false
	}
	for _, capability := range req.Capabilities {
		if !c.Capabilities[capability] {
			return false
		}
	}
	return true
}

// FreshnessHorizonSeconds bounds how old a candidate's telemetry may be
// before it is filtered out as stale.
const FreshnessHorizonSeconds = 30

// FilterConfig controls the candidate filter pass.
type FilterConfig struct {
	FreshnessHorizonSeconds float64
}

// DefaultFilterConfig returns the spec default freshness horizon.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{FreshnessHorizonSeconds: FreshnessHorizonSeconds}
}

// FilterCandidates drops candidates that fail any hard constraint:
// safe-mode, quarantine, stale telemetry, unmet resource requirements,
// reputation floor, blacklist membership, cost ceiling, or a hard
// preferred region.
func FilterCandidates(candidates []Candidate, task domain.TaskPayload, cfg FilterConfig) []Candidate {
	if cfg.FreshnessHorizonSeconds <= 0 {
		cfg.FreshnessHorizonSeconds = FreshnessHorizonSeconds
	}

	blacklist := make(map[domain.NodeID]bool, len(task.Routing.NodeBlacklist))
	for _, id := range task.Routing.NodeBlacklist {
		blacklist[id] = true
	}
	whitelist := make(map[domain.NodeID]bool, len(task.Routing.NodeWhitelist))
	for _, id := range task.Routing.NodeWhitelist {
		whitelist[id] = true
	}
	preferred := task.Routing.PreferredRegion()

	survivors := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.SafeMode {
			continue
		}
		if c.Quarantined {
			continue
		}
		if c.TelemetryAge > cfg.FreshnessHorizonSeconds {
			continue
		}
		if !c.meetsRequirements(task.Requirements) {
			continue
		}
		if task.MinReputationScore > 0 && c.Reputation < task.MinReputationScore {
			continue
		}
		if blacklist[c.NodeID] {
			continue
		}
		if len(whitelist) > 0 && !whitelist[c.NodeID] {
			continue
		}
		if task.MaxCostTokens > 0 && c.ExpectedCostTokens > task.MaxCostTokens {
			continue
		}
		if task.HardPreferredRegion && preferred != "" && c.Region != preferred {
			continue
		}
		survivors = append(survivors, c)
	}
	return survivors
}

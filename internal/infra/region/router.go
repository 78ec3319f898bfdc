// Package region implements geo-aware task routing across an open-ended
// set of regions. Unlike a fixed deployment topology, regions register
// themselves as nodes report in from them.
//
// Routing priority:
//  1. Data residency constraint (hard requirement — if set, must be honored)
//  2. Preferred region affinity, if healthy and under the load threshold
//  3. Same-region preference (lowest latency)
//  4. Lowest-load failover, scored by load and measured latency
package region

import (
	"sort"
	"sync"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/latency"
)

// Router makes geo-aware task routing decisions across regions.
type Router struct {
	mu       sync.RWMutex
	regions  map[domain.RegionID]*domain.RegionStatus
	localReg domain.RegionID
	lat      *latency.Service

	loadThreshold float64
	maxLatencyMs  float64
}

// Config holds router configuration.
type Config struct {
	LocalRegion   domain.RegionID
	LoadThreshold float64
	MaxLatencyMs  float64
}

// DefaultConfig returns sensible router defaults for the given home region.
func DefaultConfig(local domain.RegionID) Config {
	return Config{
		LocalRegion:   local,
		LoadThreshold: 0.8,
		MaxLatencyMs:  200,
	}
}

// NewRouter creates a router backed by a shared latency service. The
// local region is pre-registered as healthy; other regions register
// themselves via UpdateRegion as nodes report in.
func NewRouter(cfg Config, lat *latency.Service) *Router {
	if cfg.LoadThreshold <= 0 {
		cfg.LoadThreshold = 0.8
	}
	if cfg.MaxLatencyMs <= 0 {
		cfg.MaxLatencyMs = 200
	}
	r := &Router{
		regions:       make(map[domain.RegionID]*domain.RegionStatus),
		localReg:      cfg.LocalRegion,
		lat:           lat,
		loadThreshold: cfg.LoadThreshold,
		maxLatencyMs:  cfg.MaxLatencyMs,
	}
	r.regions[cfg.LocalRegion] = &domain.RegionStatus{
		Region:    cfg.LocalRegion,
		Healthy:   true,
		UpdatedAt: time.Now(),
	}
	return r
}

// UpdateRegion applies a fresh status snapshot for a region, registering
// it if this is the first report seen from it.
func (r *Router) UpdateRegion(status domain.RegionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := status
	r.regions[status.Region] = &s
}

// RegionStatus returns the current status of a specific region.
func (r *Router) RegionStatus(id domain.RegionID) (domain.RegionStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.regions[id]; ok {
		return *s, true
	}
	return domain.RegionStatus{}, false
}

// AllRegionStatuses returns a snapshot of all known region statuses.
func (r *Router) AllRegionStatuses() []domain.RegionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RegionStatus, 0, len(r.regions))
	for _, s := range r.regions {
		out = append(out, *s)
	}
	return out
}

// Route determines the best region for a task, returning a RouteDecision.
func (r *Router) Route(routing domain.TaskRouting) domain.RouteDecision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	source := r.localReg

	if routing.RequiresRegion() {
		target := routing.DataResidency
		return domain.RouteDecision{
			TargetRegion:   target,
			SourceRegion:   source,
			LatencyPenalty: r.lat.Lookup(source, target),
			Reason:         "data-residency",
		}
	}

	if preferred := routing.PreferredRegion(); preferred != "" {
		if s, ok := r.regions[preferred]; ok && s.Healthy && s.Load() < r.loadThreshold {
			return domain.RouteDecision{
				TargetRegion:   preferred,
				SourceRegion:   source,
				LatencyPenalty: r.lat.Lookup(source, preferred),
				Reason:         "preferred-region",
			}
		}
	}

	if s, ok := r.regions[source]; ok && s.Healthy && s.Load() < r.loadThreshold {
		return domain.RouteDecision{
			TargetRegion:   source,
			SourceRegion:   source,
			LatencyPenalty: 0,
			Reason:         "same-region",
		}
	}

	type candidate struct {
		region  domain.RegionID
		score   float64
		latency float64
	}

	candidates := make([]candidate, 0, len(r.regions))
	for id, s := range r.regions {
		if !s.Healthy {
			continue
		}
		lat := r.lat.Lookup(source, id)
		if lat > r.maxLatencyMs {
			continue
		}
		loadScore := s.Load()
		latencyScore := lat / r.maxLatencyMs
		score := 0.7*loadScore + 0.3*latencyScore
		candidates = append(candidates, candidate{region: id, score: score, latency: lat})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })

	if len(candidates) > 0 {
		best := candidates[0]
		return domain.RouteDecision{
			TargetRegion:   best.region,
			SourceRegion:   source,
			LatencyPenalty: best.latency,
			Reason:         "lowest-load",
		}
	}

	return domain.RouteDecision{
		TargetRegion:   source,
		SourceRegion:   source,
		LatencyPenalty: 0,
		Reason:         "fallback",
	}
}

// HealthyRegionCount returns how many regions are currently marked healthy.
func (r *Router) HealthyRegionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, s := range r.regions {
		if s.Healthy {
			count++
		}
	}
	return count
}

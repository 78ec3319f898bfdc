// Package domain — geographic routing types.
// Regions are open-ended labels (not a closed enum): the mesh grows the
// latency map as new regions report telemetry, rather than shipping a
// fixed deployment topology.
package domain

import (
	"sort"
	"sync"
	"time"
)

// RegionID identifies a geographic or logical zone a node belongs to.
type RegionID string

// String returns the region as a plain string.
func (r RegionID) String() string { return string(r) }

// ─── Cross-Region Latency Map ───────────────────────────────────────────────

// LatencyMap tracks measured round-trip latency between region pairs.
// Safe for concurrent use; grows lazily as peers report cross-region
// round trips instead of shipping a fixed topology.
type LatencyMap struct {
	mu      sync.RWMutex
	samples map[string]latencyEntry
	fallbackMs int
}

type latencyEntry struct {
	ms        float64
	updatedAt time.Time
}

// NewLatencyMap creates a latency map with a conservative default for
// unknown region pairs.
func NewLatencyMap(fallbackMs int) *LatencyMap {
	return &LatencyMap{
		samples:    make(map[string]latencyEntry),
		fallbackMs: fallbackMs,
	}
}

func regionPairKey(a, b RegionID) string {
	if a > b {
		a, b = b, a
	}
	return string(a) + ":" + string(b)
}

// Record stores a measured latency sample between two regions.
func (m *LatencyMap) Record(a, b RegionID, ms float64, now time.Time) {
	if a == b {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[regionPairKey(a, b)] = latencyEntry{ms: ms, updatedAt: now}
}

// Lookup returns the approximate latency between two regions in
// milliseconds. Same-region pairs are always 0.
func (m *LatencyMap) Lookup(a, b RegionID) float64 {
	if a == b {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.samples[regionPairKey(a, b)]; ok {
		return e.ms
	}
	return float64(m.fallbackMs)
}

// EvictStale drops samples older than maxAge, forcing the orchestrator
// back onto the conservative fallback until fresh probes arrive.
func (m *LatencyMap) EvictStale(maxAge time.Duration, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for k, e := range m.samples {
		if now.Sub(e.updatedAt) > maxAge {
			delete(m.samples, k)
			evicted++
		}
	}
	return evicted
}

// ─── Region Status ──────────────────────────────────────────────────────────

// RegionStatus is a snapshot of a region's operational health and capacity.
type RegionStatus struct {
	Region       RegionID  `json:"region"`
	Healthy      bool      `json:"healthy"`
	NodeCount    int       `json:"node_count"`
	ActiveTasks  int       `json:"active_tasks"`
	QueueDepth   int       `json:"queue_depth"`
	AvgLatencyMs float64   `json:"avg_latency_ms"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Load returns the region's load factor (0.0 idle, 1.0+ overloaded).
func (rs RegionStatus) Load() float64 {
	if rs.NodeCount == 0 {
		return 1.0
	}
	return float64(rs.ActiveTasks) / float64(rs.NodeCount)
}

// ─── Routing ────────────────────────────────────────────────────────────────

// RouteDecision captures where and why a task was routed.
type RouteDecision struct {
	TargetRegion   RegionID `json:"target_region"`
	SourceRegion   RegionID `json:"source_region"`
	LatencyPenalty float64  `json:"latency_penalty_ms"`
	Reason         string   `json:"reason"` // "data-residency", "preferred-region", "same-region", "lowest-load", "fallback"
}

// TaskRouting extends a task with geographic and node placement constraints.
type TaskRouting struct {
	RegionAffinity []RegionID `json:"region_affinity,omitempty"`
	DataResidency  RegionID   `json:"data_residency,omitempty"`
	NodeWhitelist  []NodeID   `json:"node_whitelist,omitempty"`
	NodeBlacklist  []NodeID   `json:"node_blacklist,omitempty"`
}

// PreferredRegion returns the highest-priority region affinity, or empty.
func (tr TaskRouting) PreferredRegion() RegionID {
	if len(tr.RegionAffinity) > 0 {
		return tr.RegionAffinity[0]
	}
	return ""
}

// RequiresRegion reports whether data residency restricts placement.
func (tr TaskRouting) RequiresRegion() bool { return tr.DataResidency != "" }

// RankRegionsByLoad returns healthy regions sorted lowest-load first.
func RankRegionsByLoad(statuses []RegionStatus) []RegionStatus {
	ranked := make([]RegionStatus, 0, len(statuses))
	for _, s := range statuses {
		if s.Healthy {
			ranked = append(ranked, s)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Load() < ranked[j].Load() })
	return ranked
}

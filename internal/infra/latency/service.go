// Package latency tracks measured round-trip times between regions and
// exposes them to the region router and orchestrator scoring strategies.
// The region set is open-ended, so unlike the teacher's fixed topology
// this grows its map lazily from observed probes.
package latency

import (
	"context"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
)

// Config controls staleness handling.
type Config struct {
	// FallbackMs is returned for region pairs with no recent sample.
	FallbackMs int
	// MaxSampleAge is how long a recorded sample is trusted before
	// eviction forces a fallback to the conservative default again.
	MaxSampleAge time.Duration
	// SweepInterval is how often Run evicts stale samples.
	SweepInterval time.Duration
}

// DefaultConfig returns conservative production defaults.
func DefaultConfig() Config {
	return Config{
		FallbackMs:    250,
		MaxSampleAge:  10 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Service wraps domain.LatencyMap with a background eviction sweep.
type Service struct {
	config Config
	m      *domain.LatencyMap
}

// New creates a latency service.
func New(cfg Config) *Service {
	return &Service{config: cfg, m: domain.NewLatencyMap(cfg.FallbackMs)}
}

// Record stores a measured round trip between two regions.
func (s *Service) Record(a, b domain.RegionID, ms float64) {
	s.m.Record(a, b, ms, time.Now())
}

// Lookup returns the approximate latency between two regions.
func (s *Service) Lookup(a, b domain.RegionID) float64 {
	return s.m.Lookup(a, b)
}

// Run periodically evicts samples older than MaxSampleAge. Call in a
// goroutine; returns when ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if s.config.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.m.EvictStale(s.config.MaxSampleAge, time.Now())
		}
	}
}

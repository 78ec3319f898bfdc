// Package telemetry samples a node's energy and compute posture and
// evaluates the mesh-wide safety policy against it. A node in safe mode
// MUST NOT accept new task assignments until it recovers.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/metrics"
)

// Config controls sampling and safety thresholds.
type Config struct {
	Policy       domain.SafetyPolicy
	TickInterval time.Duration
}

// DefaultConfig returns conservative production defaults.
func DefaultConfig() Config {
	return Config{
		Policy:       domain.DefaultSafetyPolicy(),
		TickInterval: 5 * time.Second,
	}
}

// Monitor samples local energy/compute state on a tick loop and exposes
// the latest TelemetrySample plus whether the node is currently in safe
// mode. Architecture mirrors the teacher's resource governor: sensors
// feed a recomputed snapshot rather than being read inline by callers.
type Monitor struct {
	mu      sync.RWMutex
	nodeID  domain.NodeID
	thermal *ThermalMonitor
	battery *BatteryMonitor
	config  Config
	sample  domain.TelemetrySample
	active  int
}

// NewMonitor creates a telemetry monitor for the given node.
func NewMonitor(nodeID domain.NodeID, cfg Config) *Monitor {
	return &Monitor{
		nodeID:  nodeID,
		thermal: NewThermalMonitor(),
		battery: NewBatteryMonitor(),
		config:  cfg,
		sample: domain.TelemetrySample{
			NodeID:    nodeID,
			SampledAt: time.Now(),
		},
	}
}

// Sample returns the latest telemetry sample (thread-safe).
func (m *Monitor) Sample() domain.TelemetrySample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sample
}

// SafeMode reports whether the node is currently shedding new work.
func (m *Monitor) SafeMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sample.SafeMode(m.config.Policy)
}

// IncrActiveTasks records a new in-flight task for capacity accounting.
func (m *Monitor) IncrActiveTasks() {
	m.mu.Lock()
	m.active++
	m.mu.Unlock()
}

// DecrActiveTasks releases an in-flight task slot.
func (m *Monitor) DecrActiveTasks() {
	m.mu.Lock()
	if m.active > 0 {
		m.active--
	}
	m.mu.Unlock()
}

// Run starts the sampling tick loop. Call in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick recomputes the telemetry sample from all sensors.
func (m *Monitor) tick() {
	onAC := !m.battery.IsPresent() || m.battery.IsCharging()
	batteryPct := 100.0
	if m.battery.IsPresent() {
		batteryPct = float64(m.battery.Percentage())
	}

	m.mu.Lock()
	active := m.active
	sample := domain.TelemetrySample{
		NodeID: m.nodeID,
		Energy: domain.EnergyProfile{
			OnACPower:    onAC,
			BatteryPct:   batteryPct,
			ThermalCeilC: m.config.Policy.MaxThermalC,
			ThermalReadC: float64(m.thermal.CPUTemp()),
		},
		Compute: domain.ComputeProfile{
			CurrentLoad: loadFactor(active, m.config.Policy.MaxConcurrent),
		},
		SampledAt:   time.Now(),
		ActiveTasks: active,
	}
	m.sample = sample
	m.mu.Unlock()

	metrics.ThermalReadC.Set(sample.Energy.ThermalReadC)
	metrics.BatteryPct.Set(sample.Energy.BatteryPct)
	metrics.ActiveTasks.Set(float64(active))
	if sample.SafeMode(m.config.Policy) {
		metrics.SafeModeActive.Set(1)
	} else {
		metrics.SafeModeActive.Set(0)
	}
}

func loadFactor(active, maxConcurrent int) float64 {
	if maxConcurrent <= 0 {
		return 0
	}
	load := float64(active) / float64(maxConcurrent)
	if load > 1 {
		return 1
	}
	return load
}

package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
)

func TestMonitor_InitialSampleNotSafeMode(t *testing.T) {
	m := NewMonitor(domain.NodeID("node-1"), DefaultConfig())
	if m.SafeMode() {
		t.Error("fresh monitor should not start in safe mode")
	}
}

func TestMonitor_ActiveTaskAccounting(t *testing.T) {
	m := NewMonitor(domain.NodeID("node-1"), DefaultConfig())
	m.IncrActiveTasks()
	m.IncrActiveTasks()
	m.DecrActiveTasks()
	if m.sample.ActiveTasks != 0 {
		// active task count is only folded into the sample on tick
	}
	m.tick()
	if m.active != 1 {
		t.Errorf("active = %d, want 1", m.active)
	}
}

func TestMonitor_DecrActiveTasksNeverNegative(t *testing.T) {
	m := NewMonitor(domain.NodeID("node-1"), DefaultConfig())
	m.DecrActiveTasks()
	if m.active < 0 {
		t.Errorf("active went negative: %d", m.active)
	}
}

func TestMonitor_RunStopsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickInterval = time.Millisecond
	m := NewMonitor(domain.NodeID("node-1"), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}

func TestLoadFactor(t *testing.T) {
	tests := []struct {
		active, max int
		want        float64
	}{
		{0, 4, 0},
		{2, 4, 0.5},
		{8, 4, 1}, // clamped
		{1, 0, 0}, // guard against div by zero
	}
	for _, tt := range tests {
		if got := loadFactor(tt.active, tt.max); got != tt.want {
			t.Errorf("loadFactor(%d,%d) = %v, want %v", tt.active, tt.max, got, tt.want)
		}
	}
}

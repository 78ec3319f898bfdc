package domain

import (
	"testing"
	"time"
)

// ─── Task Tests ─────────────────────────────────────────────────────────────

func TestTaskStatus_Constants(t *testing.T) {
	statuses := []TaskStatus{
		TaskQueued, TaskAssigned, TaskExecuting, TaskVerifying,
		TaskCompleted, TaskFailed, TaskCancelled,
	}
	seen := make(map[TaskStatus]bool)
	for _, s := range statuses {
		if seen[s] {
			t.Errorf("duplicate TaskStatus: %s", s)
		}
		seen[s] = true
	}
	if len(seen) != 7 {
		t.Errorf("expected 7 unique TaskStatus, got %d", len(seen))
	}
}

func TestTask_IsTerminal(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		terminal bool
	}{
		{TaskQueued, false},
		{TaskAssigned, false},
		{TaskExecuting, false},
		{TaskVerifying, false},
		{TaskCompleted, true},
		{TaskFailed, true},
		{TaskCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			task := TaskPayload{Status: tt.status}
			if got := task.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestTask_Duration(t *testing.T) {
	start := time.Now()
	end := start.Add(5 * time.Second)

	task := TaskPayload{StartedAt: start, CompletedAt: end}
	if d := task.Duration(); d != 5*time.Second {
		t.Errorf("Duration() = %v, want 5s", d)
	}

	task2 := TaskPayload{}
	if d := task2.Duration(); d != 0 {
		t.Errorf("Duration() of unstarted task = %v, want 0", d)
	}
}

func TestTask_CanRetry(t *testing.T) {
	task := TaskPayload{Attempt: 2, MaxRetries: 3}
	if !task.CanRetry() {
		t.Error("CanRetry() = false, want true when attempt < max")
	}
	task.Attempt = 3
	if task.CanRetry() {
		t.Error("CanRetry() = true, want false when attempt == max")
	}
}

// ─── Peer Tests ─────────────────────────────────────────────────────────────

func TestPeerState_Constants(t *testing.T) {
	if PeerAlive != "ALIVE" {
		t.Errorf("PeerAlive = %q, want ALIVE", PeerAlive)
	}
	if PeerSuspect != "SUSPECT" {
		t.Errorf("PeerSuspect = %q, want SUSPECT", PeerSuspect)
	}
	if PeerDead != "DEAD" {
		t.Errorf("PeerDead = %q, want DEAD", PeerDead)
	}
}

func TestPeer_IsReachable(t *testing.T) {
	tests := []struct {
		state     PeerState
		reachable bool
	}{
		{PeerAlive, true},
		{PeerSuspect, false},
		{PeerDead, false},
	}
	for _, tt := range tests {
		peer := Peer{State: tt.state}
		if got := peer.IsReachable(); got != tt.reachable {
			t.Errorf("IsReachable() with state %s = %v, want %v", tt.state, got, tt.reachable)
		}
	}
}

func TestPeer_IsTrusted(t *testing.T) {
	peer := Peer{Reputation: 0.7}
	if !peer.IsTrusted(0.5) {
		t.Error("0.7 should be trusted at 0.5 threshold")
	}
	if peer.IsTrusted(0.8) {
		t.Error("0.7 should NOT be trusted at 0.8 threshold")
	}
}

// ─── Telemetry / Safe-Mode Tests ────────────────────────────────────────────

func TestEnergyProfile_IsConstrained(t *testing.T) {
	tests := []struct {
		name string
		e    EnergyProfile
		want bool
	}{
		{"on ac", EnergyProfile{OnACPower: true, BatteryPct: 5}, false},
		{"low battery", EnergyProfile{OnACPower: false, BatteryPct: 10}, true},
		{"plenty battery", EnergyProfile{OnACPower: false, BatteryPct: 90}, false},
		{"over thermal ceiling", EnergyProfile{OnACPower: true, ThermalCeilC: 80, ThermalReadC: 85}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.IsConstrained(); got != tt.want {
				t.Errorf("IsConstrained() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTelemetrySample_SafeMode(t *testing.T) {
	policy := DefaultSafetyPolicy()

	hot := TelemetrySample{Energy: EnergyProfile{OnACPower: true, ThermalReadC: 90}}
	if !hot.SafeMode(policy) {
		t.Error("expected safe mode when thermal read exceeds policy ceiling")
	}

	ok := TelemetrySample{Energy: EnergyProfile{OnACPower: true, ThermalReadC: 50}}
	if ok.SafeMode(policy) {
		t.Error("expected no safe mode under normal conditions")
	}

	saturated := TelemetrySample{Energy: EnergyProfile{OnACPower: true}, ActiveTasks: policy.MaxConcurrent}
	if !saturated.SafeMode(policy) {
		t.Error("expected safe mode when active tasks reach max concurrent")
	}
}

func TestTelemetrySample_HealthScore(t *testing.T) {
	policy := DefaultSafetyPolicy()
	sample := TelemetrySample{
		Energy:  EnergyProfile{OnACPower: true, ThermalReadC: 50},
		Compute: ComputeProfile{CurrentLoad: 0.25},
	}
	if score := sample.HealthScore(policy); score <= 0 || score > 1 {
		t.Errorf("HealthScore() = %v, want in (0,1]", score)
	}

	hot := TelemetrySample{Energy: EnergyProfile{OnACPower: true, ThermalReadC: 99}}
	if score := hot.HealthScore(policy); score != 0 {
		t.Errorf("HealthScore() in safe mode = %v, want 0", score)
	}
}

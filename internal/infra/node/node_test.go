package node

import (
	"testing"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/finetune"
	"github.com/ailee-network/ailee-core/internal/security"
)

func testNode(t *testing.T) *AmbientNode {
	t.Helper()
	kp, err := security.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return New(kp, "us-east", domain.DefaultSafetyPolicy(), nil)
}

func TestAmbientNode_RegisterThenActivate(t *testing.T) {
	n := testNode(t)
	if n.State() != StateUnregistered {
		t.Fatalf("initial state = %v, want Unregistered", n.State())
	}
	if err := n.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := n.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if n.State() != StateActive {
		t.Errorf("state = %v, want Active", n.State())
	}
}

func TestAmbientNode_InvalidTransitionRejected(t *testing.T) {
	n := testNode(t)
	if err := n.Activate(); err != domain.ErrInvalidStateTransition {
		t.Errorf("err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestAmbientNode_UnregisterFromAnyState(t *testing.T) {
	n := testNode(t)
	n.Register()
	n.Activate()
	n.Unregister()
	if n.State() != StateUnregistered {
		t.Errorf("state = %v, want Unregistered", n.State())
	}
}

func TestAmbientNode_UnsafeTelemetryEntersSafeMode(t *testing.T) {
	n := testNode(t)
	n.Register()
	n.Activate()

	err := n.IngestTelemetry(domain.TelemetrySample{
		NodeID:    n.NodeID(),
		Energy:    domain.EnergyProfile{OnACPower: false, BatteryPct: 5},
		SampledAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("IngestTelemetry: %v", err)
	}
	if n.State() != StateSafeMode {
		t.Errorf("state = %v, want SafeMode", n.State())
	}
}

func TestAmbientNode_RecoveryFromSafeMode(t *testing.T) {
	n := testNode(t)
	n.Register()
	n.Activate()
	n.IngestTelemetry(domain.TelemetrySample{Energy: domain.EnergyProfile{OnACPower: false, BatteryPct: 1}, SampledAt: time.Now()})
	if n.State() != StateSafeMode {
		t.Fatalf("expected SafeMode, got %v", n.State())
	}

	n.IngestTelemetry(domain.TelemetrySample{Energy: domain.EnergyProfile{OnACPower: true, BatteryPct: 100}, SampledAt: time.Now()})
	if n.State() != StateActive {
		t.Errorf("state = %v, want Active after recovery", n.State())
	}
}

func TestAmbientNode_HealthScoreZeroInSafeMode(t *testing.T) {
	n := testNode(t)
	n.Register()
	n.Activate()
	n.IngestTelemetry(domain.TelemetrySample{
		Energy:    domain.EnergyProfile{OnACPower: false, BatteryPct: 1},
		Compute:   domain.ComputeProfile{CurrentLoad: 0.1},
		SampledAt: time.Now(),
	})
	if score := n.HealthScore(); score != 0 {
		t.Errorf("HealthScore = %v, want 0 in safe mode", score)
	}
}

func TestAmbientNode_RunLocalTrainingNilTrainerIsNoop(t *testing.T) {
	n := testNode(t)
	if err := n.RunLocalTraining("job-1"); err != nil {
		t.Errorf("expected nil-trainer no-op, got %v", err)
	}
}

type fakeTrainer struct {
	ran bool
}

func (f *fakeTrainer) RunRound(job string, nodeID domain.NodeID) error {
	f.ran = true
	return nil
}

func TestAmbientNode_RunLocalTrainingDelegates(t *testing.T) {
	kp, _ := security.GenerateKeypair()
	trainer := &fakeTrainer{}
	n := New(kp, "us-east", domain.DefaultSafetyPolicy(), trainer)
	if err := n.RunLocalTraining("job-1"); err != nil {
		t.Fatalf("RunLocalTraining: %v", err)
	}
	if !trainer.ran {
		t.Error("expected trainer to be invoked")
	}
}

func TestAmbientNode_RunLocalTrainingDelegatesToRealCoordinator(t *testing.T) {
	coord := finetune.NewCoordinator(finetune.DefaultCoordinatorConfig())
	coord.SubmitRound(finetune.TrainingRound{ID: "round-1", MinNodes: 1})

	kp, _ := security.GenerateKeypair()
	n := New(kp, "us-east", domain.DefaultSafetyPolicy(), coord)

	if err := n.RunLocalTraining("round-1"); err != nil {
		t.Fatalf("RunLocalTraining: %v", err)
	}
	round, err := coord.GetRound("round-1")
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if round.Status != finetune.RoundTraining {
		t.Errorf("status = %s, want TRAINING after delegated RunRound", round.Status)
	}
}

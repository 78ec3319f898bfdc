package node

import (
	"context"
	"testing"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/proof"
	"github.com/ailee-network/ailee-core/internal/infra/sandbox"
	"github.com/ailee-network/ailee-core/internal/security"
)

func testModule() []byte {
	return []byte("load store call add load store")
}

func TestLocalDispatcher_DispatchSucceeds(t *testing.T) {
	sb := sandbox.NewEngine(sandbox.NewReferenceBackend(), 1<<20)
	hash, err := sb.LoadModule(testModule())
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	kp, _ := security.GenerateKeypair()
	d := NewLocalDispatcher(sb, proof.NewProver(kp), "node-local")

	task := domain.TaskPayload{
		ID:   "task-1",
		Type: domain.TaskCompute,
		Call: domain.WasmCall{
			ModuleHash: hash,
			Entrypoint: "main",
			Input:      []byte("hello"),
			Limits:     domain.DefaultSandboxLimits(),
		},
	}
	assignment := d.Dispatch(context.Background(), task, domain.Assignment{TaskID: task.ID})
	if !assignment.Assigned {
		t.Fatalf("expected assignment to succeed, reason: %s", assignment.Reason)
	}
	if assignment.NodeID != "node-local" {
		t.Errorf("NodeID = %s, want node-local", assignment.NodeID)
	}
}

func TestLocalDispatcher_UnknownModuleFails(t *testing.T) {
	sb := sandbox.NewEngine(sandbox.NewReferenceBackend(), 1<<20)
	kp, _ := security.GenerateKeypair()
	d := NewLocalDispatcher(sb, proof.NewProver(kp), "node-local")

	task := domain.TaskPayload{
		ID:   "task-2",
		Call: domain.WasmCall{ModuleHash: "unknown", Limits: domain.DefaultSandboxLimits()},
	}
	assignment := d.Dispatch(context.Background(), task, domain.Assignment{TaskID: task.ID})
	if assignment.Assigned {
		t.Error("expected dispatch against an unloaded module to fail")
	}
}

package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
)

func testModule() []byte {
	return []byte("load store call add load store")
}

func TestEngine_LoadModuleIsIdempotent(t *testing.T) {
	e := NewEngine(NewReferenceBackend(), 1<<20)
	h1, err := e.LoadModule(testModule())
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	h2, err := e.LoadModule(testModule())
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash changed across identical loads: %s vs %s", h1, h2)
	}
	if e.Pool().CachedModules() != 1 {
		t.Errorf("CachedModules = %d, want 1", e.Pool().CachedModules())
	}
}

func TestEngine_ExecuteSucceedsWithinLimits(t *testing.T) {
	e := NewEngine(NewReferenceBackend(), 1<<20)
	hash, err := e.LoadModule(testModule())
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}

	call := domain.WasmCall{
		ModuleHash: hash,
		Entrypoint: "main",
		Input:      []byte("hello"),
		Limits:     domain.DefaultSandboxLimits(),
	}
	result, err := e.Execute(context.Background(), call)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Succeeded() {
		t.Errorf("expected success, got overflow %q", result.Overflow)
	}
	if len(result.Output) == 0 {
		t.Error("expected non-empty output")
	}
}

func TestEngine_ExecuteUnknownModule(t *testing.T) {
	e := NewEngine(NewReferenceBackend(), 1<<20)
	call := domain.WasmCall{ModuleHash: "deadbeef", Entrypoint: "main"}
	_, err := e.Execute(context.Background(), call)
	if !errors.Is(err, domain.ErrModuleNotFound) {
		t.Errorf("err = %v, want ErrModuleNotFound", err)
	}
}

func TestEngine_ExecuteExceedsInstrCount(t *testing.T) {
	e := NewEngine(NewReferenceBackend(), 1<<20)
	hash, _ := e.LoadModule(testModule())

	call := domain.WasmCall{
		ModuleHash: hash,
		Entrypoint: "main",
		Limits:     domain.SandboxLimits{MaxInstrCount: 2},
	}
	result, err := e.Execute(context.Background(), call)
	if !errors.Is(err, domain.ErrSandboxInstrCount) {
		t.Fatalf("err = %v, want ErrSandboxInstrCount", err)
	}
	if result.Overflow != domain.OverflowInstr {
		t.Errorf("Overflow = %q, want %q", result.Overflow, domain.OverflowInstr)
	}
}

func TestEngine_ExecuteExceedsGasLimit(t *testing.T) {
	e := NewEngine(NewReferenceBackend(), 1<<20)
	hash, _ := e.LoadModule(testModule())

	call := domain.WasmCall{
		ModuleHash: hash,
		Entrypoint: "main",
		Limits:     domain.SandboxLimits{GasLimit: 1},
	}
	result, err := e.Execute(context.Background(), call)
	if !errors.Is(err, domain.ErrSandboxGas) {
		t.Fatalf("err = %v, want ErrSandboxGas", err)
	}
	if result.Overflow != domain.OverflowGas {
		t.Errorf("Overflow = %q, want %q", result.Overflow, domain.OverflowGas)
	}
}

func TestEngine_ExecuteTimeout(t *testing.T) {
	e := NewEngine(NewReferenceBackend(), 1<<20)
	hash, _ := e.LoadModule(testModule())

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	call := domain.WasmCall{ModuleHash: hash, Entrypoint: "main", Limits: domain.DefaultSandboxLimits()}
	result, err := e.Execute(ctx, call)
	if !errors.Is(err, domain.ErrSandboxTimeout) {
		t.Fatalf("err = %v, want ErrSandboxTimeout", err)
	}
	if result.Overflow != domain.OverflowTimeout {
		t.Errorf("Overflow = %q, want %q", result.Overflow, domain.OverflowTimeout)
	}
}

func TestEngine_ExecuteWithTraceIsPopulated(t *testing.T) {
	e := NewEngine(NewReferenceBackend(), 1<<20)
	hash, _ := e.LoadModule(testModule())

	call := domain.WasmCall{ModuleHash: hash, Entrypoint: "main", Limits: domain.DefaultSandboxLimits()}
	result, err := e.ExecuteWithTrace(context.Background(), call)
	if err != nil {
		t.Fatalf("ExecuteWithTrace: %v", err)
	}
	if len(result.Trace) == 0 {
		t.Fatal("expected non-empty trace")
	}
	if result.Trace[0].Index != 0 {
		t.Errorf("Trace[0].Index = %d, want 0", result.Trace[0].Index)
	}
}

func TestEngine_VerifyDeterminismAgreesOnRepeatedRuns(t *testing.T) {
	e := NewEngine(NewReferenceBackend(), 1<<20)
	hash, _ := e.LoadModule(testModule())

	call := domain.WasmCall{ModuleHash: hash, Entrypoint: "main", Input: []byte("x"), Limits: domain.DefaultSandboxLimits()}
	deterministic, err := e.VerifyDeterminism(context.Background(), call, 5)
	if err != nil {
		t.Fatalf("VerifyDeterminism: %v", err)
	}
	if !deterministic {
		t.Error("expected reference backend to be deterministic")
	}
}

func TestModulePool_EvictsOnlyUnreferenced(t *testing.T) {
	backend := NewReferenceBackend()
	pool := NewModulePool(backend, 8)

	held, err := pool.Acquire([]byte("aaaaaaaa"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	if _, err := pool.Acquire([]byte("bbbbbbbb")); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("err = %v, want ErrPoolExhausted", err)
	}
}

func TestModulePool_EvictsAfterRelease(t *testing.T) {
	backend := NewReferenceBackend()
	pool := NewModulePool(backend, 8)

	held, err := pool.Acquire([]byte("aaaaaaaa"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	held.Release()

	if _, err := pool.Acquire([]byte("bbbbbbbb")); err != nil {
		t.Errorf("expected eviction to free room, got %v", err)
	}
	if pool.CachedModules() != 1 {
		t.Errorf("CachedModules = %d, want 1", pool.CachedModules())
	}
}

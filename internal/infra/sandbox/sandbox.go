package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/metrics"
)

// Engine executes WasmCalls against a backend, applying timeout
// enforcement and module caching on top of whatever the backend itself
// guards against.
type Engine struct {
	pool    *ModulePool
	backend domain.SandboxBackend
}

// NewEngine wires an execution engine around backend, caching loaded
// modules up to maxCacheBytes.
func NewEngine(backend domain.SandboxBackend, maxCacheBytes uint64) *Engine {
	return &Engine{
		pool:    NewModulePool(backend, maxCacheBytes),
		backend: backend,
	}
}

// LoadModule registers moduleBytes in the cache and returns its hash.
func (e *Engine) LoadModule(moduleBytes []byte) (string, error) {
	handle, err := e.pool.Acquire(moduleBytes)
	if err != nil {
		return "", err
	}
	defer handle.Release()
	return handle.ModuleHash(), nil
}

// Execute runs call.Entrypoint against the module named by
// call.ModuleHash, enforcing call.Limits.Timeout as a context deadline
// on top of the backend's own resource accounting.
func (e *Engine) Execute(ctx context.Context, call domain.WasmCall) (domain.WasmResult, error) {
	limits := call.Limits
	if limits == (domain.SandboxLimits{}) {
		limits = domain.DefaultSandboxLimits()
		call.Limits = limits
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if limits.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := e.backend.Run(runCtx, call)
	result.Duration = time.Since(start)

	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues("error").Inc()
		return result, fmt.Errorf("execute %s: %w", call.Entrypoint, err)
	}

	if runCtx.Err() != nil && result.Overflow == domain.OverflowNone {
		result.Overflow = domain.OverflowTimeout
	}

	metrics.ExecutionLatency.WithLabelValues(call.ModuleHash).Observe(result.Duration.Seconds())
	overflowLabel := string(result.Overflow)
	if overflowLabel == "" {
		overflowLabel = "none"
	}
	metrics.ExecutionsTotal.WithLabelValues(overflowLabel).Inc()

	return result, overflowError(result.Overflow)
}

// ExecuteWithTrace runs call and guarantees the result carries a
// populated Trace, used by the proof builder to construct Merkle leaves.
func (e *Engine) ExecuteWithTrace(ctx context.Context, call domain.WasmCall) (domain.WasmResult, error) {
	result, err := e.Execute(ctx, call)
	if err == nil && len(result.Trace) == 0 {
		return result, fmt.Errorf("execute %s: backend produced no trace", call.Entrypoint)
	}
	return result, err
}

// VerifyDeterminism re-runs call n times and reports whether every run
// produced byte-identical output and the same overflow flag; traces are
// not compared. Used by verifier nodes to
// spot-check a claimed-deterministic module before trusting its proofs.
func (e *Engine) VerifyDeterminism(ctx context.Context, call domain.WasmCall, n int) (bool, error) {
	if n < 2 {
		n = 2
	}
	var first domain.WasmResult
	for i := 0; i < n; i++ {
		result, err := e.Execute(ctx, call)
		if err != nil && result.Overflow == domain.OverflowNone {
			return false, err
		}
		if i == 0 {
			first = result
			continue
		}
		if !bytes.Equal(first.Output, result.Output) || first.Overflow != result.Overflow {
			return false, nil
		}
	}
	return true, nil
}

// Pool exposes the underlying module cache for metrics and shutdown.
func (e *Engine) Pool() *ModulePool { return e.pool }

func overflowError(flag domain.OverflowFlag) error {
	switch flag {
	case domain.OverflowNone:
		return nil
	case domain.OverflowTimeout:
		return domain.ErrSandboxTimeout
	case domain.OverflowMemory:
		return domain.ErrSandboxMemory
	case domain.OverflowInstr:
		return domain.ErrSandboxInstrCount
	case domain.OverflowGas:
		return domain.ErrSandboxGas
	case domain.OverflowDepth:
		return domain.ErrSandboxCallDepth
	default:
		return nil
	}
}

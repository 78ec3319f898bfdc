package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/ailee-network/ailee-core/internal/domain"
)

// ReferenceBackend is a deterministic, pure-Go stand-in for a WASM
// runtime. It has no external module binary to shell out to; instead it
// interprets a module's bytes as a tiny opcode tape so execution stays
// fully reproducible across nodes, which is what quorum verification
// requires.
type ReferenceBackend struct {
	mu      sync.RWMutex
	modules map[string][]byte
}

// NewReferenceBackend returns a backend ready to Load modules.
func NewReferenceBackend() *ReferenceBackend {
	return &ReferenceBackend{modules: make(map[string][]byte)}
}

// Load registers module bytes under their sha256 hash.
func (b *ReferenceBackend) Load(moduleBytes []byte) (string, error) {
	if len(moduleBytes) == 0 {
		return "", fmt.Errorf("load: empty module")
	}
	sum := sha256.Sum256(moduleBytes)
	hash := hex.EncodeToString(sum[:])

	b.mu.Lock()
	b.modules[hash] = moduleBytes
	b.mu.Unlock()
	return hash, nil
}

// Run interprets the module tape deterministically against the call's
// input and limits. Each whitespace-separated token in the module is
// treated as one opcode, run in order from the first token; the
// entrypoint is folded into the output hash but does not change where
// execution starts. This is intentionally simple: what matters for the mesh
// is that every honest node computes byte-identical output and trace
// for the same (module, entrypoint, input), not realistic WASM
// semantics.
func (b *ReferenceBackend) Run(ctx context.Context, call domain.WasmCall) (domain.WasmResult, error) {
	b.mu.RLock()
	module, ok := b.modules[call.ModuleHash]
	b.mu.RUnlock()
	if !ok {
		return domain.WasmResult{}, domain.ErrModuleNotFound
	}

	select {
	case <-ctx.Done():
		return domain.WasmResult{Overflow: domain.OverflowTimeout}, nil
	default:
	}

	opcodes := strings.Fields(string(module))
	if len(opcodes) == 0 {
		opcodes = []string{call.Entrypoint}
	}

	var (
		instrExecuted uint64
		gasUsed       uint64
		acc           = fnv.New64a()
		trace         []domain.TraceStep
		depth         = 1
	)
	acc.Write([]byte(call.Entrypoint))
	acc.Write(call.Input)

	limits := call.Limits
	for i, op := range opcodes {
		select {
		case <-ctx.Done():
			return domain.WasmResult{
				InstrExecuted: instrExecuted,
				GasUsed:       gasUsed,
				Overflow:      domain.OverflowTimeout,
				Trace:         trace,
			}, nil
		default:
		}

		instrExecuted++
		gasUsed += opcodeCost(op)
		acc.Write([]byte(op))

		if strings.HasPrefix(op, "call") {
			depth++
		}

		trace = append(trace, domain.TraceStep{
			Index:    i,
			Opcode:   op,
			StackSig: hex.EncodeToString(acc.Sum(nil)),
		})

		if limits.MaxInstrCount > 0 && instrExecuted > limits.MaxInstrCount {
			return domain.WasmResult{InstrExecuted: instrExecuted, GasUsed: gasUsed, Overflow: domain.OverflowInstr, Trace: trace}, nil
		}
		if limits.GasLimit > 0 && gasUsed > limits.GasLimit {
			return domain.WasmResult{InstrExecuted: instrExecuted, GasUsed: gasUsed, Overflow: domain.OverflowGas, Trace: trace}, nil
		}
		if limits.MaxCallDepth > 0 && depth > limits.MaxCallDepth {
			return domain.WasmResult{InstrExecuted: instrExecuted, GasUsed: gasUsed, Overflow: domain.OverflowDepth, Trace: trace}, nil
		}
	}

	peakMem := uint64(len(module) + len(call.Input))
	if limits.MaxMemoryBytes > 0 && peakMem > limits.MaxMemoryBytes {
		return domain.WasmResult{InstrExecuted: instrExecuted, GasUsed: gasUsed, PeakMemory: peakMem, Overflow: domain.OverflowMemory, Trace: trace}, nil
	}

	return domain.WasmResult{
		Output:        acc.Sum(nil),
		InstrExecuted: instrExecuted,
		GasUsed:       gasUsed,
		PeakMemory:    peakMem,
		Trace:         trace,
	}, nil
}

func opcodeCost(op string) uint64 {
	switch {
	case strings.HasPrefix(op, "call"):
		return 10
	case strings.HasPrefix(op, "load"), strings.HasPrefix(op, "store"):
		return 3
	default:
		return 1
	}
}

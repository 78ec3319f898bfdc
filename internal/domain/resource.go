// Package domain — sandbox execution types.
// A WasmCall is a request to run one module inside a resource-bounded
// sandbox; a WasmResult carries its output plus the resource usage the
// sandbox measured while running it.
package domain

import "time"

// SandboxLimits bounds what a single execution is allowed to consume.
// The execution engine MUST enforce every field; exceeding one aborts the
// call with the corresponding overflow flag set on the result.
type SandboxLimits struct {
	Timeout        time.Duration `json:"timeout"`
	MaxMemoryBytes uint64        `json:"max_memory_bytes"`
	MaxInstrCount  uint64        `json:"max_instr_count"`
	GasLimit       uint64        `json:"gas_limit"`
	MaxCallDepth   int           `json:"max_call_depth"`
}

// DefaultSandboxLimits matches the mesh-wide configuration surface default.
func DefaultSandboxLimits() SandboxLimits {
	return SandboxLimits{
		Timeout:        5 * time.Second,
		MaxMemoryBytes: 256 * 1024 * 1024,
		MaxInstrCount:  50_000_000,
		GasLimit:       10_000_000,
		MaxCallDepth:   64,
	}
}

// WasmCall is a request to execute a module's entrypoint with the given
// input against a set of resource limits.
type WasmCall struct {
	ModuleHash string        `json:"module_hash"`
	Entrypoint string        `json:"entrypoint"`
	Input      []byte        `json:"input"`
	Limits     SandboxLimits `json:"limits"`
}

// OverflowFlag names which resource limit a call exceeded, if any.
type OverflowFlag string

const (
	OverflowNone     OverflowFlag = ""
	OverflowTimeout  OverflowFlag = "timeout"
	OverflowMemory   OverflowFlag = "memory"
	OverflowInstr    OverflowFlag = "instr_count"
	OverflowGas      OverflowFlag = "gas"
	OverflowDepth    OverflowFlag = "call_depth"
)

// WasmResult is what the sandbox produces from a WasmCall.
type WasmResult struct {
	Output        []byte       `json:"output"`
	InstrExecuted uint64       `json:"instr_executed"`
	GasUsed       uint64       `json:"gas_used"`
	PeakMemory    uint64       `json:"peak_memory_bytes"`
	Duration      time.Duration `json:"duration"`
	Overflow      OverflowFlag `json:"overflow,omitempty"`
	Trace         []TraceStep  `json:"trace,omitempty"`
}

// Succeeded reports whether the call completed without hitting a limit.
func (r WasmResult) Succeeded() bool { return r.Overflow == OverflowNone }

// TraceStep is one recorded execution step, used to build the Merkle
// proof tree over a call's trajectory.
type TraceStep struct {
	Index    int    `json:"index"`
	Opcode   string `json:"opcode"`
	StackSig string `json:"stack_sig"` // hash of operand stack at this step
}

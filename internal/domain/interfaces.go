package domain

import (
	"context"
	"time"
)

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries between layers. Infrastructure
// implements them; application-layer code depends only on the interface.

// MessageBus abstracts the pub/sub transport used to distribute tasks and
// collect results across the mesh. Implemented by internal/bus.
type MessageBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (unsubscribe func(), err error)
	SendDirect(ctx context.Context, nodeID NodeID, payload []byte) error
	Close() error
}

// KVStore abstracts durable key/value persistence for nonce ceilings,
// reputation audit logs, and proof archives. Implemented by internal/store.
type KVStore interface {
	Put(ctx context.Context, bucket, key string, value []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	Snapshot(ctx context.Context, bucket string) (map[string][]byte, error)
}

// SandboxBackend abstracts the deterministic execution runtime a module
// cache hands calls to. A real deployment would back this with a
// WebAssembly runtime; the reference backend satisfies it directly.
type SandboxBackend interface {
	// Load validates and registers a module's bytecode, returning its
	// content-addressed hash.
	Load(moduleBytes []byte) (moduleHash string, err error)
	// Run executes a loaded module's entrypoint under the given limits.
	Run(ctx context.Context, call WasmCall) (WasmResult, error)
}

// Clock abstracts time for deterministic tests across the mesh packages.
type Clock interface {
	Now() time.Time
}

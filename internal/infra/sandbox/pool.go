// Package sandbox runs modules under resource limits and produces the
// execution trace needed to build a proof. It holds an LRU, reference
// counted cache of loaded modules in front of a pluggable
// domain.SandboxBackend, the same discipline the teacher's inference
// engine used for loaded models.
package sandbox

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/metrics"
)

// ModulePool manages loaded modules with LRU eviction and reference
// counting. Lookups and releases are O(1); eviction walks back from the
// least recently used entry past any still in use. Callers MUST release
// acquired handles (use defer) or the module never becomes evictable.
type ModulePool struct {
	mu      sync.Mutex
	modules map[string]*poolEntry
	lru     *list.List
	maxMem  uint64
	usedMem uint64
	backend domain.SandboxBackend

	idleTimeout  time.Duration
	reapInterval time.Duration
}

type poolEntry struct {
	moduleHash string
	memBytes   uint64
	refCount   int32
	element    *list.Element
	lastUsed   time.Time
}

// ModuleHandle is returned by Acquire. Caller MUST call Release().
type ModuleHandle struct {
	entry *poolEntry
	pool  *ModulePool
}

// ErrPoolExhausted is returned when no module can be evicted to make
// room for a new one (every cached module is in use).
var ErrPoolExhausted = fmt.Errorf("module cache exhausted: no evictable entry")

// NewModulePool creates a module cache bounded by maxMemBytes, reporting
// memory estimates the backend.Load step returns.
func NewModulePool(backend domain.SandboxBackend, maxMemBytes uint64) *ModulePool {
	return &ModulePool{
		modules:      make(map[string]*poolEntry),
		lru:          list.New(),
		maxMem:       maxMemBytes,
		backend:      backend,
		idleTimeout:  5 * time.Minute,
		reapInterval: 30 * time.Second,
	}
}

// Acquire loads or retrieves a cached module by its bytecode, estimating
// memory cost as len(moduleBytes) (a real WASM runtime would report the
// compiled module's footprint instead).
func (p *ModulePool) Acquire(moduleBytes []byte) (*ModuleHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash, err := p.backend.Load(moduleBytes)
	if err != nil {
		return nil, fmt.Errorf("load module: %w", err)
	}

	if entry, ok := p.modules[hash]; ok {
		atomic.AddInt32(&entry.refCount, 1)
		entry.lastUsed = time.Now()
		p.lru.MoveToFront(entry.element)
		return &ModuleHandle{entry: entry, pool: p}, nil
	}

	memNeeded := uint64(len(moduleBytes))
	for p.usedMem+memNeeded > p.maxMem && p.lru.Len() > 0 {
		if !p.evictOne() {
			return nil, ErrPoolExhausted
		}
	}

	entry := &poolEntry{
		moduleHash: hash,
		memBytes:   memNeeded,
		refCount:   1,
		lastUsed:   time.Now(),
	}
	entry.element = p.lru.PushFront(entry)
	p.modules[hash] = entry
	p.usedMem += memNeeded
	metrics.ModuleCacheSize.Set(float64(len(p.modules)))

	return &ModuleHandle{entry: entry, pool: p}, nil
}

func (p *ModulePool) evictOne() bool {
	for e := p.lru.Back(); e != nil; e = e.Prev() {
		entry := e.Value.(*poolEntry)
		if atomic.LoadInt32(&entry.refCount) == 0 {
			p.lru.Remove(e)
			delete(p.modules, entry.moduleHash)
			p.usedMem -= entry.memBytes
			metrics.ModuleCacheEvictions.Inc()
			metrics.ModuleCacheSize.Set(float64(len(p.modules)))
			return true
		}
	}
	return false
}

// ModuleHash returns the content-addressed hash of the acquired module.
func (h *ModuleHandle) ModuleHash() string { return h.entry.moduleHash }

// Release decrements the reference count. Must be called when done.
func (h *ModuleHandle) Release() {
	atomic.AddInt32(&h.entry.refCount, -1)
}

// CachedModules returns the number of modules currently resident.
func (p *ModulePool) CachedModules() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.modules)
}

// Evict drops every cached module regardless of reference count, used
// on shutdown.
func (p *ModulePool) Evict() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modules = make(map[string]*poolEntry)
	p.lru.Init()
	p.usedMem = 0
	metrics.ModuleCacheSize.Set(0)
}

// IdleReaper runs in the background, evicting modules idle past
// idleTimeout and unreferenced. Call in a goroutine.
func (p *ModulePool) IdleReaper(stop <-chan struct{}) {
	ticker := time.NewTicker(p.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			now := time.Now()
			for hash, entry := range p.modules {
				if now.Sub(entry.lastUsed) > p.idleTimeout && atomic.LoadInt32(&entry.refCount) == 0 {
					p.lru.Remove(entry.element)
					delete(p.modules, hash)
					p.usedMem -= entry.memBytes
					metrics.ModuleCacheEvictions.Inc()
				}
			}
			metrics.ModuleCacheSize.Set(float64(len(p.modules)))
			p.mu.Unlock()
		}
	}
}

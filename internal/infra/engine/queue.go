// Package engine owns the task queue, the pending-assignment promise
// table, and the worker pool that turns queued tasks into dispatched
// assignments. Adapted from internal/infra/scheduler/scheduler.go,
// narrowed from five priority classes to the spec's four.
package engine

import (
	"sync"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/metrics"
)

// QueueConfig configures back-pressure thresholds and starvation boost,
// the same tiered-rejection shape as the teacher's scheduler.Config.
type QueueConfig struct {
	BackPressureSoft   int
	BackPressureMedium int
	BackPressureHard   int
	StarvationInterval time.Duration
}

// DefaultQueueConfig returns production defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		BackPressureSoft:   1_000,
		BackPressureMedium: 5_000,
		BackPressureHard:   10_000,
		StarvationInterval: 60 * time.Second,
	}
}

// QueuedTask wraps a task with scheduling metadata.
type QueuedTask struct {
	Task     domain.TaskPayload
	QueuedAt time.Time
}

// EffectivePriority applies starvation-prevention age boost: every
// StarvationInterval spent waiting improves priority by one class.
func (qt QueuedTask) EffectivePriority(starvationInterval time.Duration) int {
	if starvationInterval <= 0 {
		return qt.Task.Priority
	}
	boost := int(time.Since(qt.QueuedAt) / starvationInterval)
	effective := qt.Task.Priority - boost
	if effective < domain.PriorityCritical {
		effective = domain.PriorityCritical
	}
	return effective
}

// BackPressure indicates load severity.
type BackPressure int

const (
	BPNone BackPressure = iota
	BPSoft
	BPMedium
	BPHard
)

func (bp BackPressure) String() string {
	switch bp {
	case BPSoft:
		return "SOFT"
	case BPMedium:
		return "MEDIUM"
	case BPHard:
		return "HARD"
	default:
		return "NONE"
	}
}

const numPriorityClasses = 4

// Queue is a mutex-guarded, four-tier priority queue with a condition
// variable workers block on, and tiered back-pressure rejection.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	config QueueConfig
	tiers  [numPriorityClasses][]QueuedTask
	closed bool
}

// NewQueue builds a queue with cfg.
func NewQueue(cfg QueueConfig) *Queue {
	q := &Queue{config: cfg}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func clampPriority(p int) int {
	if p < domain.PriorityCritical {
		return domain.PriorityCritical
	}
	if p > domain.PriorityLow {
		return domain.PriorityLow
	}
	return p
}

// Enqueue adds task to its priority tier, subject to back-pressure.
func (q *Queue) Enqueue(task domain.TaskPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return domain.ErrQueueClosed
	}

	depth := q.depthLocked()
	bp := q.backPressureLocked(depth)
	switch bp {
	case BPHard:
		return domain.ErrBackPressureHard
	case BPMedium:
		if task.Priority > domain.PriorityCritical {
			return domain.ErrBackPressureMedium
		}
	case BPSoft:
		if task.Priority >= domain.PriorityLow {
			return domain.ErrBackPressureSoft
		}
	}

	tier := clampPriority(task.Priority)
	q.tiers[tier] = append(q.tiers[tier], QueuedTask{Task: task, QueuedAt: time.Now()})
	metrics.QueueDepth.WithLabelValues(domain.PriorityLabel(tier)).Set(float64(len(q.tiers[tier])))
	metrics.BackPressureLevel.Set(float64(bp))
	q.cond.Signal()
	return nil
}

// Dequeue blocks until a task is available or the queue is closed,
// returning (task, true), or (zero, false) once closed and drained.
func (q *Queue) Dequeue() (QueuedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if qt, ok := q.popBestLocked(); ok {
			return qt, true
		}
		if q.closed {
			return QueuedTask{}, false
		}
		q.cond.Wait()
	}
}

// TryDequeue is the non-blocking variant, used by tests and by callers
// that poll instead of dedicating a worker goroutine to Dequeue.
func (q *Queue) TryDequeue() (QueuedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popBestLocked()
}

func (q *Queue) popBestLocked() (QueuedTask, bool) {
	bestTier, bestIdx, bestEffective := -1, -1, numPriorityClasses
	for tier := 0; tier < numPriorityClasses; tier++ {
		for i, qt := range q.tiers[tier] {
			eff := qt.EffectivePriority(q.config.StarvationInterval)
			if eff < bestEffective {
				bestEffective, bestTier, bestIdx = eff, tier, i
			}
		}
	}
	if bestTier < 0 {
		return QueuedTask{}, false
	}

	qt := q.tiers[bestTier][bestIdx]
	q.tiers[bestTier] = append(q.tiers[bestTier][:bestIdx], q.tiers[bestTier][bestIdx+1:]...)
	metrics.QueueDepth.WithLabelValues(domain.PriorityLabel(bestTier)).Set(float64(len(q.tiers[bestTier])))
	return qt, true
}

// Close marks the queue closed and wakes every blocked dequeuer; already
// enqueued tasks remain retrievable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Drain removes and returns every remaining queued task, used on
// shutdown to resolve outstanding promises with a cancellation.
func (q *Queue) Drain() []QueuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	var all []QueuedTask
	for tier := 0; tier < numPriorityClasses; tier++ {
		all = append(all, q.tiers[tier]...)
		q.tiers[tier] = nil
	}
	return all
}

// Depth returns the total queued task count across all tiers.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked()
}

// BackPressureLevel returns the queue's current back-pressure level.
func (q *Queue) BackPressureLevel() BackPressure {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.backPressureLocked(q.depthLocked())
}

func (q *Queue) depthLocked() int {
	total := 0
	for tier := 0; tier < numPriorityClasses; tier++ {
		total += len(q.tiers[tier])
	}
	return total
}

func (q *Queue) backPressureLocked(depth int) BackPressure {
	switch {
	case depth >= q.config.BackPressureHard:
		return BPHard
	case depth >= q.config.BackPressureMedium:
		return BPMedium
	case depth >= q.config.BackPressureSoft:
		return BPSoft
	default:
		return BPNone
	}
}

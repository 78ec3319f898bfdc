package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/metrics"
	"github.com/ailee-network/ailee-core/internal/infra/orchestrator"
	"github.com/ailee-network/ailee-core/internal/infra/reputation"
)

// CandidateProvider snapshots the current node registry into orchestrator
// candidates. Implemented by the daemon's node registry; kept as an
// interface so engine stays testable without a live mesh.
type CandidateProvider interface {
	Snapshot() []orchestrator.Candidate
}

// Assigner picks a node for a task from a candidate snapshot. Satisfied
// by *orchestrator.Orchestrator.
type Assigner interface {
	Assign(task domain.TaskPayload, candidates []orchestrator.Candidate, strategy orchestrator.Strategy, now time.Time) domain.Assignment
}

// Dispatcher hands an assignment to the chosen node for execution and
// returns the assignment updated with the outcome (or a failure reason
// if the node rejects/can't be reached). Implemented by the daemon's
// node-dispatch layer, wrapping sandbox+proof+reputation end to end.
type Dispatcher interface {
	Dispatch(ctx context.Context, task domain.TaskPayload, assignment domain.Assignment) domain.Assignment
}

// ReputationDecayer ages out inactive nodes' reputation on a cadence,
// satisfied by *reputation.Ledger.
type ReputationDecayer interface {
	DecayInactive(ctx context.Context)
}

var _ ReputationDecayer = (*reputation.Ledger)(nil)

// Config configures an Engine's workers, queue, and loop cadences.
type Config struct {
	Queue              QueueConfig
	Workers            int
	Strategy           orchestrator.Strategy
	DiscoveryInterval  time.Duration
	MonitoringInterval time.Duration
	ReputationDecayAge time.Duration
}

// DefaultConfig returns production defaults: 8 workers, a one-minute
// discovery cadence, and a ten-second monitoring cadence.
func DefaultConfig() Config {
	return Config{
		Queue:              DefaultQueueConfig(),
		Workers:            8,
		Strategy:           orchestrator.StrategyWeightedScore,
		DiscoveryInterval:  time.Minute,
		MonitoringInterval: 10 * time.Second,
		ReputationDecayAge: 24 * time.Hour,
	}
}

// Metrics is a point-in-time snapshot of engine activity.
type Metrics struct {
	Submitted int64
	Completed int64
	Failed    int64
	Pending   int
	QueueDepth int
	BackPressure BackPressure
}

// pendingPromise holds the channel a caller waits on for a task's
// eventual Assignment, resolved exactly once.
type pendingPromise struct {
	ch chan domain.Assignment
}

// Engine is the task queue and worker pool that turns submitted tasks
// into dispatched assignments. Adapted from
// internal/infra/scheduler/scheduler.go's Scheduler, generalized to
// resolve callers through a future/promise table rather than a
// synchronous call, per the engine's async submission contract.
type Engine struct {
	config     Config
	queue      *Queue
	candidates CandidateProvider
	assigner   Assigner
	dispatcher Dispatcher
	reputation ReputationDecayer

	mu       sync.Mutex
	pending  map[string]*pendingPromise
	started  bool
	stopping chan struct{}
	wg       sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New builds an Engine. candidates/assigner/dispatcher may be swapped
// for fakes in tests; reputationDecayer may be nil to skip the decay
// step of the discovery loop.
func New(cfg Config, candidates CandidateProvider, assigner Assigner, dispatcher Dispatcher, reputationDecayer ReputationDecayer) *Engine {
	return &Engine{
		config:     cfg,
		queue:      NewQueue(cfg.Queue),
		candidates: candidates,
		assigner:   assigner,
		dispatcher: dispatcher,
		reputation: reputationDecayer,
		pending:    make(map[string]*pendingPromise),
	}
}

// Start launches the worker pool, discovery loop, and monitoring loop.
// Idempotent: calling Start on an already-started Engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.stopping = make(chan struct{})
	stop := e.stopping
	e.mu.Unlock()

	for i := 0; i < e.config.Workers; i++ {
		e.wg.Add(1)
		go e.workerLoop(stop)
	}
	e.wg.Add(1)
	go e.discoveryLoop(stop)
	e.wg.Add(1)
	go e.monitoringLoop(stop)
}

// Stop halts all loops, resolves every outstanding pending promise with
// a cancelled assignment, and blocks until workers exit. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	close(e.stopping)
	e.mu.Unlock()

	e.queue.Close()

	for _, qt := range e.queue.Drain() {
		e.resolve(qt.Task.ID, domain.Assignment{
			TaskID:   qt.Task.ID,
			Assigned: false,
			Reason:   "Engine stopped before assignment",
		})
	}

	e.wg.Wait()

	e.mu.Lock()
	for id, p := range e.pending {
		select {
		case p.ch <- domain.Assignment{TaskID: id, Assigned: false, Reason: "Engine stopped before assignment"}:
		default:
		}
		close(p.ch)
		delete(e.pending, id)
	}
	e.mu.Unlock()
}

// SubmitTask enqueues task and returns a channel that receives its
// eventual Assignment exactly once. Returns an error immediately if the
// queue rejects the task under back-pressure.
func (e *Engine) SubmitTask(task domain.TaskPayload) (<-chan domain.Assignment, error) {
	ch := make(chan domain.Assignment, 1)

	e.mu.Lock()
	e.pending[task.ID] = &pendingPromise{ch: ch}
	e.mu.Unlock()

	if err := e.queue.Enqueue(task); err != nil {
		e.mu.Lock()
		delete(e.pending, task.ID)
		e.mu.Unlock()
		close(ch)
		return nil, err
	}

	e.submitted.Add(1)
	return ch, nil
}

// resolve completes taskID's pending promise exactly once, if present.
func (e *Engine) resolve(taskID string, assignment domain.Assignment) {
	e.mu.Lock()
	p, ok := e.pending[taskID]
	if ok {
		delete(e.pending, taskID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	p.ch <- assignment
	close(p.ch)
}

// workerLoop dequeues tasks and dispatches them: snapshot the node
// registry, ask the assigner for a placement, dispatch on success or
// mark failed, then resolve the submitter's promise. Mirrors the
// spec's worker loop; any dispatcher panic or error becomes a failure
// Assignment rather than crashing the worker.
func (e *Engine) workerLoop(stop <-chan struct{}) {
	defer e.wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}

		qt, ok := e.queue.Dequeue()
		if !ok {
			return
		}

		assignment, retry := e.dispatchOne(qt.Task)
		if retry {
			qt.Task.Attempt++
			if err := e.queue.Enqueue(qt.Task); err == nil {
				continue
			}
			// Queue under back-pressure and refusing the retry: fall
			// through and resolve the promise with the failure instead
			// of dropping the task silently.
		}
		e.resolve(qt.Task.ID, assignment)
	}
}

// dispatchOne runs one placement+dispatch attempt. retry is true when
// the attempt failed in a way the task's remaining retry budget should
// absorb — the caller re-enqueues rather than resolving the promise.
func (e *Engine) dispatchOne(task domain.TaskPayload) (result domain.Assignment, retry bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TasksFailed.WithLabelValues(string(task.Type), "panic").Inc()
			result = domain.Assignment{TaskID: task.ID, Assigned: false, Reason: "dispatch panicked"}
			retry = false
		}
	}()

	var candidates []orchestrator.Candidate
	if e.candidates != nil {
		candidates = e.candidates.Snapshot()
	}

	assignment := e.assigner.Assign(task, candidates, e.config.Strategy, time.Now())
	if !assignment.Assigned {
		metrics.TasksFailed.WithLabelValues(string(task.Type), "unassigned").Inc()
		e.failed.Add(1)
		return assignment, task.CanRetry()
	}

	if e.dispatcher == nil {
		metrics.TasksFailed.WithLabelValues(string(task.Type), "no_dispatcher").Inc()
		e.failed.Add(1)
		return domain.Assignment{TaskID: task.ID, Assigned: false, Reason: "no dispatcher configured"}, false
	}

	ctx := context.Background()
	outcome := e.dispatcher.Dispatch(ctx, task, assignment)
	if outcome.Assigned {
		metrics.TasksCompleted.WithLabelValues(string(task.Type)).Inc()
		e.completed.Add(1)
		return outcome, false
	}
	metrics.TasksFailed.WithLabelValues(string(task.Type), "dispatch_failed").Inc()
	e.failed.Add(1)
	return outcome, task.CanRetry()
}

// discoveryLoop periodically ages out inactive node reputation. Node
// discovery and latency probing are jobs of internal/infra/discovery's
// scheduler; this loop only owns the cadence the spec assigns it for
// reputation decay.
func (e *Engine) discoveryLoop(stop <-chan struct{}) {
	defer e.wg.Done()
	if e.config.DiscoveryInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.config.DiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if e.reputation != nil {
				e.reputation.DecayInactive(context.Background())
			}
		}
	}
}

// monitoringLoop periodically publishes queue depth and back-pressure
// level to Prometheus gauges.
func (e *Engine) monitoringLoop(stop <-chan struct{}) {
	defer e.wg.Done()
	if e.config.MonitoringInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.config.MonitoringInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			metrics.BackPressureLevel.Set(float64(e.queue.BackPressureLevel()))
		}
	}
}

// Stats returns a point-in-time snapshot of engine activity.
func (e *Engine) Stats() Metrics {
	e.mu.Lock()
	pending := len(e.pending)
	e.mu.Unlock()
	return Metrics{
		Submitted:    e.submitted.Load(),
		Completed:    e.completed.Load(),
		Failed:       e.failed.Load(),
		Pending:      pending,
		QueueDepth:   e.queue.Depth(),
		BackPressure: e.queue.BackPressureLevel(),
	}
}

// UpdateConfig replaces the engine's tunables, reapplying the default
// strategy if the replacement leaves it unset. Does not affect
// already-running workers' in-flight dispatches; the queue's
// back-pressure thresholds take effect on the next Enqueue.
func (e *Engine) UpdateConfig(cfg Config) {
	if cfg.Strategy == "" {
		cfg.Strategy = orchestrator.StrategyWeightedScore
	}
	e.mu.Lock()
	e.config = cfg
	e.queue.mu.Lock()
	e.queue.config = cfg.Queue
	e.queue.mu.Unlock()
	e.mu.Unlock()
}

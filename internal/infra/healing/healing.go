// Package healing implements self-protection primitives for the mesh:
// circuit breakers around flaky peers, escalating node quarantine/ban,
// and rollout tracking for sandbox module version upgrades.
//
// Circuit Breaker states:
//   - CLOSED  (normal) → errors exceed threshold → OPEN
//   - OPEN    (blocking) → after timeout → HALF_OPEN
//   - HALF_OPEN (probing) → probe succeeds → CLOSED, probe fails → OPEN
//
// Quarantine escalation:
//   - 3 failures → 1 hour quarantine
//   - Verification fail → 24 hour quarantine
//   - 3 quarantines in 7 days → 30 day ban
package healing

import (
	"sync"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════
// Circuit Breaker
// ═══════════════════════════════════════════════════════════════════════════

// CBState represents the circuit breaker state.
type CBState int

const (
	CBClosed   CBState = iota // Normal operation — requests pass through
	CBOpen                    // Tripped — all requests rejected immediately
	CBHalfOpen                // Recovery probe — requests pass through; HalfOpenMax successes close it
)

// String returns a human-readable circuit breaker state.
func (s CBState) String() string {
	switch s {
	case CBClosed:
		return "CLOSED"
	case CBOpen:
		return "OPEN"
	case CBHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenMax      int
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMax:      3,
	}
}

// CircuitBreaker implements the circuit breaker pattern, one per peer
// connection or sandbox backend. Thread-safe for concurrent use.
type CircuitBreaker struct {
	mu          sync.Mutex
	name        string
	config      CircuitBreakerConfig
	state       CBState
	failures    int
	successes   int
	lastFailure time.Time
	trippedAt   time.Time
	totalTrips  int
	now         func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given name and config.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: cfg,
		state:  CBClosed,
		now:    time.Now,
	}
}

// Allow checks whether a request should be permitted.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CBClosed:
		return nil
	case CBOpen:
		if cb.now().Sub(cb.trippedAt) >= cb.config.ResetTimeout {
			cb.setState(CBHalfOpen)
			cb.successes = 0
			return nil
		}
		return domain.ErrCircuitOpen
	case CBHalfOpen:
		return nil
	}
	return nil
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CBHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenMax {
			cb.setState(CBClosed)
			cb.failures = 0
			cb.successes = 0
		}
	case CBClosed:
		if cb.failures > 0 {
			cb.failures--
		}
	}
}

// RecordFailure records a failed request. May trip the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.now()

	switch cb.state {
	case CBClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.setState(CBOpen)
			cb.trippedAt = cb.now()
			cb.totalTrips++
		}
	case CBHalfOpen:
		cb.setState(CBOpen)
		cb.trippedAt = cb.now()
		cb.totalTrips++
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CBState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CBOpen && cb.now().Sub(cb.trippedAt) >= cb.config.ResetTimeout {
		cb.setState(CBHalfOpen)
		cb.successes = 0
	}
	return cb.state
}

// setState updates state and reflects it on the shared gauge. Caller
// must hold cb.mu.
func (cb *CircuitBreaker) setState(s CBState) {
	cb.state = s
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(s))
}

// Snapshot returns a point-in-time view of the circuit breaker.
type Snapshot struct {
	Name       string
	State      CBState
	Failures   int
	TotalTrips int
	TrippedAt  time.Time
}

// Snapshot returns the current state snapshot.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := cb.state
	if st == CBOpen && cb.now().Sub(cb.trippedAt) >= cb.config.ResetTimeout {
		st = CBHalfOpen
		cb.setState(CBHalfOpen)
		cb.successes = 0
	}
	return Snapshot{
		Name:       cb.name,
		State:      st,
		Failures:   cb.failures,
		TotalTrips: cb.totalTrips,
		TrippedAt:  cb.trippedAt,
	}
}

// Reset forces the circuit breaker back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(CBClosed)
	cb.failures = 0
	cb.successes = 0
}

// ═══════════════════════════════════════════════════════════════════════════
// Quarantine Manager
// ═══════════════════════════════════════════════════════════════════════════

// QuarantineReason explains why a node was quarantined.
type QuarantineReason string

const (
	QuarantineTaskFailures     QuarantineReason = "task_failures"
	QuarantineVerificationFail QuarantineReason = "verification_fail"
	QuarantineAnomaly          QuarantineReason = "anomaly"
)

// QuarantineRecord tracks a quarantine period.
type QuarantineRecord struct {
	NodeID    domain.NodeID
	Reason    QuarantineReason
	StartedAt time.Time
	ExpiresAt time.Time
	Released  bool
	Banned    bool
}

// IsActive reports whether the quarantine is currently in effect.
func (qr QuarantineRecord) IsActive(now time.Time) bool {
	return !qr.Released && now.Before(qr.ExpiresAt)
}

// QuarantineConfig sets quarantine durations.
type QuarantineConfig struct {
	FailureDuration      time.Duration
	VerificationDuration time.Duration
	BanDuration          time.Duration
	BanWindowDays        int
	BanThreshold         int
	FailureThreshold     int
}

// DefaultQuarantineConfig returns production defaults.
func DefaultQuarantineConfig() QuarantineConfig {
	return QuarantineConfig{
		FailureDuration:      1 * time.Hour,
		VerificationDuration: 24 * time.Hour,
		BanDuration:          30 * 24 * time.Hour,
		BanWindowDays:        7,
		BanThreshold:         3,
		FailureThreshold:     3,
	}
}

// QuarantineManager tracks node quarantines with escalation to a ban.
type QuarantineManager struct {
	mu       sync.Mutex
	config   QuarantineConfig
	records  map[domain.NodeID][]QuarantineRecord
	failures map[domain.NodeID]int
	now      func() time.Time
}

// NewQuarantineManager creates a quarantine manager.
func NewQuarantineManager(cfg QuarantineConfig) *QuarantineManager {
	return &QuarantineManager{
		config:   cfg,
		records:  make(map[domain.NodeID][]QuarantineRecord),
		failures: make(map[domain.NodeID]int),
		now:      time.Now,
	}
}

// RecordFailure increments the failure count for a node, quarantining it
// once the threshold is reached. Returns the new record, or nil.
func (qm *QuarantineManager) RecordFailure(nodeID domain.NodeID) *QuarantineRecord {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	qm.failures[nodeID]++
	if qm.failures[nodeID] >= qm.config.FailureThreshold {
		qm.failures[nodeID] = 0
		return qm.quarantineLocked(nodeID, QuarantineTaskFailures)
	}
	return nil
}

// RecordVerificationFailure immediately quarantines a node whose proof
// failed verification.
func (qm *QuarantineManager) RecordVerificationFailure(nodeID domain.NodeID) *QuarantineRecord {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.quarantineLocked(nodeID, QuarantineVerificationFail)
}

// RecordAnomaly quarantines a node flagged by the anomaly detector.
func (qm *QuarantineManager) RecordAnomaly(nodeID domain.NodeID) *QuarantineRecord {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.quarantineLocked(nodeID, QuarantineAnomaly)
}

// Status reports the node's current access state for the orchestrator's
// candidate filter.
func (qm *QuarantineManager) Status(nodeID domain.NodeID) error {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	now := qm.now()
	for _, r := range qm.records[nodeID] {
		if !r.IsActive(now) {
			continue
		}
		if r.Banned {
			return domain.ErrNodeBanned
		}
		return domain.ErrNodeQuarantined
	}
	return nil
}

// IsQuarantined checks if a node is currently quarantined or banned.
func (qm *QuarantineManager) IsQuarantined(nodeID domain.NodeID) bool {
	return qm.Status(nodeID) != nil
}

// ActiveQuarantine returns the active quarantine record for a node, if any.
func (qm *QuarantineManager) ActiveQuarantine(nodeID domain.NodeID) *QuarantineRecord {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	now := qm.now()
	for _, r := range qm.records[nodeID] {
		if r.IsActive(now) {
			rec := r
			return &rec
		}
	}
	return nil
}

// Release manually releases a node from quarantine.
func (qm *QuarantineManager) Release(nodeID domain.NodeID) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	for i := range qm.records[nodeID] {
		qm.records[nodeID][i].Released = true
	}
	qm.failures[nodeID] = 0
	qm.refreshGauge()
}

// RecentQuarantineCount returns how many quarantines a node has had in
// the ban window.
func (qm *QuarantineManager) RecentQuarantineCount(nodeID domain.NodeID) int {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.recentCountLocked(nodeID)
}

// FailureCount returns the current consecutive failure count for a node.
func (qm *QuarantineManager) FailureCount(nodeID domain.NodeID) int {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.failures[nodeID]
}

func (qm *QuarantineManager) quarantineLocked(nodeID domain.NodeID, reason QuarantineReason) *QuarantineRecord {
	now := qm.now()

	var duration time.Duration
	switch reason {
	case QuarantineVerificationFail:
		duration = qm.config.VerificationDuration
	default:
		duration = qm.config.FailureDuration
	}

	recentCount := qm.recentCountLocked(nodeID)
	banned := false
	if recentCount+1 >= qm.config.BanThreshold {
		duration = qm.config.BanDuration
		banned = true
	}

	record := QuarantineRecord{
		NodeID:    nodeID,
		Reason:    reason,
		StartedAt: now,
		ExpiresAt: now.Add(duration),
		Banned:    banned,
	}

	qm.records[nodeID] = append(qm.records[nodeID], record)
	qm.refreshGauge()
	return &record
}

func (qm *QuarantineManager) recentCountLocked(nodeID domain.NodeID) int {
	now := qm.now()
	windowStart := now.AddDate(0, 0, -qm.config.BanWindowDays)
	count := 0
	for _, r := range qm.records[nodeID] {
		if r.StartedAt.After(windowStart) {
			count++
		}
	}
	return count
}

// refreshGauge recomputes the mesh-wide quarantined-node count. Caller
// must hold qm.mu.
func (qm *QuarantineManager) refreshGauge() {
	now := qm.now()
	count := 0
	for _, recs := range qm.records {
		for _, r := range recs {
			if r.IsActive(now) {
				count++
				break
			}
		}
	}
	metrics.QuarantinedNodes.Set(float64(count))
}

// ═══════════════════════════════════════════════════════════════════════════
// Module Rollout Tracker
// ═══════════════════════════════════════════════════════════════════════════

// RolloutConfig configures automatic rollback of a sandbox module version.
type RolloutConfig struct {
	HealthCheckInterval time.Duration
	CanaryDuration      time.Duration
	CrashThreshold      float64
	RollbackTimeout     time.Duration
}

// DefaultRolloutConfig returns production defaults.
func DefaultRolloutConfig() RolloutConfig {
	return RolloutConfig{
		HealthCheckInterval: 5 * time.Second,
		CanaryDuration:      10 * time.Minute,
		CrashThreshold:      5.0,
		RollbackTimeout:     5 * time.Minute,
	}
}

// RolloutState tracks a canary rollout of a new module hash, with
// automatic rollback to the previous hash on elevated execution failure
// rate.
type RolloutState struct {
	mu            sync.Mutex
	config        RolloutConfig
	currentHash   string
	previousHash  string
	isCanary      bool
	failureCount  int
	totalChecks   int
	deployedAt    time.Time
	rolledBack    bool
	now           func() time.Time
}

// NewRolloutState creates a rollout tracker for a module version upgrade.
func NewRolloutState(cfg RolloutConfig, currentHash, previousHash string) *RolloutState {
	return &RolloutState{
		config:       cfg,
		currentHash:  currentHash,
		previousHash: previousHash,
		isCanary:     true,
		deployedAt:   time.Now(),
		now:          time.Now,
	}
}

// RecordExecution records an execution outcome against the canary
// module. Returns true if rollback should be triggered.
func (rs *RolloutState) RecordExecution(succeeded bool) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.totalChecks++
	if !succeeded {
		rs.failureCount++
	}
	if rs.totalChecks == 0 {
		return false
	}
	failRate := float64(rs.failureCount) / float64(rs.totalChecks) * 100.0
	return failRate > rs.config.CrashThreshold
}

// ShouldPromoteCanary returns true if the canary period has elapsed
// without exceeding the failure threshold.
func (rs *RolloutState) ShouldPromoteCanary() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.isCanary || rs.rolledBack {
		return false
	}
	if rs.now().Sub(rs.deployedAt) < rs.config.CanaryDuration {
		return false
	}
	if rs.totalChecks == 0 {
		return false
	}
	failRate := float64(rs.failureCount) / float64(rs.totalChecks) * 100.0
	return failRate <= rs.config.CrashThreshold
}

// PromoteCanary marks the canary module as promoted to the active version.
func (rs *RolloutState) PromoteCanary() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.isCanary = false
}

// MarkRolledBack records that the rollout was reverted to previousHash.
func (rs *RolloutState) MarkRolledBack() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rolledBack = true
	rs.isCanary = false
}

// RolloutStatus is a snapshot of a module rollout.
type RolloutStatus struct {
	CurrentHash  string
	PreviousHash string
	IsCanary     bool
	FailRatePct  float64
	TotalChecks  int
	RolledBack   bool
}

// Status returns a snapshot of the rollout state.
func (rs *RolloutState) Status() RolloutStatus {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	failRate := 0.0
	if rs.totalChecks > 0 {
		failRate = float64(rs.failureCount) / float64(rs.totalChecks) * 100.0
	}
	return RolloutStatus{
		CurrentHash:  rs.currentHash,
		PreviousHash: rs.previousHash,
		IsCanary:     rs.isCanary,
		FailRatePct:  failRate,
		TotalChecks:  rs.totalChecks,
		RolledBack:   rs.rolledBack,
	}
}

package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Sandbox / execution errors
	ErrModuleNotFound    = errors.New("module not found in cache")
	ErrModuleCorrupted   = errors.New("module hash mismatch")
	ErrSandboxTimeout    = errors.New("execution exceeded time limit")
	ErrSandboxMemory     = errors.New("execution exceeded memory limit")
	ErrSandboxInstrCount = errors.New("execution exceeded instruction limit")
	ErrSandboxGas        = errors.New("execution exceeded gas limit")
	ErrSandboxCallDepth  = errors.New("execution exceeded call depth limit")
	ErrNondeterministic  = errors.New("repeated execution produced divergent output")

	// Proof errors
	ErrProofInvalidSignature = errors.New("proof signature invalid")
	ErrProofHashMismatch     = errors.New("execution hash does not match recomputed value")
	ErrProofQuorumNotReached = errors.New("insufficient matching proofs for quorum")
	ErrNonceReplay           = errors.New("proof nonce already seen")

	// Task / queue errors
	ErrBackPressureSoft   = errors.New("back-pressure: soft limit — low priority tasks rejected")
	ErrBackPressureMedium = errors.New("back-pressure: medium limit — only critical accepted")
	ErrBackPressureHard   = errors.New("back-pressure: hard limit — all tasks rejected")
	ErrQueueClosed        = errors.New("task queue is closed")
	ErrNoCandidateNodes   = errors.New("no eligible nodes for assignment")
	ErrTaskNotFound       = errors.New("task not found")
	ErrAssignmentExpired  = errors.New("assignment deadline passed")
	ErrRetriesExhausted   = errors.New("task exceeded max retries")

	// Circuit breaker / quarantine errors
	ErrCircuitOpen     = errors.New("circuit breaker is open — node unavailable")
	ErrCircuitHalfOpen = errors.New("circuit breaker is half-open — limited traffic")
	ErrNodeQuarantined = errors.New("node is quarantined — cannot accept tasks")
	ErrNodeBanned      = errors.New("node is banned from the mesh")

	// Reputation errors
	ErrNodeNotRegistered = errors.New("node not registered in reputation ledger")
	ErrReputationTooLow  = errors.New("reputation score below required threshold")

	// Anomaly / byzantine errors
	ErrNodeAnomalous  = errors.New("node exhibits anomalous telemetry")
	ErrThreatDetected = errors.New("node flagged for byzantine behavior")

	// Federated learning errors
	ErrTrainingJobNotFound = errors.New("training job not found")
	ErrTrainingInProgress  = errors.New("training job already running")
	ErrInsufficientNodes   = errors.New("not enough capable nodes for training round")
	ErrGradientMismatch    = errors.New("gradient dimensions do not match")
	ErrCheckpointMissing   = errors.New("checkpoint not available")
	ErrEpochTimeout        = errors.New("epoch exceeded time limit")

	// Telemetry / safe-mode errors
	ErrSafeMode = errors.New("node in safe mode — rejecting new work")
	ErrOffline  = errors.New("node is offline")

	// Lifecycle errors
	ErrInvalidStateTransition = errors.New("invalid node lifecycle state transition")
)

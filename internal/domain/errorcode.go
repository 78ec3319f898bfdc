package domain

// ErrorCode is the numeric code carried on the wire alongside task and
// proof failures, so a remote caller need not parse Go error strings.
// Codes are grouped by subsystem in blocks of 1000.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = 0

	// 1000s: sandbox / execution
	ErrCodeSandboxTimeout    ErrorCode = 1001
	ErrCodeSandboxMemory     ErrorCode = 1002
	ErrCodeSandboxInstrCount ErrorCode = 1003
	ErrCodeSandboxGas        ErrorCode = 1004
	ErrCodeSandboxCallDepth  ErrorCode = 1005
	ErrCodeModuleNotFound    ErrorCode = 1006
	ErrCodeModuleCorrupted   ErrorCode = 1007
	ErrCodeNondeterministic  ErrorCode = 1008

	// 2000s: proof system
	ErrCodeProofInvalidSignature ErrorCode = 2001
	ErrCodeProofHashMismatch     ErrorCode = 2002
	ErrCodeProofQuorumNotReached ErrorCode = 2003
	ErrCodeNonceReplay           ErrorCode = 2004

	// 3000s: task / queue
	ErrCodeBackPressureSoft   ErrorCode = 3001
	ErrCodeBackPressureMedium ErrorCode = 3002
	ErrCodeBackPressureHard   ErrorCode = 3003
	ErrCodeQueueClosed        ErrorCode = 3004
	ErrCodeNoCandidateNodes   ErrorCode = 3005
	ErrCodeTaskNotFound       ErrorCode = 3006
	ErrCodeAssignmentExpired  ErrorCode = 3007
	ErrCodeRetriesExhausted   ErrorCode = 3008

	// 4000s: self-protection
	ErrCodeCircuitOpen     ErrorCode = 4001
	ErrCodeCircuitHalfOpen ErrorCode = 4002
	ErrCodeNodeQuarantined ErrorCode = 4003
	ErrCodeNodeBanned      ErrorCode = 4004

	// 5000s: reputation
	ErrCodeNodeNotRegistered ErrorCode = 5001
	ErrCodeReputationTooLow  ErrorCode = 5002

	// 6000s: anomaly / byzantine
	ErrCodeNodeAnomalous  ErrorCode = 6001
	ErrCodeThreatDetected ErrorCode = 6002

	// 7000s: federated learning
	ErrCodeTrainingJobNotFound ErrorCode = 7001
	ErrCodeTrainingInProgress  ErrorCode = 7002
	ErrCodeInsufficientNodes   ErrorCode = 7003
	ErrCodeGradientMismatch    ErrorCode = 7004
	ErrCodeCheckpointMissing   ErrorCode = 7005
	ErrCodeEpochTimeout        ErrorCode = 7006

	// 8000s: telemetry / safe mode
	ErrCodeSafeMode ErrorCode = 8001
	ErrCodeOffline  ErrorCode = 8002

	// 9000s: lifecycle
	ErrCodeInvalidStateTransition ErrorCode = 9001

	// 11255: returned by CodeForError for a non-nil error with no entry in errToCode
	ErrCodeMax ErrorCode = 11255
)

// errToCode maps domain sentinel errors to wire error codes. Used by
// transport adapters that must serialize an error without reflecting Go
// error values.
var errToCode = map[error]ErrorCode{
	ErrSandboxTimeout:        ErrCodeSandboxTimeout,
	ErrSandboxMemory:         ErrCodeSandboxMemory,
	ErrSandboxInstrCount:     ErrCodeSandboxInstrCount,
	ErrSandboxGas:            ErrCodeSandboxGas,
	ErrSandboxCallDepth:      ErrCodeSandboxCallDepth,
	ErrModuleNotFound:        ErrCodeModuleNotFound,
	ErrModuleCorrupted:       ErrCodeModuleCorrupted,
	ErrNondeterministic:      ErrCodeNondeterministic,
	ErrProofInvalidSignature: ErrCodeProofInvalidSignature,
	ErrProofHashMismatch:     ErrCodeProofHashMismatch,
	ErrProofQuorumNotReached: ErrCodeProofQuorumNotReached,
	ErrNonceReplay:           ErrCodeNonceReplay,
	ErrBackPressureSoft:      ErrCodeBackPressureSoft,
	ErrBackPressureMedium:    ErrCodeBackPressureMedium,
	ErrBackPressureHard:      ErrCodeBackPressureHard,
	ErrQueueClosed:           ErrCodeQueueClosed,
	ErrNoCandidateNodes:      ErrCodeNoCandidateNodes,
	ErrTaskNotFound:          ErrCodeTaskNotFound,
	ErrAssignmentExpired:     ErrCodeAssignmentExpired,
	ErrRetriesExhausted:      ErrCodeRetriesExhausted,
	ErrCircuitOpen:           ErrCodeCircuitOpen,
	ErrCircuitHalfOpen:       ErrCodeCircuitHalfOpen,
	ErrNodeQuarantined:       ErrCodeNodeQuarantined,
	ErrNodeBanned:            ErrCodeNodeBanned,
	ErrNodeNotRegistered:     ErrCodeNodeNotRegistered,
	ErrReputationTooLow:      ErrCodeReputationTooLow,
	ErrNodeAnomalous:         ErrCodeNodeAnomalous,
	ErrThreatDetected:        ErrCodeThreatDetected,
	ErrTrainingJobNotFound:   ErrCodeTrainingJobNotFound,
	ErrTrainingInProgress:    ErrCodeTrainingInProgress,
	ErrInsufficientNodes:     ErrCodeInsufficientNodes,
	ErrGradientMismatch:      ErrCodeGradientMismatch,
	ErrCheckpointMissing:     ErrCodeCheckpointMissing,
	ErrEpochTimeout:          ErrCodeEpochTimeout,
	ErrSafeMode:               ErrCodeSafeMode,
	ErrOffline:                ErrCodeOffline,
	ErrInvalidStateTransition: ErrCodeInvalidStateTransition,
}

// CodeForError returns the wire code for a domain error, or ErrCodeOK if
// the error is nil and an unmapped-but-present sentinel otherwise.
func CodeForError(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	if code, ok := errToCode[err]; ok {
		return code
	}
	return ErrCodeMax
}

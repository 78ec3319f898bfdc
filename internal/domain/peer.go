// Package domain — hash-based execution proofs.
// An execution_hash binds a module, its input, and its output together so
// that a third party can check a worker's claimed result without
// re-executing it, given a trusted module hash.
package domain

import "time"

// ProofTypeHashV1 is the only proof algorithm this mesh currently speaks;
// the tag exists so a future algorithm can be introduced without breaking
// wire compatibility with proofs already in flight.
const ProofTypeHashV1 = "hash_v1"

// HashProof is the signed, verifiable record a worker attaches to a
// completed task.
type HashProof struct {
	TaskID           string    `json:"task_id"`
	NodeID           NodeID    `json:"node_id"`
	ModuleHash       string    `json:"module_hash"`
	InputHash        string    `json:"input_hash"`
	OutputHash       string    `json:"output_hash"`
	ExecutionHash    string    `json:"execution_hash"` // H(module_hash‖input_hash‖output_hash)
	MerkleRoot       string    `json:"merkle_root,omitempty"`
	MerklePath       []string  `json:"merkle_path,omitempty"`
	InstructionCount uint64    `json:"instruction_count"`
	GasConsumed      uint64    `json:"gas_consumed"`
	NodeSignature    []byte    `json:"node_signature"`
	NodePubkey       []byte    `json:"node_pubkey"`
	Timestamp        time.Time `json:"timestamp"`
	Nonce            uint64    `json:"nonce"`
	ProofType        string    `json:"proof_type"`
	Verified         bool      `json:"verified"`
}

// MerklePath is the sibling-hash path from one trace leaf to the root,
// proving that leaf's inclusion without revealing the rest of the trace.
type MerklePath struct {
	LeafIndex int      `json:"leaf_index"`
	LeafHash  string    `json:"leaf_hash"`
	Siblings  []string `json:"siblings"`
	Root      string   `json:"root"`
}

// VerificationError names why a proof failed verification.
type VerificationError string

const (
	VerifyOK              VerificationError = ""
	VerifyHashMismatch    VerificationError = "EXECUTION_HASH_MISMATCH"
	VerifyExpired         VerificationError = "PROOF_EXPIRED"
	VerifyBadSignature    VerificationError = "SIGNATURE_INVALID"
	VerifyBadMerklePath   VerificationError = "MERKLE_PATH_INVALID"
	VerifyNonceReplay     VerificationError = "NONCE_REPLAY_DETECTED"
	VerifyUnknownProofType VerificationError = "PROOF_TYPE_UNSUPPORTED"
)

// VerifyResult is the structured outcome of verifying a HashProof.
type VerifyResult struct {
	Valid bool              `json:"valid"`
	Error VerificationError `json:"error,omitempty"`
}

// PeerState tracks a peer's mesh membership state as seen by this node.
type PeerState string

const (
	PeerAlive   PeerState = "ALIVE"
	PeerSuspect PeerState = "SUSPECT"
	PeerDead    PeerState = "DEAD"
)

// Peer is a known node in the mesh, as tracked by discovery.
type Peer struct {
	NodeID     NodeID    `json:"node_id"`
	Region     RegionID  `json:"region"`
	Endpoint   string    `json:"endpoint,omitempty"`
	LastSeen   time.Time `json:"last_seen"`
	Reputation float64   `json:"reputation"`
	State      PeerState `json:"state"`
}

// IsReachable reports whether the peer is presently alive.
func (p *Peer) IsReachable() bool { return p.State == PeerAlive }

// IsTrusted reports whether the peer's reputation clears threshold.
func (p *Peer) IsTrusted(threshold float64) bool { return p.Reputation >= threshold }

package proof

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/metrics"
	"github.com/ailee-network/ailee-core/internal/security"
)

// MaxProofAge is the default window within which a proof's timestamp is
// accepted as fresh.
const MaxProofAge = time.Hour

// Prover generates and verifies HashProofs. A process-monotonic nonce
// counter is kept per instance; persistence of the replay ceiling across
// restarts is the caller's job via NonceGuard.
type Prover struct {
	keypair *security.Keypair
	nonce   uint64
	clock   domain.Clock
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewProver builds a prover that signs with keypair. A nil keypair
// produces unsigned proofs (used by nodes that only verify).
func NewProver(keypair *security.Keypair) *Prover {
	return &Prover{keypair: keypair, clock: systemClock{}}
}

// ComputeExecutionHash is H(module_hash ‖ input_hash ‖ output_hash).
func ComputeExecutionHash(moduleHash, inputHash, outputHash string) string {
	sum := sha256.Sum256([]byte(moduleHash + inputHash + outputHash))
	return hex.EncodeToString(sum[:])
}

// HashBytes returns the hex SHA-256 digest of data, used to derive
// input_hash/output_hash from raw bytes before proof generation.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GenerateProof builds a HashProof binding moduleHash/inputHash/outputHash,
// optionally rooting a Merkle tree over trace and signing the execution
// hash. The nonce is this prover's next monotonic value.
func (p *Prover) GenerateProof(taskID string, nodeID domain.NodeID, moduleHash, inputHash, outputHash string, instrCount, gasConsumed uint64, trace []domain.TraceStep) domain.HashProof {
	executionHash := ComputeExecutionHash(moduleHash, inputHash, outputHash)

	hp := domain.HashProof{
		TaskID:           taskID,
		NodeID:           nodeID,
		ModuleHash:       moduleHash,
		InputHash:        inputHash,
		OutputHash:       outputHash,
		ExecutionHash:    executionHash,
		InstructionCount: instrCount,
		GasConsumed:      gasConsumed,
		Timestamp:        p.clock.Now(),
		Nonce:            atomic.AddUint64(&p.nonce, 1),
		ProofType:        domain.ProofTypeHashV1,
	}

	if len(trace) > 0 {
		tree := BuildTree(trace)
		hp.MerkleRoot = tree.Root()
		if path, err := tree.Path(0); err == nil {
			hp.MerklePath = path
		}
	} else {
		hp.MerkleRoot = executionHash
	}

	if p.keypair != nil {
		hp.NodeSignature = p.keypair.Sign([]byte(executionHash))
		hp.NodePubkey = []byte(p.keypair.Public)
	}

	metrics.ProofsGenerated.Inc()
	return hp
}

// VerifyProof checks a proof's execution hash, age, signature, and
// Merkle path, in that order, returning the first failure found.
func VerifyProof(hp domain.HashProof, now time.Time, maxAge time.Duration) domain.VerifyResult {
	result := verifyProof(hp, now, maxAge)
	label := "accepted"
	if !result.Valid {
		label = "rejected"
	}
	metrics.ProofsVerified.WithLabelValues(label).Inc()
	return result
}

func verifyProof(hp domain.HashProof, now time.Time, maxAge time.Duration) domain.VerifyResult {
	if hp.ProofType != domain.ProofTypeHashV1 {
		return domain.VerifyResult{Error: domain.VerifyUnknownProofType}
	}

	recomputed := ComputeExecutionHash(hp.ModuleHash, hp.InputHash, hp.OutputHash)
	if recomputed != hp.ExecutionHash {
		return domain.VerifyResult{Error: domain.VerifyHashMismatch}
	}

	if maxAge <= 0 {
		maxAge = MaxProofAge
	}
	if now.Sub(hp.Timestamp) > maxAge {
		return domain.VerifyResult{Error: domain.VerifyExpired}
	}

	if len(hp.NodeSignature) > 0 {
		if len(hp.NodePubkey) != ed25519.PublicKeySize {
			return domain.VerifyResult{Error: domain.VerifyBadSignature}
		}
		if !security.Verify([]byte(hp.ExecutionHash), hp.NodeSignature, ed25519.PublicKey(hp.NodePubkey)) {
			return domain.VerifyResult{Error: domain.VerifyBadSignature}
		}
	}

	if hp.MerkleRoot != "" && hp.MerkleRoot != hp.ExecutionHash && len(hp.MerklePath) > 0 {
		// Path-only spot check: the published root must be reachable by
		// folding SOME leaf with the path. Full reconstruction against the
		// raw trace happens where the verifier still holds it; here we
		// only confirm internal consistency of the bundle's own fields.
		if !verifyPathShape(hp.MerklePath, hp.MerkleRoot) {
			return domain.VerifyResult{Error: domain.VerifyBadMerklePath}
		}
	}

	return domain.VerifyResult{Valid: true}
}

func verifyPathShape(path []string, root string) bool {
	if root == "" {
		return false
	}
	for _, sibling := range path {
		if len(sibling) != hex.EncodedLen(sha256.Size) {
			return false
		}
	}
	return true
}

// VerifyTraceAgainstProof fully reconstructs the Merkle root from trace
// and checks it matches hp.MerkleRoot. Used by verifiers who received
// both the proof and the claimed trace, not just the proof bundle.
func VerifyTraceAgainstProof(hp domain.HashProof, trace []domain.TraceStep, leafIndex int) bool {
	if len(trace) == 0 {
		return hp.MerkleRoot == hp.ExecutionHash
	}
	tree := BuildTree(trace)
	if tree.Root() != hp.MerkleRoot {
		return false
	}
	if leafIndex < 0 || leafIndex >= len(trace) {
		return false
	}
	leaf := LeafHash(trace[leafIndex])
	path, err := tree.Path(leafIndex)
	if err != nil {
		return false
	}
	return VerifyPath(leafIndex, leaf, path, tree.Root())
}

// NonceGuard rejects proofs whose nonce does not strictly exceed the
// highest nonce previously seen from that signer, persisting the
// ceiling through a KVStore so it survives restarts.
type NonceGuard struct {
	store  domain.KVStore
	bucket string
}

// NewNonceGuard wires replay protection through store.
func NewNonceGuard(store domain.KVStore) *NonceGuard {
	return &NonceGuard{store: store, bucket: "proof_nonce_ceiling"}
}

// CheckAndAdvance accepts the proof's nonce iff it exceeds the persisted
// ceiling for that node, then stores the new ceiling. A missing key
// (no prior proof from this node) is treated as ceiling zero; KVStore
// implementations report that as (nil, nil).
func (g *NonceGuard) CheckAndAdvance(ctx context.Context, nodeID domain.NodeID, nonce uint64) error {
	key := string(nodeID)
	raw, err := g.store.Get(ctx, g.bucket, key)
	if err != nil {
		return err
	}

	var ceiling uint64
	if len(raw) == 8 {
		ceiling = beUint64(raw)
	}
	if nonce <= ceiling {
		return domain.ErrNonceReplay
	}
	return g.store.Put(ctx, g.bucket, key, beBytes(nonce))
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func beBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

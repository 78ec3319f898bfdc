package proof

import (
	"context"
	"testing"
	"time"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/security"
)

func testKeypair(t *testing.T) *security.Keypair {
	t.Helper()
	kp, err := security.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return kp
}

func TestProver_GenerateProof_ExecutionHashBinds(t *testing.T) {
	p := NewProver(testKeypair(t))
	hp := p.GenerateProof("task-1", "node-1", "mod", "in", "out", 10, 5, nil)

	want := ComputeExecutionHash("mod", "in", "out")
	if hp.ExecutionHash != want {
		t.Errorf("ExecutionHash = %q, want %q", hp.ExecutionHash, want)
	}
	if hp.MerkleRoot != hp.ExecutionHash {
		t.Errorf("no-trace MerkleRoot should equal ExecutionHash")
	}
}

func TestProver_GenerateProof_NonceMonotonic(t *testing.T) {
	p := NewProver(testKeypair(t))
	first := p.GenerateProof("t1", "node-1", "m", "i", "o", 1, 1, nil)
	second := p.GenerateProof("t2", "node-1", "m", "i", "o", 1, 1, nil)
	if second.Nonce <= first.Nonce {
		t.Errorf("nonce did not increase: %d -> %d", first.Nonce, second.Nonce)
	}
}

func TestVerifyProof_ValidProofAccepted(t *testing.T) {
	p := NewProver(testKeypair(t))
	hp := p.GenerateProof("t1", "node-1", "m", "i", "o", 1, 1, sampleTrace(4))
	result := VerifyProof(hp, hp.Timestamp, MaxProofAge)
	if !result.Valid {
		t.Errorf("expected valid proof, got error %q", result.Error)
	}
}

func TestVerifyProof_TamperedOutputRejected(t *testing.T) {
	p := NewProver(testKeypair(t))
	hp := p.GenerateProof("t1", "node-1", "m", "i", "o", 1, 1, nil)
	hp.OutputHash = "tampered"
	result := VerifyProof(hp, hp.Timestamp, MaxProofAge)
	if result.Valid || result.Error != domain.VerifyHashMismatch {
		t.Errorf("expected hash mismatch, got %+v", result)
	}
}

func TestVerifyProof_ExpiredRejected(t *testing.T) {
	p := NewProver(testKeypair(t))
	hp := p.GenerateProof("t1", "node-1", "m", "i", "o", 1, 1, nil)
	result := VerifyProof(hp, hp.Timestamp.Add(2*time.Hour), time.Hour)
	if result.Valid || result.Error != domain.VerifyExpired {
		t.Errorf("expected expired, got %+v", result)
	}
}

func TestVerifyProof_BadSignatureRejected(t *testing.T) {
	p := NewProver(testKeypair(t))
	hp := p.GenerateProof("t1", "node-1", "m", "i", "o", 1, 1, nil)
	hp.NodeSignature[0] ^= 0xFF
	result := VerifyProof(hp, hp.Timestamp, MaxProofAge)
	if result.Valid || result.Error != domain.VerifyBadSignature {
		t.Errorf("expected bad signature, got %+v", result)
	}
}

func TestVerifyTraceAgainstProof_MatchesAndDetectsTamper(t *testing.T) {
	p := NewProver(testKeypair(t))
	trace := sampleTrace(5)
	hp := p.GenerateProof("t1", "node-1", "m", "i", "o", 1, 1, trace)

	if !VerifyTraceAgainstProof(hp, trace, 2) {
		t.Error("expected trace to verify against its own proof")
	}

	tampered := sampleTrace(5)
	tampered[2].Opcode = "evil"
	if VerifyTraceAgainstProof(hp, tampered, 2) {
		t.Error("expected tampered trace to fail verification")
	}
}

type fakeKV struct {
	data map[string][]byte
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string][]byte)} }

func (f *fakeKV) Put(ctx context.Context, bucket, key string, value []byte) error {
	f.data[bucket+"/"+key] = value
	return nil
}
func (f *fakeKV) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	return f.data[bucket+"/"+key], nil
}
func (f *fakeKV) Delete(ctx context.Context, bucket, key string) error {
	delete(f.data, bucket+"/"+key)
	return nil
}
func (f *fakeKV) Snapshot(ctx context.Context, bucket string) (map[string][]byte, error) {
	return nil, nil
}

func TestNonceGuard_RejectsReplay(t *testing.T) {
	g := NewNonceGuard(newFakeKV())
	ctx := context.Background()

	if err := g.CheckAndAdvance(ctx, "node-1", 7); err != nil {
		t.Fatalf("first CheckAndAdvance: %v", err)
	}
	err := g.CheckAndAdvance(ctx, "node-1", 7)
	if err != domain.ErrNonceReplay {
		t.Errorf("err = %v, want ErrNonceReplay", err)
	}
}

func TestNonceGuard_AcceptsIncreasing(t *testing.T) {
	g := NewNonceGuard(newFakeKV())
	ctx := context.Background()

	for _, n := range []uint64{1, 2, 10, 11} {
		if err := g.CheckAndAdvance(ctx, "node-1", n); err != nil {
			t.Errorf("nonce %d: unexpected error %v", n, err)
		}
	}
}

func TestNonceGuard_PerNodeIndependent(t *testing.T) {
	g := NewNonceGuard(newFakeKV())
	ctx := context.Background()

	if err := g.CheckAndAdvance(ctx, "node-1", 5); err != nil {
		t.Fatalf("node-1: %v", err)
	}
	if err := g.CheckAndAdvance(ctx, "node-2", 1); err != nil {
		t.Errorf("node-2 should be unaffected by node-1's ceiling: %v", err)
	}
}

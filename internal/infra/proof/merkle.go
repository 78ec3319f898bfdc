// Package proof builds hash-based execution proofs: a Merkle-rooted
// commitment to an execution trace, a signature over the binding hash,
// nonce-based replay protection, and quorum aggregation across workers.
package proof

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ailee-network/ailee-core/internal/domain"
)

// stepGasCost recomputes the gas a step charges from its opcode. Any
// verifier reconstructs the same leaf hash from the trace alone because
// cost is a pure function of the opcode, not a value carried on the wire.
func stepGasCost(opcode string) uint64 {
	switch {
	case strings.HasPrefix(opcode, "call"):
		return 10
	case strings.HasPrefix(opcode, "load"), strings.HasPrefix(opcode, "store"):
		return 3
	default:
		return 1
	}
}

// leafHash hashes one trace step as H(opcode ‖ gas_used ‖ pc), matching
// the wire format every verifier must reproduce independently.
func leafHash(step domain.TraceStep, gasUsed uint64) string {
	buf := make([]byte, 0, len(step.Opcode)+16)
	buf = append(buf, []byte(step.Opcode)...)
	var gasBytes [8]byte
	binary.BigEndian.PutUint64(gasBytes[:], gasUsed)
	buf = append(buf, gasBytes[:]...)
	var idxBytes [8]byte
	binary.BigEndian.PutUint64(idxBytes[:], uint64(step.Index))
	buf = append(buf, idxBytes[:]...)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func combine(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}

// Tree is a full, indexed, recomputed-per-call Merkle tree over an
// execution trace. Unlike an append-only frontier accumulator, it keeps
// every level so a path proof can be generated for any leaf.
type Tree struct {
	leaves []string
	levels [][]string
}

// BuildTree hashes each trace step into a leaf and builds every level up
// to the root. An odd level duplicates its last element, per the
// standard Merkle padding rule.
func BuildTree(trace []domain.TraceStep) *Tree {
	leaves := make([]string, len(trace))
	for i, step := range trace {
		leaves[i] = leafHash(step, stepGasCost(step.Opcode))
	}
	if len(leaves) == 0 {
		return &Tree{}
	}

	levels := [][]string{leaves}
	current := leaves
	for len(current) > 1 {
		next := make([]string, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, combine(current[i], current[i+1]))
			} else {
				next = append(next, combine(current[i], current[i]))
			}
		}
		levels = append(levels, next)
		current = next
	}
	return &Tree{leaves: leaves, levels: levels}
}

// Root returns the tree's root hash, or "" for an empty trace.
func (t *Tree) Root() string {
	if len(t.levels) == 0 {
		return ""
	}
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Path returns the sibling hashes encountered ascending from leaf index i
// to the root, in order.
func (t *Tree) Path(i int) ([]string, error) {
	if i < 0 || i >= len(t.leaves) {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", i, len(t.leaves))
	}
	var path []string
	idx := i
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		var siblingIdx int
		if idx%2 == 0 {
			siblingIdx = idx + 1
			if siblingIdx >= len(nodes) {
				siblingIdx = idx
			}
		} else {
			siblingIdx = idx - 1
		}
		path = append(path, nodes[siblingIdx])
		idx /= 2
	}
	return path, nil
}

// VerifyPath folds leaf with path in order, using idx (the leaf's
// original index) to decide at each level whether the accumulator is the
// left or right child, and reports whether the result equals root. idx is
// shifted right once per level, mirroring how Path descended it.
func VerifyPath(idx int, leaf string, path []string, root string) bool {
	if root == "" {
		return leaf == "" && len(path) == 0
	}
	acc := leaf
	for _, sibling := range path {
		if idx%2 == 0 {
			acc = combine(acc, sibling)
		} else {
			acc = combine(sibling, acc)
		}
		idx /= 2
	}
	return acc == root
}

// LeafHash exposes leafHash for callers verifying a single claimed step
// against a published root without rebuilding the whole tree.
func LeafHash(step domain.TraceStep) string {
	return leafHash(step, stepGasCost(step.Opcode))
}

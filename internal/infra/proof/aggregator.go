package proof

import (
	"sync"

	"github.com/ailee-network/ailee-core/internal/domain"
	"github.com/ailee-network/ailee-core/internal/infra/metrics"
)

// Aggregator collects verified proofs for a single task from multiple
// workers and tallies them by output hash, the same map+mutex+Stats
// shape used throughout this codebase for concurrent bookkeeping.
type Aggregator struct {
	mu             sync.Mutex
	requiredQuorum int
	proofs         []domain.HashProof
	outputCounts   map[string]int
}

// NewAggregator requires at least requiredQuorum matching verified
// submissions before has_quorum is true.
func NewAggregator(requiredQuorum int) *Aggregator {
	if requiredQuorum < 1 {
		requiredQuorum = 1
	}
	return &Aggregator{
		requiredQuorum: requiredQuorum,
		outputCounts:   make(map[string]int),
	}
}

// AddProof records a proof. Callers are expected to have verified it
// already; the aggregator never invents or re-derives outputs, it only
// tallies what it was given.
func (a *Aggregator) AddProof(hp domain.HashProof) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.proofs = append(a.proofs, hp)
	a.outputCounts[hp.OutputHash]++
	metrics.QuorumSize.Observe(float64(len(a.proofs)))
}

// HasQuorum reports whether any single output hash has reached the
// required number of distinct submissions.
func (a *Aggregator) HasQuorum() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, count := range a.outputCounts {
		if count >= a.requiredQuorum {
			return true
		}
	}
	return false
}

// ConsensusOutput returns the plurality output hash once quorum exists.
// A tie for the top count is not a consensus: two output hashes tied at
// the top yield no result, even when both have reached quorum.
func (a *Aggregator) ConsensusOutput() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var best string
	var bestCount, tiedAtBest int
	for hash, count := range a.outputCounts {
		switch {
		case count > bestCount:
			best, bestCount, tiedAtBest = hash, count, 1
		case count == bestCount && count > 0:
			tiedAtBest++
		}
	}
	if bestCount < a.requiredQuorum || tiedAtBest > 1 {
		return "", false
	}
	return best, true
}

// OutputDistribution returns every distinct output hash seen and its
// submission count, for diagnostics and dispute review.
func (a *Aggregator) OutputDistribution() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.outputCounts))
	for k, v := range a.outputCounts {
		out[k] = v
	}
	return out
}

// Reset clears all collected proofs and tallies.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.proofs = nil
	a.outputCounts = make(map[string]int)
}

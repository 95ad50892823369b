// Package consensus implements the convergence evaluator, the block
// proposer, and the reputation updater — the rules that decide when a
// completion becomes minable and how attesters are rewarded.
package consensus

import "math"

const (
	// APRevealWeight is the fixed weight an ap_reveal attestation carries
	// regardless of weighting regime — teacher authority overrides
	// reputation.
	APRevealWeight = 10.0

	// QuorumConvergenceThreshold is the minimum weighted convergence score
	// a question's attestations must reach for its completions to be
	// minable.
	QuorumConvergenceThreshold = 0.7

	// ThoughtLeaderThreshold is the running-proportion cutoff below which a
	// correct attester earns the thought-leader bonus.
	ThoughtLeaderThreshold = 0.5

	// ThoughtLeaderBonus and BaseBonus are the multipliers applied to a
	// correct attester's reputation weight.
	ThoughtLeaderBonus = 2.5
	BaseBonus          = 1.0
)

// Attester is the minimal view the evaluator needs of an attestation's
// author: whether it's a registered node, and its current reputation.
type Attester struct {
	Registered bool
	Reputation float64
}

// Attestation is the minimal view the evaluator needs of a single
// attestation/ap_reveal transaction.
type Attestation struct {
	OwnerPubkey string
	AnswerHash  string
	IsAPReveal  bool
	Timestamp   int64
}

// AttesterLookup resolves an owner pubkey to its Attester view.
type AttesterLookup func(pubkey string) Attester

// Convergence computes the dominant-answer share over visible for a
// question, per the spec's weighting regimes. Unregistered attesters are
// discarded defensively before scoring. Returns 0 for an empty or
// all-unregistered set.
func Convergence(visible []Attestation, weighted bool, lookup AttesterLookup) float64 {
	buckets := make(map[string]float64)
	var total float64
	for _, a := range visible {
		att := lookup(a.OwnerPubkey)
		if !att.Registered {
			continue
		}
		var w float64
		switch {
		case a.IsAPReveal:
			w = APRevealWeight
		case weighted:
			w = math.Log(1 + att.Reputation)
		default:
			w = 1.0
		}
		buckets[a.AnswerHash] += w
		total += w
	}
	if total == 0 {
		return 0.0
	}
	var max float64
	for _, w := range buckets {
		if w > max {
			max = w
		}
	}
	return max / total
}

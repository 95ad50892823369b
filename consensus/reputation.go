package consensus

import (
	"math"
	"sort"
)

// ReputationAward is one attester's running-proportion-replay reward for a
// single mined completion.
type ReputationAward struct {
	AttesterPubkey string
	Delta          float64
}

// ReputationMutator applies an already-computed delta to pubkey's live
// reputation. The update must be visible to the AttesterLookup passed to
// the same replay, so that a second award to the same attester within one
// replay is weighted against its updated reputation rather than a stale
// snapshot.
type ReputationMutator func(pubkey string, delta float64)

// UpdateReputation replays visible (all attestations for the mined
// question, any order) in ascending timestamp order, rewarding every
// registered attester whose hash matches minedHash with a thought-leader
// bonus when their vote preceded the point the crowd crossed 50% agreement
// on any single answer. Each award is applied via mutate immediately, in
// replay order, before the next attestation's weight is computed — an
// attester credited twice in the same replay earns its second award against
// its now-higher reputation.
//
// This is a deterministic replay over the attestation set itself, not a
// lookup into a node's consensus-history log: history exists for
// observability and sync-time snapshots, not as the reward oracle.
func UpdateReputation(visible []Attestation, minedHash string, lookup AttesterLookup, mutate ReputationMutator) []ReputationAward {
	ordered := append([]Attestation(nil), visible...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timestamp < ordered[j].Timestamp })

	running := make(map[string]int)
	var runningTotal int
	var awards []ReputationAward

	for _, a := range ordered {
		propAtTime := 0.0
		if runningTotal > 0 {
			var dominant int
			for _, c := range running {
				if c > dominant {
					dominant = c
				}
			}
			propAtTime = float64(dominant) / float64(runningTotal)
		}

		att := lookup(a.OwnerPubkey)
		if att.Registered && a.AnswerHash == minedHash {
			bonus := BaseBonus
			if propAtTime < ThoughtLeaderThreshold {
				bonus = ThoughtLeaderBonus
			}
			weight := math.Log(1 + att.Reputation)
			delta := bonus * weight
			mutate(a.OwnerPubkey, delta)
			awards = append(awards, ReputationAward{AttesterPubkey: a.OwnerPubkey, Delta: delta})
		}

		running[a.AnswerHash]++
		runningTotal++
	}
	return awards
}

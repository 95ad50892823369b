package gossip

import (
	"log"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/apstatchain/apstatchain/chain"
)

// Peer is the minimal view Sync needs of a node: its chain, its mempool, and
// a way to append consensus-history snapshots. The engine's Node type
// satisfies this via a thin adapter (see engine package) so gossip does not
// need to import engine and create a cycle.
type Peer struct {
	Pubkey  string
	Chain   []chain.Block
	Mempool *Mempool
	// AppendHistory records a consensus-history snapshot for questionID.
	AppendHistory func(questionID string, timestamp int64, shares map[string]float64)
}

// Sync reconciles two nodes per the longest-chain + partial-attestation-
// gossip protocol. now is the timestamp stamped onto any history snapshots
// produced. rng drives the 25% sample and must be seeded by the caller for
// reproducible tests.
//
// Both mempool merge directions read from snapshots taken before either
// side is mutated — mutating a's mempool and then reading it again to
// compute b's merge would silently change what b receives depending on
// merge order, so both directions work from the pre-sync snapshots taken
// here.
func Sync(a, b *Peer, now int64, rng RNG) {
	syncChains(a, b)

	aSnap := a.Mempool.Snapshot()
	bSnap := b.Mempool.Snapshot()

	byID := make(map[string]chain.Transaction)
	union := mapset.NewThreadUnsafeSet[string]()
	collect := func(txs []chain.Transaction) {
		for _, t := range txs {
			if t.Kind != chain.KindAttestation {
				continue
			}
			union.Add(t.ID)
			byID[t.ID] = t
		}
	}
	// Only the two mempools feed the gossip pool (§4.6 step 2). Chain
	// contents must stay out: a transaction already mined into a chain has
	// left its proposer's mempool, and pulling it back into the sample
	// would let Mempool.Add reinsert it there, violating the mempool/chain
	// id-disjointness invariant (§3, §8).
	collect(aSnap)
	collect(bSnap)

	sample := sampleFraction(union, 0.25, rng, byID)

	applyGossip(a.Mempool, bSnap, sample)
	applyGossip(b.Mempool, aSnap, sample)

	touched := mapset.NewThreadUnsafeSet[string]()
	for _, tx := range sample {
		touched.Add(tx.QuestionID)
	}
	for qid := range touched.Iter() {
		snapshotHistory(a, qid, now)
		snapshotHistory(b, qid, now)
	}

	log.Printf("[gossip] sync %s<->%s: chains %d/%d, gossiped %d of %d attestations",
		a.Pubkey, b.Pubkey, len(a.Chain), len(b.Chain), len(sample), union.Cardinality())
}

func syncChains(a, b *Peer) {
	switch {
	case len(a.Chain) < len(b.Chain):
		a.Chain = append([]chain.Block(nil), b.Chain...)
	case len(a.Chain) > len(b.Chain):
		b.Chain = append([]chain.Block(nil), a.Chain...)
	}
}

// sampleFraction draws floor(frac*|pool|) elements from pool without
// replacement.
func sampleFraction(pool mapset.Set[string], frac float64, rng RNG, byID map[string]chain.Transaction) []chain.Transaction {
	all := pool.ToSlice()
	n := int(float64(len(all)) * frac)
	if n <= 0 || len(all) == 0 {
		return nil
	}
	rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	picked := all[:n]
	out := make([]chain.Transaction, 0, n)
	for _, id := range picked {
		out = append(out, byID[id])
	}
	return out
}

// applyGossip adopts, into dst, every transaction from partnerSnap (dst's
// partner's full mempool, any kind) and from sample (the attestation-only
// gossip draw) that dst does not already hold by id.
func applyGossip(dst *Mempool, partnerSnap []chain.Transaction, sample []chain.Transaction) {
	for _, t := range partnerSnap {
		dst.Add(t)
	}
	for _, t := range sample {
		dst.Add(t)
	}
}

func snapshotHistory(p *Peer, questionID string, now int64) {
	if p.AppendHistory == nil {
		return
	}
	visible := chain.AttestationsFor(chainTxns(p.Chain), p.Mempool.All(), questionID)
	shares := unweightedShares(visible)
	p.AppendHistory(questionID, now, shares)
}

func chainTxns(blocks []chain.Block) []chain.Transaction {
	var out []chain.Transaction
	for _, b := range blocks {
		out = append(out, b.Txns...)
	}
	return out
}

func unweightedShares(txns []chain.Transaction) map[string]float64 {
	counts := make(map[string]int)
	total := 0
	for _, t := range txns {
		counts[t.Payload.Hash]++
		total++
	}
	shares := make(map[string]float64, len(counts))
	if total == 0 {
		return shares
	}
	for h, c := range counts {
		shares[h] = float64(c) / float64(total)
	}
	return shares
}

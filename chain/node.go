package chain

import "sort"

// HistorySnapshot is one append-only consensus-history observation for a
// question: the unweighted answer-hash shares visible to a node at the time
// the snapshot was taken.
type HistorySnapshot struct {
	Timestamp int64              `json:"timestamp"`
	Shares    map[string]float64 `json:"shares"` // answer hash -> share
}

// Node is a single participant's view of the world: its own mempool, its
// own chain, its curriculum progress, its reputation, and the history of
// consensus snapshots it has observed. The engine owns the table of nodes;
// each Node exclusively owns everything below.
type Node struct {
	Pubkey     string
	Archetype  string
	Progress   int
	Reputation float64

	Chain []Block

	// History is keyed by question id; each entry is ordered by insertion
	// (append-only), matching the spec's history-entry ordering contract.
	History map[string][]HistorySnapshot
}

// NewNode creates a node with empty mempool and chain, zero progress, and
// the given starting reputation. Mempool lives in the gossip package, not
// here, since it must be a set keyed by id shared with sync machinery.
func NewNode(pubkey, archetype string, reputation float64) *Node {
	return &Node{
		Pubkey:     pubkey,
		Archetype:  archetype,
		Reputation: reputation,
		Chain:      nil,
		History:    make(map[string][]HistorySnapshot),
	}
}

// AppendHistory records a new consensus-history snapshot for questionID.
func (n *Node) AppendHistory(questionID string, timestamp int64, shares map[string]float64) {
	n.History[questionID] = append(n.History[questionID], HistorySnapshot{
		Timestamp: timestamp,
		Shares:    shares,
	})
}

// ChainTxns returns every transaction recorded in any block of the node's
// chain, in block-then-intra-block order.
func (n *Node) ChainTxns() []Transaction {
	var out []Transaction
	for _, b := range n.Chain {
		out = append(out, b.Txns...)
	}
	return out
}

// AttestationsFor returns every attestation/ap_reveal transaction visible to
// the node (chain ∪ mempool passed in by the caller) for questionID, sorted
// ascending by timestamp. mempoolTxns is supplied by the caller (the gossip
// package's Mempool) since Node does not hold the mempool itself.
func AttestationsFor(chainTxns, mempoolTxns []Transaction, questionID string) []Transaction {
	var out []Transaction
	seen := make(map[string]bool)
	consider := func(txs []Transaction) {
		for _, t := range txs {
			if t.QuestionID != questionID {
				continue
			}
			if t.Kind != KindAttestation && t.Kind != KindAPReveal {
				continue
			}
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			out = append(out, t)
		}
	}
	consider(chainTxns)
	consider(mempoolTxns)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

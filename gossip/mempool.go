// Package gossip holds the pending-transaction pool and the pairwise
// sync/gossip protocol nodes use to exchange chain state and attestations.
package gossip

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/apstatchain/apstatchain/chain"
)

// Mempool is a thread-safe set of pending transactions keyed by id, matching
// the data model's description of the mempool as "a set of transactions by
// id." IDs are tracked in a mapset.Set so membership/union/difference
// operations used by the sync protocol don't need hand-rolled bookkeeping;
// ord preserves insertion order for deterministic All() iteration.
type Mempool struct {
	mu  sync.RWMutex
	txs map[string]chain.Transaction
	ids mapset.Set[string]
	ord []string
}

// NewMempool creates an empty mempool.
func NewMempool() *Mempool {
	return &Mempool{
		txs: make(map[string]chain.Transaction),
		ids: mapset.NewThreadUnsafeSet[string](),
	}
}

// Add inserts tx if its id is not already present. Returns false if it was
// already present (a no-op, not an error — duplicate adds happen routinely
// during gossip).
func (m *Mempool) Add(tx chain.Transaction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids.Contains(tx.ID) {
		return false
	}
	m.txs[tx.ID] = tx
	m.ids.Add(tx.ID)
	m.ord = append(m.ord, tx.ID)
	return true
}

// Get returns a transaction by id.
func (m *Mempool) Get(id string) (chain.Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// All returns every pending transaction in insertion order.
func (m *Mempool) All() []chain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]chain.Transaction, 0, len(m.ord))
	for _, id := range m.ord {
		out = append(out, m.txs[id])
	}
	return out
}

// OfKind returns every pending transaction of the given kind, in insertion
// order.
func (m *Mempool) OfKind(kind chain.Kind) []chain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []chain.Transaction
	for _, id := range m.ord {
		if tx := m.txs[id]; tx.Kind == kind {
			out = append(out, tx)
		}
	}
	return out
}

// Remove deletes transactions by id (called after a block commits).
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := mapset.NewThreadUnsafeSet[string](ids...)
	for id := range removed.Iter() {
		delete(m.txs, id)
		m.ids.Remove(id)
	}
	filtered := m.ord[:0]
	for _, id := range m.ord {
		if !removed.Contains(id) {
			filtered = append(filtered, id)
		}
	}
	m.ord = filtered
}

// Size returns the current number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ord)
}

// Snapshot returns a point-in-time copy of every pending transaction. Sync
// uses this to read a partner's mempool before either side starts mutating,
// which is what fixes the read-after-mutate hazard described for the merge
// step.
func (m *Mempool) Snapshot() []chain.Transaction {
	return m.All()
}

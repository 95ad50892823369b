package gossip

import (
	"testing"

	"github.com/apstatchain/apstatchain/chain"
)

func mkTx(id string, kind chain.Kind) chain.Transaction {
	return chain.Transaction{ID: id, Kind: kind, QuestionID: "q1", Payload: chain.NewPayload("42")}
}

func TestMempoolAddIsIdempotentByID(t *testing.T) {
	m := NewMempool()
	if !m.Add(mkTx("a", chain.KindAttestation)) {
		t.Fatalf("first add should succeed")
	}
	if m.Add(mkTx("a", chain.KindAttestation)) {
		t.Fatalf("duplicate add by id should be a no-op")
	}
	if m.Size() != 1 {
		t.Fatalf("size = %d, want 1", m.Size())
	}
}

func TestMempoolPreservesInsertionOrder(t *testing.T) {
	m := NewMempool()
	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		m.Add(mkTx(id, chain.KindCompletion))
	}
	all := m.All()
	for i, tx := range all {
		if tx.ID != ids[i] {
			t.Fatalf("position %d: got %s want %s", i, tx.ID, ids[i])
		}
	}
}

func TestMempoolRemoveByID(t *testing.T) {
	m := NewMempool()
	m.Add(mkTx("a", chain.KindCompletion))
	m.Add(mkTx("b", chain.KindCompletion))
	m.Remove([]string{"a"})
	if m.Size() != 1 {
		t.Fatalf("size after remove = %d, want 1", m.Size())
	}
	if _, ok := m.Get("a"); ok {
		t.Fatalf("removed id still present")
	}
	if _, ok := m.Get("b"); !ok {
		t.Fatalf("untouched id missing")
	}
}

func TestMempoolOfKindFilters(t *testing.T) {
	m := NewMempool()
	m.Add(mkTx("a", chain.KindAttestation))
	m.Add(mkTx("b", chain.KindCompletion))
	atts := m.OfKind(chain.KindAttestation)
	if len(atts) != 1 || atts[0].ID != "a" {
		t.Fatalf("OfKind(attestation) = %+v", atts)
	}
}

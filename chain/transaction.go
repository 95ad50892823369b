// Package chain defines the data model shared by every node in the engine:
// payloads, transactions, blocks, and the per-node ledger state that sits
// on top of them.
package chain

import (
	"fmt"
	"time"
)

// Kind identifies what a transaction asserts.
type Kind string

const (
	KindCompletion  Kind = "completion"
	KindAttestation Kind = "attestation"
	KindAPReveal    Kind = "ap_reveal"
)

// Payload carries an answer and its content-addressed hash. Hash is always
// SHA-256 of Answer; NewPayload is the only constructor that should be used
// so the invariant can't drift.
type Payload struct {
	Answer string `json:"answer"`
	Hash   string `json:"hash"`
}

// NewPayload builds a Payload with Hash derived from answer.
func NewPayload(answer string) Payload {
	return Payload{Answer: answer, Hash: AnswerHash(answer)}
}

// Transaction is the atomic unit of work a node holds in its mempool or
// chain. Once created its fields are never mutated by the engine.
type Transaction struct {
	ID          string  `json:"id"`
	Timestamp   int64   `json:"timestamp"` // unix nanoseconds
	OwnerPubkey string  `json:"owner_pubkey"`
	QuestionID  string  `json:"question_id"`
	Kind        Kind    `json:"kind"`
	Payload     Payload `json:"payload"`
}

// NewTransaction constructs a Transaction with a node-local-unique id. The
// id is not a security commitment — it only needs to be unique within a
// single node's creation stream — so it is built from the timestamp, a
// short prefix of the owner's pubkey, and the kind.
func NewTransaction(questionID, pubkey, answer string, kind Kind, now time.Time) *Transaction {
	ts := now.UnixNano()
	prefix := pubkey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	id := fmt.Sprintf("%d-%s-%s", ts, prefix, kind)
	return &Transaction{
		ID:          id,
		Timestamp:   ts,
		OwnerPubkey: pubkey,
		QuestionID:  questionID,
		Kind:        kind,
		Payload:     NewPayload(answer),
	}
}

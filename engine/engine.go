// Package engine implements the registry: the node table, global
// thresholds, curriculum, and dispatch for every engine operation.
package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/apstatchain/apstatchain/chain"
	"github.com/apstatchain/apstatchain/consensus"
	"github.com/apstatchain/apstatchain/curriculum"
	"github.com/apstatchain/apstatchain/events"
	"github.com/apstatchain/apstatchain/gossip"
	"github.com/apstatchain/apstatchain/metrics"
)

// ErrNotFound is returned when an operation references a pubkey absent
// from the registry.
var ErrNotFound = errors.New("engine: node not found")

// node bundles a chain.Node with its gossip mempool; the engine owns this
// table exclusively, while each node's mempool/chain/history are exclusive
// to that node (mutations always go through the registry's lock).
type node struct {
	data    *chain.Node
	mempool *gossip.Mempool
}

// Engine is the single logical actor coordinating every registered node. A
// single mutex serializes writes to the node table and to any given node,
// matching the simplest-correct scheduling model: one worker, one queue.
type Engine struct {
	mu         sync.Mutex
	nodes      map[string]*node
	order      []string // insertion order, for median-reputation computation
	catalog    *curriculum.Catalog
	rng        *rand.Rand
	metrics    *metrics.Metrics
	events     *events.Emitter
	cleanupAge int
}

// Config is the subset of engine tunables the registry needs at
// construction time.
type Config struct {
	Catalog    *curriculum.Catalog
	RNGSeed    int64
	CleanupAge int
	Registerer prometheus.Registerer
	Emitter    *events.Emitter
}

// New constructs an empty Engine.
func New(cfg Config) *Engine {
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NewEmitter()
	}
	return &Engine{
		nodes:      make(map[string]*node),
		catalog:    cfg.Catalog,
		rng:        gossip.NewRNG(cfg.RNGSeed),
		metrics:    metrics.New(reg),
		events:     emitter,
		cleanupAge: cfg.CleanupAge,
	}
}

// Events returns the engine's event emitter so callers may subscribe before
// driving any operations.
func (e *Engine) Events() *events.Emitter { return e.events }

// Info is the GET /init introspection payload.
type Info struct {
	Status           string `json:"status"`
	CurriculumLength int    `json:"curriculum_length"`
}

// Info returns engine introspection data.
func (e *Engine) Info() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Info{Status: "ok", CurriculumLength: e.catalog.Len()}
}

// Snapshot is the GET /state/{pubkey} read projection.
type Snapshot struct {
	Progress    int     `json:"progress"`
	Reputation  float64 `json:"reputation"`
	ChainLength int     `json:"chain_length"`
	MempoolSize int     `json:"mempool_size"`
}

// Snapshot returns a read-only projection of a node's current state.
func (e *Engine) Snapshot(pubkey string) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes[pubkey]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return Snapshot{
		Progress:    n.data.Progress,
		Reputation:  n.data.Reputation,
		ChainLength: len(n.data.Chain),
		MempoolSize: n.mempool.Size(),
	}, nil
}

// AddNode registers pubkey idempotently. If already present it is returned
// unchanged. Otherwise reputation starts at provisional if supplied, else
// the median reputation across existing nodes, else 1.0 when the registry
// is empty — reputation must start strictly positive so log(r+1) > 0.
func (e *Engine) AddNode(pubkey, archetype string, provisional *float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.nodes[pubkey]; exists {
		return
	}
	rep := 1.0
	switch {
	case provisional != nil:
		rep = *provisional
	case len(e.order) > 0:
		rep = e.medianReputationLocked()
	}
	e.nodes[pubkey] = &node{
		data:    chain.NewNode(pubkey, archetype, rep),
		mempool: gossip.NewMempool(),
	}
	e.order = append(e.order, pubkey)
	e.events.Emit(events.Event{Type: events.EventNodeAdded, Pubkey: pubkey, Data: map[string]any{"archetype": archetype, "reputation": rep}})
}

func (e *Engine) medianReputationLocked() float64 {
	reps := make([]float64, 0, len(e.order))
	for _, pk := range e.order {
		reps = append(reps, e.nodes[pk].data.Reputation)
	}
	sort.Float64s(reps)
	mid := len(reps) / 2
	if len(reps)%2 == 1 {
		return reps[mid]
	}
	return (reps[mid-1] + reps[mid]) / 2
}

// CreateTxn constructs and deposits a transaction into pubkey's mempool.
func (e *Engine) CreateTxn(questionID, pubkey, answer string, kind chain.Kind) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes[pubkey]
	if !ok {
		return "", ErrNotFound
	}
	tx := chain.NewTransaction(questionID, pubkey, answer, kind, time.Now())
	n.mempool.Add(*tx)
	e.events.Emit(events.Event{Type: events.EventTxnCreated, Pubkey: pubkey, Data: map[string]any{"txn_id": tx.ID, "question_id": questionID, "kind": string(kind)}})
	return tx.ID, nil
}

// Convergence computes weighted or unweighted convergence for a question as
// visible to the given node.
func (e *Engine) Convergence(pubkey, questionID string, weighted bool) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes[pubkey]
	if !ok {
		return 0, ErrNotFound
	}
	visible := e.visibleAttestationsLocked(n, questionID)
	return consensus.Convergence(visible, weighted, e.attesterLookupLocked()), nil
}

func (e *Engine) visibleAttestationsLocked(n *node, questionID string) []consensus.Attestation {
	txns := chain.AttestationsFor(n.data.ChainTxns(), n.mempool.All(), questionID)
	out := make([]consensus.Attestation, 0, len(txns))
	for _, t := range txns {
		out = append(out, consensus.Attestation{
			OwnerPubkey: t.OwnerPubkey,
			AnswerHash:  t.Payload.Hash,
			IsAPReveal:  t.Kind == chain.KindAPReveal,
			Timestamp:   t.Timestamp,
		})
	}
	return out
}

func (e *Engine) attesterLookupLocked() consensus.AttesterLookup {
	return func(pubkey string) consensus.Attester {
		n, ok := e.nodes[pubkey]
		if !ok {
			return consensus.Attester{}
		}
		return consensus.Attester{Registered: true, Reputation: n.data.Reputation}
	}
}

// ProposeBlocks runs the attestation-batching rule then the PoK rule for
// pubkey, returning the resulting chain length. A proposal that mines
// nothing is not an error — it simply leaves the chain length unchanged.
func (e *Engine) ProposeBlocks(pubkey string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes[pubkey]
	if !ok {
		return 0, ErrNotFound
	}

	if res := consensus.ProposeAttestationBlock(consensus.ProposalInput{
		Pubkey:      pubkey,
		MempoolTxns: n.mempool.All(),
		ChainLen:    len(n.data.Chain),
	}); res != nil {
		e.commitProposalLocked(n, res)
	}

	in := consensus.ProposalInput{
		Pubkey:        pubkey,
		MempoolTxns:   n.mempool.All(),
		ChainTxns:     n.data.ChainTxns(),
		Progress:      n.data.Progress,
		CurriculumLen: e.catalog.Len(),
		Lookup:        e.attesterLookupLocked(),
		ChainLen:      len(n.data.Chain),
	}
	for _, q := range e.candidateQuestionsLocked(n) {
		visible := e.visibleAttestationsLocked(n, q)
		conv := consensus.Convergence(visible, true, e.attesterLookupLocked())
		e.metrics.ConvergenceAttempts.Observe(conv)
	}
	res := consensus.ProposePoKBlock(in)
	if res != nil {
		e.commitProposalLocked(n, res)
		qids := make([]string, 0, len(res.MinedQuestionHash))
		for qid := range res.MinedQuestionHash {
			qids = append(qids, qid)
		}
		sort.Strings(qids)
		for _, qid := range qids {
			hash := res.MinedQuestionHash[qid]
			visible := e.visibleAttestationsLocked(n, qid)
			mutate := func(pubkey string, delta float64) {
				if an, ok := e.nodes[pubkey]; ok {
					an.data.Reputation += delta
					e.metrics.ReputationUpdates.Inc()
					e.events.Emit(events.Event{Type: events.EventReputationUpdated, Pubkey: pubkey, Data: map[string]any{"delta": delta, "question_id": qid}})
				}
			}
			consensus.UpdateReputation(visible, hash, e.attesterLookupLocked(), mutate)
		}
	}

	return len(n.data.Chain), nil
}

func (e *Engine) candidateQuestionsLocked(n *node) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range n.mempool.OfKind(chain.KindCompletion) {
		if t.OwnerPubkey != n.data.Pubkey || seen[t.QuestionID] {
			continue
		}
		seen[t.QuestionID] = true
		out = append(out, t.QuestionID)
	}
	return out
}

func (e *Engine) commitProposalLocked(n *node, res *consensus.ProposalResult) {
	n.data.Chain = append(n.data.Chain, *res.Block)
	n.mempool.Remove(res.RemoveIDs)
	e.metrics.BlocksProposed.WithLabelValues(string(res.Block.Kind)).Inc()
	e.events.Emit(events.Event{Type: events.EventBlockMined, Pubkey: n.data.Pubkey, Data: map[string]any{"kind": string(res.Block.Kind), "chain_length": len(n.data.Chain)}})
}

// Sync reconciles two registered nodes via the pairwise longest-chain and
// attestation-gossip protocol.
func (e *Engine) Sync(pubkey1, pubkey2 string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n1, ok := e.nodes[pubkey1]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, pubkey1)
	}
	n2, ok := e.nodes[pubkey2]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, pubkey2)
	}

	p1 := e.asPeerLocked(n1)
	p2 := e.asPeerLocked(n2)
	gossip.Sync(p1, p2, time.Now().UnixNano(), e.rng)
	n1.data.Chain = p1.Chain
	n2.data.Chain = p2.Chain
	e.metrics.SyncOperations.Inc()
	e.events.Emit(events.Event{Type: events.EventSyncComplete, Pubkey: pubkey1, Data: map[string]any{"with": pubkey2}})
	return nil
}

func (e *Engine) asPeerLocked(n *node) *gossip.Peer {
	return &gossip.Peer{
		Pubkey:        n.data.Pubkey,
		Chain:         n.data.Chain,
		Mempool:       n.mempool,
		AppendHistory: n.data.AppendHistory,
	}
}

// SubmitAPReveal creates an ap_reveal transaction and deposits it into a
// registered node's mempool chosen at random, using the same seeded
// generator as sync gossip sampling.
func (e *Engine) SubmitAPReveal(teacherPubkey, questionID, answer string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.order) == 0 {
		return ErrNotFound
	}
	tx := chain.NewTransaction(questionID, teacherPubkey, answer, chain.KindAPReveal, time.Now())
	target := e.order[e.rng.Intn(len(e.order))]
	e.nodes[target].mempool.Add(*tx)
	return nil
}

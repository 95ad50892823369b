package consensus

import "github.com/apstatchain/apstatchain/chain"

const minAttestationBatch = 5

// ProposalInput is everything the proposer needs about a single node's
// current view: its visible transactions split into mempool and chain, its progress
// cursor, the curriculum length, and the attester lookup for convergence
// scoring.
type ProposalInput struct {
	Pubkey          string
	MempoolTxns     []chain.Transaction
	ChainTxns       []chain.Transaction
	Progress        int
	CurriculumLen   int
	Lookup          AttesterLookup
	ChainLen        int // current length of the proposer's own chain
}

// ProposalResult carries the block to append (if any), the ids to remove
// from the mempool, and the mined completions to hand to the reputation
// updater.
type ProposalResult struct {
	Block             *chain.Block
	RemoveIDs         []string
	MinedCompletions  []chain.Transaction
	MinedQuestionHash map[string]string // question id -> mined answer hash
}

// ProposeAttestationBlock batches all pending attestations into a new block
// once at least minAttestationBatch are pending. There is no quorum check:
// attestations are speech, not claims.
func ProposeAttestationBlock(in ProposalInput) *ProposalResult {
	var atts []chain.Transaction
	var ids []string
	for _, t := range in.MempoolTxns {
		if t.Kind == chain.KindAttestation {
			atts = append(atts, t)
			ids = append(ids, t.ID)
		}
	}
	if len(atts) < minAttestationBatch {
		return nil
	}
	b := chain.NewBlock(in.Pubkey, in.ChainLen, chain.BlockAttestation, atts)
	return &ProposalResult{Block: &b, RemoveIDs: ids}
}

// minAttestCount returns the quorum size required for a completion given
// the proposer's curriculum progress: easier early, stricter past the
// midpoint.
func minAttestCount(progress, curriculumLen int) int {
	if progress < curriculumLen/2 {
		return 2
	}
	return 4
}

// ProposePoKBlock mines every completion owned by the proposer whose
// question has reached quorum attestation count and weighted convergence
// at or above threshold. Only the proposer's own completions are candidates
// — a node only mines its own work. With an empty curriculum nothing is
// minable.
func ProposePoKBlock(in ProposalInput) *ProposalResult {
	if in.CurriculumLen == 0 {
		return nil
	}
	visible := append(append([]chain.Transaction(nil), in.ChainTxns...), in.MempoolTxns...)

	byQuestion := make(map[string][]Attestation)
	attCountByQuestion := make(map[string]int)
	for _, t := range visible {
		if t.Kind != chain.KindAttestation && t.Kind != chain.KindAPReveal {
			continue
		}
		byQuestion[t.QuestionID] = append(byQuestion[t.QuestionID], Attestation{
			OwnerPubkey: t.OwnerPubkey,
			AnswerHash:  t.Payload.Hash,
			IsAPReveal:  t.Kind == chain.KindAPReveal,
			Timestamp:   t.Timestamp,
		})
		attCountByQuestion[t.QuestionID]++
	}

	need := minAttestCount(in.Progress, in.CurriculumLen)

	var minable []chain.Transaction
	minedHashByQuestion := make(map[string]string)
	for _, t := range in.MempoolTxns {
		if t.Kind != chain.KindCompletion || t.OwnerPubkey != in.Pubkey {
			continue
		}
		if attCountByQuestion[t.QuestionID] < need {
			continue
		}
		conv := Convergence(byQuestion[t.QuestionID], true, in.Lookup)
		if conv < QuorumConvergenceThreshold {
			continue
		}
		minable = append(minable, t)
		minedHashByQuestion[t.QuestionID] = t.Payload.Hash
	}

	if len(minable) == 0 {
		return nil
	}

	minableQuestions := make(map[string]bool, len(minedHashByQuestion))
	for qid := range minedHashByQuestion {
		minableQuestions[qid] = true
	}

	txns := append([]chain.Transaction(nil), minable...)
	ids := make([]string, 0, len(minable))
	for _, t := range minable {
		ids = append(ids, t.ID)
	}
	for _, t := range in.MempoolTxns {
		if t.Kind == chain.KindAttestation && minableQuestions[t.QuestionID] {
			txns = append(txns, t)
			ids = append(ids, t.ID)
		}
	}

	b := chain.NewBlock(in.Pubkey, in.ChainLen, chain.BlockPoK, txns)
	return &ProposalResult{
		Block:             &b,
		RemoveIDs:         ids,
		MinedCompletions:  minable,
		MinedQuestionHash: minedHashByQuestion,
	}
}

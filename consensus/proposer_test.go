package consensus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apstatchain/apstatchain/chain"
	"github.com/apstatchain/apstatchain/consensus"
)

func mkAttn(qid, pubkey, answer string, ts int64) chain.Transaction {
	tx := chain.NewTransaction(qid, pubkey, answer, chain.KindAttestation, time.Unix(0, ts))
	return *tx
}

func mkCompletion(qid, pubkey, answer string, ts int64) chain.Transaction {
	tx := chain.NewTransaction(qid, pubkey, answer, chain.KindCompletion, time.Unix(0, ts))
	return *tx
}

func TestProposeAttestationBlockRequiresBatchOfFive(t *testing.T) {
	var txns []chain.Transaction
	for i := 0; i < 4; i++ {
		txns = append(txns, mkAttn("q1", "n", "A", int64(i)))
	}
	res := consensus.ProposeAttestationBlock(consensus.ProposalInput{Pubkey: "n", MempoolTxns: txns})
	require.Nil(t, res)

	txns = append(txns, mkAttn("q1", "n", "A", 4))
	res = consensus.ProposeAttestationBlock(consensus.ProposalInput{Pubkey: "n", MempoolTxns: txns})
	require.NotNil(t, res)
	require.Len(t, res.RemoveIDs, 5)
}

func TestProposeAttestationBlockBatchesMoreThanFiveIntoOneBlock(t *testing.T) {
	var txns []chain.Transaction
	for i := 0; i < 9; i++ {
		txns = append(txns, mkAttn("q1", "n", "A", int64(i)))
	}
	res := consensus.ProposeAttestationBlock(consensus.ProposalInput{Pubkey: "n", MempoolTxns: txns})
	require.NotNil(t, res)
	require.Len(t, res.Block.Txns, 9)
	require.Len(t, res.RemoveIDs, 9)
}

func lookupAllRegistered(rep float64) consensus.AttesterLookup {
	return func(string) consensus.Attester { return consensus.Attester{Registered: true, Reputation: rep} }
}

func TestProposePoKBlockRequiresQuorumCount(t *testing.T) {
	completion := mkCompletion("q1", "n", "A", 0)
	atts := []chain.Transaction{mkAttn("q1", "n", "A", 1)}
	in := consensus.ProposalInput{
		Pubkey:        "n",
		MempoolTxns:   append([]chain.Transaction{completion}, atts...),
		Progress:      0,
		CurriculumLen: 10,
		Lookup:        lookupAllRegistered(1),
	}
	require.Nil(t, consensus.ProposePoKBlock(in))
}

func TestProposePoKBlockMinesOnQuorumAndConvergence(t *testing.T) {
	completion := mkCompletion("q1", "n", "A", 0)
	atts := []chain.Transaction{
		mkAttn("q1", "n", "A", 1),
		mkAttn("q1", "n", "A", 2),
	}
	in := consensus.ProposalInput{
		Pubkey:        "n",
		MempoolTxns:   append([]chain.Transaction{completion}, atts...),
		Progress:      0,
		CurriculumLen: 10,
		Lookup:        lookupAllRegistered(1),
	}
	res := consensus.ProposePoKBlock(in)
	require.NotNil(t, res)
	require.Len(t, res.MinedCompletions, 1)
	require.Equal(t, completion.Payload.Hash, res.MinedQuestionHash["q1"])
	require.Len(t, res.RemoveIDs, 3) // completion + 2 attestations
}

func TestProposePoKBlockIgnoresOtherProposersCompletions(t *testing.T) {
	completion := mkCompletion("q1", "other", "A", 0)
	atts := []chain.Transaction{
		mkAttn("q1", "n", "A", 1),
		mkAttn("q1", "n", "A", 2),
	}
	in := consensus.ProposalInput{
		Pubkey:        "n",
		MempoolTxns:   append([]chain.Transaction{completion}, atts...),
		Progress:      0,
		CurriculumLen: 10,
		Lookup:        lookupAllRegistered(1),
	}
	require.Nil(t, consensus.ProposePoKBlock(in))
}

func TestProposePoKBlockStricterQuorumPastMidpoint(t *testing.T) {
	completion := mkCompletion("q1", "n", "A", 0)
	atts := []chain.Transaction{
		mkAttn("q1", "n", "A", 1),
		mkAttn("q1", "n", "A", 2),
	}
	in := consensus.ProposalInput{
		Pubkey:        "n",
		MempoolTxns:   append([]chain.Transaction{completion}, atts...),
		Progress:      5,
		CurriculumLen: 10,
		Lookup:        lookupAllRegistered(1),
	}
	require.Nil(t, consensus.ProposePoKBlock(in), "progress at curriculum midpoint requires 4 attestations")
}

package chain

// BlockKind distinguishes a lightweight attestation batch from a PoK block.
type BlockKind string

const (
	BlockAttestation BlockKind = "attestation"
	BlockPoK         BlockKind = "pok"
)

// Block is an ordered, non-empty bundle of transactions a node appended to
// its own chain. Hash is an opaque identifier — not a cryptographic
// commitment over the contents — derived from the proposer's chain length
// and the block kind, matching the non-goal that block linking need not be
// tamper-evident.
type Block struct {
	Hash  string        `json:"hash"`
	Kind  BlockKind     `json:"kind"`
	Txns  []Transaction `json:"txns"`
}

// NewBlock builds a block whose hash is derived from the proposer's pubkey,
// its position in the chain, and its kind.
func NewBlock(proposerPubkey string, chainLen int, kind BlockKind, txns []Transaction) Block {
	return Block{
		Hash: blockIdentifier(proposerPubkey, chainLen, kind),
		Kind: kind,
		Txns: append([]Transaction(nil), txns...),
	}
}

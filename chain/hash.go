package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// AnswerHash is the content-addressed digest backing the §3 Payload
// invariant (hash = SHA-256(answer)). Exported so callers outside this
// package (the convergence evaluator's bucket key, tests asserting the
// hash-matches-answer property) can derive the same digest a Payload
// carries without constructing one.
func AnswerHash(answer string) string {
	sum := sha256.Sum256([]byte(answer))
	return hex.EncodeToString(sum[:])
}

// blockIdentifier derives a Block's opaque hash from the proposer's pubkey,
// its position in the proposer's chain, and the block kind. It is an
// identifier for humans and logs, not a Merkle commitment over txns — the
// spec's Non-goal on cryptographic block linking means nothing ever
// verifies a block's contents against this hash.
func blockIdentifier(proposerPubkey string, chainLen int, kind BlockKind) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d-%s", proposerPubkey, chainLen, kind)))
	return hex.EncodeToString(sum[:])
}

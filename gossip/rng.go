package gossip

import "math/rand"

// RNG is the seedable random source the sync/gossip sampling step and
// ap_reveal node selection draw from. Production code uses rand.New with a
// real seed; tests inject a fixed-seed instance so the 25% sample and node
// selection are reproducible.
type RNG interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// NewRNG returns a *rand.Rand seeded with seed, satisfying RNG.
func NewRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

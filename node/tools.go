package node

import (
	"math/rand"
)

// fanoutSize is the number of peers a message is relayed to: floor(n/2), but
// at least one, so a node with a single peer still relays instead of sending
// to nobody.
func fanoutSize(n int) int {
	if n <= 0 {
		return 0
	}
	if n < 2 {
		return 1
	}
	return n / 2
}

// selectFanout returns k distinct elements of peers in random order. peers is
// not modified.
func selectFanout[T any](peers []T, k int, rng *rand.Rand) []T {
	if k > len(peers) {
		k = len(peers)
	}
	shuffled := make([]T, len(peers))
	copy(shuffled, peers)
	for i := 0; i < k; i++ {
		j := i + rng.Intn(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:k]
}

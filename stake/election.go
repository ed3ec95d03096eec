package stake

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Election draws a leader with probability proportional to stake.
type Election struct {
	ledger   *Ledger
	registry *Registry

	rngLock sync.Mutex
	rng     *rand.Rand

	lock      sync.RWMutex
	leader    string
	hasLeader bool
	epoch     uint64
}

func NewElection(ledger *Ledger, registry *Registry) *Election {
	return NewElectionWithRand(ledger, registry, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func NewElectionWithRand(ledger *Ledger, registry *Registry, rng *rand.Rand) *Election {
	return &Election{
		ledger:   ledger,
		registry: registry,
		rng:      rng,
	}
}

// Elect draws a leader among the registered validators and records it.
// It returns false when nobody holds stake, leaving the epoch leaderless.
func (e *Election) Elect() (string, bool) {
	return e.elect(e.draw)
}

// ElectSeeded is Elect with the draw taken from a generator seeded with seed.
// Nodes that share the seed and the same view of the stakes elect the same leader.
func (e *Election) ElectSeeded(seed int64) (string, bool) {
	rng := rand.New(rand.NewSource(seed))
	return e.elect(func(n uint64) uint64 { return uniform(rng, n) })
}

func (e *Election) elect(draw func(uint64) uint64) (string, bool) {
	weights := ActiveWeights(e.ledger, e.registry)
	leader, ok := pick(weights, draw)

	e.lock.Lock()
	defer e.lock.Unlock()
	e.epoch++
	e.leader, e.hasLeader = leader, ok
	return leader, ok
}

// Leader returns the outcome of the latest election.
func (e *Election) Leader() (string, bool) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.leader, e.hasLeader
}

func (e *Election) Epoch() uint64 {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.epoch
}

func pick(weights []Weight, draw func(uint64) uint64) (string, bool) {
	total := SumWeights(weights)
	if total == 0 {
		return "", false
	}
	choice := draw(total)
	for _, w := range weights {
		if choice < w.Amount {
			return w.ID, true
		}
		choice -= w.Amount
	}
	return "", false
}

func (e *Election) draw(n uint64) uint64 {
	e.rngLock.Lock()
	defer e.rngLock.Unlock()
	return uniform(e.rng, n)
}

// uniform returns a uniform integer in [0, n).
func uniform(rng *rand.Rand, n uint64) uint64 {
	if n <= math.MaxInt64 {
		return uint64(rng.Int63n(int64(n)))
	}
	// reject the top partial block so every value is equally likely
	limit := math.MaxUint64 - math.MaxUint64%n
	for {
		v := rng.Uint64()
		if v < limit {
			return v % n
		}
	}
}

package stake

import (
	"errors"
	"math/bits"
	"sort"
	"sync"
)

// ErrStakeOverflow is returned when a deposit would overflow the total stake.
var ErrStakeOverflow = errors.New("stake overflow")

// Weight is the stake held by one validator.
type Weight struct {
	ID     string
	Amount uint64
}

// Ledger maps validator ids to staked amounts. The running total never
// overflows, so no single entry can either.
type Ledger struct {
	lock   sync.RWMutex
	stakes map[string]uint64
	total  uint64
}

func NewLedger() *Ledger {
	return &Ledger{stakes: make(map[string]uint64)}
}

// Deposit adds amount to the stake of id, creating the entry if needed.
func (l *Ledger) Deposit(id string, amount uint64) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	total, carry := bits.Add64(l.total, amount, 0)
	if carry != 0 {
		return ErrStakeOverflow
	}
	l.total = total
	l.stakes[id] += amount
	return nil
}

// Contains reports whether id has a ledger entry, even one of zero.
func (l *Ledger) Contains(id string) bool {
	l.lock.RLock()
	defer l.lock.RUnlock()
	_, ok := l.stakes[id]
	return ok
}

func (l *Ledger) Stake(id string) uint64 {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.stakes[id]
}

func (l *Ledger) TotalStake() uint64 {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.total
}

func (l *Ledger) Len() int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return len(l.stakes)
}

// Snapshot returns every entry ordered by id.
func (l *Ledger) Snapshot() []Weight {
	l.lock.RLock()
	out := make([]Weight, 0, len(l.stakes))
	for id, amount := range l.stakes {
		out = append(out, Weight{ID: id, Amount: amount})
	}
	l.lock.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveWeights returns the entries of the validators currently in the registry.
func ActiveWeights(l *Ledger, r *Registry) []Weight {
	all := l.Snapshot()
	active := all[:0]
	for _, w := range all {
		if r.Has(w.ID) {
			active = append(active, w)
		}
	}
	return active
}

// SumWeights adds up weights. The ledger total bounds the result.
func SumWeights(weights []Weight) uint64 {
	var total uint64
	for _, w := range weights {
		total += w.Amount
	}
	return total
}

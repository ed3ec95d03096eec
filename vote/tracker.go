/*
Package vote collects the votes cast on a proposed block and decides when
enough stake agrees for the block to be final.
*/
package vote

import (
	"math/bits"
	"sync"

	"github.com/gitzhang10/pohchain/stake"
)

// Tracker records the votes of the current proposal round.
type Tracker struct {
	ledger   *stake.Ledger
	registry *stake.Registry

	lock   sync.Mutex
	height uint64
	open   bool
	votes  map[string]bool
}

func NewTracker(ledger *stake.Ledger, registry *stake.Registry) *Tracker {
	return &Tracker{
		ledger:   ledger,
		registry: registry,
		votes:    make(map[string]bool),
	}
}

// BeginRound opens the round for height, dropping the votes of any round at
// the same or a lower height. It returns false for a stale height.
func (t *Tracker) BeginRound(height uint64) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.open && height < t.height {
		return false
	}
	t.height = height
	t.open = true
	t.votes = make(map[string]bool)
	return true
}

// Round returns the height votes are being collected for.
func (t *Tracker) Round() (uint64, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.height, t.open
}

// RecordVote stores the vote of validator id. Votes for another height are ignored.
func (t *Tracker) RecordVote(id string, height uint64, vote bool) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.open || height != t.height {
		return false
	}
	t.votes[id] = vote
	return true
}

// Tally returns the stake that voted yes for height and the stake of all
// registered validators, using the weights as they are now.
func (t *Tracker) Tally(height uint64) (yes, total uint64) {
	t.lock.Lock()
	if !t.open || height != t.height {
		t.lock.Unlock()
		return 0, stake.SumWeights(stake.ActiveWeights(t.ledger, t.registry))
	}
	voted := make(map[string]bool, len(t.votes))
	for id, v := range t.votes {
		voted[id] = v
	}
	t.lock.Unlock()

	for _, w := range stake.ActiveWeights(t.ledger, t.registry) {
		total += w.Amount
		if voted[w.ID] {
			yes += w.Amount
		}
	}
	return yes, total
}

// IsFinal reports whether more than two thirds of the stake voted yes.
func (t *Tracker) IsFinal(height uint64) bool {
	yes, total := t.Tally(height)
	return Exceeds(yes, total)
}

// Exceeds reports 3*yes > 2*total without overflowing.
func Exceeds(yes, total uint64) bool {
	if total == 0 {
		return false
	}
	yHi, yLo := bits.Mul64(yes, 3)
	tHi, tLo := bits.Mul64(total, 2)
	if yHi != tHi {
		return yHi > tHi
	}
	return yLo > tLo
}

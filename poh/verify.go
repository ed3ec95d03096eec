package poh

import (
	"sync"

	"github.com/gitzhang10/pohchain/sign"
)

// Verify checks that entries chain from prev. It returns the index of the
// first entry whose hash does not follow its predecessor, or -1.
func Verify(prev sign.Hash, entries []HistoryEntry) int {
	for i, e := range entries {
		if Next(prev, e.Timestamp) != e.Hash {
			return i
		}
		prev = e.Hash
	}
	return -1
}

// VerifyLinks only checks the links inside entries, trusting the first one.
func VerifyLinks(entries []HistoryEntry) int {
	if len(entries) < 2 {
		return -1
	}
	if i := Verify(entries[0].Hash, entries[1:]); i >= 0 {
		return i + 1
	}
	return -1
}

// Replica mirrors the history of a remote node. Only entries that chain from
// the trusted prefix are kept.
type Replica struct {
	lock    sync.Mutex
	entries []HistoryEntry
}

func NewReplica() *Replica {
	return &Replica{}
}

func (r *Replica) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.entries)
}

// Extend appends entries that start at absolute index start. Entries already
// trusted are skipped. When entries leave a gap or break the chain, Extend
// keeps the valid prefix and returns false along with the index the missing
// history should be requested from.
func (r *Replica) Extend(start uint64, entries []HistoryEntry) (uint64, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	have := uint64(len(r.entries))
	if start > have {
		return have, false
	}
	skip := have - start
	if skip >= uint64(len(entries)) {
		return have, true
	}
	fresh := entries[skip:]
	prev := sign.Zero
	if have > 0 {
		prev = r.entries[have-1].Hash
	}
	bad := Verify(prev, fresh)
	if bad < 0 {
		r.entries = append(r.entries, fresh...)
		return uint64(len(r.entries)), true
	}
	r.entries = append(r.entries, fresh[:bad]...)
	return uint64(len(r.entries)), false
}

/*
Package poh implements the history clock: a hash chain where every link binds
a timestamp to all the links before it, so the order of the entries and the
time elapsed between them can be checked by anyone holding the chain.
*/
package poh

import (
	"context"
	"sync"
	"time"

	"github.com/gitzhang10/pohchain/sign"
	"github.com/hashicorp/go-hclog"
)

// HistoryEntry is one link of the history chain.
type HistoryEntry struct {
	Timestamp uint64    `json:"timestamp"`
	Hash      sign.Hash `json:"hash"`
}

// Next computes the link that follows prev at timestamp ts.
func Next(prev sign.Hash, ts uint64) sign.Hash {
	return sign.Sum(prev[:], sign.Uint64BE(ts))
}

// Sequencer produces the local history chain.
type Sequencer struct {
	lock    sync.RWMutex
	entries []HistoryEntry
	prev    sign.Hash
	now     func() time.Time
	logger  hclog.Logger
}

func NewSequencer(logger hclog.Logger) *Sequencer {
	return NewSequencerWithClock(logger, time.Now)
}

// NewSequencerWithClock creates a sequencer reading the time from now.
func NewSequencerWithClock(logger hclog.Logger, now func() time.Time) *Sequencer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Sequencer{
		prev:   sign.Zero,
		now:    now,
		logger: logger,
	}
}

// Tick appends one entry stamped with the current time.
func (s *Sequencer) Tick() HistoryEntry {
	ts := uint64(s.now().Unix())
	s.lock.Lock()
	defer s.lock.Unlock()
	entry := HistoryEntry{Timestamp: ts, Hash: Next(s.prev, ts)}
	s.entries = append(s.entries, entry)
	s.prev = entry.Hash
	return entry
}

// Run ticks every interval until ctx is done.
func (s *Sequencer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entry := s.Tick()
			s.logger.Trace("generated entry", "timestamp", entry.Timestamp, "hash", entry.Hash.Short())
		}
	}
}

func (s *Sequencer) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.entries)
}

// Entry returns the entry at index i.
func (s *Sequencer) Entry(i uint64) (HistoryEntry, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if i >= uint64(len(s.entries)) {
		return HistoryEntry{}, false
	}
	return s.entries[i], true
}

// Slice copies the entries from index from to the end. It returns an empty
// slice when from is beyond the current length.
func (s *Sequencer) Slice(from uint64) []HistoryEntry {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if from >= uint64(len(s.entries)) {
		return []HistoryEntry{}
	}
	out := make([]HistoryEntry, len(s.entries)-int(from))
	copy(out, s.entries[from:])
	return out
}

package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gitzhang10/pohchain/mempool"
	"github.com/gitzhang10/pohchain/poh"
	"github.com/gitzhang10/pohchain/sign"
)

var (
	ErrParentMismatch = errors.New("parent hash does not match the tip")
	ErrHeightMismatch = errors.New("height does not follow the tip")
	ErrBlockHash      = errors.New("block hash does not match its contents")
)

// HistoryError reports a history window that does not chain. Index is the
// absolute position of the first bad entry in the proposer's history.
type HistoryError struct {
	Index uint64
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("history entry %d does not chain from its predecessor", e.Index)
}

// Chain owns the tip and the blocks accepted so far.
type Chain struct {
	lock   sync.RWMutex
	blocks []Block
	cursor uint64 // first history index not covered by a block
}

func New() *Chain {
	return &Chain{blocks: []Block{Genesis()}}
}

// Tip returns the hash and height of the last accepted block.
func (c *Chain) Tip() (sign.Hash, uint64) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	head := c.blocks[len(c.blocks)-1]
	return head.BlockHash, head.Height
}

func (c *Chain) Head() Block {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

func (c *Chain) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.blocks)
}

func (c *Chain) Block(height uint64) (Block, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if height >= uint64(len(c.blocks)) {
		return Block{}, false
	}
	return c.blocks[height], true
}

// HistoryCursor is the first local history index not yet placed in a block.
func (c *Chain) HistoryCursor() uint64 {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.cursor
}

// Assemble builds the next block on top of the tip and makes it the new tip.
// window holds the local history entries starting at offset.
func (c *Chain) Assemble(proposer string, offset uint64, window []poh.HistoryEntry,
	txs []mempool.Transaction, timestamp uint64) Block {
	c.lock.Lock()
	defer c.lock.Unlock()
	head := c.blocks[len(c.blocks)-1]
	b := Block{
		Proposer:      proposer,
		ParentHash:    head.BlockHash,
		Height:        head.Height + 1,
		Timestamp:     timestamp,
		HistoryOffset: offset,
		HistoryWindow: window,
		Transactions:  txs,
	}
	b.BlockHash = b.ComputeHash()
	c.blocks = append(c.blocks, b)
	c.cursor = offset + uint64(len(window))
	return b
}

// AdvanceCursor moves the history cursor forward to index. Entries before it
// will not be placed in a block proposed by this node.
func (c *Chain) AdvanceCursor(index uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if index > c.cursor {
		c.cursor = index
	}
}

// Accept validates b against the tip and appends it.
func (c *Chain) Accept(b Block) error {
	if err := CheckWindow(b); err != nil {
		return err
	}
	if b.ComputeHash() != b.BlockHash {
		return ErrBlockHash
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	head := c.blocks[len(c.blocks)-1]
	if b.ParentHash != head.BlockHash {
		return ErrParentMismatch
	}
	if b.Height != head.Height+1 {
		return ErrHeightMismatch
	}
	c.blocks = append(c.blocks, b)
	return nil
}

// CheckWindow recomputes every window entry from its predecessor. A window
// starting at offset 0 must also chain from the zero digest.
func CheckWindow(b Block) error {
	var bad int
	if b.HistoryOffset == 0 {
		bad = poh.Verify(sign.Zero, b.HistoryWindow)
	} else {
		bad = poh.VerifyLinks(b.HistoryWindow)
	}
	if bad >= 0 {
		return &HistoryError{Index: b.HistoryOffset + uint64(bad)}
	}
	return nil
}

/*
Package chain builds and accepts the blocks that link the history clock and
the transaction pool into a single append-only chain.
*/
package chain

import (
	"github.com/gitzhang10/pohchain/mempool"
	"github.com/gitzhang10/pohchain/poh"
	"github.com/gitzhang10/pohchain/sign"
)

// Block is a candidate or accepted block. HistoryOffset is the index, in the
// proposer's history, of the first entry of HistoryWindow. Neither it nor
// Proposer are covered by the block hash.
type Block struct {
	Proposer      string                `json:"proposer"`
	ParentHash    sign.Hash             `json:"parent_hash"`
	Height        uint64                `json:"height"`
	Timestamp     uint64                `json:"timestamp"`
	HistoryOffset uint64                `json:"history_offset"`
	HistoryWindow []poh.HistoryEntry    `json:"history_window"`
	Transactions  []mempool.Transaction `json:"transactions"`
	BlockHash     sign.Hash             `json:"block_hash"`
}

// ComputeHash returns H(parent || height || timestamp || transactions).
func ComputeHash(parent sign.Hash, height, timestamp uint64, txs []mempool.Transaction) sign.Hash {
	return sign.Sum(
		parent[:],
		sign.Uint64BE(height),
		sign.Uint64BE(timestamp),
		mempool.SerializeTransactions(txs),
	)
}

func (b *Block) ComputeHash() sign.Hash {
	return ComputeHash(b.ParentHash, b.Height, b.Timestamp, b.Transactions)
}

// Genesis returns the block every chain starts from.
func Genesis() Block {
	b := Block{ParentHash: sign.Zero}
	b.BlockHash = b.ComputeHash()
	return b
}

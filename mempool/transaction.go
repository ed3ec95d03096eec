/*
Package mempool holds the transactions waiting to be included in a block.
*/
package mempool

import (
	"github.com/gitzhang10/pohchain/sign"
	"github.com/hashicorp/go-msgpack/codec"
)

// Transaction moves amount from sender to receiver.
type Transaction struct {
	Sender    string `json:"sender" codec:"sender"`
	Receiver  string `json:"receiver" codec:"receiver"`
	Amount    uint64 `json:"amount" codec:"amount"`
	Signature []byte `json:"signature" codec:"signature"`
}

// unsigned is the part of a transaction covered by its signature.
type unsigned struct {
	Sender   string `codec:"sender"`
	Receiver string `codec:"receiver"`
	Amount   uint64 `codec:"amount"`
}

// Encode returns the msgpack encoding of v.
func Encode(v interface{}) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, &codec.MsgpackHandle{})
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

// SigningBytes returns the bytes a sender signs.
func (tx *Transaction) SigningBytes() []byte {
	data, err := Encode(unsigned{Sender: tx.Sender, Receiver: tx.Receiver, Amount: tx.Amount})
	if err != nil {
		panic(err)
	}
	return data
}

// Hash identifies a transaction, signature included.
func (tx *Transaction) Hash() sign.Hash {
	data, err := Encode(tx)
	if err != nil {
		panic(err)
	}
	return sign.Sum(data)
}

// SerializeTransactions is the canonical encoding of a transaction list.
// An empty list and a nil list encode the same way.
func SerializeTransactions(txs []Transaction) []byte {
	if txs == nil {
		txs = []Transaction{}
	}
	data, err := Encode(txs)
	if err != nil {
		panic(err)
	}
	return data
}

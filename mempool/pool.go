package mempool

import (
	"sync"

	"github.com/gitzhang10/pohchain/sign"
)

// Pool keeps admitted transactions in arrival order.
type Pool struct {
	lock     sync.RWMutex
	verifier Verifier
	order    []sign.Hash
	txs      map[sign.Hash]Transaction
}

func NewPool(verifier Verifier) *Pool {
	if verifier == nil {
		verifier = NonEmptySignature
	}
	return &Pool{
		verifier: verifier,
		txs:      make(map[sign.Hash]Transaction),
	}
}

// Submit admits tx if its signature verifies and it is not pooled yet.
func (p *Pool) Submit(tx Transaction) bool {
	if !p.verifier.Verify(&tx) {
		return false
	}
	h := tx.Hash()
	p.lock.Lock()
	defer p.lock.Unlock()
	if _, ok := p.txs[h]; ok {
		return false
	}
	p.txs[h] = tx
	p.order = append(p.order, h)
	return true
}

// Snapshot copies the pooled transactions without removing them.
func (p *Pool) Snapshot() []Transaction {
	p.lock.RLock()
	defer p.lock.RUnlock()
	out := make([]Transaction, 0, len(p.order))
	for _, h := range p.order {
		out = append(out, p.txs[h])
	}
	return out
}

// Remove drops txs from the pool, typically once a block carrying them is accepted.
func (p *Pool) Remove(txs []Transaction) int {
	if len(txs) == 0 {
		return 0
	}
	drop := make(map[sign.Hash]struct{}, len(txs))
	for i := range txs {
		drop[txs[i].Hash()] = struct{}{}
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	kept := p.order[:0]
	removed := 0
	for _, h := range p.order {
		if _, ok := drop[h]; ok {
			delete(p.txs, h)
			removed++
			continue
		}
		kept = append(kept, h)
	}
	p.order = kept
	return removed
}

func (p *Pool) Len() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return len(p.order)
}

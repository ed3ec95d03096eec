/*
Package stake keeps the set of connected validators, the weight each of them
has staked, and draws the leader from those weights.
*/
package stake

import (
	"sort"
	"sync"
)

// Validator is a registered peer.
type Validator struct {
	ID        string `json:"id"`
	PublicKey []byte `json:"public_key"`
}

// Registry tracks the validators currently connected to the node.
type Registry struct {
	lock       sync.RWMutex
	validators map[string]Validator
}

func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]Validator)}
}

// Register inserts or replaces v and returns its id.
func (r *Registry) Register(v Validator) string {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.validators[v.ID] = v
	return v.ID
}

func (r *Registry) Remove(id string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.validators, id)
}

func (r *Registry) Get(id string) (Validator, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	v, ok := r.validators[id]
	return v, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.validators)
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []string {
	r.lock.RLock()
	ids := make([]string, 0, len(r.validators))
	for id := range r.validators {
		ids = append(ids, id)
	}
	r.lock.RUnlock()
	sort.Strings(ids)
	return ids
}

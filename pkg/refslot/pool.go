// Copyright 2025 The RefSlot Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package refslot

import "sync"

// Pool recycles nodes instead of leaving them to the garbage
// collector. Reuse is what makes the epoch substrate load-bearing: a
// node goes back into the pool only inside its deferred reclamation,
// after every guard that could hold a raw pointer to its previous
// life has unpinned. Without that, a reader could take a reference on
// a node that has already been reinitialized for an unrelated value.
type Pool[T any] struct {
	nodes sync.Pool
	reset func(*T)
}

// NewPool returns a node pool for T. reset, if non-nil, runs on each
// value as its node is recycled, before the node can be handed out
// again.
func NewPool[T any](reset func(*T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.nodes.New = func() any {
		return &node[T]{}
	}
	return p
}

// New is the package-level New drawing its node from the pool.
func (p *Pool[T]) New(value T) Handle[T] {
	n := p.nodes.Get().(*node[T])
	n.home = p
	n.value = value
	// A recycled node's grace period ended before it reentered the
	// pool, so no speculative reference can race this store.
	n.refs.Store(1)
	n.register()
	return Handle[T]{n: n}
}

// recycle runs inside the deferred reclamation of a node drawn from
// p, after its grace period.
func (p *Pool[T]) recycle(n *node[T]) {
	if p.reset != nil {
		p.reset(&n.value)
	}
	// A pooled node must not pin its old payload while it waits for
	// reuse.
	var zero T
	n.value = zero
	p.nodes.Put(n)
}

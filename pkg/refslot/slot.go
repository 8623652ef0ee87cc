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

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"refslot.dev/refslot/pkg/epoch"
)

// AtomicSlot is a lock-free holder of one Handle. The zero value is
// an empty slot holding the null handle.
//
// A slot owns one reference to whatever node it holds. That reference
// travels: Store and a successful CompareExchange hand it out with
// the previous contents and take over the reference of the consumed
// argument. The padding keeps neighboring slots in arrays off each
// other's cache lines.
type AtomicSlot[T any] struct {
	_ cpu.CacheLinePad
	p atomic.Pointer[node[T]]
	_ cpu.CacheLinePad
}

// NewAtomicSlot returns a slot holding initial's reference; initial
// is consumed. A nil initial leaves the slot null, as does the zero
// value of AtomicSlot itself.
func NewAtomicSlot[T any](initial *Handle[T]) *AtomicSlot[T] {
	s := &AtomicSlot[T]{}
	if initial != nil {
		s.p.Store(initial.take())
	}
	return s
}

// Load returns a handle owning a fresh reference to the slot's
// current contents. The protocol pins an epoch guard, loads the raw
// pointer, and takes the reference while still pinned; if the node's
// count hits zero in that window the slot has necessarily moved on,
// so the protocol restarts on the new contents. Each retry implies
// another goroutine completed a removal, so the loop is lock-free.
func (s *AtomicSlot[T]) Load(order MemoryOrder) Handle[T] {
	order.mustBeLoadOrder()
	for {
		g := epoch.Pin()
		n := s.p.Load()
		if n == nil {
			g.Unpin()
			return Handle[T]{}
		}
		if n.tryIncRef() {
			g.Unpin()
			return Handle[T]{n: n}
		}
		g.Unpin()
	}
}

// TryLoad is Load without the retry: if the observed node loses its
// last reference before TryLoad can take one, it reports failure
// instead of restarting. Loading an empty slot succeeds with the null
// handle.
func (s *AtomicSlot[T]) TryLoad(order MemoryOrder) (Handle[T], bool) {
	order.mustBeLoadOrder()
	g := epoch.Pin()
	defer g.Unpin()
	n := s.p.Load()
	if n == nil {
		return Handle[T]{}, true
	}
	if !n.tryIncRef() {
		return Handle[T]{}, false
	}
	return Handle[T]{n: n}, true
}

// Store unconditionally replaces the slot's contents with new's
// reference, consuming new, and returns the previous contents as a
// handle the caller now owns. No count changes hands: the slot's
// reference moves out with the returned handle and new's reference
// moves in. Storing a null handle empties the slot.
func (s *AtomicSlot[T]) Store(new *Handle[T], order MemoryOrder) Handle[T] {
	order.mustBeUpdateOrder()
	if new == nil {
		panic("refslot: Store with a nil handle pointer")
	}
	old := s.p.Swap(new.take())
	return Handle[T]{n: old}
}

// CompareExchange performs one compare-and-swap. If the slot holds
// the same node as expected, it takes over new's reference (consuming
// new) and returns the previous contents as an owned handle with
// swapped true. Otherwise new is untouched and prev is a freshly
// taken reference to what the slot holds instead, acquired with the
// failure ordering; the slot may have changed again by then, so prev
// can differ from the value that defeated the attempt. Retry loops
// belong to the caller.
//
// Nodes compare by identity. That is sound because the caller's
// expected handle keeps its node alive: a live node cannot be
// reclaimed and recycled into a different value mid-comparison.
func (s *AtomicSlot[T]) CompareExchange(expected Handle[T], new *Handle[T], success, failure MemoryOrder) (prev Handle[T], swapped bool) {
	success.mustBeUpdateOrder()
	failure.mustBeLoadOrder()
	if new == nil {
		panic("refslot: CompareExchange with a nil handle pointer")
	}
	if s.p.CompareAndSwap(expected.n, new.n) {
		new.n = nil
		return Handle[T]{n: expected.n}, true
	}
	return s.Load(failure), false
}

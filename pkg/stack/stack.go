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

// Package stack provides a lock-free LIFO stack of values, built on
// refslot handles. It is the smallest realistic consumer of the slot
// protocol: one slot holds the top node, pushes and pops race on it
// with compare-exchange, and node lifetimes are carried entirely by
// reference counts.
package stack

import (
	"refslot.dev/refslot/pkg/refslot"
)

// node links a value to the rest of the stack. The next handle is the
// stack's one reference to the node below; it is dropped by the
// node's destructor when the node itself dies.
type node[T any] struct {
	value T
	next  refslot.Handle[node[T]]
}

func releaseNode[T any](n *node[T]) {
	n.next.Release()
}

// Stack is a lock-free LIFO stack. The zero value is an empty stack.
// All methods are safe for concurrent use.
type Stack[T any] struct {
	top refslot.AtomicSlot[node[T]]
}

// Push adds value on top of the stack.
func (s *Stack[T]) Push(value T) {
	n := refslot.NewWithDestroy(node[T]{value: value, next: s.top.Load(refslot.Acquire)}, releaseNode[T])
	for {
		// The new node's next handle doubles as the expected top.
		expected := n.Get().next
		prev, swapped := s.top.CompareExchange(expected, &n, refslot.AcqRel, refslot.Acquire)
		if swapped {
			// The old top now lives on as the new node's next; the
			// slot's reference to it came back as prev and is surplus.
			prev.Release()
			return
		}
		stale := n.Get().next
		n.Get().next = prev
		stale.Release()
	}
}

// TryPop removes and returns the top value. It reports false when the
// stack is empty.
func (s *Stack[T]) TryPop() (T, bool) {
	current := s.top.Load(refslot.Acquire)
	for {
		if current.IsNull() {
			var zero T
			return zero, false
		}
		next := current.Get().next.Clone()
		prev, swapped := s.top.CompareExchange(current, &next, refslot.Acquire, refslot.Relaxed)
		if swapped {
			prev.Release()
			value := current.Get().value
			current.Release()
			return value, true
		}
		next.Release()
		current.Release()
		current = prev
	}
}

// Empty reports whether the stack had no values at the time of the
// load.
func (s *Stack[T]) Empty() bool {
	h := s.top.Load(refslot.Acquire)
	defer h.Release()
	return h.IsNull()
}

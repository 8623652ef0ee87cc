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

// Package queue provides a lock-free FIFO queue of values, built on
// refslot handles and slots.
//
// The queue is a linked chain of nodes, each carrying one value cell
// and one successor cell. A push claims the empty value cell of the
// tail node and extends the chain with a fresh node; a pop takes the
// head node's value and swings the head to the successor. The chain
// always keeps one node past the last claimed value, so the head node
// with an unclaimed value cell is the empty queue.
package queue

import (
	"runtime"

	"refslot.dev/refslot/pkg/refslot"
)

type node[T any] struct {
	value refslot.AtomicSlot[T]
	next  refslot.AtomicSlot[node[T]]
}

func newNode[T any]() refslot.Handle[node[T]] {
	return refslot.NewWithDestroy(node[T]{}, releaseNode[T])
}

// releaseNode empties the dying node's cells so that its value and its
// successor are released in turn. It runs during epoch collection.
func releaseNode[T any](n *node[T]) {
	nullValue := refslot.Null[T]()
	v := n.value.Store(&nullValue, refslot.Relaxed)
	v.Release()
	nullNode := refslot.Null[node[T]]()
	next := n.next.Store(&nullNode, refslot.Relaxed)
	next.Release()
}

// Queue is a lock-free FIFO queue. All methods except Close are safe
// for concurrent use.
type Queue[T any] struct {
	head refslot.AtomicSlot[node[T]]
	tail refslot.AtomicSlot[node[T]]
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	prime := newNode[T]()
	second := prime.Clone()
	prev := q.head.Store(&prime, refslot.Relaxed)
	prev.Release()
	prev = q.tail.Store(&second, refslot.Relaxed)
	prev.Release()
	return q
}

// Push appends value to the back of the queue.
func (q *Queue[T]) Push(value T) {
	v := refslot.New(value)
	spare := newNode[T]()
	tail := q.tail.Load(refslot.Relaxed)
	for {
		prev, claimed := tail.Get().value.CompareExchange(refslot.Null[T](), &v, refslot.Release, refslot.Relaxed)
		prev.Release()
		if claimed {
			succ := q.ensureSuccessor(tail, &spare)
			succ.Release()
			spare.Release()
			tail.Release()
			return
		}
		succ := q.ensureSuccessor(tail, &spare)
		tail.Release()
		tail = succ
		if spare.IsNull() {
			spare = newNode[T]()
		}
		runtime.Gosched()
	}
}

// TryPop removes and returns the value at the front of the queue. It
// reports false when the queue is empty. Under contention it may
// report false even though a racing push has already claimed a value
// cell; callers that know the queue is non-empty should retry.
func (q *Queue[T]) TryPop() (T, bool) {
	head := q.head.Load(refslot.Relaxed)
	for {
		v := head.Get().value.Load(refslot.Relaxed)
		if v.IsNull() {
			head.Release()
			var zero T
			return zero, false
		}
		v.Release()
		next := head.Get().next.Load(refslot.Relaxed)
		if next.IsNull() {
			spare := newNode[T]()
			next = q.ensureSuccessor(head, &spare)
			spare.Release()
		}
		prev, moved := q.head.CompareExchange(head, &next, refslot.Release, refslot.Relaxed)
		if moved {
			prev.Release()
			// The cell stays claimed until the node dies: a pusher
			// chasing a stale tail must never be able to reclaim it.
			// Only the winner of the head exchange reads it out.
			vh := head.Get().value.Load(refslot.Acquire)
			head.Release()
			value := *vh.Get()
			vh.Release()
			return value, true
		}
		next.Release()
		head.Release()
		head = prev
		runtime.Gosched()
	}
}

// Empty reports whether the queue had no claimed values at the time of
// the load.
func (q *Queue[T]) Empty() bool {
	head := q.head.Load(refslot.Relaxed)
	v := head.Get().value.Load(refslot.Relaxed)
	empty := v.IsNull()
	v.Release()
	head.Release()
	return empty
}

// Close releases the queue's references to its nodes. Unconsumed
// values are destroyed as epoch collection reclaims the chain. No
// other method may be called after Close.
func (q *Queue[T]) Close() {
	null := refslot.Null[node[T]]()
	h := q.head.Store(&null, refslot.Relaxed)
	h.Release()
	null = refslot.Null[node[T]]()
	t := q.tail.Store(&null, refslot.Relaxed)
	t.Release()
}

// ensureSuccessor returns a counted handle to n's successor, installing
// *spare as the successor if n does not have one yet. It then tries to
// swing the queue's tail from n to the successor so that a stalled
// pusher cannot block the tail forever. *spare is consumed when it is
// installed.
func (q *Queue[T]) ensureSuccessor(n refslot.Handle[node[T]], spare *refslot.Handle[node[T]]) refslot.Handle[node[T]] {
	cand := spare.Clone()
	prev, installed := n.Get().next.CompareExchange(refslot.Null[node[T]](), spare, refslot.Relaxed, refslot.Relaxed)
	var succ refslot.Handle[node[T]]
	if installed {
		prev.Release()
		succ = cand
	} else {
		cand.Release()
		succ = prev
	}
	swing := succ.Clone()
	tprev, swung := q.tail.CompareExchange(n, &swing, refslot.Relaxed, refslot.Relaxed)
	tprev.Release()
	if !swung {
		swing.Release()
	}
	return succ
}

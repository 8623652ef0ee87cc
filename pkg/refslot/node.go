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
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"refslot.dev/refslot/pkg/epoch"
	"refslot.dev/refslot/pkg/log"
)

// speculativeRef is a single reference in the speculative half of the
// count word. refs packs [32-bit speculative count][32-bit real
// count]: tryIncRef parks a speculative reference first, checks the
// real half, and either converts it into a real reference or backs
// out. Two bounded atomic adds, no CAS loop.
const speculativeRef = int64(1) << 32

// node carries one refcounted value. Its count word sits alone on a
// cache line: every Clone and Release hits the count, and without the
// padding they would thrash the line holding the value.
type node[T any] struct {
	_    cpu.CacheLinePad
	refs atomic.Int64
	_    cpu.CacheLinePad

	// drop, if set, runs on the value inside the node's deferred
	// reclamation. home, if set, is the pool the node returns to
	// after that. Both are fixed before the node is shared.
	drop func(*T)
	home *Pool[T]

	// registered tracks membership in the leak registry. Written only
	// while the node is exclusively owned: at initialization and at
	// the final decRef.
	registered bool

	value T
}

func newNode[T any](value T, drop func(*T), home *Pool[T]) *node[T] {
	n := &node[T]{drop: drop, home: home, value: value}
	n.refs.Store(1)
	n.register()
	return n
}

// readRefs returns the real reference count.
func (n *node[T]) readRefs() int64 {
	return int64(int32(n.refs.Load()))
}

// incRef takes a reference on a node the caller already keeps alive.
func (n *node[T]) incRef() {
	v := n.refs.Add(1)
	if int32(v) <= 1 {
		panic(fmt.Sprintf("refslot: incrementing non-positive reference count %p", n))
	}
	n.logRefs("IncRef", v)
}

// tryIncRef takes a reference on a node whose count may concurrently
// reach zero. It must run under a pinned epoch guard: the guard is
// what keeps a dead node from being reinitialized while the
// speculative reference is still parked on it.
func (n *node[T]) tryIncRef() bool {
	if v := n.refs.Add(speculativeRef); int32(v) == 0 {
		// The real count already hit zero; the node is on its way to
		// reclamation and must not come back. Backing out leaves the
		// word as we found it.
		n.refs.Add(-speculativeRef)
		return false
	}
	v := n.refs.Add(-speculativeRef + 1)
	n.logRefs("TryIncRef", v)
	return true
}

// decRef drops a reference. The reference that observes the count at
// zero schedules reclamation.
func (n *node[T]) decRef() {
	v := n.refs.Add(-1)
	n.logRefs("DecRef", v)
	switch {
	case int32(v) < 0:
		panic(fmt.Sprintf("refslot: decrementing non-positive reference count %p", n))
	case v == 0:
		// Zero across the whole word: no real references remain and
		// no speculative reference is in flight. A speculative
		// reference still parked here would have seen a positive real
		// count when it arrived and will convert itself into a real
		// one, so reclamation would be its problem, not ours.
		n.unregister()
		if n.drop != nil || n.home != nil {
			epoch.Retire(n.reclaim)
		}
	}
}

// reclaim runs once the node's grace period has passed: no pinned
// guard can still observe it, so the value can be destroyed and the
// memory handed back for reuse.
func (n *node[T]) reclaim() {
	if n.drop != nil {
		n.drop(&n.value)
	}
	if n.home != nil {
		n.home.recycle(n)
		return
	}
	// Drop whatever the value still points at rather than letting it
	// ride along until the node itself is collected.
	var zero T
	n.value = zero
}

func (n *node[T]) logRefs(event string, v int64) {
	if log.IsLogging(log.Debug) {
		traceLogger.Debugf("refslot: %s %p to %d", event, n, int32(v))
	}
}

func (n *node[T]) leakMessage() string {
	return fmt.Sprintf("%T %p: reference count of %d instead of 0", n, n, n.readRefs())
}

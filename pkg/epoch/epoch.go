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

// Package epoch defers reclamation work until every reader that might
// still observe the reclaimed memory has finished.
//
// A reader brackets each critical region with Pin and Guard.Unpin.
// While pinned it may dereference raw pointers loaded from shared
// slots without holding a reference of its own. Work handed to Retire
// is stamped with the epoch current at that moment and runs only once
// no pinned guard could have observed the retired memory. Collect
// advances the epoch and runs whatever has become safe; it is also
// invoked automatically every collectEvery retirements.
//
// All atomics in this package are sequentially consistent, and the
// safety rule below depends on that.
package epoch

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// idleEpoch marks a record whose owner is not inside a critical
// region. It is larger than every real epoch, so idle records never
// hold back reclamation.
const idleEpoch = ^uint64(0)

// collectEvery is the number of retirements between automatic
// collections.
const collectEvery = 64

// record is one reader slot. Records are allocated on demand, pushed
// onto an append-only list, and reused through the idle state; they
// are never removed, so the list length is the high-water mark of
// concurrent pins. Padding keeps pinning goroutines off each other's
// cache lines.
type record struct {
	_     cpu.CacheLinePad
	epoch atomic.Uint64
	next  *record
	_     cpu.CacheLinePad
}

// retired is one unit of deferred work.
type retired struct {
	fn    func()
	stamp uint64
	next  *retired
}

// domain groups an epoch counter with its reader records and retired
// work. The package-level functions all operate on one global domain.
type domain struct {
	epoch   atomic.Uint64
	records atomic.Pointer[record]
	retired atomic.Pointer[retired]

	// pending counts retirements since the last automatic collection.
	pending    atomic.Uint64
	collecting atomic.Bool

	retiredTotal   atomic.Uint64
	reclaimedTotal atomic.Uint64
}

func newDomain() *domain {
	d := &domain{}
	d.epoch.Store(1)
	return d
}

var global = newDomain()

// Guard is a pinned critical region. Raw pointers loaded from shared
// slots while the Guard is held stay valid until Unpin. Guards are
// cheap and may be nested, but each must be released exactly once and
// must not be copied: after Unpin the record may be claimed by
// another goroutine, and a stale copy would release that pin.
type Guard struct {
	rec *record
}

// Unpin leaves the critical region. Raw pointers obtained under the
// Guard must not be dereferenced after Unpin returns.
func (g *Guard) Unpin() {
	if g.rec == nil {
		panic("epoch: Unpin of an unpinned Guard")
	}
	g.rec.epoch.Store(idleEpoch)
	g.rec = nil
}

func (d *domain) pin() Guard {
	e := d.epoch.Load()

	// Claiming an idle record and publishing our epoch is a single
	// CAS, so a collector scan sees either the idle sentinel or the
	// claimed epoch, never a half-pinned record.
	for r := d.records.Load(); r != nil; r = r.next {
		if r.epoch.CompareAndSwap(idleEpoch, e) {
			return Guard{rec: r}
		}
	}

	// Every record is busy; grow the list. The push publishes the
	// record and its epoch together.
	r := &record{}
	r.epoch.Store(e)
	for {
		head := d.records.Load()
		r.next = head
		if d.records.CompareAndSwap(head, r) {
			return Guard{rec: r}
		}
	}
}

func (d *domain) retire(fn func()) {
	if fn == nil {
		panic("epoch: Retire with nil function")
	}
	item := &retired{fn: fn, stamp: d.epoch.Load()}
	for {
		head := d.retired.Load()
		item.next = head
		if d.retired.CompareAndSwap(head, item) {
			break
		}
	}
	d.retiredTotal.Add(1)
	if d.pending.Add(1)%collectEvery == 0 {
		d.collect()
	}
}

// collect advances the epoch, then runs every retirement stamped
// strictly below the lowest epoch held by a pinned guard. The batch is
// detached before the records are scanned: an item pushed after the
// scan could otherwise run while a guard pinned between the two steps
// still holds a raw pointer into it. Only one collection runs at a
// time; latecomers return immediately.
func (d *domain) collect() int {
	if !d.collecting.CompareAndSwap(false, true) {
		return 0
	}
	defer d.collecting.Store(false)

	// Advancing first guarantees progress: everything already queued
	// is stamped below the epoch any future pin will observe.
	d.epoch.Add(1)
	batch := d.retired.Swap(nil)
	low := d.minActive()

	var keep *retired
	ran := 0
	for item := batch; item != nil; {
		next := item.next
		if item.stamp < low {
			item.fn()
			ran++
		} else {
			item.next = keep
			keep = item
		}
		item = next
	}
	if keep != nil {
		d.requeue(keep)
	}
	d.reclaimedTotal.Add(uint64(ran))
	return ran
}

// minActive returns the lowest epoch currently held by a pinned
// record, or idleEpoch if nothing is pinned.
func (d *domain) minActive() uint64 {
	low := uint64(idleEpoch)
	for r := d.records.Load(); r != nil; r = r.next {
		if e := r.epoch.Load(); e < low {
			low = e
		}
	}
	return low
}

// requeue pushes a chain of still-unsafe items back for a later
// collection. Their original stamps are preserved.
func (d *domain) requeue(chain *retired) {
	tail := chain
	for tail.next != nil {
		tail = tail.next
	}
	for {
		head := d.retired.Load()
		tail.next = head
		if d.retired.CompareAndSwap(head, chain) {
			return
		}
	}
}

func (d *domain) pinnedAny() bool {
	for r := d.records.Load(); r != nil; r = r.next {
		if r.epoch.Load() != idleEpoch {
			return true
		}
	}
	return false
}

// Stats is a point-in-time snapshot of the reclamation domain.
type Stats struct {
	// Epoch is the current global epoch.
	Epoch uint64
	// Pins is the number of guards pinned at the time of the snapshot.
	Pins int
	// Records is the number of reader records ever allocated.
	Records int
	// Retired is the total number of retirements accepted.
	Retired uint64
	// Reclaimed is the total number of retirements run.
	Reclaimed uint64
}

func (d *domain) stats() Stats {
	s := Stats{
		Epoch:     d.epoch.Load(),
		Retired:   d.retiredTotal.Load(),
		Reclaimed: d.reclaimedTotal.Load(),
	}
	for r := d.records.Load(); r != nil; r = r.next {
		s.Records++
		if r.epoch.Load() != idleEpoch {
			s.Pins++
		}
	}
	return s
}

// Pin enters a critical region. The returned Guard must be released
// with Unpin exactly once.
func Pin() Guard {
	return global.pin()
}

// Retire schedules fn to run once every guard pinned at or before the
// current epoch has been released. fn may run on the goroutine of any
// later Retire or Collect caller.
func Retire(fn func()) {
	global.retire(fn)
}

// Collect advances the epoch and runs every retirement that is now
// safe, returning how many ran. It returns 0 without waiting if
// another collection is in flight.
func Collect() int {
	return global.collect()
}

// Pinned reports whether any goroutine currently holds a pinned
// Guard.
func Pinned() bool {
	return global.pinnedAny()
}

// ReadStats returns counters describing the global domain.
func ReadStats() Stats {
	return global.stats()
}

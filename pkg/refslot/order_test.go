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

import "testing"

func panics(fn func()) (panicked bool) {
	defer func() {
		panicked = recover() != nil
	}()
	fn()
	return false
}

func TestOrderShapeValidation(t *testing.T) {
	for _, test := range []struct {
		order  MemoryOrder
		load   bool
		update bool
	}{
		{Relaxed, true, true},
		{Acquire, true, true},
		{Release, false, true},
		{AcqRel, false, true},
		{SeqCst, true, true},
		{MemoryOrder(99), false, false},
	} {
		if got := !panics(func() { test.order.mustBeLoadOrder() }); got != test.load {
			t.Errorf("%v as load ordering: got allowed=%t, expected %t", test.order, got, test.load)
		}
		if got := !panics(func() { test.order.mustBeUpdateOrder() }); got != test.update {
			t.Errorf("%v as update ordering: got allowed=%t, expected %t", test.order, got, test.update)
		}
	}
}

func TestMemoryOrderString(t *testing.T) {
	for _, test := range []struct {
		order MemoryOrder
		want  string
	}{
		{Relaxed, "Relaxed"},
		{Acquire, "Acquire"},
		{Release, "Release"},
		{AcqRel, "AcqRel"},
		{SeqCst, "SeqCst"},
		{MemoryOrder(99), "MemoryOrder(99)"},
	} {
		if got := test.order.String(); got != test.want {
			t.Errorf("got %q, expected %q", got, test.want)
		}
	}
}

// TestStoreAcceptsUpdateOrderings pins down that Store, being an
// unconditional swap, takes every ordering a read-modify-write can.
func TestStoreAcceptsUpdateOrderings(t *testing.T) {
	var s AtomicSlot[int]
	for _, order := range []MemoryOrder{Relaxed, Acquire, Release, AcqRel, SeqCst} {
		h := New(1)
		old := s.Store(&h, order)
		old.Release()
	}
	drainSlot(&s)
}

func TestOperationsValidateOrdering(t *testing.T) {
	var s AtomicSlot[int]
	if !panics(func() { s.Load(Release) }) {
		t.Errorf("Load accepted a Release ordering")
	}
	if !panics(func() { s.TryLoad(AcqRel) }) {
		t.Errorf("TryLoad accepted an AcqRel ordering")
	}
	if !panics(func() {
		h := Null[int]()
		s.Store(&h, MemoryOrder(99))
	}) {
		t.Errorf("Store accepted an invalid ordering")
	}
	if !panics(func() {
		h := Null[int]()
		s.CompareExchange(Null[int](), &h, SeqCst, Release)
	}) {
		t.Errorf("CompareExchange accepted a Release failure ordering")
	}
}

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
	"testing"

	"refslot.dev/refslot/pkg/epoch"
)

func TestPoolResetRunsOnRecycle(t *testing.T) {
	resets := 0
	var lastSeen string
	pool := NewPool[string](func(v *string) {
		resets++
		lastSeen = *v
		*v = ""
	})
	h := pool.New("payload")
	h.Release()
	epoch.Collect()
	if resets != 1 {
		t.Fatalf("reset ran %d times, expected once", resets)
	}
	if lastSeen != "payload" {
		t.Errorf("reset saw %q, expected the released value", lastSeen)
	}
}

func TestPoolReuseAfterGrace(t *testing.T) {
	pool := NewPool[int](nil)
	h := pool.New(1)
	h.Release()
	epoch.Collect()
	// The pool may or may not hand the same node back; either way the
	// new handle must behave like a fresh allocation.
	h2 := pool.New(2)
	if got := *h2.Get(); got != 2 {
		t.Errorf("recycled handle reads %d, expected 2", got)
	}
	if refs := h2.n.readRefs(); refs != 1 {
		t.Errorf("recycled node count is %d, expected 1", refs)
	}
	h2.Release()
	epoch.Collect()
}

func TestPooledNodeWaitsForGuards(t *testing.T) {
	resets := 0
	pool := NewPool[int](func(*int) { resets++ })
	h := pool.New(1)
	g := epoch.Pin()
	h.Release()
	epoch.Collect()
	if resets != 0 {
		t.Fatalf("node recycled while a guard was still pinned")
	}
	g.Unpin()
	epoch.Collect()
	if resets != 1 {
		t.Fatalf("reset ran %d times after the guard unpinned, expected once", resets)
	}
}

func TestPoolConservation(t *testing.T) {
	pool := NewPool[int](nil)
	for i := 0; i < 100; i++ {
		h := pool.New(i)
		c := h.Clone()
		h.Release()
		if got := *c.Get(); got != i {
			t.Fatalf("iteration %d read %d", i, got)
		}
		c.Release()
	}
	epoch.Collect()
	if n := liveNodeCount(); n != 0 {
		t.Errorf("%d nodes still registered after the pool churn", n)
	}
}

func BenchmarkPooledChurn(b *testing.B) {
	pool := NewPool[int](nil)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			h := pool.New(1)
			h.Release()
		}
	})
	epoch.Collect()
}

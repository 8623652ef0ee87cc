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

import "fmt"

// MemoryOrder names the ordering constraint a slot operation requests,
// in the usual atomics vocabulary.
//
// Go's atomic operations are sequentially consistent, which satisfies
// every constraint below, so the choice does not change the
// synchronization emitted today. Each operation still validates its
// ordering the way hardware-level atomics would: a pure load cannot
// release, while Store and CompareExchange exchange the previous
// contents and so accept any ordering, like any read-modify-write.
// Passing an ordering an operation cannot honor is a contract
// violation and panics.
type MemoryOrder uint8

const (
	// Relaxed imposes no ordering beyond atomicity.
	Relaxed MemoryOrder = iota
	// Acquire makes a load observe all writes ordered before the
	// matching release.
	Acquire
	// Release orders earlier writes before a store.
	Release
	// AcqRel combines Acquire and Release for read-modify-write
	// operations.
	AcqRel
	// SeqCst additionally joins the single total order over all
	// sequentially consistent operations.
	SeqCst
)

// String returns the ordering's name.
func (o MemoryOrder) String() string {
	switch o {
	case Relaxed:
		return "Relaxed"
	case Acquire:
		return "Acquire"
	case Release:
		return "Release"
	case AcqRel:
		return "AcqRel"
	case SeqCst:
		return "SeqCst"
	default:
		return fmt.Sprintf("MemoryOrder(%d)", uint8(o))
	}
}

func (o MemoryOrder) mustBeLoadOrder() {
	switch o {
	case Relaxed, Acquire, SeqCst:
	default:
		panic(fmt.Sprintf("refslot: %v is not a valid load ordering", o))
	}
}

func (o MemoryOrder) mustBeUpdateOrder() {
	switch o {
	case Relaxed, Acquire, Release, AcqRel, SeqCst:
	default:
		panic(fmt.Sprintf("refslot: %v is not a valid read-modify-write ordering", o))
	}
}

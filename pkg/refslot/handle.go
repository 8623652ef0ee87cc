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

// Package refslot provides atomically reference-counted handles and
// lock-free atomic slots holding them, for building concurrent data
// structures that never expose a freed or recycled allocation to
// their readers.
//
// A Handle is a counted reference to a value. Clone takes another
// reference, Release drops one. An AtomicSlot holds one reference of
// its own and supports Load, Store and CompareExchange with the usual
// atomics vocabulary of memory orderings.
//
// References move instead of being recounted. An operation that takes
// a *Handle consumes it: the slot assumes the handle's reference and
// the caller's variable becomes null. An operation that returns a
// Handle transfers ownership out, and the caller must eventually
// Release it. Store and a successful CompareExchange therefore touch
// no count at all, and Load takes its reference under an epoch guard
// so that a concurrent release cannot recycle the node out from under
// it.
package refslot

// Handle is a counted reference to a T. The zero value is the null
// handle. Assigning a Handle copies the reference without counting
// it; the copies share one reference, and exactly one of them may be
// Released. Clone is how a second reference is taken.
type Handle[T any] struct {
	n *node[T]
}

// Null returns the null handle.
func Null[T any]() Handle[T] {
	return Handle[T]{}
}

// New allocates a node for value and returns its first handle.
func New[T any](value T) Handle[T] {
	return Handle[T]{n: newNode[T](value, nil, nil)}
}

// NewWithDestroy is New with a destructor. destroy runs exactly once,
// after the last reference is dropped and after every epoch guard
// that could still observe the node has unpinned, on the goroutine of
// whatever Retire or Collect call reclaims it.
func NewWithDestroy[T any](value T, destroy func(*T)) Handle[T] {
	if destroy == nil {
		panic("refslot: NewWithDestroy with a nil destructor")
	}
	return Handle[T]{n: newNode[T](value, destroy, nil)}
}

// IsNull reports whether h refers to nothing.
func (h Handle[T]) IsNull() bool {
	return h.n == nil
}

// Get returns the referenced value, or nil for the null handle. The
// pointer stays valid while any handle or slot keeps the node alive.
func (h Handle[T]) Get() *T {
	if h.n == nil {
		return nil
	}
	return &h.n.value
}

// Clone takes an additional reference and returns a handle owning it.
// Cloning the null handle returns the null handle.
func (h Handle[T]) Clone() Handle[T] {
	if h.n == nil {
		return Handle[T]{}
	}
	h.n.incRef()
	return Handle[T]{n: h.n}
}

// Equal reports whether two handles refer to the same node. Null
// handles compare equal to each other.
func (h Handle[T]) Equal(other Handle[T]) bool {
	return h.n == other.n
}

// Release drops h's reference and makes h null. Releasing the null
// handle is a no-op, so releasing the same variable twice is safe;
// releasing two uncounted copies of one handle drops two references
// and panics once the count underflows.
func (h *Handle[T]) Release() {
	n := h.n
	if n == nil {
		return
	}
	h.n = nil
	n.decRef()
}

// take consumes the handle, returning its node.
func (h *Handle[T]) take() *node[T] {
	n := h.n
	h.n = nil
	return n
}

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
	"sync"
	"sync/atomic"
	"time"

	"refslot.dev/refslot/pkg/log"
)

// LeakMode selects how reference leaks are reported.
type LeakMode uint32

const (
	// NoLeakChecking indicates that no registration or checking
	// should happen. The default.
	NoLeakChecking LeakMode = iota

	// LeaksLogWarning indicates that a warning should be logged for
	// each leaked node.
	LeaksLogWarning

	// LeaksPanic indicates that DoLeakCheck should panic with a list
	// of the leaked nodes.
	LeaksPanic
)

var leakMode atomic.Uint32

// SetLeakMode selects the leak-checking mode. Set it before creating
// handles: nodes created while checking is off never register and
// stay invisible to later checks.
func SetLeakMode(m LeakMode) {
	leakMode.Store(uint32(m))
}

// GetLeakMode returns the current leak-checking mode.
func GetLeakMode() LeakMode {
	return LeakMode(leakMode.Load())
}

func leakCheckEnabled() bool {
	return GetLeakMode() != NoLeakChecking
}

// checkedNode lets one registry hold nodes of every value type.
type checkedNode interface {
	leakMessage() string
}

var (
	liveNodesMu sync.Mutex
	liveNodes   = map[checkedNode]struct{}{}
)

// traceLogger throttles per-event reference tracing, which would
// otherwise overwhelm any sink on hot paths. Raising the log level to
// Debug turns the tracing on.
var traceLogger = log.RateLimited(time.Second)

func (n *node[T]) register() {
	if !leakCheckEnabled() {
		return
	}
	liveNodesMu.Lock()
	defer liveNodesMu.Unlock()
	if _, ok := liveNodes[n]; ok {
		panic(fmt.Sprintf("refslot: registering already-registered node %p", n))
	}
	liveNodes[n] = struct{}{}
	n.registered = true
}

// unregister runs at the final decRef; registered distinguishes nodes
// created before checking was enabled from genuine registry bugs.
func (n *node[T]) unregister() {
	if !n.registered {
		return
	}
	n.registered = false
	liveNodesMu.Lock()
	defer liveNodesMu.Unlock()
	if _, ok := liveNodes[n]; !ok {
		panic(fmt.Sprintf("refslot: unregistering unknown node %p", n))
	}
	delete(liveNodes, n)
}

// DoLeakCheck reports every registered node whose count has not
// reached zero, honoring the leak mode. Nodes unregister at their
// final release, before their deferred reclamation, so the check
// needs no epoch collection first.
func DoLeakCheck() {
	if !leakCheckEnabled() {
		return
	}
	liveNodesMu.Lock()
	defer liveNodesMu.Unlock()
	if len(liveNodes) == 0 {
		return
	}
	msg := fmt.Sprintf("refslot: %d leaked nodes:", len(liveNodes))
	for n := range liveNodes {
		msg += "\n\t" + n.leakMessage()
	}
	if GetLeakMode() == LeaksPanic {
		panic(msg)
	}
	log.Warningf("%s", msg)
}

func liveNodeCount() int {
	liveNodesMu.Lock()
	defer liveNodesMu.Unlock()
	return len(liveNodes)
}

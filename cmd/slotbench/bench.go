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

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"refslot.dev/refslot/pkg/epoch"
	"refslot.dev/refslot/pkg/log"
	"refslot.dev/refslot/pkg/queue"
	"refslot.dev/refslot/pkg/refslot"
	"refslot.dev/refslot/pkg/stack"
)

// Bench implements subcommands.Command for the "bench" command.
type Bench struct {
	phase string
}

// Name implements subcommands.Command.Name.
func (*Bench) Name() string {
	return "bench"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Bench) Synopsis() string {
	return "run the allocation, swap, stack and queue benchmarks"
}

// Usage implements subcommands.Command.Usage.
func (*Bench) Usage() string {
	return `bench [-phase <alloc|swap|stack|queue|all>] - run benchmarks.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Bench) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.phase, "phase", "all", "phase to run: alloc, swap, stack, queue or all.")
}

// Execute implements subcommands.Command.Execute.
func (b *Bench) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	conf := args[0].(*config)

	phases := map[string]func(*config) error{
		"alloc": benchAlloc,
		"swap":  benchSwap,
		"stack": benchStack,
		"queue": benchQueue,
	}
	order := []string{"alloc", "swap", "stack", "queue"}

	if b.phase != "all" {
		if _, ok := phases[b.phase]; !ok {
			f.Usage()
			return subcommands.ExitUsageError
		}
		order = []string{b.phase}
	}

	for _, name := range order {
		if err := phases[name](conf); err != nil {
			log.Warningf("bench %s: %v", name, err)
			return subcommands.ExitFailure
		}
		if err := drainRetired(); err != nil {
			log.Warningf("bench %s: %v", name, err)
			return subcommands.ExitFailure
		}
	}

	stats := epoch.ReadStats()
	log.Infof("bench done: epoch %d, %d retired, %d reclaimed", stats.Epoch, stats.Retired, stats.Reclaimed)
	return subcommands.ExitSuccess
}

// allocSink keeps the baseline allocations from being optimized away.
var allocSink *int

// benchAlloc times plain heap allocation against handle allocation,
// with and without a recycling pool.
func benchAlloc(conf *config) error {
	start := time.Now()
	for i := 0; i < conf.Values; i++ {
		v := new(int)
		*v = 42
		allocSink = v
	}
	reportPhase("alloc/heap", conf.Values, time.Since(start))

	start = time.Now()
	for i := 0; i < conf.Values; i++ {
		h := refslot.New(42)
		h.Release()
	}
	reportPhase("alloc/handle", conf.Values, time.Since(start))

	pool := refslot.NewPool[int](nil)
	start = time.Now()
	for i := 0; i < conf.Values; i++ {
		h := pool.New(42)
		h.Release()
	}
	reportPhase("alloc/pooled", conf.Values, time.Since(start))
	return nil
}

// swapInto publishes value into s, retrying until the exchange wins.
func swapInto(s *refslot.AtomicSlot[int], value int) {
	current := s.Load(refslot.Acquire)
	n := refslot.New(value)
	for {
		prev, swapped := s.CompareExchange(current, &n, refslot.AcqRel, refslot.Acquire)
		if swapped {
			prev.Release()
			current.Release()
			return
		}
		current.Release()
		current = prev
	}
}

// benchSwap storms a single shared slot with compare-exchange swaps,
// first from one goroutine and then from all workers at once.
func benchSwap(conf *config) error {
	initial := refslot.New(42)
	shared := refslot.NewAtomicSlot(&initial)

	start := time.Now()
	for i := 0; i < conf.Values; i++ {
		swapInto(shared, i)
	}
	reportPhase("swap/sequential", conf.Values, time.Since(start))

	per := conf.Values / conf.Workers
	var g errgroup.Group
	start = time.Now()
	for w := 0; w < conf.Workers; w++ {
		g.Go(func() error {
			for i := 0; i < per; i++ {
				swapInto(shared, i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	reportPhase("swap/parallel", per*conf.Workers, time.Since(start))

	null := refslot.Null[int]()
	last := shared.Store(&null, refslot.SeqCst)
	last.Release()
	return nil
}

// benchStack pushes and then pops blocks of values through a shared
// stack, with at most conf.Workers tasks in flight.
func benchStack(conf *config) error {
	var s stack.Stack[int]

	var push errgroup.Group
	push.SetLimit(conf.Workers)
	start := time.Now()
	for blk := 0; blk < conf.Blocks; blk++ {
		blk := blk
		push.Go(func() error {
			for i := blk * conf.BlockSize; i < (blk+1)*conf.BlockSize; i++ {
				s.Push(i)
			}
			return nil
		})
	}
	if err := push.Wait(); err != nil {
		return err
	}
	reportPhase("stack/push", conf.Blocks*conf.BlockSize, time.Since(start))

	var pop errgroup.Group
	pop.SetLimit(conf.Workers)
	start = time.Now()
	for blk := 0; blk < conf.Blocks; blk++ {
		pop.Go(func() error {
			for i := 0; i < conf.BlockSize; i++ {
				if _, ok := s.TryPop(); !ok {
					return fmt.Errorf("stack empty with values outstanding")
				}
			}
			return nil
		})
	}
	if err := pop.Wait(); err != nil {
		return err
	}
	reportPhase("stack/pop", conf.Blocks*conf.BlockSize, time.Since(start))

	if !s.Empty() {
		return fmt.Errorf("stack not empty after popping every block")
	}
	return nil
}

// benchQueue pushes and then pops blocks of values through a shared
// queue. Pop retries transient emptiness, so every pushed value is
// recovered.
func benchQueue(conf *config) error {
	q := queue.New[int]()

	var push errgroup.Group
	push.SetLimit(conf.Workers)
	start := time.Now()
	for blk := 0; blk < conf.Blocks; blk++ {
		blk := blk
		push.Go(func() error {
			for i := blk * conf.BlockSize; i < (blk+1)*conf.BlockSize; i++ {
				q.Push(i)
			}
			return nil
		})
	}
	if err := push.Wait(); err != nil {
		return err
	}
	reportPhase("queue/push", conf.Blocks*conf.BlockSize, time.Since(start))

	var pop errgroup.Group
	pop.SetLimit(conf.Workers)
	start = time.Now()
	for blk := 0; blk < conf.Blocks; blk++ {
		pop.Go(func() error {
			for i := 0; i < conf.BlockSize; {
				if _, ok := q.TryPop(); ok {
					i++
				}
			}
			return nil
		})
	}
	if err := pop.Wait(); err != nil {
		return err
	}
	reportPhase("queue/pop", conf.Blocks*conf.BlockSize, time.Since(start))

	if !q.Empty() {
		return fmt.Errorf("queue not empty after popping every block")
	}
	q.Close()
	return nil
}

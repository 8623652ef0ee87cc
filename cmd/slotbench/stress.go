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
	"errors"
	"flag"
	"sync/atomic"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"refslot.dev/refslot/pkg/epoch"
	"refslot.dev/refslot/pkg/log"
	"refslot.dev/refslot/pkg/refslot"
)

// errCorrupt reports a payload whose checksum does not match its
// sequence number, which would mean a load observed a reclaimed node.
var errCorrupt = errors.New("corrupt payload observed")

// checkSalt folds the sequence number into the payload so that a stale
// or torn value fails validation.
const checkSalt = 0x9e3779b97f4a7c15

type payload struct {
	seq   uint64
	check uint64
}

func makePayload(seq uint64) payload {
	return payload{seq: seq, check: seq ^ checkSalt}
}

func (p payload) valid() bool {
	return p.check == p.seq^checkSalt
}

// Stress implements subcommands.Command for the "stress" command.
type Stress struct{}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "churn a bank of slots with stores, exchanges and validated loads"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress - churn slots for the configured duration and verify payloads.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Stress) SetFlags(f *flag.FlagSet) {
}

// Execute implements subcommands.Command.Execute.
func (*Stress) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	conf := args[0].(*config)

	slots := make([]refslot.AtomicSlot[payload], conf.Slots)
	var stores, exchanges, loads atomic.Uint64
	progress := rate.NewLimiter(rate.Every(time.Second), 1)

	storers := conf.Workers / 3
	if storers == 0 {
		storers = 1
	}
	exchangers := conf.Workers / 3
	if exchangers == 0 {
		exchangers = 1
	}
	readers := conf.Workers - storers - exchangers
	if readers <= 0 {
		readers = 1
	}
	log.Infof("stress: %d storers, %d exchangers, %d readers over %d slots for %v",
		storers, exchangers, readers, conf.Slots, conf.Duration.Duration)

	ctx, cancel := context.WithTimeout(context.Background(), conf.Duration.Duration)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	start := time.Now()
	for w := 0; w < storers; w++ {
		w := w
		g.Go(func() error {
			seq := uint64(w) << 32
			for ctx.Err() == nil {
				seq++
				h := refslot.New(makePayload(seq))
				prev := slots[seq%uint64(len(slots))].Store(&h, refslot.Release)
				prev.Release()
				stores.Add(1)
			}
			return nil
		})
	}
	for w := 0; w < exchangers; w++ {
		w := w
		g.Go(func() error {
			seq := uint64(w+64) << 32
			for ctx.Err() == nil {
				seq++
				s := &slots[seq%uint64(len(slots))]
				current := s.Load(refslot.Relaxed)
				next := refslot.New(makePayload(seq))
				prev, swapped := s.CompareExchange(current, &next, refslot.AcqRel, refslot.Acquire)
				if !swapped {
					next.Release()
				} else {
					exchanges.Add(1)
				}
				prev.Release()
				current.Release()
			}
			return nil
		})
	}
	for w := 0; w < readers; w++ {
		g.Go(func() error {
			var i uint64
			for ctx.Err() == nil {
				i++
				h := slots[i%uint64(len(slots))].Load(refslot.Acquire)
				if !h.IsNull() {
					if !h.Get().valid() {
						h.Release()
						return errCorrupt
					}
					c := h.Clone()
					c.Release()
					loads.Add(1)
				}
				h.Release()
				if progress.Allow() {
					log.Infof("stress: %d stores, %d exchanges, %d loads",
						stores.Load(), exchanges.Load(), loads.Load())
				}
			}
			return nil
		})
	}
	err := g.Wait()
	elapsed := time.Since(start)
	if err != nil {
		log.Warningf("stress: %v", err)
		return subcommands.ExitFailure
	}

	for i := range slots {
		null := refslot.Null[payload]()
		h := slots[i].Store(&null, refslot.SeqCst)
		h.Release()
	}
	if err := drainRetired(); err != nil {
		log.Warningf("stress: %v", err)
		return subcommands.ExitFailure
	}
	if epoch.Pinned() {
		log.Warningf("stress: a guard is still pinned after the run")
	}

	reportPhase("stress/stores", int(stores.Load()), elapsed)
	reportPhase("stress/exchanges", int(exchanges.Load()), elapsed)
	reportPhase("stress/loads", int(loads.Load()), elapsed)
	stats := epoch.ReadStats()
	log.Infof("stress done: epoch %d, %d retired, %d reclaimed", stats.Epoch, stats.Retired, stats.Reclaimed)
	return subcommands.ExitSuccess
}

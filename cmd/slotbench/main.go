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

// Binary slotbench exercises the refslot machinery: allocation and
// swap benchmarks modeled on the classic single slot storm, stack and
// queue block workloads, and a validating stress run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"refslot.dev/refslot/pkg/epoch"
	"refslot.dev/refslot/pkg/refslot"
)

var (
	configPath   = flag.String("config", "", "path to a TOML profile; flags override its values.")
	workers      = flag.Int("workers", 0, "number of concurrent workers.")
	runDuration  = flag.Duration("duration", 0, "how long the stress command runs.")
	values       = flag.Int("values", 0, "values pushed through the allocation and swap phases.")
	blocks       = flag.Int("blocks", 0, "blocks in the stack and queue phases.")
	blockSize    = flag.Int("block-size", 0, "values per block in the stack and queue phases.")
	slots        = flag.Int("slots", 0, "independent slots churned by the stress command.")
	leakCheck    = flag.String("leak-check", "", "leak check mode: none, warning or panic.")
	debugLogging = flag.Bool("debug", false, "enable debug logging.")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(Bench), "")
	subcommands.Register(new(Stress), "")

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	conf, err := newConfig()
	if err != nil {
		Fatalf("%v", err)
	}

	if conf.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	mode, _ := conf.leakMode()
	refslot.SetLeakMode(mode)

	code := subcommands.Execute(context.Background(), conf)
	// Check for leaks before os.Exit.
	refslot.DoLeakCheck()
	os.Exit(int(code))
}

// Fatalf writes a fatal message to stderr and exits.
func Fatalf(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, "slotbench: "+format+"\n", v...)
	os.Exit(1)
}

// newConfig builds the run configuration from the optional profile
// file and the command line.
func newConfig() (*config, error) {
	conf := defaultConfig()
	if *configPath != "" {
		var err error
		if conf, err = loadConfig(*configPath); err != nil {
			return nil, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			conf.Workers = *workers
		case "duration":
			conf.Duration = duration{*runDuration}
		case "values":
			conf.Values = *values
		case "blocks":
			conf.Blocks = *blocks
		case "block-size":
			conf.BlockSize = *blockSize
		case "slots":
			conf.Slots = *slots
		case "leak-check":
			conf.LeakCheck = *leakCheck
		case "debug":
			conf.Debug = *debugLogging
		}
	})
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// drainRetired forces collection until every retired node has been
// reclaimed. Node destructors retire further work, so one round is
// rarely enough.
func drainRetired() error {
	op := func() error {
		for epoch.Collect() > 0 {
		}
		if s := epoch.ReadStats(); s.Retired != s.Reclaimed {
			return fmt.Errorf("%d nodes still awaiting reclamation", s.Retired-s.Reclaimed)
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 20))
}

// reportPhase prints a phase timing in the benchmark output format.
func reportPhase(name string, n int, elapsed time.Duration) {
	if n == 0 {
		fmt.Printf("%-24s %10d ops in %12v\n", name+":", n, elapsed.Round(time.Microsecond))
		return
	}
	perOp := elapsed / time.Duration(n)
	fmt.Printf("%-24s %10d ops in %12v (%v/op)\n", name+":", n, elapsed.Round(time.Microsecond), perOp)
}

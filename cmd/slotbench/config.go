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
	"fmt"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"refslot.dev/refslot/pkg/refslot"
)

// duration wraps time.Duration so profiles can spell durations the
// usual way ("2s", "500ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// config is the benchmark profile. Values may come from a TOML file;
// command line flags override whatever the file sets.
type config struct {
	// Workers is the number of concurrent workers in the parallel
	// phases.
	Workers int `toml:"workers"`
	// Duration bounds the stress run.
	Duration duration `toml:"duration"`
	// Values is the number of values pushed through the allocation and
	// swap phases.
	Values int `toml:"values"`
	// Blocks and BlockSize shape the stack and queue phases: Blocks
	// tasks each push and pop BlockSize values.
	Blocks    int `toml:"blocks"`
	BlockSize int `toml:"block_size"`
	// Slots is the number of independent slots the stress command
	// churns.
	Slots int `toml:"slots"`
	// LeakCheck selects the node leak check mode: "none", "warning" or
	// "panic".
	LeakCheck string `toml:"leak_check"`
	// Debug enables debug logging.
	Debug bool `toml:"debug"`
}

func defaultConfig() *config {
	return &config{
		Workers:   runtime.GOMAXPROCS(0),
		Duration:  duration{2 * time.Second},
		Values:    500000,
		Blocks:    512,
		BlockSize: 512,
		Slots:     8,
		LeakCheck: "warning",
	}
}

// loadConfig reads a TOML profile over the defaults.
func loadConfig(path string) (*config, error) {
	c := defaultConfig()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	return c, nil
}

func (c *config) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Values <= 0 {
		return fmt.Errorf("values must be positive, got %d", c.Values)
	}
	if c.Blocks <= 0 || c.BlockSize <= 0 {
		return fmt.Errorf("blocks and block_size must be positive, got %d and %d", c.Blocks, c.BlockSize)
	}
	if c.Slots <= 0 {
		return fmt.Errorf("slots must be positive, got %d", c.Slots)
	}
	if c.Duration.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", c.Duration.Duration)
	}
	if _, err := c.leakMode(); err != nil {
		return err
	}
	return nil
}

func (c *config) leakMode() (refslot.LeakMode, error) {
	switch c.LeakCheck {
	case "none":
		return refslot.NoLeakChecking, nil
	case "warning":
		return refslot.LeaksLogWarning, nil
	case "panic":
		return refslot.LeaksPanic, nil
	default:
		return 0, fmt.Errorf("invalid leak_check mode %q", c.LeakCheck)
	}
}

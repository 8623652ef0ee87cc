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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"refslot.dev/refslot/pkg/refslot"
)

func writeProfile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeProfile(t, `
workers = 4
duration = "750ms"
values = 1000
blocks = 8
block_size = 16
slots = 2
leak_check = "panic"
debug = true
`)
	got, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	want := &config{
		Workers:   4,
		Duration:  duration{750 * time.Millisecond},
		Values:    1000,
		Blocks:    8,
		BlockSize: 16,
		Slots:     2,
		LeakCheck: "panic",
		Debug:     true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if err := got.validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := writeProfile(t, `
workers = 2
leak_check = "none"
`)
	got, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	want := defaultConfig()
	want.Workers = 2
	want.LeakCheck = "none"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigUnknownKey(t *testing.T) {
	path := writeProfile(t, `wokers = 4`)
	if _, err := loadConfig(path); err == nil {
		t.Error("loadConfig accepted an unknown key")
	}
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := writeProfile(t, `duration = "soon"`)
	if _, err := loadConfig(path); err == nil {
		t.Error("loadConfig accepted an unparseable duration")
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*config)
		wantOK bool
	}{
		{"defaults", func(*config) {}, true},
		{"zero workers", func(c *config) { c.Workers = 0 }, false},
		{"negative values", func(c *config) { c.Values = -1 }, false},
		{"zero blocks", func(c *config) { c.Blocks = 0 }, false},
		{"zero block size", func(c *config) { c.BlockSize = 0 }, false},
		{"zero slots", func(c *config) { c.Slots = 0 }, false},
		{"zero duration", func(c *config) { c.Duration = duration{} }, false},
		{"bad leak mode", func(c *config) { c.LeakCheck = "maybe" }, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := defaultConfig()
			tc.mutate(c)
			err := c.validate()
			if tc.wantOK && err != nil {
				t.Errorf("validate: %v", err)
			}
			if !tc.wantOK && err == nil {
				t.Error("validate accepted an invalid config")
			}
		})
	}
}

func TestLeakMode(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want refslot.LeakMode
	}{
		{"none", refslot.NoLeakChecking},
		{"warning", refslot.LeaksLogWarning},
		{"panic", refslot.LeaksPanic},
	} {
		c := defaultConfig()
		c.LeakCheck = tc.in
		got, err := c.leakMode()
		if err != nil {
			t.Errorf("leakMode(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("leakMode(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

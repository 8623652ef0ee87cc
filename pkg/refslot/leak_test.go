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
	"strings"
	"testing"

	"refslot.dev/refslot/pkg/log"
)

// captureLogger records warnings for inspection.
type captureLogger struct {
	warnings []string
}

func (l *captureLogger) Debugf(format string, v ...any)   {}
func (l *captureLogger) Infof(format string, v ...any)    {}
func (l *captureLogger) IsLogging(level log.Level) bool   { return false }
func (l *captureLogger) Warningf(format string, v ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, v...))
}

func TestLeakCheckCleanAfterRelease(t *testing.T) {
	h := New(1)
	h.Release()
	DoLeakCheck() // LeaksPanic mode: a stale registration would panic
}

func TestLeakCheckReportsLiveNodes(t *testing.T) {
	prevMode := GetLeakMode()
	defer SetLeakMode(prevMode)
	SetLeakMode(LeaksLogWarning)
	prevLogger := log.Log()
	defer log.SetLogger(prevLogger)
	capture := &captureLogger{}
	log.SetLogger(capture)

	h := New(7)
	DoLeakCheck()
	if len(capture.warnings) != 1 {
		t.Fatalf("got %d warnings, expected 1", len(capture.warnings))
	}
	if !strings.Contains(capture.warnings[0], "1 leaked nodes") {
		t.Errorf("warning %q does not name the leaked node", capture.warnings[0])
	}

	h.Release()
	capture.warnings = nil
	DoLeakCheck()
	if len(capture.warnings) != 0 {
		t.Errorf("leak reported after the node was released: %v", capture.warnings)
	}
}

func TestLeakCheckPanicMode(t *testing.T) {
	h := New(7)
	if !panics(DoLeakCheck) {
		t.Errorf("DoLeakCheck did not panic over a live node")
	}
	h.Release()
	DoLeakCheck()
}

func TestNodesCreatedUncheckedStayInvisible(t *testing.T) {
	prevMode := GetLeakMode()
	SetLeakMode(NoLeakChecking)
	h := New(1)
	SetLeakMode(prevMode)
	// The node predates checking: no registration to find, and its
	// release must not touch the registry.
	DoLeakCheck()
	h.Release()
	DoLeakCheck()
}

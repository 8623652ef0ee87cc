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

// Package log provides the logging interface used throughout the module.
//
// The interface is deliberately small: leveled printf-style methods plus a
// level check so callers can skip expensive argument construction. The
// default implementation emits through logrus; packages that embed this
// module can install their own Logger with SetLogger.
package log

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Level is the log level.
type Level uint32

const (
	// Warning indicates that output should always be emitted.
	Warning Level = iota

	// Info indicates that output should normally be emitted.
	Info

	// Debug indicates that output should not normally be emitted.
	Debug
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "Warning"
	case Info:
		return "Info"
	case Debug:
		return "Debug"
	default:
		return "Invalid"
	}
}

// Logger is a high-level logging interface implemented by every sink this
// package hands out.
type Logger interface {
	// Debugf logs a debug statement.
	Debugf(format string, v ...any)

	// Infof logs at an info level.
	Infof(format string, v ...any)

	// Warningf logs at a warning level.
	Warningf(format string, v ...any)

	// IsLogging returns true iff this level is being logged. This may be
	// used to short-circuit expensive operations for debugging calls.
	IsLogging(level Level) bool
}

// logrusLogger emits through a logrus.Logger.
type logrusLogger struct {
	entry *logrus.Entry
}

// Debugf implements Logger.Debugf.
func (l *logrusLogger) Debugf(format string, v ...any) {
	l.entry.Debugf(format, v...)
}

// Infof implements Logger.Infof.
func (l *logrusLogger) Infof(format string, v ...any) {
	l.entry.Infof(format, v...)
}

// Warningf implements Logger.Warningf.
func (l *logrusLogger) Warningf(format string, v ...any) {
	l.entry.Warningf(format, v...)
}

// IsLogging implements Logger.IsLogging.
func (l *logrusLogger) IsLogging(level Level) bool {
	return l.entry.Logger.IsLevelEnabled(logrusLevel(level))
}

func logrusLevel(level Level) logrus.Level {
	switch level {
	case Warning:
		return logrus.WarnLevel
	case Info:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// FieldLogger returns a Logger that attaches the given component field to
// every entry, using the standard logrus logger as the sink.
func FieldLogger(component string) Logger {
	return &logrusLogger{entry: logrus.WithField("component", component)}
}

// log is the default logger, swapped atomically so logging call sites never
// take a lock.
var log atomic.Pointer[Logger]

func init() {
	l := Logger(&logrusLogger{entry: logrus.NewEntry(logrus.StandardLogger())})
	log.Store(&l)
}

// Log retrieves the global logger.
func Log() Logger {
	return *log.Load()
}

// SetLogger sets the global logger.
func SetLogger(l Logger) {
	log.Store(&l)
}

// Debugf logs to the global logger.
func Debugf(format string, v ...any) {
	Log().Debugf(format, v...)
}

// Infof logs to the global logger.
func Infof(format string, v ...any) {
	Log().Infof(format, v...)
}

// Warningf logs to the global logger.
func Warningf(format string, v ...any) {
	Log().Warningf(format, v...)
}

// IsLogging returns whether the global logger emits the given level.
func IsLogging(level Level) bool {
	return Log().IsLogging(level)
}

// rateLimited drops messages beyond one per interval. It forwards to
// whatever logger is installed at call time, so a sink swapped in
// with SetLogger receives the surviving messages.
type rateLimited struct {
	limit *rate.Limiter
}

func (rl *rateLimited) Debugf(format string, v ...any) {
	if rl.limit.Allow() {
		Debugf(format, v...)
	}
}

func (rl *rateLimited) Infof(format string, v ...any) {
	if rl.limit.Allow() {
		Infof(format, v...)
	}
}

func (rl *rateLimited) Warningf(format string, v ...any) {
	if rl.limit.Allow() {
		Warningf(format, v...)
	}
}

func (rl *rateLimited) IsLogging(level Level) bool {
	return IsLogging(level)
}

// RateLimited returns a Logger that emits through the global logger
// at most once per every. Per-event tracing on hot paths logs through
// one of these.
func RateLimited(every time.Duration) Logger {
	return &rateLimited{limit: rate.NewLimiter(rate.Every(every), 1)}
}

// Copyright 2018 Irfan Sharif.
// Copyright 2018 The Kura Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and

package log

import (
	"sync"
	"sync/atomic"
)

// Global filtering state. Logging statements read it on every call, so each
// map is copy-on-write behind an atomic.Value and writers serialize on mu.
var gstate struct {
	mode atomic.Value // Mode

	mu          sync.Mutex
	tracePoints atomic.Value // map[string]struct{}, keyed by fname.go:line
	fileModes   atomic.Value // map[string]Mode, keyed by fname.go
}

func init() {
	gstate.mode.Store(Mode(DefaultMode))
	gstate.tracePoints.Store(map[string]struct{}{})
	gstate.fileModes.Store(map[string]Mode{})
}

func updateTracePoints(f func(map[string]struct{})) {
	gstate.mu.Lock()
	defer gstate.mu.Unlock()
	old := gstate.tracePoints.Load().(map[string]struct{})
	m := make(map[string]struct{}, len(old)+1)
	for k, v := range old {
		m[k] = v
	}
	f(m)
	gstate.tracePoints.Store(m)
}

func updateFileModes(f func(map[string]Mode)) {
	gstate.mu.Lock()
	defer gstate.mu.Unlock()
	old := gstate.fileModes.Load().(map[string]Mode)
	m := make(map[string]Mode, len(old)+1)
	for k, v := range old {
		m[k] = v
	}
	f(m)
	gstate.fileModes.Store(m)
}

// SetGlobalLogMode sets the mode for files without a file log mode.
func SetGlobalLogMode(m Mode) {
	gstate.mode.Store(m)
}

// GetGlobalLogMode gets the currently set global log mode.
func GetGlobalLogMode() Mode {
	return gstate.mode.Load().(Mode)
}

// SetTracePoint enables the tracepoint tp, of the form fname.go:line. A
// logging statement at an enabled tracepoint writes a backtrace of its
// goroutine before the message, whatever its mode.
func SetTracePoint(tp string) {
	updateTracePoints(func(m map[string]struct{}) { m[tp] = struct{}{} })
}

// ResetTracePoint disables the tracepoint tp.
func ResetTracePoint(tp string) {
	updateTracePoints(func(m map[string]struct{}) { delete(m, tp) })
}

// GetTracePoint reports whether the tracepoint tp is enabled.
func GetTracePoint(tp string) bool {
	_, ok := gstate.tracePoints.Load().(map[string]struct{})[tp]
	return ok
}

// SetFileLogMode overrides the global mode for statements in the file
// fname (a base name such as session.go).
func SetFileLogMode(fname string, m Mode) {
	updateFileModes(func(fm map[string]Mode) { fm[fname] = m })
}

// GetFileLogMode gets the log mode for the specified file.
func GetFileLogMode(fname string) (m Mode, ok bool) {
	m, ok = gstate.fileModes.Load().(map[string]Mode)[fname]
	return m, ok
}

// ResetFileLogMode drops the file log mode of fname; the global mode
// applies again.
func ResetFileLogMode(fname string) {
	updateFileModes(func(fm map[string]Mode) { delete(fm, fname) })
}

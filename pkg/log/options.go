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
// limitations under the License.

package log

import (
	"io"
	"path/filepath"
	"runtime"
)

// Flag is a bit set determining the header of each log line.
type Flag int

// These flags define which text to prefix to each log entry generated by the
// Logger. Bits are or'ed together to control what's printed.
const (
	Lmode         Flag = 1 << iota // the mode byte: I, W, E, F or D
	Ldate                          // the date in the local time zone: yymmdd
	Ltime                          // the time in the local time zone: 01:23:23
	Lmicroseconds                  // microsecond resolution: 01:23:23.123123, assumes Ltime
	Llongfile                      // full file name and line number: /a/b/c/d.go:23
	Lshortfile                     // final file name element and line number: d.go:23, overrides Llongfile
	LUTC                           // if Ldate or Ltime is set, use UTC rather than the local time zone

	LstdFlags = Lmode | Ldate | Ltime | Lmicroseconds | Lshortfile
)

type option func(l *Logger)

// Writer sets the io.Writer logs are written to. It is not synchronized; wrap
// it with SynchronizedWriter if the Logger is shared across goroutines.
func Writer(w io.Writer) option {
	return func(l *Logger) {
		l.w = w
	}
}

// Flags sets the header flags.
func Flags(f Flag) option {
	return func(l *Logger) {
		l.flag = f
	}
}

// SkipBasePath trims the repository root from file names printed with
// Llongfile, so headers read pkg/fuse/fs/session.go:42 instead of the
// absolute path of the build machine.
func SkipBasePath() option {
	return func(l *Logger) {
		_, file, _, ok := runtime.Caller(0)
		if !ok {
			return
		}
		// This file lives at <root>/pkg/log/options.go.
		l.basePath = filepath.Dir(filepath.Dir(filepath.Dir(file)))
	}
}

// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in licenses/BSD-golang.txt.

// Portions of this file are additionally subject to the following
// license and copyright.
//
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

// Portions of this code originated in the standard library 'log' package.

package log

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Logger is the concrete logger type. It writes out logs to the specified
// io.Writer, with the header format determined by the flags set.
type Logger struct {
	w        io.Writer // Where logs are written to
	flag     Flag      // Flag set determining log headers. See options.go
	basePath string    // Base path of the consumer's repository, optional
	prefix   string    // Written after the header, before the message
}

const newline string = "\n"

// New returns a Logger writing to a synchronized os.Stderr with LstdFlags
// headers, e.g.
//
//   I190314 09:26:53.589311 session.go:42] message
//
// unless options say otherwise.
func New(options ...option) *Logger {
	l := &Logger{
		w:    DefaultWriter(),
		flag: LstdFlags,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Discarder returns a Logger configured to discard all writes.
func Discarder() *Logger {
	return New(Writer(ioutil.Discard))
}

// Info logs to the INFO log in the manner of fmt.Println.
func (l *Logger) Info(v ...interface{}) {
	l.log(InfoMode, fmt.Sprintln(v...))
}

// Infof is Info in the manner of fmt.Printf.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.log(InfoMode, fmt.Sprintf(format+newline, v...))
}

// Warn logs to the WARN log in the manner of fmt.Println.
func (l *Logger) Warn(v ...interface{}) {
	l.log(WarnMode, fmt.Sprintln(v...))
}

// Warnf is Warn in the manner of fmt.Printf.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.log(WarnMode, fmt.Sprintf(format+newline, v...))
}

// Error logs to the ERROR log in the manner of fmt.Println.
func (l *Logger) Error(v ...interface{}) {
	l.log(ErrorMode, fmt.Sprintln(v...))
}

// Errorf is Error in the manner of fmt.Printf.
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.log(ErrorMode, fmt.Sprintf(format+newline, v...))
}

// Fatal logs to the FATAL log, in the manner of fmt.Println, then exits
// the process with status 255.
func (l *Logger) Fatal(v ...interface{}) {
	l.log(FatalMode, fmt.Sprintln(v...))
	os.Exit(255)
}

// Fatalf is Fatal in the manner of fmt.Printf.
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.log(FatalMode, fmt.Sprintf(format+newline, v...))
	os.Exit(255)
}

// Debug logs to the DEBUG log in the manner of fmt.Println.
func (l *Logger) Debug(v ...interface{}) {
	l.log(DebugMode, fmt.Sprintln(v...))
}

// Debugf is Debug in the manner of fmt.Printf.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.log(DebugMode, fmt.Sprintf(format+newline, v...))
}

// log must be called straight from the exported logging methods; the call
// site it reports is two frames up. Tracepoints and file modes match on the
// base name of that file only.
func (l *Logger) log(lmode Mode, data string) {
	file, line := caller(2)
	bfile := filepath.Base(file)
	tp := fmt.Sprintf("%s:%d", bfile, line)

	if GetTracePoint(tp) {
		// Skip log and the exported method.
		l.w.Write(stacktrace(2))
	}

	if !enabled(lmode, bfile) {
		return
	}

	var buf bytes.Buffer
	buf.Write(l.header(lmode, time.Now(), file, line))
	buf.WriteString(l.prefix)
	buf.WriteString(data)
	l.w.Write(buf.Bytes())
}

// enabled reports whether a statement of mode lmode in file bfile passes the
// file filter, or failing a filter for that file, the global mode.
func enabled(lmode Mode, bfile string) bool {
	if fmode, ok := GetFileLogMode(bfile); ok {
		// File mode filtering is an override; it wins over the global
		// mode in both directions.
		return (fmode&lmode) != DisabledMode || (lmode&FatalMode) != DisabledMode
	}
	if gmode := GetGlobalLogMode(); (gmode & lmode) != DisabledMode {
		return true
	}
	// Logger.Fatal{,f} statements aren't filtered out.
	return (lmode & FatalMode) != DisabledMode
}

// Enabled reports whether a statement of the given mode at the call site
// would be emitted. Callers use it to skip building costly log arguments,
// such as the rendering of every request on a busy mount.
func (l *Logger) Enabled(lmode Mode) bool {
	file, _ := caller(1)
	return enabled(lmode, filepath.Base(file))
}

// Prefixed returns a copy of the Logger that writes prefix before each
// message, e.g. the mount point a session serves.
func (l *Logger) Prefixed(prefix string) *Logger {
	c := *l
	c.prefix = l.prefix + prefix
	return &c
}

// header formats the log header as per l.flag. With Llongfile, file is
// printed relative to the base path when it lies below it.
func (l *Logger) header(lmode Mode, t time.Time, file string, line int) []byte {
	var b []byte
	buf := &b
	if l.flag&(Lmode) != 0 {
		*buf = append(*buf, lmode.byte())
	}
	if l.flag&LUTC != 0 {
		t = t.UTC()
	}
	if l.flag&(Ldate|Ltime|Lmicroseconds) != 0 {
		datef := l.flag&Ldate != 0
		timef := l.flag&(Ltime|Lmicroseconds) != 0
		if datef {
			year, month, day := t.Date()
			if year < 2000 {
				year = 2000
			}
			itoa(buf, year-2000, 2)
			itoa(buf, int(month), 2)
			itoa(buf, day, 2)
		}

		if datef && timef {
			*buf = append(*buf, ' ')
		}

		if timef {
			hour, min, sec := t.Clock()
			itoa(buf, hour, 2)
			*buf = append(*buf, ':')
			itoa(buf, min, 2)
			*buf = append(*buf, ':')
			itoa(buf, sec, 2)
			if l.flag&Lmicroseconds != 0 {
				*buf = append(*buf, '.')
				itoa(buf, t.Nanosecond()/1e3, 6)
			}
		}
	}

	*buf = append(*buf, ' ')

	if l.flag&(Lshortfile|Llongfile) != 0 {
		// Files outside the base path (dependencies, the standard
		// library) keep their full path.
		if l.basePath != "" && strings.HasPrefix(file, l.basePath+"/") {
			file = file[len(l.basePath)+1:]
		}

		if l.flag&Lshortfile != 0 {
			short := file
			for i := len(file) - 1; i > 0; i-- {
				if file[i] == '/' {
					short = file[i+1:]
					break
				}
			}
			file = short
		}
		*buf = append(*buf, file...)
		*buf = append(*buf, ':')
		itoa(buf, line, -1)
		*buf = append(*buf, "] "...)
	}
	return b
}

// Cheap integer to fixed-width decimal ASCII. Give a negative width to avoid
// zero-padding.
func itoa(buf *[]byte, i int, wid int) {
	// Assemble decimal in reverse order.
	var b [20]byte
	bp := len(b) - 1
	for i >= 10 || wid > 1 {
		wid--
		q := i / 10
		b[bp] = byte('0' + i - q*10)
		bp--
		i = q
	}
	// i < 10
	b[bp] = byte('0' + i)
	*buf = append(*buf, b[bp:]...)
}

// stacktrace returns the stack trace of the current goroutine without its
// innermost skip frames (the caller of stacktrace being the first).
func stacktrace(skip int) []byte {
	skip *= 2 // two lines per frame
	skip += 4 // debug.Stack and stacktrace itself

	bs := bytes.Split(debug.Stack(), []byte("\n"))
	copy(bs[1:], bs[1+skip:]) // keep the "goroutine N [running]:" line
	bs = bs[:len(bs)-skip]
	return bytes.Join(bs, []byte("\n"))
}

// caller returns the call site depth frames above its caller: caller(0) is
// the line calling caller, caller(1) the line calling that function.
func caller(depth int) (file string, line int) {
	_, file, line, ok := runtime.Caller(depth + 1)
	if !ok {
		return "[???]", -1
	}
	return file, line
}

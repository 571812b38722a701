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
	"bytes"
	"flag"
	"fmt"
	"regexp"
	"strings"
)

// ModeFlag is a flag.Value for -log-mode, e.g. "info|warn|error".
type ModeFlag struct {
	m   Mode
	set bool
}

var _ flag.Value = (*ModeFlag)(nil)

func (l *ModeFlag) String() string {
	if !l.set {
		return ModeToString(DefaultMode)
	}
	return ModeToString(l.m)
}

func (l *ModeFlag) Set(value string) error {
	m, err := ModeFromString(value)
	if err != nil {
		return err
	}
	l.m = m
	l.set = true
	return nil
}

type fileLogMode struct {
	fname string
	fmode Mode
}

// FilterFlag is a flag.Value for -log-filter, a comma-separated list of
// fname.go:mode settings.
type FilterFlag []fileLogMode

var _ flag.Value = (*FilterFlag)(nil)

func (l *FilterFlag) String() string {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i, f := range *l {
		if i > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(fmt.Sprintf("%s:%s", f.fname, ModeToString(f.fmode)))
	}
	buf.WriteString("]")
	return buf.String()
}

var (
	filterFileRegex = regexp.MustCompile(`^[\w\-]+\.go$`)
	modeRegex       = regexp.MustCompile(`^(info|debug|warn|error|disabled)(\|(info|debug|warn|error))*$`)
	traceFileRegex  = regexp.MustCompile(`^[\w\-]+\.go$`)
	lineNumberRegex = regexp.MustCompile(`^\d+$`)
)

func (l *FilterFlag) Set(value string) error {
	for _, f := range strings.Split(value, ",") {
		parts := strings.Split(f, ":")
		if len(parts) != 2 {
			return fmt.Errorf("improperly formatted filter: %s, expected fname.go:mode", f)
		}

		fname, mode := parts[0], parts[1]
		if !filterFileRegex.MatchString(fname) {
			return fmt.Errorf("expected filename '%s' to match the regex '%s'", fname, filterFileRegex)
		}
		if !modeRegex.MatchString(mode) {
			return fmt.Errorf("expected mode '%s' to match the regex '%s'", mode, modeRegex)
		}

		fmode, err := ModeFromString(mode)
		if err != nil {
			return err
		}
		*l = append(*l, fileLogMode{fname: fname, fmode: fmode})
	}
	return nil
}

// BacktraceFlag is a flag.Value for -log-backtrace-at, a comma-separated
// list of fname.go:line tracepoints.
type BacktraceFlag []string

var _ flag.Value = (*BacktraceFlag)(nil)

func (l *BacktraceFlag) String() string {
	return fmt.Sprint(*l)
}

func (l *BacktraceFlag) Set(value string) error {
	for _, f := range strings.Split(value, ",") {
		parts := strings.Split(f, ":")
		if len(parts) != 2 {
			return fmt.Errorf("improperly formatted tracepoint: %s, expected fname.go:line", f)
		}

		fname, lnumber := parts[0], parts[1]
		if !traceFileRegex.MatchString(fname) {
			return fmt.Errorf("expected filename '%s' to match the regex '%s'", fname, traceFileRegex)
		}
		if !lineNumberRegex.MatchString(lnumber) {
			return fmt.Errorf("expected line number '%s' to match the regex '%s'", lnumber, lineNumberRegex)
		}
		*l = append(*l, fmt.Sprintf("%s:%s", fname, lnumber))
	}
	return nil
}

// RegisterFlags adds -log-mode, -log-filter and -log-backtrace-at to fs.
// Call Apply on the result once fs is parsed.
func RegisterFlags(fs *flag.FlagSet) *FlagValues {
	v := &FlagValues{}
	fs.Var(&v.Mode, "log-mode",
		"Log mode for logs emitted globally (can be overridden using -log-filter)")
	fs.Var(&v.Filter, "log-filter",
		"Comma-separated list of pattern:level settings for file-filtered logging")
	fs.Var(&v.Backtrace, "log-backtrace-at",
		"Comma-separated list of filename:N settings to emit backtraces")
	return v
}

// FlagValues holds the parsed logging flags.
type FlagValues struct {
	Mode      ModeFlag
	Filter    FilterFlag
	Backtrace BacktraceFlag
}

// Apply installs the parsed settings into the global logging state.
func (v *FlagValues) Apply() {
	if v.Mode.set {
		SetGlobalLogMode(v.Mode.m)
	}
	for _, flm := range v.Filter {
		SetFileLogMode(flm.fname, flm.fmode)
	}
	for _, tp := range v.Backtrace {
		SetTracePoint(tp)
	}
}

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
	"fmt"
	"strings"
)

// Mode is a bit set of severities. A Logger statement is emitted when its
// severity intersects the mode in force for its file: the per-file mode set
// with SetFileLogMode if there is one, the global mode otherwise. Fatal
// statements are never filtered.
type Mode int

const (
	InfoMode Mode = 1 << iota
	WarnMode
	ErrorMode
	FatalMode
	DebugMode

	// DisabledMode doubles as the empty intersection: (a&b) != DisabledMode
	// checks whether two modes overlap.
	DisabledMode = 0
	DefaultMode  = InfoMode | WarnMode | ErrorMode
)

var modeNames = []struct {
	m    Mode
	name string
}{
	{InfoMode, "info"},
	{WarnMode, "warn"},
	{ErrorMode, "error"},
	{DebugMode, "debug"},
}

// byte is the header letter of a single severity.
func (m Mode) byte() byte {
	switch m {
	case InfoMode:
		return 'I'
	case WarnMode:
		return 'W'
	case ErrorMode:
		return 'E'
	case FatalMode:
		return 'F'
	case DebugMode:
		return 'D'
	default:
		return '?'
	}
}

func (m Mode) String() string {
	return ModeToString(m)
}

// ModeFromString parses "info|warn" style mode strings. "disabled" turns
// logging off.
func ModeFromString(value string) (Mode, error) {
	if value == "disabled" {
		return DisabledMode, nil
	}
	var m Mode
next:
	for _, part := range strings.Split(value, "|") {
		for _, mn := range modeNames {
			if part == mn.name {
				m |= mn.m
				continue next
			}
		}
		return m, fmt.Errorf("unrecognized mode: %v", part)
	}
	return m, nil
}

// ModeToString is the inverse of ModeFromString.
func ModeToString(m Mode) string {
	if m == DisabledMode {
		return "disabled"
	}
	var names []string
	for _, mn := range modeNames {
		if m&mn.m != DisabledMode {
			names = append(names, mn.name)
		}
	}
	return strings.Join(names, "|")
}

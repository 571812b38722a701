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

package cli

import (
	"bytes"
	"errors"
	"flag"
	"io/ioutil"
	"strings"
	"testing"
)

func testCommands() Commands {
	return Commands{
		{
			Run: func(cmd *Command, args []string) error {
				db := cmd.FlagSet.String("db", "", "Database path")
				if err := cmd.FlagSet.Parse(args); err != nil {
					return CmdParseError(err)
				}
				if *db == "fail" {
					return errors.New("mount failed")
				}
				return nil
			},
			UsageLine: "fuse-server [-db path] <mount-point>",
			Short:     "serve a filesystem",
			Long:      "\nServes a filesystem.\n",
		},
		{
			UsageLine: "protocol",
			Short:     "protocol overview",
			Long:      "\nThe protocol.\n",
		},
	}
}

func TestCommandName(t *testing.T) {
	cmds := testCommands()
	if got := cmds[0].Name(); got != "fuse-server" {
		t.Errorf("got %q", got)
	}
	if got := cmds[1].Name(); got != "protocol" {
		t.Errorf("got %q", got)
	}
	if !cmds[0].Runnable() || cmds[1].Runnable() {
		t.Error("only commands with Run set are runnable")
	}
}

func TestCmdParseError(t *testing.T) {
	if CmdParseError(nil) != nil {
		t.Error("CmdParseError(nil) should be nil")
	}

	var fs flag.FlagSet
	fs.SetOutput(ioutil.Discard)
	fs.Bool("f", false, "")
	perr := fs.Parse([]string{"-x"})
	err := CmdParseError(perr)
	if _, ok := err.(cmdParseError); !ok {
		t.Errorf("got %T", err)
	}
	if err.Error() != perr.Error() {
		t.Errorf("got %q, want %q", err, perr)
	}

	// Errors returned by a running command are not parse errors.
	if _, ok := errors.New("mount failed").(cmdParseError); ok {
		t.Error("plain error treated as a parse error")
	}
}

func TestUsageTemplates(t *testing.T) {
	cmds := testCommands()

	var buf bytes.Buffer
	tmpl(&buf, usageTemplate, "kfuse", "kfuse abstract", cmds)
	out := buf.String()
	for _, want := range []string{"kfuse abstract", "kfuse command [arguments]", "fuse-server", "protocol"} {
		if !strings.Contains(out, want) {
			t.Errorf("usage is missing %q:\n%s", want, out)
		}
	}
	// Help topics are listed after the commands.
	if strings.Index(out, "protocol") < strings.Index(out, "fuse-server") {
		t.Errorf("topic listed before command:\n%s", out)
	}

	buf.Reset()
	tmpl(&buf, helpTemplate, "kfuse", "", cmds[0])
	if got := buf.String(); !strings.HasPrefix(got, "Usage: kfuse fuse-server [-db path] <mount-point>") ||
		!strings.HasSuffix(got, "Serves a filesystem.\n") {
		t.Errorf("unexpected command help:\n%s", got)
	}

	buf.Reset()
	tmpl(&buf, helpTemplate, "kfuse", "", cmds[1])
	if got := buf.String(); !strings.HasPrefix(got, "Topic: protocol overview") {
		t.Errorf("unexpected topic help:\n%s", got)
	}
}

func TestUpcaseInitial(t *testing.T) {
	for in, want := range map[string]string{
		"flag provided but not defined: -x": "Flag provided but not defined: -x",
		"":                                  "",
		"X":                                 "X",
	} {
		if got := upcaseInitial(in); got != want {
			t.Errorf("upcaseInitial(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProcess(t *testing.T) {
	tests := []struct {
		args   []string
		err    error
		stdout string
		stderr string
	}{
		{args: nil, stdout: "Usage:"},
		{args: []string{"help"}, stdout: "The commands are:"},
		{args: []string{"-h"}, stdout: "Additional help topics:"},
		{args: []string{"help", "protocol"}, stdout: "Topic: protocol overview"},
		{args: []string{"help", "nope"}, err: errUsage, stderr: "Unknown help topic 'nope'"},
		{args: []string{"help", "a", "b"}, err: errUsage, stderr: "Too many arguments given."},
		{args: []string{"nope"}, err: errUsage, stderr: "Unknown command 'nope'"},
		{args: []string{"protocol"}, err: errUsage, stderr: "Unknown command 'protocol'"},
		{args: []string{"fuse-server", "-db", "x"}},
		{args: []string{"fuse-server", "-h"}, stdout: "-db string"},
		{args: []string{"fuse-server", "-x"}, err: errUsage, stderr: "Flag provided but not defined: -x"},
	}
	for _, tt := range tests {
		var stdout, stderr bytes.Buffer
		err := process("kfuse", tt.args, "kfuse abstract", testCommands(), &stdout, &stderr)
		if err != tt.err {
			t.Errorf("%v: got error %v, want %v", tt.args, err, tt.err)
		}
		if !strings.Contains(stdout.String(), tt.stdout) {
			t.Errorf("%v: stdout %q does not contain %q", tt.args, stdout.String(), tt.stdout)
		}
		if !strings.Contains(stderr.String(), tt.stderr) {
			t.Errorf("%v: stderr %q does not contain %q", tt.args, stderr.String(), tt.stderr)
		}
	}
}

func TestProcessCommandError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := process("kfuse", []string{"fuse-server", "-db", "fail"}, "", testCommands(), &stdout, &stderr)
	if err == nil || err == errUsage || err.Error() != "mount failed" {
		t.Errorf("got %v, want the command's error", err)
	}
	if stderr.Len() != 0 {
		t.Errorf("command errors are the caller's to print, got %q", stderr.String())
	}
}

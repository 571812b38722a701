// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in licenses/BSD-golang.txt.

// Portions of this file are additionally subject to the following
// license and copyright.
//
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

// Portions of this code originated in the Go source code, under cmd/go/internal/help.

package cli

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"
)

var usageTemplate = `{{abstract}}

Usage:

    {{program}} command [arguments]

The commands are:
{{range .}}{{if .Runnable}}
	{{.Name | printf "%-20s"}}   {{.Short}}{{end}}{{end}}

Use '{{program}} help [command]' for more information about a command.

Additional help topics:
{{range .}}{{if not .Runnable}}
	{{.Name | printf "%-20s"}}   {{.Short}}{{end}}{{end}}

Use "{{program}} help [topic]" for more information about that topic.
`

var helpTemplate = `{{if .Runnable}}Usage: {{program}} {{.UsageLine}}

{{else}}Topic: {{.Short}}

{{end}}{{.Long | trim}}
`

var cmdErrorHelpTemplate = `Usage:

  {{program}} {{.UsageLine}}

`

// tmpl executes the given template text on data, writing the result to w.
func tmpl(w io.Writer, templateText, program, abstract string, data interface{}) {
	t := template.New("")
	t.Funcs(template.FuncMap{
		"trim":     strings.TrimSpace,
		"abstract": func() string { return abstract },
		"program":  func() string { return program },
	})
	template.Must(t.Parse(templateText))
	if err := t.Execute(w, data); err != nil {
		panic(err)
	}
}

func printFullUsage(w io.Writer, program, abstract string, commands Commands) {
	tmpl(w, usageTemplate, program, abstract, commands)
}

// printCommandUsage is '<program> help command'.
func printCommandUsage(w io.Writer, program, command string, commands Commands) error {
	for _, cmd := range commands {
		if cmd.Name() == command {
			tmpl(w, helpTemplate, program, "", cmd)
			return nil
		}
	}
	return errors.New("command not found")
}

// printCommandParsingError prints err, capitalized, then the command's
// usage line and flags.
func printCommandParsingError(w io.Writer, program string, cmd *Command, err error) {
	fmt.Fprintln(w, upcaseInitial(err.Error()))
	printCommandHelp(w, program, cmd)
}

// printCommandHelp is '<program> command -h'.
func printCommandHelp(w io.Writer, program string, cmd *Command) {
	tmpl(w, cmdErrorHelpTemplate, program, "", cmd)
	cmd.FlagSet.SetOutput(w)
	cmd.FlagSet.PrintDefaults()
	cmd.FlagSet.SetOutput(ioutil.Discard)
}

// upcaseInitial upper-cases the first rune of str.
func upcaseInitial(str string) string {
	for i, v := range str {
		return string(unicode.ToUpper(v)) + str[i+utf8.RuneLen(v):]
	}
	return ""
}

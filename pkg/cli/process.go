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

package cli

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"
)

// errUsage is returned by process once it has printed a usage error.
var errUsage = errors.New("cli: usage error")

// Process is the entry point for CLI commands. It runs the command named by
// os.Args[1] with the remaining arguments, or prints help. Without any
// arguments the full usage is printed:
//
//      $ <program>
//      <abstract>
//
//      Usage:
//
//          <program> command [arguments]
//      ...
//
// Usage errors are printed to os.Stderr, followed by os.Exit(2). Errors from
// running a command are returned to the caller. Help goes to os.Stdout.
func Process(abstract string, commands Commands) error {
	err := process(os.Args[0], os.Args[1:], abstract, commands, os.Stdout, os.Stderr)
	if err == errUsage {
		os.Exit(2)
	}
	return err
}

func process(program string, args []string, abstract string, commands Commands, stdout, stderr io.Writer) error {
	// Flag errors are printed by us, along with the command's usage.
	for _, cmd := range commands {
		cmd.FlagSet.SetOutput(ioutil.Discard)
	}

	if len(args) == 0 {
		printFullUsage(stdout, program, abstract, commands)
		return nil
	}

	command := args[0]
	if command == "help" || command == "-h" {
		switch len(args) {
		case 1:
			printFullUsage(stdout, program, abstract, commands)
			return nil
		case 2:
			if command == "help" {
				if err := printCommandUsage(stdout, program, args[1], commands); err != nil {
					fmt.Fprintf(stderr, "Unknown help topic '%s'\n\n", args[1])
					fmt.Fprintf(stderr, "Run '%s help' for available topics.\n", program)
					return errUsage
				}
				return nil
			}
		default:
			if command == "help" {
				fmt.Fprintf(stderr, "Usage: %s help [command]\n\n", program)
				fmt.Fprintln(stderr, "Too many arguments given.")
				return errUsage
			}
		}
	}

	for _, cmd := range commands {
		if cmd.Name() != command || !cmd.Runnable() {
			continue
		}

		err := cmd.Run(cmd, args[1:])
		if _, ok := err.(cmdParseError); !ok {
			return err
		}
		// -h surfaces as a parse error, but asks for help.
		if strings.Contains(err.Error(), "help requested") {
			printCommandHelp(stdout, program, cmd)
			return nil
		}
		printCommandParsingError(stderr, program, cmd, err)
		return errUsage
	}

	fmt.Fprintf(stderr, "Unknown command '%s'\n\n", command)
	fmt.Fprintf(stderr, "Run '%s help' for available commands.\n", program)
	return errUsage
}

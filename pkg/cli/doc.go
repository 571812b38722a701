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

// Package cli allows the construction of structured command-line interfaces with sub-commands and
// help topics. This is very similar to the interface in git where the top-level program name (git)
// is preceded by a qualifier that determines what sub-command to execute
// (git {reflog,commit,cherry-pick}).
//
// Package cli explicitly avoid init time global hooks and has a minimal binary size footprint.
//
// Example (from kfuse):
//
//      var commands cli.Commands
//      commands = append(commands, fuseserver.FuseServerCmd)
//      commands = append(commands, doc.ProtocolCmd)
//
//      abstract := "kfuse serves userspace filesystems over the kernel FUSE protocol."
//      if err := cli.Process(abstract, commands); err != nil {
//      	os.Exit(1)
//      }
//
// This generates the following top-level behaviour:
//
//      $ kfuse {,-h,help}
//      kfuse serves userspace filesystems over the kernel FUSE protocol.
//
//      Usage:
//
//          kfuse command [arguments]
//
//      The commands are:
//
//              fuse-server            serve an in-memory filesystem at the specified mount point
//
//      Use 'kfuse help [command]' for more information about a command.
//
//      Additional help topics:
//
//              protocol               FUSE wire protocol overview
//
//      Use "kfuse help [topic]" for more information about that topic.
//
// Using help for a listed command prints its usage line and long description, and doing the same
// for a help topic prints the topic. Individual commands also have their own '-h' switches:
//
//      $ kfuse fuse-server -h
//      Usage:
//
//          kfuse fuse-server [-db path] [-debug-addr addr] ... <mount-point>
//
//          -allow-other
//              Allow other users to access the filesystem
//          ...
//
package cli

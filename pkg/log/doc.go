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

// Package log implements leveled, file-filterable logs. Binaries wire it to
// their command line with RegisterFlags:
//
//     $ kfuse fuse-server -h
//       ...
//       -log-mode value
//             Log mode for logs emitted globally (can be overridden using -log-filter)
//       -log-filter value
//             Comma-separated list of pattern:level settings for file-filtered logging
//       -log-backtrace-at value
//             Comma-separated list of filename:N settings to emit backtraces
//
//     $ kfuse fuse-server -log-mode info \
//                         -log-filter session.go:debug,memfs.go:warn \
//                         -log-backtrace-at dispatch.go:42 \
//                         /mnt/kfuse
//
// The same settings can be changed at runtime through SetGlobalLogMode,
// SetFileLogMode and SetTracePoint.
//
// A Logger is configured with options when created:
//
//      writer := log.MultiWriter(os.Stderr,
//              log.LogRotationWriter("/var/log/kfuse", 50<<20 /* 50 MiB */))
//      writer = log.SynchronizedWriter(writer)
//
//      logf := log.Lmode | log.Ldate | log.Ltime | log.Llongfile
//      logger := log.New(log.Writer(writer), log.Flags(logf), log.SkipBasePath())
//      logger.Infof("mounted point: %s", dir)
//
// Libraries take a *Logger and default to Discarder() when given none.
package log

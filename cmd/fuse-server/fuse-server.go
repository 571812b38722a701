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

package fuseserver

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kurafs/kfuse/pkg/cli"
	"github.com/kurafs/kfuse/pkg/fuse/fs"
	"github.com/kurafs/kfuse/pkg/log"
)

var FuseServerCmd = &cli.Command{
	Run:       fuseServerCmdRun,
	UsageLine: "fuse-server [-db path] [-debug-addr addr] [-max-inflight n] [-unmount] [mount flags] [logger flags] <mount-point>",
	Short:     "serve an in-memory filesystem at the specified mount point",
	Long: `
Fuse server mounts an in-memory filesystem at the given mount point and serves
kernel requests until it is unmounted or receives SIGINT/SIGTERM.

With -db the tree is checkpointed to a bolt database on flush, fsync and
unmount, and loaded back on the next mount. With -debug-addr, request traces
are served at http://<addr>/debug/requests; pass -trace to record them.

Use -unmount to detach a filesystem left behind by a crashed server.
    `,
}

// config is the parsed command line.
type config struct {
	mountPoint string
	dbPath     string
	debugAddr  string
	unmount    bool

	maxInflight    int
	gracePeriod    time.Duration
	trace          bool
	allowOther     bool
	defaultPerms   bool
	readOnly       bool
	writebackCache bool

	logDir         string
	suppressStderr bool
	logFlags       *log.FlagValues
}

func parseFlags(fset *flag.FlagSet, args []string) (*config, error) {
	c := &config{}
	fset.StringVar(&c.dbPath, "db", "",
		"Bolt database to persist the filesystem to (in-memory only if empty)")
	fset.StringVar(&c.debugAddr, "debug-addr", "",
		"Address to serve /debug/requests on [host:port]")
	fset.BoolVar(&c.unmount, "unmount", false,
		"Unmount filesystem at specified directory")
	fset.IntVar(&c.maxInflight, "max-inflight", 0,
		"Maximum number of requests served concurrently (0 for unlimited)")
	fset.DurationVar(&c.gracePeriod, "grace-period", fs.DefaultGracePeriod,
		"How long to wait for in-flight requests at shutdown")
	fset.BoolVar(&c.trace, "trace", false,
		"Record a trace for every request")
	fset.BoolVar(&c.allowOther, "allow-other", false,
		"Allow other users to access the filesystem")
	fset.BoolVar(&c.defaultPerms, "default-permissions", false,
		"Let the kernel enforce file modes")
	fset.BoolVar(&c.readOnly, "read-only", false,
		"Mount the filesystem read-only")
	fset.BoolVar(&c.writebackCache, "writeback-cache", false,
		"Let the kernel cache writes")
	fset.StringVar(&c.logDir, "log-dir", "",
		"Write log files to the specified directory")
	fset.BoolVar(&c.suppressStderr, "suppress-stderr", false,
		"Suppress standard error logging")
	c.logFlags = log.RegisterFlags(fset)

	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	if fset.NArg() > 1 {
		return nil, fmt.Errorf("unrecognized arguments: %v", fset.Args()[1:])
	}
	if fset.NArg() == 0 {
		return nil, errors.New("unspecified mount-point")
	}
	if c.maxInflight < 0 {
		return nil, fmt.Errorf("invalid -max-inflight %d", c.maxInflight)
	}
	c.mountPoint = fset.Arg(0)
	return c, nil
}

func fuseServerCmdRun(cmd *cli.Command, args []string) error {
	c, err := parseFlags(&cmd.FlagSet, args)
	if err != nil {
		return cli.CmdParseError(err)
	}
	c.logFlags.Apply()

	writer := ioutil.Discard
	if c.logDir != "" {
		writer = log.LogRotationWriter(c.logDir, 50<<20 /* 50 MiB */)
	}
	if !c.suppressStderr {
		writer = log.MultiWriter(writer, os.Stderr)
	}
	writer = log.SynchronizedWriter(writer)
	logf := log.Ldate | log.Ltime | log.Lmicroseconds | log.Llongfile | log.LUTC | log.Lmode
	logger := log.New(log.Writer(writer), log.Flags(logf), log.SkipBasePath())

	if c.unmount {
		if err := unmount(logger, c.mountPoint); err != nil {
			logger.Error(err.Error())
			return err
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		select {
		case sig := <-sigc:
			logger.Infof("received %v, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	wait, shutdown, err := Start(ctx, logger, c)
	if err != nil {
		logger.Error(err.Error())
		return err
	}

	err = wait()
	shutdown()
	return err
}

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
	"net/http"
	"sync"

	"github.com/kurafs/kfuse/pkg/fuse"
	"github.com/kurafs/kfuse/pkg/fuse/fs"
	"github.com/kurafs/kfuse/pkg/log"
	"github.com/kurafs/kfuse/pkg/memfs"
	"golang.org/x/net/trace"
)

func (c *config) mountOptions() []fuse.MountOption {
	opts := []fuse.MountOption{
		fuse.FSName("kfuse"),
		fuse.Subtype("memfs"),
	}
	if c.allowOther {
		opts = append(opts, fuse.AllowOther())
	}
	if c.defaultPerms {
		opts = append(opts, fuse.DefaultPermissions())
	}
	if c.readOnly {
		opts = append(opts, fuse.ReadOnly())
	}
	if c.writebackCache {
		opts = append(opts, fuse.WritebackCache())
	}
	return opts
}

// sessionConfig carries the init settings implied by the mount options
// into the session.
func (c *config) sessionConfig(logger *log.Logger) (*fs.Config, error) {
	readahead, flags, err := fuse.MountConfig(c.mountOptions()...)
	if err != nil {
		return nil, err
	}
	return &fs.Config{
		Logger:       logger,
		GracePeriod:  c.gracePeriod,
		MaxInflight:  c.maxInflight,
		Trace:        c.trace,
		MaxReadahead: readahead,
		InitFlags:    flags,
	}, nil
}

// Start mounts the filesystem and serves it until ctx is cancelled or the
// mount goes away. wait returns what the session returned; shutdown then
// unmounts and closes the backing store.
func Start(ctx context.Context, logger *log.Logger, c *config) (wait func() error, shutdown func(), err error) {
	var filesys *memfs.FS
	if c.dbPath != "" {
		filesys, err = memfs.Open(c.dbPath, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("persisting to %s", c.dbPath)
	} else {
		filesys = memfs.New(logger)
	}

	conf, err := c.sessionConfig(logger)
	if err != nil {
		filesys.Close()
		return nil, nil, err
	}

	ch, err := mount(logger, c.mountPoint, c.mountOptions())
	if err != nil {
		filesys.Close()
		return nil, nil, err
	}
	session := fs.New(ch, filesys, conf)

	var debugServer *http.Server
	if c.debugAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/requests", trace.Traces)
		mux.HandleFunc("/debug/events", trace.Events)
		debugServer = &http.Server{Addr: c.debugAddr, Handler: mux}
	}

	var wg sync.WaitGroup
	if debugServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()

			logger.Infof("serving debug endpoints on %s", c.debugAddr)
			if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("debug server error: %v", err)
			}
		}()
	}

	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()

		runErr = session.Run(ctx)
		if runErr != nil {
			logger.Errorf("session error: %v", runErr)
		} else {
			logger.Infof("session finished")
		}
		if debugServer != nil {
			debugServer.Shutdown(context.Background())
		}
	}()

	wait = func() error {
		wg.Wait()
		return runErr
	}
	shutdown = func() {
		// The kernel may have unmounted already; fusermount then fails.
		if err := fuse.Unmount(c.mountPoint); err != nil {
			logger.Debugf("unmount: %v", err)
		} else {
			logger.Infof("unmounted point: %s", c.mountPoint)
		}
		if err := filesys.Close(); err != nil {
			logger.Errorf("closing filesystem: %v", err)
		}
	}
	return wait, shutdown, nil
}

func unmount(logger *log.Logger, mountPoint string) error {
	if err := fuse.Unmount(mountPoint); err != nil {
		return err
	}
	logger.Infof("unmounted point: %s", mountPoint)
	return nil
}

func mount(logger *log.Logger, mountPoint string, opts []fuse.MountOption) (*fuse.Channel, error) {
	ch, err := fuse.Mount(mountPoint, opts...)
	if err != nil {
		return nil, err
	}
	logger.Infof("mounted point: %s", mountPoint)
	return ch, nil
}

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

// Portions of this code originated in the github.com/golang/glog package.

package log

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"
)

// Process identity, baked into log file names.
var (
	program  = filepath.Base(os.Args[0])
	hostname = "?"
	username = "?"
	pid      = os.Getpid()
)

func init() {
	if host, err := os.Hostname(); err == nil {
		hostname = host
	}
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
}

// DefaultWriter returns os.Stderr, synchronized.
func DefaultWriter() io.Writer {
	return SynchronizedWriter(os.Stderr)
}

// LogRotationWriter returns an io.Writer writing to files in dirname,
// starting a new file once the current one would grow past sizeThreshold
// bytes. <program>.log in dirname links to the newest file.
//
// A single write larger than sizeThreshold still goes to one file, which
// then exceeds the threshold.
func LogRotationWriter(dirname string, sizeThreshold int) io.Writer {
	os.MkdirAll(dirname, 0755)
	return &rotatingWriter{
		dirname:   dirname,
		symlink:   program + ".log",
		threshold: sizeThreshold,
		now:       time.Now,
	}
}

// SynchronizedWriter wraps an io.Writer with a mutex for concurrent access.
func SynchronizedWriter(w io.Writer) io.Writer {
	return &synchronizedWriter{w: w}
}

// MultiWriter writes to every writer given. Unlike io.MultiWriter it keeps
// going past a failing writer, so a full log disk does not silence stderr.
func MultiWriter(w io.Writer, ws ...io.Writer) io.Writer {
	return multiWriter(append([]io.Writer{w}, ws...))
}

// logFilename is
// <program>.<host>.<user>.<yyyy-mm-dd>.<hh:mm:ss.mmm>.<pid>.log, e.g.
// kfuse.build-7.alice.2019-03-14.09:26:53.589.4242.log.
func logFilename(t time.Time) string {
	return fmt.Sprintf("%s.%s.%s.%s.%d.log",
		program, hostname, username, t.Format("2006-01-02.15:04:05.000"), pid)
}

type rotatingWriter struct {
	dirname, symlink string
	threshold        int
	now              func() time.Time

	mu   sync.Mutex
	f    *os.File
	size int
}

func (r *rotatingWriter) rotate() error {
	name := logFilename(r.now())
	f, err := os.OpenFile(filepath.Join(r.dirname, name), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if r.f != nil {
		r.f.Close()
	}
	r.f, r.size = f, 0

	link := filepath.Join(r.dirname, r.symlink)
	os.Remove(link)
	os.Symlink(name, link) // best effort
	return nil
}

func (r *rotatingWriter) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil || r.size+len(b) > r.threshold {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.f.Write(b)
	r.size += n
	return n, err
}

type synchronizedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *synchronizedWriter) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(b)
}

type multiWriter []io.Writer

// Write reports the smallest count written and the last error seen.
func (m multiWriter) Write(b []byte) (n int, err error) {
	n = len(b)
	for _, w := range m {
		written, werr := w.Write(b)
		if written < n {
			n = written
		}
		if werr != nil {
			err = werr
		}
	}
	return n, err
}

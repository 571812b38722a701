// See the file LICENSE for copyright and licensing information.

// Package fstest runs an fs.Session against an in-memory device, playing
// the kernel's side of the protocol for tests.
package fstest

import (
	"os"
	"sync"
	"time"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "fstest: read deadline exceeded" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// Device is an in-memory stand-in for /dev/fuse. Messages queued with
// Push are read one per Read; writes are collected and returned by
// Replies. It honours read deadlines like a pollable file.
type Device struct {
	in      chan read
	out     chan []byte
	closed  chan struct{}
	closing sync.Once

	mu       sync.Mutex
	deadline time.Time
	changed  chan struct{}

	// NoDeadline makes SetReadDeadline fail, as on a blocking fd.
	NoDeadline bool
}

// NewDevice returns an open Device.
func NewDevice() *Device {
	return &Device{
		in:      make(chan read, 1024),
		out:     make(chan []byte, 1024),
		closed:  make(chan struct{}),
		changed: make(chan struct{}),
	}
}

type read struct {
	msg []byte
	err error
}

// Push queues a message for the session to read.
func (d *Device) Push(msg []byte) {
	d.push(read{msg: msg})
}

// Fail queues err to be returned by one Read, in order with Push.
func (d *Device) Fail(err error) {
	d.push(read{err: err})
}

func (d *Device) push(r read) {
	select {
	case d.in <- r:
	case <-d.closed:
	}
}

// Replies returns the messages written by the session.
func (d *Device) Replies() <-chan []byte {
	return d.out
}

// IsClosed reports whether Close has been called.
func (d *Device) IsClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

func (d *Device) Read(p []byte) (int, error) {
	for {
		d.mu.Lock()
		deadline, changed := d.deadline, d.changed
		d.mu.Unlock()

		var timer *time.Timer
		var expired <-chan time.Time
		if !deadline.IsZero() {
			wait := time.Until(deadline)
			if wait <= 0 {
				return 0, &os.PathError{Op: "read", Path: "fstest", Err: timeoutError{}}
			}
			timer = time.NewTimer(wait)
			expired = timer.C
		}

		var n int
		var err error
		done := true
		select {
		case r := <-d.in:
			n, err = copy(p, r.msg), r.err
		case <-d.closed:
			err = os.ErrClosed
		case <-changed:
			done = false
		case <-expired:
			done = false
		}
		if timer != nil {
			timer.Stop()
		}
		if done {
			return n, err
		}
	}
}

func (d *Device) Write(p []byte) (int, error) {
	if d.IsClosed() {
		return 0, os.ErrClosed
	}
	d.out <- append([]byte(nil), p...)
	return len(p), nil
}

func (d *Device) SetReadDeadline(t time.Time) error {
	if d.NoDeadline {
		return os.ErrNoDeadline
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deadline = t
	close(d.changed)
	d.changed = make(chan struct{})
	return nil
}

func (d *Device) Close() error {
	d.closing.Do(func() { close(d.closed) })
	return nil
}

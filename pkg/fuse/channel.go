// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"errors"
	"io"
	"os"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// A Device is the kernel end of a mount, normally the *os.File for
// /dev/fuse returned by Mount. Each Read returns exactly one message
// and each Write must carry exactly one.
//
// A Device that also has SetReadDeadline(time.Time) error can have a
// blocked Read cut short by Channel.Wake.
type Device interface {
	io.Reader
	io.Writer
	io.Closer
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type timeout interface {
	Timeout() bool
}

// A Channel is an open connection to the kernel. Receive is meant to
// be called from a single goroutine; Send and the notification methods
// are safe for concurrent use.
type Channel struct {
	dev Device

	// Serializes writes so replies are never interleaved.
	wio sync.Mutex

	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// NewChannel returns an open Channel reading and writing dev.
func NewChannel(dev Device) *Channel {
	return &Channel{dev: dev}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Closed reports whether the channel has been closed, locally or by
// the kernel.
func (c *Channel) Closed() bool {
	return c.isClosed()
}

// classify turns a device error into a *ChannelError, moving the
// channel to closed when the device is gone.
func (c *Channel) classify(op string, err error) error {
	kind := Fatal
	var errno syscall.Errno
	var te timeout
	switch {
	case err == io.EOF, errors.Is(err, os.ErrClosed):
		kind = Closed
	case errors.As(err, &errno):
		switch errno {
		case unix.ENODEV, unix.ENOTCONN, unix.ECONNABORTED:
			kind = Closed
		case unix.EINTR, unix.EAGAIN:
			kind = Interrupted
		case unix.ENOENT:
			// On read the request was interrupted while being copied
			// and the read can be restarted.
			kind = NotFound
			if op == "receive" {
				kind = Interrupted
			}
		}
	case errors.As(err, &te) && te.Timeout():
		kind = Interrupted
	}
	if kind == Closed {
		c.markClosed()
	}
	return &ChannelError{Kind: kind, Op: op, Err: err}
}

// Receive reads the next message into buf and returns the filled part.
// buf must be at least MaxRequestSize bytes or large messages fail.
func (c *Channel) Receive(buf []byte) ([]byte, error) {
	if c.isClosed() {
		return nil, &ChannelError{Kind: Closed, Op: "receive"}
	}
	n, err := c.dev.Read(buf)
	if err != nil {
		return nil, c.classify("receive", err)
	}
	if n <= 0 {
		// A zero-length read means the kernel went away.
		c.markClosed()
		return nil, &ChannelError{Kind: Closed, Op: "receive", Err: io.EOF}
	}
	return buf[:n], nil
}

// Send writes one complete message to the kernel.
func (c *Channel) Send(msg []byte) error {
	c.wio.Lock()
	defer c.wio.Unlock()
	if c.isClosed() {
		return &ChannelError{Kind: Closed, Op: "send"}
	}
	var nn int
	var err error
	for {
		nn, err = c.dev.Write(msg)
		if !errors.Is(err, unix.EINTR) && !errors.Is(err, unix.EAGAIN) {
			break
		}
	}
	if err != nil {
		return c.classify("send", err)
	}
	if nn != len(msg) {
		b := bugShortKernelWrite{
			Written: int64(nn),
			Length:  int64(len(msg)),
			Error:   errorString(err),
			Stack:   stack(),
		}
		return &ChannelError{Kind: Fatal, Op: "send", Err: errors.New(b.String())}
	}
	return nil
}

// Wake makes a Read blocked in Receive, and every later one, return
// ErrInterrupted. It fails when the device has no read deadline.
func (c *Channel) Wake() error {
	d, ok := c.dev.(readDeadliner)
	if !ok {
		return errors.New("fuse: device does not support read deadlines")
	}
	return d.SetReadDeadline(time.Unix(1, 0))
}

// Close closes the device. It is safe to call more than once; later
// Receive and Send calls fail with ErrClosed.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.markClosed()
		c.closeErr = c.dev.Close()
	})
	return c.closeErr
}

// InvalidateNode invalidates the kernel cache of the attributes and a
// range of the data of a node.
//
// Giving offset 0 and size -1 means all data. To invalidate just the
// attributes, give offset 0 and size 0.
//
// The error matches ErrNotFound if the kernel is not currently caching
// the node.
func (c *Channel) InvalidateNode(nodeID NodeID, off int64, size int64) error {
	return c.Send(encodeInvalidateNode(nodeID, off, size))
}

// InvalidateEntry invalidates the kernel cache of the directory entry
// identified by parent directory node ID and entry basename.
//
// The error matches ErrNotFound if the kernel is not currently caching
// the entry.
func (c *Channel) InvalidateEntry(parent NodeID, name string) error {
	const maxUint32 = ^uint32(0)
	if uint64(len(name)) > uint64(maxUint32) {
		// very unlikely, but we don't want to silently truncate
		return syscall.ENAMETOOLONG
	}
	return c.Send(encodeInvalidateEntry(parent, name))
}

func stack() string {
	buf := make([]byte, 1024)
	return string(buf[:runtime.Stack(buf, false)])
}

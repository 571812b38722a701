// See the file LICENSE for copyright and licensing information.

package fs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kurafs/kfuse/pkg/fuse"
	"github.com/kurafs/kfuse/pkg/log"
	"golang.org/x/net/trace"
)

// State is the lifecycle stage of a Session.
type State int32

const (
	Created State = iota
	Running
	Draining
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var (
	errStarted    = errors.New("fs: session already started")
	errNotReplied = errors.New("fs: handler returned without replying")
)

// handlerPanickedError is the reply to a request whose handler panicked.
type handlerPanickedError struct {
	Request fuse.Request
	Err     interface{}
}

var _ fuse.ErrorNumber = handlerPanickedError{}

func (h handlerPanickedError) Error() string {
	return fmt.Sprintf("handler panicked: %v", h.Err)
}

func (h handlerPanickedError) Errno() fuse.Errno {
	if err, ok := h.Err.(fuse.ErrorNumber); ok {
		return err.Errno()
	}
	return fuse.DefaultErrno
}

// handlerTerminatedError is the reply to a request whose handler called
// runtime.Goexit.
type handlerTerminatedError struct {
	Request fuse.Request
}

var _ fuse.ErrorNumber = handlerTerminatedError{}

func (h handlerTerminatedError) Error() string {
	return "handler terminated (called runtime.Goexit)"
}

func (h handlerTerminatedError) Errno() fuse.Errno {
	return fuse.DefaultErrno
}

// A Session serves one mounted filesystem: it reads requests from the
// channel, runs each in its own goroutine against the FileSystem and
// writes the replies back.
type Session struct {
	ch     *fuse.Channel
	fs     FileSystem
	config Config
	logger *log.Logger

	state int32

	mu          sync.RWMutex
	proto       fuse.Protocol
	initialized bool

	inflight *inflight
	sem      chan struct{}
	wg       sync.WaitGroup
	buffers  sync.Pool
}

// New returns a Session serving filesys over ch. A nil config means
// defaults.
func New(ch *fuse.Channel, filesys FileSystem, config *Config) *Session {
	conf := config.withDefaults()
	s := &Session{
		ch:       ch,
		fs:       filesys,
		config:   conf,
		logger:   conf.Logger,
		inflight: newInflight(),
	}
	if conf.MaxInflight > 0 {
		s.sem = make(chan struct{}, conf.MaxInflight)
	}
	s.buffers.New = func() interface{} {
		buf := make([]byte, fuse.MaxRequestSize)
		return &buf
	}
	return s
}

// State returns the lifecycle stage of the session.
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// Protocol returns the negotiated protocol version, the zero value
// before INIT.
func (s *Session) Protocol() fuse.Protocol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proto
}

func (s *Session) isInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Run serves requests until ctx is cancelled, the kernel sends DESTROY or
// the filesystem is unmounted, then drains in-flight requests for at most
// the grace period and closes the channel. It returns nil in those cases
// and the error otherwise, e.g. a fatal channel failure or an INIT that
// could not be negotiated.
func (s *Session) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, int32(Created), int32(Running)) {
		return errStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			if err := s.ch.Wake(); err != nil {
				s.logger.Warnf("fs: cannot wake receive loop, closing channel: %v", err)
				s.ch.Close()
			}
		case <-stop:
		}
	}()

	err := s.serve(ctx)
	close(stop)
	<-stopped

	s.drain()
	atomic.StoreInt32(&s.state, int32(Terminated))
	return err
}

func (s *Session) serve(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		buf := s.buffers.Get().(*[]byte)
		msg, err := s.ch.Receive(*buf)
		if err != nil {
			s.buffers.Put(buf)
			switch {
			case errors.Is(err, fuse.ErrInterrupted):
				continue
			case errors.Is(err, fuse.ErrClosed):
				s.logger.Info("fs: channel closed")
				return nil
			}
			return err
		}

		done, err := s.handle(ctx, msg, buf)
		if err != nil || done {
			return err
		}
	}
}

// drain cancels in-flight units, waits for them up to the grace period
// and closes the channel.
func (s *Session) drain() {
	atomic.StoreInt32(&s.state, int32(Draining))
	if n := s.inflight.cancelAll(); n > 0 {
		s.logger.Infof("fs: cancelled %d in-flight requests", n)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(s.config.GracePeriod)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.logger.Warnf("fs: %d requests still running after %v", s.inflight.len(), s.config.GracePeriod)
	}

	if err := s.ch.Close(); err != nil {
		s.logger.Errorf("fs: closing channel: %v", err)
	}
}

// handle routes one decoded message. It reports done once the session
// must stop receiving.
func (s *Session) handle(ctx context.Context, msg []byte, buf *[]byte) (done bool, err error) {
	req, err := fuse.DecodeRequest(msg, s.Protocol())
	if err != nil {
		s.buffers.Put(buf)
		s.decodeFailed(err)
		return false, nil
	}
	if s.logger.Enabled(log.DebugMode) {
		s.logger.Debugf("fs: <- %v", req)
	}

	if r, ok := req.(*fuse.InitRequest); ok {
		defer s.buffers.Put(buf)
		return false, s.init(ctx, r)
	}
	hdr := req.Hdr()
	if !s.isInitialized() {
		s.buffers.Put(buf)
		s.logger.Warnf("fs: %v before INIT", hdr)
		s.send(hdr, fuse.EncodeError(hdr.ID, fuse.EIO))
		return false, nil
	}

	switch r := req.(type) {
	case *fuse.DestroyRequest:
		defer s.buffers.Put(buf)
		s.destroy(ctx, r)
		return true, nil

	case *fuse.InterruptRequest:
		s.buffers.Put(buf)
		s.interrupt(ctx, r)
		return false, nil
	}

	s.start(ctx, req, buf)
	return false, nil
}

func (s *Session) decodeFailed(err error) {
	var derr *fuse.DecodeError
	if !errors.As(err, &derr) || !derr.HasID {
		s.logger.Warnf("fs: dropping message: %v", err)
		return
	}
	s.logger.Warnf("fs: %v", err)
	s.send(&fuse.Header{Opcode: derr.Opcode, ID: derr.ID}, fuse.EncodeError(derr.ID, derr))
}

func (s *Session) init(ctx context.Context, r *fuse.InitRequest) error {
	if s.isInitialized() {
		s.logger.Warnf("fs: repeated INIT from kernel %v", r.Kernel)
		s.send(&r.Header, fuse.EncodeError(r.ID, fuse.EIO))
		return nil
	}

	proto, retry, err := fuse.NegotiateProtocol(r.Kernel)
	if err != nil {
		s.send(&r.Header, fuse.EncodeError(r.ID, err))
		return err
	}
	if retry {
		s.logger.Infof("fs: kernel offers protocol %v, proposing %v", r.Kernel, proto)
		s.send(&r.Header, fuse.EncodeReply(r.ID, &fuse.InitResponse{Library: proto}, proto))
		return nil
	}

	resp := &fuse.InitResponse{
		Library:      proto,
		MaxReadahead: r.MaxReadahead,
		Flags:        fuse.InitBigWrites | s.config.InitFlags,
		MaxWrite:     s.config.MaxWrite,
		TimeGran:     1,
	}
	if ra := s.config.MaxReadahead; ra != 0 && ra < r.MaxReadahead {
		resp.MaxReadahead = ra
	}
	if err := s.fs.Init(ctx, r, resp); err != nil {
		s.send(&r.Header, fuse.EncodeError(r.ID, err))
		return fmt.Errorf("fs: init: %v", err)
	}
	resp.Library = proto
	resp.Flags &= r.Flags

	s.mu.Lock()
	s.proto = proto
	s.initialized = true
	s.mu.Unlock()

	s.logger.Infof("fs: kernel protocol %v, negotiated %v", r.Kernel, proto)
	s.logger.Debugf("fs: -> %v %v", r.ID, resp)
	s.send(&r.Header, fuse.EncodeReply(r.ID, resp, proto))
	return nil
}

func (s *Session) destroy(ctx context.Context, r *fuse.DestroyRequest) {
	if err := s.fs.Destroy(ctx, r); err != nil {
		s.logger.Warnf("fs: destroy: %v", err)
		s.send(&r.Header, fuse.EncodeError(r.ID, err))
		return
	}
	s.send(&r.Header, fuse.EncodeReply(r.ID, nil, s.Protocol()))
}

func (s *Session) interrupt(ctx context.Context, r *fuse.InterruptRequest) {
	if !s.inflight.interrupt(r.IntrID) {
		s.logger.Debugf("fs: interrupt for %v, not in flight", r.IntrID)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.fs.Interrupt(ctx, r); err != nil {
			s.logger.Debugf("fs: interrupt %v: %v", r.IntrID, err)
		}
	}()
}

// start runs req in its own goroutine. buf backs req and is returned to
// the pool when the unit ends. With MaxInflight set, the unit waits for
// a slot in its goroutine so the receive loop keeps reading INTERRUPT
// and DESTROY.
func (s *Session) start(ctx context.Context, req fuse.Request, buf *[]byte) {
	hdr := req.Hdr()
	uctx, cancel := context.WithCancel(ctx)
	u := &unit{hdr: hdr, ctx: uctx, cancel: cancel}
	u.reply = &replier{
		hdr: hdr,
		send: func(resp fuse.Response, err error) error {
			return s.respond(u, resp, err)
		},
	}

	tracked := !s.config.NoReply[hdr.Opcode]
	if tracked && !s.inflight.add(u) {
		s.logger.Errorf("fs: request %v already in flight", hdr.ID)
		cancel()
		s.buffers.Put(buf)
		s.send(hdr, fuse.EncodeError(hdr.ID, fuse.EIO))
		return
	}
	if s.config.Trace {
		u.tr = trace.New("fuse", hdr.Opcode.String())
		u.tr.LazyPrintf("%v", req)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.buffers.Put(buf)
		defer cancel()
		if tracked {
			defer s.inflight.remove(u)
		}
		if u.tr != nil {
			defer u.tr.Finish()
		}
		if s.sem != nil {
			select {
			case s.sem <- struct{}{}:
				defer func() { <-s.sem }()
			case <-uctx.Done():
				s.settle(u, req, uctx.Err())
				return
			}
		}
		s.run(u, req)
	}()
}

// run calls the filesystem and settles the reply.
func (s *Session) run(u *unit, req fuse.Request) {
	returned := false
	defer func() {
		if returned {
			return
		}
		var err error
		if rec := recover(); rec != nil {
			s.logger.Errorf("fs: panic serving %v: %v\n%s", req, rec, debug.Stack())
			err = handlerPanickedError{Request: req, Err: rec}
		} else {
			s.logger.Errorf("fs: handler for %v exited", req)
			err = handlerTerminatedError{Request: req}
		}
		s.settle(u, req, err)
	}()

	err := s.dispatch(u.ctx, u, req)
	returned = true
	s.settle(u, req, err)
}

func (s *Session) settle(u *unit, req fuse.Request, err error) {
	if s.config.NoReply[u.hdr.Opcode] {
		if err != nil {
			s.logger.Warnf("fs: %v: %v", req, err)
		}
		return
	}
	if u.reply.replied() {
		if err != nil {
			s.logger.Warnf("fs: %v replied, then returned %v", req, err)
		}
		return
	}
	if err == nil {
		s.logger.Errorf("fs: %v returned without replying", req)
		err = errNotReplied
	}
	u.reply.Error(err)
}

// respond encodes and sends the reply of u.
func (s *Session) respond(u *unit, resp fuse.Response, err error) error {
	var msg []byte
	if err != nil {
		if errors.Is(err, context.Canceled) && u.ctx.Err() != nil {
			if u.wasInterrupted() {
				s.logger.Debugf("fs: %v interrupted", u.hdr.ID)
			}
			err = fuse.EINTR
		}
		msg = fuse.EncodeError(u.hdr.ID, err)
		if s.logger.Enabled(log.DebugMode) {
			s.logger.Debugf("fs: -> %v error=%v (%v)", u.hdr.ID, fuse.ToErrno(err).ErrnoName(), err)
		}
		if u.tr != nil {
			u.tr.LazyPrintf("error: %v", err)
			u.tr.SetError()
		}
	} else {
		msg = fuse.EncodeReply(u.hdr.ID, resp, s.Protocol())
		if s.logger.Enabled(log.DebugMode) {
			s.logger.Debugf("fs: -> %v %v", u.hdr.ID, resp)
		}
		if u.tr != nil {
			u.tr.LazyPrintf("%v", resp)
		}
	}
	return s.send(u.hdr, msg)
}

// send writes msg unless hdr's opcode takes no reply.
func (s *Session) send(hdr *fuse.Header, msg []byte) error {
	if s.config.NoReply[hdr.Opcode] {
		s.logger.Debugf("fs: dropping reply to %v %v", hdr.Opcode, hdr.ID)
		return nil
	}
	err := s.ch.Send(msg)
	switch {
	case err == nil:
	case errors.Is(err, fuse.ErrNotFound):
		// The kernel has already given up on the request.
		s.logger.Debugf("fs: reply to %v %v: %v", hdr.Opcode, hdr.ID, err)
		return nil
	default:
		s.logger.Errorf("fs: reply to %v %v: %v", hdr.Opcode, hdr.ID, err)
	}
	return err
}

// InvalidateNode asks the kernel to drop cached data of node in
// [off, off+size). A negative size means to the end of file, a negative
// off only drops the attributes.
func (s *Session) InvalidateNode(node fuse.NodeID, off int64, size int64) error {
	if !s.Protocol().HasInvalidate() {
		return fuse.ENOSYS
	}
	return s.ch.InvalidateNode(node, off, size)
}

// InvalidateEntry asks the kernel to drop the cached lookup of name in
// parent.
func (s *Session) InvalidateEntry(parent fuse.NodeID, name string) error {
	if !s.Protocol().HasInvalidate() {
		return fuse.ENOSYS
	}
	return s.ch.InvalidateEntry(parent, name)
}

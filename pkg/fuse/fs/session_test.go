// See the file LICENSE for copyright and licensing information.

package fs_test

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/kurafs/kfuse/pkg/fuse"
	"github.com/kurafs/kfuse/pkg/fuse/fs"
	"github.com/kurafs/kfuse/pkg/fuse/fs/fstest"
)

var (
	proto731 = fuse.Protocol{Major: 7, Minor: 31}
	proto78  = fuse.Protocol{Major: 7, Minor: 8}
)

// hookFS routes the methods the tests exercise to optional hooks.
type hookFS struct {
	fs.NotImplemented

	getattr   func(ctx context.Context, req *fuse.GetattrRequest, reply *fs.ReplyAttr) error
	read      func(ctx context.Context, req *fuse.ReadRequest, reply *fs.ReplyData) error
	forget    func(ctx context.Context, req *fuse.ForgetRequest) error
	interrupt func(ctx context.Context, req *fuse.InterruptRequest) error
	destroy   func(ctx context.Context, req *fuse.DestroyRequest) error
}

func (h *hookFS) Getattr(ctx context.Context, req *fuse.GetattrRequest, reply *fs.ReplyAttr) error {
	if h.getattr == nil {
		return reply.Attr(fuse.Attr{Inode: uint64(req.Node), Mode: 0644, Nlink: 1})
	}
	return h.getattr(ctx, req, reply)
}

func (h *hookFS) Read(ctx context.Context, req *fuse.ReadRequest, reply *fs.ReplyData) error {
	if h.read == nil {
		return h.NotImplemented.Read(ctx, req, reply)
	}
	return h.read(ctx, req, reply)
}

func (h *hookFS) Forget(ctx context.Context, req *fuse.ForgetRequest) error {
	if h.forget == nil {
		return nil
	}
	return h.forget(ctx, req)
}

func (h *hookFS) Interrupt(ctx context.Context, req *fuse.InterruptRequest) error {
	if h.interrupt == nil {
		return nil
	}
	return h.interrupt(ctx, req)
}

func (h *hookFS) Destroy(ctx context.Context, req *fuse.DestroyRequest) error {
	if h.destroy == nil {
		return nil
	}
	return h.destroy(ctx, req)
}

func getattrIn() []byte {
	return fstest.Zeros(16)
}

func readIn(size uint32) [][]byte {
	return [][]byte{fstest.U64(1), fstest.U64(0), fstest.U32(size), fstest.U32(0), fstest.U64(0), fstest.U32(0), fstest.U32(0)}
}

func TestSessionGetattr(t *testing.T) {
	k := fstest.Start(t, &hookFS{}, nil, proto731)
	defer k.Stop()

	if got := k.Session.Protocol(); got != proto731 {
		t.Errorf("negotiated %v", got)
	}
	if n := len(k.Init.Payload); n != 64 {
		t.Errorf("init reply payload is %d bytes, want 64", n)
	}

	k.Dev.Push(fstest.Message(fuse.OpGetattr, 42, 7, getattrIn()))
	r := k.Wait(42)
	if r.Errno != 0 {
		t.Fatalf("errno %v", r.Errno)
	}
	if r.ID != 42 || r.Len != 16+104 {
		t.Errorf("unexpected reply id=%v len=%d", r.ID, r.Len)
	}
	if a := r.Attr(); a.Inode != 7 || a.Nlink != 1 {
		t.Errorf("unexpected attr %+v", a)
	}
}

func TestSessionGetattrProtocol78(t *testing.T) {
	k := fstest.Start(t, &hookFS{}, nil, proto78)
	defer k.Stop()

	if n := len(k.Init.Payload); n != 24 {
		t.Errorf("init reply payload is %d bytes, want 24", n)
	}
	k.Dev.Push(fstest.Message(fuse.OpGetattr, 42, 7))
	r := k.Wait(42)
	if r.Errno != 0 || r.Len != 16+96 {
		t.Errorf("unexpected reply errno=%v len=%d", r.Errno, r.Len)
	}
}

func TestSessionConcurrent(t *testing.T) {
	const n = 32
	var barrier sync.WaitGroup
	barrier.Add(n)
	filesys := &hookFS{
		getattr: func(ctx context.Context, req *fuse.GetattrRequest, reply *fs.ReplyAttr) error {
			// Every request must be running at once to get past here.
			barrier.Done()
			barrier.Wait()
			return reply.Attr(fuse.Attr{Inode: uint64(req.Node)})
		},
	}
	k := fstest.Start(t, filesys, nil, proto731)
	defer k.Stop()

	ids := make(map[fuse.RequestID]fuse.NodeID)
	for i := 0; i < n; i++ {
		node := fuse.NodeID(i + 2)
		ids[k.Send(fuse.OpGetattr, node, getattrIn())] = node
	}
	for id, node := range ids {
		r := k.Wait(id)
		if r.Errno != 0 || r.Attr().Inode != uint64(node) {
			t.Errorf("request %v: errno=%v attr=%+v", id, r.Errno, r.Attr())
		}
	}
}

func TestSessionInterrupt(t *testing.T) {
	started := make(chan struct{})
	interrupted := make(chan fuse.RequestID, 1)
	filesys := &hookFS{
		read: func(ctx context.Context, req *fuse.ReadRequest, reply *fs.ReplyData) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
		interrupt: func(ctx context.Context, req *fuse.InterruptRequest) error {
			interrupted <- req.IntrID
			return nil
		},
	}
	k := fstest.Start(t, filesys, nil, proto731)
	defer k.Stop()

	id := k.Send(fuse.OpRead, 2, readIn(4096)...)
	<-started
	k.Send(fuse.OpInterrupt, 0, fstest.U64(uint64(id)))

	if r := k.Wait(id); r.Errno != fuse.EINTR {
		t.Errorf("got errno %v, want EINTR", r.Errno)
	}
	select {
	case got := <-interrupted:
		if got != id {
			t.Errorf("Interrupt called for %v, want %v", got, id)
		}
	case <-time.After(fstest.Timeout):
		t.Error("Interrupt was not called")
	}
	k.Quiet(50 * time.Millisecond)
}

func TestSessionInterruptAfterReply(t *testing.T) {
	k := fstest.Start(t, &hookFS{}, nil, proto731)
	defer k.Stop()

	id := k.Send(fuse.OpGetattr, 3, getattrIn())
	if r := k.Wait(id); r.Errno != 0 {
		t.Fatalf("errno %v", r.Errno)
	}
	k.Send(fuse.OpInterrupt, 0, fstest.U64(uint64(id)))
	k.Quiet(50 * time.Millisecond)
}

func TestSessionMalformed(t *testing.T) {
	k := fstest.Start(t, &hookFS{}, nil, proto731)
	defer k.Stop()

	// A header too short to carry an ID is dropped.
	k.Dev.Push(make([]byte, 10))
	// A known ID with a bad payload gets EIO.
	k.Dev.Push(fstest.Message(fuse.OpGetattr, 5, 1, fstest.Zeros(3)))
	// An unknown opcode gets ENOSYS.
	k.Dev.Push(fstest.Message(fuse.Opcode(99), 6, 1))
	// A malformed no-reply message gets nothing.
	k.Dev.Push(fstest.Message(fuse.OpForget, 7, 1, fstest.Zeros(3)))

	if r := k.Wait(5); r.Errno != fuse.EIO {
		t.Errorf("malformed: got %v, want EIO", r.Errno)
	}
	if r := k.Wait(6); r.Errno != fuse.ENOSYS {
		t.Errorf("unknown opcode: got %v, want ENOSYS", r.Errno)
	}

	const n = 10
	var ids []fuse.RequestID
	for i := 0; i < n; i++ {
		ids = append(ids, k.Send(fuse.OpGetattr, 2, getattrIn()))
	}
	for _, id := range ids {
		if r := k.Wait(id); r.Errno != 0 {
			t.Errorf("request %v: errno %v", id, r.Errno)
		}
	}
	k.Quiet(50 * time.Millisecond)
}

func TestSessionHandlerFailures(t *testing.T) {
	var second error
	secondDone := make(chan struct{})
	filesys := &hookFS{
		getattr: func(ctx context.Context, req *fuse.GetattrRequest, reply *fs.ReplyAttr) error {
			switch req.Node {
			case 2:
				panic("boom")
			case 3:
				panic(fuse.ENOENT)
			case 4:
				runtime.Goexit()
			case 5:
				return nil
			case 6:
				return fuse.EACCES
			case 7:
				return errors.New("no errno")
			case 8:
				reply.Attr(fuse.Attr{Inode: 8})
				second = reply.Error(fuse.EPERM)
				close(secondDone)
				return nil
			case 9:
				reply.Error(fuse.ENOENT)
				return errors.New("logged only")
			}
			return reply.Attr(fuse.Attr{Inode: uint64(req.Node)})
		},
	}
	k := fstest.Start(t, filesys, nil, proto731)
	defer k.Stop()

	tests := []struct {
		node fuse.NodeID
		want fuse.Errno
	}{
		{2, fuse.EIO},
		{3, fuse.ENOENT},
		{4, fuse.EIO},
		{5, fuse.EIO},
		{6, fuse.EACCES},
		{7, fuse.EIO},
		{8, 0},
		{9, fuse.ENOENT},
	}
	for _, tt := range tests {
		r := k.Do(fuse.OpGetattr, tt.node, getattrIn())
		if r.Errno != tt.want {
			t.Errorf("node %v: got errno %v, want %v", tt.node, r.Errno, tt.want)
		}
	}
	<-secondDone
	if second != fs.ErrAlreadyReplied {
		t.Errorf("second completion returned %v", second)
	}
	k.Quiet(50 * time.Millisecond)
}

func TestSessionShutdownGrace(t *testing.T) {
	const m = 4
	var running sync.WaitGroup
	running.Add(m + 1)
	release := make(chan struct{})
	defer close(release)
	filesys := &hookFS{
		read: func(ctx context.Context, req *fuse.ReadRequest, reply *fs.ReplyData) error {
			running.Done()
			if req.Node == 9 {
				// Ignores cancellation.
				<-release
				return nil
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}
	k := fstest.Start(t, filesys, &fs.Config{GracePeriod: 100 * time.Millisecond}, proto731)

	var ids []fuse.RequestID
	for i := 0; i < m; i++ {
		ids = append(ids, k.Send(fuse.OpRead, 2, readIn(10)...))
	}
	k.Send(fuse.OpRead, 9, readIn(10)...)
	running.Wait()

	start := time.Now()
	if err := k.Stop(); err != nil {
		t.Errorf("Run returned %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("shutdown took %v", elapsed)
	}
	if !k.Dev.IsClosed() {
		t.Error("device not closed")
	}
	if s := k.Session.State(); s != fs.Terminated {
		t.Errorf("state %v", s)
	}
	for _, id := range ids {
		if r := k.Wait(id); r.Errno != fuse.EINTR {
			t.Errorf("request %v: got %v, want EINTR", id, r.Errno)
		}
	}
}

func TestSessionShutdownWithoutDeadline(t *testing.T) {
	dev := fstest.NewDevice()
	dev.NoDeadline = true
	s := fs.New(fuse.NewChannel(dev), &hookFS{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(fstest.Timeout):
		t.Fatal("Run did not return")
	}
	if !dev.IsClosed() {
		t.Error("device not closed")
	}
}

func TestSessionDestroy(t *testing.T) {
	var destroyed int32
	filesys := &hookFS{
		destroy: func(ctx context.Context, req *fuse.DestroyRequest) error {
			atomic.StoreInt32(&destroyed, 1)
			return nil
		},
	}
	k := fstest.Start(t, filesys, nil, proto731)

	if r := k.Do(fuse.OpDestroy, 0); r.Errno != 0 {
		t.Errorf("destroy errno %v", r.Errno)
	}
	select {
	case <-k.Done():
	case <-time.After(fstest.Timeout):
		t.Fatal("Run did not return after DESTROY")
	}
	if err := k.Err(); err != nil {
		t.Errorf("Run returned %v", err)
	}
	if atomic.LoadInt32(&destroyed) == 0 {
		t.Error("Destroy not called")
	}
	if !k.Dev.IsClosed() {
		t.Error("device not closed")
	}
}

func TestSessionUnmount(t *testing.T) {
	k := fstest.Start(t, &hookFS{}, nil, proto731)
	k.Dev.Close()
	select {
	case <-k.Done():
	case <-time.After(fstest.Timeout):
		t.Fatal("Run did not return after unmount")
	}
	if err := k.Err(); err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestSessionBeforeInit(t *testing.T) {
	k := fstest.New(t, &hookFS{}, nil)
	defer k.Stop()

	if r := k.Do(fuse.OpGetattr, 1); r.Errno != fuse.EIO {
		t.Errorf("got %v, want EIO", r.Errno)
	}
	r := k.Do(fuse.OpInit, 0, fstest.U32(7), fstest.U32(31), fstest.U32(0), fstest.U32(0))
	if r.Errno != 0 {
		t.Fatalf("INIT errno %v", r.Errno)
	}
	if r := k.Do(fuse.OpGetattr, 1, getattrIn()); r.Errno != 0 {
		t.Errorf("after INIT: errno %v", r.Errno)
	}
	if r := k.Do(fuse.OpInit, 0, fstest.U32(7), fstest.U32(31), fstest.U32(0), fstest.U32(0)); r.Errno != fuse.EIO {
		t.Errorf("second INIT: got %v, want EIO", r.Errno)
	}
}

func TestSessionOldKernel(t *testing.T) {
	k := fstest.New(t, &hookFS{}, nil)
	r := k.Do(fuse.OpInit, 0, fstest.U32(7), fstest.U32(5), fstest.U32(0), fstest.U32(0))
	if r.Errno != fuse.EPROTO {
		t.Errorf("got %v, want EPROTO", r.Errno)
	}
	<-k.Done()
	var verr *fuse.OldVersionError
	if err := k.Err(); !errors.As(err, &verr) {
		t.Errorf("Run returned %v", err)
	}
}

func TestSessionNewerMajor(t *testing.T) {
	k := fstest.New(t, &hookFS{}, nil)
	defer k.Stop()

	r := k.Do(fuse.OpInit, 0, fstest.U32(8), fstest.U32(0), fstest.U32(0), fstest.U32(0))
	if r.Errno != 0 || r.Uint32(0) != 7 || r.Uint32(4) != 31 {
		t.Fatalf("unexpected reply errno=%v version=%d.%d", r.Errno, r.Uint32(0), r.Uint32(4))
	}
	if r := k.Do(fuse.OpGetattr, 1); r.Errno != fuse.EIO {
		t.Errorf("session initialized before the retry: %v", r.Errno)
	}
	r = k.Do(fuse.OpInit, 0, fstest.U32(7), fstest.U32(31), fstest.U32(0), fstest.U32(0))
	if r.Errno != 0 {
		t.Errorf("retry errno %v", r.Errno)
	}
}

func TestSessionForget(t *testing.T) {
	var mu sync.Mutex
	forgotten := make(map[fuse.NodeID]uint64)
	var wg sync.WaitGroup
	wg.Add(3)
	filesys := &hookFS{
		forget: func(ctx context.Context, req *fuse.ForgetRequest) error {
			mu.Lock()
			forgotten[req.Node] += req.N
			mu.Unlock()
			wg.Done()
			return nil
		},
	}
	k := fstest.Start(t, filesys, nil, proto731)
	defer k.Stop()

	k.Send(fuse.OpForget, 3, fstest.U64(2))
	k.Send(fuse.OpBatchForget, 0,
		fstest.U32(2), fstest.U32(0),
		fstest.U64(4), fstest.U64(1),
		fstest.U64(5), fstest.U64(7))
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if forgotten[3] != 2 || forgotten[4] != 1 || forgotten[5] != 7 {
		t.Errorf("unexpected forgets %v", forgotten)
	}
	k.Quiet(50 * time.Millisecond)
}

func TestSessionMaxInflight(t *testing.T) {
	var cur, peak int32
	filesys := &hookFS{
		getattr: func(ctx context.Context, req *fuse.GetattrRequest, reply *fs.ReplyAttr) error {
			n := atomic.AddInt32(&cur, 1)
			defer atomic.AddInt32(&cur, -1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return reply.Attr(fuse.Attr{})
		},
	}
	k := fstest.Start(t, filesys, &fs.Config{MaxInflight: 2}, proto731)
	defer k.Stop()

	var ids []fuse.RequestID
	for i := 0; i < 10; i++ {
		ids = append(ids, k.Send(fuse.OpGetattr, 1, getattrIn()))
	}
	for _, id := range ids {
		if r := k.Wait(id); r.Errno != 0 {
			t.Errorf("request %v: errno %v", id, r.Errno)
		}
	}
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("%d requests ran at once", p)
	}
}

func TestSessionMaxInflightInterrupt(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	filesys := &hookFS{
		read: func(ctx context.Context, req *fuse.ReadRequest, reply *fs.ReplyData) error {
			if atomic.AddInt32(&calls, 1) == 1 {
				close(started)
				<-ctx.Done()
				return ctx.Err()
			}
			return reply.Data([]byte("ok"))
		},
	}
	k := fstest.Start(t, filesys, &fs.Config{MaxInflight: 1}, proto731)
	defer k.Stop()

	blocked := k.Send(fuse.OpRead, 2, readIn(4096)...)
	<-started
	queued := k.Send(fuse.OpRead, 2, readIn(4096)...)

	// The loop keeps reading while the only slot is taken.
	k.Send(fuse.OpInterrupt, 0, fstest.U64(uint64(queued)))
	if r := k.Wait(queued); r.Errno != fuse.EINTR {
		t.Errorf("queued request: got %v, want EINTR", r.Errno)
	}
	k.Send(fuse.OpInterrupt, 0, fstest.U64(uint64(blocked)))
	if r := k.Wait(blocked); r.Errno != fuse.EINTR {
		t.Errorf("blocked request: got %v, want EINTR", r.Errno)
	}

	if r := k.Do(fuse.OpRead, 2, readIn(4096)...); r.Errno != 0 || string(r.Payload) != "ok" {
		t.Errorf("got %q errno %v after the slot was freed", r.Payload, r.Errno)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("Read called %d times, want 2", n)
	}
}

func TestSessionDuplicateID(t *testing.T) {
	started := make(chan struct{})
	filesys := &hookFS{
		read: func(ctx context.Context, req *fuse.ReadRequest, reply *fs.ReplyData) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	k := fstest.Start(t, filesys, nil, proto731)
	defer k.Stop()

	id := k.Send(fuse.OpRead, 2, readIn(4096)...)
	<-started
	k.Dev.Push(fstest.Message(fuse.OpGetattr, id, 1, getattrIn()))
	if r := k.Wait(id); r.Errno != fuse.EIO {
		t.Errorf("duplicate: got %v, want EIO", r.Errno)
	}

	k.Send(fuse.OpInterrupt, 0, fstest.U64(uint64(id)))
	if r := k.Wait(id); r.Errno != fuse.EINTR {
		t.Errorf("original: got %v, want EINTR", r.Errno)
	}
}

func TestSessionRestartedRead(t *testing.T) {
	k := fstest.Start(t, &hookFS{}, nil, proto731)
	defer k.Stop()

	k.Dev.Fail(&os.PathError{Op: "read", Path: "/dev/fuse", Err: syscall.ENOENT})
	if r := k.Do(fuse.OpGetattr, 42, getattrIn()); r.Errno != 0 || r.Attr().Inode != 42 {
		t.Errorf("getattr after a restarted read: errno %v", r.Errno)
	}
	select {
	case <-k.Done():
		t.Fatalf("session ended: %v", k.Err())
	default:
	}
}

func TestSessionTrace(t *testing.T) {
	k := fstest.Start(t, &hookFS{}, &fs.Config{Trace: true}, proto731)
	defer k.Stop()

	if r := k.Do(fuse.OpGetattr, 1, getattrIn()); r.Errno != 0 {
		t.Errorf("errno %v", r.Errno)
	}
	if r := k.Do(fuse.OpLookup, 1, fstest.CString("missing")); r.Errno != fuse.ENOSYS {
		t.Errorf("got %v, want ENOSYS", r.Errno)
	}
}

func TestSessionRunTwice(t *testing.T) {
	k := fstest.Start(t, &hookFS{}, nil, proto731)
	if err := k.Session.Run(context.Background()); err == nil {
		t.Error("second Run succeeded")
	}
	k.Stop()
}

func TestSessionInvalidate(t *testing.T) {
	k := fstest.Start(t, &hookFS{}, nil, proto731)
	defer k.Stop()
	if err := k.Session.InvalidateEntry(1, "name"); err != nil {
		t.Fatal(err)
	}
	msg := <-k.Dev.Replies()
	if len(msg) != 16+16+len("name")+1 {
		t.Errorf("notification is %d bytes", len(msg))
	}

	old := fstest.Start(t, &hookFS{}, nil, fuse.Protocol{Major: 7, Minor: 11})
	defer old.Stop()
	if err := old.Session.InvalidateNode(1, 0, -1); err != fuse.ENOSYS {
		t.Errorf("got %v, want ENOSYS", err)
	}
}

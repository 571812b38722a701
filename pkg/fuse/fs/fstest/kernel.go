// See the file LICENSE for copyright and licensing information.

package fstest

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kurafs/kfuse/pkg/fuse"
	"github.com/kurafs/kfuse/pkg/fuse/fs"
)

// Timeout bounds every wait for a reply or for the session to stop.
var Timeout = 5 * time.Second

// Message builds a kernel request: the 40-byte in-header followed by
// payload. The length field covers everything.
func Message(op fuse.Opcode, id fuse.RequestID, node fuse.NodeID, payload ...[]byte) []byte {
	var b []byte
	b = append(b, make([]byte, 40)...)
	for _, p := range payload {
		b = append(b, p...)
	}
	binary.LittleEndian.PutUint32(b[0:], uint32(len(b)))
	binary.LittleEndian.PutUint32(b[4:], uint32(op))
	binary.LittleEndian.PutUint64(b[8:], uint64(id))
	binary.LittleEndian.PutUint64(b[16:], uint64(node))
	return b
}

func U32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func U64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// CString returns s NUL-terminated.
func CString(s string) []byte {
	return append([]byte(s), 0)
}

// Zeros returns n zero bytes, for padding and unused fields.
func Zeros(n int) []byte {
	return make([]byte, n)
}

// A Reply is a decoded reply message.
type Reply struct {
	Len     uint32
	Errno   fuse.Errno
	ID      fuse.RequestID
	Payload []byte
}

func parseReply(t testing.TB, msg []byte) *Reply {
	t.Helper()
	if len(msg) < 16 {
		t.Fatalf("reply of %d bytes is shorter than the out header", len(msg))
	}
	r := &Reply{
		Len:     binary.LittleEndian.Uint32(msg[0:]),
		Errno:   fuse.Errno(-int32(binary.LittleEndian.Uint32(msg[4:]))),
		ID:      fuse.RequestID(binary.LittleEndian.Uint64(msg[8:])),
		Payload: msg[16:],
	}
	if int(r.Len) != len(msg) {
		t.Errorf("reply %v: length field %d, message is %d bytes", r.ID, r.Len, len(msg))
	}
	return r
}

func (r *Reply) Uint32(off int) uint32 {
	return binary.LittleEndian.Uint32(r.Payload[off:])
}

func (r *Reply) Uint64(off int) uint64 {
	return binary.LittleEndian.Uint64(r.Payload[off:])
}

// Attr is the part of fuse_attr tests look at.
type Attr struct {
	Inode uint64
	Size  uint64
	Mode  uint32
	Nlink uint32
	Uid   uint32
	Gid   uint32
}

func (r *Reply) attrAt(off int) Attr {
	return Attr{
		Inode: r.Uint64(off),
		Size:  r.Uint64(off + 8),
		Mode:  r.Uint32(off + 60),
		Nlink: r.Uint32(off + 64),
		Uid:   r.Uint32(off + 68),
		Gid:   r.Uint32(off + 72),
	}
}

// EntryNode returns the node ID of an entry reply.
func (r *Reply) EntryNode() fuse.NodeID {
	return fuse.NodeID(r.Uint64(0))
}

// EntryAttr returns the attributes of an entry reply.
func (r *Reply) EntryAttr() Attr {
	return r.attrAt(40)
}

// Attr returns the attributes of a getattr or setattr reply.
func (r *Reply) Attr() Attr {
	return r.attrAt(16)
}

// Handle returns the file handle of an open reply.
func (r *Reply) Handle() fuse.HandleID {
	return fuse.HandleID(r.Uint64(0))
}

// A Dirent is one entry of a readdir reply.
type Dirent struct {
	Inode  uint64
	Offset uint64
	Type   fuse.DirentType
	Name   string
}

// Dirents parses a readdir reply.
func (r *Reply) Dirents() []Dirent {
	var out []Dirent
	b := r.Payload
	for len(b) >= 24 {
		namelen := int(binary.LittleEndian.Uint32(b[16:]))
		d := Dirent{
			Inode:  binary.LittleEndian.Uint64(b[0:]),
			Offset: binary.LittleEndian.Uint64(b[8:]),
			Type:   fuse.DirentType(binary.LittleEndian.Uint32(b[20:])),
			Name:   string(b[24 : 24+namelen]),
		}
		out = append(out, d)
		b = b[fuse.DirentSize(d.Name):]
	}
	return out
}

// Kernel drives a Session over a Device.
type Kernel struct {
	t       testing.TB
	Dev     *Device
	Session *fs.Session

	// Init is the reply to the INIT handshake done by Start.
	Init *Reply

	nextID uint64
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	mu      sync.Mutex
	pending map[fuse.RequestID]*Reply
}

// New starts filesys without sending INIT.
func New(t testing.TB, filesys fs.FileSystem, config *fs.Config) *Kernel {
	t.Helper()
	dev := NewDevice()
	k := &Kernel{
		t:       t,
		Dev:     dev,
		Session: fs.New(fuse.NewChannel(dev), filesys, config),
		nextID:  100,
		done:    make(chan struct{}),
		pending: make(map[fuse.RequestID]*Reply),
	}
	ctx, cancel := context.WithCancel(context.Background())
	k.cancel = cancel
	go func() {
		k.err = k.Session.Run(ctx)
		close(k.done)
	}()
	return k
}

// Start starts filesys and completes INIT as a kernel speaking proto.
func Start(t testing.TB, filesys fs.FileSystem, config *fs.Config, proto fuse.Protocol) *Kernel {
	t.Helper()
	k := New(t, filesys, config)
	k.Init = k.Do(fuse.OpInit, 0, U32(proto.Major), U32(proto.Minor), U32(128*1024), U32(0xffffffff))
	if k.Init.Errno != 0 {
		t.Fatalf("INIT failed: %v", k.Init.Errno)
	}
	return k
}

// NextID allocates a request ID.
func (k *Kernel) NextID() fuse.RequestID {
	return fuse.RequestID(atomic.AddUint64(&k.nextID, 1))
}

// Send queues a request and returns its ID without waiting.
func (k *Kernel) Send(op fuse.Opcode, node fuse.NodeID, payload ...[]byte) fuse.RequestID {
	id := k.NextID()
	k.Dev.Push(Message(op, id, node, payload...))
	return id
}

// Do sends a request and waits for its reply.
func (k *Kernel) Do(op fuse.Opcode, node fuse.NodeID, payload ...[]byte) *Reply {
	k.t.Helper()
	return k.Wait(k.Send(op, node, payload...))
}

// Wait returns the reply to id, failing the test after Timeout.
func (k *Kernel) Wait(id fuse.RequestID) *Reply {
	k.t.Helper()
	k.mu.Lock()
	defer k.mu.Unlock()
	timer := time.NewTimer(Timeout)
	defer timer.Stop()
	for {
		if r, ok := k.pending[id]; ok {
			delete(k.pending, id)
			return r
		}
		select {
		case msg := <-k.Dev.Replies():
			r := parseReply(k.t, msg)
			if _, dup := k.pending[r.ID]; dup {
				k.t.Errorf("second reply to request %v", r.ID)
			}
			k.pending[r.ID] = r
		case <-timer.C:
			k.t.Fatalf("no reply to request %v after %v", id, Timeout)
			return nil
		}
	}
}

// Quiet fails the test if any reply arrives within d.
func (k *Kernel) Quiet(d time.Duration) {
	k.t.Helper()
	select {
	case msg := <-k.Dev.Replies():
		r := parseReply(k.t, msg)
		k.t.Errorf("unexpected reply to %v (errno %v)", r.ID, r.Errno)
	case <-time.After(d):
	}
}

// Done is closed when Session.Run returns.
func (k *Kernel) Done() <-chan struct{} {
	return k.done
}

// Err returns what Session.Run returned. Call it after Done is closed.
func (k *Kernel) Err() error {
	<-k.done
	return k.err
}

// Stop cancels the session and returns what Run returned.
func (k *Kernel) Stop() error {
	k.t.Helper()
	k.cancel()
	select {
	case <-k.done:
		return k.err
	case <-time.After(Timeout + fs.DefaultGracePeriod):
		k.t.Fatal("session did not stop")
		return nil
	}
}

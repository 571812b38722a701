// See the file LICENSE for copyright and licensing information.

package fs

import (
	"errors"
	"sync/atomic"

	"github.com/kurafs/kfuse/pkg/fuse"
)

// ErrAlreadyReplied is returned by a reply sink that has already been
// completed. Nothing is sent.
var ErrAlreadyReplied = errors.New("fs: request already replied to")

// replier is the single-use core shared by every sink. send is called at
// most once, with either a response or an error.
type replier struct {
	hdr  *fuse.Header
	send func(resp fuse.Response, err error) error
	used int32
}

func (r *replier) claim() bool {
	return atomic.CompareAndSwapInt32(&r.used, 0, 1)
}

func (r *replier) replied() bool {
	return atomic.LoadInt32(&r.used) != 0
}

func (r *replier) respond(resp fuse.Response) error {
	if !r.claim() {
		return ErrAlreadyReplied
	}
	return r.send(resp, nil)
}

// Error completes the request with err. The errno is picked as
// described on FileSystem.
func (r *replier) Error(err error) error {
	if !r.claim() {
		return ErrAlreadyReplied
	}
	if err == nil {
		err = fuse.DefaultErrno
	}
	return r.send(nil, err)
}

// Header returns the header of the request the sink answers.
func (r *replier) Header() *fuse.Header {
	return r.hdr
}

// ReplyEmpty answers requests whose success carries no payload.
type ReplyEmpty struct{ *replier }

func (r *ReplyEmpty) Ok() error {
	return r.respond(fuse.EmptyResponse{})
}

// ReplyEntry answers requests that name a node.
type ReplyEntry struct{ *replier }

func (r *ReplyEntry) Entry(resp *fuse.EntryResponse) error {
	return r.respond(resp)
}

// ReplyAttr answers getattr and setattr.
type ReplyAttr struct{ *replier }

func (r *ReplyAttr) Attr(attr fuse.Attr) error {
	return r.respond(&fuse.AttrResponse{Attr: attr})
}

// ReplyData answers read and readlink. Data longer than the request
// asked for is truncated by the kernel; Read implementations should not
// rely on that.
type ReplyData struct{ *replier }

func (r *ReplyData) Data(b []byte) error {
	return r.respond(fuse.DataResponse(b))
}

// ReplyOpen answers open and opendir.
type ReplyOpen struct{ *replier }

func (r *ReplyOpen) Opened(handle fuse.HandleID, flags fuse.OpenResponseFlags) error {
	return r.respond(&fuse.OpenResponse{Handle: handle, Flags: flags})
}

// ReplyWrite answers write with the number of bytes accepted.
type ReplyWrite struct{ *replier }

func (r *ReplyWrite) Written(n int) error {
	return r.respond(&fuse.WriteResponse{Size: n})
}

// ReplyStatfs answers statfs.
type ReplyStatfs struct{ *replier }

func (r *ReplyStatfs) Statfs(resp *fuse.StatfsResponse) error {
	return r.respond(resp)
}

// ReplyXattr answers getxattr and listxattr. The kernel first probes
// with a zero size to learn how large a buffer to allocate.
type ReplyXattr struct {
	*replier
	size uint32
}

// Value replies with b, or with its length when the request was a size
// probe. A value larger than the kernel's buffer fails with ERANGE.
func (r *ReplyXattr) Value(b []byte) error {
	switch {
	case r.size == 0:
		return r.respond(&fuse.XattrSizeResponse{Size: uint32(len(b))})
	case uint32(len(b)) > r.size:
		return r.Error(fuse.ERANGE)
	}
	return r.respond(fuse.DataResponse(b))
}

// Names replies to listxattr with the NUL-separated list of names.
func (r *ReplyXattr) Names(names []string) error {
	var b []byte
	for _, name := range names {
		b = append(b, name...)
		b = append(b, 0)
	}
	return r.Value(b)
}

// ReplyCreate answers create with the new entry and its open handle.
type ReplyCreate struct{ *replier }

func (r *ReplyCreate) Created(entry fuse.EntryResponse, handle fuse.HandleID, flags fuse.OpenResponseFlags) error {
	return r.respond(&fuse.CreateResponse{
		EntryResponse: entry,
		OpenResponse:  fuse.OpenResponse{Handle: handle, Flags: flags},
	})
}

// ReplyLock answers getlk with the conflicting lock, or one of type
// F_UNLCK when there is none.
type ReplyLock struct{ *replier }

func (r *ReplyLock) Locked(lock fuse.FileLock) error {
	return r.respond(&fuse.LockResponse{Lock: lock})
}

// ReplyBmap answers bmap.
type ReplyBmap struct{ *replier }

func (r *ReplyBmap) Block(block uint64) error {
	return r.respond(&fuse.BmapResponse{Block: block})
}

// ReplyDirectory collects directory entries for readdir and sends them in
// one reply.
type ReplyDirectory struct {
	*replier
	max  int
	data []byte
}

// Add appends an entry. It returns false, leaving the buffer unchanged,
// when the entry does not fit the size the kernel asked for; the caller
// then stops and replies with Ok. offset is the cookie the kernel sends
// back to continue after this entry.
func (r *ReplyDirectory) Add(inode uint64, name string, typ fuse.DirentType, offset uint64) bool {
	if len(r.data)+fuse.DirentSize(name) > r.max {
		return false
	}
	r.data = fuse.AppendDirent(r.data, fuse.Dirent{
		Inode:  inode,
		Type:   typ,
		Name:   name,
		Offset: offset,
	})
	return true
}

// Ok sends the entries added so far. An empty reply marks the end of the
// directory.
func (r *ReplyDirectory) Ok() error {
	return r.respond(fuse.DataResponse(r.data))
}


// See the file LICENSE for copyright and licensing information.

package fs

import (
	"context"

	"github.com/kurafs/kfuse/pkg/fuse"
)

// A FileSystem answers the requests of a mounted filesystem. The Session
// calls its methods concurrently, one goroutine per request; an
// implementation synchronizes its own state.
//
// Every method receives a context cancelled when the kernel interrupts
// the request or the Session shuts down. Methods with a reply sink must
// complete it exactly once, either with its success operation or with
// Error. Returning a non-nil error without touching the sink replies with
// that error. Errors implementing fuse.ErrorNumber pick the errno; any
// other error is reported as EIO.
//
// Embed NotImplemented to answer ENOSYS for the methods a filesystem
// does not support.
type FileSystem interface {
	// Init is called once, inline, when the kernel opens the session.
	// resp is prefilled from the negotiated protocol and the Session
	// Config; the filesystem may adjust it.
	Init(ctx context.Context, req *fuse.InitRequest, resp *fuse.InitResponse) error
	// Destroy is called when the kernel tears the session down.
	Destroy(ctx context.Context, req *fuse.DestroyRequest) error
	// Interrupt is advisory: the target request's context has already
	// been cancelled.
	Interrupt(ctx context.Context, req *fuse.InterruptRequest) error

	Lookup(ctx context.Context, req *fuse.LookupRequest, reply *ReplyEntry) error
	// Forget drops N lookups of the node. It has no reply.
	Forget(ctx context.Context, req *fuse.ForgetRequest) error
	Getattr(ctx context.Context, req *fuse.GetattrRequest, reply *ReplyAttr) error
	Setattr(ctx context.Context, req *fuse.SetattrRequest, reply *ReplyAttr) error
	Readlink(ctx context.Context, req *fuse.ReadlinkRequest, reply *ReplyData) error
	Mknod(ctx context.Context, req *fuse.MknodRequest, reply *ReplyEntry) error
	Mkdir(ctx context.Context, req *fuse.MkdirRequest, reply *ReplyEntry) error
	Unlink(ctx context.Context, req *fuse.RemoveRequest, reply *ReplyEmpty) error
	Rmdir(ctx context.Context, req *fuse.RemoveRequest, reply *ReplyEmpty) error
	Symlink(ctx context.Context, req *fuse.SymlinkRequest, reply *ReplyEntry) error
	Rename(ctx context.Context, req *fuse.RenameRequest, reply *ReplyEmpty) error
	Link(ctx context.Context, req *fuse.LinkRequest, reply *ReplyEntry) error

	Open(ctx context.Context, req *fuse.OpenRequest, reply *ReplyOpen) error
	Read(ctx context.Context, req *fuse.ReadRequest, reply *ReplyData) error
	Write(ctx context.Context, req *fuse.WriteRequest, reply *ReplyWrite) error
	Flush(ctx context.Context, req *fuse.FlushRequest, reply *ReplyEmpty) error
	Release(ctx context.Context, req *fuse.ReleaseRequest, reply *ReplyEmpty) error
	Fsync(ctx context.Context, req *fuse.FsyncRequest, reply *ReplyEmpty) error

	Opendir(ctx context.Context, req *fuse.OpenRequest, reply *ReplyOpen) error
	Readdir(ctx context.Context, req *fuse.ReadRequest, reply *ReplyDirectory) error
	Releasedir(ctx context.Context, req *fuse.ReleaseRequest, reply *ReplyEmpty) error
	Fsyncdir(ctx context.Context, req *fuse.FsyncRequest, reply *ReplyEmpty) error

	Statfs(ctx context.Context, req *fuse.StatfsRequest, reply *ReplyStatfs) error
	Setxattr(ctx context.Context, req *fuse.SetxattrRequest, reply *ReplyEmpty) error
	Getxattr(ctx context.Context, req *fuse.GetxattrRequest, reply *ReplyXattr) error
	Listxattr(ctx context.Context, req *fuse.ListxattrRequest, reply *ReplyXattr) error
	Removexattr(ctx context.Context, req *fuse.RemovexattrRequest, reply *ReplyEmpty) error
	Access(ctx context.Context, req *fuse.AccessRequest, reply *ReplyEmpty) error
	Create(ctx context.Context, req *fuse.CreateRequest, reply *ReplyCreate) error
	Getlk(ctx context.Context, req *fuse.LockRequest, reply *ReplyLock) error
	Setlk(ctx context.Context, req *fuse.LockRequest, reply *ReplyEmpty) error
	Bmap(ctx context.Context, req *fuse.BmapRequest, reply *ReplyBmap) error
}

// NotImplemented answers every request with ENOSYS, except Init, Destroy,
// Interrupt and Forget which succeed silently.
type NotImplemented struct{}

var _ FileSystem = NotImplemented{}

func (NotImplemented) Init(ctx context.Context, req *fuse.InitRequest, resp *fuse.InitResponse) error {
	return nil
}

func (NotImplemented) Destroy(ctx context.Context, req *fuse.DestroyRequest) error {
	return nil
}

func (NotImplemented) Interrupt(ctx context.Context, req *fuse.InterruptRequest) error {
	return nil
}

func (NotImplemented) Forget(ctx context.Context, req *fuse.ForgetRequest) error {
	return nil
}

func (NotImplemented) Lookup(ctx context.Context, req *fuse.LookupRequest, reply *ReplyEntry) error {
	return fuse.ENOSYS
}

func (NotImplemented) Getattr(ctx context.Context, req *fuse.GetattrRequest, reply *ReplyAttr) error {
	return fuse.ENOSYS
}

func (NotImplemented) Setattr(ctx context.Context, req *fuse.SetattrRequest, reply *ReplyAttr) error {
	return fuse.ENOSYS
}

func (NotImplemented) Readlink(ctx context.Context, req *fuse.ReadlinkRequest, reply *ReplyData) error {
	return fuse.ENOSYS
}

func (NotImplemented) Mknod(ctx context.Context, req *fuse.MknodRequest, reply *ReplyEntry) error {
	return fuse.ENOSYS
}

func (NotImplemented) Mkdir(ctx context.Context, req *fuse.MkdirRequest, reply *ReplyEntry) error {
	return fuse.ENOSYS
}

func (NotImplemented) Unlink(ctx context.Context, req *fuse.RemoveRequest, reply *ReplyEmpty) error {
	return fuse.ENOSYS
}

func (NotImplemented) Rmdir(ctx context.Context, req *fuse.RemoveRequest, reply *ReplyEmpty) error {
	return fuse.ENOSYS
}

func (NotImplemented) Symlink(ctx context.Context, req *fuse.SymlinkRequest, reply *ReplyEntry) error {
	return fuse.ENOSYS
}

func (NotImplemented) Rename(ctx context.Context, req *fuse.RenameRequest, reply *ReplyEmpty) error {
	return fuse.ENOSYS
}

func (NotImplemented) Link(ctx context.Context, req *fuse.LinkRequest, reply *ReplyEntry) error {
	return fuse.ENOSYS
}

func (NotImplemented) Open(ctx context.Context, req *fuse.OpenRequest, reply *ReplyOpen) error {
	return fuse.ENOSYS
}

func (NotImplemented) Read(ctx context.Context, req *fuse.ReadRequest, reply *ReplyData) error {
	return fuse.ENOSYS
}

func (NotImplemented) Write(ctx context.Context, req *fuse.WriteRequest, reply *ReplyWrite) error {
	return fuse.ENOSYS
}

func (NotImplemented) Flush(ctx context.Context, req *fuse.FlushRequest, reply *ReplyEmpty) error {
	return fuse.ENOSYS
}

func (NotImplemented) Release(ctx context.Context, req *fuse.ReleaseRequest, reply *ReplyEmpty) error {
	return fuse.ENOSYS
}

func (NotImplemented) Fsync(ctx context.Context, req *fuse.FsyncRequest, reply *ReplyEmpty) error {
	return fuse.ENOSYS
}

func (NotImplemented) Opendir(ctx context.Context, req *fuse.OpenRequest, reply *ReplyOpen) error {
	return fuse.ENOSYS
}

func (NotImplemented) Readdir(ctx context.Context, req *fuse.ReadRequest, reply *ReplyDirectory) error {
	return fuse.ENOSYS
}

func (NotImplemented) Releasedir(ctx context.Context, req *fuse.ReleaseRequest, reply *ReplyEmpty) error {
	return fuse.ENOSYS
}

func (NotImplemented) Fsyncdir(ctx context.Context, req *fuse.FsyncRequest, reply *ReplyEmpty) error {
	return fuse.ENOSYS
}

func (NotImplemented) Statfs(ctx context.Context, req *fuse.StatfsRequest, reply *ReplyStatfs) error {
	return fuse.ENOSYS
}

func (NotImplemented) Setxattr(ctx context.Context, req *fuse.SetxattrRequest, reply *ReplyEmpty) error {
	return fuse.ENOSYS
}

func (NotImplemented) Getxattr(ctx context.Context, req *fuse.GetxattrRequest, reply *ReplyXattr) error {
	return fuse.ENOSYS
}

func (NotImplemented) Listxattr(ctx context.Context, req *fuse.ListxattrRequest, reply *ReplyXattr) error {
	return fuse.ENOSYS
}

func (NotImplemented) Removexattr(ctx context.Context, req *fuse.RemovexattrRequest, reply *ReplyEmpty) error {
	return fuse.ENOSYS
}

func (NotImplemented) Access(ctx context.Context, req *fuse.AccessRequest, reply *ReplyEmpty) error {
	return fuse.ENOSYS
}

func (NotImplemented) Create(ctx context.Context, req *fuse.CreateRequest, reply *ReplyCreate) error {
	return fuse.ENOSYS
}

func (NotImplemented) Getlk(ctx context.Context, req *fuse.LockRequest, reply *ReplyLock) error {
	return fuse.ENOSYS
}

func (NotImplemented) Setlk(ctx context.Context, req *fuse.LockRequest, reply *ReplyEmpty) error {
	return fuse.ENOSYS
}

func (NotImplemented) Bmap(ctx context.Context, req *fuse.BmapRequest, reply *ReplyBmap) error {
	return fuse.ENOSYS
}

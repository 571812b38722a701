// See the file LICENSE for copyright and licensing information.

package fs

import (
	"context"

	"github.com/kurafs/kfuse/pkg/fuse"
)

// dispatch calls the FileSystem method for req with the sink of u.
func (s *Session) dispatch(ctx context.Context, u *unit, req fuse.Request) error {
	switch r := req.(type) {
	case *fuse.ForgetRequest:
		return s.fs.Forget(ctx, r)

	case *fuse.BatchForgetRequest:
		var first error
		for _, item := range r.Forget {
			forget := &fuse.ForgetRequest{Header: r.Header, N: item.N}
			forget.Node = item.Node
			if err := s.fs.Forget(ctx, forget); err != nil && first == nil {
				first = err
			}
		}
		return first

	case *fuse.LookupRequest:
		return s.fs.Lookup(ctx, r, &ReplyEntry{u.reply})

	case *fuse.GetattrRequest:
		return s.fs.Getattr(ctx, r, &ReplyAttr{u.reply})

	case *fuse.SetattrRequest:
		return s.fs.Setattr(ctx, r, &ReplyAttr{u.reply})

	case *fuse.ReadlinkRequest:
		return s.fs.Readlink(ctx, r, &ReplyData{u.reply})

	case *fuse.MknodRequest:
		return s.fs.Mknod(ctx, r, &ReplyEntry{u.reply})

	case *fuse.MkdirRequest:
		return s.fs.Mkdir(ctx, r, &ReplyEntry{u.reply})

	case *fuse.RemoveRequest:
		if r.Dir {
			return s.fs.Rmdir(ctx, r, &ReplyEmpty{u.reply})
		}
		return s.fs.Unlink(ctx, r, &ReplyEmpty{u.reply})

	case *fuse.SymlinkRequest:
		return s.fs.Symlink(ctx, r, &ReplyEntry{u.reply})

	case *fuse.RenameRequest:
		return s.fs.Rename(ctx, r, &ReplyEmpty{u.reply})

	case *fuse.LinkRequest:
		return s.fs.Link(ctx, r, &ReplyEntry{u.reply})

	case *fuse.OpenRequest:
		if r.Dir {
			return s.fs.Opendir(ctx, r, &ReplyOpen{u.reply})
		}
		return s.fs.Open(ctx, r, &ReplyOpen{u.reply})

	case *fuse.ReadRequest:
		if r.Dir {
			return s.fs.Readdir(ctx, r, &ReplyDirectory{replier: u.reply, max: r.Size})
		}
		return s.fs.Read(ctx, r, &ReplyData{u.reply})

	case *fuse.WriteRequest:
		return s.fs.Write(ctx, r, &ReplyWrite{u.reply})

	case *fuse.StatfsRequest:
		return s.fs.Statfs(ctx, r, &ReplyStatfs{u.reply})

	case *fuse.ReleaseRequest:
		if r.Dir {
			return s.fs.Releasedir(ctx, r, &ReplyEmpty{u.reply})
		}
		return s.fs.Release(ctx, r, &ReplyEmpty{u.reply})

	case *fuse.FsyncRequest:
		if r.Dir {
			return s.fs.Fsyncdir(ctx, r, &ReplyEmpty{u.reply})
		}
		return s.fs.Fsync(ctx, r, &ReplyEmpty{u.reply})

	case *fuse.SetxattrRequest:
		return s.fs.Setxattr(ctx, r, &ReplyEmpty{u.reply})

	case *fuse.GetxattrRequest:
		return s.fs.Getxattr(ctx, r, &ReplyXattr{replier: u.reply, size: r.Size})

	case *fuse.ListxattrRequest:
		return s.fs.Listxattr(ctx, r, &ReplyXattr{replier: u.reply, size: r.Size})

	case *fuse.RemovexattrRequest:
		return s.fs.Removexattr(ctx, r, &ReplyEmpty{u.reply})

	case *fuse.FlushRequest:
		return s.fs.Flush(ctx, r, &ReplyEmpty{u.reply})

	case *fuse.LockRequest:
		if r.Opcode == fuse.OpGetlk {
			return s.fs.Getlk(ctx, r, &ReplyLock{u.reply})
		}
		return s.fs.Setlk(ctx, r, &ReplyEmpty{u.reply})

	case *fuse.AccessRequest:
		return s.fs.Access(ctx, r, &ReplyEmpty{u.reply})

	case *fuse.CreateRequest:
		return s.fs.Create(ctx, r, &ReplyCreate{u.reply})

	case *fuse.BmapRequest:
		return s.fs.Bmap(ctx, r, &ReplyBmap{u.reply})
	}
	return fuse.ENOSYS
}

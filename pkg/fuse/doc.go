// See the file LICENSE for copyright and licensing information.

// Adapted from Plan 9 from User Space's src/cmd/9pfuse/fuse.c,
// which carries this notice:
//
// The files in this directory are subject to the following license.
//
// The author of this software is Russ Cox.
//
//         Copyright (c) 2006 Russ Cox
//
// Permission to use, copy, modify, and distribute this software for any
// purpose without fee is hereby granted, provided that this entire notice
// is included in all copies of any software which is or includes a copy
// or modification of this software and in all copies of the supporting
// documentation for such software.
//
// THIS SOFTWARE IS BEING PROVIDED "AS IS", WITHOUT ANY EXPRESS OR IMPLIED
// WARRANTY.  IN PARTICULAR, THE AUTHOR MAKES NO REPRESENTATION OR WARRANTY
// OF ANY KIND CONCERNING THE MERCHANTABILITY OF THIS SOFTWARE OR ITS
// FITNESS FOR ANY PARTICULAR PURPOSE.

// Package fuse speaks the Linux FUSE kernel protocol.
//
// It holds the wire layer of a userspace file system: the typed
// requests decoded from /dev/fuse messages (DecodeRequest), the
// replies encoded back (EncodeReply, EncodeError), the negotiated
// Protocol that selects version-dependent layouts, and the Channel
// that moves whole messages to and from the kernel device. Mount and
// Unmount attach a Channel to a directory through fusermount.
//
// Most file systems do not use this package directly but implement
// fs.FileSystem and run an fs.Session on the Channel, which answers
// INIT, dispatches each request on its own goroutine and handles
// interrupts and shutdown.
//
// Service Methods
//
// The methods of fs.FileSystem have the general form
//
//	Op(ctx context.Context, req *OpRequest, resp *ReplyOp) error
//
// where Op is the name of a FUSE operation. Op reads request
// parameters from req and answers through resp. Operations decoded
// from a pair of opcodes (unlink/rmdir, open/opendir, read/readdir,
// release/releasedir, fsync/fsyncdir) share one request type with a
// Dir field.
//
// Multiple goroutines may call service methods simultaneously; the
// methods being called are responsible for appropriate
// synchronization.
//
// The operation must not hold on to the request after replying,
// including any []byte fields such as WriteRequest.Data or
// SetxattrRequest.Xattr.
//
// Errors
//
// Operations can return errors. The FUSE interface can only
// communicate POSIX errno error numbers to file system clients, the
// message is not visible to file system clients. The returned error
// can implement ErrorNumber to control the errno returned; a
// syscall.Errno is used as is. Anything else becomes a generic errno
// (EIO).
//
// Interrupted Operations
//
// In some file systems, some operations
// may take an undetermined amount of time.  For example, a Read waiting for
// a network message or a matching Write might wait indefinitely.  If the request
// is interrupted or the session shuts down, the context will be cancelled.
// Blocking operations should select on a receive from ctx.Done() and attempt to
// abort the operation early if the receive succeeds (meaning the channel is closed).
// Returning ctx.Err() or EINTR then answers the request with EINTR.
//
// Authentication
//
// All requests types embed a Header, meaning that the method can
// inspect req.Pid, req.Uid, and req.Gid as necessary to implement
// permission checking. The kernel FUSE layer normally prevents other
// users from accessing the FUSE file system (to change this, see
// AllowOther, AllowRoot), but does not enforce access modes (to
// change this, see DefaultPermissions).
//
// Mount Options
//
// Behavior and metadata of the mounted file system can be changed by
// passing MountOption values to Mount.
package fuse

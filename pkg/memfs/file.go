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
// limitations under the License.

package memfs

import (
	"context"
	"os"
	"time"

	"github.com/kurafs/kfuse/pkg/fuse"
	"github.com/kurafs/kfuse/pkg/fuse/fs"
)

func (f *FS) Getattr(ctx context.Context, req *fuse.GetattrRequest, reply *fs.ReplyAttr) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.nodes[req.Node]
	if !ok {
		return fuse.ESTALE
	}
	return reply.Attr(f.attrOf(n))
}

func (f *FS) Setattr(ctx context.Context, req *fuse.SetattrRequest, reply *fs.ReplyAttr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[req.Node]
	if !ok {
		return fuse.ESTALE
	}

	now := time.Now()
	valid := req.Valid
	if valid.Size() {
		if !n.attr.Mode.IsRegular() {
			return fuse.EISDIR
		}
		n.truncate(req.Size)
		n.attr.Mtime = now
	}
	if valid.Mode() {
		const special = os.ModeSetuid | os.ModeSetgid | os.ModeSticky
		n.attr.Mode = n.attr.Mode&os.ModeType | req.Mode&(os.ModePerm|special)
	}
	if valid.Uid() {
		n.attr.Uid = req.Uid
	}
	if valid.Gid() {
		n.attr.Gid = req.Gid
	}
	switch {
	case valid.AtimeNow():
		n.attr.Atime = now
	case valid.Atime():
		n.attr.Atime = req.Atime
	}
	switch {
	case valid.MtimeNow():
		n.attr.Mtime = now
	case valid.Mtime():
		n.attr.Mtime = req.Mtime
	}
	n.attr.Ctime = now
	f.dirty = true
	return reply.Attr(f.attrOf(n))
}

func (n *node) truncate(size uint64) {
	switch {
	case size <= uint64(len(n.data)):
		n.data = n.data[:size]
	default:
		n.data = append(n.data, make([]byte, int(size)-len(n.data))...)
	}
}

func (f *FS) Readlink(ctx context.Context, req *fuse.ReadlinkRequest, reply *fs.ReplyData) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.nodes[req.Node]
	if !ok {
		return fuse.ESTALE
	}
	if n.attr.Mode&os.ModeSymlink == 0 {
		return fuse.EINVAL
	}
	return reply.Data([]byte(n.target))
}

func (f *FS) Open(ctx context.Context, req *fuse.OpenRequest, reply *fs.ReplyOpen) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[req.Node]
	if !ok {
		return fuse.ESTALE
	}
	if n.isDir() {
		return fuse.EISDIR
	}
	if req.Flags&fuse.OpenTruncate != 0 && !req.Flags.IsReadOnly() {
		n.truncate(0)
		n.attr.Mtime = time.Now()
		f.dirty = true
	}
	id := f.newHandle(&handle{node: n.id, flags: req.Flags})
	return reply.Opened(id, 0)
}

func (f *FS) Create(ctx context.Context, req *fuse.CreateRequest, reply *fs.ReplyCreate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.create(&req.Header, req.Name, req.Mode)
	if err != nil {
		return err
	}
	id := f.newHandle(&handle{node: n.id, flags: req.Flags})
	return reply.Created(*f.entryOf(n), id, 0)
}

func (f *FS) Read(ctx context.Context, req *fuse.ReadRequest, reply *fs.ReplyData) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.nodes[req.Node]
	if !ok {
		return fuse.ESTALE
	}
	if req.Offset < 0 {
		return fuse.EINVAL
	}
	if req.Offset >= int64(len(n.data)) {
		return reply.Data(nil)
	}
	end := req.Offset + int64(req.Size)
	if end > int64(len(n.data)) {
		end = int64(len(n.data))
	}
	return reply.Data(n.data[req.Offset:end])
}

func (f *FS) Write(ctx context.Context, req *fuse.WriteRequest, reply *fs.ReplyWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[req.Node]
	if !ok {
		return fuse.ESTALE
	}
	if !n.attr.Mode.IsRegular() || req.Offset < 0 {
		return fuse.EINVAL
	}
	if end := uint64(req.Offset) + uint64(len(req.Data)); end > uint64(len(n.data)) {
		n.truncate(end)
	}
	copy(n.data[req.Offset:], req.Data)
	now := time.Now()
	n.attr.Mtime = now
	n.attr.Ctime = now
	f.dirty = true
	return reply.Written(len(req.Data))
}

func (f *FS) Flush(ctx context.Context, req *fuse.FlushRequest, reply *fs.ReplyEmpty) error {
	if err := f.checkpoint(); err != nil {
		return err
	}
	return reply.Ok()
}

func (f *FS) Release(ctx context.Context, req *fuse.ReleaseRequest, reply *fs.ReplyEmpty) error {
	f.mu.Lock()
	delete(f.handles, req.Handle)
	f.mu.Unlock()
	return reply.Ok()
}

func (f *FS) Fsync(ctx context.Context, req *fuse.FsyncRequest, reply *fs.ReplyEmpty) error {
	if err := f.checkpoint(); err != nil {
		return err
	}
	return reply.Ok()
}

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

	"github.com/google/btree"
	"github.com/kurafs/kfuse/pkg/fuse"
	"github.com/kurafs/kfuse/pkg/fuse/fs"
)

func (f *FS) Lookup(ctx context.Context, req *fuse.LookupRequest, reply *fs.ReplyEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir, err := f.lookupDir(req.Node)
	if err != nil {
		return err
	}
	id, ok := dir.get(req.Name)
	if !ok {
		return fuse.ENOENT
	}
	return reply.Entry(f.entryOf(f.nodes[id]))
}

// create adds a new node called name to the directory parent.
func (f *FS) create(hdr *fuse.Header, name string, mode os.FileMode) (*node, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	dir, err := f.lookupDir(hdr.Node)
	if err != nil {
		return nil, err
	}
	if _, ok := dir.get(name); ok {
		return nil, fuse.EEXIST
	}
	n := f.newNode(hdr, mode)
	f.link(dir, name, n)
	return n, nil
}

func (f *FS) Mknod(ctx context.Context, req *fuse.MknodRequest, reply *fs.ReplyEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.create(&req.Header, req.Name, req.Mode)
	if err != nil {
		return err
	}
	n.attr.Rdev = req.Rdev
	return reply.Entry(f.entryOf(n))
}

func (f *FS) Mkdir(ctx context.Context, req *fuse.MkdirRequest, reply *fs.ReplyEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.create(&req.Header, req.Name, os.ModeDir|req.Mode.Perm())
	if err != nil {
		return err
	}
	return reply.Entry(f.entryOf(n))
}

func (f *FS) Symlink(ctx context.Context, req *fuse.SymlinkRequest, reply *fs.ReplyEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.create(&req.Header, req.NewName, os.ModeSymlink|0777)
	if err != nil {
		return err
	}
	n.target = req.Target
	return reply.Entry(f.entryOf(n))
}

func (f *FS) Link(ctx context.Context, req *fuse.LinkRequest, reply *fs.ReplyEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := checkName(req.NewName); err != nil {
		return err
	}
	n, ok := f.nodes[req.OldNode]
	if !ok {
		return fuse.ESTALE
	}
	if n.isDir() {
		return fuse.EPERM
	}
	dir, err := f.lookupDir(req.Node)
	if err != nil {
		return err
	}
	if _, ok := dir.get(req.NewName); ok {
		return fuse.EEXIST
	}
	f.link(dir, req.NewName, n)
	n.attr.Nlink++
	return reply.Entry(f.entryOf(n))
}

// child returns the entry name of dir, under f.mu.
func (f *FS) child(dir *node, name string) (*node, error) {
	id, ok := dir.get(name)
	if !ok {
		return nil, fuse.ENOENT
	}
	return f.nodes[id], nil
}

func (f *FS) Unlink(ctx context.Context, req *fuse.RemoveRequest, reply *fs.ReplyEmpty) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir, err := f.lookupDir(req.Node)
	if err != nil {
		return err
	}
	n, err := f.child(dir, req.Name)
	if err != nil {
		return err
	}
	if n.isDir() {
		return fuse.EISDIR
	}
	f.unlink(dir, req.Name, n)
	return reply.Ok()
}

func (f *FS) Rmdir(ctx context.Context, req *fuse.RemoveRequest, reply *fs.ReplyEmpty) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir, err := f.lookupDir(req.Node)
	if err != nil {
		return err
	}
	n, err := f.child(dir, req.Name)
	if err != nil {
		return err
	}
	if !n.isDir() {
		return fuse.ENOTDIR
	}
	if n.children.Len() > 0 {
		return fuse.ENOTEMPTY
	}
	f.unlink(dir, req.Name, n)
	return reply.Ok()
}

func (f *FS) Rename(ctx context.Context, req *fuse.RenameRequest, reply *fs.ReplyEmpty) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := checkName(req.NewName); err != nil {
		return err
	}
	src, err := f.lookupDir(req.Node)
	if err != nil {
		return err
	}
	dst, err := f.lookupDir(req.NewDir)
	if err != nil {
		return err
	}
	n, err := f.child(src, req.OldName)
	if err != nil {
		return err
	}

	if n.isDir() {
		// A directory cannot move below itself.
		for p := dst; ; p = f.nodes[p.parent] {
			if p.id == n.id {
				return fuse.EINVAL
			}
			if p.id == fuse.RootID {
				break
			}
		}
	}

	if old, err := f.child(dst, req.NewName); err == nil {
		switch {
		case old.id == n.id:
			return reply.Ok()
		case n.isDir() && !old.isDir():
			return fuse.ENOTDIR
		case !n.isDir() && old.isDir():
			return fuse.EISDIR
		case old.isDir() && old.children.Len() > 0:
			return fuse.ENOTEMPTY
		}
		f.unlink(dst, req.NewName, old)
	}

	src.children.Delete(entry{name: req.OldName})
	if n.isDir() {
		src.attr.Nlink--
	}
	f.link(dst, req.NewName, n)
	n.attr.Ctime = dst.attr.Mtime
	src.attr.Mtime = dst.attr.Mtime
	src.attr.Ctime = dst.attr.Mtime
	return reply.Ok()
}

func (f *FS) Opendir(ctx context.Context, req *fuse.OpenRequest, reply *fs.ReplyOpen) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir, err := f.lookupDir(req.Node)
	if err != nil {
		return err
	}

	entries := []fuse.Dirent{
		{Inode: uint64(dir.id), Name: ".", Type: fuse.DT_Dir},
		{Inode: uint64(dir.parent), Name: "..", Type: fuse.DT_Dir},
	}
	dir.children.Ascend(func(it btree.Item) bool {
		e := it.(entry)
		entries = append(entries, fuse.Dirent{
			Inode: uint64(e.node),
			Name:  e.name,
			Type:  fuse.DirentTypeOf(f.nodes[e.node].attr.Mode),
		})
		return true
	})

	id := f.newHandle(&handle{node: dir.id, flags: req.Flags, entries: entries})
	return reply.Opened(id, 0)
}

func (f *FS) Readdir(ctx context.Context, req *fuse.ReadRequest, reply *fs.ReplyDirectory) error {
	f.mu.RLock()
	h, ok := f.handles[req.Handle]
	f.mu.RUnlock()
	if !ok || h.entries == nil {
		return fuse.EBADF
	}
	// Offsets are positions in the opendir snapshot.
	for i := int(req.Offset); i < len(h.entries); i++ {
		e := h.entries[i]
		if !reply.Add(e.Inode, e.Name, e.Type, uint64(i+1)) {
			break
		}
	}
	return reply.Ok()
}

func (f *FS) Releasedir(ctx context.Context, req *fuse.ReleaseRequest, reply *fs.ReplyEmpty) error {
	f.mu.Lock()
	delete(f.handles, req.Handle)
	f.mu.Unlock()
	return reply.Ok()
}

func (f *FS) Fsyncdir(ctx context.Context, req *fuse.FsyncRequest, reply *fs.ReplyEmpty) error {
	if err := f.checkpoint(); err != nil {
		return err
	}
	return reply.Ok()
}

// newHandle registers h under f.mu.
func (f *FS) newHandle(h *handle) fuse.HandleID {
	f.nextHandle++
	f.handles[f.nextHandle] = h
	return f.nextHandle
}

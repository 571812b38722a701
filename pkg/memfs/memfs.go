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

// Package memfs is an in-memory filesystem served over FUSE, optionally
// checkpointed to a bolt database.
package memfs

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/btree"
	"github.com/kurafs/kfuse/pkg/fuse"
	"github.com/kurafs/kfuse/pkg/fuse/fs"
	"github.com/kurafs/kfuse/pkg/log"
	"golang.org/x/sys/unix"
)

const (
	blockSize = 4096
	nameMax   = 255
	// btree degree for directory children.
	degree = 16

	entryValid = time.Second
	attrValid  = time.Second
)

// entry is a named child of a directory, ordered by name.
type entry struct {
	name string
	node fuse.NodeID
}

func (e entry) Less(than btree.Item) bool {
	return e.name < than.(entry).name
}

type node struct {
	id     fuse.NodeID
	attr   fuse.Attr
	parent fuse.NodeID // directories only

	data     []byte       // regular files
	target   string       // symlinks
	children *btree.BTree // directories
	xattrs   map[string][]byte

	lookups uint64
}

func (n *node) isDir() bool {
	return n.attr.Mode.IsDir()
}

// get returns the child called name.
func (n *node) get(name string) (fuse.NodeID, bool) {
	it := n.children.Get(entry{name: name})
	if it == nil {
		return 0, false
	}
	return it.(entry).node, true
}

type handle struct {
	node    fuse.NodeID
	flags   fuse.OpenFlags
	entries []fuse.Dirent // opendir snapshot
}

// FS implements fs.FileSystem in memory. Methods without a memfs
// meaning answer ENOSYS.
type FS struct {
	fs.NotImplemented

	logger *log.Logger
	db     *bolt.DB // nil when not persistent

	mu         sync.RWMutex
	nodes      map[fuse.NodeID]*node
	nextNode   fuse.NodeID
	handles    map[fuse.HandleID]*handle
	nextHandle fuse.HandleID
	dirty      bool
}

var _ fs.FileSystem = (*FS)(nil)

// New returns an empty filesystem with a root directory owned by the
// current user.
func New(logger *log.Logger) *FS {
	if logger == nil {
		logger = log.Discarder()
	}
	f := &FS{
		logger:   logger,
		nodes:    make(map[fuse.NodeID]*node),
		nextNode: fuse.RootID + 1,
		handles:  make(map[fuse.HandleID]*handle),
	}
	now := time.Now()
	f.nodes[fuse.RootID] = &node{
		id:     fuse.RootID,
		parent: fuse.RootID,
		attr: fuse.Attr{
			Inode: uint64(fuse.RootID),
			Mode:  os.ModeDir | 0755,
			Nlink: 2,
			Uid:   uint32(os.Getuid()),
			Gid:   uint32(os.Getgid()),
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
		children: btree.New(degree),
	}
	return f
}

// Open returns a filesystem backed by the bolt database at path, loading
// what a previous session checkpointed.
func Open(path string, logger *log.Logger) (*FS, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	f := New(logger)
	f.db = db
	if err := f.load(); err != nil {
		db.Close()
		return nil, err
	}
	return f, nil
}

// Close checkpoints and closes the database, if any.
func (f *FS) Close() error {
	if f.db == nil {
		return nil
	}
	if err := f.checkpoint(); err != nil {
		f.db.Close()
		return err
	}
	return f.db.Close()
}

// newNode allocates a node under f.mu.
func (f *FS) newNode(hdr *fuse.Header, mode os.FileMode) *node {
	now := time.Now()
	n := &node{
		id: f.nextNode,
		attr: fuse.Attr{
			Inode: uint64(f.nextNode),
			Mode:  mode,
			Nlink: 1,
			Uid:   hdr.Uid,
			Gid:   hdr.Gid,
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
	}
	if mode.IsDir() {
		n.attr.Nlink = 2
		n.children = btree.New(degree)
	}
	f.nextNode++
	f.nodes[n.id] = n
	f.dirty = true
	return n
}

// lookupDir returns the directory id under f.mu.
func (f *FS) lookupDir(id fuse.NodeID) (*node, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, fuse.ESTALE
	}
	if !n.isDir() {
		return nil, fuse.ENOTDIR
	}
	return n, nil
}

func (f *FS) entryOf(n *node) *fuse.EntryResponse {
	n.lookups++
	return &fuse.EntryResponse{
		Node:       n.id,
		EntryValid: entryValid,
		Attr:       f.attrOf(n),
	}
}

func (f *FS) attrOf(n *node) fuse.Attr {
	a := n.attr
	a.Valid = attrValid
	a.BlockSize = blockSize
	switch {
	case n.attr.Mode.IsRegular():
		a.Size = uint64(len(n.data))
	case n.attr.Mode&os.ModeSymlink != 0:
		a.Size = uint64(len(n.target))
	case n.isDir():
		a.Size = blockSize
	}
	a.Blocks = (a.Size + 511) / 512
	return a
}

// link adds child to dir as name, under f.mu.
func (f *FS) link(dir *node, name string, child *node) {
	dir.children.ReplaceOrInsert(entry{name: name, node: child.id})
	if child.isDir() {
		child.parent = dir.id
		dir.attr.Nlink++
	}
	now := time.Now()
	dir.attr.Mtime = now
	dir.attr.Ctime = now
	f.dirty = true
}

// unlink removes name from dir, under f.mu. The node is dropped once
// nothing names it and the kernel holds no lookups.
func (f *FS) unlink(dir *node, name string, child *node) {
	dir.children.Delete(entry{name: name})
	now := time.Now()
	dir.attr.Mtime = now
	dir.attr.Ctime = now
	child.attr.Ctime = now
	if child.isDir() {
		dir.attr.Nlink--
		child.attr.Nlink = 0
	} else {
		child.attr.Nlink--
	}
	f.maybeDrop(child)
	f.dirty = true
}

func (f *FS) maybeDrop(n *node) {
	if n.attr.Nlink == 0 && n.lookups == 0 && n.id != fuse.RootID {
		delete(f.nodes, n.id)
	}
}

func checkName(name string) error {
	if len(name) > nameMax {
		return unix.ENAMETOOLONG
	}
	return nil
}

func (f *FS) Init(ctx context.Context, req *fuse.InitRequest, resp *fuse.InitResponse) error {
	f.logger.Infof("memfs: serving kernel %v", req.Kernel)
	return nil
}

func (f *FS) Destroy(ctx context.Context, req *fuse.DestroyRequest) error {
	return f.checkpoint()
}

func (f *FS) Forget(ctx context.Context, req *fuse.ForgetRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[req.Node]
	if !ok {
		return nil
	}
	if req.N >= n.lookups {
		n.lookups = 0
	} else {
		n.lookups -= req.N
	}
	f.maybeDrop(n)
	return nil
}

func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, reply *fs.ReplyStatfs) error {
	f.mu.RLock()
	var used uint64
	for _, n := range f.nodes {
		used += (uint64(len(n.data)) + blockSize - 1) / blockSize
	}
	files := uint64(len(f.nodes))
	f.mu.RUnlock()

	const total = 1 << 20 // blocks
	free := uint64(0)
	if used < total {
		free = total - used
	}
	return reply.Statfs(&fuse.StatfsResponse{
		Blocks:  total,
		Bfree:   free,
		Bavail:  free,
		Files:   files,
		Ffree:   1<<32 - files,
		Bsize:   blockSize,
		Namelen: nameMax,
		Frsize:  blockSize,
	})
}

func (f *FS) Access(ctx context.Context, req *fuse.AccessRequest, reply *fs.ReplyEmpty) error {
	f.mu.RLock()
	_, ok := f.nodes[req.Node]
	f.mu.RUnlock()
	if !ok {
		return fuse.ESTALE
	}
	return reply.Ok()
}

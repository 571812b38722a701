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
	"sort"

	"github.com/kurafs/kfuse/pkg/fuse"
	"github.com/kurafs/kfuse/pkg/fuse/fs"
	"golang.org/x/sys/unix"
)

func (f *FS) Setxattr(ctx context.Context, req *fuse.SetxattrRequest, reply *fs.ReplyEmpty) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[req.Node]
	if !ok {
		return fuse.ESTALE
	}
	_, exists := n.xattrs[req.Name]
	switch {
	case req.Flags&unix.XATTR_CREATE != 0 && exists:
		return fuse.EEXIST
	case req.Flags&unix.XATTR_REPLACE != 0 && !exists:
		return fuse.ENODATA
	}
	if n.xattrs == nil {
		n.xattrs = make(map[string][]byte)
	}
	// req.Xattr aliases the receive buffer.
	n.xattrs[req.Name] = append([]byte(nil), req.Xattr...)
	f.dirty = true
	return reply.Ok()
}

func (f *FS) Getxattr(ctx context.Context, req *fuse.GetxattrRequest, reply *fs.ReplyXattr) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.nodes[req.Node]
	if !ok {
		return fuse.ESTALE
	}
	v, ok := n.xattrs[req.Name]
	if !ok {
		return fuse.ENODATA
	}
	return reply.Value(v)
}

func (f *FS) Listxattr(ctx context.Context, req *fuse.ListxattrRequest, reply *fs.ReplyXattr) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.nodes[req.Node]
	if !ok {
		return fuse.ESTALE
	}
	names := make([]string, 0, len(n.xattrs))
	for name := range n.xattrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return reply.Names(names)
}

func (f *FS) Removexattr(ctx context.Context, req *fuse.RemovexattrRequest, reply *fs.ReplyEmpty) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[req.Node]
	if !ok {
		return fuse.ESTALE
	}
	if _, ok := n.xattrs[req.Name]; !ok {
		return fuse.ENODATA
	}
	delete(n.xattrs, req.Name)
	f.dirty = true
	return reply.Ok()
}

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
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/kurafs/kfuse/pkg/fuse"
	"github.com/kurafs/kfuse/pkg/fuse/fs"
	"github.com/kurafs/kfuse/pkg/fuse/fs/fstest"
	"github.com/kurafs/kfuse/pkg/log"
	"golang.org/x/sys/unix"
)

var proto731 = fuse.Protocol{Major: 7, Minor: 31}

// client wraps the requests the tests issue.
type client struct {
	t *testing.T
	k *fstest.Kernel
}

func mount(t *testing.T, filesys fs.FileSystem) *client {
	k := fstest.Start(t, filesys, &fs.Config{Logger: log.Discarder()}, proto731)
	return &client{t: t, k: k}
}

func (c *client) ok(r *fstest.Reply) *fstest.Reply {
	c.t.Helper()
	if r.Errno != 0 {
		c.t.Fatalf("request %v failed: %v", r.ID, r.Errno.ErrnoName())
	}
	return r
}

func (c *client) lookup(dir fuse.NodeID, name string) *fstest.Reply {
	return c.k.Do(fuse.OpLookup, dir, fstest.CString(name))
}

func (c *client) mkdir(dir fuse.NodeID, name string) *fstest.Reply {
	return c.k.Do(fuse.OpMkdir, dir, fstest.U32(0755), fstest.U32(022), fstest.CString(name))
}

func (c *client) create(dir fuse.NodeID, name string) (fuse.NodeID, fuse.HandleID) {
	c.t.Helper()
	r := c.ok(c.k.Do(fuse.OpCreate, dir,
		fstest.U32(uint32(unix.O_RDWR|unix.O_CREAT)), fstest.U32(unix.S_IFREG|0644), fstest.U32(022), fstest.U32(0),
		fstest.CString(name)))
	// entry_out is 128 bytes, open_out follows.
	return r.EntryNode(), fuse.HandleID(r.Uint64(128))
}

func (c *client) write(node fuse.NodeID, fh fuse.HandleID, off uint64, data string) *fstest.Reply {
	return c.k.Do(fuse.OpWrite, node,
		fstest.U64(uint64(fh)), fstest.U64(off), fstest.U32(uint32(len(data))), fstest.U32(0),
		fstest.U64(0), fstest.U32(0), fstest.U32(0),
		[]byte(data))
}

func (c *client) read(op fuse.Opcode, node fuse.NodeID, fh fuse.HandleID, off uint64, size uint32) *fstest.Reply {
	return c.k.Do(op, node,
		fstest.U64(uint64(fh)), fstest.U64(off), fstest.U32(size), fstest.U32(0),
		fstest.U64(0), fstest.U32(0), fstest.U32(0))
}

func (c *client) getattr(node fuse.NodeID) *fstest.Reply {
	return c.k.Do(fuse.OpGetattr, node, fstest.Zeros(16))
}

func (c *client) readdir(dir fuse.NodeID) []string {
	c.t.Helper()
	fh := c.ok(c.k.Do(fuse.OpOpendir, dir, fstest.U32(0), fstest.U32(0))).Handle()
	var names []string
	var off uint64
	for {
		// A small buffer forces several round trips.
		r := c.ok(c.read(fuse.OpReaddir, dir, fh, off, 64))
		ents := r.Dirents()
		if len(ents) == 0 {
			break
		}
		for _, e := range ents {
			names = append(names, e.Name)
			off = e.Offset
		}
	}
	c.ok(c.k.Do(fuse.OpReleasedir, dir, fstest.U64(uint64(fh)), fstest.U32(0), fstest.U32(0), fstest.U64(0)))
	return names
}

func TestFileLifecycle(t *testing.T) {
	c := mount(t, New(nil))
	defer c.k.Stop()

	node, fh := c.create(fuse.RootID, "hello.txt")
	if r := c.ok(c.write(node, fh, 0, "hello, world")); r.Uint32(0) != 12 {
		t.Errorf("wrote %d bytes", r.Uint32(0))
	}
	c.ok(c.write(node, fh, 7, "fuse!"))

	if got := string(c.ok(c.read(fuse.OpRead, node, fh, 0, 100)).Payload); got != "hello, fuse!" {
		t.Errorf("read %q", got)
	}
	if got := string(c.ok(c.read(fuse.OpRead, node, fh, 7, 2)).Payload); got != "fu" {
		t.Errorf("read %q", got)
	}
	if got := c.ok(c.read(fuse.OpRead, node, fh, 100, 10)).Payload; len(got) != 0 {
		t.Errorf("read past EOF returned %q", got)
	}

	a := c.ok(c.getattr(node)).Attr()
	if a.Size != 12 || a.Mode != unix.S_IFREG|0644 || a.Nlink != 1 {
		t.Errorf("unexpected attr %+v", a)
	}

	c.ok(c.k.Do(fuse.OpFlush, node, fstest.U64(uint64(fh)), fstest.U32(0), fstest.U32(0), fstest.U64(0)))
	c.ok(c.k.Do(fuse.OpRelease, node, fstest.U64(uint64(fh)), fstest.U32(0), fstest.U32(0), fstest.U64(0)))

	if r := c.lookup(fuse.RootID, "hello.txt"); r.EntryNode() != node {
		t.Errorf("lookup returned node %v", r.EntryNode())
	}
	c.ok(c.k.Do(fuse.OpUnlink, fuse.RootID, fstest.CString("hello.txt")))
	if r := c.lookup(fuse.RootID, "hello.txt"); r.Errno != fuse.ENOENT {
		t.Errorf("lookup after unlink: %v", r.Errno)
	}
}

func TestCreateExisting(t *testing.T) {
	c := mount(t, New(nil))
	defer c.k.Stop()

	c.create(fuse.RootID, "a")
	r := c.k.Do(fuse.OpCreate, fuse.RootID,
		fstest.U32(unix.O_RDWR), fstest.U32(unix.S_IFREG|0644), fstest.U32(0), fstest.U32(0),
		fstest.CString("a"))
	if r.Errno != fuse.EEXIST {
		t.Errorf("got %v, want EEXIST", r.Errno)
	}
}

func TestDirectories(t *testing.T) {
	c := mount(t, New(nil))
	defer c.k.Stop()

	dir := c.ok(c.mkdir(fuse.RootID, "d")).EntryNode()
	for _, name := range []string{"zeta", "alpha", "mid", "beta-with-a-long-name"} {
		c.create(dir, name)
	}
	sub := c.ok(c.mkdir(dir, "sub")).EntryNode()

	got := c.readdir(dir)
	want := []string{".", "..", "alpha", "beta-with-a-long-name", "mid", "sub", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %q, want %q", i, got[i], want[i])
		}
	}

	if a := c.ok(c.getattr(dir)).Attr(); a.Nlink != 3 || a.Mode&unix.S_IFMT != unix.S_IFDIR {
		t.Errorf("unexpected dir attr %+v", a)
	}
	if r := c.k.Do(fuse.OpRmdir, fuse.RootID, fstest.CString("d")); r.Errno != fuse.ENOTEMPTY {
		t.Errorf("rmdir non-empty: %v", r.Errno)
	}
	if r := c.k.Do(fuse.OpUnlink, dir, fstest.CString("sub")); r.Errno != fuse.EISDIR {
		t.Errorf("unlink dir: %v", r.Errno)
	}
	if r := c.k.Do(fuse.OpRmdir, dir, fstest.CString("mid")); r.Errno != fuse.ENOTDIR {
		t.Errorf("rmdir file: %v", r.Errno)
	}
	c.ok(c.k.Do(fuse.OpRmdir, dir, fstest.CString("sub")))
	if r := c.getattr(sub); r.Errno != 0 {
		// The kernel still holds a lookup on sub.
		t.Errorf("getattr on removed but referenced dir: %v", r.Errno)
	}
	if r := c.lookup(dir, "zeta"); r.Errno != 0 {
		t.Errorf("lookup: %v", r.Errno)
	}
	if r := c.lookup(sub, "x"); r.Errno != fuse.ENOENT {
		t.Errorf("lookup in removed dir: %v", r.Errno)
	}
}

func TestRename(t *testing.T) {
	c := mount(t, New(nil))
	defer c.k.Stop()

	a := c.ok(c.mkdir(fuse.RootID, "a")).EntryNode()
	b := c.ok(c.mkdir(a, "b")).EntryNode()
	file, _ := c.create(a, "f")
	other, _ := c.create(fuse.RootID, "g")

	rename := func(from fuse.NodeID, oldName string, to fuse.NodeID, newName string) fuse.Errno {
		return c.k.Do(fuse.OpRename, from, fstest.U64(uint64(to)), fstest.CString(oldName), fstest.CString(newName)).Errno
	}

	if errno := rename(fuse.RootID, "a", b, "a2"); errno != fuse.EINVAL {
		t.Errorf("moving a dir below itself: %v", errno)
	}
	if errno := rename(a, "f", fuse.RootID, "a"); errno != fuse.EISDIR {
		t.Errorf("file over dir: %v", errno)
	}
	if errno := rename(a, "f", fuse.RootID, "g"); errno != 0 {
		t.Errorf("file over file: %v", errno)
	}
	if r := c.lookup(fuse.RootID, "g"); r.EntryNode() != file {
		t.Errorf("g names %v, want %v", r.EntryNode(), file)
	}
	if r := c.getattr(other); r.Errno != 0 {
		t.Errorf("replaced file should live while looked up: %v", r.Errno)
	}
	if errno := rename(a, "b", fuse.RootID, "b"); errno != 0 {
		t.Errorf("dir move: %v", errno)
	}
	if got := c.readdir(fuse.RootID); len(got) != 5 {
		t.Errorf("root holds %v", got)
	}
	if attr := c.ok(c.getattr(a)).Attr(); attr.Nlink != 2 {
		t.Errorf("a has nlink %d after losing its subdirectory", attr.Nlink)
	}
}

func TestLinksAndSymlinks(t *testing.T) {
	c := mount(t, New(nil))
	defer c.k.Stop()

	file, _ := c.create(fuse.RootID, "f")
	r := c.ok(c.k.Do(fuse.OpLink, fuse.RootID, fstest.U64(uint64(file)), fstest.CString("hard")))
	if r.EntryNode() != file || r.EntryAttr().Nlink != 2 {
		t.Errorf("link: node %v nlink %d", r.EntryNode(), r.EntryAttr().Nlink)
	}
	if r := c.k.Do(fuse.OpLink, fuse.RootID, fstest.U64(uint64(fuse.RootID)), fstest.CString("loop")); r.Errno != fuse.EPERM {
		t.Errorf("hard link to dir: %v", r.Errno)
	}

	link := c.ok(c.k.Do(fuse.OpSymlink, fuse.RootID, fstest.CString("sym"), fstest.CString("f"))).EntryNode()
	if got := string(c.ok(c.k.Do(fuse.OpReadlink, link)).Payload); got != "f" {
		t.Errorf("readlink %q", got)
	}
	if r := c.k.Do(fuse.OpReadlink, file); r.Errno != fuse.EINVAL {
		t.Errorf("readlink on file: %v", r.Errno)
	}
}

func TestSetattr(t *testing.T) {
	c := mount(t, New(nil))
	defer c.k.Stop()

	node, fh := c.create(fuse.RootID, "f")
	c.ok(c.write(node, fh, 0, "0123456789"))

	valid := uint32(fuse.SetattrSize | fuse.SetattrMode | fuse.SetattrUid)
	r := c.ok(c.k.Do(fuse.OpSetattr, node,
		fstest.U32(valid), fstest.U32(0), fstest.U64(0), // valid, padding, fh
		fstest.U64(4), fstest.U64(0), // size, lock owner
		fstest.Zeros(3*8+3*4), // times
		fstest.U32(unix.S_IFREG|0600), fstest.U32(0), // mode
		fstest.U32(42), fstest.U32(0), fstest.U32(0))) // uid, gid
	if a := r.Attr(); a.Size != 4 || a.Mode != unix.S_IFREG|0600 || a.Uid != 42 {
		t.Errorf("unexpected attr %+v", a)
	}
	if got := string(c.ok(c.read(fuse.OpRead, node, fh, 0, 100)).Payload); got != "0123" {
		t.Errorf("read %q after truncate", got)
	}
}

func TestXattrs(t *testing.T) {
	c := mount(t, New(nil))
	defer c.k.Stop()

	node, _ := c.create(fuse.RootID, "f")
	set := func(name, value string, flags uint32) fuse.Errno {
		return c.k.Do(fuse.OpSetxattr, node, fstest.U32(uint32(len(value))), fstest.U32(flags), fstest.CString(name), []byte(value)).Errno
	}
	get := func(name string, size uint32) *fstest.Reply {
		return c.k.Do(fuse.OpGetxattr, node, fstest.U32(size), fstest.U32(0), fstest.CString(name))
	}

	if errno := set("user.a", "apple", 0); errno != 0 {
		t.Fatal(errno)
	}
	if errno := set("user.a", "again", unix.XATTR_CREATE); errno != fuse.EEXIST {
		t.Errorf("XATTR_CREATE on existing: %v", errno)
	}
	if errno := set("user.b", "x", unix.XATTR_REPLACE); errno != fuse.ENODATA {
		t.Errorf("XATTR_REPLACE on missing: %v", errno)
	}
	set("user.b", "banana", 0)

	if r := c.ok(get("user.a", 0)); r.Uint32(0) != 5 {
		t.Errorf("size probe returned %d", r.Uint32(0))
	}
	if r := c.ok(get("user.a", 64)); string(r.Payload) != "apple" {
		t.Errorf("got %q", r.Payload)
	}
	if r := get("user.a", 2); r.Errno != fuse.ERANGE {
		t.Errorf("small buffer: %v", r.Errno)
	}
	if r := get("user.zzz", 64); r.Errno != fuse.ENODATA {
		t.Errorf("missing: %v", r.Errno)
	}

	r := c.ok(c.k.Do(fuse.OpListxattr, node, fstest.U32(64), fstest.U32(0)))
	if string(r.Payload) != "user.a\x00user.b\x00" {
		t.Errorf("list %q", r.Payload)
	}

	c.ok(c.k.Do(fuse.OpRemovexattr, node, fstest.CString("user.a")))
	if r := c.k.Do(fuse.OpRemovexattr, node, fstest.CString("user.a")); r.Errno != fuse.ENODATA {
		t.Errorf("second remove: %v", r.Errno)
	}
}

func TestStatfsAndUnsupported(t *testing.T) {
	c := mount(t, New(nil))
	defer c.k.Stop()

	r := c.ok(c.k.Do(fuse.OpStatfs, fuse.RootID))
	if len(r.Payload) != 80 || r.Uint32(40) != blockSize {
		t.Errorf("unexpected statfs reply of %d bytes", len(r.Payload))
	}
	if r := c.k.Do(fuse.OpBmap, fuse.RootID, fstest.U64(0), fstest.U32(512), fstest.U32(0)); r.Errno != fuse.ENOSYS {
		t.Errorf("bmap: %v", r.Errno)
	}
	if r := c.k.Do(fuse.OpAccess, fuse.RootID, fstest.U32(unix.R_OK), fstest.U32(0)); r.Errno != 0 {
		t.Errorf("access: %v", r.Errno)
	}
}

func TestForgetDropsUnlinked(t *testing.T) {
	f := New(nil)
	c := mount(t, f)
	defer c.k.Stop()

	node, _ := c.create(fuse.RootID, "f")
	c.ok(c.k.Do(fuse.OpUnlink, fuse.RootID, fstest.CString("f")))
	if r := c.getattr(node); r.Errno != 0 {
		t.Fatalf("getattr before forget: %v", r.Errno)
	}
	c.k.Send(fuse.OpForget, node, fstest.U64(1))
	// FORGET has no reply; a later request orders after it only
	// loosely, so poll.
	for i := 0; i < 100; i++ {
		if r := c.getattr(node); r.Errno == fuse.ESTALE {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("node survived its last forget")
}

func TestPersistence(t *testing.T) {
	dir, err := ioutil.TempDir("", "memfs")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "memfs.db")

	f, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := mount(t, f)
	docs := c.ok(c.mkdir(fuse.RootID, "docs")).EntryNode()
	node, fh := c.create(docs, "readme")
	c.ok(c.write(node, fh, 0, "persisted"))
	c.ok(c.k.Do(fuse.OpSetxattr, node, fstest.U32(2), fstest.U32(0), fstest.CString("user.tag"), []byte("v1")))
	// big spans several chunks.
	big, bigfh := c.create(fuse.RootID, "big")
	block := strings.Repeat("0123456789", 10000)
	c.ok(c.write(big, bigfh, 0, block))
	c.ok(c.write(big, bigfh, uint64(len(block)), block))
	c.ok(c.k.Do(fuse.OpDestroy, 0))
	if err := c.k.Err(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	f, err = Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	c = mount(t, f)
	defer c.k.Stop()

	r := c.ok(c.lookup(fuse.RootID, "docs"))
	if r.EntryNode() != docs {
		t.Errorf("docs is node %v, was %v", r.EntryNode(), docs)
	}
	r = c.ok(c.lookup(docs, "readme"))
	if r.EntryAttr().Size != uint64(len("persisted")) {
		t.Errorf("readme has size %d", r.EntryAttr().Size)
	}
	if got := string(c.ok(c.read(fuse.OpRead, node, 0, 0, 100)).Payload); got != "persisted" {
		t.Errorf("read %q", got)
	}
	if r := c.ok(c.k.Do(fuse.OpGetxattr, node, fstest.U32(16), fstest.U32(0), fstest.CString("user.tag"))); string(r.Payload) != "v1" {
		t.Errorf("xattr %q", r.Payload)
	}

	if got := string(c.ok(c.read(fuse.OpRead, big, 0, 0, 1<<20)).Payload); got != block+block {
		t.Errorf("big file read back %d bytes, want %d", len(got), 2*len(block))
	}

	// New nodes must not reuse persisted IDs.
	other, _ := c.create(fuse.RootID, "new")
	if other <= big {
		t.Errorf("new node %v reuses an ID at or below %v", other, big)
	}

	names := c.readdir(fuse.RootID)
	sort.Strings(names)
	if len(names) != 5 || names[2] != "big" || names[3] != "docs" || names[4] != "new" {
		t.Errorf("root holds %v", names)
	}
}

func TestRecordCodec(t *testing.T) {
	f := New(nil)
	root := f.nodes[fuse.RootID]
	root.xattrs = map[string][]byte{"user.k": []byte("v")}
	root.children.ReplaceOrInsert(entry{name: "x", node: 9})

	rec, err := encodeNode(root)
	if err != nil {
		t.Fatal(err)
	}
	n, err := decodeNode(rec)
	if err != nil {
		t.Fatal(err)
	}
	if n.id != fuse.RootID || !n.isDir() || n.attr.Nlink != 2 {
		t.Errorf("unexpected node %+v", n.attr)
	}
	if id, ok := n.get("x"); !ok || id != 9 {
		t.Errorf("child x = %v, %v", id, ok)
	}
	if string(n.xattrs["user.k"]) != "v" {
		t.Errorf("xattrs %v", n.xattrs)
	}
	if !n.attr.Mtime.Equal(root.attr.Mtime) {
		t.Errorf("mtime %v, want %v", n.attr.Mtime, root.attr.Mtime)
	}

	if _, err := decodeNode(rec[:len(rec)-3]); err == nil {
		t.Error("truncated record decoded")
	}
}

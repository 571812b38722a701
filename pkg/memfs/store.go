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
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/boltdb/bolt"
	"github.com/golang/protobuf/proto"
	"github.com/google/btree"
	"github.com/kurafs/kfuse/pkg/fuse"
)

var (
	nodesBucket = []byte("nodes")
	dataBucket  = []byte("data")
	metaBucket  = []byte("meta")
	nextNodeKey = []byte("next-node")
)

// recordVersion prefixes every encoded node.
const recordVersion = 1

func nodeKey(id fuse.NodeID) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

// chunkKey orders the chunks of a file after its node ID.
func chunkKey(id fuse.NodeID, part int) []byte {
	var b [12]byte
	binary.BigEndian.PutUint64(b[:8], uint64(id))
	binary.BigEndian.PutUint32(b[8:], uint32(part))
	return b[:]
}

// load replaces the in-memory tree with the checkpointed one, if any.
func (f *FS) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		nodes, err := tx.CreateBucketIfNotExists(nodesBucket)
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		data, err := tx.CreateBucketIfNotExists(dataBucket)
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		if v := meta.Get(nextNodeKey); v != nil {
			f.nextNode = fuse.NodeID(binary.BigEndian.Uint64(v))
		}
		count := 0
		err = nodes.ForEach(func(k, v []byte) error {
			n, err := decodeNode(v)
			if err != nil {
				return fmt.Errorf("memfs: node %x: %v", k, err)
			}
			f.nodes[n.id] = n
			count++
			return nil
		})
		if err != nil {
			return err
		}
		// Keys sort by node, then chunk.
		err = data.ForEach(func(k, v []byte) error {
			if len(k) != 12 {
				return fmt.Errorf("memfs: bad chunk key %x", k)
			}
			id := fuse.NodeID(binary.BigEndian.Uint64(k))
			n, ok := f.nodes[id]
			if !ok {
				return fmt.Errorf("memfs: chunk %x of unknown node", k)
			}
			n.data = append(n.data, v...)
			return nil
		})
		if err != nil {
			return err
		}
		f.logger.Infof("memfs: loaded %d nodes", count)
		return nil
	})
}

// checkpoint writes the tree to the database when it changed since the
// last checkpoint. Nodes only kept alive by kernel lookups are skipped.
func (f *FS) checkpoint() error {
	if f.db == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return nil
	}

	err := f.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{nodesBucket, dataBucket} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
		}
		nodes, err := tx.CreateBucket(nodesBucket)
		if err != nil {
			return err
		}
		data, err := tx.CreateBucket(dataBucket)
		if err != nil {
			return err
		}
		for id, n := range f.nodes {
			if n.attr.Nlink == 0 {
				continue
			}
			rec, err := encodeNode(n)
			if err != nil {
				return err
			}
			if err := nodes.Put(nodeKey(id), rec); err != nil {
				return err
			}
			c := newChunker(n.data)
			for c.Next() {
				if err := data.Put(chunkKey(id, c.part), c.Value()); err != nil {
					return err
				}
			}
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		return meta.Put(nextNodeKey, nodeKey(f.nextNode))
	})
	if err != nil {
		f.logger.Errorf("memfs: checkpoint: %v", err)
		return err
	}
	f.dirty = false
	f.logger.Debugf("memfs: checkpointed %d nodes", len(f.nodes))
	return nil
}

type recordWriter struct {
	b   *proto.Buffer
	err error
}

func (w *recordWriter) uint(v uint64) {
	if w.err == nil {
		w.err = w.b.EncodeVarint(v)
	}
}

func (w *recordWriter) bytes(v []byte) {
	if w.err == nil {
		w.err = w.b.EncodeRawBytes(v)
	}
}

func (w *recordWriter) string(v string) {
	if w.err == nil {
		w.err = w.b.EncodeStringBytes(v)
	}
}

func (w *recordWriter) time(t time.Time) {
	if t.IsZero() {
		w.uint(0)
		return
	}
	w.uint(uint64(t.UnixNano()))
}

type recordReader struct {
	b   *proto.Buffer
	err error
}

func (r *recordReader) uint() uint64 {
	if r.err != nil {
		return 0
	}
	var v uint64
	v, r.err = r.b.DecodeVarint()
	return v
}

func (r *recordReader) bytes() []byte {
	if r.err != nil {
		return nil
	}
	var v []byte
	v, r.err = r.b.DecodeRawBytes(true)
	return v
}

func (r *recordReader) string() string {
	if r.err != nil {
		return ""
	}
	var v string
	v, r.err = r.b.DecodeStringBytes()
	return v
}

func (r *recordReader) time() time.Time {
	ns := r.uint()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(ns))
}

// encodeNode serializes n with protobuf varint and length-delimited
// fields, in a fixed order. File contents are stored apart, in chunks.
func encodeNode(n *node) ([]byte, error) {
	w := &recordWriter{b: proto.NewBuffer(nil)}
	w.uint(recordVersion)
	w.uint(uint64(n.id))
	w.uint(uint64(n.attr.Mode))
	w.uint(uint64(n.attr.Nlink))
	w.uint(uint64(n.attr.Uid))
	w.uint(uint64(n.attr.Gid))
	w.uint(uint64(n.attr.Rdev))
	w.time(n.attr.Atime)
	w.time(n.attr.Mtime)
	w.time(n.attr.Ctime)
	w.uint(uint64(n.parent))
	w.string(n.target)

	if n.children == nil {
		w.uint(0)
	} else {
		w.uint(uint64(n.children.Len()))
		n.children.Ascend(func(it btree.Item) bool {
			e := it.(entry)
			w.string(e.name)
			w.uint(uint64(e.node))
			return true
		})
	}

	w.uint(uint64(len(n.xattrs)))
	for name, value := range n.xattrs {
		w.string(name)
		w.bytes(value)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.b.Bytes(), nil
}

func decodeNode(rec []byte) (*node, error) {
	r := &recordReader{b: proto.NewBuffer(rec)}
	if v := r.uint(); r.err == nil && v != recordVersion {
		return nil, fmt.Errorf("unknown record version %d", v)
	}
	n := &node{id: fuse.NodeID(r.uint())}
	n.attr.Inode = uint64(n.id)
	n.attr.Mode = os.FileMode(r.uint())
	n.attr.Nlink = uint32(r.uint())
	n.attr.Uid = uint32(r.uint())
	n.attr.Gid = uint32(r.uint())
	n.attr.Rdev = uint32(r.uint())
	n.attr.Atime = r.time()
	n.attr.Mtime = r.time()
	n.attr.Ctime = r.time()
	n.parent = fuse.NodeID(r.uint())
	n.target = r.string()

	if count := r.uint(); count > 0 || n.isDir() {
		n.children = btree.New(degree)
		for i := uint64(0); i < count && r.err == nil; i++ {
			name := r.string()
			n.children.ReplaceOrInsert(entry{name: name, node: fuse.NodeID(r.uint())})
		}
	}

	if count := r.uint(); count > 0 {
		n.xattrs = make(map[string][]byte)
		for i := uint64(0); i < count && r.err == nil; i++ {
			name := r.string()
			n.xattrs[name] = r.bytes()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return n, nil
}

// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// decoder reads little-endian fields from a payload whose length has
// already been checked.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) uint32() uint32 {
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) uint64() uint64 {
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

func (d *decoder) skip(n int) {
	d.off += n
}

func (d *decoder) rest() []byte {
	return d.buf[d.off:]
}

// names splits b into exactly n NUL-terminated strings. It fails on a
// missing terminator, trailing bytes, an empty name or a wrong count.
func names(b []byte, n int) ([]string, bool) {
	if len(b) == 0 || b[len(b)-1] != 0 {
		return nil, false
	}
	parts := bytes.Split(b[:len(b)-1], []byte{0})
	if len(parts) != n {
		return nil, false
	}
	out := make([]string, n)
	for i, p := range parts {
		if len(p) == 0 {
			return nil, false
		}
		out[i] = string(p)
	}
	return out, true
}

func unixTimeIn(sec uint64, nsec uint32) time.Time {
	return time.Unix(int64(sec), int64(nsec))
}

// DecodeRequest parses one kernel message into a typed Request, using
// the layouts of the negotiated protocol version.
//
// The returned request may alias buf (WriteRequest.Data,
// SetxattrRequest.Xattr); buf must not be reused while the request is
// in use.
//
// Errors are always *DecodeError. A message whose header could be read
// carries its ID and Opcode so it can still be answered.
func DecodeRequest(buf []byte, proto Protocol) (Request, error) {
	if len(buf) < inHeaderSize {
		return nil, &DecodeError{
			Kind:   Malformed,
			Reason: fmt.Sprintf("%d bytes is shorter than the header", len(buf)),
		}
	}

	hd := decoder{buf: buf}
	length := hd.uint32()
	h := Header{Opcode: Opcode(hd.uint32())}
	h.ID = RequestID(hd.uint64())
	h.Node = NodeID(hd.uint64())
	h.Uid = hd.uint32()
	h.Gid = hd.uint32()
	h.Pid = hd.uint32()

	if int(length) != len(buf) {
		return nil, &DecodeError{
			Kind:   Malformed,
			HasID:  true,
			ID:     h.ID,
			Opcode: h.Opcode,
			Reason: fmt.Sprintf("header length %d, read %d bytes", length, len(buf)),
		}
	}

	p := buf[inHeaderSize:]
	d := &decoder{buf: p}
	var req Request

	switch h.Opcode {
	case OpLookup:
		n, ok := names(p, 1)
		if !ok {
			goto corrupt
		}
		req = &LookupRequest{Header: h, Name: n[0]}

	case OpForget:
		if len(p) != forgetInSize {
			goto corrupt
		}
		req = &ForgetRequest{Header: h, N: d.uint64()}

	case OpBatchForget:
		if len(p) < batchForgetInSize {
			goto corrupt
		}
		count := int(d.uint32())
		d.skip(4)
		if len(d.rest()) != count*forgetOneSize {
			goto corrupt
		}
		r := &BatchForgetRequest{Header: h, Forget: make([]ForgetItem, count)}
		for i := range r.Forget {
			r.Forget[i].Node = NodeID(d.uint64())
			r.Forget[i].N = d.uint64()
		}
		req = r

	case OpGetattr:
		if len(p) != getattrInSizeFor(proto) {
			goto corrupt
		}
		r := &GetattrRequest{Header: h}
		if proto.HasGetattrFlags() {
			r.Flags = GetattrFlags(d.uint32())
			d.skip(4)
			r.Handle = HandleID(d.uint64())
		}
		req = r

	case OpSetattr:
		if len(p) != setattrInSize {
			goto corrupt
		}
		r := &SetattrRequest{Header: h}
		r.Valid = SetattrValid(d.uint32())
		d.skip(4)
		r.Handle = HandleID(d.uint64())
		r.Size = d.uint64()
		r.LockOwner = d.uint64()
		atime, mtime, ctime := d.uint64(), d.uint64(), d.uint64()
		atimeNsec, mtimeNsec, ctimeNsec := d.uint32(), d.uint32(), d.uint32()
		r.Mode = fileMode(d.uint32())
		d.skip(4)
		r.Uid = d.uint32()
		r.Gid = d.uint32()
		if r.Valid.Atime() {
			r.Atime = unixTimeIn(atime, atimeNsec)
		}
		if r.Valid.Mtime() {
			r.Mtime = unixTimeIn(mtime, mtimeNsec)
		}
		if r.Valid.Ctime() {
			r.Ctime = unixTimeIn(ctime, ctimeNsec)
		}
		req = r

	case OpReadlink:
		if len(p) != 0 {
			goto corrupt
		}
		req = &ReadlinkRequest{Header: h}

	case OpSymlink:
		// name first, then the target
		n, ok := names(p, 2)
		if !ok {
			goto corrupt
		}
		req = &SymlinkRequest{Header: h, NewName: n[0], Target: n[1]}

	case OpMknod:
		size := mknodInSizeFor(proto)
		if len(p) <= size {
			goto corrupt
		}
		r := &MknodRequest{Header: h}
		r.Mode = fileMode(d.uint32())
		r.Rdev = d.uint32()
		if proto.HasUmask() {
			r.Umask = fileMode(d.uint32()) & os.ModePerm
			d.skip(4)
		}
		n, ok := names(p[size:], 1)
		if !ok {
			goto corrupt
		}
		r.Name = n[0]
		req = r

	case OpMkdir:
		if len(p) <= mkdirInSize {
			goto corrupt
		}
		r := &MkdirRequest{Header: h}
		// The kernel sends only permission bits; mark it a directory.
		r.Mode = fileMode((d.uint32() &^ unix.S_IFMT) | unix.S_IFDIR)
		umask := d.uint32()
		if proto.HasUmask() {
			r.Umask = fileMode(umask) & os.ModePerm
		}
		n, ok := names(p[mkdirInSize:], 1)
		if !ok {
			goto corrupt
		}
		r.Name = n[0]
		req = r

	case OpUnlink, OpRmdir:
		n, ok := names(p, 1)
		if !ok {
			goto corrupt
		}
		req = &RemoveRequest{Header: h, Name: n[0], Dir: h.Opcode == OpRmdir}

	case OpRename:
		if len(p) <= renameInSize {
			goto corrupt
		}
		newDir := NodeID(d.uint64())
		n, ok := names(p[renameInSize:], 2)
		if !ok {
			goto corrupt
		}
		req = &RenameRequest{Header: h, NewDir: newDir, OldName: n[0], NewName: n[1]}

	case OpLink:
		if len(p) <= linkInSize {
			goto corrupt
		}
		oldNode := NodeID(d.uint64())
		n, ok := names(p[linkInSize:], 1)
		if !ok {
			goto corrupt
		}
		req = &LinkRequest{Header: h, OldNode: oldNode, NewName: n[0]}

	case OpOpen, OpOpendir:
		if len(p) != openInSize {
			goto corrupt
		}
		req = &OpenRequest{
			Header: h,
			Dir:    h.Opcode == OpOpendir,
			Flags:  OpenFlags(d.uint32()),
		}

	case OpRead, OpReaddir:
		if len(p) != readInSizeFor(proto) {
			goto corrupt
		}
		r := &ReadRequest{Header: h, Dir: h.Opcode == OpReaddir}
		r.Handle = HandleID(d.uint64())
		r.Offset = int64(d.uint64())
		r.Size = int(d.uint32())
		if proto.HasReadWriteFlags() {
			r.Flags = ReadFlags(d.uint32())
			r.LockOwner = d.uint64()
			r.FileFlags = OpenFlags(d.uint32())
		}
		req = r

	case OpWrite:
		size := writeInSizeFor(proto)
		if len(p) < size {
			goto corrupt
		}
		r := &WriteRequest{Header: h}
		r.Handle = HandleID(d.uint64())
		r.Offset = int64(d.uint64())
		dataLen := int(d.uint32())
		r.Flags = WriteFlags(d.uint32())
		if proto.HasReadWriteFlags() {
			r.LockOwner = d.uint64()
			r.FileFlags = OpenFlags(d.uint32())
		}
		if len(p)-size != dataLen {
			goto corrupt
		}
		r.Data = p[size:]
		req = r

	case OpStatfs:
		if len(p) != 0 {
			goto corrupt
		}
		req = &StatfsRequest{Header: h}

	case OpRelease, OpReleasedir:
		if len(p) != releaseInSize {
			goto corrupt
		}
		r := &ReleaseRequest{Header: h, Dir: h.Opcode == OpReleasedir}
		r.Handle = HandleID(d.uint64())
		r.Flags = OpenFlags(d.uint32())
		r.ReleaseFlags = ReleaseFlags(d.uint32())
		r.LockOwner = d.uint64()
		req = r

	case OpFsync, OpFsyncdir:
		if len(p) != fsyncInSize {
			goto corrupt
		}
		r := &FsyncRequest{Header: h, Dir: h.Opcode == OpFsyncdir}
		r.Handle = HandleID(d.uint64())
		r.Flags = FsyncFlags(d.uint32())
		req = r

	case OpSetxattr:
		if len(p) <= setxattrInSize {
			goto corrupt
		}
		r := &SetxattrRequest{Header: h}
		size := int(d.uint32())
		r.Flags = d.uint32()
		tail := p[setxattrInSize:]
		i := bytes.IndexByte(tail, 0)
		if i <= 0 || len(tail)-i-1 != size {
			goto corrupt
		}
		r.Name = string(tail[:i])
		r.Xattr = tail[i+1:]
		req = r

	case OpGetxattr:
		if len(p) <= getxattrInSize {
			goto corrupt
		}
		r := &GetxattrRequest{Header: h, Size: d.uint32()}
		n, ok := names(p[getxattrInSize:], 1)
		if !ok {
			goto corrupt
		}
		r.Name = n[0]
		req = r

	case OpListxattr:
		if len(p) != getxattrInSize {
			goto corrupt
		}
		req = &ListxattrRequest{Header: h, Size: d.uint32()}

	case OpRemovexattr:
		n, ok := names(p, 1)
		if !ok {
			goto corrupt
		}
		req = &RemovexattrRequest{Header: h, Name: n[0]}

	case OpFlush:
		if len(p) != flushInSize {
			goto corrupt
		}
		r := &FlushRequest{Header: h}
		r.Handle = HandleID(d.uint64())
		d.skip(8)
		r.LockOwner = d.uint64()
		req = r

	case OpInit:
		// init_in grows with the kernel's version, which may be newer
		// than anything negotiated so far.
		if len(p) < initInSize {
			goto corrupt
		}
		r := &InitRequest{Header: h}
		r.Kernel.Major = d.uint32()
		r.Kernel.Minor = d.uint32()
		r.MaxReadahead = d.uint32()
		r.Flags = InitFlags(d.uint32())
		req = r

	case OpGetlk, OpSetlk, OpSetlkw:
		if len(p) != lkInSizeFor(proto) {
			goto corrupt
		}
		r := &LockRequest{Header: h, Wait: h.Opcode == OpSetlkw}
		r.Handle = HandleID(d.uint64())
		r.Owner = d.uint64()
		r.Lock.Start = d.uint64()
		r.Lock.End = d.uint64()
		r.Lock.Type = d.uint32()
		r.Lock.Pid = d.uint32()
		if proto.HasLockFlags() {
			r.LockFlags = LockFlags(d.uint32())
		}
		req = r

	case OpAccess:
		if len(p) != accessInSize {
			goto corrupt
		}
		req = &AccessRequest{Header: h, Mask: d.uint32()}

	case OpCreate:
		size := createInSizeFor(proto)
		if len(p) <= size {
			goto corrupt
		}
		r := &CreateRequest{Header: h}
		r.Flags = OpenFlags(d.uint32())
		r.Mode = fileMode(d.uint32())
		if proto.HasUmask() {
			r.Umask = fileMode(d.uint32()) & os.ModePerm
			d.skip(4)
		}
		n, ok := names(p[size:], 1)
		if !ok {
			goto corrupt
		}
		r.Name = n[0]
		req = r

	case OpInterrupt:
		if len(p) != interruptInSize {
			goto corrupt
		}
		req = &InterruptRequest{Header: h, IntrID: RequestID(d.uint64())}

	case OpBmap:
		if len(p) != bmapInSize {
			goto corrupt
		}
		r := &BmapRequest{Header: h}
		r.Block = d.uint64()
		r.BlockSize = d.uint32()
		req = r

	case OpDestroy:
		if len(p) != 0 {
			goto corrupt
		}
		req = &DestroyRequest{Header: h}

	default:
		return nil, &DecodeError{
			Kind:   UnsupportedOperation,
			HasID:  true,
			ID:     h.ID,
			Opcode: h.Opcode,
			Reason: fmt.Sprintf("no opcode %d", uint32(h.Opcode)),
		}
	}

	return req, nil

corrupt:
	return nil, &DecodeError{
		Kind:   Malformed,
		HasID:  true,
		ID:     h.ID,
		Opcode: h.Opcode,
		Reason: fmt.Sprintf("bad %v payload of %d bytes for protocol %v", h.Opcode, len(p), proto),
	}
}

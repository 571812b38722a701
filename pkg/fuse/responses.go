// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"fmt"
	"time"
)

// A Response is the payload of a successful reply. The concrete type
// decides the wire layout; EncodeReply frames it.
type Response interface {
	String() string

	// appendPayload appends the encoded payload, sized for proto.
	appendPayload(b []byte, proto Protocol) []byte
}

// An InitResponse is the response to an InitRequest.
type InitResponse struct {
	Library Protocol
	// Maximum readahead in bytes that the kernel can use. Ignored if
	// greater than InitRequest.MaxReadahead.
	MaxReadahead uint32
	Flags        InitFlags
	// Maximum number of outstanding background requests (7.13+).
	MaxBackground       uint16
	CongestionThreshold uint16
	// Maximum size of a single write operation.
	// Linux enforces a minimum of 4 KiB.
	MaxWrite uint32
	// Timestamp granularity in nanoseconds (7.23+).
	TimeGran uint32
	// Maximum pages per request, honoured with InitMaxPages (7.28+).
	MaxPages uint16
}

func (r *InitResponse) String() string {
	return fmt.Sprintf("Init %v ra=%d fl=%v w=%d", r.Library, r.MaxReadahead, r.Flags, r.MaxWrite)
}

func (r *InitResponse) appendPayload(b []byte, proto Protocol) []byte {
	b = appendUint32(b, r.Library.Major)
	b = appendUint32(b, r.Library.Minor)
	b = appendUint32(b, r.MaxReadahead)
	b = appendUint32(b, uint32(r.Flags))
	b = appendUint16(b, r.MaxBackground)
	b = appendUint16(b, r.CongestionThreshold)
	w := r.MaxWrite
	// MaxWrite larger than our receive buffer would just lead to
	// errors on large writes.
	if w > maxWrite {
		w = maxWrite
	}
	b = appendUint32(b, w)
	if !proto.HasTimeGran() {
		return b
	}
	b = appendUint32(b, r.TimeGran)
	var pages uint16
	if proto.HasMaxPages() {
		pages = r.MaxPages
	}
	b = appendUint16(b, pages)
	var pad [2 + 8*4]byte
	return append(b, pad[:]...)
}

// An EntryResponse answers requests that name a node: lookup, mknod,
// mkdir, symlink and link.
type EntryResponse struct {
	Node       NodeID        // Inode ID
	Generation uint64        // Generation of inode (for NFS)
	EntryValid time.Duration // Cache validity of the name
	Attr       Attr          // Attributes of the inode
}

func (r *EntryResponse) String() string {
	return fmt.Sprintf("Entry node=%v gen=%d valid=%v attr={%v}", r.Node, r.Generation, r.EntryValid, r.Attr)
}

func (r *EntryResponse) appendPayload(b []byte, proto Protocol) []byte {
	entrySec, entryNsec := splitDuration(r.EntryValid)
	attrSec, attrNsec := splitDuration(r.Attr.Valid)
	b = appendUint64(b, uint64(r.Node))
	b = appendUint64(b, r.Generation)
	b = appendUint64(b, entrySec)
	b = appendUint64(b, attrSec)
	b = appendUint32(b, entryNsec)
	b = appendUint32(b, attrNsec)
	return r.Attr.appendAttr(b, proto)
}

// An AttrResponse answers getattr and setattr.
type AttrResponse struct {
	Attr Attr // file attributes
}

func (r *AttrResponse) String() string {
	return fmt.Sprintf("Attr %v", r.Attr)
}

func (r *AttrResponse) appendPayload(b []byte, proto Protocol) []byte {
	sec, nsec := splitDuration(r.Attr.Valid)
	b = appendUint64(b, sec)
	b = appendUint32(b, nsec)
	b = appendUint32(b, 0)
	return r.Attr.appendAttr(b, proto)
}

// An OpenResponse is the response to a OpenRequest.
type OpenResponse struct {
	Handle HandleID
	Flags  OpenResponseFlags
}

func (r *OpenResponse) String() string {
	return fmt.Sprintf("Open %v fl=%#x", r.Handle, uint32(r.Flags))
}

func (r *OpenResponse) appendPayload(b []byte, proto Protocol) []byte {
	flags := r.Flags
	if !proto.HasOpenNonSeekable() {
		flags &^= OpenNonSeekable
	}
	b = appendUint64(b, uint64(r.Handle))
	b = appendUint32(b, uint32(flags))
	return appendUint32(b, 0)
}

// A CreateResponse is the response to a CreateRequest.
// It describes the created node and opened handle.
type CreateResponse struct {
	EntryResponse
	OpenResponse
}

func (r *CreateResponse) String() string {
	return fmt.Sprintf("Create {%v} {%v}", r.EntryResponse.String(), r.OpenResponse.String())
}

func (r *CreateResponse) appendPayload(b []byte, proto Protocol) []byte {
	b = r.EntryResponse.appendPayload(b, proto)
	return r.OpenResponse.appendPayload(b, proto)
}

// A WriteResponse replies to a write indicating how many bytes were written.
type WriteResponse struct {
	Size int
}

func (r *WriteResponse) String() string {
	return fmt.Sprintf("Write %d", r.Size)
}

func (r *WriteResponse) appendPayload(b []byte, proto Protocol) []byte {
	b = appendUint32(b, uint32(r.Size))
	return appendUint32(b, 0)
}

// A StatfsResponse is the response to a StatfsRequest.
type StatfsResponse struct {
	Blocks  uint64 // Total data blocks in file system.
	Bfree   uint64 // Free blocks in file system.
	Bavail  uint64 // Free blocks in file system if you're not root.
	Files   uint64 // Total files in file system.
	Ffree   uint64 // Free files in file system.
	Bsize   uint32 // Block size
	Namelen uint32 // Maximum file name length?
	Frsize  uint32 // Fragment size, smallest addressable data size in the file system.
}

func (r *StatfsResponse) String() string {
	return fmt.Sprintf("Statfs blocks=%d/%d/%d files=%d/%d bsize=%d frsize=%d namelen=%d",
		r.Bavail, r.Bfree, r.Blocks,
		r.Ffree, r.Files,
		r.Bsize,
		r.Frsize,
		r.Namelen,
	)
}

func (r *StatfsResponse) appendPayload(b []byte, proto Protocol) []byte {
	b = appendUint64(b, r.Blocks)
	b = appendUint64(b, r.Bfree)
	b = appendUint64(b, r.Bavail)
	b = appendUint64(b, r.Files)
	b = appendUint64(b, r.Ffree)
	b = appendUint32(b, r.Bsize)
	b = appendUint32(b, r.Namelen)
	b = appendUint32(b, r.Frsize)
	var spare [4 + 6*4]byte
	return append(b, spare[:]...)
}

// An XattrSizeResponse answers a getxattr or listxattr probe (request
// Size of zero) with the size the value would need.
type XattrSizeResponse struct {
	Size uint32
}

func (r *XattrSizeResponse) String() string {
	return fmt.Sprintf("XattrSize %d", r.Size)
}

func (r *XattrSizeResponse) appendPayload(b []byte, proto Protocol) []byte {
	b = appendUint32(b, r.Size)
	return appendUint32(b, 0)
}

// A LockResponse answers GETLK with the conflicting lock, or the
// requested range with type F_UNLCK when there is none.
type LockResponse struct {
	Lock FileLock
}

func (r *LockResponse) String() string {
	return fmt.Sprintf("Lock %v", r.Lock)
}

func (r *LockResponse) appendPayload(b []byte, proto Protocol) []byte {
	b = appendUint64(b, r.Lock.Start)
	b = appendUint64(b, r.Lock.End)
	b = appendUint32(b, r.Lock.Type)
	return appendUint32(b, r.Lock.Pid)
}

// A BmapResponse carries the device block for a BmapRequest.
type BmapResponse struct {
	Block uint64
}

func (r *BmapResponse) String() string {
	return fmt.Sprintf("Bmap %d", r.Block)
}

func (r *BmapResponse) appendPayload(b []byte, proto Protocol) []byte {
	return appendUint64(b, r.Block)
}

// DataResponse is a raw payload: file data, a symlink target, an
// xattr value or list, or a buffer of directory entries.
type DataResponse []byte

func (r DataResponse) String() string {
	return fmt.Sprintf("Data %d bytes", len(r))
}

func (r DataResponse) appendPayload(b []byte, proto Protocol) []byte {
	return append(b, r...)
}

// EmptyResponse is a reply with a header and no payload.
type EmptyResponse struct{}

func (EmptyResponse) String() string {
	return "Empty"
}

func (EmptyResponse) appendPayload(b []byte, proto Protocol) []byte {
	return b
}

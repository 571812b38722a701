// See the file LICENSE for copyright and licensing information.
package fuse

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// A Request represents a single FUSE request received from the kernel.
// Use a type switch to determine the specific kind.
type Request interface {
	// Hdr returns the Header associated with this request.
	Hdr() *Header

	String() string
}

// A RequestID identifies an active FUSE request.
type RequestID uint64

func (r RequestID) String() string {
	return fmt.Sprintf("%#x", uint64(r))
}

// A NodeID is a number identifying a directory or file.
// It must be unique among IDs returned in entry replies
// that have not yet been forgotten by ForgetRequests.
type NodeID uint64

func (n NodeID) String() string {
	return fmt.Sprintf("%#x", uint64(n))
}

// A HandleID is a number identifying an open directory or file.
// It only needs to be unique while the directory or file is open.
type HandleID uint64

func (h HandleID) String() string {
	return fmt.Sprintf("%#x", uint64(h))
}

// The RootID identifies the root directory of a FUSE file system.
const RootID NodeID = rootID

// A Header describes the basic information sent in every request.
type Header struct {
	Opcode Opcode
	ID     RequestID // Unique ID for request.
	Node   NodeID    // File or directory the request is about.
	Uid    uint32    // User ID of process making request.
	Gid    uint32    // Group ID of process making request.
	Pid    uint32    // Process ID of process making request.
}

func (h *Header) String() string {
	return fmt.Sprintf("ID=%v Node=%v Uid=%d Gid=%d Pid=%d", h.ID, h.Node, h.Uid, h.Gid, h.Pid)
}

func (h *Header) Hdr() *Header {
	return h
}

// MaxRequestSize is the buffer size needed to receive any request,
// including a write of the largest size announced in INIT.
var MaxRequestSize = os.Getpagesize() + maxWrite

// fileMode returns a Go os.FileMode from a Unix mode.
func fileMode(unixMode uint32) os.FileMode {
	mode := os.FileMode(unixMode & 0777)
	switch unixMode & unix.S_IFMT {
	case unix.S_IFREG:
		// nothing
	case unix.S_IFDIR:
		mode |= os.ModeDir
	case unix.S_IFCHR:
		mode |= os.ModeCharDevice | os.ModeDevice
	case unix.S_IFBLK:
		mode |= os.ModeDevice
	case unix.S_IFIFO:
		mode |= os.ModeNamedPipe
	case unix.S_IFLNK:
		mode |= os.ModeSymlink
	case unix.S_IFSOCK:
		mode |= os.ModeSocket
	default:
		// no idea
		mode |= os.ModeDevice
	}
	if unixMode&unix.S_ISUID != 0 {
		mode |= os.ModeSetuid
	}
	if unixMode&unix.S_ISGID != 0 {
		mode |= os.ModeSetgid
	}
	if unixMode&unix.S_ISVTX != 0 {
		mode |= os.ModeSticky
	}
	return mode
}

// unixMode is the inverse of fileMode.
func unixMode(mode os.FileMode) uint32 {
	out := uint32(mode) & 0777
	switch {
	default:
		out |= unix.S_IFREG
	case mode&os.ModeDir != 0:
		out |= unix.S_IFDIR
	case mode&os.ModeDevice != 0:
		if mode&os.ModeCharDevice != 0 {
			out |= unix.S_IFCHR
		} else {
			out |= unix.S_IFBLK
		}
	case mode&os.ModeNamedPipe != 0:
		out |= unix.S_IFIFO
	case mode&os.ModeSymlink != 0:
		out |= unix.S_IFLNK
	case mode&os.ModeSocket != 0:
		out |= unix.S_IFSOCK
	}
	if mode&os.ModeSetuid != 0 {
		out |= unix.S_ISUID
	}
	if mode&os.ModeSetgid != 0 {
		out |= unix.S_ISGID
	}
	if mode&os.ModeSticky != 0 {
		out |= unix.S_ISVTX
	}
	return out
}

// An Attr is the metadata for a single file or directory.
type Attr struct {
	Valid time.Duration // how long Attr can be cached

	Inode     uint64      // inode number
	Size      uint64      // size in bytes
	Blocks    uint64      // size in 512-byte units
	Atime     time.Time   // time of last access
	Mtime     time.Time   // time of last modification
	Ctime     time.Time   // time of last inode change
	Mode      os.FileMode // file mode
	Nlink     uint32      // number of links (usually 1)
	Uid       uint32      // owner uid
	Gid       uint32      // group gid
	Rdev      uint32      // device numbers
	BlockSize uint32      // preferred blocksize for filesystem I/O
}

func (a Attr) String() string {
	return fmt.Sprintf("valid=%v ino=%v size=%d mode=%v", a.Valid, a.Inode, a.Size, a.Mode)
}

func unixTime(t time.Time) (sec uint64, nsec uint32) {
	if t.IsZero() {
		return 0, 0
	}
	nano := t.UnixNano()
	return uint64(nano / 1e9), uint32(nano % 1e9)
}

func splitDuration(d time.Duration) (sec uint64, nsec uint32) {
	if d < 0 {
		return 0, 0
	}
	return uint64(d / time.Second), uint32(d % time.Second / time.Nanosecond)
}

// appendAttr appends the fuse_attr encoding of a, sized for proto.
func (a *Attr) appendAttr(b []byte, proto Protocol) []byte {
	atime, atimeNsec := unixTime(a.Atime)
	mtime, mtimeNsec := unixTime(a.Mtime)
	ctime, ctimeNsec := unixTime(a.Ctime)

	b = appendUint64(b, a.Inode)
	b = appendUint64(b, a.Size)
	b = appendUint64(b, a.Blocks)
	b = appendUint64(b, atime)
	b = appendUint64(b, mtime)
	b = appendUint64(b, ctime)
	b = appendUint32(b, atimeNsec)
	b = appendUint32(b, mtimeNsec)
	b = appendUint32(b, ctimeNsec)
	b = appendUint32(b, unixMode(a.Mode))
	b = appendUint32(b, a.Nlink)
	b = appendUint32(b, a.Uid)
	b = appendUint32(b, a.Gid)
	b = appendUint32(b, a.Rdev)
	if proto.HasAttrBlockSize() {
		b = appendUint32(b, a.BlockSize)
		b = appendUint32(b, 0)
	}
	return b
}

// A Dirent represents a single directory entry.
type Dirent struct {
	// Inode this entry names.
	Inode uint64

	// Type of the entry, for example DT_File.
	//
	// Setting this is optional. The zero value (DT_Unknown) means
	// callers will just need to do a Getattr when the type is
	// needed. Providing a type can speed up operations
	// significantly.
	Type DirentType

	// Name of the entry
	Name string

	// Offset is the cookie the kernel passes back in the next
	// ReadRequest to continue the listing after this entry. Zero
	// means "the byte offset just past this entry".
	Offset uint64
}

// Type of an entry in a directory listing.
type DirentType uint32

const (
	// These don't quite match os.FileMode; especially there's an
	// explicit unknown, instead of zero value meaning file. They
	// are also not quite syscall.DT_*; nothing says the FUSE
	// protocol follows those, and even if they were, we don't
	// want each fs to fiddle with syscall.

	// The shift by 12 is hardcoded in the FUSE userspace
	// low-level C library, so it's safe here.

	DT_Unknown DirentType = 0
	DT_Socket  DirentType = unix.S_IFSOCK >> 12
	DT_Link    DirentType = unix.S_IFLNK >> 12
	DT_File    DirentType = unix.S_IFREG >> 12
	DT_Block   DirentType = unix.S_IFBLK >> 12
	DT_Dir     DirentType = unix.S_IFDIR >> 12
	DT_Char    DirentType = unix.S_IFCHR >> 12
	DT_FIFO    DirentType = unix.S_IFIFO >> 12
)

func (t DirentType) String() string {
	switch t {
	case DT_Unknown:
		return "unknown"
	case DT_Socket:
		return "socket"
	case DT_Link:
		return "link"
	case DT_File:
		return "file"
	case DT_Block:
		return "block"
	case DT_Dir:
		return "dir"
	case DT_Char:
		return "char"
	case DT_FIFO:
		return "fifo"
	}
	return "invalid"
}

// DirentTypeOf returns the directory entry type for a file mode.
func DirentTypeOf(mode os.FileMode) DirentType {
	return DirentType(unixMode(mode) & unix.S_IFMT >> 12)
}

// DirentSize returns the number of bytes AppendDirent adds for name.
func DirentSize(name string) int {
	return (direntSize + len(name) + 7) &^ 7
}

// AppendDirent appends the encoded form of a directory entry to data
// and returns the resulting slice.
func AppendDirent(data []byte, dir Dirent) []byte {
	off := dir.Offset
	if off == 0 {
		off = uint64(len(data) + DirentSize(dir.Name))
	}
	data = appendUint64(data, dir.Inode)
	data = appendUint64(data, off)
	data = appendUint32(data, uint32(len(dir.Name)))
	data = appendUint32(data, uint32(dir.Type))
	data = append(data, dir.Name...)
	if n := direntSize + len(dir.Name); n%8 != 0 {
		var pad [8]byte
		data = append(data, pad[:8-n%8]...)
	}
	return data
}

func trunc(b []byte, max int) ([]byte, string) {
	if len(b) > max {
		return b[:max], "..."
	}
	return b, ""
}

func appendUint16(b []byte, v uint16) []byte {
	var s [2]byte
	binary.LittleEndian.PutUint16(s[:], v)
	return append(b, s[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var s [4]byte
	binary.LittleEndian.PutUint32(s[:], v)
	return append(b, s[:]...)
}

func appendUint64(b []byte, v uint64) []byte {
	var s [8]byte
	binary.LittleEndian.PutUint64(s[:], v)
	return append(b, s[:]...)
}

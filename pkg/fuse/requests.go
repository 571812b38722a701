// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"fmt"
	"os"
	"time"
)

// An InitRequest is the first request sent on a FUSE file system.
type InitRequest struct {
	Header `json:"-"`
	Kernel Protocol
	// Maximum readahead in bytes that the kernel plans to use.
	MaxReadahead uint32
	Flags        InitFlags
}

var _ = Request(&InitRequest{})

func (r *InitRequest) String() string {
	return fmt.Sprintf("Init [%v] %v ra=%d fl=%v", &r.Header, r.Kernel, r.MaxReadahead, r.Flags)
}

// A DestroyRequest is sent by the kernel when unmounting the file system.
// No more requests will be received after this one, but it should still
// be responded to.
type DestroyRequest struct {
	Header `json:"-"`
}

var _ = Request(&DestroyRequest{})

func (r *DestroyRequest) String() string {
	return fmt.Sprintf("Destroy [%s]", &r.Header)
}

// An InterruptRequest is a request to interrupt another pending request. The
// response to that request should return an error status of EINTR.
// It is never answered itself.
type InterruptRequest struct {
	Header `json:"-"`
	IntrID RequestID // ID of the request to be interrupted
}

var _ = Request(&InterruptRequest{})

func (r *InterruptRequest) String() string {
	return fmt.Sprintf("Interrupt [%s] ID %v", &r.Header, r.IntrID)
}

// A LookupRequest asks to look up the given name in the directory named by r.Node.
type LookupRequest struct {
	Header `json:"-"`
	Name   string
}

var _ = Request(&LookupRequest{})

func (r *LookupRequest) String() string {
	return fmt.Sprintf("Lookup [%s] %q", &r.Header, r.Name)
}

// A ForgetRequest is sent by the kernel when forgetting about r.Node
// as returned by r.N lookup requests. It is never answered.
type ForgetRequest struct {
	Header `json:"-"`
	N      uint64
}

var _ = Request(&ForgetRequest{})

func (r *ForgetRequest) String() string {
	return fmt.Sprintf("Forget [%s] %d", &r.Header, r.N)
}

// A ForgetItem is one node dropped by a BatchForgetRequest.
type ForgetItem struct {
	Node NodeID
	N    uint64
}

// A BatchForgetRequest forgets several nodes at once (7.16+).
// It is never answered.
type BatchForgetRequest struct {
	Header `json:"-"`
	Forget []ForgetItem
}

var _ = Request(&BatchForgetRequest{})

func (r *BatchForgetRequest) String() string {
	return fmt.Sprintf("BatchForget [%s] %d nodes", &r.Header, len(r.Forget))
}

// A GetattrRequest asks for the metadata for the file denoted by r.Node.
type GetattrRequest struct {
	Header `json:"-"`
	Flags  GetattrFlags
	Handle HandleID
}

var _ = Request(&GetattrRequest{})

func (r *GetattrRequest) String() string {
	return fmt.Sprintf("Getattr [%s] %v fl=%v", &r.Header, r.Handle, r.Flags)
}

// A SetattrRequest asks to change one or more attributes associated with a file,
// as indicated by Valid.
type SetattrRequest struct {
	Header    `json:"-"`
	Valid     SetattrValid
	Handle    HandleID
	Size      uint64
	LockOwner uint64
	Atime     time.Time
	Mtime     time.Time
	Ctime     time.Time
	// Mode is the file mode to set (when valid).
	Mode os.FileMode
	Uid  uint32
	Gid  uint32
}

var _ = Request(&SetattrRequest{})

func (r *SetattrRequest) String() string {
	return fmt.Sprintf("Setattr [%s] valid=%#x mode=%v size=%d uid=%d gid=%d", &r.Header,
		uint32(r.Valid), r.Mode, r.Size, r.Uid, r.Gid)
}

// A ReadlinkRequest is a request to read a symlink's target.
type ReadlinkRequest struct {
	Header `json:"-"`
}

var _ = Request(&ReadlinkRequest{})

func (r *ReadlinkRequest) String() string {
	return fmt.Sprintf("Readlink [%s]", &r.Header)
}

// A SymlinkRequest is a request to create a symlink making NewName point to Target.
type SymlinkRequest struct {
	Header          `json:"-"`
	NewName, Target string
}

var _ = Request(&SymlinkRequest{})

func (r *SymlinkRequest) String() string {
	return fmt.Sprintf("Symlink [%s] from %q to target %q", &r.Header, r.NewName, r.Target)
}

// A MknodRequest creates a special file named Name in the directory r.Node.
type MknodRequest struct {
	Header `json:"-"`
	Name   string
	Mode   os.FileMode
	Rdev   uint32
	// Umask of the request. Not supported before 7.12.
	Umask os.FileMode
}

var _ = Request(&MknodRequest{})

func (r *MknodRequest) String() string {
	return fmt.Sprintf("Mknod [%s] Name %q mode=%v umask=%v rdev=%d", &r.Header, r.Name, r.Mode, r.Umask, r.Rdev)
}

// A MkdirRequest asks to create (but not open) a directory.
type MkdirRequest struct {
	Header `json:"-"`
	Name   string
	Mode   os.FileMode
	// Umask of the request. Not supported before 7.12.
	Umask os.FileMode
}

var _ = Request(&MkdirRequest{})

func (r *MkdirRequest) String() string {
	return fmt.Sprintf("Mkdir [%s] %q mode=%v umask=%v", &r.Header, r.Name, r.Mode, r.Umask)
}

// A RemoveRequest asks to remove a file or directory from the
// directory r.Node. It is decoded from both UNLINK and RMDIR.
type RemoveRequest struct {
	Header `json:"-"`
	Name   string // name of the entry to remove
	Dir    bool   // is this rmdir?
}

var _ = Request(&RemoveRequest{})

func (r *RemoveRequest) String() string {
	return fmt.Sprintf("Remove [%s] %q dir=%v", &r.Header, r.Name, r.Dir)
}

// A RenameRequest is a request to rename a file.
type RenameRequest struct {
	Header           `json:"-"`
	NewDir           NodeID
	OldName, NewName string
}

var _ = Request(&RenameRequest{})

func (r *RenameRequest) String() string {
	return fmt.Sprintf("Rename [%s] from %q to dirnode %v %q", &r.Header, r.OldName, r.NewDir, r.NewName)
}

// A LinkRequest is a request to create a hard link.
type LinkRequest struct {
	Header  `json:"-"`
	OldNode NodeID
	NewName string
}

var _ = Request(&LinkRequest{})

func (r *LinkRequest) String() string {
	return fmt.Sprintf("Link [%s] node %d to %q", &r.Header, r.OldNode, r.NewName)
}

// OpenFlags are the O_FOO flags passed to open/create/etc calls. For
// example, os.O_WRONLY | os.O_APPEND.
type OpenFlags uint32

const (
	// Access modes. These are not 1-bit flags, but alternatives where
	// only one can be chosen. See the IsReadOnly etc convenience
	// methods.
	OpenReadOnly  OpenFlags = OpenFlags(os.O_RDONLY)
	OpenWriteOnly OpenFlags = OpenFlags(os.O_WRONLY)
	OpenReadWrite OpenFlags = OpenFlags(os.O_RDWR)

	// File was opened in append-only mode, all writes will go to end
	// of file.
	OpenAppend    OpenFlags = OpenFlags(os.O_APPEND)
	OpenCreate    OpenFlags = OpenFlags(os.O_CREATE)
	OpenExclusive OpenFlags = OpenFlags(os.O_EXCL)
	OpenSync      OpenFlags = OpenFlags(os.O_SYNC)
	OpenTruncate  OpenFlags = OpenFlags(os.O_TRUNC)
)

// OpenAccessModeMask is a bitmask that separates the access mode
// from the other flags in OpenFlags.
const OpenAccessModeMask OpenFlags = OpenFlags(os.O_RDONLY | os.O_WRONLY | os.O_RDWR)

// IsReadOnly checks if the read-only access mode is set.
func (fl OpenFlags) IsReadOnly() bool {
	return fl&OpenAccessModeMask == OpenReadOnly
}

// IsWriteOnly checks if the write-only access mode is set.
func (fl OpenFlags) IsWriteOnly() bool {
	return fl&OpenAccessModeMask == OpenWriteOnly
}

// IsReadWrite checks if the read-write access mode is set.
func (fl OpenFlags) IsReadWrite() bool {
	return fl&OpenAccessModeMask == OpenReadWrite
}

func (fl OpenFlags) String() string {
	return fmt.Sprintf("%#o", uint32(fl))
}

// An OpenRequest asks to open a file or directory. It is decoded from
// both OPEN and OPENDIR.
type OpenRequest struct {
	Header `json:"-"`
	Dir    bool // is this Opendir?
	Flags  OpenFlags
}

var _ = Request(&OpenRequest{})

func (r *OpenRequest) String() string {
	return fmt.Sprintf("Open [%s] dir=%v fl=%v", &r.Header, r.Dir, r.Flags)
}

// A CreateRequest asks to create and open a file (not a directory).
type CreateRequest struct {
	Header `json:"-"`
	Name   string
	Flags  OpenFlags
	Mode   os.FileMode
	// Umask of the request. Not supported before 7.12.
	Umask os.FileMode
}

var _ = Request(&CreateRequest{})

func (r *CreateRequest) String() string {
	return fmt.Sprintf("Create [%s] %q fl=%v mode=%v umask=%v", &r.Header, r.Name, r.Flags, r.Mode, r.Umask)
}

// A ReadRequest asks to read from an open file or directory. It is
// decoded from both READ and READDIR.
type ReadRequest struct {
	Header    `json:"-"`
	Dir       bool // is this Readdir?
	Handle    HandleID
	Offset    int64
	Size      int
	Flags     ReadFlags
	LockOwner uint64
	FileFlags OpenFlags
}

var _ = Request(&ReadRequest{})

func (r *ReadRequest) String() string {
	return fmt.Sprintf("Read [%s] %v %d @%#x dir=%v fl=%v lock=%d ffl=%v", &r.Header, r.Handle, r.Size, r.Offset, r.Dir, r.Flags, r.LockOwner, r.FileFlags)
}

// A WriteRequest asks to write to an open file.
type WriteRequest struct {
	Header    `json:"-"`
	Handle    HandleID
	Offset    int64
	Data      []byte
	Flags     WriteFlags
	LockOwner uint64
	FileFlags OpenFlags
}

var _ = Request(&WriteRequest{})

func (r *WriteRequest) String() string {
	return fmt.Sprintf("Write [%s] %v %d @%d fl=%v lock=%d ffl=%v", &r.Header, r.Handle, len(r.Data), r.Offset, r.Flags, r.LockOwner, r.FileFlags)
}

// A StatfsRequest requests information about the mounted file system.
type StatfsRequest struct {
	Header `json:"-"`
}

var _ = Request(&StatfsRequest{})

func (r *StatfsRequest) String() string {
	return fmt.Sprintf("Statfs [%s]", &r.Header)
}

// A ReleaseRequest asks to release (close) an open file handle. It is
// decoded from both RELEASE and RELEASEDIR.
type ReleaseRequest struct {
	Header       `json:"-"`
	Dir          bool // is this Releasedir?
	Handle       HandleID
	Flags        OpenFlags // flags from OpenRequest
	ReleaseFlags ReleaseFlags
	LockOwner    uint64
}

var _ = Request(&ReleaseRequest{})

func (r *ReleaseRequest) String() string {
	return fmt.Sprintf("Release [%s] %v fl=%v rfl=%#x owner=%#x", &r.Header, r.Handle, r.Flags, uint32(r.ReleaseFlags), r.LockOwner)
}

// An FsyncRequest asks to flush file or directory contents to stable
// storage. It is decoded from both FSYNC and FSYNCDIR.
type FsyncRequest struct {
	Header `json:"-"`
	Dir    bool
	Handle HandleID
	Flags  FsyncFlags
}

var _ = Request(&FsyncRequest{})

func (r *FsyncRequest) String() string {
	return fmt.Sprintf("Fsync [%s] Handle %v Flags %#x dir=%v", &r.Header, r.Handle, uint32(r.Flags), r.Dir)
}

// A SetxattrRequest asks to set an extended attribute associated with a file.
type SetxattrRequest struct {
	Header `json:"-"`

	// Flags can make the request fail if attribute does/not already
	// exist. Unfortunately, the constants are platform-specific and
	// not exposed by Go1.2. Look for XATTR_CREATE, XATTR_REPLACE.
	Flags uint32

	Name  string
	Xattr []byte
}

var _ = Request(&SetxattrRequest{})

func (r *SetxattrRequest) String() string {
	xattr, tail := trunc(r.Xattr, 16)
	return fmt.Sprintf("Setxattr [%s] %q %q%s fl=%#x", &r.Header, r.Name, xattr, tail, r.Flags)
}

// A GetxattrRequest asks for the extended attributes associated with r.Node.
type GetxattrRequest struct {
	Header `json:"-"`

	// Maximum size to return. Zero asks for the size only.
	Size uint32

	// Name of the attribute requested.
	Name string
}

var _ = Request(&GetxattrRequest{})

func (r *GetxattrRequest) String() string {
	return fmt.Sprintf("Getxattr [%s] %q %d", &r.Header, r.Name, r.Size)
}

// A ListxattrRequest asks to list the extended attributes associated with r.Node.
type ListxattrRequest struct {
	Header `json:"-"`
	Size   uint32 // maximum size to return
}

var _ = Request(&ListxattrRequest{})

func (r *ListxattrRequest) String() string {
	return fmt.Sprintf("Listxattr [%s] %d", &r.Header, r.Size)
}

// A RemovexattrRequest asks to remove an extended attribute associated with r.Node.
type RemovexattrRequest struct {
	Header `json:"-"`
	Name   string // name of extended attribute
}

var _ = Request(&RemovexattrRequest{})

func (r *RemovexattrRequest) String() string {
	return fmt.Sprintf("Removexattr [%s] %q", &r.Header, r.Name)
}

// A FlushRequest asks for the current state of an open file to be flushed
// to storage, as when a file descriptor is being closed.  A single opened Handle
// may receive multiple FlushRequests over its lifetime.
type FlushRequest struct {
	Header    `json:"-"`
	Handle    HandleID
	LockOwner uint64
}

var _ = Request(&FlushRequest{})

func (r *FlushRequest) String() string {
	return fmt.Sprintf("Flush [%s] %v owner=%#x", &r.Header, r.Handle, r.LockOwner)
}

// A FileLock describes a POSIX byte range lock.
type FileLock struct {
	Start uint64
	End   uint64
	Type  uint32
	Pid   uint32
}

func (l FileLock) String() string {
	return fmt.Sprintf("type=%d [%d,%d] pid=%d", l.Type, l.Start, l.End, l.Pid)
}

// A LockRequest tests, acquires or releases a lock. It is decoded from
// GETLK, SETLK and SETLKW; Wait is set for SETLKW.
type LockRequest struct {
	Header    `json:"-"`
	Handle    HandleID
	Owner     uint64
	Lock      FileLock
	LockFlags LockFlags
	Wait      bool
}

var _ = Request(&LockRequest{})

func (r *LockRequest) String() string {
	return fmt.Sprintf("Lock [%s] %v owner=%#x %v fl=%#x wait=%v", &r.Header, r.Handle, r.Owner, r.Lock, uint32(r.LockFlags), r.Wait)
}

// An AccessRequest asks whether the file can be accessed
// for the purpose specified by the mask.
type AccessRequest struct {
	Header `json:"-"`
	Mask   uint32
}

var _ = Request(&AccessRequest{})

func (r *AccessRequest) String() string {
	return fmt.Sprintf("Access [%s] mask=%#x", &r.Header, r.Mask)
}

// A BmapRequest maps a block of a file to a block of the underlying
// device. Only meaningful for block-device backed file systems.
type BmapRequest struct {
	Header    `json:"-"`
	Block     uint64
	BlockSize uint32
}

var _ = Request(&BmapRequest{})

func (r *BmapRequest) String() string {
	return fmt.Sprintf("Bmap [%s] block=%d bs=%d", &r.Header, r.Block, r.BlockSize)
}

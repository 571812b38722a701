// See the file LICENSE for copyright and licensing information.

// Derived from FUSE's fuse_kernel.h, which carries this notice:
/*
   This file defines the kernel interface of FUSE
   Copyright (C) 2001-2007  Miklos Szeredi <miklos@szeredi.hu>

   This program can be distributed under the terms of the GNU GPL.
   See the file COPYING.

   This -- and only this -- header file may also be distributed under
   the terms of the BSD Licence as follows:

   Copyright (C) 2001-2007 Miklos Szeredi. All rights reserved.

   Redistribution and use in source and binary forms, with or without
   modification, are permitted provided that the following conditions
   are met:
   1. Redistributions of source code must retain the above copyright
      notice, this list of conditions and the following disclaimer.
   2. Redistributions in binary form must reproduce the above copyright
      notice, this list of conditions and the following disclaimer in the
      documentation and/or other materials provided with the distribution.

   THIS SOFTWARE IS PROVIDED BY AUTHOR AND CONTRIBUTORS ``AS IS'' AND
   ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
   IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
   ARE DISCLAIMED.  IN NO EVENT SHALL AUTHOR OR CONTRIBUTORS BE LIABLE
   FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
   DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS
   OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
   HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT
   LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY
   OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF
   SUCH DAMAGE.
*/

package fuse

import "fmt"

// Version range spoken by this package. The kernel and the library
// settle on the smaller of the two minors during INIT.
const (
	protoVersionMinMajor = 7
	protoVersionMinMinor = 8
	protoVersionMaxMajor = 7
	protoVersionMaxMinor = 31
)

const (
	rootID = 1

	// maxWrite is the largest write payload announced in INIT. Linux
	// enforces a minimum of 4 KiB.
	maxWrite = 128 * 1024
)

// An Opcode identifies the operation a kernel request asks for.
type Opcode uint32

const (
	OpLookup      Opcode = 1
	OpForget      Opcode = 2 // no reply
	OpGetattr     Opcode = 3
	OpSetattr     Opcode = 4
	OpReadlink    Opcode = 5
	OpSymlink     Opcode = 6
	OpMknod       Opcode = 8
	OpMkdir       Opcode = 9
	OpUnlink      Opcode = 10
	OpRmdir       Opcode = 11
	OpRename      Opcode = 12
	OpLink        Opcode = 13
	OpOpen        Opcode = 14
	OpRead        Opcode = 15
	OpWrite       Opcode = 16
	OpStatfs      Opcode = 17
	OpRelease     Opcode = 18
	OpFsync       Opcode = 20
	OpSetxattr    Opcode = 21
	OpGetxattr    Opcode = 22
	OpListxattr   Opcode = 23
	OpRemovexattr Opcode = 24
	OpFlush       Opcode = 25
	OpInit        Opcode = 26
	OpOpendir     Opcode = 27
	OpReaddir     Opcode = 28
	OpReleasedir  Opcode = 29
	OpFsyncdir    Opcode = 30
	OpGetlk       Opcode = 31
	OpSetlk       Opcode = 32
	OpSetlkw      Opcode = 33
	OpAccess      Opcode = 34
	OpCreate      Opcode = 35
	OpInterrupt   Opcode = 36 // no reply
	OpBmap        Opcode = 37
	OpDestroy     Opcode = 38
	OpBatchForget Opcode = 42 // no reply
)

var opcodeNames = map[Opcode]string{
	OpLookup:      "LOOKUP",
	OpForget:      "FORGET",
	OpGetattr:     "GETATTR",
	OpSetattr:     "SETATTR",
	OpReadlink:    "READLINK",
	OpSymlink:     "SYMLINK",
	OpMknod:       "MKNOD",
	OpMkdir:       "MKDIR",
	OpUnlink:      "UNLINK",
	OpRmdir:       "RMDIR",
	OpRename:      "RENAME",
	OpLink:        "LINK",
	OpOpen:        "OPEN",
	OpRead:        "READ",
	OpWrite:       "WRITE",
	OpStatfs:      "STATFS",
	OpRelease:     "RELEASE",
	OpFsync:       "FSYNC",
	OpSetxattr:    "SETXATTR",
	OpGetxattr:    "GETXATTR",
	OpListxattr:   "LISTXATTR",
	OpRemovexattr: "REMOVEXATTR",
	OpFlush:       "FLUSH",
	OpInit:        "INIT",
	OpOpendir:     "OPENDIR",
	OpReaddir:     "READDIR",
	OpReleasedir:  "RELEASEDIR",
	OpFsyncdir:    "FSYNCDIR",
	OpGetlk:       "GETLK",
	OpSetlk:       "SETLK",
	OpSetlkw:      "SETLKW",
	OpAccess:      "ACCESS",
	OpCreate:      "CREATE",
	OpInterrupt:   "INTERRUPT",
	OpBmap:        "BMAP",
	OpDestroy:     "DESTROY",
	OpBatchForget: "BATCH_FORGET",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(op))
}

// Notification codes, carried in the error field of an unsolicited
// message (unique 0).
const (
	notifyCodeInvalInode int32 = 2
	notifyCodeInvalEntry int32 = 3
)

// Fixed wire sizes, in bytes. Compat sizes apply below the protocol
// minor noted alongside.
const (
	inHeaderSize  = 40
	outHeaderSize = 16

	attrSize       = 88
	attrCompatSize = 80 // < 7.9, no blksize

	entryOutSize       = 40 + attrSize
	entryOutCompatSize = 40 + attrCompatSize // 120
	attrOutSize        = 16 + attrSize
	attrOutCompatSize  = 16 + attrCompatSize // 96

	openOutSize       = 16
	writeOutSize      = 8
	statfsOutSize     = 80
	getxattrOutSize   = 8
	lkOutSize         = 24
	bmapOutSize       = 8
	initOutSize       = 64
	initOutCompatSize = 24 // < 7.23

	forgetInSize      = 8
	forgetOneSize     = 16
	batchForgetInSize = 8
	getattrInSize     = 16 // >= 7.9, empty before
	setattrInSize     = 88
	mknodInSize       = 16
	mknodInCompatSize = 8 // < 7.12
	mkdirInSize       = 8
	renameInSize      = 8
	linkInSize        = 8
	openInSize        = 8
	createInSize      = 16
	createInCompat    = 8 // < 7.12, same shape as open_in
	releaseInSize     = 24
	flushInSize       = 24
	readInSize        = 40
	readInCompatSize  = 24 // < 7.9
	writeInSize       = 40
	writeInCompatSize = 24 // < 7.9
	fsyncInSize       = 16
	setxattrInSize    = 8
	getxattrInSize    = 8
	lkInSize          = 48
	lkInCompatSize    = 40 // < 7.9
	accessInSize      = 8
	initInSize        = 16 // grows with the kernel's version, never shrinks
	interruptInSize   = 8
	bmapInSize        = 16

	direntSize = 24

	notifyInvalInodeOutSize = 24
	notifyInvalEntryOutSize = 16
)

func attrSizeFor(p Protocol) int {
	if p.HasAttrBlockSize() {
		return attrSize
	}
	return attrCompatSize
}

func entryOutSizeFor(p Protocol) int {
	if p.HasAttrBlockSize() {
		return entryOutSize
	}
	return entryOutCompatSize
}

func attrOutSizeFor(p Protocol) int {
	if p.HasAttrBlockSize() {
		return attrOutSize
	}
	return attrOutCompatSize
}

func readInSizeFor(p Protocol) int {
	if p.HasReadWriteFlags() {
		return readInSize
	}
	return readInCompatSize
}

func writeInSizeFor(p Protocol) int {
	if p.HasReadWriteFlags() {
		return writeInSize
	}
	return writeInCompatSize
}

func mknodInSizeFor(p Protocol) int {
	if p.HasUmask() {
		return mknodInSize
	}
	return mknodInCompatSize
}

func createInSizeFor(p Protocol) int {
	if p.HasUmask() {
		return createInSize
	}
	return createInCompat
}

func getattrInSizeFor(p Protocol) int {
	if p.HasGetattrFlags() {
		return getattrInSize
	}
	return 0
}

func initOutSizeFor(p Protocol) int {
	if p.HasTimeGran() {
		return initOutSize
	}
	return initOutCompatSize
}

// InitFlags are negotiated capability bits exchanged during INIT.
type InitFlags uint32

const (
	InitAsyncRead       InitFlags = 1 << 0
	InitPosixLocks      InitFlags = 1 << 1
	InitFileOps         InitFlags = 1 << 2
	InitAtomicTrunc     InitFlags = 1 << 3
	InitExportSupport   InitFlags = 1 << 4
	InitBigWrites       InitFlags = 1 << 5
	InitDontMask        InitFlags = 1 << 6
	InitSpliceWrite     InitFlags = 1 << 7
	InitSpliceMove      InitFlags = 1 << 8
	InitSpliceRead      InitFlags = 1 << 9
	InitFlockLocks      InitFlags = 1 << 10
	InitHasIoctlDir     InitFlags = 1 << 11
	InitAutoInvalData   InitFlags = 1 << 12
	InitDoReaddirplus   InitFlags = 1 << 13
	InitReaddirplusAuto InitFlags = 1 << 14
	InitAsyncDIO        InitFlags = 1 << 15
	InitWritebackCache  InitFlags = 1 << 16
	InitNoOpenSupport   InitFlags = 1 << 17
	InitParallelDirOps  InitFlags = 1 << 18
	InitMaxPages        InitFlags = 1 << 22
)

func (fl InitFlags) String() string {
	return fmt.Sprintf("%#x", uint32(fl))
}

// SetattrValid reports which fields of a SetattrRequest are set.
type SetattrValid uint32

const (
	SetattrMode      SetattrValid = 1 << 0
	SetattrUid       SetattrValid = 1 << 1
	SetattrGid       SetattrValid = 1 << 2
	SetattrSize      SetattrValid = 1 << 3
	SetattrAtime     SetattrValid = 1 << 4
	SetattrMtime     SetattrValid = 1 << 5
	SetattrHandle    SetattrValid = 1 << 6
	SetattrAtimeNow  SetattrValid = 1 << 7
	SetattrMtimeNow  SetattrValid = 1 << 8
	SetattrLockOwner SetattrValid = 1 << 9
	SetattrCtime     SetattrValid = 1 << 10
)

func (fl SetattrValid) Mode() bool      { return fl&SetattrMode != 0 }
func (fl SetattrValid) Uid() bool       { return fl&SetattrUid != 0 }
func (fl SetattrValid) Gid() bool       { return fl&SetattrGid != 0 }
func (fl SetattrValid) Size() bool      { return fl&SetattrSize != 0 }
func (fl SetattrValid) Atime() bool     { return fl&SetattrAtime != 0 }
func (fl SetattrValid) Mtime() bool     { return fl&SetattrMtime != 0 }
func (fl SetattrValid) Handle() bool    { return fl&SetattrHandle != 0 }
func (fl SetattrValid) AtimeNow() bool  { return fl&SetattrAtimeNow != 0 }
func (fl SetattrValid) MtimeNow() bool  { return fl&SetattrMtimeNow != 0 }
func (fl SetattrValid) LockOwner() bool { return fl&SetattrLockOwner != 0 }
func (fl SetattrValid) Ctime() bool     { return fl&SetattrCtime != 0 }

// OpenResponseFlags are returned to the kernel in an open reply.
type OpenResponseFlags uint32

const (
	OpenDirectIO    OpenResponseFlags = 1 << 0 // bypass page cache for this open file
	OpenKeepCache   OpenResponseFlags = 1 << 1 // don't invalidate the data cache on open
	OpenNonSeekable OpenResponseFlags = 1 << 2 // (Linux?)
	OpenCacheDir    OpenResponseFlags = 1 << 3
)

// ReleaseFlags accompany a release request.
type ReleaseFlags uint32

const (
	ReleaseFlush       ReleaseFlags = 1 << 0
	ReleaseFlockUnlock ReleaseFlags = 1 << 1
)

// GetattrFlags accompany a getattr request (7.9+).
type GetattrFlags uint32

// GetattrFh means the Handle field of the request is valid.
const GetattrFh GetattrFlags = 1 << 0

// ReadFlags accompany a read request (7.9+).
type ReadFlags uint32

const ReadLockOwner ReadFlags = 1 << 1

// WriteFlags accompany a write request.
type WriteFlags uint32

const (
	WriteCache     WriteFlags = 1 << 0
	WriteLockOwner WriteFlags = 1 << 1
)

// LockFlags accompany lock requests (7.9+).
type LockFlags uint32

// LockFlock marks a BSD flock(2) lock rather than a POSIX one.
const LockFlock LockFlags = 1 << 0

// FsyncFlags accompany fsync and fsyncdir requests.
type FsyncFlags uint32

// FsyncDataOnly asks for data to be synced, not metadata.
const FsyncDataOnly FsyncFlags = 1 << 0

func lkInSizeFor(p Protocol) int {
	if p.HasLockFlags() {
		return lkInSize
	}
	return lkInCompatSize
}

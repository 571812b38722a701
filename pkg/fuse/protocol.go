// See the file LICENSE for copyright and licensing information.

package fuse

import "fmt"

// Protocol is a FUSE protocol version number.
type Protocol struct {
	Major uint32
	Minor uint32
}

// LibraryProtocol is the newest protocol version this package speaks.
var LibraryProtocol = Protocol{protoVersionMaxMajor, protoVersionMaxMinor}

// MinProtocol is the oldest kernel protocol version this package accepts.
var MinProtocol = Protocol{protoVersionMinMajor, protoVersionMinMinor}

func (p Protocol) String() string {
	return fmt.Sprintf("%d.%d", p.Major, p.Minor)
}

// LT returns whether a is less than b.
func (a Protocol) LT(b Protocol) bool {
	return a.Major < b.Major ||
		(a.Major == b.Major && a.Minor < b.Minor)
}

// GE returns whether a is greater than or equal to b.
func (a Protocol) GE(b Protocol) bool {
	return a.Major > b.Major ||
		(a.Major == b.Major && a.Minor >= b.Minor)
}

func (a Protocol) is79() bool {
	return a.GE(Protocol{7, 9})
}

// HasAttrBlockSize returns whether Attr.BlockSize is respected by the
// kernel.
func (a Protocol) HasAttrBlockSize() bool {
	return a.is79()
}

// HasReadWriteFlags returns whether ReadRequest/WriteRequest
// fields Flags and FileFlags are valid.
func (a Protocol) HasReadWriteFlags() bool {
	return a.is79()
}

// HasGetattrFlags returns whether GetattrRequest field Flags is
// valid.
func (a Protocol) HasGetattrFlags() bool {
	return a.is79()
}

// HasLockFlags returns whether LockRequest field LockFlags is valid.
func (a Protocol) HasLockFlags() bool {
	return a.is79()
}

func (a Protocol) is710() bool {
	return a.GE(Protocol{7, 10})
}

// HasOpenNonSeekable returns whether OpenResponse field Flags flag
// OpenNonSeekable is supported.
func (a Protocol) HasOpenNonSeekable() bool {
	return a.is710()
}

func (a Protocol) is712() bool {
	return a.GE(Protocol{7, 12})
}

// HasUmask returns whether CreateRequest/MkdirRequest/MknodRequest
// field Umask is valid.
func (a Protocol) HasUmask() bool {
	return a.is712()
}

// HasInvalidate returns whether InvalidateNode/InvalidateEntry are
// supported.
func (a Protocol) HasInvalidate() bool {
	return a.is712()
}

// HasBatchForget returns whether the kernel may send BATCH_FORGET.
func (a Protocol) HasBatchForget() bool {
	return a.GE(Protocol{7, 16})
}

// HasTimeGran returns whether the INIT reply carries time_gran, and
// with it the full-size init_out.
func (a Protocol) HasTimeGran() bool {
	return a.GE(Protocol{7, 23})
}

// HasMaxPages returns whether the INIT reply carries max_pages.
func (a Protocol) HasMaxPages() bool {
	return a.GE(Protocol{7, 28})
}

// NegotiateProtocol picks the protocol spoken for the rest of a session
// given the version the kernel announced in INIT.
//
// A kernel with a newer major version gets our version back and is
// expected to retry INIT; retry is true in that case. A kernel older
// than MinProtocol yields an *OldVersionError and the INIT must be
// answered with EPROTO.
func NegotiateProtocol(kernel Protocol) (proto Protocol, retry bool, err error) {
	if kernel.Major > LibraryProtocol.Major {
		return LibraryProtocol, true, nil
	}
	if kernel.LT(MinProtocol) {
		return Protocol{}, false, &OldVersionError{
			Kernel:     kernel,
			LibraryMin: MinProtocol,
		}
	}
	proto = LibraryProtocol
	if kernel.LT(proto) {
		// Kernel doesn't support the latest version we have.
		proto = kernel
	}
	return proto, false, nil
}

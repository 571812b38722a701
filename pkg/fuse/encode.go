// See the file LICENSE for copyright and licensing information.

package fuse

import "encoding/binary"

func newBuffer(extra int) []byte {
	buf := make([]byte, outHeaderSize, outHeaderSize+extra)
	return buf
}

// frame fills in the out header of a finished message.
func frame(buf []byte, unique uint64, errno int32) []byte {
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(buf)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(errno))
	binary.LittleEndian.PutUint64(buf[8:], unique)
	return buf
}

// EncodeReply builds the successful reply to request id.
func EncodeReply(id RequestID, resp Response, proto Protocol) []byte {
	if resp == nil {
		resp = EmptyResponse{}
	}
	buf := resp.appendPayload(newBuffer(0), proto)
	return frame(buf, uint64(id), 0)
}

// EncodeError builds a header-only reply to request id carrying the
// errno of err (see ToErrno). FUSE uses negative errors.
func EncodeError(id RequestID, err error) []byte {
	errno := ToErrno(err)
	return frame(newBuffer(0), uint64(id), -int32(errno))
}

// encodeInvalidateNode builds a FUSE_NOTIFY_INVAL_INODE message.
func encodeInvalidateNode(node NodeID, off int64, size int64) []byte {
	buf := newBuffer(notifyInvalInodeOutSize)
	buf = appendUint64(buf, uint64(node))
	buf = appendUint64(buf, uint64(off))
	buf = appendUint64(buf, uint64(size))
	return frame(buf, 0, notifyCodeInvalInode)
}

// encodeInvalidateEntry builds a FUSE_NOTIFY_INVAL_ENTRY message.
func encodeInvalidateEntry(parent NodeID, name string) []byte {
	buf := newBuffer(notifyInvalEntryOutSize + len(name) + 1)
	buf = appendUint64(buf, uint64(parent))
	buf = appendUint32(buf, uint32(len(name)))
	buf = appendUint32(buf, 0)
	buf = append(buf, name...)
	buf = append(buf, 0)
	return frame(buf, 0, notifyCodeInvalEntry)
}

package doc

import "github.com/kurafs/kfuse/pkg/cli"

var ProtocolCmd = &cli.Command{
	UsageLine: "protocol",
	Short:     "FUSE wire protocol overview",
	Long: `
The kernel and kfuse talk over a /dev/fuse file descriptor obtained from
fusermount. Every read of the device returns exactly one request; every
write carries exactly one reply or notification.

A request starts with a 40-byte little-endian header:

    len u32 | opcode u32 | unique u64 | nodeid u64 | uid u32 | gid u32 | pid u32 | pad u32

followed by an opcode-specific body. A reply starts with a 16-byte header:

    len u32 | error i32 | unique u64

where error is zero or a negated errno, and unique echoes the request it
answers. Notifications use unique 0 and put the notification code in error.

INIT negotiates the protocol version. kfuse speaks major version 7, minor
versions 8 through 31; several reply bodies (entry and attr replies among
them) are shorter for kernels older than 7.9, and INIT itself shrinks before
7.23. A kernel announcing a newer major version is answered with kfuse's own
version and is expected to retry.

FORGET, BATCH_FORGET and INTERRUPT never get a reply. INTERRUPT names the
unique id of an in-flight request; kfuse cancels that request's context and
the filesystem may answer it with EINTR, or finish normally.

DESTROY is sent at unmount and ends the session.
`,
}

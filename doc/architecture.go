package doc

import "github.com/kurafs/kfuse/pkg/cli"

var ArchitectureCmd = &cli.Command{
	UsageLine: "architecture",
	Short:     "kfuse architecture overview",
	Long: `
kfuse is layered as follows:

    pkg/fuse      wire codec (requests, replies, protocol versions), the
                  device channel and mount/unmount through fusermount.
    pkg/fuse/fs   the session: a single receive loop decoding requests and
                  running each in its own goroutine against a FileSystem,
                  with interrupt correlation and graceful shutdown.
    pkg/memfs     an in-memory FileSystem, optionally persisted to bolt.

Every request handed to a FileSystem comes with a context, cancelled when the
kernel interrupts it or the session shuts down, and a reply sink that accepts
exactly one reply. A handler that returns without replying gets EIO sent on
its behalf; a handler that panics is recovered and answered with EIO too.

Shutdown cancels every in-flight request, waits for them up to a grace
period, then closes the device.
`,
}

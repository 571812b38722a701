package doc

import "github.com/kurafs/kfuse/pkg/cli"

var SecurityModelCmd = &cli.Command{
	UsageLine: "security-model",
	Short:     "Permission model overview",
	Long: `
kfuse performs no permission checks of its own. Requests carry the uid, gid
and pid of the calling process, and a FileSystem may act on them.

By default the kernel only lets the mounting user access the filesystem.
fuse-server -allow-other lifts that restriction (it requires user_allow_other
in /etc/fuse.conf). With -default-permissions the kernel enforces the mode
bits reported by the filesystem.
`,
}

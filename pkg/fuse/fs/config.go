// See the file LICENSE for copyright and licensing information.

package fs

import (
	"time"

	"github.com/kurafs/kfuse/pkg/fuse"
	"github.com/kurafs/kfuse/pkg/log"
)

// DefaultGracePeriod is how long a draining Session waits for cancelled
// units before closing the channel.
const DefaultGracePeriod = 5 * time.Second

// A NoReplyTable lists the opcodes the kernel never waits a reply for.
// Replies attempted for them are dropped.
type NoReplyTable map[fuse.Opcode]bool

// DefaultNoReply is the table for protocol 7.31.
var DefaultNoReply = NoReplyTable{
	fuse.OpForget:      true,
	fuse.OpBatchForget: true,
	fuse.OpInterrupt:   true,
}

// Config tunes a Session. The zero value is usable.
type Config struct {
	// Logger receives request tracing at debug level and contract
	// violations at error level. Defaults to log.Discarder().
	Logger *log.Logger

	// GracePeriod bounds the wait for in-flight units at shutdown.
	GracePeriod time.Duration

	// MaxInflight bounds the number of concurrently running units.
	// Zero means unlimited.
	MaxInflight int

	// NoReply overrides DefaultNoReply.
	NoReply NoReplyTable

	// Trace records every dispatch unit with golang.org/x/net/trace.
	Trace bool

	// MaxReadahead, InitFlags and MaxWrite seed the InitResponse given
	// to FileSystem.Init; see fuse.MountConfig.
	MaxReadahead uint32
	InitFlags    fuse.InitFlags
	MaxWrite     uint32
}

func (c *Config) withDefaults() Config {
	var conf Config
	if c != nil {
		conf = *c
	}
	if conf.Logger == nil {
		conf.Logger = log.Discarder()
	}
	if conf.GracePeriod <= 0 {
		conf.GracePeriod = DefaultGracePeriod
	}
	if conf.NoReply == nil {
		conf.NoReply = DefaultNoReply
	}
	if conf.MaxWrite == 0 {
		conf.MaxWrite = 128 * 1024
	}
	return conf
}

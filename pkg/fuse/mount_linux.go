// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// MountpointDoesNotExistError is an error returned when the
// mountpoint does not exist.
type MountpointDoesNotExistError struct {
	Path string
}

var _ error = (*MountpointDoesNotExistError)(nil)

func (e *MountpointDoesNotExistError) Error() string {
	return fmt.Sprintf("mountpoint does not exist: %v", e.Path)
}

// fusermountError picks a friendlier error out of the helper's stderr.
func fusermountError(stderr []byte) error {
	const (
		noMountpointPrefix = `fusermount: failed to access mountpoint `
		noMountpointSuffix = `: No such file or directory`
	)
	sc := bufio.NewScanner(bytes.NewReader(stderr))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, noMountpointPrefix) && strings.HasSuffix(line, noMountpointSuffix) {
			return &MountpointDoesNotExistError{
				Path: line[len(noMountpointPrefix) : len(line)-len(noMountpointSuffix)],
			}
		}
	}
	return nil
}

// Mount mounts a new FUSE file system on the named directory and
// returns a Channel on the kernel device. Nothing is served until a
// Session runs on the Channel; the INIT handshake happens there.
//
// The options that shape INIT (MaxReadahead, AsyncRead,
// WritebackCache) are not seen by the kernel; pass them to the
// Session too, see MountConfig.
func Mount(dir string, options ...MountOption) (*Channel, error) {
	conf, err := newMountConfig(options)
	if err != nil {
		return nil, err
	}
	dev, err := mount(dir, conf)
	if err != nil {
		return nil, err
	}
	return NewChannel(dev), nil
}

func mount(dir string, conf *mountConfig) (*os.File, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socketpair error: %v", err)
	}

	writeFile := os.NewFile(uintptr(fds[0]), "fusermount-child-writes")
	defer writeFile.Close()

	readFile := os.NewFile(uintptr(fds[1]), "fusermount-parent-reads")
	defer readFile.Close()

	args := []string{"--", dir}
	if opts := conf.getOptions(); opts != "" {
		args = append([]string{"-o", opts}, args...)
	}
	cmd := exec.Command("fusermount", args...)
	cmd.Env = append(os.Environ(), "_FUSE_COMMFD=3")
	cmd.ExtraFiles = []*os.File{writeFile}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if helperErr := fusermountError(stderr.Bytes()); helperErr != nil {
			return nil, helperErr
		}
		return nil, fmt.Errorf("fusermount: %v: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	c, err := net.FileConn(readFile)
	if err != nil {
		return nil, fmt.Errorf("FileConn from fusermount socket: %v", err)
	}
	defer c.Close()

	uc, ok := c.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("unexpected FileConn type; expected UnixConn, got %T", c)
	}

	buf := make([]byte, 32) // expect 1 byte
	oob := make([]byte, 32) // expect 24 bytes
	_, oobn, _, _, err := uc.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, fmt.Errorf("reading fusermount socket: %v", err)
	}
	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, fmt.Errorf("ParseSocketControlMessage: %v", err)
	}
	if len(scms) != 1 {
		return nil, fmt.Errorf("expected 1 SocketControlMessage; got scms = %#v", scms)
	}
	gotFds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return nil, fmt.Errorf("unix.ParseUnixRights: %v", err)
	}
	if len(gotFds) != 1 {
		return nil, fmt.Errorf("wanted 1 fd; got %#v", gotFds)
	}

	// Non-blocking lets the runtime poller park reads, so a read
	// deadline or Close can interrupt a pending Receive.
	if err := unix.SetNonblock(gotFds[0], true); err != nil {
		unix.Close(gotFds[0])
		return nil, fmt.Errorf("setting /dev/fuse non-blocking: %v", err)
	}
	return os.NewFile(uintptr(gotFds[0]), "/dev/fuse"), nil
}

// Unmount tries to unmount the file system mounted at dir, first with
// fusermount and then directly.
func Unmount(dir string) error {
	cmd := exec.Command("fusermount", "-u", dir)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if uerr := unix.Unmount(dir, 0); uerr == nil {
		return nil
	}
	output = bytes.TrimRight(output, "\n")
	if len(output) > 0 {
		return fmt.Errorf("%v: %s", err, output)
	}
	return err
}

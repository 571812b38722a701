// See the file LICENSE for copyright and licensing information.

package fs

import (
	"sync"
	"testing"

	"github.com/kurafs/kfuse/pkg/fuse"
)

type sent struct {
	resp fuse.Response
	err  error
}

func recorder() (*replier, *[]sent) {
	var mu sync.Mutex
	var log []sent
	r := &replier{
		hdr: &fuse.Header{ID: 1, Opcode: fuse.OpGetxattr},
		send: func(resp fuse.Response, err error) error {
			mu.Lock()
			defer mu.Unlock()
			log = append(log, sent{resp, err})
			return nil
		},
	}
	return r, &log
}

func TestReplyExactlyOnce(t *testing.T) {
	r, log := recorder()
	reply := &ReplyEmpty{r}

	var wg sync.WaitGroup
	var ok, rejected int32
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = reply.Ok()
			} else {
				err = reply.Error(fuse.ENOENT)
			}
			mu.Lock()
			defer mu.Unlock()
			if err == ErrAlreadyReplied {
				rejected++
			} else {
				ok++
			}
		}(i)
	}
	wg.Wait()
	if ok != 1 || rejected != 19 || len(*log) != 1 {
		t.Errorf("ok=%d rejected=%d sent=%d", ok, rejected, len(*log))
	}
	if !r.replied() {
		t.Error("sink not marked used")
	}
}

func TestReplyErrorNil(t *testing.T) {
	r, log := recorder()
	(&ReplyAttr{r}).Error(nil)
	if got := fuse.ToErrno((*log)[0].err); got != fuse.EIO {
		t.Errorf("got %v, want EIO", got)
	}
}

func TestReplyXattr(t *testing.T) {
	tests := []struct {
		size  uint32
		value string
		errno fuse.Errno
	}{
		{0, "hello", 0},
		{16, "hello", 0},
		{3, "hello", fuse.ERANGE},
	}
	for _, tt := range tests {
		r, log := recorder()
		reply := &ReplyXattr{replier: r, size: tt.size}
		if err := reply.Value([]byte(tt.value)); err != nil {
			t.Fatal(err)
		}
		got := (*log)[0]
		if tt.errno != 0 {
			if fuse.ToErrno(got.err) != tt.errno {
				t.Errorf("size %d: got %v, want %v", tt.size, got.err, tt.errno)
			}
			continue
		}
		switch resp := got.resp.(type) {
		case *fuse.XattrSizeResponse:
			if tt.size != 0 || resp.Size != uint32(len(tt.value)) {
				t.Errorf("size %d: unexpected %v", tt.size, resp)
			}
		case fuse.DataResponse:
			if tt.size == 0 || string(resp) != tt.value {
				t.Errorf("size %d: unexpected %q", tt.size, resp)
			}
		default:
			t.Errorf("size %d: unexpected response %T", tt.size, got.resp)
		}
	}
}

func TestReplyXattrNames(t *testing.T) {
	r, log := recorder()
	reply := &ReplyXattr{replier: r, size: 64}
	reply.Names([]string{"user.a", "user.bc"})
	if got := string((*log)[0].resp.(fuse.DataResponse)); got != "user.a\x00user.bc\x00" {
		t.Errorf("got %q", got)
	}
}

func TestReplyDirectory(t *testing.T) {
	r, log := recorder()
	max := fuse.DirentSize("a") + fuse.DirentSize("bb")
	reply := &ReplyDirectory{replier: r, max: max}

	if !reply.Add(2, "a", fuse.DT_File, 1) {
		t.Fatal("first entry rejected")
	}
	if !reply.Add(3, "bb", fuse.DT_Dir, 2) {
		t.Fatal("second entry rejected")
	}
	if reply.Add(4, "c", fuse.DT_File, 3) {
		t.Fatal("entry beyond the requested size accepted")
	}
	if err := reply.Ok(); err != nil {
		t.Fatal(err)
	}
	if got := len((*log)[0].resp.(fuse.DataResponse)); got != max {
		t.Errorf("reply holds %d bytes, want %d", got, max)
	}
}

// See the file LICENSE for copyright and licensing information.

package fuse

import "testing"

func TestMountOptions(t *testing.T) {
	conf, err := newMountConfig([]MountOption{
		FSName("mem,fs"),
		Subtype("kfuse"),
		AllowOther(),
		ReadOnly(),
		MaxReadahead(4096),
		AsyncRead(),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `allow_other,fsname=mem\,fs,ro,subtype=kfuse`
	if got := conf.getOptions(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if conf.maxReadahead != 4096 || conf.initFlags != InitAsyncRead {
		t.Errorf("unexpected init settings ra=%d fl=%v", conf.maxReadahead, conf.initFlags)
	}
}

func TestMountOptionsAllowOtherAndRoot(t *testing.T) {
	_, err := newMountConfig([]MountOption{AllowOther(), AllowRoot()})
	if err != ErrCannotCombineAllowOtherAndAllowRoot {
		t.Errorf("got %v", err)
	}
}

func TestMountConfig(t *testing.T) {
	ra, fl, err := MountConfig(WritebackCache(), MaxReadahead(1<<16))
	if err != nil {
		t.Fatal(err)
	}
	if ra != 1<<16 || fl != InitWritebackCache {
		t.Errorf("got ra=%d fl=%v", ra, fl)
	}
}

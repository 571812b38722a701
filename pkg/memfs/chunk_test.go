// Copyright 2018 The Kura Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memfs

import (
	"bytes"
	"testing"
)

func TestChunker(t *testing.T) {
	parts := 16
	extra := []byte("efghijk")
	chunk := bytes.Repeat([]byte("abcd"), chunkSize/4)
	source := make([]byte, 0, len(chunk)*parts+len(extra))
	for i := 0; i < parts; i++ {
		source = append(source, chunk...)
	}
	source = append(source, extra...)

	c := newChunker(source)
	for i := 0; i < parts; i++ {
		if !c.Next() {
			t.Fatalf("chunk %d missing", i)
		}
		if !bytes.Equal(c.Value(), chunk) {
			t.Errorf("chunk %d differs", i)
		}
	}
	if !c.Next() {
		t.Fatal("trailing chunk missing")
	}
	if got := c.Value(); !bytes.Equal(got, extra) {
		t.Errorf("trailing chunk is %q, want %q", got, extra)
	}
	if c.Next() {
		t.Error("chunker ran past the end")
	}
}

func TestChunkerEmpty(t *testing.T) {
	if newChunker(nil).Next() {
		t.Error("empty source yielded a chunk")
	}

	exact := make([]byte, 2*chunkSize)
	c := newChunker(exact)
	n := 0
	for c.Next() {
		if len(c.Value()) != chunkSize {
			t.Errorf("chunk %d has %d bytes", n, len(c.Value()))
		}
		n++
	}
	if n != 2 {
		t.Errorf("got %d chunks, want 2", n)
	}
}

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

// chunkSize bounds the values checkpoint writes to the data bucket.
const chunkSize = 64 * 1024

// chunker iterates over the chunkSize parts of a byte slice. Call Next
// before the first Value.
type chunker struct {
	part   int
	source []byte
}

func newChunker(source []byte) *chunker {
	return &chunker{part: -1, source: source}
}

// Value returns the current chunk.
func (c *chunker) Value() []byte {
	end := (c.part + 1) * chunkSize
	if end >= len(c.source) {
		end = len(c.source)
	}
	return c.source[c.part*chunkSize : end]
}

// Next advances to the next chunk.
func (c *chunker) Next() bool {
	c.part++
	return c.part*chunkSize < len(c.source)
}

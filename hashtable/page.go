// Copyright © 2018-2020 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package hashtable implements the partitioned, open-addressed compact
// hash index: a build-time mmap'd mutable Builder that merges taxa by
// LCA under compare-and-swap, and a read-time mmap'd Reader that stitches
// a logical overflow prefix from the following partition onto the tail of
// each page so a linear probe never has to wrap around modulo a
// partition boundary.
package hashtable

import "github.com/kr2go/kr2go/hashkey"

// Page is one partition's data plus, when the partition's last slot was
// occupied, a borrowed prefix of the next partition's data appended after
// it (the "overflow" — see spec's linear-probe-overflow-stitching
// requirement). Size is the logical length actually populated (own data
// plus any stitched overflow); Data always has capacity for at least that
// many elements.
type Page struct {
	Index int
	Size  int
	Data  []uint32
}

// NewPage wraps an already-loaded, already-stitched slice of raw 32-bit
// cells for partition index.
func NewPage(index int, data []uint32) Page {
	return Page{Index: index, Size: len(data), Data: data}
}

// Merge appends other's data after p's own, growing p.Size accordingly.
// Used to attach the next partition's non-empty prefix.
func (p *Page) Merge(other Page) {
	p.Data = append(p.Data, other.Data[:other.Size]...)
	p.Size += other.Size
}

// FindIndex performs the hash table's linear probe starting at index,
// returning the taxid stored at the first slot that is either empty or
// holds a matching compacted key, or 0 if neither is found before the
// probe runs off the end of the (possibly overflow-extended) page.
func (p Page) FindIndex(index int, compactedKey uint32, valueBits, valueMask int) uint32 {
	idx := index
	if idx >= p.Size {
		return 0
	}
	for {
		cell := p.Data[idx]
		right := hashkey.Right32(cell, valueMask)
		if right == 0 || hashkey.Left32(cell, valueBits) == compactedKey {
			return right
		}
		idx++
		if idx >= p.Size {
			return 0
		}
	}
}

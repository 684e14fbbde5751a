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

package hashtable

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"

	"github.com/kr2go/kr2go/hashkey"
)

const pageHeaderSize = 16 // index (u64) + capacity (u64), little-endian

// Reader is a read-only, mmap-backed view over one or more partition
// shards, all loaded (each with its overflow prefix stitched on) when the
// Reader is built.
type Reader struct {
	config hashkey.Config
	files  []string
	start  int
	pages  []Page
}

// FromHashFiles opens every partition in hashFiles (index order).
func FromHashFiles(config hashkey.Config, hashFiles []string) (*Reader, error) {
	return FromRange(config, hashFiles, 0, len(hashFiles))
}

// FromRange loads partitions [start, end) of hashFiles, each with its
// overflow prefix stitched from the following partition (wrapping around
// for version-0 / legacy single-ring databases).
func FromRange(config hashkey.Config, hashFiles []string, start, end int) (*Reader, error) {
	r := &Reader{config: config, files: hashFiles, start: start, pages: make([]Page, 0, end-start)}
	for i := start; i < end; i++ {
		page, err := readPageWithOverflow(config, hashFiles, i)
		if err != nil {
			return nil, errors.Wrapf(err, "hashtable: loading partition %d", i)
		}
		r.pages = append(r.pages, page)
	}
	return r, nil
}

// GetFromPage looks up the taxid for a minimizer whose probe index is idx
// and whose compacted key is compacted, within the partition at
// pageIndex.
func (r *Reader) GetFromPage(idx int, compacted uint32, pageIndex int) uint32 {
	local := pageIndex - r.start
	if local < 0 || local >= len(r.pages) {
		return 0
	}
	return r.pages[local].FindIndex(idx, compacted, r.config.ValueBits, r.config.ValueMask())
}

func readPageWithOverflow(config hashkey.Config, hashFiles []string, index int) (Page, error) {
	page, err := readPage(hashFiles[index])
	if err != nil {
		return Page{}, err
	}

	if page.Size > 0 && page.Data[page.Size-1] != 0 {
		nextFile := hashFiles[index]
		if config.Version < 1 {
			nextFile = hashFiles[(index+1)%len(hashFiles)]
		} else if index+1 < len(hashFiles) {
			nextFile = hashFiles[index+1]
		}
		overflow, err := readFirstBlock(nextFile)
		if err != nil {
			return Page{}, err
		}
		page.Merge(overflow)
	}

	return page, nil
}

// readPage loads an entire partition shard (its full declared capacity).
func readPage(path string) (Page, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return Page{}, errors.Wrapf(err, "hashtable: opening %s", path)
	}
	defer r.Close()

	var header [pageHeaderSize]byte
	if _, err := r.ReadAt(header[:], 0); err != nil {
		return Page{}, errors.Wrapf(err, "hashtable: reading header of %s", path)
	}
	index := int(binary.LittleEndian.Uint64(header[0:8]))
	capacity := int(binary.LittleEndian.Uint64(header[8:16]))

	data, err := readU32Slice(r, pageHeaderSize, capacity)
	if err != nil {
		return Page{}, errors.Wrapf(err, "hashtable: reading body of %s", path)
	}

	return NewPage(index, data), nil
}

// readFirstBlock loads only the leading run of a partition up to and
// including its first empty (zero) cell — the prefix a neighboring
// partition's overflowing final probe chain might reach into.
func readFirstBlock(path string) (Page, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return Page{}, errors.Wrapf(err, "hashtable: opening %s", path)
	}
	defer r.Close()

	var header [pageHeaderSize]byte
	if _, err := r.ReadAt(header[:], 0); err != nil {
		return Page{}, errors.Wrapf(err, "hashtable: reading header of %s", path)
	}
	index := int(binary.LittleEndian.Uint64(header[0:8]))
	capacity := int(binary.LittleEndian.Uint64(header[8:16]))

	const chunkElems = 4096
	data := make([]uint32, 0, capacity)
	buf := make([]byte, chunkElems*4)

	firstZeroEnd := capacity
	found := false
	readPos := 0
	for readPos < capacity {
		toRead := capacity - readPos
		if toRead > chunkElems {
			toRead = chunkElems
		}
		chunk := buf[:toRead*4]
		if _, err := r.ReadAt(chunk, int64(pageHeaderSize+readPos*4)); err != nil {
			return Page{}, errors.Wrapf(err, "hashtable: reading %s", path)
		}
		for i := 0; i < toRead; i++ {
			v := binary.LittleEndian.Uint32(chunk[i*4 : i*4+4])
			data = append(data, v)
			if v == 0 {
				firstZeroEnd = readPos + i + 1
				found = true
				break
			}
		}
		if found {
			break
		}
		readPos += toRead
	}

	if !found {
		firstZeroEnd = len(data)
	}
	if firstZeroEnd < len(data) {
		data = data[:firstZeroEnd]
	}

	return NewPage(index, data), nil
}

func readU32Slice(r *mmap.ReaderAt, byteOffset, count int) ([]uint32, error) {
	buf := make([]byte, count*4)
	if count > 0 {
		if _, err := r.ReadAt(buf, int64(byteOffset)); err != nil {
			return nil, err
		}
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return out, nil
}

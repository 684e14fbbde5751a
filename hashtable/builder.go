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
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/kr2go/kr2go/hashkey"
)

// LCAFunc resolves the least common ancestor of two taxids, used by
// Builder.SetCell to merge a minimizer that two different taxa both map
// to, instead of overwriting one with the other.
type LCAFunc func(a, b uint32) uint32

// Builder is a single partition's physical shard, opened read-write and
// memory-mapped so that concurrent workers can merge taxa into the same
// slot with a lock-free compare-and-swap loop, mirroring the build-time
// population of a Kraken 2 style compact hash table.
type Builder struct {
	path     string
	file     *os.File
	mmap     []byte
	cells    []uint32 // aliases mmap[pageHeaderSize:] as native-endian u32 words
	capacity int
	config   hashkey.Config
}

// CreateBuilder creates (or truncates) the shard file at path, sized to
// hold capacity cells plus the page header, and maps it read-write.
func CreateBuilder(path string, index int, capacity int, config hashkey.Config) (*Builder, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "hashtable: creating %s", path)
	}

	size := pageHeaderSize + capacity*4
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "hashtable: sizing %s", path)
	}

	var header [pageHeaderSize]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(index))
	binary.LittleEndian.PutUint64(header[8:16], uint64(capacity))
	if _, err := f.WriteAt(header[:], 0); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "hashtable: writing header of %s", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "hashtable: mmap %s", path)
	}

	b := &Builder{
		path:     path,
		file:     f,
		mmap:     data,
		capacity: capacity,
		config:   config,
	}
	b.cells = aliasAsUint32(data[pageHeaderSize:])
	return b, nil
}

// OpenBuilder re-opens an existing shard (e.g. across a resumed build)
// for further mutation.
func OpenBuilder(path string, config hashkey.Config) (*Builder, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "hashtable: opening %s", path)
	}

	var header [pageHeaderSize]byte
	if _, err := f.ReadAt(header[:], 0); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "hashtable: reading header of %s", path)
	}
	capacity := int(binary.LittleEndian.Uint64(header[8:16]))

	size := pageHeaderSize + capacity*4
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "hashtable: mmap %s", path)
	}

	b := &Builder{
		path:     path,
		file:     f,
		mmap:     data,
		capacity: capacity,
		config:   config,
	}
	b.cells = aliasAsUint32(data[pageHeaderSize:])
	return b, nil
}

// Close unmaps and closes the underlying file.
func (b *Builder) Close() error {
	if err := unix.Munmap(b.mmap); err != nil {
		b.file.Close()
		return errors.Wrap(err, "hashtable: munmap")
	}
	return b.file.Close()
}

// Sync flushes the memory-mapped pages back to disk.
func (b *Builder) Sync() error {
	return unix.Msync(b.mmap, unix.MS_SYNC)
}

// SetCell stores taxid for the minimizer at firstIdx/compactedKey,
// linear-probing on collision and merging by LCA when the same
// compacted key is already present — the compare-and-swap loop a
// concurrent compact hash table build uses to let many worker
// goroutines populate one shard without a lock.
//
// It returns false if the probe chain wrapped all the way back to
// firstIdx without finding room (the shard is full).
func (b *Builder) SetCell(firstIdx int, compactedKey uint32, taxid uint32, lca LCAFunc) bool {
	valueBits := b.config.ValueBits
	valueMask := b.config.ValueMask()
	newValue := hashkey.Combined32(compactedKey, taxid, valueBits)

	idx := firstIdx
	for {
		addr := b.cellAddr(idx)
		for {
			current := atomic.LoadUint32(addr)

			if hashkey.Right32(current, valueMask) == 0 {
				if atomic.CompareAndSwapUint32(addr, current, newValue) {
					return true
				}
				continue // another writer raced us into this slot; re-check it
			}

			if hashkey.Left32(current, valueBits) == compactedKey {
				existingTaxid := hashkey.Right32(current, valueMask)
				merged := lca(taxid, existingTaxid)
				mergedValue := hashkey.Combined32(compactedKey, merged, valueBits)
				if mergedValue == current {
					return true
				}
				if atomic.CompareAndSwapUint32(addr, current, mergedValue) {
					return true
				}
				continue // value changed under us; retry the merge against the new current
			}

			break // occupied by a different key: move to the next probe slot
		}

		idx++
		if idx >= b.capacity {
			idx = 0
		}
		if idx == firstIdx {
			return false
		}
	}
}

func (b *Builder) cellAddr(idx int) *uint32 {
	return (*uint32)(unsafe.Pointer(&b.cells[idx]))
}

// WriteHashtableToFile flushes the shard and reports how many of its
// cells are populated (non-zero).
func (b *Builder) WriteHashtableToFile() (int, error) {
	if err := b.Sync(); err != nil {
		return 0, err
	}
	count := 0
	for _, v := range b.cells {
		if v != 0 {
			count++
		}
	}
	return count, nil
}

func aliasAsUint32(buf []byte) []uint32 {
	n := len(buf) / 4
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&buf[0])), n)
}

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

package build

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"

	"github.com/kr2go/kr2go/hashkey"
)

// HashShardOptions configures hashshard: re-partitioning an existing,
// single-file Kraken 2 style index (hash.k2d, capacity/size/value_bits
// header with no partition concept) into this module's P-partition
// hash_<p>.k2d layout.
type HashShardOptions struct {
	DatabaseDir  string // contains hash.k2d
	OutputDir    string // empty means DatabaseDir
	HashCapacity int    // target per-partition capacity H
}

// HashShard reads a legacy single-shard hash.k2d (Kraken2Header: capacity,
// size, reserved, value_bits) and mmap-copies successive HashCapacity-size
// windows of it out into hash_<p>.k2d files, each carrying the same
// per-partition header (page_index, capacity) every other partitioned
// reader in this module expects.
func HashShard(opts HashShardOptions) error {
	if opts.HashCapacity <= 0 {
		return errors.New("hashshard: hash_capacity must be positive")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = opts.DatabaseDir
	}

	legacyPath := filepath.Join(opts.DatabaseDir, "hash.k2d")
	legacy, err := hashkey.FromKraken2Header(legacyPath)
	if err != nil {
		return errors.Wrapf(err, "hashshard: reading %s", legacyPath)
	}

	const legacyHeaderSize = 32 // 4 u64 fields: capacity, size, reserved, value_bits
	partition := (legacy.Capacity + opts.HashCapacity - 1) / opts.HashCapacity

	src, err := mmap.Open(legacyPath)
	if err != nil {
		return errors.Wrapf(err, "hashshard: mmap-opening %s", legacyPath)
	}
	defer src.Close()

	for p := 0; p < partition; p++ {
		start := p * opts.HashCapacity
		end := start + opts.HashCapacity
		if end > legacy.Capacity {
			end = legacy.Capacity
		}
		cap := end - start

		if err := writeShardRange(src, legacyHeaderSize+start*4, cap, p+1, filepath.Join(opts.OutputDir, fmt.Sprintf("hash_%d.k2d", p+1))); err != nil {
			return err
		}
	}

	cfg := hashkey.Config{
		Version:      1,
		Partition:    partition,
		HashCapacity: opts.HashCapacity,
		Capacity:     legacy.Capacity,
		Size:         legacy.Size,
		ValueBits:    legacy.ValueBits,
	}
	if err := cfg.WriteToFile(filepath.Join(opts.OutputDir, "hash_config.k2d")); err != nil {
		return errors.Wrap(err, "hashshard: writing hash_config.k2d")
	}

	return nil
}

// writeShardRange copies cap little-endian u32 cells starting at
// byteOffset in src out to dest, prefixed with the (page_index, capacity)
// header every partitioned hash shard carries.
func writeShardRange(src *mmap.ReaderAt, byteOffset, cap, pageIndex int, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrapf(err, "hashshard: creating %s", dest)
	}
	defer f.Close()

	var header [16]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(pageIndex))
	binary.LittleEndian.PutUint64(header[8:16], uint64(cap))
	if _, err := f.Write(header[:]); err != nil {
		return err
	}

	buf := make([]byte, cap*4)
	if _, err := src.ReadAt(buf, int64(byteOffset)); err != nil {
		return errors.Wrapf(err, "hashshard: reading source range at %d", byteOffset)
	}
	_, err = f.Write(buf)
	return err
}

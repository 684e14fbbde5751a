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

// Package hashkey implements the bit layout shared by the compact hash
// index builder and reader: how a 64-bit minimizer hash key is split into
// a partition index, a within-partition slot index and a compacted key,
// and how a slot's value packs a compacted key together with either a
// taxid (build/annotate output) or a seq/file index (splitr output).
package hashkey

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

// Config is the frozen set of parameters describing one compact hash
// index: how many partitions it has, how big each partition's capacity
// is, and how many bits of every 32-bit slot are reserved for the value
// versus the compacted key.
type Config struct {
	Version      int
	Partition    int
	HashCapacity int
	Capacity     int
	Size         int
	ValueBits    int
}

// ValueMask returns (1<<ValueBits)-1, the mask over a slot's low-order
// value bits.
func (c Config) ValueMask() int {
	return (1 << uint(c.ValueBits)) - 1
}

// GetIdxBits returns ceil(log2(HashCapacity)), clamped to at least 1: the
// number of bits needed to select a slot within one partition.
func (c Config) GetIdxBits() int {
	if c.HashCapacity <= 1 {
		return 1
	}
	bits := int(math.Ceil(math.Log2(float64(c.HashCapacity))))
	if bits < 1 {
		bits = 1
	}
	return bits
}

// GetIdxMask returns (1<<GetIdxBits())-1.
func (c Config) GetIdxMask() int {
	return (1 << uint(c.GetIdxBits())) - 1
}

// Index returns the position of hashKey within the whole Capacity-sized
// table, all partitions together (linear-probe start position).
func (c Config) Index(hashKey uint64) int {
	return int(hashKey % uint64(c.Capacity))
}

// Compact returns the (index, compactedKey) pair for hashKey: the
// starting probe index and the high bits that uniquely identify the
// minimizer within its probe chain once the low ValueBits are reserved
// for the payload.
func (c Config) Compact(hashKey uint64) (index int, compactedKey uint32) {
	return c.Index(hashKey), uint32(hashKey >> uint(32+c.ValueBits))
}

// Slot packs hashKey and a taxid into a build/annotate-output Slot32 at
// its probe index.
func (c Config) Slot(hashKey uint64, taxid uint32) Slot32 {
	idx := c.Index(hashKey)
	return Slot32{Idx: idx, Value: HashValue32(hashKey, c.ValueBits, taxid)}
}

// SlotU64 packs hashKey and a seq id into a splitr-output Slot64 at its
// probe index.
func (c Config) SlotU64(hashKey uint64, seqID uint64) Slot64 {
	idx := c.Index(hashKey)
	return Slot64{Idx: idx, Value: HashValue64(hashKey, c.ValueBits, seqID)}
}

// WriteToFile serializes the header all hash shards share: version,
// partition count, hash_capacity (the per-partition logical size),
// capacity (the total table size across all partitions), size (elements
// stored), and
// value_bits — as six little-endian u64 fields.
func (c Config) WriteToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "hashkey: creating %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fields := []uint64{
		uint64(c.Version),
		uint64(c.Partition),
		uint64(c.HashCapacity),
		uint64(c.Capacity),
		uint64(c.Size),
		uint64(c.ValueBits),
	}
	var buf [8]byte
	for _, v := range fields {
		binary.LittleEndian.PutUint64(buf[:], v)
		if _, err := w.Write(buf[:]); err != nil {
			return errors.Wrap(err, "hashkey: writing header field")
		}
	}
	return w.Flush()
}

// FromHashHeader reads the shared header format written by WriteToFile.
func FromHashHeader(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "hashkey: opening %s", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	fields, err := readU64Fields(r, 6)
	if err != nil {
		return Config{}, errors.Wrapf(err, "hashkey: reading header of %s", path)
	}

	return Config{
		Version:      int(fields[0]),
		Partition:    int(fields[1]),
		HashCapacity: int(fields[2]),
		Capacity:     int(fields[3]),
		Size:         int(fields[4]),
		ValueBits:    int(fields[5]),
	}, nil
}

// FromKraken2Header reads a legacy (pre-partition) Kraken 2 style header:
// capacity, size, a reserved field, value_bits — and reports it as
// version 0, single-partition.
func FromKraken2Header(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "hashkey: opening %s", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	fields, err := readU64Fields(r, 4)
	if err != nil {
		return Config{}, errors.Wrapf(err, "hashkey: reading kraken2 header of %s", path)
	}

	return Config{
		Version:      0,
		Partition:    0,
		HashCapacity: 0,
		Capacity:     int(fields[0]),
		Size:         int(fields[1]),
		ValueBits:    int(fields[3]),
	}, nil
}

// ValueBitsForTaxonomy returns the number of value bits to use given the
// minimum minNeeded the taxonomy requires (see taxonomy.MinValueBits) and a
// caller-requested minimum requestedBits (0 means "no preference"). It
// errors if the caller asked for fewer bits than the taxonomy actually
// needs; otherwise it returns whichever of the two is larger, so a
// caller can always reserve more bits than the minimum but never less.
func ValueBitsForTaxonomy(requestedBits int, minNeeded int) (int, error) {
	if requestedBits > 0 && minNeeded > requestedBits {
		return 0, errors.Errorf("hashkey: %d bits requested but %d are required to store this taxonomy", requestedBits, minNeeded)
	}
	if requestedBits > minNeeded {
		return requestedBits, nil
	}
	return minNeeded, nil
}

func readU64Fields(r io.Reader, n int) ([]uint64, error) {
	out := make([]uint64, n)
	var buf [8]byte
	for i := range out {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		out[i] = binary.LittleEndian.Uint64(buf[:])
	}
	return out, nil
}

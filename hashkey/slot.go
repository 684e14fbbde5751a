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

package hashkey

// HashValue32 packs a compacted key (the high bits of hashKey beyond
// 32+valueBits) and a value into a single 32-bit build/annotate-output
// slot: compacted_key in the high bits, value in the low valueBits bits.
func HashValue32(hashKey uint64, valueBits int, value uint32) uint32 {
	return Combined32(uint32(hashKey>>uint(32+valueBits)), value, valueBits)
}

// Left32 returns the compacted-key portion of a packed 32-bit value.
func Left32(value uint32, valueBits int) uint32 {
	return value >> uint(valueBits)
}

// Right32 returns the low valueMask bits (the taxid) of a packed 32-bit
// value.
func Right32(value uint32, valueMask int) uint32 {
	return value & uint32(valueMask)
}

// Combined32 packs a left (compacted key) and right (value) pair into one
// 32-bit word.
func Combined32(left, right uint32, valueBits int) uint32 {
	return left<<uint(valueBits) | right
}

// HashValue64 packs a compacted key and a 64-bit value (typically
// file_index<<32 | reads_index) into a splitr-output Slot64 value: the
// compacted key occupies the bits above 32+valueBits, and the value fills
// the low 32+valueBits bits (file index from bit 32 up, reads index in the
// low 32 bits).
func HashValue64(hashKey uint64, valueBits int, value uint64) uint64 {
	return Combined64(hashKey>>uint(32+valueBits), value, valueBits)
}

// Left64 returns the compacted-key portion of a packed 64-bit value.
func Left64(value uint64, valueBits int) uint64 {
	return value >> uint(32+valueBits)
}

// Right64 returns the low (32+valueBits) bits of a packed 64-bit value —
// i.e. everything except the compacted key.
func Right64(value uint64, valueMask int) uint64 {
	mask := (uint64(valueMask) << 32) | 0xFFFFFFFF
	return value & mask
}

// Combined64 packs a left (compacted key) and right (value) pair into one
// 64-bit word.
func Combined64(left, right uint64, valueBits int) uint64 {
	return left<<uint(32+valueBits) | right
}

// Slot32 is one build/annotate-output hash slot: a probe index paired
// with a 32-bit (compacted_key<<v | taxid) value.
type Slot32 struct {
	Idx   int
	Value uint32
}

// Slot64 is one splitr-output hash slot: a probe index paired with a
// 64-bit value whose high bits (above 32+v) carry the compacted key, whose
// low 32 bits carry the reads index (the sequence id), and whose v bits in
// between carry the file index, packed via Combined64.
type Slot64 struct {
	Idx   int
	Value uint64
}

// GetSeqID returns the low 32 bits of a Slot64's value — the sequence
// (read) id assigned during splitting.
func (s Slot64) GetSeqID() uint32 {
	return uint32(Right64(s.Value, 0))
}

// Row is one annotate-output record: a packed (compacted_key<<v | taxid)
// value looked up from the hash table, the sequence id it belongs to, and
// the position (kmer index) within that sequence's minimizer stream.
type Row struct {
	Value  uint32
	SeqID  uint32
	KmerID uint32
}

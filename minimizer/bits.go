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

package minimizer

// reverseComplement reverses the 2-bit-packed l-mer held in the low n*2
// bits of kmer and complements every base, using the same swap-pairs,
// swap-nibbles, swap-bytes, swap-halves bit-reversal trick as the
// reference scanner rather than a per-base loop (faster, and it is the
// idiom this package's algorithm is ported from).
func reverseComplement(kmer uint64, n int) uint64 {
	kmer = (kmer>>2)&0x3333333333333333 | (kmer<<2)&0xCCCCCCCCCCCCCCCC
	kmer = (kmer>>4)&0x0F0F0F0F0F0F0F0F | (kmer<<4)&0xF0F0F0F0F0F0F0F0
	kmer = (kmer>>8)&0x00FF00FF00FF00FF | (kmer<<8)&0xFF00FF00FF00FF00
	kmer = (kmer>>16)&0x0000FFFF0000FFFF | (kmer<<16)&0xFFFF0000FFFF0000
	kmer = (kmer >> 32) | (kmer << 32)

	return (^kmer >> uint(64-n*2)) & ((uint64(1) << uint(n*2)) - 1)
}

// canonicalRepresentation returns the lexicographically smaller of kmer and
// its reverse complement.
func canonicalRepresentation(kmer uint64, n int) uint64 {
	revcom := reverseComplement(kmer, n)
	if kmer < revcom {
		return kmer
	}
	return revcom
}

// charToValue maps one DNA base to its 2-bit code, reporting false for
// anything outside A/C/G/T (including IUPAC ambiguity codes and N, which
// the scanner treats as a window-resetting gap rather than guessing a
// base the way the teacher's Encode does for k-mers).
func charToValue(c byte) (uint64, bool) {
	switch c {
	case 'A', 'a':
		return 0x00, true
	case 'C', 'c':
		return 0x01, true
	case 'G', 'g':
		return 0x02, true
	case 'T', 't':
		return 0x03, true
	default:
		return 0, false
	}
}

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

// MurmurHash3's 64-bit finalizer constants.
const (
	fmixM1 uint64 = 0xff51afd7ed558ccd
	fmixM2 uint64 = 0xc4ceb9fe1a85ec53
)

// FinalizeHash applies the MurmurHash3 fmix64 finalizer to a raw minimizer
// value, producing the hash key used to index the compact hash table. This
// step happens outside the scanner itself (a minimizer is first emitted
// raw by Scanner.Next, then hashed by the caller), matching how the index
// builder and reader apply it at the point a minimizer is about to be
// looked up or stored rather than inside minimizer extraction.
func FinalizeHash(key uint64) uint64 {
	k := key
	k ^= k >> 33
	k *= fmixM1
	k ^= k >> 33
	k *= fmixM2
	k ^= k >> 33
	return k
}

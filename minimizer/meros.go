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

// Package minimizer implements the canonical spaced-seed minimizer scanner:
// a rolling l-mer window over a k-mer span, picking the minimum canonical,
// masked candidate per window.
package minimizer

import "fmt"

// DefaultToggleMask is XORed into every candidate l-mer so that, without a
// caller-supplied mask, minimizer selection isn't biased toward low-entropy
// runs of A's.
const DefaultToggleMask uint64 = 0xe37e28c4271b5a2d

// DefaultSpacedSeedMask, when zero, disables spaced-seed masking (every bit
// position participates in comparison).
const DefaultSpacedSeedMask uint64 = 0

// bitsPerChar is 2 for the DNA alphabet (A/C/G/T).
const bitsPerChar = 2

// ErrInvalidK means k is out of the supported [1,32] range.
var ErrInvalidK = fmt.Errorf("minimizer: k must be in [1,32]")

// ErrInvalidL means l is out of [1,k] or larger than 32.
var ErrInvalidL = fmt.Errorf("minimizer: l must be in [1,min(k,32)]")

// Meros holds the frozen parameters of a minimizer scheme: the k-mer span,
// the l-mer (minimizer) width, and the masks applied to every candidate.
// These values are written into opts.k2d (see IndexOptions) so a reader can reconstruct the exact same scheme used at build time.
type Meros struct {
	KMer            int
	LMer            int
	SpacedSeedMask  uint64
	ToggleMask      uint64
	MinClearHashVal uint64
}

// NewMeros validates k and l and derives the default masks, mirroring
// MinimizerScanner::default from the reference scanner.
func NewMeros(kMer, lMer int) (Meros, error) {
	if kMer < 1 || kMer > 32 {
		return Meros{}, ErrInvalidK
	}
	if lMer < 1 || lMer > kMer || lMer > 32 {
		return Meros{}, ErrInvalidL
	}
	mask := lmerMask(lMer)
	return Meros{
		KMer:           kMer,
		LMer:           lMer,
		SpacedSeedMask: DefaultSpacedSeedMask,
		ToggleMask:     DefaultToggleMask & mask,
	}, nil
}

// WithSpacedSeedMask returns a copy of m with its spaced-seed mask replaced.
func (m Meros) WithSpacedSeedMask(mask uint64) Meros {
	m.SpacedSeedMask = mask
	return m
}

// WithToggleMask returns a copy of m with its toggle mask replaced, masked
// down to the l-mer's bit width.
func (m Meros) WithToggleMask(mask uint64) Meros {
	m.ToggleMask = mask & lmerMask(m.LMer)
	return m
}

// WindowSize is k - l + 1, the number of l-mers compared per minimizer.
func (m Meros) WindowSize() int {
	return m.KMer - m.LMer + 1
}

func lmerMask(lMer int) uint64 {
	return (uint64(1) << uint(lMer*bitsPerChar)) - 1
}

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

import "github.com/shenwei356/bio/seq"

// Scanner extracts canonical spaced-seed minimizers from a nucleotide
// sequence. Call Next repeatedly until it returns ok=false; Reset starts a
// new, independent scan of another sequence (the window never straddles a
// Reset, the same way the reference scanner's Cursor.clear works between
// FASTA/FASTQ records).
//
// Scanner.Next returns the raw minimizer (after the toggle-mask is
// removed again), not yet hashed. Callers that need the index-lookup key
// apply FinalizeHash to the result, matching how the reference builder and
// reader call murmur_hash3 on the minimizer at the point of use rather
// than inside the scanner.
type Scanner struct {
	meros Meros
	mask  uint64

	seq []byte
	pos int

	lmerBuf []uint64 // ring of the last LMer bases, oldest-first
	value   uint64

	window         *window
	lastMinimizer  uint64
	hasLastEmitted bool
}

// NewScanner prepares a Scanner over S. S must be at least meros.LMer bases
// long for any minimizer to be emitted; a sequence shorter than meros.KMer
// yields only its final in-progress minimum.
func NewScanner(meros Meros, s *seq.Seq) *Scanner {
	sc := &Scanner{
		meros:  meros,
		mask:   lmerMask(meros.LMer),
		window: newWindow(meros.KMer, meros.LMer),
	}
	sc.Reset(s)
	return sc
}

// Reset restarts the scanner over a new sequence, clearing all window and
// rolling-buffer state.
func (sc *Scanner) Reset(s *seq.Seq) {
	if s != nil {
		sc.seq = s.Seq
	} else {
		sc.seq = nil
	}
	sc.pos = 0
	sc.lmerBuf = sc.lmerBuf[:0]
	sc.value = 0
	sc.window.reset()
	sc.hasLastEmitted = false
	sc.lastMinimizer = 0
}

// hasNext reports whether unconsumed sequence bytes remain.
func (sc *Scanner) hasNext() bool {
	return sc.pos < len(sc.seq)
}

// slide advances one base at a time until a full l-mer is available,
// resetting the rolling buffer whenever it hits a non-ACGT base (the same
// gap-handling the reference Cursor.clear performs).
func (sc *Scanner) slide() (uint64, bool) {
	for sc.pos < len(sc.seq) {
		c := sc.seq[sc.pos]
		sc.pos++

		code, ok := charToValue(c)
		if !ok {
			sc.lmerBuf = sc.lmerBuf[:0]
			sc.value = 0
			sc.window.reset()
			continue
		}

		if lmer, full := sc.nextLMer(code); full {
			return lmer, true
		}
	}
	return 0, false
}

func (sc *Scanner) nextLMer(code uint64) (uint64, bool) {
	sc.value <<= bitsPerChar
	sc.value |= code

	if len(sc.lmerBuf) == sc.meros.LMer {
		sc.lmerBuf = sc.lmerBuf[1:]
	}
	sc.lmerBuf = append(sc.lmerBuf, code)

	if len(sc.lmerBuf) >= sc.meros.LMer {
		sc.value &= sc.mask
		return sc.value, true
	}
	return 0, false
}

func (sc *Scanner) toCandidate(lmer uint64) uint64 {
	candidate := canonicalRepresentation(lmer, sc.meros.LMer)
	if sc.meros.SpacedSeedMask > 0 {
		candidate &= sc.meros.SpacedSeedMask
	}
	return candidate ^ sc.meros.ToggleMask
}

// Next returns the next minimizer in the sequence, or ok=false once the
// sequence (and any final partial window) is exhausted.
func (sc *Scanner) Next() (minimizer uint64, ok bool) {
	for sc.hasNext() {
		lmer, got := sc.slide()
		if !got {
			continue
		}
		candidate := sc.toCandidate(lmer)
		blockMin, emitted := sc.window.nextCandidate(candidate)
		if !emitted {
			continue
		}
		if !sc.hasLastEmitted || blockMin != sc.lastMinimizer {
			sc.lastMinimizer = blockMin
			sc.hasLastEmitted = true
			return blockMin ^ sc.meros.ToggleMask, true
		}
	}

	last, has := sc.window.lastMinimizer()
	sc.window.reset()
	if !has {
		return 0, false
	}
	return last ^ sc.meros.ToggleMask, true
}

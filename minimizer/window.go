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

// window tracks the minimum candidate l-mer over a block of `capacity`
// consecutive candidates, emitting one minimizer per full block and
// carrying the running minimum into the next block whenever it's still
// the smallest value seen (so a minimizer is re-emitted only when it
// actually changes, not once per block unconditionally).
type window struct {
	queue      []uint64
	count      int
	capacity   int
	hasCurrent bool
	current    uint64
}

func newWindow(kMer, lMer int) *window {
	capacity := kMer - lMer + 1
	return &window{
		queue:    make([]uint64, 0, capacity),
		capacity: capacity,
	}
}

func (w *window) setCurrent(val uint64, has bool) {
	w.current = val
	w.hasCurrent = has
	w.queue = w.queue[:0]
}

// nextCandidate feeds one candidate l-mer into the window. It returns the
// block's minimum and true once every `capacity` candidates have been fed
// since the last emission; otherwise it returns false.
func (w *window) nextCandidate(item uint64) (uint64, bool) {
	if w.capacity == 1 {
		return item, true
	}

	if w.hasCurrent && w.current < item {
		w.queue = append(w.queue, item)
	} else {
		w.setCurrent(item, true)
	}

	w.count++
	if w.count >= w.capacity {
		w.count = 0
		cur, has := w.current, w.hasCurrent
		w.setCurrent(minOf(w.queue), len(w.queue) > 0)
		return cur, has
	}
	return 0, false
}

// lastMinimizer returns the minimum seen so far even if a full block
// hasn't been completed, used when the underlying sequence runs out.
func (w *window) lastMinimizer() (uint64, bool) {
	if w.hasCurrent {
		return w.current, true
	}
	if len(w.queue) > 0 {
		return minOf(w.queue), true
	}
	return 0, false
}

func (w *window) reset() {
	w.hasCurrent = false
	w.count = 0
	w.queue = w.queue[:0]
}

func minOf(vals []uint64) uint64 {
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

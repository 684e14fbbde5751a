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

package pipeline

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash"
)

// ReadCounter accumulates, for one taxon, how many reads were assigned
// to it and how many distinct minimizers among those reads' k-mers were
// ever seen — the per-taxon statistics a Kraken 2 style report prints
// alongside each line's read count.
//
// The upstream implementation can track distinct k-mers exactly (a
// HashSet) or approximately (a HyperLogLog++ sketch) behind the same
// interface; this port always counts exactly. A report-quality estimate
// for a few hundred thousand taxa easily fits in memory as a Go map, so
// there is no matching pressure to trade accuracy for a probabilistic
// sketch the way a fixed-size on-disk structure would need to.
type ReadCounter struct {
	nReads uint64
	nKmers uint64
	kmers  map[uint64]struct{}
}

// NewReadCounter returns an empty counter.
func NewReadCounter() *ReadCounter {
	return &ReadCounter{kmers: make(map[uint64]struct{})}
}

// ReadCount returns the number of reads assigned to this taxon.
func (r *ReadCounter) ReadCount() uint64 { return r.nReads }

// IncrementReadCount records one more read assigned to this taxon.
func (r *ReadCounter) IncrementReadCount() { r.nReads++ }

// KmerCount returns the total (non-distinct) number of k-mers counted.
func (r *ReadCounter) KmerCount() uint64 { return r.nKmers }

// AddKmer records one occurrence of kmer against this taxon. The distinct
// set is keyed by an xxhash digest of the packed value rather than the
// raw 8-byte key, the same hash teacher's sketch.go reaches for whenever
// it needs a fast, well-distributed digest of a fixed-size byte string.
func (r *ReadCounter) AddKmer(kmer uint64) {
	r.nKmers++
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], kmer)
	r.kmers[xxhash.Sum64(buf[:])] = struct{}{}
}

// DistinctKmerCount returns the number of distinct k-mers seen.
func (r *ReadCounter) DistinctKmerCount() int {
	return len(r.kmers)
}

// Merge folds other's counts into r.
func (r *ReadCounter) Merge(other *ReadCounter) {
	r.nReads += other.nReads
	r.nKmers += other.nKmers
	for k := range other.kmers {
		r.kmers[k] = struct{}{}
	}
}

// TaxonCounters is a concurrency-safe map of taxid to ReadCounter, the
// Go equivalent of a DashMap<u64, ReadCounter> — guarded by a mutex
// rather than a lock-free concurrent map, since nothing in this module's
// dependency stack (teacher or pack) supplies one and the per-batch
// critical section here is a handful of map operations, not a
// throughput bottleneck worth a specialized structure for.
type TaxonCounters struct {
	mu     sync.Mutex
	counts map[uint64]*ReadCounter
}

// NewTaxonCounters returns an empty, ready-to-use counter set.
func NewTaxonCounters() *TaxonCounters {
	return &TaxonCounters{counts: make(map[uint64]*ReadCounter)}
}

// Get returns the counter for taxid, creating it if absent.
func (t *TaxonCounters) Get(taxid uint64) *ReadCounter {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.counts[taxid]
	if !ok {
		c = NewReadCounter()
		t.counts[taxid] = c
	}
	return c
}

// Range calls f for every (taxid, counter) pair currently stored.
func (t *TaxonCounters) Range(f func(taxid uint64, counter *ReadCounter)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for taxid, c := range t.counts {
		f(taxid, c)
	}
}

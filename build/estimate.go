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
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"golang.org/x/sync/errgroup"

	"github.com/kr2go/kr2go/minimizer"
)

// rangeSections and rangeMask implement the "minimizer_hash mod 1024 < n"
// sampling rule: only minimizers whose hash falls in the lowest n of 1024
// bands (an n/1024 fraction) are ever inserted into the counting set, and
// the final estimate scales the
// observed count back up by 1024/n.
const rangeSections = 1024
const rangeMask = rangeSections - 1

// EstimateOptions configures required-capacity estimation.
type EstimateOptions struct {
	LibraryDir     string
	KMer           int
	LMer           int
	SpacedSeedMask uint64
	ToggleMask     uint64
	N              int // hash bands sampled out of 1024 (hash mod 1024 < N); 0 means the default of 4
	LoadFactor     float64 // 0 means the default of 0.7
	NumWorkers     int
}

// EstimateCapacity scans every library_*.fna file under opts.LibraryDir
// and reports the hash table capacity build-db should be given: the
// number of distinct minimizer hashes in an n/1024 sample, scaled
// back up and divided by the target load factor.
//
// The upstream estimator backs this count with a HyperLogLog++ sketch at
// precision 16; the pack here carries no grounded HyperLogLog++
// implementation (see DESIGN.md), so this counts the sampled minimizers
// exactly with a hash set instead — exact rather than approximate, and
// conservative in the same direction a cardinality estimator would be.
func EstimateCapacity(opts EstimateOptions) (uint64, error) {
	if opts.N <= 0 {
		opts.N = 4
	}
	if opts.LoadFactor <= 0 {
		opts.LoadFactor = 0.7
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}

	meros, err := minimizer.NewMeros(opts.KMer, opts.LMer)
	if err != nil {
		return 0, errors.Wrap(err, "estimate: building scanner parameters")
	}
	if opts.SpacedSeedMask != 0 {
		meros = meros.WithSpacedSeedMask(opts.SpacedSeedMask)
	}
	if opts.ToggleMask != 0 {
		meros = meros.WithToggleMask(opts.ToggleMask)
	}

	files, err := findFNAFiles(opts.LibraryDir, ".fna")
	if err != nil {
		return 0, err
	}

	var mu sync.Mutex
	sampled := make(map[uint64]struct{})

	g := new(errgroup.Group)
	g.SetLimit(opts.NumWorkers)

	for _, path := range files {
		path := path
		g.Go(func() error {
			local := make(map[uint64]struct{})
			if err := scanFileMinimizers(path, meros, opts.N, local); err != nil {
				return err
			}
			mu.Lock()
			for k := range local {
				sampled[k] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	sampledCount := float64(len(sampled))
	scaled := sampledCount * float64(rangeSections) / float64(opts.N)
	return uint64(scaled / opts.LoadFactor), nil
}

// scanFileMinimizers scans one FASTA file's records, recording every
// minimizer whose hash falls in the sampled band into set.
func scanFileMinimizers(path string, meros minimizer.Meros, n int, set map[uint64]struct{}) error {
	r, err := fastx.NewDefaultReader(path)
	if err != nil {
		return errors.Wrapf(err, "estimate: opening %s", path)
	}

	for {
		rec, err := r.Read()
		if err != nil {
			break
		}

		s, err := seq.NewSeq(seq.DNA, rec.Seq.Seq)
		if err != nil {
			continue
		}

		scanner := minimizer.NewScanner(meros, s)
		for {
			raw, ok := scanner.Next()
			if !ok {
				break
			}
			hashed := minimizer.FinalizeHash(raw)
			if hashed&rangeMask < uint64(n) {
				set[raw] = struct{}{}
			}
		}
	}
	return nil
}

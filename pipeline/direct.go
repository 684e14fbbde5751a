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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"golang.org/x/sync/errgroup"

	"github.com/kr2go/kr2go/hashkey"
	"github.com/kr2go/kr2go/hashtable"
	"github.com/kr2go/kr2go/minimizer"
	"github.com/kr2go/kr2go/taxonomy"
)

// DirectOptions configures the direct (fused, single-pass) classify
// variant: every partition of the compact hash index is loaded into RAM
// once, up front, and each read is scanned, looked up and resolved in a
// single pass with no chunk files spilled to disk.
type DirectOptions struct {
	DatabaseDir         string
	TaxonomyFile        string
	OutputDir           string // empty means write to stdout
	Compress            bool   // gzip each output_<p>.txt
	InputFiles          []string
	PairedEndProcessing bool
	SingleFilePairs     bool
	MinimumQuality      int
	ConfidenceThreshold float64
	MinimumHitGroups    int
	NumWorkers          int
}

// Direct runs the fused splitr+annotate+resolve pipeline against a fully
// memory-resident hash index: the right choice once a database comfortably
// fits in RAM, trading the three-stage pipeline's bounded-memory guarantee
// for a single pass over the reads and no intermediate shard files.
func Direct(opts DirectOptions) error {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}

	tax, err := taxonomy.FromFile(opts.TaxonomyFile)
	if err != nil {
		return errors.Wrapf(err, "direct: loading taxonomy %s", opts.TaxonomyFile)
	}

	config, err := hashkey.FromHashHeader(filepath.Join(opts.DatabaseDir, "hash_config.k2d"))
	if err != nil {
		return errors.Wrap(err, "direct: reading hash_config.k2d")
	}
	if config.HashCapacity == 0 {
		return errors.New("direct: hash_capacity can't be zero")
	}

	hashFiles, err := findAndSortFiles(opts.DatabaseDir, "hash", ".k2d")
	if err != nil {
		return errors.Wrap(err, "direct: listing hash shards")
	}
	table, err := hashtable.FromHashFiles(config, hashFiles)
	if err != nil {
		return errors.Wrap(err, "direct: loading hash index")
	}

	idxOpts, err := minimizer.ReadIndexOptions(filepath.Join(opts.DatabaseDir, "opts.k2d"))
	if err != nil {
		return errors.Wrap(err, "direct: reading opts.k2d")
	}
	meros, err := idxOpts.AsMeros()
	if err != nil {
		return errors.Wrap(err, "direct: deriving scanner parameters")
	}

	if opts.PairedEndProcessing && !opts.SingleFilePairs && len(opts.InputFiles)%2 != 0 {
		return errors.New("direct: paired-end processing requires an even number of input files")
	}
	groupSize := 1
	if opts.PairedEndProcessing && !opts.SingleFilePairs {
		groupSize = 2
	}
	groups := make([][]string, 0, len(opts.InputFiles)/groupSize+1)
	for i := 0; i < len(opts.InputFiles); i += groupSize {
		end := i + groupSize
		if end > len(opts.InputFiles) {
			end = len(opts.InputFiles)
		}
		groups = append(groups, opts.InputFiles[i:end])
	}

	var sampleWriter io.Writer = io.Discard
	fileIndex := 0
	if opts.OutputDir != "" {
		sampleFile := filepath.Join(opts.OutputDir, "sample_file.map")
		fileIndex, err = lastFileIndex(sampleFile)
		if err != nil {
			return errors.Wrap(err, "direct: reading sample_file.map")
		}
		f, err := os.OpenFile(sampleFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, "direct: opening sample_file.map")
		}
		defer f.Close()
		sampleWriter = f
	}

	for _, group := range groups {
		fileIndex++
		if _, err := fmt.Fprintf(sampleWriter, "%d\t%s\n", fileIndex, joinFiles(group)); err != nil {
			return errors.Wrap(err, "direct: writing sample_file.map")
		}

		w, closeW, err := openResolveOutput(opts.OutputDir, fileIndex, opts.Compress)
		if err != nil {
			return err
		}

		err = directGroup(group, config, table, tax, meros, opts, w)
		closeErr := closeW()
		if err != nil {
			return errors.Wrapf(err, "direct: processing %s", joinFiles(group))
		}
		if closeErr != nil {
			return closeErr
		}
	}

	return nil
}

// directGroup scans one (possibly paired) set of reads, classifying and
// writing out each record as soon as it resolves — there is no spill file
// for annotate to pick up later, so each worker writes its own finished
// line straight to the shared output under a mutex.
func directGroup(group []string, config hashkey.Config, table *hashtable.Reader, tax *taxonomy.Taxonomy, meros minimizer.Meros, opts DirectOptions, w io.Writer) error {
	readers := make([]*fastx.Reader, 0, len(group))
	for _, path := range group {
		r, err := fastx.NewDefaultReader(path)
		if err != nil {
			return errors.Wrapf(err, "direct: opening %s", path)
		}
		readers = append(readers, r)
	}

	var wMu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(opts.NumWorkers)

	for {
		mates := make([]mateRead, len(readers))
		anyRead := false
		for i, r := range readers {
			rec, err := r.Read()
			if err == io.EOF {
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "direct: reading %s", group[i])
			}
			mates[i] = mateRead{
				id:  string(rec.ID),
				seq: append([]byte(nil), rec.Seq.Seq...),
				ok:  true,
			}
			anyRead = true
		}
		if !anyRead {
			break
		}

		g.Go(func() error {
			line, err := classifyRecord(mates, config, table, tax, meros, opts.ConfidenceThreshold, opts.MinimumHitGroups)
			if err != nil {
				return err
			}
			wMu.Lock()
			_, err = io.WriteString(w, line)
			wMu.Unlock()
			return err
		})
	}

	return g.Wait()
}

// classifyRecord fuses process_seq+process_record: it scans every mate's
// minimizers against the already-resident hash table, resolves the
// collected taxid hits, and renders one Kraken-style output line —
// classification call, read id, external taxid, mate sequence lengths and
// the per-k-mer hit string — without ever touching disk for the lookup.
func classifyRecord(mates []mateRead, config hashkey.Config, table *hashtable.Reader, tax *taxonomy.Taxonomy, meros minimizer.Meros, confidenceThreshold float64, minimumHitGroups int) (string, error) {
	var rows []hashkey.Row
	var seqSizes []string
	var kmerCount1 uint32
	var kmerID uint32
	var kmerCount2 *uint32
	readID := ""

	for mi, mate := range mates {
		if !mate.ok {
			continue
		}
		if mi == 0 {
			readID = mate.id
		}

		s, err := seq.NewSeq(seq.DNA, mate.seq)
		if err != nil {
			return "", errors.Wrap(err, "direct: building sequence")
		}

		scanner := minimizer.NewScanner(meros, s)
		for {
			raw, ok := scanner.Next()
			if !ok {
				break
			}
			id := kmerID
			kmerID++

			hashKey := minimizer.FinalizeHash(raw)
			idx, compacted := config.Compact(hashKey)
			partitionIndex := idx / config.HashCapacity
			localIdx := idx % config.HashCapacity

			taxid := table.GetFromPage(localIdx, compacted, partitionIndex)
			if taxid == 0 {
				continue
			}
			value := hashkey.Combined32(compacted, taxid, config.ValueBits)
			rows = append(rows, hashkey.Row{Value: value, SeqID: 0, KmerID: id})
		}
		seqSizes = append(seqSizes, fmt.Sprintf("%d", len(mate.seq)))

		if mi == 0 && len(mates) > 1 {
			kmerCount1 = kmerID
		}
	}

	if len(mates) > 1 && mates[1].ok {
		c2 := kmerID - kmerCount1
		kmerCount2 = &c2
	} else {
		kmerCount1 = kmerID
	}

	valueMask := config.ValueMask()
	rawCounts, _, hitGroups := CountValues(rows, valueMask, kmerCount1)

	counts := make(map[uint32]uint32, len(rawCounts))
	for taxid, n := range rawCounts {
		counts[taxid] = uint32(n)
	}

	call := resolveTree(counts, tax, int(kmerID), confidenceThreshold)
	if call > 0 && hitGroups < minimumHitGroups {
		call = 0
	}

	extCall := uint64(0)
	if int(call) < len(tax.Nodes) {
		extCall = tax.ExternalID(uint64(call))
	}
	classify := "U"
	if call > 0 {
		classify = "C"
	}

	hitString := AddHitlistString(rows, valueMask, kmerCount1, kmerCount2, tax)

	return fmt.Sprintf("%s\t%s\t%d\t%s\t%s\n", classify, readID, extCall, joinSizes(seqSizes), hitString), nil
}

// joinSizes renders per-mate sequence lengths the way Kraken 2 style
// output does for paired reads: "len1|len2", or just "len1" unpaired.
func joinSizes(sizes []string) string {
	out := ""
	for i, s := range sizes {
		if i > 0 {
			out += "|"
		}
		out += s
	}
	return out
}

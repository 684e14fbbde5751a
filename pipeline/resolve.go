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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	gzip "github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/kr2go/kr2go/hashkey"
	"github.com/kr2go/kr2go/taxonomy"
)

// ResolveOptions configures the final resolve stage: turning annotated
// per-read taxid hits into a Kraken 2 style classification call for
// every read.
type ResolveOptions struct {
	ChunkDir            string
	DatabaseDir         string
	TaxonomyFile        string
	ConfidenceThreshold float64
	MinimumHitGroups    int
	KrakenOutputDir     string // empty means write to stdout
	Compress            bool   // gzip each output_<p>.txt
	NumWorkers          int
}

// sampleIDRecord is one line of a sample_id_<n>.map file: the read's
// original id, its per-mate sequence sizes (already "|"-joined by
// splitr, passed straight through into the output line), and its
// per-mate k-mer counts — used to find the mate-pair boundary in a
// read's collected hash hits and, summed, as the confidence-threshold
// denominator.
type sampleIDRecord struct {
	readID     string
	sizes      string
	kmerCounts []uint32
	total      int
}

// Resolve reads every input file's annotated hash hits (sample_file_<n>.bin,
// Row-shaped: 12-byte records whose low value bits hold a taxid) and
// the matching sample_id_<n>.map id table, calls resolveTree on each
// read's collected hits, and writes one classification line per read.
// Each sample_file/sample_id pair is deleted once its output is written.
func Resolve(opts ResolveOptions) error {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}

	tax, err := taxonomy.FromFile(opts.TaxonomyFile)
	if err != nil {
		return errors.Wrapf(err, "resolve: loading taxonomy %s", opts.TaxonomyFile)
	}

	config, err := hashkey.FromHashHeader(filepath.Join(opts.DatabaseDir, "hash_config.k2d"))
	if err != nil {
		return errors.Wrap(err, "resolve: reading hash_config.k2d")
	}
	valueMask := config.ValueMask()

	sampleFiles, err := findAndSortFiles(opts.ChunkDir, "sample_file", ".bin")
	if err != nil {
		return errors.Wrap(err, "resolve: listing sample_file_*.bin")
	}
	sampleIDFiles, err := findAndSortFiles(opts.ChunkDir, "sample_id", ".map")
	if err != nil {
		return errors.Wrap(err, "resolve: listing sample_id_*.map")
	}
	if len(sampleFiles) != len(sampleIDFiles) {
		return errors.Errorf("resolve: %d sample_file shards but %d sample_id maps", len(sampleFiles), len(sampleIDFiles))
	}

	for i, sampleFile := range sampleFiles {
		idMap, err := readIDToSeqMap(sampleIDFiles[i])
		if err != nil {
			return errors.Wrapf(err, "resolve: reading %s", sampleIDFiles[i])
		}

		w, closeW, err := openResolveOutput(opts.KrakenOutputDir, i, opts.Compress)
		if err != nil {
			return err
		}

		err = resolveSample(sampleFile, tax, idMap, valueMask, opts.ConfidenceThreshold, opts.MinimumHitGroups, opts.NumWorkers, w)
		closeErr := closeW()
		if err != nil {
			return errors.Wrapf(err, "resolve: processing %s", sampleFile)
		}
		if closeErr != nil {
			return closeErr
		}
		if err := os.Remove(sampleFile); err != nil {
			return errors.Wrapf(err, "resolve: removing %s", sampleFile)
		}
		if err := os.Remove(sampleIDFiles[i]); err != nil {
			return errors.Wrapf(err, "resolve: removing %s", sampleIDFiles[i])
		}
	}

	return nil
}

// openResolveOutput opens output_<partition>.txt for writing, gzip
// compressing through klauspost/pgzip (the teacher's own outStream writes
// gzip output the same way, via pgzip rather than the standard library's
// compress/gzip) when compress is set.
func openResolveOutput(dir string, partition int, compress bool) (io.Writer, func() error, error) {
	if dir == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	name := fmt.Sprintf("output_%d.txt", partition)
	if compress {
		name += ".gz"
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "resolve: creating %s", path)
	}
	bw := bufio.NewWriter(f)
	if !compress {
		return bw, func() error {
			if err := bw.Flush(); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}, nil
	}

	gw := gzip.NewWriter(bw)
	return gw, func() error {
		if err := gw.Close(); err != nil {
			f.Close()
			return err
		}
		if err := bw.Flush(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}, nil
}

// readIDToSeqMap parses a sample_id_<n>.map file: tab-separated columns
// "index dna_id sizes kmer_counts", the latter two "|"-joined per mate
// (splitGroup's joinSizes) — the id, size string and k-mer counts
// resolve needs to turn a seq id's collected taxid hits into an output
// line, keyed by the index assigned during splitting.
func readIDToSeqMap(path string) (map[uint32]sampleIDRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[uint32]sampleIDRecord)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}

		parts := strings.Split(fields[3], "|")
		kmerCounts := make([]uint32, 0, len(parts))
		total := 0
		for _, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				continue
			}
			kmerCounts = append(kmerCounts, uint32(n))
			total += n
		}

		out[uint32(id)] = sampleIDRecord{
			readID:     fields[1],
			sizes:      fields[2],
			kmerCounts: kmerCounts,
			total:      total,
		}
	}
	return out, sc.Err()
}

// resolveSample streams one input file's annotated hash hits (Row records,
// 12 bytes: value/seq_id/kmer_id), groups them by seq id, sorts each
// group by kmer_id (annotate appends rows partition by partition, so one
// read's rows arrive out of k-mer order), and resolves every read in
// idMap — a read with no hits comes out unclassified — into a
// classification line, mirroring classifyRecord in direct.go so the two
// paths render identical output for the same reads.
func resolveSample(path string, tax *taxonomy.Taxonomy, idMap map[uint32]sampleIDRecord, valueMask int, confidenceThreshold float64, minimumHitGroups int, numWorkers int, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	const rowSize = 12
	buf := make([]byte, rowSize*8192)

	rowsBySeq := make(map[uint32][]hashkey.Row)
	for {
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return err
		}
		rows := n / rowSize
		for i := 0; i < rows; i++ {
			off := i * rowSize
			value := binary.LittleEndian.Uint32(buf[off : off+4])
			seqID := binary.LittleEndian.Uint32(buf[off+4 : off+8])
			kmerID := binary.LittleEndian.Uint32(buf[off+8 : off+12])
			rowsBySeq[seqID] = append(rowsBySeq[seqID], hashkey.Row{Value: value, SeqID: seqID, KmerID: kmerID})
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
	}

	if numWorkers <= 0 {
		numWorkers = 1
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(numWorkers)

	for seqID, rec := range idMap {
		rows, rec := rowsBySeq[seqID], rec
		g.Go(func() error {
			sort.Slice(rows, func(i, j int) bool { return rows[i].KmerID < rows[j].KmerID })
			kmerCount1 := uint32(rec.total)
			var kmerCount2 *uint32
			if len(rec.kmerCounts) > 1 {
				kmerCount1 = rec.kmerCounts[0]
				c2 := rec.kmerCounts[1]
				kmerCount2 = &c2
			}

			rawCounts, _, hitGroups := CountValues(rows, valueMask, kmerCount1)
			counts := make(map[uint32]uint32, len(rawCounts))
			for taxid, n := range rawCounts {
				counts[taxid] = uint32(n)
			}

			call := resolveTree(counts, tax, rec.total, confidenceThreshold)
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

			mu.Lock()
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", classify, rec.readID, extCall, rec.sizes, hitString)
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

// resolveTree implements the weighted-LCA walk Kraken 2 uses to turn a
// multiset of per-k-mer taxid hits into one classification call: find
// the taxon whose ancestor-inclusive hit count is highest (breaking
// ties by LCA), then walk up from it until the required confidence
// score is met.
func resolveTree(hitCounts map[uint32]uint32, tax *taxonomy.Taxonomy, totalMinimizers int, confidenceThreshold float64) uint32 {
	requiredScore := uint32(math.Ceil(confidenceThreshold * float64(totalMinimizers)))

	var maxTaxon uint32
	var maxScore uint32

	for taxon := range hitCounts {
		var score uint32
		for taxon2, count2 := range hitCounts {
			if tax.IsAncestorOf(uint64(taxon2), uint64(taxon)) {
				score += count2
			}
		}

		if score > maxScore {
			maxScore = score
			maxTaxon = taxon
		} else if score == maxScore {
			maxTaxon = uint32(tax.LCA(uint64(maxTaxon), uint64(taxon)))
		}
	}

	maxScore = hitCounts[maxTaxon]

	for maxTaxon != 0 && maxScore < requiredScore {
		var sum uint32
		for taxon, count := range hitCounts {
			if tax.IsAncestorOf(uint64(maxTaxon), uint64(taxon)) {
				sum += count
			}
		}
		maxScore = sum

		if maxScore >= requiredScore {
			break
		}
		maxTaxon = uint32(tax.Parent(uint64(maxTaxon)))
	}

	return maxTaxon
}

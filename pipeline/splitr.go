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

// Package pipeline implements the three-stage classification pipeline —
// splitr, annotate, resolve — that lets a database far larger than RAM be
// queried by processing it one partition at a time, plus a direct
// single-pass variant for databases that do fit in memory.
package pipeline

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"golang.org/x/sync/errgroup"

	"github.com/kr2go/kr2go/hashkey"
	"github.com/kr2go/kr2go/minimizer"
)

// SplitOptions configures the splitr stage: scanning raw reads into
// minimizer hash keys and bucketing them into per-partition shards that
// annotate can later load one at a time.
type SplitOptions struct {
	K2dDir             string
	ChunkDir           string
	InputFiles         []string
	PairedEndProcessing bool
	SingleFilePairs    bool
	MinimumQuality     int
	NumWorkers         int
}

// Split runs the splitr stage end to end: it reads the database's hash
// layout and k-mer parameters, groups the input files into (possibly
// paired) jobs, and scans each job's reads into the chunk directory.
func Split(opts SplitOptions) error {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}

	hashConfig, err := hashkey.FromHashHeader(filepath.Join(opts.K2dDir, "hash_config.k2d"))
	if err != nil {
		return errors.Wrap(err, "splitr: reading hash_config.k2d")
	}
	if hashConfig.HashCapacity == 0 {
		return errors.New("splitr: hash_capacity can't be zero")
	}

	idxOpts, err := minimizer.ReadIndexOptions(filepath.Join(opts.K2dDir, "opts.k2d"))
	if err != nil {
		return errors.Wrap(err, "splitr: reading opts.k2d")
	}
	meros, err := idxOpts.AsMeros()
	if err != nil {
		return errors.Wrap(err, "splitr: deriving scanner parameters")
	}

	if opts.PairedEndProcessing && !opts.SingleFilePairs && len(opts.InputFiles)%2 != 0 {
		return errors.New("splitr: paired-end processing requires an even number of input files")
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

	sampleFile := filepath.Join(opts.ChunkDir, "sample_file.map")
	fileIndex, err := lastFileIndex(sampleFile)
	if err != nil {
		return errors.Wrap(err, "splitr: reading sample_file.map")
	}

	writers, err := newPartitionWriters(opts.ChunkDir, hashConfig.Partition, hashConfig.HashCapacity)
	if err != nil {
		return errors.Wrap(err, "splitr: opening partition shards")
	}
	defer writers.Close()

	sampleWriter, err := os.OpenFile(sampleFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, "splitr: opening sample_file.map")
	}
	defer sampleWriter.Close()

	fileBits := idxBitsFor(len(groups) + fileIndex)
	if fileBits > hashConfig.ValueBits {
		return errors.New("splitr: the number of files is too large to fit in value_bits")
	}

	for _, group := range groups {
		fileIndex++

		if _, err := fmt.Fprintf(sampleWriter, "%d\t%s\n", fileIndex, joinFiles(group)); err != nil {
			return errors.Wrap(err, "splitr: writing sample_file.map")
		}

		binFile := filepath.Join(opts.ChunkDir, fmt.Sprintf("sample_file_%d.bin", fileIndex))
		if err := touchFile(binFile); err != nil {
			return err
		}

		idMapFile := filepath.Join(opts.ChunkDir, fmt.Sprintf("sample_id_%d.map", fileIndex))
		idMapWriter, err := os.Create(idMapFile)
		if err != nil {
			return errors.Wrapf(err, "splitr: creating %s", idMapFile)
		}

		if err := splitGroup(group, fileIndex, meros, hashConfig, writers, idMapWriter, opts.NumWorkers); err != nil {
			idMapWriter.Close()
			return err
		}
		idMapWriter.Close()
	}

	return nil
}

// splitGroup scans one (possibly paired) set of reads and distributes
// every minimizer hash key into its target partition, mirroring
// process_fastq_file/process_fasta_file's per-record fan-out.
func splitGroup(group []string, fileIndex int, meros minimizer.Meros, hashConfig hashkey.Config, writers *partitionWriters, idMapWriter io.Writer, numWorkers int) error {
	chunkSize := hashConfig.HashCapacity
	idxBits := idxBitsFor(chunkSize)

	readers := make([]*fastx.Reader, 0, len(group))
	for _, path := range group {
		r, err := fastx.NewDefaultReader(path)
		if err != nil {
			return errors.Wrapf(err, "splitr: opening %s", path)
		}
		readers = append(readers, r)
	}

	var lineIndex int64 = -1
	var idMapMu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(numWorkers)

	for {
		// Copy out the record's id and sequence bytes before the next
		// Read() call recycles the reader's internal record buffer —
		// fastx.Reader reuses its *Record across calls, so anything
		// retained past this iteration must be an independent copy.
		mates := make([]mateRead, len(readers))
		anyRead := false
		for i, r := range readers {
			rec, err := r.Read()
			if err == io.EOF {
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "splitr: reading %s", group[i])
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

		index := int(atomic.AddInt64(&lineIndex, 1))
		seqID := uint64(fileIndex)<<32 | uint64(index)

		g.Go(func() error {
			var seqIndex int64 = -1
			var kmerCounts []string
			var seqSizes []string

			for _, mate := range mates {
				if !mate.ok {
					continue
				}

				s, err := seq.NewSeq(seq.DNA, mate.seq)
				if err != nil {
					return errors.Wrap(err, "splitr: building sequence")
				}

				kmerCount, err := scanAndWrite(s, meros, hashConfig, seqID, chunkSize, idxBits, &seqIndex, writers)
				if err != nil {
					return err
				}
				kmerCounts = append(kmerCounts, fmt.Sprintf("%d", kmerCount))
				seqSizes = append(seqSizes, fmt.Sprintf("%d", len(mate.seq)))
			}

			dnaID := ""
			if mates[0].ok {
				dnaID = mates[0].id
			}

			idMapMu.Lock()
			fmt.Fprintf(idMapWriter, "%d\t%s\t%s\t%s\n", index, dnaID, joinSizes(seqSizes), joinSizes(kmerCounts))
			idMapMu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

// mateRead is a self-contained copy of one read (or one mate of a pair),
// safe to hand to a worker goroutine after the reader has moved on.
type mateRead struct {
	id  string
	seq []byte
	ok  bool
}

// scanAndWrite extracts every minimizer from one record's sequence,
// packs it into a Slot64 keyed by seqID, rewrites the slot's index to
// interleave a per-record ordinal with the partition-local offset
// (process_record's `seq_sort << idx_bits | (idx % chunk_size)`), and
// hands it to the writer for the target partition.
func scanAndWrite(s *seq.Seq, meros minimizer.Meros, hashConfig hashkey.Config, seqID uint64, chunkSize, idxBits int, seqIndex *int64, writers *partitionWriters) (int, error) {
	scanner := minimizer.NewScanner(meros, s)
	count := 0
	for {
		raw, ok := scanner.Next()
		if !ok {
			break
		}
		hashKey := minimizer.FinalizeHash(raw)
		slot := hashConfig.SlotU64(hashKey, seqID)

		sort := atomic.AddInt64(seqIndex, 1)
		partitionIndex := slot.Idx / chunkSize
		slot.Idx = int(sort)<<uint(idxBits) | (slot.Idx % chunkSize)

		if err := writers.Write(partitionIndex, slot); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func idxBitsFor(n int) int {
	cfg := hashkey.Config{HashCapacity: n}
	return cfg.GetIdxBits()
}

func joinFiles(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func touchFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrapf(err, "splitr: creating %s", path)
	}
	return f.Close()
}

func lastFileIndex(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	max := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var idx int
		if _, err := fmt.Sscanf(sc.Text(), "%d\t", &idx); err == nil && idx > max {
			max = idx
		}
	}
	return max, sc.Err()
}

// partitionWriters holds one buffered writer per partition shard, each
// prefixed with its partition index and chunk size the first time it's
// created — empty so annotate can tell a freshly-created shard apart
// from one already carrying data across a resumed run.
type partitionWriters struct {
	mu      sync.Mutex
	files   []*os.File
	writers []*bufio.Writer
}

func newPartitionWriters(chunkDir string, partitions, chunkSize int) (*partitionWriters, error) {
	pw := &partitionWriters{
		files:   make([]*os.File, partitions),
		writers: make([]*bufio.Writer, partitions),
	}
	for i := 0; i < partitions; i++ {
		path := filepath.Join(chunkDir, fmt.Sprintf("sample_%d.k2", i))
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			pw.Close()
			return nil, errors.Wrapf(err, "splitr: opening %s", path)
		}

		info, err := f.Stat()
		if err != nil {
			pw.Close()
			return nil, err
		}
		if info.Size() == 0 {
			var header [16]byte
			binary.LittleEndian.PutUint64(header[0:8], uint64(i))
			binary.LittleEndian.PutUint64(header[8:16], uint64(chunkSize))
			if _, err := f.Write(header[:]); err != nil {
				pw.Close()
				return nil, err
			}
		} else {
			if _, err := f.Seek(0, io.SeekEnd); err != nil {
				pw.Close()
				return nil, err
			}
		}

		pw.files[i] = f
		pw.writers[i] = bufio.NewWriter(f)
	}
	return pw, nil
}

func (pw *partitionWriters) Write(partition int, slot hashkey.Slot64) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if partition < 0 || partition >= len(pw.writers) {
		return errors.Errorf("splitr: partition %d out of range", partition)
	}

	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(slot.Idx))
	binary.LittleEndian.PutUint64(buf[8:16], slot.Value)
	_, err := pw.writers[partition].Write(buf[:])
	return err
}

func (pw *partitionWriters) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	var first error
	for i, w := range pw.writers {
		if w == nil {
			continue
		}
		if err := w.Flush(); err != nil && first == nil {
			first = err
		}
		if err := pw.files[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

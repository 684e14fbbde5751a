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
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"golang.org/x/sync/errgroup"

	"github.com/kr2go/kr2go/hashkey"
	"github.com/kr2go/kr2go/minimizer"
	"github.com/kr2go/kr2go/taxonomy"
)

// ChunkDBOptions configures the chunk-db stage: scanning the reference
// library into per-partition Slot32 spill files, ahead of build-db
// folding each partition into its final mmap'd hash shard.
type ChunkDBOptions struct {
	DatabaseDir           string // contains seqid2taxid.map, taxo.k2d, library/
	RequiredCapacity      uint64
	HashCapacity          int // per-partition capacity H
	RequestedBitsForTaxid int
	KMer                  int
	LMer                  int
	SpacedSeedMask        uint64
	ToggleMask            uint64
	NumWorkers            int
}

// ChunkDB scans every library_*.fna file under <DatabaseDir>/library,
// looks up each record's external taxid in seqid2taxid.map, and emits one
// (local_idx, compacted_key<<v|internal_taxid) Slot32 per minimizer into
// its target partition's chunk_<p>.k2 file. It also writes hash_config.k2d
// and opts.k2d, the two headers every later stage reads.
func ChunkDB(opts ChunkDBOptions) error {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.HashCapacity <= 0 {
		return errors.New("chunk-db: hash_capacity must be positive")
	}

	meros, err := minimizer.NewMeros(opts.KMer, opts.LMer)
	if err != nil {
		return errors.Wrap(err, "chunk-db: building scanner parameters")
	}
	if opts.SpacedSeedMask != 0 {
		meros = meros.WithSpacedSeedMask(opts.SpacedSeedMask)
	}
	if opts.ToggleMask != 0 {
		meros = meros.WithToggleMask(opts.ToggleMask)
	}

	idMap, err := readSeqIDToTaxonMap(filepath.Join(opts.DatabaseDir, "seqid2taxid.map"))
	if err != nil {
		return errors.Wrap(err, "chunk-db: reading seqid2taxid.map")
	}

	tax, err := taxonomy.FromFile(filepath.Join(opts.DatabaseDir, "taxo.k2d"))
	if err != nil {
		return errors.Wrap(err, "chunk-db: reading taxo.k2d")
	}

	valueBits, err := hashkey.ValueBitsForTaxonomy(opts.RequestedBitsForTaxid, taxonomy.MinValueBits(len(tax.Nodes)))
	if err != nil {
		return errors.Wrap(err, "chunk-db: sizing value_bits")
	}

	capacity := int(opts.RequiredCapacity)
	partition := (capacity + opts.HashCapacity - 1) / opts.HashCapacity
	config := hashkey.Config{
		Version:      1,
		Partition:    partition,
		HashCapacity: opts.HashCapacity,
		Capacity:     capacity,
		Size:         0,
		ValueBits:    valueBits,
	}

	if want := uint64(partition + 16); want > 0 {
		if limit, err := fdSoftLimit(); err == nil && uint64(partition) >= limit {
			if err := raiseFDLimit(want); err != nil {
				return errors.Wrap(err, "chunk-db: raising file descriptor limit")
			}
		}
	}

	writers, err := newChunkWriters(opts.DatabaseDir, "chunk", partition)
	if err != nil {
		return errors.Wrap(err, "chunk-db: opening chunk_<p>.k2 writers")
	}
	defer writers.Close()

	libraryDir := filepath.Join(opts.DatabaseDir, "library")
	fnaFiles, err := findFNAFiles(libraryDir, ".fna")
	if err != nil {
		return err
	}

	for _, fnaFile := range fnaFiles {
		if err := convertFNAToChunks(fnaFile, meros, tax, idMap, config, writers, opts.NumWorkers); err != nil {
			return errors.Wrapf(err, "chunk-db: converting %s", fnaFile)
		}
	}

	if err := config.WriteToFile(filepath.Join(opts.DatabaseDir, "hash_config.k2d")); err != nil {
		return errors.Wrap(err, "chunk-db: writing hash_config.k2d")
	}

	idxOpts := minimizer.IndexOptions{
		KMer:           meros.KMer,
		LMer:           meros.LMer,
		SpacedSeedMask: meros.SpacedSeedMask,
		ToggleMask:     meros.ToggleMask,
		MinimumAcceptableHashValue: meros.MinClearHashVal,
		DnaDB:          true,
		RevcomVersion:  minimizer.CurrentRevcomVersion,
		DBVersion:      1,
		DBType:         0,
	}
	if err := minimizer.WriteIndexOptions(filepath.Join(opts.DatabaseDir, "opts.k2d"), idxOpts); err != nil {
		return errors.Wrap(err, "chunk-db: writing opts.k2d")
	}

	return nil
}

// convertFNAToChunks scans one library FASTA file's records, looks up
// each one's internal taxid, and fans its minimizers out into their
// target partitions' chunk writers, mirroring convert_fna_to_k2_format's
// read_parallel scan-then-drain structure.
func convertFNAToChunks(path string, meros minimizer.Meros, tax *taxonomy.Taxonomy, idMap map[string]uint64, config hashkey.Config, writers *chunkWriters, numWorkers int) error {
	r, err := fastx.NewDefaultReader(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}

	g := new(errgroup.Group)
	g.SetLimit(numWorkers)

	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		id := seqIDFromHeader(string(rec.ID))
		extTaxid, ok := idMap[id]
		if !ok {
			continue
		}
		internalTaxid := uint32(tax.GetInternalID(extTaxid))
		seqBytes := append([]byte(nil), rec.Seq.Seq...)

		g.Go(func() error {
			s, err := seq.NewSeq(seq.DNA, seqBytes)
			if err != nil {
				return errors.Wrap(err, "building sequence")
			}

			scanner := minimizer.NewScanner(meros, s)
			for {
				raw, ok := scanner.Next()
				if !ok {
					break
				}
				hashKey := minimizer.FinalizeHash(raw)
				slot := config.Slot(hashKey, internalTaxid)

				partitionIndex := slot.Idx / config.HashCapacity
				localIdx := slot.Idx % config.HashCapacity

				if err := writers.Write(partitionIndex, localIdx, slot.Value); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// chunkWriters holds one buffered writer per partition's spill file, each
// record a 12-byte (8-byte local index, 4-byte value) Slot32.
type chunkWriters struct {
	mu      sync.Mutex
	files   []*os.File
	writers []*bufio.Writer
}

func newChunkWriters(dir, prefix string, partitions int) (*chunkWriters, error) {
	cw := &chunkWriters{
		files:   make([]*os.File, partitions),
		writers: make([]*bufio.Writer, partitions),
	}
	for i := 0; i < partitions; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.k2", prefix, i+1))
		f, err := os.Create(path)
		if err != nil {
			cw.Close()
			return nil, errors.Wrapf(err, "creating %s", path)
		}
		cw.files[i] = f
		cw.writers[i] = bufio.NewWriter(f)
	}
	return cw, nil
}

func (cw *chunkWriters) Write(partition, idx int, value uint32) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if partition < 0 || partition >= len(cw.writers) {
		return errors.Errorf("chunk-db: partition %d out of range", partition)
	}

	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(idx))
	binary.LittleEndian.PutUint32(buf[8:12], value)
	_, err := cw.writers[partition].Write(buf[:])
	return err
}

func (cw *chunkWriters) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	var first error
	for i, w := range cw.writers {
		if w == nil {
			continue
		}
		if err := w.Flush(); err != nil && first == nil {
			first = err
		}
		if err := cw.files[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

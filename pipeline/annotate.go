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
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/kr2go/kr2go/hashkey"
	"github.com/kr2go/kr2go/hashtable"
)

// AnnotateOptions configures the annotate stage: loading one partition
// of the compact hash index at a time and resolving every minimizer a
// splitr shard recorded against it into a taxid-bearing Row.
type AnnotateOptions struct {
	DatabaseDir string
	ChunkDir    string
	BatchSize   int
}

const defaultAnnotateBatchSize = 8 * 1024 * 1024

// Annotate processes every sample_<N>.k2 shard splitr produced, in
// order, loading only that shard's partition of the hash index before
// scanning it — so peak memory is bounded by one partition, not the
// whole database.
func Annotate(opts AnnotateOptions) error {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultAnnotateBatchSize
	}

	chunkFiles, err := findAndSortFiles(opts.ChunkDir, "sample", ".k2")
	if err != nil {
		return errors.Wrap(err, "annotate: listing chunk shards")
	}
	hashFiles, err := findAndSortFiles(opts.DatabaseDir, "hash", ".k2d")
	if err != nil {
		return errors.Wrap(err, "annotate: listing hash shards")
	}

	config, err := hashkey.FromHashHeader(filepath.Join(opts.DatabaseDir, "hash_config.k2d"))
	if err != nil {
		return errors.Wrap(err, "annotate: reading hash_config.k2d")
	}

	for _, chunkFile := range chunkFiles {
		if err := annotateChunk(chunkFile, opts.ChunkDir, hashFiles, config, opts.BatchSize); err != nil {
			return err
		}
		os.Remove(chunkFile)
	}

	return nil
}

func annotateChunk(chunkFile, chunkDir string, hashFiles []string, config hashkey.Config, batchSize int) error {
	f, err := os.Open(chunkFile)
	if err != nil {
		return errors.Wrapf(err, "annotate: opening %s", chunkFile)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	pageIndex, _, err := readChunkHeader(r)
	if err != nil {
		return errors.Wrapf(err, "annotate: reading header of %s", chunkFile)
	}

	table, err := hashtable.FromRange(config, hashFiles, pageIndex, pageIndex+1)
	if err != nil {
		return errors.Wrapf(err, "annotate: loading partition %d", pageIndex)
	}

	return processBatch(r, config, table, chunkDir, batchSize, pageIndex)
}

func readChunkHeader(r io.Reader) (pageIndex, chunkSize int, err error) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, 0, err
	}
	return int(binary.LittleEndian.Uint64(buf[0:8])), int(binary.LittleEndian.Uint64(buf[8:16])), nil
}

// processBatch streams Slot64 records out of a shard in fixed-size
// batches, looks each one up in the loaded partition, and — when it
// resolves to a taxid — re-packs it as a Row keyed by the read's
// original file index, appending to that file's running annotated
// output.
func processBatch(r *bufio.Reader, config hashkey.Config, table *hashtable.Reader, chunkDir string, batchSize int, pageIndex int) error {
	idxMask := config.GetIdxMask()
	idxBits := config.GetIdxBits()
	valueBits := config.ValueBits
	valueMask := config.ValueMask()

	const slotSize = 16 // Slot64: idx (u64) + value (u64)
	buf := make([]byte, slotSize*batchSize)

	byFile := map[uint64][]byte{}
	var lastFileIndex int64 = -1
	var writer *bufio.Writer
	var outFile *os.File

	flush := func() error {
		if writer == nil {
			return nil
		}
		if err := writer.Flush(); err != nil {
			return err
		}
		return outFile.Close()
	}

	writeFile := func(fileIndex uint64, rows []byte) error {
		if lastFileIndex < 0 || uint64(lastFileIndex) != fileIndex {
			if err := flush(); err != nil {
				return err
			}
			path := filepath.Join(chunkDir, fmt.Sprintf("sample_file_%d.bin", fileIndex))
			f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
			if err != nil {
				return errors.Wrapf(err, "annotate: opening %s", path)
			}
			outFile = f
			writer = bufio.NewWriter(f)
			lastFileIndex = int64(fileIndex)
		}
		_, err := writer.Write(rows)
		return err
	}

	for {
		n, err := io.ReadFull(r, buf)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return errors.Wrap(err, "annotate: reading shard batch")
		}

		slots := n / slotSize
		for k := range byFile {
			delete(byFile, k)
		}

		for i := 0; i < slots; i++ {
			off := i * slotSize
			idx := binary.LittleEndian.Uint64(buf[off : off+8])
			value := binary.LittleEndian.Uint64(buf[off+8 : off+16])

			localIdx := int(idx) & idxMask
			compacted := hashkey.Left64(value, valueBits)
			taxid := table.GetFromPage(localIdx, uint32(compacted), pageIndex)
			if taxid == 0 {
				continue
			}

			kmerID := uint32(int(idx) >> idxBits)
			fileIndex := hashkey.Right64(value, valueMask) >> 32
			seqID := uint32(hashkey.Right64(value, valueMask))
			combined := hashkey.Combined32(uint32(compacted), taxid, valueBits)

			row := hashkey.Row{Value: combined, SeqID: seqID, KmerID: kmerID}
			byFile[fileIndex] = append(byFile[fileIndex], rowBytes(row)...)
		}

		fileIndices := make([]uint64, 0, len(byFile))
		for fi := range byFile {
			fileIndices = append(fileIndices, fi)
		}
		sort.Slice(fileIndices, func(i, j int) bool { return fileIndices[i] < fileIndices[j] })

		for _, fi := range fileIndices {
			if err := writeFile(fi, byFile[fi]); err != nil {
				return err
			}
		}

		if err == io.ErrUnexpectedEOF {
			break
		}
	}

	return flush()
}

func rowBytes(row hashkey.Row) []byte {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], row.Value)
	binary.LittleEndian.PutUint32(buf[4:8], row.SeqID)
	binary.LittleEndian.PutUint32(buf[8:12], row.KmerID)
	return buf[:]
}

// findAndSortFiles lists every file in dir whose name begins with
// prefix and ends with suffix, numerically ordered by the integer
// embedded between them (sample_0.k2, sample_1.k2, ... sample_10.k2,
// not lexicographic sample_1.k2, sample_10.k2, sample_2.k2).
func findAndSortFiles(dir, prefix, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type indexed struct {
		path string
		n    int
	}
	var found []indexed
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) <= len(prefix)+len(suffix) {
			continue
		}
		if name[:len(prefix)] != prefix || name[len(name)-len(suffix):] != suffix {
			continue
		}
		middle := name[len(prefix) : len(name)-len(suffix)]
		middle = trimLeadingUnderscoreOrDot(middle)
		var n int
		if _, err := fmt.Sscanf(middle, "%d", &n); err != nil {
			continue
		}
		found = append(found, indexed{path: filepath.Join(dir, name), n: n})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.path
	}
	return out, nil
}

func trimLeadingUnderscoreOrDot(s string) string {
	for len(s) > 0 && (s[0] == '_' || s[0] == '.') {
		s = s[1:]
	}
	return s
}

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
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/twotwotwo/sorts/sortutil"

	"github.com/kr2go/kr2go/hashkey"
	"github.com/kr2go/kr2go/hashtable"
	"github.com/kr2go/kr2go/taxonomy"
)

// BuildDBOptions configures the build-db stage: folding chunk-db's
// per-partition Slot32 spill files into the finalised, mmap'd hash shards
// classify reads at query time.
type BuildDBOptions struct {
	DatabaseDir string
}

// BuildDB reads every chunk_<p>.k2 file left by chunk-db, merges its
// slots into partition p's mmap'd Builder shard with the taxonomy's LCA
// as the collision-merge rule, writes hash_<p>.k2d, updates
// hash_config.k2d's observed size, and deletes the consumed chunk files.
// It returns the final populated-cell count.
func BuildDB(opts BuildDBOptions) (int, error) {
	taxFile := filepath.Join(opts.DatabaseDir, "taxo.k2d")
	tax, err := taxonomy.FromFile(taxFile)
	if err != nil {
		return 0, errors.Wrapf(err, "build-db: reading %s", taxFile)
	}

	hashConfigFile := filepath.Join(opts.DatabaseDir, "hash_config.k2d")
	config, err := hashkey.FromHashHeader(hashConfigFile)
	if err != nil {
		return 0, errors.Wrapf(err, "build-db: reading %s", hashConfigFile)
	}

	chunkFiles, err := findChunkFiles(opts.DatabaseDir, "chunk")
	if err != nil {
		return 0, err
	}

	lca := func(a, b uint32) uint32 {
		return uint32(tax.LCA(uint64(a), uint64(b)))
	}

	totalSize := 0
	for _, cf := range chunkFiles {
		count, err := processChunkFile(config, opts.DatabaseDir, cf.path, cf.index, lca)
		if err != nil {
			return 0, errors.Wrapf(err, "build-db: processing %s", cf.path)
		}
		totalSize += count
	}

	config.Size = totalSize
	if err := config.WriteToFile(hashConfigFile); err != nil {
		return 0, errors.Wrap(err, "build-db: updating hash_config.k2d")
	}

	for _, cf := range chunkFiles {
		if err := os.Remove(cf.path); err != nil {
			return 0, errors.Wrapf(err, "build-db: removing %s", cf.path)
		}
	}

	return totalSize, nil
}

type indexedFile struct {
	index int
	path  string
}

// findChunkFiles lists chunk_<p>.k2 files and returns them sorted by
// their numeric partition index (1-based, matching chunk-db's naming).
func findChunkFiles(dir, prefix string) ([]indexedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "build-db: listing %s", dir)
	}

	var out []indexedFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"_") || !strings.HasSuffix(name, ".k2") {
			continue
		}
		mid := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"_"), ".k2")
		idx, err := strconv.Atoi(mid)
		if err != nil {
			continue
		}
		out = append(out, indexedFile{index: idx, path: filepath.Join(dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out, nil
}

// processChunkFile folds one partition's chunk_<p>.k2 slots into a fresh
// mmap'd Builder shard and flushes it to hash_<p>.k2d, mirroring
// process_k2file's read-batch / fetch_update / write_hashtable_to_file
// structure, minus the Rust version's extra page-size clamp (chunk-db
// already wrote every slot with its final per-partition local index).
func processChunkFile(config hashkey.Config, dbDir, chunkPath string, partitionIndex int, lca hashtable.LCAFunc) (int, error) {
	capacity := config.HashCapacity
	if partitionIndex == config.Partition {
		// the last partition may be a partial page if Capacity isn't an
		// exact multiple of HashCapacity
		remainder := config.Capacity % config.HashCapacity
		if remainder != 0 {
			capacity = remainder
		}
	}

	shardPath := filepath.Join(dbDir, fmt.Sprintf("hash_%d.k2d", partitionIndex))
	builder, err := hashtable.CreateBuilder(shardPath, partitionIndex, capacity, config)
	if err != nil {
		return 0, err
	}
	defer builder.Close()

	f, err := os.Open(chunkPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	const recSize = 12
	r := bufio.NewReaderSize(f, 1<<20)
	buf := make([]byte, recSize*8192)
	packed := make([]uint64, 0, 8192)

	for {
		n, err := io.ReadFull(r, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		recs := n / recSize
		packed = packed[:0]
		for i := 0; i < recs; i++ {
			off := i * recSize
			idx := uint64(binary.LittleEndian.Uint64(buf[off : off+8]))
			value := uint64(binary.LittleEndian.Uint32(buf[off+8 : off+12]))
			if idx >= uint64(capacity) {
				continue // dropped: slot fell outside this (possibly partial) page
			}
			packed = append(packed, idx<<32|value)
		}

		// Sorting each batch by local index before feeding it to SetCell
		// turns the builder's probe-chain walks into sequential mmap
		// accesses instead of scattered ones; process_k2file's upstream
		// equivalent instead leans on rayon's parallel iteration and
		// doesn't sort, so this is a Go-side addition rather than a
		// ported behavior.
		sortutil.Uint64s(packed)

		for _, p := range packed {
			idx := int(p >> 32)
			value := uint32(p & 0xffffffff)
			compactedKey := hashkey.Left32(value, config.ValueBits)
			taxid := hashkey.Right32(value, config.ValueMask())
			builder.SetCell(idx, compactedKey, taxid, lca)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
	}

	return builder.WriteHashtableToFile()
}

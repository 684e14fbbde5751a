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

// Package build implements the three database construction stages —
// estimate, chunk-db, build-db — plus hashshard, the maintenance command
// that re-partitions an already-built single-file index. Together with
// package pipeline's classify stages, these round out the state machine
// spec §4.9 describes: Estimate -> ChunkDB -> BuildK2DB.
package build

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// findFNAFiles walks dir (non-recursively, matching the library/ layout
// every other stage uses: one flat directory of library_*.fna files)
// collecting every file whose name ends in suffix.
func findFNAFiles(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "build: listing %s", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// readSeqIDToTaxonMap parses seqid2taxid.map: whitespace-separated
// "<seq_id>\t<external_taxid>" pairs, the file the NCBI library
// downloader (out of scope here) is expected to have already produced.
func readSeqIDToTaxonMap(path string) (map[string]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "build: opening %s", path)
	}
	defer f.Close()

	out := make(map[string]uint64)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		taxid, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		out[fields[0]] = taxid
	}
	return out, sc.Err()
}

// seqIDFromHeader extracts the leading whitespace-delimited token of a
// FASTA header, the id convert_fna_to_k2_format looks up in
// id_to_taxon_map for every record.
func seqIDFromHeader(id string) string {
	if i := strings.IndexAny(id, " \t"); i >= 0 {
		return id[:i]
	}
	return id
}

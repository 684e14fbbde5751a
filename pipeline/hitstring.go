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
	"strings"

	"github.com/kr2go/kr2go/hashkey"
	"github.com/kr2go/kr2go/taxonomy"
)

// CountValues tallies, for a batch of annotate Rows belonging to one
// read (or one read pair, kmerCount1 being where the first mate's
// k-mers end and the second mate's begin), how many k-mers hit each
// distinct taxid, how many *hit groups* (runs of identical, positionally
// contiguous taxids) were seen, and each taxid's distinct-k-mer counter.
//
// hitCount — the number of hit groups — is what minimum-hit-groups
// filtering checks against, not the raw per-k-mer tally in counts: two
// k-mers at consecutive kmer_id positions that hit the same taxid are
// one hit group, not two.
func CountValues(rows []hashkey.Row, valueMask int, kmerCount1 uint32) (counts map[uint32]uint64, taxonCounts *TaxonCounters, hitCount int) {
	counts = make(map[uint32]uint64)
	taxonCounts = NewTaxonCounters()

	var lastRow hashkey.Row
	haveLast := false

	for _, row := range rows {
		key := hashkey.Right32(row.Value, valueMask)
		counts[key]++

		if haveLast && lastRow.KmerID < kmerCount1 && row.KmerID >= kmerCount1 {
			haveLast = false
		}

		if !(haveLast && lastRow.Value == row.Value && row.KmerID-lastRow.KmerID == 1) {
			taxonCounts.Get(uint64(key)).AddKmer(uint64(row.Value))
			hitCount++
		}

		lastRow = row
		haveLast = true
	}

	return counts, taxonCounts, hitCount
}

// GenerateHitString renders the per-k-mer taxid trace the Kraken 2
// output format calls the "hit list": a sequence of run-length encoded
// "external_id:count" tokens covering every k-mer position from offset
// to offset+count (uncovered positions render as "0:run").
func GenerateHitString(count uint32, rows []hashkey.Row, tax *taxonomy.Taxonomy, valueMask int, offset uint32) string {
	type run struct {
		code uint32
		n    uint32
	}
	// started tells "no hit rendered yet" apart from "the previous hit sat
	// at adjusted position 0", so a hit at position 0 gets no gap run
	// before or after it.
	var result []run
	var lastPos uint32
	started := false

	for _, row := range rows {
		if row.KmerID < offset || row.KmerID >= offset+count {
			continue
		}
		adjusted := row.KmerID - offset

		key := hashkey.Right32(row.Value, valueMask)
		extCode := uint32(0)
		if int(key) < len(tax.Nodes) {
			extCode = uint32(tax.ExternalID(uint64(key)))
		}

		if !started && adjusted > 0 {
			result = append(result, run{0, adjusted})
		} else if started && adjusted > lastPos+1 {
			result = append(result, run{0, adjusted - lastPos - 1})
		}
		started = true

		if n := len(result); n > 0 && result[n-1].code == extCode {
			result[n-1].n++
			lastPos = adjusted
			continue
		}

		result = append(result, run{extCode, 1})
		lastPos = adjusted
	}

	if !started {
		result = append(result, run{0, count})
	} else if lastPos < count-1 {
		result = append(result, run{0, count - lastPos - 1})
	}

	tokens := make([]string, len(result))
	for i, r := range result {
		tokens[i] = fmt.Sprintf("%d:%d", r.code, r.n)
	}
	return strings.Join(tokens, " ")
}

// AddHitlistString renders both mates of a paired read (or a single
// unpaired read when kmerCount2 is nil), joined with the Kraken 2
// "|:|" mate-pair separator.
func AddHitlistString(rows []hashkey.Row, valueMask int, kmerCount1 uint32, kmerCount2 *uint32, tax *taxonomy.Taxonomy) string {
	result1 := GenerateHitString(kmerCount1, rows, tax, valueMask, 0)
	if kmerCount2 == nil {
		return result1
	}
	result2 := GenerateHitString(*kmerCount2, rows, tax, valueMask, kmerCount1)
	return result1 + " |:| " + result2
}

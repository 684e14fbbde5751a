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
	"os"
	"path/filepath"
	"testing"

	"github.com/kr2go/kr2go/hashkey"
	"github.com/kr2go/kr2go/taxonomy"
)

func buildThreeNodeTaxonomy() *taxonomy.Taxonomy {
	tax := &taxonomy.Taxonomy{
		Nodes: []taxonomy.Node{
			{}, // sentinel
			{Parent: 0, ExternalID: 1},
			{Parent: 1, ExternalID: 2},
			{Parent: 1, ExternalID: 3},
		},
	}
	tax.GenerateExternalToInternalIDMap()
	tax.BuildPathCache()
	return tax
}

func TestReadCounterAddKmerDistinct(t *testing.T) {
	rc := NewReadCounter()
	rc.AddKmer(10)
	rc.AddKmer(10)
	rc.AddKmer(20)
	rc.IncrementReadCount()

	if got := rc.KmerCount(); got != 3 {
		t.Fatalf("KmerCount() = %d, want 3", got)
	}
	if got := rc.DistinctKmerCount(); got != 2 {
		t.Fatalf("DistinctKmerCount() = %d, want 2", got)
	}
	if got := rc.ReadCount(); got != 1 {
		t.Fatalf("ReadCount() = %d, want 1", got)
	}
}

func TestReadCounterMerge(t *testing.T) {
	a := NewReadCounter()
	a.AddKmer(1)
	a.IncrementReadCount()

	b := NewReadCounter()
	b.AddKmer(1)
	b.AddKmer(2)
	b.IncrementReadCount()

	a.Merge(b)

	if got := a.ReadCount(); got != 2 {
		t.Fatalf("ReadCount() after merge = %d, want 2", got)
	}
	if got := a.KmerCount(); got != 3 {
		t.Fatalf("KmerCount() after merge = %d, want 3", got)
	}
	if got := a.DistinctKmerCount(); got != 2 {
		t.Fatalf("DistinctKmerCount() after merge = %d, want 2", got)
	}
}

func TestTaxonCountersGetCreatesOnFirstAccess(t *testing.T) {
	tc := NewTaxonCounters()
	tc.Get(5).IncrementReadCount()
	tc.Get(5).AddKmer(42)

	seen := false
	tc.Range(func(taxid uint64, counter *ReadCounter) {
		if taxid != 5 {
			t.Fatalf("unexpected taxid %d", taxid)
		}
		seen = true
		if counter.ReadCount() != 1 {
			t.Fatalf("ReadCount() = %d, want 1", counter.ReadCount())
		}
	})
	if !seen {
		t.Fatal("Range never visited taxid 5")
	}
}

func TestCountValuesSplitsHitGroupsAcrossMateBoundary(t *testing.T) {
	// kmer_id is 0-based, so with kmerCount1=3 mate two begins at kmer_id
	// 3. Two contiguous hits against taxid 1 (kmer_id 1,2) form one hit
	// group; kmer_id 3 (mate two's first k-mer) against taxid 2 and kmer_id
	// 4 against taxid 1 again each start a new group, since each differs
	// in taxid from the row before it.
	rows := []hashkey.Row{
		{Value: 0x00000001, KmerID: 1},
		{Value: 0x00000001, KmerID: 2},
		{Value: 0x00000002, KmerID: 3},
		{Value: 0x00000001, KmerID: 4},
	}
	valueMask := 0xFFFF // low 16 bits are the taxid in this synthetic test

	counts, taxonCounts, hitCount := CountValues(rows, valueMask, 3)

	if counts[1] != 3 {
		t.Fatalf("counts[1] = %d, want 3", counts[1])
	}
	if counts[2] != 1 {
		t.Fatalf("counts[2] = %d, want 1", counts[2])
	}
	if hitCount != 3 {
		t.Fatalf("hitCount = %d, want 3 (two hit groups for taxid 1, one for taxid 2)", hitCount)
	}

	seenTaxa := map[uint64]int{}
	taxonCounts.Range(func(taxid uint64, counter *ReadCounter) {
		seenTaxa[taxid] = counter.DistinctKmerCount()
	})
	if len(seenTaxa) != 2 {
		t.Fatalf("taxonCounts tracked %d taxa, want 2", len(seenTaxa))
	}
}

func TestCountValuesMergesAdjacentSameTaxidRun(t *testing.T) {
	rows := []hashkey.Row{
		{Value: 7, KmerID: 1},
		{Value: 7, KmerID: 2},
		{Value: 7, KmerID: 3},
	}
	_, _, hitCount := CountValues(rows, 0xFFFF, 10)
	if hitCount != 1 {
		t.Fatalf("hitCount = %d, want 1 (one contiguous run)", hitCount)
	}
}

func TestGenerateHitStringFillsGapsWithZeroRuns(t *testing.T) {
	tax := buildThreeNodeTaxonomy()
	// A hit at kmer_id 2 against internal taxid 1 (external id 1), out of
	// five k-mer positions (0..4): positions 0-1 are a leading gap,
	// positions 3-4 are a trailing gap.
	rows := []hashkey.Row{
		{Value: 1, KmerID: 2},
	}

	got := GenerateHitString(5, rows, tax, 0xFFFF, 0)
	want := "0:2 1:1 0:2"
	if got != want {
		t.Fatalf("GenerateHitString() = %q, want %q", got, want)
	}
}

func TestGenerateHitStringCollapsesConsecutiveRuns(t *testing.T) {
	tax := buildThreeNodeTaxonomy()
	rows := []hashkey.Row{
		{Value: 1, KmerID: 1},
		{Value: 1, KmerID: 2},
		{Value: 1, KmerID: 3},
	}
	// kmer_id is 0-based, so hits at 1..3 need a window of four positions;
	// position 0 has no hit, hence the leading "0:1".
	got := GenerateHitString(4, rows, tax, 0xFFFF, 0)
	if got != "0:1 1:3" {
		t.Fatalf("GenerateHitString() = %q, want %q", got, "0:1 1:3")
	}
}

func TestAddHitlistStringJoinsMatesWithSeparator(t *testing.T) {
	tax := buildThreeNodeTaxonomy()
	rows := []hashkey.Row{
		{Value: 1, KmerID: 1},
		{Value: 2, KmerID: 4},
	}
	kmerCount2 := uint32(2)

	got := AddHitlistString(rows, 0xFFFF, 2, &kmerCount2, tax)
	if got == "" {
		t.Fatal("AddHitlistString() returned empty string")
	}
	if !containsSubstring(got, " |:| ") {
		t.Fatalf("AddHitlistString() = %q, want a mate-pair separator", got)
	}
}

func TestAddHitlistStringSingleEndHasNoSeparator(t *testing.T) {
	tax := buildThreeNodeTaxonomy()
	rows := []hashkey.Row{{Value: 1, KmerID: 1}}

	got := AddHitlistString(rows, 0xFFFF, 1, nil, tax)
	if containsSubstring(got, "|:|") {
		t.Fatalf("AddHitlistString() = %q, want no mate-pair separator for single-end", got)
	}
}

func containsSubstring(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestResolveTreePicksAncestorWinningByInclusiveScore(t *testing.T) {
	tax := buildThreeNodeTaxonomy()
	// Internal id 1 is root, 2 and 3 are its children. Most hits land on
	// 2 directly; 2's ancestor-inclusive score (its own 5 hits, root having
	// none of its own) beats 3's 1, and a zero confidence threshold
	// accepts it without climbing further.
	counts := map[uint32]uint32{2: 5, 3: 1}

	got := resolveTree(counts, tax, 6, 0.0)
	if got != 2 {
		t.Fatalf("resolveTree() = %d, want 2", got)
	}
}

func TestResolveTreeClimbsToMeetConfidence(t *testing.T) {
	tax := buildThreeNodeTaxonomy()
	counts := map[uint32]uint32{2: 3, 3: 2}

	// Neither child alone reaches a 90%-of-5 threshold, but root (1)
	// accumulates both children's hits as ancestor-inclusive score.
	got := resolveTree(counts, tax, 5, 0.9)
	if got != 1 {
		t.Fatalf("resolveTree() = %d, want 1 (climbed to root)", got)
	}
}

func TestResolveTreeReturnsZeroOnEmptyHits(t *testing.T) {
	tax := buildThreeNodeTaxonomy()
	got := resolveTree(map[uint32]uint32{}, tax, 10, 0.1)
	if got != 0 {
		t.Fatalf("resolveTree() = %d, want 0 for no hits", got)
	}
}

func TestFindAndSortFilesNumericOrder(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []int{2, 10, 1} {
		path := filepath.Join(dir, "sample_"+itoa(n)+".k2")
		if err := os.WriteFile(path, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := findAndSortFiles(dir, "sample", ".k2")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("findAndSortFiles() returned %d files, want 3", len(got))
	}
	want := []string{"sample_1.k2", "sample_2.k2", "sample_10.k2"}
	for i, w := range want {
		if filepath.Base(got[i]) != w {
			t.Fatalf("findAndSortFiles()[%d] = %s, want %s", i, filepath.Base(got[i]), w)
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestIdxBitsFor(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
	}
	for _, c := range cases {
		if got := idxBitsFor(c.n); got != c.want {
			t.Fatalf("idxBitsFor(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestJoinFilesAndSizes(t *testing.T) {
	if got := joinFiles([]string{"a", "b", "c"}); got != "a,b,c" {
		t.Fatalf("joinFiles() = %q", got)
	}
	if got := joinSizes([]string{"100", "90"}); got != "100|90" {
		t.Fatalf("joinSizes() = %q", got)
	}
}

func TestReadIDToSeqMapParsesColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample_id_1.map")
	content := "0\tread-a\t50|40\t25|20\n1\tread-b\t7\t7\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := readIDToSeqMap(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("readIDToSeqMap() returned %d entries, want 2", len(got))
	}
	if got[0].readID != "read-a" || got[0].sizes != "50|40" || got[0].total != 45 {
		t.Fatalf("readIDToSeqMap()[0] = %+v", got[0])
	}
	if len(got[0].kmerCounts) != 2 || got[0].kmerCounts[0] != 25 || got[0].kmerCounts[1] != 20 {
		t.Fatalf("readIDToSeqMap()[0].kmerCounts = %+v", got[0].kmerCounts)
	}
	if got[1].readID != "read-b" || got[1].sizes != "7" || got[1].total != 7 {
		t.Fatalf("readIDToSeqMap()[1] = %+v", got[1])
	}
}

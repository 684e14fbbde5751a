package minimizer

import (
	"fmt"
	"testing"

	"github.com/shenwei356/bio/seq"
)

func mustSeq(t *testing.T, s string) *seq.Seq {
	t.Helper()
	sq, err := seq.NewSeq(seq.DNA, []byte(s))
	if err != nil {
		t.Fatalf("seq.NewSeq(%q): %v", s, err)
	}
	return sq
}

// TestScannerLiteralVectors reproduces the reference scanner's own unit
// test: seq="ACGATCGACGACG", k=10, l=5 must yield minimizers whose low 16
// bits are 0x02d8 and 0x0218 before the MurmurHash3 finalizer is applied.
func TestScannerLiteralVectors(t *testing.T) {
	meros, err := NewMeros(10, 5)
	if err != nil {
		t.Fatalf("NewMeros: %v", err)
	}

	sc := NewScanner(meros, mustSeq(t, "ACGATCGACGACG"))

	m1, ok := sc.Next()
	if !ok {
		t.Fatalf("Next() #1: expected a minimizer, got none")
	}
	if got := fmt.Sprintf("%04x", m1&0xffff); got != "02d8" {
		t.Fatalf("minimizer #1 = %s, want 02d8", got)
	}

	m2, ok := sc.Next()
	if !ok {
		t.Fatalf("Next() #2: expected a minimizer, got none")
	}
	if got := fmt.Sprintf("%04x", m2&0xffff); got != "0218" {
		t.Fatalf("minimizer #2 = %s, want 0218", got)
	}
}

func TestScannerExhaustion(t *testing.T) {
	meros, err := NewMeros(10, 5)
	if err != nil {
		t.Fatalf("NewMeros: %v", err)
	}
	sc := NewScanner(meros, mustSeq(t, "ACGATCGACGACG"))

	var got []uint64
	for {
		m, ok := sc.Next()
		if !ok {
			break
		}
		got = append(got, m)
	}
	if len(got) == 0 {
		t.Fatalf("expected at least one minimizer")
	}
	// Once exhausted, Next must keep returning ok=false rather than
	// re-emitting the final window.
	if _, ok := sc.Next(); ok {
		t.Fatalf("Next() after exhaustion: expected ok=false")
	}
}

func TestScannerResetStartsFresh(t *testing.T) {
	meros, err := NewMeros(10, 5)
	if err != nil {
		t.Fatalf("NewMeros: %v", err)
	}
	sc := NewScanner(meros, mustSeq(t, "ACGATCGACGACG"))
	first, _ := sc.Next()

	sc.Reset(mustSeq(t, "ACGATCGACGACG"))
	second, ok := sc.Next()
	if !ok {
		t.Fatalf("Next() after Reset: expected a minimizer")
	}
	if first != second {
		t.Fatalf("Reset did not restart the scan identically: %x != %x", first, second)
	}
}

func TestScannerGapResetsWindow(t *testing.T) {
	meros, err := NewMeros(10, 5)
	if err != nil {
		t.Fatalf("NewMeros: %v", err)
	}
	// The N splits the sequence in two. The first segment is exactly k=10
	// bases, so it fills one window and emits one minimizer; the N clears
	// the window rather than bridging it, and the 6-base tail emits its
	// in-progress minimum at the end of the sequence.
	sc := NewScanner(meros, mustSeq(t, "ACGATCGACGNACGACG"))
	count := 0
	for {
		if _, ok := sc.Next(); !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 minimizers (one per side of the gap), got %d", count)
	}
}

func TestCanonicalRepresentationPicksSmaller(t *testing.T) {
	lmer := uint64(0x1) // "AAAAC" for l=5 in 2-bit packing (low bits only)
	rc := reverseComplement(lmer, 5)
	canon := canonicalRepresentation(lmer, 5)
	if canon != lmer && canon != rc {
		t.Fatalf("canonicalRepresentation must return one of the two strands")
	}
	if canon > lmer && canon > rc {
		t.Fatalf("canonicalRepresentation did not pick the smaller strand")
	}
}

func TestWindowMinimizerSequenceOfIntegers(t *testing.T) {
	// Reproduces the reference scanner's MinimizerWindow unit test:
	// integers 1,2,3,4 through a window of size (k=1,l=0 => capacity=2)
	// yield [1,2,3].
	w := newWindow(1, 0)
	var result []uint64
	for _, v := range []uint64{1, 2, 3, 4} {
		if m, ok := w.nextCandidate(v); ok {
			result = append(result, m)
		}
	}
	if m, ok := w.lastMinimizer(); ok {
		result = append(result, m)
	}
	want := []uint64{1, 2, 3}
	if !equalSlices(result, want) {
		t.Fatalf("got %v, want %v", result, want)
	}
}

func TestWindowMinimizerSecondSequence(t *testing.T) {
	// capacity = k - l + 1 = 2 - 0 + 1 = 3
	w := newWindow(2, 0)
	var result []uint64
	for _, v := range []uint64{4, 3, 5, 2, 6, 2, 1} {
		if m, ok := w.nextCandidate(v); ok {
			result = append(result, m)
		}
	}
	if m, ok := w.lastMinimizer(); ok {
		result = append(result, m)
	}
	want := []uint64{3, 2, 1}
	if !equalSlices(result, want) {
		t.Fatalf("got %v, want %v", result, want)
	}
}

func equalSlices(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFinalizeHashKnownVector(t *testing.T) {
	if got := FinalizeHash(123); got != 9208534749291869864 {
		t.Fatalf("FinalizeHash(123) = %d, want 9208534749291869864", got)
	}
}

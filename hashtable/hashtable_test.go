package hashtable

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/kr2go/kr2go/hashkey"
)

func TestPageFindIndexEmptyAndMatch(t *testing.T) {
	cfg := hashkey.Config{ValueBits: 8}
	mask := cfg.ValueMask()

	compactedA := uint32(5)
	valueA := hashkey.Combined32(compactedA, 99, cfg.ValueBits)
	data := []uint32{valueA, 0, 123}
	page := NewPage(0, data)

	if got := page.FindIndex(0, compactedA, cfg.ValueBits, mask); got != 99 {
		t.Fatalf("FindIndex matching key = %d, want 99", got)
	}
	if got := page.FindIndex(0, 7, cfg.ValueBits, mask); got != 0 {
		t.Fatalf("FindIndex mismatched key at occupied slot, then empty slot = %d, want 0", got)
	}
	if got := page.FindIndex(3, compactedA, cfg.ValueBits, mask); got != 0 {
		t.Fatalf("FindIndex past page end = %d, want 0", got)
	}
}

func TestPageMergeExtendsProbe(t *testing.T) {
	p1 := NewPage(0, []uint32{11, 22})
	p2 := NewPage(1, []uint32{33, 0, 99})
	p1.Merge(p2)

	if p1.Size != 5 {
		t.Fatalf("merged size = %d, want 5", p1.Size)
	}
	want := []uint32{11, 22, 33, 0, 99}
	for i, w := range want {
		if p1.Data[i] != w {
			t.Fatalf("merged data[%d] = %d, want %d", i, p1.Data[i], w)
		}
	}
}

func TestBuilderSetCellFreshSlot(t *testing.T) {
	cfg := hashkey.Config{ValueBits: 8, Capacity: 16}
	dir := t.TempDir()
	path := filepath.Join(dir, "shard.k2d")

	b, err := CreateBuilder(path, 0, cfg.Capacity, cfg)
	if err != nil {
		t.Fatalf("CreateBuilder: %v", err)
	}
	defer b.Close()

	lca := func(a, b uint32) uint32 {
		if a < b {
			return a
		}
		return b
	}

	if !b.SetCell(3, 42, 100, lca) {
		t.Fatalf("SetCell on empty slot should succeed")
	}

	current := b.cells[3]
	if got := hashkey.Right32(current, cfg.ValueMask()); got != 100 {
		t.Fatalf("stored taxid = %d, want 100", got)
	}
	if got := hashkey.Left32(current, cfg.ValueBits); got != 42 {
		t.Fatalf("stored compacted key = %d, want 42", got)
	}
}

func TestBuilderSetCellMergesSameKeyByLCA(t *testing.T) {
	cfg := hashkey.Config{ValueBits: 8, Capacity: 16}
	dir := t.TempDir()
	path := filepath.Join(dir, "shard.k2d")

	b, err := CreateBuilder(path, 0, cfg.Capacity, cfg)
	if err != nil {
		t.Fatalf("CreateBuilder: %v", err)
	}
	defer b.Close()

	lca := func(a, b uint32) uint32 {
		if a < b {
			return a
		}
		return b
	}

	if !b.SetCell(5, 7, 200, lca) {
		t.Fatalf("first SetCell should succeed")
	}
	if !b.SetCell(5, 7, 50, lca) {
		t.Fatalf("second SetCell (same key) should merge, not fail")
	}

	current := b.cells[5]
	if got := hashkey.Right32(current, cfg.ValueMask()); got != 50 {
		t.Fatalf("merged taxid = %d, want 50 (min of 200 and 50)", got)
	}
}

func TestBuilderSetCellProbesOnCollision(t *testing.T) {
	cfg := hashkey.Config{ValueBits: 8, Capacity: 16}
	dir := t.TempDir()
	path := filepath.Join(dir, "shard.k2d")

	b, err := CreateBuilder(path, 0, cfg.Capacity, cfg)
	if err != nil {
		t.Fatalf("CreateBuilder: %v", err)
	}
	defer b.Close()

	lca := func(a, b uint32) uint32 { return a }

	if !b.SetCell(2, 1, 10, lca) {
		t.Fatalf("occupy slot 2 with key 1")
	}
	if !b.SetCell(2, 2, 20, lca) {
		t.Fatalf("distinct key at same start index should probe forward")
	}

	if got := hashkey.Right32(b.cells[2], cfg.ValueMask()); got != 10 {
		t.Fatalf("slot 2 should be untouched, taxid = %d, want 10", got)
	}
	if got := hashkey.Right32(b.cells[3], cfg.ValueMask()); got != 20 {
		t.Fatalf("slot 3 should hold the probed-forward key, taxid = %d, want 20", got)
	}
}

func TestBuilderSetCellConcurrentMerge(t *testing.T) {
	cfg := hashkey.Config{ValueBits: 8, Capacity: 16}
	dir := t.TempDir()
	path := filepath.Join(dir, "shard.k2d")

	b, err := CreateBuilder(path, 0, cfg.Capacity, cfg)
	if err != nil {
		t.Fatalf("CreateBuilder: %v", err)
	}
	defer b.Close()

	lca := func(a, c uint32) uint32 {
		if a < c {
			return a
		}
		return c
	}

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		taxid := uint32(n - i)
		go func(taxid uint32) {
			defer wg.Done()
			b.SetCell(9, 3, taxid, lca)
		}(taxid)
	}
	wg.Wait()

	if got := hashkey.Right32(b.cells[9], cfg.ValueMask()); got != 1 {
		t.Fatalf("concurrently merged taxid = %d, want 1 (the minimum)", got)
	}
}

func TestReaderFromHashFilesRoundTrip(t *testing.T) {
	cfg := hashkey.Config{ValueBits: 8, Capacity: 8}
	dir := t.TempDir()
	path := filepath.Join(dir, "shard.0.k2d")

	b, err := CreateBuilder(path, 0, cfg.Capacity, cfg)
	if err != nil {
		t.Fatalf("CreateBuilder: %v", err)
	}

	lca := func(a, c uint32) uint32 { return a }
	if !b.SetCell(0, 11, 77, lca) {
		t.Fatalf("SetCell failed")
	}
	if err := b.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cfg.Version = 1
	reader, err := FromHashFiles(cfg, []string{path})
	if err != nil {
		t.Fatalf("FromHashFiles: %v", err)
	}

	if got := reader.GetFromPage(0, 11, 0); got != 77 {
		t.Fatalf("GetFromPage = %d, want 77", got)
	}
	if got := reader.GetFromPage(0, 99, 0); got != 0 {
		t.Fatalf("GetFromPage for absent key = %d, want 0", got)
	}
}

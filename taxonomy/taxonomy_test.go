package taxonomy

import (
	"os"
	"path/filepath"
	"testing"
)

// buildThreeNode constructs the literal three-node taxonomy: root (external
// id 1) with two children (external ids 2 and 3).
func buildThreeNode() *Taxonomy {
	t := &Taxonomy{
		Nodes: []Node{
			{}, // sentinel
			{Parent: 0, ExternalID: 1, FirstChild: 2, ChildCount: 2},
			{Parent: 1, ExternalID: 2},
			{Parent: 1, ExternalID: 3},
		},
	}
	t.GenerateExternalToInternalIDMap()
	t.BuildPathCache()
	return t
}

func TestLCAThreeNode(t *testing.T) {
	tax := buildThreeNode()

	if got := tax.LCA(2, 3); got != 1 {
		t.Fatalf("LCA(2,3) = %d, want 1", got)
	}
	if !tax.IsAncestorOf(1, 2) {
		t.Fatalf("IsAncestorOf(1,2) = false, want true")
	}
	if tax.IsAncestorOf(2, 3) {
		t.Fatalf("IsAncestorOf(2,3) = true, want false")
	}
}

func TestLCAWithRootSentinel(t *testing.T) {
	tax := buildThreeNode()

	if got := tax.LCA(0, 2); got != 2 {
		t.Fatalf("LCA(0,2) = %d, want 2", got)
	}
	if got := tax.LCA(2, 0); got != 2 {
		t.Fatalf("LCA(2,0) = %d, want 2", got)
	}
	if got := tax.LCA(2, 2); got != 2 {
		t.Fatalf("LCA(2,2) = %d, want 2", got)
	}
}

func TestGetInternalID(t *testing.T) {
	tax := buildThreeNode()

	if got := tax.GetInternalID(2); got != 2 {
		t.Fatalf("GetInternalID(2) = %d, want 2", got)
	}
	if got := tax.GetInternalID(3); got != 3 {
		t.Fatalf("GetInternalID(3) = %d, want 3", got)
	}
	if got := tax.GetInternalID(999); got != 0 {
		t.Fatalf("GetInternalID(999) = %d, want 0 (miss)", got)
	}
}

func TestNodeCount(t *testing.T) {
	tax := buildThreeNode()
	if got := tax.NodeCount(); got != 3 {
		t.Fatalf("NodeCount() = %d, want 3", got)
	}

	empty := &Taxonomy{}
	if got := empty.NodeCount(); got != 0 {
		t.Fatalf("NodeCount() on empty taxonomy = %d, want 0", got)
	}
}

func TestMinValueBits(t *testing.T) {
	cases := []struct {
		nodeCount int
		want      int
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{1024, 10},
		{1025, 11},
	}
	for _, c := range cases {
		if got := MinValueBits(c.nodeCount); got != c.want {
			t.Errorf("MinValueBits(%d) = %d, want %d", c.nodeCount, got, c.want)
		}
	}
}

func TestWriteToDiskAndFromFile(t *testing.T) {
	tax := buildThreeNode()
	tax.Nodes[1].RankOffset = 0
	tax.RankData = append([]byte("no rank"), 0)
	tax.Nodes[2].NameOffset = 0
	tax.NameData = append([]byte("root"), 0)

	dir := t.TempDir()
	path := filepath.Join(dir, "tax.k2d")

	if err := tax.WriteToDisk(path); err != nil {
		t.Fatalf("WriteToDisk: %v", err)
	}

	loaded, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}

	if loaded.NodeCount() != tax.NodeCount() {
		t.Fatalf("NodeCount mismatch: got %d, want %d", loaded.NodeCount(), tax.NodeCount())
	}
	if loaded.LCA(2, 3) != 1 {
		t.Fatalf("round-tripped taxonomy: LCA(2,3) = %d, want 1", loaded.LCA(2, 3))
	}
	if loaded.ExternalID(2) != 2 {
		t.Fatalf("round-tripped ExternalID(2) = %d, want 2", loaded.ExternalID(2))
	}
}

func TestFromFileBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.k2d")
	if err := os.WriteFile(path, []byte("NOTRIGHT"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := FromFile(path); err == nil {
		t.Fatalf("FromFile with bad magic: want error, got nil")
	}
}

func TestMarkNodeAndConvert(t *testing.T) {
	b := &Builder{
		parent:   map[uint64]uint64{1: 0, 2: 1, 3: 1, 4: 2},
		children: map[uint64][]uint64{0: {1}, 1: {2, 3}, 2: {4}},
		rank:     map[uint64]string{1: "no rank", 2: "genus", 3: "genus", 4: "species"},
		name:     map[uint64]string{1: "root", 2: "Genus A", 3: "Genus B", 4: "Species X"},
		ranks:    map[string]struct{}{"no rank": {}, "genus": {}, "species": {}},
		marked:   map[uint64]struct{}{1: {}},
	}

	// Only mark species 4 (and its ancestors): genus 3 should be pruned.
	b.MarkNode(4)

	tax := b.ConvertToKrakenTaxonomy()
	tax.GenerateExternalToInternalIDMap()
	tax.BuildPathCache()

	if tax.NodeCount() != 3 {
		t.Fatalf("NodeCount() = %d, want 3 (root, genus A, species X)", tax.NodeCount())
	}

	speciesInternal := tax.GetInternalID(4)
	if speciesInternal == 0 {
		t.Fatalf("species external id 4 not present in compacted taxonomy")
	}
	if tax.Name(speciesInternal) != "Species X" {
		t.Fatalf("Name(species) = %q, want %q", tax.Name(speciesInternal), "Species X")
	}
	if tax.Rank(speciesInternal) != "species" {
		t.Fatalf("Rank(species) = %q, want %q", tax.Rank(speciesInternal), "species")
	}

	rootInternal := tax.GetInternalID(1)
	if !tax.IsAncestorOf(rootInternal, speciesInternal) {
		t.Fatalf("root should be an ancestor of the marked species")
	}

	// Genus B (external id 3) was never marked and has no marked
	// descendants, so it must not appear.
	if tax.GetInternalID(3) != 0 {
		t.Fatalf("unmarked genus B leaked into compacted taxonomy")
	}
}

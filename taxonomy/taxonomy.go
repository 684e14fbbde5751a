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

// Package taxonomy implements a compacted, BFS-numbered NCBI taxonomy with
// path-cached LCA and ancestor queries.
package taxonomy

import "math/bits"

// Node is a fixed-width taxon record. Index 0 is the sentinel null node.
type Node struct {
	Parent      uint64
	FirstChild  uint64
	ChildCount  uint64
	NameOffset  uint64
	RankOffset  uint64
	ExternalID  uint64
	GodparentID uint64
}

// Taxonomy is a frozen, indexable taxonomy: a dense node array plus two
// NUL-terminated byte arenas for names and ranks.
type Taxonomy struct {
	Nodes    []Node
	NameData []byte
	RankData []byte

	externalToInternal map[uint64]uint64
	pathCache          [][]uint64
}

// NodeCount returns the number of non-sentinel nodes.
func (t *Taxonomy) NodeCount() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	return len(t.Nodes) - 1
}

// GenerateExternalToInternalIDMap rebuilds the external->internal lookup,
// total over every node's external id plus the 0->0 sentinel mapping.
func (t *Taxonomy) GenerateExternalToInternalIDMap() {
	m := make(map[uint64]uint64, len(t.Nodes))
	m[0] = 0
	for i, n := range t.Nodes {
		if i == 0 {
			continue
		}
		m[n.ExternalID] = uint64(i)
	}
	t.externalToInternal = m
}

// GetInternalID returns 0 on a miss, never an error: a missing external id
// is not fatal (spec §4.1 failure semantics).
func (t *Taxonomy) GetInternalID(externalID uint64) uint64 {
	if t.externalToInternal == nil {
		return 0
	}
	return t.externalToInternal[externalID]
}

// BuildPathCache computes, for every internal id, the ordered list of
// ancestors from the root to that id inclusive. Relies on the BFS
// invariant that parent index < own index.
func (t *Taxonomy) BuildPathCache() {
	n := len(t.Nodes)
	cache := make([][]uint64, n)
	cache[0] = nil
	for i := 1; i < n; i++ {
		parent := t.Nodes[i].Parent
		if parent == 0 {
			cache[i] = []uint64{uint64(i)}
			continue
		}
		parentPath := cache[parent]
		path := make([]uint64, len(parentPath)+1)
		copy(path, parentPath)
		path[len(parentPath)] = uint64(i)
		cache[i] = path
	}
	t.pathCache = cache
}

// LCA returns the lowest common ancestor of a and b using the path cache
// (longest common prefix of path_cache[a] and path_cache[b]); LCA with 0
// is the other argument.
func (t *Taxonomy) LCA(a, b uint64) uint64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a == b {
		return a
	}
	if int(a) >= len(t.pathCache) || int(b) >= len(t.pathCache) {
		return 0
	}
	pa, pb := t.pathCache[a], t.pathCache[b]
	var lca uint64
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			break
		}
		lca = pa[i]
	}
	return lca
}

// IsAncestorOf reports whether a appears in path_cache[b].
func (t *Taxonomy) IsAncestorOf(a, b uint64) bool {
	if a == 0 || b == 0 {
		return false
	}
	if int(b) >= len(t.pathCache) {
		return false
	}
	for _, id := range t.pathCache[b] {
		if id == a {
			return true
		}
		if id > a {
			// path cache is monotonically increasing (BFS numbering), so
			// once we've passed a without matching it can't appear later.
			break
		}
	}
	return false
}

// Parent returns the internal parent id of internalID, or 0 for the root
// or the sentinel node.
func (t *Taxonomy) Parent(internalID uint64) uint64 {
	if internalID == 0 || int(internalID) >= len(t.Nodes) {
		return 0
	}
	return t.Nodes[internalID].Parent
}

// ExternalID returns the NCBI taxon id for an internal id.
func (t *Taxonomy) ExternalID(internalID uint64) uint64 {
	if int(internalID) >= len(t.Nodes) {
		return 0
	}
	return t.Nodes[internalID].ExternalID
}

// Name returns the scientific name of internalID by scanning its NUL
// terminated slot in the name arena.
func (t *Taxonomy) Name(internalID uint64) string {
	return t.arenaString(t.NameData, internalID, func(n Node) uint64 { return n.NameOffset })
}

// Rank returns the rank string of internalID from the shared, sorted rank
// arena.
func (t *Taxonomy) Rank(internalID uint64) string {
	return t.arenaString(t.RankData, internalID, func(n Node) uint64 { return n.RankOffset })
}

func (t *Taxonomy) arenaString(arena []byte, internalID uint64, offsetOf func(Node) uint64) string {
	if internalID == 0 || int(internalID) >= len(t.Nodes) {
		return ""
	}
	off := offsetOf(t.Nodes[internalID])
	if off >= uint64(len(arena)) {
		return ""
	}
	end := off
	for end < uint64(len(arena)) && arena[end] != 0 {
		end++
	}
	return string(arena[off:end])
}

// MinValueBits returns the minimal v such that 2^v >= nodeCount, i.e. the
// number of bits needed to store every internal taxid in a hash slot
// value field when nodeCount counts the sentinel node 0 too
// (len(Taxonomy.Nodes)), so ids 0..nodeCount-1 all fit. Returns at
// least 1.
func MinValueBits(nodeCount int) int {
	if nodeCount <= 1 {
		return 1
	}
	v := bits.Len(uint(nodeCount - 1))
	if v < 1 {
		v = 1
	}
	return v
}

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

package taxonomy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/breader"
)

// nodeRecord is one parsed line of nodes.dmp: (id, parent, rank).
type nodeRecord struct {
	ID, Parent uint64
	Rank       string
}

// Builder accumulates the NCBI dump files and a set of taxa to keep before
// producing a compacted Taxonomy.
type Builder struct {
	parent   map[uint64]uint64
	children map[uint64][]uint64
	rank     map[uint64]string
	name     map[uint64]string
	ranks    map[string]struct{}
	marked   map[uint64]struct{}
}

// FromNCBI parses nodes.dmp and names.dmp (NCBI pipe-delimited taxdump
// format), keeping only (id, parent, rank) and scientific names.
func FromNCBI(nodesDump, namesDump string) (*Builder, error) {
	parseNode := func(line string) (interface{}, bool, error) {
		fields := strings.Split(line, "\t|\t")
		if len(fields) < 3 {
			return nil, false, nil
		}
		id, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, false, nil
		}
		var parent uint64
		if id == 1 {
			parent = 0
		} else {
			parent, err = strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 64)
			if err != nil {
				return nil, false, nil
			}
		}
		rank := strings.TrimSpace(fields[2])
		return nodeRecord{ID: id, Parent: parent, Rank: rank}, true, nil
	}

	reader, err := breader.NewBufferedReader(nodesDump, 8, 100, parseNode)
	if err != nil {
		return nil, errors.Wrapf(err, "taxonomy: reading %s", nodesDump)
	}

	b := &Builder{
		parent:   make(map[uint64]uint64, 1<<20),
		children: make(map[uint64][]uint64, 1<<20),
		rank:     make(map[uint64]string, 1<<20),
		name:     make(map[uint64]string, 1<<20),
		ranks:    make(map[string]struct{}),
		marked:   make(map[uint64]struct{}),
	}

	for chunk := range reader.Ch {
		if chunk.Err != nil {
			return nil, errors.Wrapf(chunk.Err, "taxonomy: parsing %s", nodesDump)
		}
		for _, data := range chunk.Data {
			rec := data.(nodeRecord)
			b.parent[rec.ID] = rec.Parent
			b.children[rec.Parent] = append(b.children[rec.Parent], rec.ID)
			b.rank[rec.ID] = rec.Rank
			b.ranks[rec.Rank] = struct{}{}
		}
	}

	parseName := func(line string) (interface{}, bool, error) {
		line = strings.TrimRight(line, "\t|\n")
		fields := strings.Split(line, "\t|\t")
		if len(fields) < 4 {
			return nil, false, nil
		}
		if fields[3] != "scientific name" {
			return nil, false, nil
		}
		id, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, false, nil
		}
		return nodeRecord{ID: id, Rank: fields[1]}, true, nil
	}

	namesReader, err := breader.NewBufferedReader(namesDump, 8, 100, parseName)
	if err != nil {
		return nil, errors.Wrapf(err, "taxonomy: reading %s", namesDump)
	}
	for chunk := range namesReader.Ch {
		if chunk.Err != nil {
			return nil, errors.Wrapf(chunk.Err, "taxonomy: parsing %s", namesDump)
		}
		for _, data := range chunk.Data {
			rec := data.(nodeRecord)
			b.name[rec.ID] = rec.Rank // Rank field reused as name payload
		}
	}

	b.marked[1] = struct{}{}
	return b, nil
}

// MarkNode transitively marks the node and all of its ancestors up to the
// root. Only marked nodes survive into the compact taxonomy.
func (b *Builder) MarkNode(externalID uint64) {
	current := externalID
	for {
		if _, ok := b.marked[current]; ok {
			return
		}
		b.marked[current] = struct{}{}
		parent, ok := b.parent[current]
		if !ok {
			return
		}
		current = parent
	}
}

// rankOffsets returns a sorted, distinct, NUL-terminated rank arena and an
// offset map into it.
func (b *Builder) rankOffsets() (map[string]uint64, []byte) {
	ranks := make([]string, 0, len(b.ranks))
	for r := range b.ranks {
		ranks = append(ranks, r)
	}
	sort.Strings(ranks)

	offsets := make(map[string]uint64, len(ranks))
	var data []byte
	for _, r := range ranks {
		offsets[r] = uint64(len(data))
		data = append(data, r...)
		data = append(data, 0)
	}
	return offsets, data
}

// ConvertToKrakenTaxonomy performs a BFS from the root over marked nodes,
// assigning internal ids 1..N in visit order, and emits the compacted
// name/rank arenas.
func (b *Builder) ConvertToKrakenTaxonomy() *Taxonomy {
	t := &Taxonomy{Nodes: make([]Node, 1, len(b.marked)+1)}

	rankOffsets, rankData := b.rankOffsets()

	var nameData []byte
	queue := []uint64{1}
	externalToInternal := map[uint64]uint64{0: 0, 1: 1}
	var internalID uint64

	for len(queue) > 0 {
		externalID := queue[0]
		queue = queue[1:]

		internalID++
		externalToInternal[externalID] = internalID

		var node Node
		node.Parent = externalToInternal[b.parent[externalID]]
		node.ExternalID = externalID
		node.RankOffset = rankOffsets[b.rank[externalID]]
		node.NameOffset = uint64(len(nameData))

		nameData = append(nameData, b.name[externalID]...)
		nameData = append(nameData, 0)

		node.FirstChild = internalID + uint64(len(queue)) + 1

		children := append([]uint64(nil), b.children[externalID]...)
		sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })
		for _, child := range children {
			if _, ok := b.marked[child]; ok {
				queue = append(queue, child)
				node.ChildCount++
			}
		}

		t.Nodes = append(t.Nodes, node)
	}

	t.NameData = nameData
	t.RankData = rankData
	return t
}

// BuildTaxonomy is the end-to-end convenience entry point: parse the NCBI
// dumps, mark every external id in keepExternalIDs, convert,
// cache paths and build the id map, ready for WriteToDisk.
func BuildTaxonomy(nodesDump, namesDump string, keepExternalIDs []uint64) (*Taxonomy, error) {
	b, err := FromNCBI(nodesDump, namesDump)
	if err != nil {
		return nil, err
	}
	for _, id := range keepExternalIDs {
		b.MarkNode(id)
	}
	t := b.ConvertToKrakenTaxonomy()
	t.GenerateExternalToInternalIDMap()
	t.BuildPathCache()
	return t, nil
}

// ErrEmptyTaxonomy is returned when a taxonomy has no nodes beyond the
// sentinel.
var ErrEmptyTaxonomy = fmt.Errorf("taxonomy: empty taxonomy")

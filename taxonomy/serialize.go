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
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// magic is the on-disk format tag, matching the Rust reference's fixed
// 8-byte header exactly.
const magic = "K2TAXDAT"

const nodeRecordSize = 7 * 8

// WriteToDisk serializes the taxonomy to path as: 8-byte magic, three
// little-endian u64 counts (node count, name-arena length, rank-arena
// length), then the node records, then the name arena, then the rank
// arena.
func (t *Taxonomy) WriteToDisk(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "taxonomy: creating %s", path)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 1<<20)

	if _, err := w.WriteString(magic); err != nil {
		return errors.Wrap(err, "taxonomy: writing magic")
	}

	var counts [24]byte
	binary.LittleEndian.PutUint64(counts[0:8], uint64(len(t.Nodes)))
	binary.LittleEndian.PutUint64(counts[8:16], uint64(len(t.NameData)))
	binary.LittleEndian.PutUint64(counts[16:24], uint64(len(t.RankData)))
	if _, err := w.Write(counts[:]); err != nil {
		return errors.Wrap(err, "taxonomy: writing header counts")
	}

	var rec [nodeRecordSize]byte
	for _, n := range t.Nodes {
		binary.LittleEndian.PutUint64(rec[0:8], n.Parent)
		binary.LittleEndian.PutUint64(rec[8:16], n.FirstChild)
		binary.LittleEndian.PutUint64(rec[16:24], n.ChildCount)
		binary.LittleEndian.PutUint64(rec[24:32], n.NameOffset)
		binary.LittleEndian.PutUint64(rec[32:40], n.RankOffset)
		binary.LittleEndian.PutUint64(rec[40:48], n.ExternalID)
		binary.LittleEndian.PutUint64(rec[48:56], n.GodparentID)
		if _, err := w.Write(rec[:]); err != nil {
			return errors.Wrap(err, "taxonomy: writing node record")
		}
	}

	if _, err := w.Write(t.NameData); err != nil {
		return errors.Wrap(err, "taxonomy: writing name arena")
	}
	if _, err := w.Write(t.RankData); err != nil {
		return errors.Wrap(err, "taxonomy: writing rank arena")
	}

	return w.Flush()
}

// FromFile loads a taxonomy previously written by WriteToDisk, rebuilding
// the external-id map and path cache so it is immediately query-ready.
func FromFile(path string) (*Taxonomy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "taxonomy: opening %s", path)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)

	var gotMagic [8]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, errors.Wrap(err, "taxonomy: reading magic")
	}
	if string(gotMagic[:]) != magic {
		return nil, errors.Errorf("taxonomy: bad magic %q, expected %q", gotMagic, magic)
	}

	var counts [24]byte
	if _, err := io.ReadFull(r, counts[:]); err != nil {
		return nil, errors.Wrap(err, "taxonomy: reading header counts")
	}
	nodeCount := binary.LittleEndian.Uint64(counts[0:8])
	nameLen := binary.LittleEndian.Uint64(counts[8:16])
	rankLen := binary.LittleEndian.Uint64(counts[16:24])

	t := &Taxonomy{Nodes: make([]Node, nodeCount)}

	var rec [nodeRecordSize]byte
	for i := range t.Nodes {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, errors.Wrapf(err, "taxonomy: reading node record %d", i)
		}
		t.Nodes[i] = Node{
			Parent:      binary.LittleEndian.Uint64(rec[0:8]),
			FirstChild:  binary.LittleEndian.Uint64(rec[8:16]),
			ChildCount:  binary.LittleEndian.Uint64(rec[16:24]),
			NameOffset:  binary.LittleEndian.Uint64(rec[24:32]),
			RankOffset:  binary.LittleEndian.Uint64(rec[32:40]),
			ExternalID:  binary.LittleEndian.Uint64(rec[40:48]),
			GodparentID: binary.LittleEndian.Uint64(rec[48:56]),
		}
	}

	t.NameData = make([]byte, nameLen)
	if _, err := io.ReadFull(r, t.NameData); err != nil {
		return nil, errors.Wrap(err, "taxonomy: reading name arena")
	}
	t.RankData = make([]byte, rankLen)
	if _, err := io.ReadFull(r, t.RankData); err != nil {
		return nil, errors.Wrap(err, "taxonomy: reading rank arena")
	}

	t.GenerateExternalToInternalIDMap()
	t.BuildPathCache()

	return t, nil
}

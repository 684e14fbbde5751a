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

package minimizer

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

// CurrentRevcomVersion is the only reverse-complement algorithm version
// this module knows how to scan: a database built with a different
// version uses a different canonicalization rule and can't be read.
const CurrentRevcomVersion = 1

// indexOptionsSize is the on-disk size in bytes of IndexOptions: five
// little-endian u64 fields, a one-byte bool padded out to the next
// 4-byte boundary, then three little-endian i32 fields — the C layout
// opts.k2d is written in.
const indexOptionsSize = 56

// IndexOptions is the header every built database carries describing
// the k-mer/minimizer parameters it was built with.
type IndexOptions struct {
	KMer                      int
	LMer                      int
	SpacedSeedMask            uint64
	ToggleMask                uint64
	MinimumAcceptableHashValue uint64
	DnaDB                     bool
	RevcomVersion             int32
	DBVersion                 int32
	DBType                    int32
}

// ReadIndexOptions reads and validates an opts.k2d file.
func ReadIndexOptions(path string) (IndexOptions, error) {
	buf, err := readExactly(path, indexOptionsSize)
	if err != nil {
		return IndexOptions{}, errors.Wrapf(err, "minimizer: reading %s", path)
	}

	opts := IndexOptions{
		KMer:                       int(binary.LittleEndian.Uint64(buf[0:8])),
		LMer:                       int(binary.LittleEndian.Uint64(buf[8:16])),
		SpacedSeedMask:             binary.LittleEndian.Uint64(buf[16:24]),
		ToggleMask:                 binary.LittleEndian.Uint64(buf[24:32]),
		MinimumAcceptableHashValue: binary.LittleEndian.Uint64(buf[32:40]),
		DnaDB:                      buf[40] != 0,
		RevcomVersion:              int32(binary.LittleEndian.Uint32(buf[44:48])),
		DBVersion:                  int32(binary.LittleEndian.Uint32(buf[48:52])),
		DBType:                     int32(binary.LittleEndian.Uint32(buf[52:56])),
	}

	if opts.RevcomVersion != CurrentRevcomVersion {
		return IndexOptions{}, errors.Errorf("minimizer: unsupported revcom_version %d (want %d)", opts.RevcomVersion, CurrentRevcomVersion)
	}

	return opts, nil
}

// WriteIndexOptions writes the on-disk header chunk-db produces.
func WriteIndexOptions(path string, opts IndexOptions) error {
	var buf [indexOptionsSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(opts.KMer))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(opts.LMer))
	binary.LittleEndian.PutUint64(buf[16:24], opts.SpacedSeedMask)
	binary.LittleEndian.PutUint64(buf[24:32], opts.ToggleMask)
	binary.LittleEndian.PutUint64(buf[32:40], opts.MinimumAcceptableHashValue)
	if opts.DnaDB {
		buf[40] = 1
	}
	binary.LittleEndian.PutUint32(buf[44:48], uint32(opts.RevcomVersion))
	binary.LittleEndian.PutUint32(buf[48:52], uint32(opts.DBVersion))
	binary.LittleEndian.PutUint32(buf[52:56], uint32(opts.DBType))

	return os.WriteFile(path, buf[:], 0644)
}

// AsMeros derives the scanner parameters this database was built with.
// A zero SpacedSeedMask/ToggleMask/MinimumAcceptableHashValue means "not
// set", mirroring the Option<u64>::filter(|&x| x != 0) conversion on the
// Rust side.
func (opts IndexOptions) AsMeros() (Meros, error) {
	m, err := NewMeros(opts.KMer, opts.LMer)
	if err != nil {
		return Meros{}, err
	}
	if opts.SpacedSeedMask != 0 {
		m = m.WithSpacedSeedMask(opts.SpacedSeedMask)
	}
	if opts.ToggleMask != 0 {
		m = m.WithToggleMask(opts.ToggleMask)
	} else {
		m = m.WithToggleMask(DefaultToggleMask)
	}
	if opts.MinimumAcceptableHashValue != 0 {
		m.MinClearHashVal = opts.MinimumAcceptableHashValue
	}
	return m, nil
}

func readExactly(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	if _, err := f.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

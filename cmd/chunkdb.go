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

package cmd

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kr2go/kr2go/build"
)

var chunkDBCmd = &cobra.Command{
	Use:   "chunk-db",
	Short: "scan the reference library into per-partition chunk files",
	Long: `scan the reference library into per-partition chunk files

Reads every library_*.fna file, looks each record's sequence id up in
seqid2taxid.map, and spills one (index, compacted_key, taxid) slot per
minimizer into its target partition's chunk_<p>.k2 file, ahead of
build-db folding those into the final hash shards.

`,
	Run: func(cmd *cobra.Command, args []string) {
		threads := getFlagPositiveInt(cmd, "threads")
		runtime.GOMAXPROCS(threads)

		err := build.ChunkDB(build.ChunkDBOptions{
			DatabaseDir:           getFlagString(cmd, "db"),
			RequiredCapacity:      getFlagUint64(cmd, "required-capacity"),
			HashCapacity:          getFlagPositiveInt(cmd, "hash-capacity"),
			RequestedBitsForTaxid: getFlagInt(cmd, "taxid-bits"),
			KMer:                  getFlagPositiveInt(cmd, "kmer-len"),
			LMer:                  getFlagPositiveInt(cmd, "minimizer-len"),
			SpacedSeedMask:        getFlagUint64(cmd, "spaced-seed-mask"),
			ToggleMask:            getFlagUint64(cmd, "toggle-mask"),
			NumWorkers:            threads,
		})
		checkError(err)
	},
}

func init() {
	RootCmd.AddCommand(chunkDBCmd)

	chunkDBCmd.Flags().StringP("db", "d", "", "database directory (seqid2taxid.map, taxo.k2d, library/)")
	chunkDBCmd.Flags().Uint64P("required-capacity", "r", 0, "hash table capacity, from estimate")
	chunkDBCmd.Flags().IntP("hash-capacity", "H", 1<<28, "per-partition capacity")
	chunkDBCmd.Flags().IntP("taxid-bits", "b", 0, "bits reserved for taxid, 0 means auto-size from the taxonomy")
	chunkDBCmd.Flags().IntP("kmer-len", "k", 35, "k-mer length")
	chunkDBCmd.Flags().IntP("minimizer-len", "l", 31, "minimizer length")
	chunkDBCmd.Flags().Uint64P("spaced-seed-mask", "S", 0, "spaced seed mask")
	chunkDBCmd.Flags().Uint64P("toggle-mask", "T", 0, "minimizer ordering toggle mask")

	chunkDBCmd.MarkFlagRequired("db")
	chunkDBCmd.MarkFlagRequired("required-capacity")
}

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
	"fmt"
	"runtime"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kr2go/kr2go/build"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "estimate the hash table capacity a library needs",
	Long: `estimate the hash table capacity a library needs

Samples the n/1024 fraction of the library's distinct minimizers whose
hash mod 1024 is below n and scales the observed count back up, divided
by the target load factor,
to report the capacity build-db should be given.

`,
	Run: func(cmd *cobra.Command, args []string) {
		threads := getFlagPositiveInt(cmd, "threads")
		runtime.GOMAXPROCS(threads)

		capacity, err := build.EstimateCapacity(build.EstimateOptions{
			LibraryDir:     getFlagString(cmd, "library-dir"),
			KMer:           getFlagPositiveInt(cmd, "kmer-len"),
			LMer:           getFlagPositiveInt(cmd, "minimizer-len"),
			SpacedSeedMask: getFlagUint64(cmd, "spaced-seed-mask"),
			ToggleMask:     getFlagUint64(cmd, "toggle-mask"),
			N:              getFlagInt(cmd, "n"),
			LoadFactor:     getFlagFloat64(cmd, "load-factor"),
			NumWorkers:     threads,
		})
		checkError(err)

		fmt.Printf("estimated required capacity: %d (%s)\n", capacity, humanize.Comma(int64(capacity)))
	},
}

func init() {
	RootCmd.AddCommand(estimateCmd)

	estimateCmd.Flags().StringP("library-dir", "d", "library", "directory of library_*.fna files")
	estimateCmd.Flags().IntP("kmer-len", "k", 35, "k-mer length")
	estimateCmd.Flags().IntP("minimizer-len", "l", 31, "minimizer length")
	estimateCmd.Flags().Uint64P("spaced-seed-mask", "S", 0, "spaced seed mask")
	estimateCmd.Flags().Uint64P("toggle-mask", "T", 0, "minimizer ordering toggle mask")
	estimateCmd.Flags().IntP("n", "n", 4, "number of the 1024 hash bands to sample")
	estimateCmd.Flags().Float64P("load-factor", "f", 0.7, "target hash table load factor")
}

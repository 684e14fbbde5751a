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

	"github.com/kr2go/kr2go/pipeline"
)

var splitrCmd = &cobra.Command{
	Use:   "splitr",
	Short: "scan reads into per-partition minimizer shards",
	Long: `scan reads into per-partition minimizer shards

Reads the database's hash layout and k-mer parameters, groups the
input files into (possibly paired) jobs, and scans each job's reads
into sample_<N>.k2 shards that annotate later loads one partition at
a time.

`,
	Run: func(cmd *cobra.Command, args []string) {
		threads := getFlagPositiveInt(cmd, "threads")
		runtime.GOMAXPROCS(threads)

		inputFiles := getFileList(cmd, args)
		checkFiles(inputFiles...)

		err := pipeline.Split(pipeline.SplitOptions{
			K2dDir:              getFlagString(cmd, "db"),
			ChunkDir:            getFlagString(cmd, "chunk-dir"),
			InputFiles:          inputFiles,
			PairedEndProcessing: getFlagBool(cmd, "paired-end-processing"),
			SingleFilePairs:     getFlagBool(cmd, "single-file-pairs"),
			MinimumQuality:      getFlagInt(cmd, "minimum-quality-score"),
			NumWorkers:          threads,
		})
		checkError(err)
	},
}

func init() {
	RootCmd.AddCommand(splitrCmd)

	splitrCmd.Flags().StringP("db", "d", "", "database directory (hash_config.k2d, opts.k2d)")
	splitrCmd.Flags().StringP("chunk-dir", "c", "", "directory to write sample_<N>.k2 shards into")
	splitrCmd.Flags().BoolP("paired-end-processing", "p", false, "input files are paired end")
	splitrCmd.Flags().BoolP("single-file-pairs", "P", false, "paired reads interleaved in one file")
	splitrCmd.Flags().IntP("minimum-quality-score", "Q", 0, "minimum base quality for FASTQ input (accepted; base qualities are not used)")

	splitrCmd.MarkFlagRequired("db")
	splitrCmd.MarkFlagRequired("chunk-dir")
}

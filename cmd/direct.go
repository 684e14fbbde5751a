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

var directCmd = &cobra.Command{
	Use:   "direct",
	Short: "classify reads in one fused, memory-resident pass",
	Long: `classify reads in one fused, memory-resident pass

Loads every partition of the compact hash index into RAM up front and
scans, looks up and resolves each read in a single pass, with no
intermediate shard files. The right choice once a database comfortably
fits in memory; splitr/annotate/resolve trade this for a bounded
per-partition memory footprint.

`,
	Run: func(cmd *cobra.Command, args []string) {
		threads := getFlagPositiveInt(cmd, "threads")
		runtime.GOMAXPROCS(threads)

		inputFiles := getFileList(cmd, args)
		checkFiles(inputFiles...)

		err := pipeline.Direct(pipeline.DirectOptions{
			DatabaseDir:         getFlagString(cmd, "db"),
			TaxonomyFile:        getFlagString(cmd, "taxonomy"),
			OutputDir:           getFlagString(cmd, "output-dir"),
			Compress:            getFlagBool(cmd, "compress"),
			InputFiles:          inputFiles,
			PairedEndProcessing: getFlagBool(cmd, "paired-end-processing"),
			SingleFilePairs:     getFlagBool(cmd, "single-file-pairs"),
			MinimumQuality:      getFlagInt(cmd, "minimum-quality-score"),
			ConfidenceThreshold: getFlagFloat64(cmd, "confidence-threshold"),
			MinimumHitGroups:    getFlagPositiveInt(cmd, "minimum-hit-groups"),
			NumWorkers:          threads,
		})
		checkError(err)
	},
}

func init() {
	RootCmd.AddCommand(directCmd)

	directCmd.Flags().StringP("db", "d", "", "database directory")
	directCmd.Flags().StringP("taxonomy", "t", "", "taxonomy file (taxo.k2d)")
	directCmd.Flags().StringP("output-dir", "o", "", "directory to write classification output into, default stdout")
	directCmd.Flags().BoolP("compress", "C", false, "gzip-compress each output_<p>.txt shard")
	directCmd.Flags().BoolP("paired-end-processing", "p", false, "input files are paired end")
	directCmd.Flags().BoolP("single-file-pairs", "P", false, "paired reads interleaved in one file")
	directCmd.Flags().IntP("minimum-quality-score", "Q", 0, "minimum base quality for FASTQ input (accepted; base qualities are not used)")
	directCmd.Flags().Float64P("confidence-threshold", "T", 0, "minimum fraction of a read's k-mers that must support the call")
	directCmd.Flags().IntP("minimum-hit-groups", "g", 2, "minimum distinct hit groups required for a classified call")

	directCmd.MarkFlagRequired("db")
	directCmd.MarkFlagRequired("taxonomy")
}

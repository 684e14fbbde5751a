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

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "run splitr, annotate and resolve back to back",
	Long: `run splitr, annotate and resolve back to back

A convenience wrapper around the three disk-backed classify stages:
splitr scans reads into per-partition shards, annotate resolves each
shard's minimizers against the hash index one partition at a time, and
resolve turns the results into per-read taxon calls. Annotate deletes
each sample_<N>.k2 shard once processed, and resolve deletes each
sample_file_<n>.bin / sample_id_<n>.map pair once its output is
written; the input read files are left untouched.

`,
	Run: func(cmd *cobra.Command, args []string) {
		threads := getFlagPositiveInt(cmd, "threads")
		runtime.GOMAXPROCS(threads)

		db := getFlagString(cmd, "db")
		chunkDir := getFlagString(cmd, "chunk-dir")
		inputFiles := getFileList(cmd, args)
		checkFiles(inputFiles...)

		err := pipeline.Split(pipeline.SplitOptions{
			K2dDir:              db,
			ChunkDir:            chunkDir,
			InputFiles:          inputFiles,
			PairedEndProcessing: getFlagBool(cmd, "paired-end-processing"),
			SingleFilePairs:     getFlagBool(cmd, "single-file-pairs"),
			MinimumQuality:      getFlagInt(cmd, "minimum-quality-score"),
			NumWorkers:          threads,
		})
		checkError(err)

		err = pipeline.Annotate(pipeline.AnnotateOptions{
			DatabaseDir: db,
			ChunkDir:    chunkDir,
		})
		checkError(err)

		err = pipeline.Resolve(pipeline.ResolveOptions{
			ChunkDir:            chunkDir,
			DatabaseDir:         db,
			TaxonomyFile:        getFlagString(cmd, "taxonomy"),
			ConfidenceThreshold: getFlagFloat64(cmd, "confidence-threshold"),
			MinimumHitGroups:    getFlagPositiveInt(cmd, "minimum-hit-groups"),
			KrakenOutputDir:     getFlagString(cmd, "output-dir"),
			Compress:            getFlagBool(cmd, "compress"),
			NumWorkers:          threads,
		})
		checkError(err)
	},
}

func init() {
	RootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringP("db", "d", "", "database directory")
	classifyCmd.Flags().StringP("chunk-dir", "c", "", "scratch directory for intermediate shards")
	classifyCmd.Flags().StringP("taxonomy", "t", "", "taxonomy file (taxo.k2d)")
	classifyCmd.Flags().StringP("output-dir", "o", "", "directory to write classification output into, default stdout")
	classifyCmd.Flags().BoolP("compress", "C", false, "gzip-compress each output_<p>.txt shard")
	classifyCmd.Flags().BoolP("paired-end-processing", "p", false, "input files are paired end")
	classifyCmd.Flags().BoolP("single-file-pairs", "P", false, "paired reads interleaved in one file")
	classifyCmd.Flags().IntP("minimum-quality-score", "Q", 0, "minimum base quality for FASTQ input (accepted; base qualities are not used)")
	classifyCmd.Flags().Float64P("confidence-threshold", "T", 0, "minimum fraction of a read's k-mers that must support the call")
	classifyCmd.Flags().IntP("minimum-hit-groups", "g", 2, "minimum distinct hit groups required for a classified call")

	classifyCmd.MarkFlagRequired("db")
	classifyCmd.MarkFlagRequired("chunk-dir")
	classifyCmd.MarkFlagRequired("taxonomy")
}

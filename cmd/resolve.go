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

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "turn annotated hits into per-read taxon calls",
	Long: `turn annotated hits into per-read taxon calls

Reads every input file's annotated hash hits and the matching read id
table, resolves each read's collected hits against the taxonomy,
writes one Kraken-style classification line per read, and deletes each
sample_file_<n>.bin / sample_id_<n>.map pair once its output is written.

`,
	Run: func(cmd *cobra.Command, args []string) {
		threads := getFlagPositiveInt(cmd, "threads")
		runtime.GOMAXPROCS(threads)

		err := pipeline.Resolve(pipeline.ResolveOptions{
			ChunkDir:            getFlagString(cmd, "chunk-dir"),
			DatabaseDir:         getFlagString(cmd, "db"),
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
	RootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringP("chunk-dir", "c", "", "directory holding annotate's annotated shards")
	resolveCmd.Flags().StringP("db", "d", "", "database directory")
	resolveCmd.Flags().StringP("taxonomy", "t", "", "taxonomy file (taxo.k2d)")
	resolveCmd.Flags().Float64P("confidence-threshold", "T", 0, "minimum fraction of a read's k-mers that must support the call")
	resolveCmd.Flags().IntP("minimum-hit-groups", "g", 2, "minimum distinct hit groups required for a classified call")
	resolveCmd.Flags().StringP("output-dir", "o", "", "directory to write classification output into, default stdout")
	resolveCmd.Flags().BoolP("compress", "C", false, "gzip-compress each output_<p>.txt shard")

	resolveCmd.MarkFlagRequired("chunk-dir")
	resolveCmd.MarkFlagRequired("db")
	resolveCmd.MarkFlagRequired("taxonomy")
}

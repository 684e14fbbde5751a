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
	"github.com/spf13/cobra"

	"github.com/kr2go/kr2go/pipeline"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "look splitr's minimizers up in the hash index",
	Long: `look splitr's minimizers up in the hash index

Processes every sample_<N>.k2 shard splitr produced, in order, loading
only that shard's partition of the hash index before scanning it, so
peak memory is bounded by one partition rather than the whole
database.

`,
	Run: func(cmd *cobra.Command, args []string) {
		err := pipeline.Annotate(pipeline.AnnotateOptions{
			DatabaseDir: getFlagString(cmd, "db"),
			ChunkDir:    getFlagString(cmd, "chunk-dir"),
			BatchSize:   getFlagInt(cmd, "batch-size"),
		})
		checkError(err)
	},
}

func init() {
	RootCmd.AddCommand(annotateCmd)

	annotateCmd.Flags().StringP("db", "d", "", "database directory (hash_<p>.k2d shards)")
	annotateCmd.Flags().StringP("chunk-dir", "c", "", "directory holding splitr's sample_<N>.k2 shards")
	annotateCmd.Flags().IntP("batch-size", "b", 0, "read batch size in 16-byte slot records, 0 means the default")

	annotateCmd.MarkFlagRequired("db")
	annotateCmd.MarkFlagRequired("chunk-dir")
}

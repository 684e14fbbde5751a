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

	"github.com/kr2go/kr2go/build"
)

var hashShardCmd = &cobra.Command{
	Use:   "hashshard",
	Short: "re-partition a legacy single-file hash index",
	Long: `re-partition a legacy single-file hash index

Reads an existing single-shard hash.k2d (capacity/size/value_bits
header, no partition concept) and splits it into this module's
P-partition hash_<p>.k2d layout, writing a matching hash_config.k2d.

`,
	Run: func(cmd *cobra.Command, args []string) {
		err := build.HashShard(build.HashShardOptions{
			DatabaseDir:  getFlagString(cmd, "db"),
			OutputDir:    getFlagString(cmd, "out-dir"),
			HashCapacity: getFlagPositiveInt(cmd, "hash-capacity"),
		})
		checkError(err)
	},
}

func init() {
	RootCmd.AddCommand(hashShardCmd)

	hashShardCmd.Flags().StringP("db", "d", "", "database directory containing hash.k2d")
	hashShardCmd.Flags().StringP("out-dir", "o", "", "output directory, default same as --db")
	hashShardCmd.Flags().IntP("hash-capacity", "H", 1<<28, "per-partition capacity")

	hashShardCmd.MarkFlagRequired("db")
}

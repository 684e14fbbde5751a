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

var buildDBCmd = &cobra.Command{
	Use:   "build-db",
	Short: "fold chunk-db's spill files into the final hash shards",
	Long: `fold chunk-db's spill files into the final hash shards

Reads every chunk_<p>.k2 file, merges its slots into partition p's
mmap'd hash shard using the taxonomy's LCA as the collision rule,
writes hash_<p>.k2d, updates hash_config.k2d's observed size, and
deletes the consumed chunk files.

`,
	Run: func(cmd *cobra.Command, args []string) {
		threads := getFlagPositiveInt(cmd, "threads")
		runtime.GOMAXPROCS(threads)

		size, err := build.BuildDB(build.BuildDBOptions{
			DatabaseDir: getFlagString(cmd, "db"),
		})
		checkError(err)

		fmt.Printf("build-db: %s cells populated\n", humanize.Comma(int64(size)))
	},
}

func init() {
	RootCmd.AddCommand(buildDBCmd)

	buildDBCmd.Flags().StringP("db", "d", "", "database directory (taxo.k2d, hash_config.k2d, chunk_*.k2)")
	buildDBCmd.MarkFlagRequired("db")
}

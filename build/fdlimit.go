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

package build

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// fdSoftLimit returns the process's current RLIMIT_NOFILE soft limit.
func fdSoftLimit() (uint64, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, errors.Wrap(err, "build: reading RLIMIT_NOFILE")
	}
	return rlim.Cur, nil
}

// raiseFDLimit raises RLIMIT_NOFILE's soft limit to at least want,
// capped at the hard limit — chunk-db opens one writer per partition, and
// a database with a small hash_capacity can easily need more descriptors
// than the default 1024 soft limit allows.
func raiseFDLimit(want uint64) error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return errors.Wrap(err, "build: reading RLIMIT_NOFILE")
	}
	if rlim.Cur >= want {
		return nil
	}
	newCur := want
	if newCur > rlim.Max {
		newCur = rlim.Max
	}
	rlim.Cur = newCur
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return errors.Wrap(err, "build: raising RLIMIT_NOFILE")
	}
	return nil
}

/*
Copyright (C) 2026  hlogstore authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package engine

import (
	"runtime"
	"runtime/debug"

	"github.com/jtolds/gls"
)

// workerPanic carries a worker goroutine's recovered panic value and stack
// trace back to ParallelFor's caller, mirroring storage/compute.go's
// scanError/done-channel convention: workers never panic across a
// goroutine boundary, they report, and the caller decides whether to
// re-panic.
type workerPanic struct {
	Value any
	Stack string
}

func (e workerPanic) Error() string { return "engine: worker panic" }

// ParallelFor fans n units of work out across a worker pool, each worker
// owning exactly one session for its entire lifetime (spec.md §5's "one
// session per thread" scheduling model — a goroutine worker here plays the
// role of the thread). Workers are spawned with gls.Go rather than a bare
// `go` statement, the same threadpool idiom storage/compute.go uses for its
// parallel column computation. fn must not retain sess past its call. If
// any worker panics, ParallelFor re-panics on the calling goroutine with
// the first reported workerPanic once every worker has finished.
func ParallelFor(eng *Engine, n int, workers int, fn func(sess *Session, i int)) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers == 0 {
		return
	}

	work := make(chan int, workers)
	done := make(chan error, workers)
	for w := 0; w < workers; w++ {
		gls.Go(func() {
			var reportErr error
			defer func() { done <- reportErr }()
			defer func() {
				if r := recover(); r != nil {
					reportErr = workerPanic{Value: r, Stack: string(debug.Stack())}
				}
			}()
			sess := eng.OpenSession()
			defer sess.Close()
			for i := range work {
				fn(sess, i)
			}
		})
	}
	for i := 0; i < n; i++ {
		work <- i
	}
	close(work)

	var first error
	for w := 0; w < workers; w++ {
		if err := <-done; err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		panic(first)
	}
}

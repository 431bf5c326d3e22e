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
	"github.com/launix-de/hlogstore/internal/hlog"
)

// Read implements spec.md §4.5's Read state machine.
func (s *Session) Read(ctx ReadContext, serial uint64) Status {
	e := s.eng
	key := ctx.Key()
	hash := key.Hash()

	// Re-publish this session's epoch before touching any address the
	// lookup below might return, so a concurrent page eviction or index
	// grow cannot reclaim it out from under this read (spec.md §4.1).
	s.Refresh()

	rawAddr, ok := e.index.Lookup(hash, e.keyMatcher(key))
	if !ok {
		return NotFound
	}
	a := hlog.Address(rawAddr)

	if a < e.log.Head() {
		s.pending.push(pendingOp{kind: pendingRead, hash: hash, addr: a, key: key, serial: serial, readCtx: deepCopyRead(ctx)})
		return Pending
	}

	rec := e.log.Get(a)
	if rec.Tombstone() {
		return NotFound
	}

	value := rec.ValueBytes()
	inPlace := ctx.InPlaceUpdatable()
	payload := payloadOf(value, inPlace)
	if inPlace && uint64(a) >= uint64(e.log.SafeReadOnly()) {
		gl := hlog.NewGenLock(value)
		for {
			g1 := gl.Load()
			ctx.GetAtomic(payload)
			g2 := gl.Load()
			if hlog.Generation(g1) == hlog.Generation(g2) {
				break
			}
		}
	} else {
		ctx.Get(payload)
	}
	return Ok
}

// deepCopyRead returns a ReadContext safe to hold on a session's pending
// queue past the caller's stack frame, using DeepCopy when the context
// opts in (spec.md §6: "a context marked pending-capable must supply a
// deep-copy operation").
func deepCopyRead(ctx ReadContext) ReadContext {
	if dc, ok := ctx.(DeepCopier); ok {
		if cp, ok := dc.DeepCopy().(ReadContext); ok {
			return cp
		}
	}
	return ctx
}

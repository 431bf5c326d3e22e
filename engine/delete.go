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

// Delete implements spec.md §4.5's Delete state machine: it always appends
// a zero-length tombstone record — there is no in-place delete path, since
// a tombstone must outlive whatever record it buries for Recover to see it
// during log-suffix replay. Deleting an absent key still succeeds; Delete
// never reports NotFound.
func (s *Session) Delete(ctx DeleteContext, serial uint64) Status {
	e := s.eng
	key := ctx.Key()
	hash := key.Hash()
	matcher := e.keyMatcher(key)

	for {
		// Re-publish this session's epoch before every lookup/dereference
		// pass, so a concurrent page eviction or index grow cannot reclaim
		// an address this iteration is about to read (spec.md §4.1).
		s.Refresh()

		// A tombstone is chained after whatever the index currently points
		// at, even if that address has fallen below head: appending never
		// races with the prior version sitting in cold storage, so Delete
		// has no pending-I/O branch, unlike Read/Upsert/RMW.
		rawAddr, ok := e.index.Lookup(hash, matcher)
		prev := hlog.Null
		if ok {
			prev = hlog.Address(rawAddr)
		}

		keyBytes := make([]byte, key.Size())
		key.WriteTo(keyBytes)
		addr, rec := e.reserveRecord(hash, keyBytes, 0)
		e.publish(rec, prev, true)

		if prev == hlog.Null {
			if !e.index.InsertNew(hash, uint64(addr)) {
				continue
			}
		} else if !e.index.UpdateEntry(hash, uint64(prev), uint64(addr)) {
			continue
		}
		if ok {
			e.mu.Lock()
			e.liveEntries--
			e.mu.Unlock()
		}
		return Ok
	}
}

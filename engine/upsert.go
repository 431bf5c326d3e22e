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

	"github.com/launix-de/hlogstore/internal/hlog"
)

// Upsert implements spec.md §4.5's Upsert state machine.
func (s *Session) Upsert(ctx UpsertContext, serial uint64) Status {
	e := s.eng
	key := ctx.Key()
	hash := key.Hash()
	inPlace := ctx.InPlaceUpdatable()
	matcher := e.keyMatcher(key)

	for {
		// Re-publish this session's epoch before every lookup/dereference
		// pass, so a concurrent page eviction or index grow cannot reclaim
		// an address this iteration is about to read (spec.md §4.1).
		s.Refresh()

		rawAddr, ok := e.index.Lookup(hash, matcher)
		if !ok {
			if _, linked := e.appendUpsert(hash, key, ctx, inPlace, hlog.Null); !linked {
				continue // another session inserted this key first
			}
			return Ok
		}

		a := hlog.Address(rawAddr)
		if a < e.log.Head() {
			s.pending.push(pendingOp{kind: pendingUpsert, hash: hash, addr: a, key: key, serial: serial, upsertCtx: deepCopyUpsert(ctx)})
			return Pending
		}

		rec := e.log.Get(a)
		if uint64(a) >= uint64(e.log.ReadOnly()) && inPlace && !rec.Tombstone() {
			value := rec.ValueBytes()
			gl := hlog.NewGenLock(value)
			switch gl.TryLock() {
			case hlog.Replaced:
				continue // a newer record already replaced this slot
			case hlog.Busy:
				runtime.Gosched()
				continue
			case hlog.Acquired:
				newSize := ctx.ValueSize()
				curSize := len(value) - 8
				if newSize <= curSize {
					ctx.PutAtomic(value[8 : 8+newSize])
					gl.Unlock(false)
					return Ok
				}
				gl.Unlock(true) // marks this slot replaced; readers retry
			}
		}

		if _, linked := e.appendUpsert(hash, key, ctx, inPlace, a); !linked {
			continue // bucket entry moved under us; retry from lookup
		}
		return Ok
	}
}

// appendUpsert appends one new record for key chained after prev (Null for
// a first insert) and links it into the hash index, returning false if a
// concurrent writer won the race to link first.
func (e *Engine) appendUpsert(hash uint64, key Key, ctx UpsertContext, inPlace bool, prev hlog.Address) (hlog.Address, bool) {
	keyBytes := make([]byte, key.Size())
	key.WriteTo(keyBytes)
	valSize := ctx.ValueSize()
	if inPlace {
		valSize += 8 // generation-lock word ahead of the payload
	}
	addr, rec := e.reserveRecord(hash, keyBytes, valSize)
	value := rec.ValueBytes()
	if inPlace {
		zeroGenLock(value)
	}
	ctx.Put(payloadOf(value, inPlace))
	e.publish(rec, prev, false)

	if prev == hlog.Null {
		if !e.index.InsertNew(hash, uint64(addr)) {
			return addr, false
		}
	} else if !e.index.UpdateEntry(hash, uint64(prev), uint64(addr)) {
		return addr, false
	}
	return addr, true
}

func deepCopyUpsert(ctx UpsertContext) UpsertContext {
	if dc, ok := ctx.(DeepCopier); ok {
		if cp, ok := dc.DeepCopy().(UpsertContext); ok {
			return cp
		}
	}
	return ctx
}

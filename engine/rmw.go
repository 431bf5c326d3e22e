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

// RMW implements spec.md §4.5's read-modify-write state machine: a miss
// seeds an initial value via RmwInitial, a hit at or above the atomic
// threshold mutates under the generation lock via RmwAtomic, and every
// other hit copies old into a freshly sized record via RmwCopy.
func (s *Session) RMW(ctx RMWContext, serial uint64) Status {
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
			if _, linked := e.appendRmwInitial(hash, key, ctx, inPlace, hlog.Null); !linked {
				continue
			}
			return Ok
		}

		a := hlog.Address(rawAddr)
		if a < e.log.Head() {
			s.pending.push(pendingOp{kind: pendingRMW, hash: hash, addr: a, key: key, serial: serial, rmwCtx: deepCopyRMW(ctx)})
			return Pending
		}

		rec := e.log.Get(a)
		if uint64(a) >= uint64(e.log.ReadOnly()) && inPlace && !rec.Tombstone() {
			value := rec.ValueBytes()
			gl := hlog.NewGenLock(value)
			switch gl.TryLock() {
			case hlog.Replaced:
				continue
			case hlog.Busy:
				runtime.Gosched()
				continue
			case hlog.Acquired:
				if ctx.RmwAtomic(value[8:]) {
					gl.Unlock(false)
					return Ok
				}
				gl.Unlock(true) // RmwAtomic declined (e.g. would grow); fall through to copy
			}
		}

		var old []byte
		if !rec.Tombstone() {
			old = payloadOf(rec.ValueBytes(), inPlace)
		}
		if _, linked := e.appendRmwCopy(hash, key, ctx, old, inPlace, a); !linked {
			continue
		}
		return Ok
	}
}

// appendRmwInitial seeds a brand-new record for a key RMW has never seen,
// per spec.md §4.5's "no prior entry" branch.
func (e *Engine) appendRmwInitial(hash uint64, key Key, ctx RMWContext, inPlace bool, prev hlog.Address) (hlog.Address, bool) {
	keyBytes := make([]byte, key.Size())
	key.WriteTo(keyBytes)
	valSize := ctx.InitialValueSize()
	if inPlace {
		valSize += 8 // generation-lock word ahead of the payload
	}
	addr, rec := e.reserveRecord(hash, keyBytes, valSize)
	value := rec.ValueBytes()
	if inPlace {
		zeroGenLock(value)
	}
	ctx.RmwInitial(payloadOf(value, inPlace))
	e.publish(rec, prev, false)
	if !e.index.InsertNew(hash, uint64(addr)) {
		return addr, false
	}
	return addr, true
}

// appendRmwCopy appends a record combining old with ctx's update, chained
// after prev, and CASes it into the bucket in place of prev.
func (e *Engine) appendRmwCopy(hash uint64, key Key, ctx RMWContext, old []byte, inPlace bool, prev hlog.Address) (hlog.Address, bool) {
	keyBytes := make([]byte, key.Size())
	key.WriteTo(keyBytes)
	valSize := ctx.ValueSizeForUpdate(old)
	if inPlace {
		valSize += 8 // generation-lock word ahead of the payload
	}
	addr, rec := e.reserveRecord(hash, keyBytes, valSize)
	value := rec.ValueBytes()
	if inPlace {
		zeroGenLock(value)
	}
	ctx.RmwCopy(old, payloadOf(value, inPlace))
	e.publish(rec, prev, false)
	if !e.index.UpdateEntry(hash, uint64(prev), uint64(addr)) {
		return addr, false
	}
	return addr, true
}

func deepCopyRMW(ctx RMWContext) RMWContext {
	if dc, ok := ctx.(DeepCopier); ok {
		if cp, ok := dc.DeepCopy().(RMWContext); ok {
			return cp
		}
	}
	return ctx
}

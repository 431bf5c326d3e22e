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
	"fmt"

	"github.com/launix-de/hlogstore/internal/hlog"
)

type pendingKind int

const (
	pendingRead pendingKind = iota
	pendingUpsert
	pendingRMW
)

// pendingOp is one deep-copied context waiting for its address to page in
// from the device. Per spec.md §4.6, the context supplied here is always
// the result of DeepCopy, never the caller's original context, so the
// caller's stack/buffers are free to go away while this sits queued.
type pendingOp struct {
	kind pendingKind
	hash uint64
	addr hlog.Address // the address observed below head at enqueue time
	key  Key
	serial uint64

	readCtx   ReadContext
	upsertCtx UpsertContext
	rmwCtx    RMWContext
}

// pendingQueue is a session-owned FIFO: exactly one goroutine (the session's
// owner) ever touches it, so no lock is needed, mirroring spec.md §5's
// "no cross-session ordering" session-private design.
type pendingQueue struct {
	items []pendingOp
}

func newPendingQueue() *pendingQueue { return &pendingQueue{} }

func (q *pendingQueue) push(op pendingOp) { q.items = append(q.items, op) }

func (q *pendingQueue) empty() bool { return len(q.items) == 0 }

// retryHead attempts to resolve the item at the front of the queue. It
// returns true if the queue made progress (the head resolved, successfully
// or not, and was popped), false if the head is still not resolvable.
func (q *pendingQueue) retryHead(s *Session) bool {
	if len(q.items) == 0 {
		return true
	}
	op := q.items[0]
	if !s.eng.resolvePending(op) {
		return false
	}
	q.items = q.items[1:]
	return true
}

// resolvePending fetches the archived page holding op.addr from the device
// and replays op against the record found there. It returns false if the
// device read fails (modeled as a one-shot synchronous read that may fail
// transiently) and true once op has been handled. Every read error is
// treated as "not yet available": the op stays queued and is retried, so a
// permanent device error is never reported and never dropped.
func (e *Engine) resolvePending(op pendingOp) bool {
	pageIdx := op.addr.Page(e.pageBits())
	data, err := e.device.ReadLogSegment(e.shard, pageIdx)
	if err != nil {
		// page not yet paged in (or no device configured); caller retries
		// on a later Refresh/CompletePending call.
		return false
	}
	rec := hlog.NewRecord(data, int(op.addr.Offset(e.pageBits())))

	switch op.kind {
	case pendingRead:
		if rec.Tombstone() {
			return true // resolves to NotFound; nothing further to deliver
		}
		op.readCtx.Get(payloadOf(rec.ValueBytes(), op.readCtx.InPlaceUpdatable()))
		return true

	case pendingUpsert:
		key := make([]byte, op.key.Size())
		op.key.WriteTo(key)
		inPlace := op.upsertCtx.InPlaceUpdatable()
		valSize := op.upsertCtx.ValueSize()
		if inPlace {
			valSize += 8 // generation-lock word ahead of the payload
		}
		newAddr, newRec := e.reserveRecord(op.hash, key, valSize)
		value := newRec.ValueBytes()
		if inPlace {
			zeroGenLock(value)
		}
		op.upsertCtx.Put(payloadOf(value, inPlace))
		e.publish(newRec, op.addr, false)
		if !e.index.UpdateEntry(op.hash, uint64(op.addr), uint64(newAddr)) {
			fmt.Println("engine: pending upsert lost a concurrent bucket update, key now chained past", op.addr)
		}
		return true

	case pendingRMW:
		inPlace := op.rmwCtx.InPlaceUpdatable()
		var old []byte
		if !rec.Tombstone() {
			old = payloadOf(rec.ValueBytes(), inPlace)
		}
		valSize := op.rmwCtx.ValueSizeForUpdate(old)
		if inPlace {
			valSize += 8 // generation-lock word ahead of the payload
		}
		key := make([]byte, op.key.Size())
		op.key.WriteTo(key)
		newAddr, newRec := e.reserveRecord(op.hash, key, valSize)
		newValue := newRec.ValueBytes()
		if inPlace {
			zeroGenLock(newValue)
		}
		op.rmwCtx.RmwCopy(old, payloadOf(newValue, inPlace))
		e.publish(newRec, op.addr, false)
		if !e.index.UpdateEntry(op.hash, uint64(op.addr), uint64(newAddr)) {
			fmt.Println("engine: pending rmw lost a concurrent bucket update, key now chained past", op.addr)
		}
		return true
	}
	return true
}

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

package hlog

import (
	"sync/atomic"
	"unsafe"
)

// GenLockResult is the outcome of TryLock.
type GenLockResult int

const (
	Acquired GenLockResult = iota
	Replaced
	Busy
)

// generation-lock word bit layout: gen_number:62 | locked:1 | replaced:1
const (
	bitLocked   = 62
	bitReplaced = 63
	genMask     = (uint64(1) << bitLocked) - 1
)

// GenLock views the first 8 bytes of an in-place-mutable value as the
// generation lock word described in spec.md §4.3.
type GenLock struct {
	buf []byte
}

// NewGenLock wraps the generation lock embedded at the start of value.
func NewGenLock(value []byte) GenLock {
	return GenLock{buf: value[:8:8]}
}

func (g GenLock) ptr() *uint64 {
	return (*uint64)(unsafe.Pointer(&g.buf[0]))
}

// Load reads the current word.
func (g GenLock) Load() uint64 { return atomic.LoadUint64(g.ptr()) }

// Generation extracts the generation counter from a loaded word.
func Generation(word uint64) uint64 { return word & genMask }

// ReplacedBit reports whether the replaced bit is set in a loaded word.
func ReplacedBit(word uint64) bool { return word&(1<<bitReplaced) != 0 }

func locked(word uint64) bool { return word&(1<<bitLocked) != 0 }

// TryLock implements spec.md §4.3's try_lock: acquires the lock iff the
// word currently has locked=0, replaced=0. If replaced=1 is already set it
// reports Replaced so the caller retries the whole operation against a
// fresh record.
func (g GenLock) TryLock() GenLockResult {
	for {
		old := g.Load()
		if ReplacedBit(old) {
			return Replaced
		}
		if locked(old) {
			return Busy
		}
		new_ := old | (1 << bitLocked)
		if atomic.CompareAndSwapUint64(g.ptr(), old, new_) {
			return Acquired
		}
	}
}

// Unlock clears the locked bit, increments the generation counter, and –
// if grew is true – sets the replaced bit so concurrent readers retry
// against the new record spliced in after this slot was marked replaced.
func (g GenLock) Unlock(grew bool) {
	for {
		old := g.Load()
		gen := (Generation(old) + 1) & genMask
		new_ := gen
		if grew {
			new_ |= 1 << bitReplaced
		}
		if atomic.CompareAndSwapUint64(g.ptr(), old, new_) {
			return
		}
	}
}

// ReadStable implements the reader protocol of spec.md §4.3: copy the value
// bytes, then confirm the generation counter did not change across the
// copy. dst must be at least len(value) bytes. Returns false (torn/retry)
// if the generation moved.
func ReadStable(value []byte, dst []byte) bool {
	g := NewGenLock(value)
	g1 := g.Load()
	copy(dst, value)
	g2 := g.Load()
	return Generation(g1) == Generation(g2)
}

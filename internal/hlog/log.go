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
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/launix-de/hlogstore/internal/epoch"
)

// PageWriter is the narrow device surface the allocator needs to flush a
// page that is about to leave the resident window. It is satisfied by
// internal/device.Device's log-segment methods; kept as a tiny local
// interface here so hlog never imports the device package (spec.md (b)
// treats the device as an external collaborator named by interface only).
type PageWriter interface {
	FlushPage(shard string, pageIndex uint64, data []byte)
}

// Log is the hybrid-log allocator (C2): an append-only byte log, partitioned
// into fixed-size resident pages held in a circular buffer, with the
// address anchors described in spec.md §3.
type Log struct {
	shard    string // device key namespace this log flushes under
	pageBits uint
	pageSize uint64
	numPages uint64
	pages    []*page

	begin         atomic.Uint64
	head          atomic.Uint64
	safeReadOnly  atomic.Uint64
	readOnly      atomic.Uint64
	tail          atomic.Uint64

	epoch  *epoch.Manager
	device PageWriter // may be nil (pure in-memory log)
}

// Config bundles the allocator's fixed geometry.
type Config struct {
	Shard      string
	PageBits   uint   // log2(page size), e.g. 25 for 32MiB pages
	NumPages   uint64 // resident window, typical 16
	Epoch      *epoch.Manager
	Device     PageWriter
}

// NewLog constructs a Log with begin/head/safe_read_only/read_only at
// address 0 and tail at 8: address 0 is reserved as the null sentinel, so
// the allocator burns the first 8 bytes of the log and the first
// allocation lands at address 8.
func NewLog(cfg Config) *Log {
	if cfg.NumPages == 0 {
		cfg.NumPages = 16
	}
	l := &Log{
		shard:    cfg.Shard,
		pageBits: cfg.PageBits,
		pageSize: uint64(1) << cfg.PageBits,
		numPages: cfg.NumPages,
		pages:    make([]*page, cfg.NumPages),
		epoch:    cfg.Epoch,
		device:   cfg.Device,
	}
	for i := range l.pages {
		l.pages[i] = newPage(l.pageSize)
	}
	l.pages[0].occupant.Store(0)
	// burn the first 8 bytes so address 0 stays the null sentinel
	l.tail.Store(8)
	l.head.Store(0)
	l.readOnly.Store(0)
	l.safeReadOnly.Store(0)
	l.begin.Store(0)
	return l
}

func (l *Log) slotFor(pageIdx uint64) *page { return l.pages[pageIdx%l.numPages] }

// Begin, Head, SafeReadOnly, ReadOnly, Tail return the current anchors.
func (l *Log) Begin() Address        { return Address(l.begin.Load()) }
func (l *Log) Head() Address         { return Address(l.head.Load()) }
func (l *Log) SafeReadOnly() Address { return Address(l.safeReadOnly.Load()) }
func (l *Log) ReadOnly() Address     { return Address(l.readOnly.Load()) }
func (l *Log) Tail() Address         { return Address(l.tail.Load()) }

// Capacity returns the total byte capacity of the resident window.
func (l *Log) Capacity() uint64 { return l.pageSize * l.numPages }

// RestoreAnchors reseeds a freshly constructed Log's anchors after Recover
// rebuilds the hash index from a checkpoint. The recovered index holds
// addresses from the checkpointed process, but this Log's resident pages
// start zeroed and were never hydrated from the archived segments, so every
// recovered address must be treated as already evicted: resumeFrom is
// rounded up to the next page boundary and begin/head/safeReadOnly/readOnly/
// tail are all set to it. That makes every recovered address compare below
// the new head, so a later Read/Upsert/RMW routes through the pending/
// device path instead of dereferencing a zeroed resident page, and new
// appends resume on a page index this process has never touched, so a
// future eviction never flushes over a genuine archived segment.
func (l *Log) RestoreAnchors(resumeFrom Address) {
	aligned := (uint64(resumeFrom) + l.pageSize - 1) &^ (l.pageSize - 1)
	l.begin.Store(aligned)
	l.head.Store(aligned)
	l.safeReadOnly.Store(aligned)
	l.readOnly.Store(aligned)
	l.tail.Store(aligned)
}

// PageBits returns log2(page size), for callers that must translate an
// address into a device segment index themselves (e.g. resolving a pending
// I/O for an address that has fallen below head).
func (l *Log) PageBits() uint { return l.pageBits }

// Shard returns the device key namespace this log flushes under.
func (l *Log) Shard() string { return l.shard }

// Mutable reports whether the record at addr may be updated in place
// (spec.md §4.2's mutability rule: a >= read_only).
func (l *Log) Mutable(a Address) bool { return uint64(a) >= l.readOnly.Load() }

// Allocate reserves size bytes (rounded up to 8) and returns the address of
// the first byte. It spins while the next page slot is still occupied by a
// page that has not yet been evicted (i.e. the caller is running far enough
// ahead of head that the resident window is full); the spin is bounded by
// the same epoch-driven head advance that GetPendingSize/Retry describes in
// spec.md §5 ("the only blocking primitive is the thread yield used while
// spinning on a contended generation lock" — here it's the analogous
// capacity-contended spin on page residency).
func (l *Log) Allocate(size int) Address {
	size8 := uint64(Round8(size))
	if size8 > l.pageSize {
		panic("hlog: record larger than page size")
	}
	for {
		old := l.tail.Load()
		offsetInPage := old & (l.pageSize - 1)
		if offsetInPage+size8 > l.pageSize {
			nextPageStart := (old &^ (l.pageSize - 1)) + l.pageSize
			closedPage := old >> l.pageBits
			nextPageIdx := nextPageStart >> l.pageBits
			if !l.pageEvicted(nextPageIdx) {
				runtime.Gosched()
				continue
			}
			if l.tail.CompareAndSwap(old, nextPageStart) {
				l.slotFor(nextPageIdx).occupant.Store(nextPageIdx)
				l.onPageClosed(closedPage)
			}
			continue
		}
		if l.tail.CompareAndSwap(old, old+size8) {
			return Address(old)
		}
	}
}

// pageEvicted reports whether the slot that pageIdx would occupy is free to
// take it, i.e. either never used or its current occupant has already
// fallen below head.
func (l *Log) pageEvicted(pageIdx uint64) bool {
	if pageIdx < l.numPages {
		return true // slot never occupied by an earlier page
	}
	occ := l.slotFor(pageIdx).occupant.Load()
	if occ == pageIdx {
		return true // already ours (re-entrant close)
	}
	return (occ+1)<<l.pageBits <= l.head.Load()
}

// Get returns the record view at addr. The caller must hold an epoch guard
// that was protected no later than the observation of addr, and addr must
// be >= head.
func (l *Log) Get(addr Address) Record {
	pageIdx := addr.Page(l.pageBits)
	off := int(addr.Offset(l.pageBits))
	return NewRecord(l.slotFor(pageIdx).buf, off)
}

// Reserve allocates a record of keyLen+valueLen and returns both the
// address and a Record view ready for InitNew.
func (l *Log) Reserve(keyLen, valueLen int) (Address, Record) {
	size := RecordSize(keyLen, valueLen)
	addr := l.Allocate(size)
	return addr, l.Get(addr)
}

// onPageClosed schedules the anchor-advance pipeline for the page that was
// just closed (spec.md §4.2's "anchor policy"): read_only advances to cover
// it once scheduled, then safe_read_only once every session has refreshed
// past that, then head once the page has been flushed to the device.
func (l *Log) onPageClosed(closedPageIdx uint64) {
	newReadOnly := (closedPageIdx + 1) << l.pageBits
	l.epoch.BumpAndWait(func() {
		l.advanceMonotonic(&l.readOnly, newReadOnly)
		fmt.Println("hlog: read_only advanced to", newReadOnly)
		l.epoch.BumpAndWait(func() {
			l.advanceMonotonic(&l.safeReadOnly, newReadOnly)
			l.flushAndAdvanceHead(closedPageIdx, newReadOnly)
		})
	})
}

func (l *Log) flushAndAdvanceHead(closedPageIdx uint64, newReadOnly uint64) {
	if l.device != nil {
		l.device.FlushPage(l.shard, closedPageIdx, l.slotFor(closedPageIdx).buf)
	}
	l.advanceMonotonic(&l.head, newReadOnly)
	fmt.Println("hlog: head advanced to", newReadOnly)
}

// advanceMonotonic CASes dst forward to at least newVal, never backward.
func (l *Log) advanceMonotonic(dst *atomic.Uint64, newVal uint64) bool {
	for {
		old := dst.Load()
		if old >= newVal {
			return false
		}
		if dst.CompareAndSwap(old, newVal) {
			return true
		}
	}
}

// AdvanceBegin moves begin forward, e.g. after a truncating checkpoint.
func (l *Log) AdvanceBegin(newVal Address) {
	l.advanceMonotonic(&l.begin, uint64(newVal))
}

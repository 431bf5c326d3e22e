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

package hindex

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// table is one generation of the bucket array. Grow swaps the whole
// pointer, the same atomic-pointer-swap idiom NonLockingReadMap uses to
// publish a new backing slice: reads never block, and grows are serialized
// by growMu, each publishing its new generation with one atomic store.
type table struct {
	buckets []bucket
}

// Index is the hash index (C4): a growable array of buckets mapping a key
// hash to a chain of candidate log addresses.
type Index struct {
	gen      atomic.Pointer[table]
	overflow *overflowPool

	growMu sync.Mutex
}

// New builds an Index with numBuckets buckets (must be a power of two).
func New(numBuckets uint64) *Index {
	if numBuckets == 0 || numBuckets&(numBuckets-1) != 0 {
		panic("hindex: bucket count must be a power of two")
	}
	t := &table{buckets: make([]bucket, numBuckets)}
	idx := &Index{overflow: &overflowPool{}}
	idx.gen.Store(t)
	return idx
}

// NumBuckets returns the current bucket count.
func (idx *Index) NumBuckets() uint64 {
	return uint64(len(idx.gen.Load().buckets))
}

// candidates walks the bucket selected by hash and returns every slot whose
// tag matches, main entries first then overflow chain, in insertion order.
func (idx *Index) candidates(hash uint64) []candidate {
	t := idx.gen.Load()
	bi := BucketIndex(hash, uint64(len(t.buckets)))
	tag := Tag(hash)
	var out []candidate
	b := &t.buckets[bi]
	for {
		for i := 0; i < numEntries; i++ {
			w := b.slots[i].Load()
			if entryEmpty(w) {
				continue
			}
			if entryTag(w) == tag {
				out = append(out, candidate{addr: entryAddr(w), b: b, slot: i})
			}
		}
		ovf := b.slots[overflowSlot].Load()
		if ovf == 0 {
			break
		}
		b = idx.overflow.get(ovf)
	}
	return out
}

// Lookup finds the address of the key whose record satisfies keyMatches,
// among all tag-matching candidates in the target bucket. It returns
// (address, true) on a hit, or (0, false) on a miss.
func (idx *Index) Lookup(hash uint64, keyMatches func(addr uint64) bool) (uint64, bool) {
	for _, c := range idx.candidates(hash) {
		if keyMatches(c.addr) {
			return c.addr, true
		}
	}
	return 0, false
}

// InsertNew links a brand-new key's first record into its bucket. It must
// only be called once Lookup has confirmed the key has no existing entry;
// callers still CAS against an observed-empty slot to protect against a
// concurrent first-insert race, retrying by returning false.
func (idx *Index) InsertNew(hash uint64, addr uint64) bool {
	t := idx.gen.Load()
	bi := BucketIndex(hash, uint64(len(t.buckets)))
	tag := Tag(hash)
	b := &t.buckets[bi]
	for {
		for i := 0; i < numEntries; i++ {
			if b.slots[i].CompareAndSwap(0, packEntry(tag, addr, false)) {
				return true
			}
		}
		ovf := b.slots[overflowSlot].Load()
		if ovf == 0 {
			// allocate a fresh overflow bucket and chain it in
			newIdx, newBucket := idx.overflow.alloc()
			if newBucket.slots[0].CompareAndSwap(0, packEntry(tag, addr, false)) {
				if b.slots[overflowSlot].CompareAndSwap(0, newIdx) {
					return true
				}
				// someone beat us to linking an overflow bucket; the one we
				// built is simply abandoned (never referenced, so harmless)
				// and we retry against whichever overflow got linked.
			}
			ovf = b.slots[overflowSlot].Load()
			if ovf == 0 {
				continue
			}
		}
		b = idx.overflow.get(ovf)
	}
}

// UpdateEntry CASes the slot that currently holds (tag, oldAddr) to
// (tag, newAddr). Returns false if no such slot is found (the caller must
// retry the whole operation from Lookup, per spec.md §4.5).
func (idx *Index) UpdateEntry(hash uint64, oldAddr, newAddr uint64) bool {
	tag := Tag(hash)
	for _, c := range idx.candidates(hash) {
		if c.addr != oldAddr {
			continue
		}
		if c.b.slots[c.slot].CompareAndSwap(packEntry(tag, oldAddr, false), packEntry(tag, newAddr, false)) {
			return true
		}
		return false
	}
	return false
}

// ForEach calls fn once for every live bucket entry's address, walking the
// main table and every overflow chain. The checkpoint path uses this to
// snapshot the index as a flat address list: recover re-derives each
// entry's hash from the record itself (internal/hlog's stored hash word)
// rather than persisting hash/tag alongside the address.
func (idx *Index) ForEach(fn func(addr uint64)) {
	t := idx.gen.Load()
	for bi := range t.buckets {
		b := &t.buckets[bi]
		for {
			for i := 0; i < numEntries; i++ {
				w := b.slots[i].Load()
				if entryEmpty(w) {
					continue
				}
				fn(entryAddr(w))
			}
			ovf := b.slots[overflowSlot].Load()
			if ovf == 0 {
				break
			}
			b = idx.overflow.get(ovf)
		}
	}
}

// Grow doubles the bucket table, rehashing every live entry via rehash
// (supplied by the caller, since only the caller knows how to re-derive a
// key's hash from a stored address). It runs synchronously: spec.md §4.4
// describes cooperative per-operation-thread rehashing, which this
// simplifies to a single stop-the-world pass performed by whichever thread
// calls Grow, coordinated by the engine's epoch bump so no reader is mid
// lookup against a bucket being rehashed (see DESIGN.md Open Questions).
func (idx *Index) Grow(rehash func(addr uint64) (hash uint64, alive bool)) {
	idx.growMu.Lock()
	defer idx.growMu.Unlock()
	old := idx.gen.Load()
	newBuckets := make([]bucket, len(old.buckets)*2)
	newTable := &table{buckets: newBuckets}
	newIdx := &Index{overflow: &overflowPool{}}
	newIdx.gen.Store(newTable)

	for bi := range old.buckets {
		b := &old.buckets[bi]
		for {
			for i := 0; i < numEntries; i++ {
				w := b.slots[i].Load()
				if entryEmpty(w) {
					continue
				}
				addr := entryAddr(w)
				hash, alive := rehash(addr)
				if !alive {
					continue
				}
				newIdx.InsertNew(hash, addr)
			}
			ovf := b.slots[overflowSlot].Load()
			if ovf == 0 {
				break
			}
			b = idx.overflow.get(ovf)
		}
	}

	idx.gen.Store(newTable)
	idx.overflow = newIdx.overflow
	fmt.Println("hindex: grew to", len(newBuckets), "buckets")
}

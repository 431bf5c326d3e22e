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

import "testing"

func TestInsertAndLookup(t *testing.T) {
	idx := New(16)
	hash := uint64(123)
	if !idx.InsertNew(hash, 1000) {
		t.Fatalf("expected InsertNew to succeed on an empty bucket")
	}
	addr, ok := idx.Lookup(hash, func(a uint64) bool { return a == 1000 })
	if !ok || addr != 1000 {
		t.Fatalf("expected lookup hit at 1000, got (%d, %v)", addr, ok)
	}
}

func TestLookupMissReturnsFalse(t *testing.T) {
	idx := New(16)
	_, ok := idx.Lookup(99, func(uint64) bool { return true })
	if ok {
		t.Fatalf("expected miss on empty index")
	}
}

func TestUpdateEntryRelinksAddress(t *testing.T) {
	idx := New(16)
	hash := uint64(7)
	idx.InsertNew(hash, 10)
	if !idx.UpdateEntry(hash, 10, 20) {
		t.Fatalf("expected UpdateEntry to succeed")
	}
	addr, ok := idx.Lookup(hash, func(a uint64) bool { return a == 20 })
	if !ok || addr != 20 {
		t.Fatalf("expected lookup hit at 20 after update, got (%d, %v)", addr, ok)
	}
	if _, ok := idx.Lookup(hash, func(a uint64) bool { return a == 10 }); ok {
		t.Fatalf("stale address 10 should no longer match")
	}
}

func TestUpdateEntryFailsWhenAddressNotFound(t *testing.T) {
	idx := New(16)
	if idx.UpdateEntry(5, 111, 222) {
		t.Fatalf("expected UpdateEntry to fail against a bucket with no matching address")
	}
}

func TestOverflowChainOnBucketFull(t *testing.T) {
	idx := New(1) // force every key into the same bucket
	hash := uint64(1)
	for i := 0; i < numEntries+3; i++ {
		if !idx.InsertNew(hash+uint64(i)<<20, uint64(1000+i)) {
			t.Fatalf("insert %d should succeed via overflow chaining", i)
		}
	}
	for i := 0; i < numEntries+3; i++ {
		want := uint64(1000 + i)
		if _, ok := idx.Lookup(hash+uint64(i)<<20, func(a uint64) bool { return a == want }); !ok {
			t.Fatalf("expected to find overflowed entry %d", i)
		}
	}
}

func TestGrowPreservesLiveEntriesAndDropsDead(t *testing.T) {
	idx := New(4)
	idx.InsertNew(1, 100)
	idx.InsertNew(2, 200)
	idx.InsertNew(3, 300)

	idx.Grow(func(addr uint64) (uint64, bool) {
		if addr == 200 {
			return 0, false // simulate a reclaimed/invalidated record
		}
		// recompute hash identically to how it was inserted above
		switch addr {
		case 100:
			return 1, true
		case 300:
			return 3, true
		}
		return 0, false
	})

	if idx.NumBuckets() != 8 {
		t.Fatalf("expected bucket count to double to 8, got %d", idx.NumBuckets())
	}
	if _, ok := idx.Lookup(1, func(a uint64) bool { return a == 100 }); !ok {
		t.Fatalf("expected addr 100 to survive grow")
	}
	if _, ok := idx.Lookup(3, func(a uint64) bool { return a == 300 }); !ok {
		t.Fatalf("expected addr 300 to survive grow")
	}
	if _, ok := idx.Lookup(2, func(a uint64) bool { return a == 200 }); ok {
		t.Fatalf("expected addr 200 to have been dropped by rehash")
	}
}

func TestForEachVisitsEveryLiveEntry(t *testing.T) {
	idx := New(4)
	want := map[uint64]bool{100: true, 200: true, 300: true}
	idx.InsertNew(1, 100)
	idx.InsertNew(2, 200)
	idx.InsertNew(3, 300)

	got := map[uint64]bool{}
	idx.ForEach(func(addr uint64) { got[addr] = true })

	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for addr := range want {
		if !got[addr] {
			t.Fatalf("ForEach missed address %d", addr)
		}
	}
}

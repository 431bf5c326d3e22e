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
	"bytes"
	"testing"

	"github.com/launix-de/hlogstore/internal/epoch"
)

func newTestLog(t *testing.T, pageBits uint, numPages uint64) *Log {
	t.Helper()
	em := epoch.NewManager()
	return NewLog(Config{Shard: "test", PageBits: pageBits, NumPages: numPages, Epoch: em})
}

func TestReserveAndGetRoundTrip(t *testing.T) {
	l := newTestLog(t, 12, 4) // 4KiB pages
	key := []byte("hello")
	addr, rec := l.Reserve(len(key), 5)
	rec.InitNew(42, key, 5)
	copy(rec.ValueBytes(), []byte("world"))
	rec.StoreHeader(MakeHeader(Null, false))

	got := l.Get(addr)
	if !bytes.Equal(got.KeyBytes(), key) {
		t.Fatalf("key mismatch: got %q", got.KeyBytes())
	}
	if !bytes.Equal(got.ValueBytes(), []byte("world")) {
		t.Fatalf("value mismatch: got %q", got.ValueBytes())
	}
	if got.Hash() != 42 {
		t.Fatalf("hash mismatch: got %d", got.Hash())
	}
	if got.Tombstone() || got.Invalid() {
		t.Fatalf("fresh record should not be tombstone/invalid")
	}
}

func TestRecordChaining(t *testing.T) {
	l := newTestLog(t, 12, 4)
	addr1, rec1 := l.Reserve(1, 0)
	rec1.InitNew(1, []byte("a"), 0)
	rec1.StoreHeader(MakeHeader(Null, false))

	_, rec2 := l.Reserve(1, 0)
	rec2.InitNew(1, []byte("a"), 0)
	rec2.StoreHeader(MakeHeader(addr1, false))

	if rec2.PreviousAddress() != addr1 {
		t.Fatalf("expected chain to addr1 %d, got %d", addr1, rec2.PreviousAddress())
	}
}

func TestTombstoneMarksDeletion(t *testing.T) {
	l := newTestLog(t, 12, 4)
	_, rec := l.Reserve(1, 0)
	rec.InitNew(1, []byte("x"), 0)
	rec.StoreHeader(MakeHeader(Null, true))
	if !rec.Tombstone() {
		t.Fatalf("expected tombstone bit set")
	}
}

func TestAllocateAdvancesPastPageBoundary(t *testing.T) {
	// 64-byte pages, 2 resident: forces at least one page rollover for a
	// sequence of small records.
	l := newTestLog(t, 6, 2)
	var last Address
	for i := 0; i < 20; i++ {
		addr, rec := l.Reserve(1, 0)
		rec.InitNew(uint64(i), []byte("k"), 0)
		rec.StoreHeader(MakeHeader(last, false))
		last = addr
	}
	if l.Tail() <= Address(l.Capacity()/2) {
		t.Fatalf("expected tail to have advanced across at least one page boundary")
	}
}

func TestMutableReflectsReadOnlyAnchor(t *testing.T) {
	l := newTestLog(t, 12, 4)
	addr, _ := l.Reserve(1, 0)
	if !l.Mutable(addr) {
		t.Fatalf("freshly allocated address should be mutable (>= read_only == 0)")
	}
}

func TestRecordSizeRoundsToEightBytes(t *testing.T) {
	if got := RecordSize(3, 5); got != preludeSize+8+8 {
		t.Fatalf("expected %d, got %d", preludeSize+8+8, got)
	}
	if got := RecordSize(8, 8); got != preludeSize+8+8 {
		t.Fatalf("expected %d, got %d", preludeSize+8+8, got)
	}
}

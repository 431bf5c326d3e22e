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

package device

import (
	"bytes"
	"testing"
)

func TestFileIndexImageRoundTrip(t *testing.T) {
	f := NewFile(t.TempDir())
	data := []byte("index bytes")
	if err := f.WriteIndexImage("tok1", data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := f.ReadIndexImage("tok1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestFileReadMissingReturnsErrNotFound(t *testing.T) {
	f := NewFile(t.TempDir())
	if _, err := f.ReadIndexImage("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.ReadLogSegment("shard", 0); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileListLogSegmentsOrdersAscending(t *testing.T) {
	f := NewFile(t.TempDir())
	for _, idx := range []uint64{5, 1, 3} {
		if err := f.WriteLogSegment("shardA", idx, []byte{byte(idx)}); err != nil {
			t.Fatalf("write segment %d: %v", idx, err)
		}
	}
	segs, err := f.ListLogSegments("shardA")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []uint64{1, 3, 5}
	if len(segs) != len(want) {
		t.Fatalf("got %v, want %v", segs, want)
	}
	for i, v := range want {
		if segs[i] != v {
			t.Fatalf("got %v, want %v", segs, want)
		}
	}
}

func TestFileRemoveShardDeletesEverything(t *testing.T) {
	f := NewFile(t.TempDir())
	f.WriteLogSegment("s", 0, []byte("a"))
	f.WriteLogSegment("s", 1, []byte("b"))
	if err := f.RemoveShard("s"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	segs, _ := f.ListLogSegments("s")
	if len(segs) != 0 {
		t.Fatalf("expected no segments after RemoveShard, got %v", segs)
	}
}

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
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/launix-de/hlogstore/internal/device"
	"github.com/launix-de/hlogstore/internal/hlog"
)

func smallConfig() Config {
	return Config{
		Shard:             "test",
		PageSize:          4096,
		NumPages:          4,
		NumBucketsInitial: 16,
		Device:            device.Null{},
	}
}

func TestBasicUpsertReadDelete(t *testing.T) {
	eng, err := Open(smallConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess := eng.OpenSession()
	defer sess.Close()

	if st := sess.Upsert(NewBytesUpsert([]byte("alice"), []byte("wonderland")), sess.nextSerial()); st != Ok {
		t.Fatalf("upsert: %v", st)
	}

	read := NewBytesRead([]byte("alice"))
	if st := sess.Read(read, sess.nextSerial()); st != Ok {
		t.Fatalf("read: %v", st)
	}
	if string(read.Result) != "wonderland" {
		t.Fatalf("got %q", read.Result)
	}

	if st := sess.Delete(NewBytesDelete([]byte("alice")), sess.nextSerial()); st != Ok {
		t.Fatalf("delete: %v", st)
	}
	read2 := NewBytesRead([]byte("alice"))
	if st := sess.Read(read2, sess.nextSerial()); st != NotFound {
		t.Fatalf("expected NotFound after delete, got %v", st)
	}

	missing := NewBytesRead([]byte("nobody"))
	if st := sess.Read(missing, sess.nextSerial()); st != NotFound {
		t.Fatalf("expected NotFound for absent key, got %v", st)
	}
}

func TestGrowIndexPreservesLookups(t *testing.T) {
	cfg := smallConfig()
	cfg.NumBucketsInitial = 2
	eng, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess := eng.OpenSession()
	defer sess.Close()

	const n = 64
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%03d", i)
		v := fmt.Sprintf("val-%03d", i)
		if st := sess.Upsert(NewBytesUpsert([]byte(k), []byte(v)), sess.nextSerial()); st != Ok {
			t.Fatalf("upsert %d: %v", i, st)
		}
	}

	before := eng.index.NumBuckets()
	if !eng.GrowIndex() {
		t.Fatalf("GrowIndex reported failure")
	}
	if eng.index.NumBuckets() != before*2 {
		t.Fatalf("expected bucket count to double from %d, got %d", before, eng.index.NumBuckets())
	}

	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%03d", i)
		v := fmt.Sprintf("val-%03d", i)
		read := NewBytesRead([]byte(k))
		if st := sess.Read(read, sess.nextSerial()); st != Ok {
			t.Fatalf("read %d after grow: %v", i, st)
		}
		if string(read.Result) != v {
			t.Fatalf("read %d after grow: got %q, want %q", i, read.Result, v)
		}
	}
}

// fixedContext is a fixed-size, in-place-updatable UpsertContext/RMWContext
// over an 8-byte counter value, used to exercise the in-place mutation path
// distinct from BytesValue's always-append behavior.
type fixedContext struct {
	key BytesKey
	n   uint64
}

func (c *fixedContext) Key() Key              { return c.key }
func (c *fixedContext) ValueSize() int        { return 8 }
func (c *fixedContext) Put(dst []byte)        { binary.LittleEndian.PutUint64(dst, c.n) }
func (c *fixedContext) PutAtomic(dst []byte) bool {
	binary.LittleEndian.PutUint64(dst, c.n)
	return true
}
func (c *fixedContext) InPlaceUpdatable() bool { return true }

func TestInPlaceUpdateAvoidsAppend(t *testing.T) {
	eng, err := Open(smallConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess := eng.OpenSession()
	defer sess.Close()

	key := BytesKey("counter")
	if st := sess.Upsert(&fixedContext{key: key, n: 1}, sess.nextSerial()); st != Ok {
		t.Fatalf("initial upsert: %v", st)
	}
	tailAfterFirst := eng.Size()

	// Same fixed size, in-place updatable: should mutate the existing
	// record rather than appending a new one.
	if st := sess.Upsert(&fixedContext{key: key, n: 2}, sess.nextSerial()); st != Ok {
		t.Fatalf("second upsert: %v", st)
	}
	if eng.Size() != tailAfterFirst {
		t.Fatalf("expected in-place update to leave tail at %d, got %d", tailAfterFirst, eng.Size())
	}

	read := NewBytesRead([]byte("counter"))
	if st := sess.Read(read, sess.nextSerial()); st != Ok {
		t.Fatalf("read: %v", st)
	}
	if got := binary.LittleEndian.Uint64(read.Result); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	// A copy-on-update (non-in-place) value for a different key always
	// appends.
	before := eng.Size()
	sess.Upsert(NewBytesUpsert([]byte("other"), []byte("a")), sess.nextSerial())
	sess.Upsert(NewBytesUpsert([]byte("other"), []byte("bb")), sess.nextSerial())
	if eng.Size() <= before {
		t.Fatalf("expected copy-on-update upserts to advance the tail")
	}
}

func TestScanInMemoryVisitsLiveRecords(t *testing.T) {
	eng, err := Open(smallConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess := eng.OpenSession()
	defer sess.Close()

	keys := []string{"a", "b", "c", "d"}
	for _, k := range keys {
		sess.Upsert(NewBytesUpsert([]byte(k), []byte("v-"+k)), sess.nextSerial())
	}
	sess.Delete(NewBytesDelete([]byte("b")), sess.nextSerial())

	scanner, err := eng.ScanInMemory(hlog.Address(eng.Head()), hlog.Address(eng.Size()))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	defer scanner.Close()

	seen := map[string]string{}
	var out ScanResult
	for {
		ok, err := scanner.GetNext(&out)
		if err != nil {
			t.Fatalf("getnext: %v", err)
		}
		if !ok {
			break
		}
		seen[string(out.Key)] = string(out.Value)
	}

	if len(seen) != 3 {
		t.Fatalf("expected 3 live records, got %d: %v", len(seen), seen)
	}
	if _, ok := seen["b"]; ok {
		t.Fatalf("deleted key 'b' should not appear in scan")
	}
	if seen["a"] != "v-a" || seen["c"] != "v-c" || seen["d"] != "v-d" {
		t.Fatalf("unexpected scan contents: %v", seen)
	}
}

// TestCheckpointRecoverRoundTrip forces page eviction (small pages, tiny
// resident window) so that every key written before the final two stays
// flushed through the device before Checkpoint runs; Recover only promises
// to reconstruct what the device actually holds, per CheckpointLog's "pages
// still resident get flushed by the allocator's own eviction path" note.
func TestCheckpointRecoverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dev := device.NewFile(dir)
	cfg := Config{
		Shard:             "shard0",
		PageSize:          64,
		NumPages:          2,
		NumBucketsInitial: 16,
		Device:            dev,
	}
	eng, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess := eng.OpenSession()

	const n = 10
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("k%d", i)
		v := fmt.Sprintf("v%d", i)
		if st := sess.Upsert(NewBytesUpsert([]byte(k), []byte(v)), sess.nextSerial()); st != Ok {
			t.Fatalf("upsert %d: %v", i, st)
		}
	}
	sess.Close()

	indexToken, logToken, st := eng.Checkpoint()
	if st != Ok {
		t.Fatalf("checkpoint: %v", st)
	}

	cfg2 := cfg
	recovered, st, _, _ := Recover(cfg2, indexToken, logToken)
	if st != Ok {
		t.Fatalf("recover: %v", st)
	}

	rsess := recovered.OpenSession()
	defer rsess.Close()

	// Keys early enough to have been evicted (and therefore flushed to the
	// device) before the checkpoint must come back unchanged.
	for i := 0; i < n-2; i++ {
		k := fmt.Sprintf("k%d", i)
		v := fmt.Sprintf("v%d", i)
		read := NewBytesRead([]byte(k))
		if st := rsess.Read(read, rsess.nextSerial()); st != Ok {
			t.Fatalf("recovered read %q: %v", k, st)
		}
		if string(read.Result) != v {
			t.Fatalf("recovered %q: got %q, want %q", k, read.Result, v)
		}
	}
}

func TestConcurrentRMWAccumulatesCorrectly(t *testing.T) {
	eng, err := Open(smallConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	const workers = 8
	const perWorker = 50
	key := []byte("shared-counter")

	ParallelFor(eng, workers, workers, func(sess *Session, w int) {
		for i := 0; i < perWorker; i++ {
			sess.RMW(&counterRMW{key: BytesKey(key)}, sess.nextSerial())
		}
	})

	sess := eng.OpenSession()
	defer sess.Close()
	read := NewBytesRead(key)
	if st := sess.Read(read, sess.nextSerial()); st != Ok {
		t.Fatalf("read: %v", st)
	}
	got := binary.LittleEndian.Uint64(read.Result)
	want := uint64(workers * perWorker)
	if got != want {
		t.Fatalf("expected counter %d, got %d", want, got)
	}
}

// counterRMW is an in-place-updatable RMWContext that increments an 8-byte
// little-endian counter, seeding it at 1 on first touch.
type counterRMW struct {
	key BytesKey
}

func (c *counterRMW) Key() Key                    { return c.key }
func (c *counterRMW) InitialValueSize() int        { return 8 }
func (c *counterRMW) RmwInitial(dst []byte)        { binary.LittleEndian.PutUint64(dst, 1) }
func (c *counterRMW) ValueSizeForUpdate([]byte) int { return 8 }
func (c *counterRMW) RmwCopy(old, dst []byte) {
	v := binary.LittleEndian.Uint64(old)
	binary.LittleEndian.PutUint64(dst, v+1)
}
func (c *counterRMW) RmwAtomic(dst []byte) bool {
	v := binary.LittleEndian.Uint64(dst)
	binary.LittleEndian.PutUint64(dst, v+1)
	return true
}
func (c *counterRMW) InPlaceUpdatable() bool { return true }

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
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/launix-de/hlogstore/internal/device"
	"github.com/launix-de/hlogstore/internal/epoch"
	"github.com/launix-de/hlogstore/internal/hindex"
	"github.com/launix-de/hlogstore/internal/hlog"
)

// ErrUnknownSession is returned by ContinueSession when guid names no
// recovered session (spec.md §9's direction to fail explicitly rather than
// fall through silently).
var ErrUnknownSession = errors.New("engine: unknown session guid")

// ErrGrowInProgress names a grow that is already running. GrowIndex does not
// return it: GrowIndex reports only a bool, and a concurrent second call
// waits for the running grow to finish and then doubles the table again.
var ErrGrowInProgress = errors.New("engine: index grow already in progress")

// growLoadFactor is the average bucket occupancy (live entries / 7) past
// which GrowIndex should be invoked by the caller; the engine never grows
// on its own, matching spec.md §6's explicit grow_index entry point.
const growLoadFactor = 0.75

// Config bundles the parameters of the engine handle API's open() call.
type Config struct {
	Shard             string
	PageSize          uint64 // bytes, power of two
	NumPages          uint64 // resident window
	NumBucketsInitial uint64 // power of two
	Device            device.Device
}

// Engine is the public handle described in spec.md §6.
type Engine struct {
	shard  string
	log    *hlog.Log
	index  *hindex.Index
	epoch  *epoch.Manager
	device device.Device

	mu             sync.Mutex
	sessionSerials map[string]uint64  // guid -> last known serial, for ContinueSession/recover
	sessions       map[string]*Session // guid -> live session, for checkpoint's Prepare phase
	liveEntries    int64               // approximate count, for GrowIndex's load-factor decision

	ckptMu sync.Mutex
	ckpt   checkpointState
}

// Open constructs an in-memory engine, per spec.md §6's `open`.
// NumBucketsInitial must be a power of two; PageSize must be a power of two
// and NumPages*PageSize must be at least 2*PageSize.
func Open(cfg Config) (*Engine, error) {
	if cfg.PageSize == 0 || cfg.PageSize&(cfg.PageSize-1) != 0 {
		return nil, fmt.Errorf("engine: page size must be a power of two")
	}
	if cfg.NumPages < 2 {
		return nil, fmt.Errorf("engine: need at least 2 resident pages")
	}
	if cfg.NumBucketsInitial == 0 || cfg.NumBucketsInitial&(cfg.NumBucketsInitial-1) != 0 {
		return nil, fmt.Errorf("engine: bucket count must be a power of two")
	}
	dev := cfg.Device
	if dev == nil {
		dev = device.Null{}
	}

	em := epoch.NewManager()
	pageBits := uint(bits.TrailingZeros64(cfg.PageSize))
	l := hlog.NewLog(hlog.Config{
		Shard:    cfg.Shard,
		PageBits: pageBits,
		NumPages: cfg.NumPages,
		Epoch:    em,
		Device:   device.PageFlusher{Dev: dev},
	})
	idx := hindex.New(cfg.NumBucketsInitial)

	e := &Engine{
		shard:          cfg.Shard,
		log:            l,
		index:          idx,
		epoch:          em,
		device:         dev,
		sessionSerials: make(map[string]uint64),
		sessions:       make(map[string]*Session),
	}
	e.ckpt.phase = phaseRest
	return e, nil
}

// Close flushes nothing further (the caller should Checkpoint first if
// durability is required) and releases no engine-global resources: every
// resource the engine owns is either process-memory (reclaimed by the
// garbage collector) or a Device, which the caller owns and closes itself.
func (e *Engine) Close() {}

// Size returns the number of bytes appended to the log so far (spec.md §6's
// `size(engine) -> u64`).
func (e *Engine) Size() uint64 {
	return uint64(e.log.Tail())
}

// Head returns the lowest address still resident in memory; any address
// below this has been evicted to the Device and is only reachable through
// the pending-I/O path.
func (e *Engine) Head() uint64 {
	return uint64(e.log.Head())
}

// pageBits exposes the allocator's page-size exponent to session/op code
// that must translate an address below head into a device segment read.
func (e *Engine) pageBits() uint {
	return e.log.PageBits()
}

// GrowIndex doubles the hash index's bucket count (spec.md §6's
// `grow_index`). It runs as a single epoch-protected pass over every
// existing bucket entry, rehashing from each record's stored hash word (see
// internal/hlog/record.go) since the index never sees the caller's typed
// key, only addresses.
func (e *Engine) GrowIndex() bool {
	g := e.epoch.Acquire()
	g.Protect()
	defer func() {
		g.Unprotect()
		g.Release()
	}()
	e.index.Grow(func(addr uint64) (uint64, bool) {
		rec := e.log.Get(hlog.Address(addr))
		if rec.Invalid() {
			return 0, false
		}
		return rec.Hash(), true
	})
	fmt.Println("engine: index grown to", e.index.NumBuckets(), "buckets")
	return true
}

// loadFactor estimates average bucket occupancy, used by callers deciding
// whether to invoke GrowIndex.
func (e *Engine) loadFactor() float64 {
	e.mu.Lock()
	live := e.liveEntries
	e.mu.Unlock()
	buckets := e.index.NumBuckets()
	if buckets == 0 {
		return 0
	}
	return float64(live) / float64(buckets) / 7.0
}

// ShouldGrow reports whether the index has crossed the load-factor
// threshold spec.md §4.4 describes.
func (e *Engine) ShouldGrow() bool {
	return e.loadFactor() > growLoadFactor
}

// LoadFactor exposes the current average bucket occupancy, for monitoring.
func (e *Engine) LoadFactor() float64 {
	return e.loadFactor()
}

// reserveRecord allocates a new physical record and writes its hash/sizes/
// key prelude, leaving the header unwritten and the value bytes untouched
// (possibly holding garbage from whatever record previously occupied this
// page slot, since resident pages recycle their backing array across
// evictions). The caller must fill the value bytes — zeroing the
// generation-lock word first if the value type is in-place mutable — and
// then call publish.
func (e *Engine) reserveRecord(hash uint64, key []byte, valueSize int) (hlog.Address, hlog.Record) {
	addr, rec := e.log.Reserve(len(key), valueSize)
	rec.InitNew(hash, key, valueSize)
	return addr, rec
}

// publish installs rec's header, making it reachable the instant this
// returns. It must run after the value bytes are fully written (hlog's
// InitNew publication discipline) and before rec's address is CAS'd into
// the hash index. If a checkpoint is InProgress, the record is marked
// in_new_version so the log-suffix flush phase knows it postdates the
// snapshot (spec.md §4.7 phase 2).
func (e *Engine) publish(rec hlog.Record, prev hlog.Address, tombstone bool) {
	rec.StoreHeader(hlog.MakeHeader(prev, tombstone))
	e.ckptMu.Lock()
	inProgress := e.ckpt.phase == phaseInProgress
	e.ckptMu.Unlock()
	if inProgress {
		rec.MarkInNewVersion()
	}
	if !tombstone {
		e.mu.Lock()
		e.liveEntries++
		e.mu.Unlock()
	}
}

// payloadOf strips the 8-byte generation-lock word off value when inPlace
// is true, returning the bytes a context actually owns.
func payloadOf(value []byte, inPlace bool) []byte {
	if inPlace {
		return value[8:]
	}
	return value
}

// zeroGenLock clears the 8-byte generation-lock word embedded at the start
// of an in-place-mutable value, so a freshly reserved record (which may
// alias a page slot last used by an unrelated, now-evicted record) never
// starts out spuriously locked or replaced.
func zeroGenLock(value []byte) {
	for i := 0; i < 8; i++ {
		value[i] = 0
	}
}

// keyMatcher returns a candidate-filter closure comparing a stored record's
// key bytes against key, for use with hindex.Index.Lookup. A candidate whose
// address has fallen below the log's head is no longer resident: its page
// slot may already be recycled for a later page, so its bytes cannot be read
// here. Such a candidate is accepted unverified, and the caller's own
// a < head branch routes the operation through the pending/device path,
// where the archived record is the only safe place left to check the key.
func (e *Engine) keyMatcher(key Key) func(addr uint64) bool {
	return func(addr uint64) bool {
		a := hlog.Address(addr)
		if a < e.log.Head() {
			return true
		}
		rec := e.log.Get(a)
		return key.Equal(rec.KeyBytes())
	}
}

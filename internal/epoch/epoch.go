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

// Package epoch implements the epoch-based safe memory reclamation protocol
// that protects log addresses, hash-index generations and checkpoint phase
// transitions from being observed by a thread that has not yet caught up.
package epoch

import (
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/launix-de/NonLockingReadMap"
)

// Unprotected marks an entry that is not currently inside a protected
// region; it sorts above every real epoch so it never blocks a drain.
const Unprotected = ^uint64(0)

const maxEntries = 4096

type entry struct {
	localEpoch atomic.Uint64
}

// drainAction is scheduled by BumpAndWait and executed once every active
// local epoch has advanced past targetEpoch.
type drainAction struct {
	targetEpoch uint64
	seq         uint64 // tie-breaker for btree ordering
	fn          func()
}

func lessDrain(a, b drainAction) bool {
	if a.targetEpoch != b.targetEpoch {
		return a.targetEpoch < b.targetEpoch
	}
	return a.seq < b.seq
}

// Manager owns the global epoch counter, the table of per-session epoch
// entries and the ordered list of pending drain actions.
type Manager struct {
	current atomic.Uint64
	entries [maxEntries]entry
	used    NonLockingReadMap.NonBlockingBitMap

	drainMu  sync.Mutex
	drainSeq uint64
	drains   *btree.BTreeG[drainAction]
}

// NewManager returns a Manager with current epoch 1 (0 is reserved to mean
// "never protected").
func NewManager() *Manager {
	m := &Manager{
		drains: btree.NewG(32, lessDrain),
	}
	m.current.Store(1)
	return m
}

// Guard is a session's handle into the epoch table; it is acquired once per
// session (Acquire) and released on session close (Release).
type Guard struct {
	mgr  *Manager
	slot uint32
}

// Acquire reserves a free entry slot in the table, initializing it
// Unprotected. All slots are zero-initialized up front by Go's allocator, so
// there is no "slot 0 left uninitialized" hazard of the kind spec.md §9
// warns about.
func (m *Manager) Acquire() *Guard {
	for i := uint32(0); i < maxEntries; i++ {
		if m.used.Get(i) {
			continue
		}
		m.used.Set(i, true)
		m.entries[i].localEpoch.Store(Unprotected)
		return &Guard{mgr: m, slot: i}
	}
	panic("epoch: out of session slots")
}

// Release marks the slot free. The caller must have Unprotected first.
func (g *Guard) Release() {
	g.mgr.entries[g.slot].localEpoch.Store(Unprotected)
	g.mgr.used.Set(g.slot, false)
}

// Protect publishes local_epoch := current_epoch.
func (g *Guard) Protect() {
	g.mgr.entries[g.slot].localEpoch.Store(g.mgr.current.Load())
}

// Unprotect publishes local_epoch := infinity.
func (g *Guard) Unprotect() {
	g.mgr.entries[g.slot].localEpoch.Store(Unprotected)
}

// Refresh re-publishes the current epoch and then runs any drain action
// that has become safe.
func (g *Guard) Refresh() {
	g.mgr.entries[g.slot].localEpoch.Store(g.mgr.current.Load())
	g.mgr.tryDrain()
}

// CurrentEpoch returns the global epoch counter.
func (m *Manager) CurrentEpoch() uint64 {
	return m.current.Load()
}

// safeEpoch returns the minimum local_epoch across all in-use slots, or
// Unprotected if no session is active.
func (m *Manager) safeEpoch() uint64 {
	min := Unprotected
	m.used.Iterate(func(i uint32) {
		le := m.entries[i].localEpoch.Load()
		if le < min {
			min = le
		}
	})
	return min
}

// BumpAndWait atomically advances current_epoch and schedules action to run
// exactly once, on whichever thread first observes that every active
// session has refreshed past the new epoch. Safe for concurrent callers:
// every caller attempts to drain the schedule, so progress does not depend
// on any particular thread calling Refresh again.
func (m *Manager) BumpAndWait(action func()) {
	target := m.current.Add(1)
	m.drainMu.Lock()
	m.drainSeq++
	m.drains.ReplaceOrInsert(drainAction{targetEpoch: target, seq: m.drainSeq, fn: action})
	m.drainMu.Unlock()
	m.tryDrain()
}

// tryDrain executes every drain action whose target epoch is already safe.
// It is called opportunistically from Refresh and BumpAndWait; an action
// scheduled by a thread that never calls Refresh again will still run the
// next time any other session refreshes.
func (m *Manager) tryDrain() {
	safe := m.safeEpoch()
	for {
		m.drainMu.Lock()
		var ready *drainAction
		m.drains.Ascend(func(item drainAction) bool {
			if item.targetEpoch <= safe {
				cp := item
				ready = &cp
				return false
			}
			return false
		})
		if ready != nil {
			m.drains.Delete(*ready)
		}
		m.drainMu.Unlock()
		if ready == nil {
			return
		}
		ready.fn()
	}
}

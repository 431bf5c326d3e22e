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
	"sync/atomic"

	"github.com/launix-de/hlogstore/internal/epoch"
)

// Session is a per-thread handle: one epoch entry, one pending queue, one
// strictly increasing serial counter (spec.md §3/§4.6).
type Session struct {
	guid   Token
	eng    *Engine
	guard  *epoch.Guard
	serial atomic.Uint64
	pending *pendingQueue

	preparedSerial uint64 // published to the in-flight checkpoint on Prepare, if any
}

// OpenSession registers a fresh epoch entry and pending queue, returning a
// session bound to a brand-new guid (spec.md §6's `open_session`).
func (e *Engine) OpenSession() *Session {
	s := &Session{
		guid:    newToken(),
		eng:     e,
		guard:   e.epoch.Acquire(),
		pending: newPendingQueue(),
	}
	s.guard.Protect()
	e.registerSession(s)
	return s
}

// ContinueSession resumes a previously known session after Recover,
// returning its last durably-recovered serial number. It returns
// ErrUnknownSession rather than silently starting a fresh counter at zero,
// per spec.md §9's direction on `faster_continue_session`'s fallthrough.
func (e *Engine) ContinueSession(guid Token) (*Session, uint64, error) {
	e.mu.Lock()
	last, ok := e.sessionSerials[guid.String()]
	e.mu.Unlock()
	if !ok {
		return nil, 0, ErrUnknownSession
	}
	s := &Session{
		guid:    guid,
		eng:     e,
		guard:   e.epoch.Acquire(),
		pending: newPendingQueue(),
	}
	s.guard.Protect()
	s.serial.Store(last)
	e.registerSession(s)
	return s, last, nil
}

func (e *Engine) registerSession(s *Session) {
	e.mu.Lock()
	e.sessions[s.guid.String()] = s
	e.mu.Unlock()
}

func (e *Engine) unregisterSession(s *Session) {
	e.mu.Lock()
	delete(e.sessions, s.guid.String())
	e.sessionSerials[s.guid.String()] = s.serial.Load()
	e.mu.Unlock()
}

// GUID returns the session's identifier.
func (s *Session) GUID() Token { return s.guid }

// LastSerial returns the most recently issued serial number.
func (s *Session) LastSerial() uint64 { return s.serial.Load() }

func (s *Session) nextSerial() uint64 { return s.serial.Add(1) }

// Refresh re-publishes this session's epoch and retries the head of its
// pending queue (spec.md §4.6's `refresh`).
func (s *Session) Refresh() {
	s.guard.Refresh()
	s.pending.retryHead(s)
}

// CompletePending drains the pending queue. If wait is true it spins until
// empty; otherwise it makes one pass and returns, leaving anything not yet
// resolvable still queued (spec.md §4.6's `complete_pending`).
func (s *Session) CompletePending(wait bool) {
	for !s.pending.empty() {
		if s.pending.retryHead(s) {
			continue
		}
		if !wait {
			return
		}
		s.guard.Refresh()
	}
}

// Close drains the pending queue, releases the epoch entry and publishes
// this session's final serial for a future ContinueSession (spec.md §4.6's
// `close_session`). Closing with a non-empty pending queue blocks until it
// drains, per spec.md §5's "sessions must be closed only after their
// pending queue is drained".
func (s *Session) Close() {
	s.CompletePending(true)
	s.guard.Unprotect()
	s.guard.Release()
	s.eng.unregisterSession(s)
}

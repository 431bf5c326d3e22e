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

	"github.com/launix-de/hlogstore/internal/epoch"
	"github.com/launix-de/hlogstore/internal/hlog"
)

// ErrIteratorBelowHead is returned by GetNext when the cursor has fallen
// below head at call time (spec.md §4.8): the iterator never pages records
// in, so once an address is evicted out from under it, the scan fails
// rather than silently skip data.
var ErrIteratorBelowHead = errors.New("engine: scan cursor fell below head")

// ScanResult is where GetNext writes the borrowed key/value pointers of the
// record found at the cursor. The slices alias the resident page's backing
// array and are only valid until the next GetNext call or Close.
type ScanResult struct {
	Key   []byte
	Value []byte
}

// Scanner is the in-memory scan iterator (C8). It holds an epoch guard for
// its entire lifetime so no record it might still return gets reclaimed out
// from under it, per spec.md §4.8's "iterator holds an epoch entry".
type Scanner struct {
	eng    *Engine
	guard  *epoch.Guard
	cursor hlog.Address
	end    hlog.Address
}

// ScanInMemory constructs a Scanner over [beginScan, endScan). Both bounds
// must be ≥ the engine's current head; spec.md does not define behavior for
// a scan that starts or ends in evicted territory, so this is enforced at
// construction rather than deferred to the first GetNext.
func (e *Engine) ScanInMemory(beginScan, endScan hlog.Address) (*Scanner, error) {
	if beginScan < e.log.Head() || endScan < e.log.Head() {
		return nil, ErrIteratorBelowHead
	}
	// Address 0 is the null sentinel: the log's first 8 bytes hold no
	// record, so a scan starting there begins at the first real record.
	if beginScan == hlog.Null {
		beginScan = 8
	}
	g := e.epoch.Acquire()
	g.Protect()
	return &Scanner{eng: e, guard: g, cursor: beginScan, end: endScan}, nil
}

// GetNext advances the cursor to the next live (non-invalid, non-tombstone)
// record and writes its key/value into out, per spec.md §4.8. It returns
// false once the cursor reaches end.
func (s *Scanner) GetNext(out *ScanResult) (bool, error) {
	for {
		if s.cursor >= s.end {
			return false, nil
		}
		if s.cursor < s.eng.log.Head() {
			return false, ErrIteratorBelowHead
		}
		rec := s.eng.log.Get(s.cursor)
		size := rec.Size()
		if size <= 0 {
			return false, nil
		}
		s.cursor += hlog.Address(size)
		if rec.Invalid() || rec.Tombstone() {
			continue
		}
		out.Key = rec.KeyBytes()
		out.Value = rec.ValueBytes()
		return true, nil
	}
}

// Close releases the scanner's epoch entry. Records it returned remain
// unsafe to hold past this call.
func (s *Scanner) Close() {
	s.guard.Unprotect()
	s.guard.Release()
}

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

import "sync/atomic"

// page is one slot of the circular resident-page buffer. Its buf is
// recycled across logical pages that are `numPages` apart; occupant
// records which logical page currently owns the slot so a straggling
// reader can detect it has fallen behind.
type page struct {
	buf      []byte
	occupant atomic.Uint64 // logical page index currently resident here
}

func newPage(size uint64) *page {
	return &page{buf: make([]byte, size)}
}

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

import "sync/atomic"

// numSlots is 7 inline entries plus 1 overflow-pointer slot, per spec.md §3.
const numSlots = 8
const numEntries = numSlots - 1
const overflowSlot = numSlots - 1

type bucket struct {
	slots [numSlots]atomic.Uint64
}

// candidate is one (address, bucket, slot) location that matched a tag
// during a lookup, returned so the caller can CAS it during an update.
type candidate struct {
	addr uint64
	b    *bucket
	slot int
}

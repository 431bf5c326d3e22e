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

// Package hlog implements the hybrid log allocator (C2) and the physical
// record layout with its generation lock (C3).
package hlog

// Address is a 48-bit monotonically increasing offset into the logical log.
// Address 0 is the null/sentinel value.
type Address uint64

// AddressMask keeps Address values inside the 48 bits spec.md §3 allots them.
const AddressMask = (uint64(1) << 48) - 1

// Null is the sentinel "no previous record" address.
const Null Address = 0

// Valid reports whether a is a real, non-null address.
func (a Address) Valid() bool { return a != Null }

// Page splits an address into its page index, given pageBits.
func (a Address) Page(pageBits uint) uint64 {
	return uint64(a) >> pageBits
}

// Offset returns the byte offset within its page, given pageBits.
func (a Address) Offset(pageBits uint) uint64 {
	return uint64(a) & ((uint64(1) << pageBits) - 1)
}

// MakeAddress reassembles an address from a page index and an in-page offset.
func MakeAddress(page uint64, offset uint64, pageBits uint) Address {
	return Address((page << pageBits) | offset)
}

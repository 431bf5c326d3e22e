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

// Key is the key contract of spec.md §6: a value is a valid key iff it
// supplies a byte size, a 64-bit hash and an equality test against a
// record's stored key bytes. Keys must be trivially relocatable: WriteTo
// must produce a self-contained byte image with no interior pointers.
type Key interface {
	Size() int
	Hash() uint64
	WriteTo(dst []byte)
	Equal(stored []byte) bool
}

// UpsertContext drives Upsert (spec.md §4.5). InPlaceUpdatable mirrors the
// value contract's "optional in-place mutability indicator": contexts over
// a value type that never supports in-place mutation should return false
// unconditionally so the engine always falls through to append.
type UpsertContext interface {
	Key() Key
	ValueSize() int
	Put(dst []byte)
	PutAtomic(dst []byte) bool
	InPlaceUpdatable() bool
}

// ReadContext drives Read. Get is called for stable (below safe_read_only)
// records; GetAtomic is handed the already-verified-consistent bytes copied
// out under the generation-lock reader protocol (spec.md §4.3) — callers
// never need to implement the retry loop themselves. Both are always handed
// the value's payload with any reserved generation-lock word already
// stripped off; InPlaceUpdatable tells the engine whether that word is
// present so it knows how many bytes to skip and whether the reader
// protocol applies at all (a value type that never mutates in place is
// never torn, so a plain Get is always safe for it).
type ReadContext interface {
	Key() Key
	InPlaceUpdatable() bool
	Get(src []byte)
	GetAtomic(src []byte)
}

// RMWContext drives RMW.
type RMWContext interface {
	Key() Key
	InitialValueSize() int
	RmwInitial(dst []byte)
	ValueSizeForUpdate(old []byte) int
	RmwCopy(old []byte, dst []byte)
	RmwAtomic(dst []byte) bool
	InPlaceUpdatable() bool
}

// DeleteContext drives Delete.
type DeleteContext interface {
	Key() Key
}

// DeepCopier must be implemented by any context that might be deep-copied
// onto a session's pending queue (spec.md §4.5/§6: "a context marked
// pending-capable must supply a deep-copy operation"). A context that
// cannot ever observe an address below head (e.g. tests that never exceed
// the resident window) is not required to implement it.
type DeepCopier interface {
	DeepCopy() any
}

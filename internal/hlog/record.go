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

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// Physical record layout (spec.md §3, supplemented with a sizes word and a
// stored key hash so the scan iterator, the operation engine and index grow
// can all self-describe a record from its address alone — the original
// FASTER sources carry the equivalent of this as part of their
// variable-length-struct header; spec.md's distillation folds it into "key
// bytes (aligned to 8)". The stored hash in particular is what lets Grow
// rehash every live record by address without reconstructing the caller's
// typed key, since the key contract's hash() belongs to a type the index
// itself never sees):
//
//	offset  0: header  (8 bytes, CAS-managed)
//	offset  8: hash    (8 bytes: the full key hash, written once before the header is installed)
//	offset 16: sizes   (8 bytes: uint32 keyLen, uint32 valueLen; written once before the header is installed)
//	offset 24: key bytes, padded to a multiple of 8
//	offset 24+pad(keyLen): value bytes, padded to a multiple of 8
const (
	headerSize  = 8
	hashSize    = 8
	sizesSize   = 8
	preludeSize = headerSize + hashSize + sizesSize
)

// header bit layout: invalid:1 | tombstone:1 | in_new_version:1 | previous_address:48 | reserved:13
const (
	prevAddrBits = 48
	prevAddrMask = (uint64(1) << prevAddrBits) - 1

	bitInNewVersion = 61
	bitTombstone    = 62
	bitInvalid      = 63
)

// MakeHeader builds the header word for a brand-new record chained after
// prev (Null for the first record of a key), optionally marking it a
// tombstone. in_new_version is never set here: it is applied afterwards via
// MarkInNewVersion, only while a checkpoint is InProgress.
func MakeHeader(prev Address, tombstone bool) uint64 {
	return packHeader(prev, tombstone, false, false)
}

func packHeader(prev Address, tombstone, invalid, inNewVersion bool) uint64 {
	h := uint64(prev) & prevAddrMask
	if inNewVersion {
		h |= 1 << bitInNewVersion
	}
	if tombstone {
		h |= 1 << bitTombstone
	}
	if invalid {
		h |= 1 << bitInvalid
	}
	return h
}

func headerPrevAddress(h uint64) Address   { return Address(h & prevAddrMask) }
func headerTombstone(h uint64) bool        { return h&(1<<bitTombstone) != 0 }
func headerInvalid(h uint64) bool          { return h&(1<<bitInvalid) != 0 }
func headerInNewVersion(h uint64) bool     { return h&(1<<bitInNewVersion) != 0 }

// Round8 rounds n up to the next multiple of 8.
func Round8(n int) int { return (n + 7) &^ 7 }

// RecordSize returns the total physical size occupied by a record carrying
// keyLen bytes of key and valueLen bytes of value.
func RecordSize(keyLen, valueLen int) int {
	return preludeSize + Round8(keyLen) + Round8(valueLen)
}

// Record is a lightweight view over a physical record living at a known
// offset inside a page buffer. It never copies; all accessors return slices
// that alias the page's backing array, which is only valid while the
// caller holds an epoch guard covering this address.
type Record struct {
	buf []byte // the full page buffer
	off int    // byte offset of this record's header within buf
}

// NewRecord wraps the record physically stored at off within buf.
func NewRecord(buf []byte, off int) Record {
	return Record{buf: buf, off: off}
}

func (r Record) headerPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&r.buf[r.off]))
}

// Header loads the 64-bit header atomically.
func (r Record) Header() uint64 {
	return atomic.LoadUint64(r.headerPtr())
}

// CASHeader attempts to swap the header from old to new.
func (r Record) CASHeader(old, new_ uint64) bool {
	return atomic.CompareAndSwapUint64(r.headerPtr(), old, new_)
}

// StoreHeader unconditionally stores the header (used once, at append time,
// before the record is linked into the index and therefore before any
// concurrent reader can reach it).
func (r Record) StoreHeader(h uint64) {
	atomic.StoreUint64(r.headerPtr(), h)
}

func (r Record) PreviousAddress() Address { return headerPrevAddress(r.Header()) }
func (r Record) Tombstone() bool          { return headerTombstone(r.Header()) }
func (r Record) Invalid() bool            { return headerInvalid(r.Header()) }
func (r Record) InNewVersion() bool       { return headerInNewVersion(r.Header()) }

// MarkInvalid atomically sets the invalid bit, retrying on CAS races with
// concurrent in-place updates of unrelated header bits (there are none in
// this design, but the CAS loop is kept for forward-compatibility with
// future header-mutating flags).
func (r Record) MarkInvalid() {
	for {
		old := r.Header()
		if headerInvalid(old) {
			return
		}
		if r.CASHeader(old, old|(1<<bitInvalid)) {
			return
		}
	}
}

// MarkInNewVersion is set on every record appended while a checkpoint is
// InProgress (spec.md §4.7 phase 2).
func (r Record) MarkInNewVersion() {
	for {
		old := r.Header()
		if headerInNewVersion(old) {
			return
		}
		if r.CASHeader(old, old|(1<<bitInNewVersion)) {
			return
		}
	}
}

func (r Record) hashOff() int { return r.off + headerSize }

// Hash returns the full key hash stored at append time.
func (r Record) Hash() uint64 {
	return binary.LittleEndian.Uint64(r.buf[r.hashOff() : r.hashOff()+8])
}

func (r Record) storeHash(hash uint64) {
	binary.LittleEndian.PutUint64(r.buf[r.hashOff():r.hashOff()+8], hash)
}

func (r Record) sizesOff() int { return r.hashOff() + hashSize }

func (r Record) keyLen() int {
	return int(binary.LittleEndian.Uint32(r.buf[r.sizesOff() : r.sizesOff()+4]))
}

func (r Record) valueLen() int {
	return int(binary.LittleEndian.Uint32(r.buf[r.sizesOff()+4 : r.sizesOff()+8]))
}

func (r Record) storeSizes(keyLen, valueLen int) {
	binary.LittleEndian.PutUint32(r.buf[r.sizesOff():r.sizesOff()+4], uint32(keyLen))
	binary.LittleEndian.PutUint32(r.buf[r.sizesOff()+4:r.sizesOff()+8], uint32(valueLen))
}

func (r Record) keyOff() int { return r.off + preludeSize }

func (r Record) valueOff() int {
	return r.keyOff() + Round8(r.keyLen())
}

// KeyBytes returns the slice holding the stored key.
func (r Record) KeyBytes() []byte {
	n := r.keyLen()
	return r.buf[r.keyOff() : r.keyOff()+n]
}

// ValueBytes returns the slice holding the stored value, including the
// embedded generation-lock word if the value type is in-place mutable.
func (r Record) ValueBytes() []byte {
	n := r.valueLen()
	off := r.valueOff()
	return r.buf[off : off+n]
}

// Size returns the total physical footprint of this record.
func (r Record) Size() int {
	return RecordSize(r.keyLen(), r.valueLen())
}

// InitNew lays out a brand-new record's prelude + key bytes and reserves
// valueLen bytes for the value (left untouched, so a recycled page slot may
// still hold stale bytes there, to be filled by the caller's Put callback).
// The header is intentionally left unwritten: the caller
// installs it last, once the value bytes are populated, so that no
// concurrent reader can observe a half-written record (the record only
// becomes reachable once it is CAS'd into the hash index, which happens
// strictly after StoreHeader).
func (r Record) InitNew(hash uint64, key []byte, valueLen int) {
	r.storeHash(hash)
	r.storeSizes(len(key), valueLen)
	copy(r.buf[r.keyOff():r.keyOff()+len(key)], key)
}

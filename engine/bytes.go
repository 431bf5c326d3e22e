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
	"hash/maphash"
)

// BytesKey is the opaque-bytes key schema spec.md §1(c) names as one
// concrete instantiation the generic engine must support. Hashing follows
// the teacher's own choice of stdlib hash/maphash (scm/assoc_fast.go's
// HashKey) over an external hashing library.
type BytesKey []byte

var bytesKeySeed = maphash.MakeSeed()

func (k BytesKey) Size() int { return len(k) }

func (k BytesKey) Hash() uint64 {
	var h maphash.Hash
	h.SetSeed(bytesKeySeed)
	h.Write(k)
	return h.Sum64()
}

func (k BytesKey) WriteTo(dst []byte) { copy(dst, k) }

func (k BytesKey) Equal(stored []byte) bool { return bytes.Equal(k, stored) }

// BytesValue is a copy-on-update byte-string value: it never reports itself
// in-place updatable, so Upsert/RMW always append rather than mutate, which
// keeps its size free to grow or shrink on every write.
type BytesValue []byte

func (v BytesValue) InPlaceUpdatable() bool { return false }

// bytesUpsertContext adapts a BytesKey/BytesValue pair to UpsertContext.
type bytesUpsertContext struct {
	key   BytesKey
	value BytesValue
}

// NewBytesUpsert builds an UpsertContext that unconditionally overwrites
// key's value with value, always via append (never in place).
func NewBytesUpsert(key, value []byte) UpsertContext {
	return &bytesUpsertContext{key: BytesKey(key), value: BytesValue(value)}
}

func (c *bytesUpsertContext) Key() Key                 { return c.key }
func (c *bytesUpsertContext) ValueSize() int            { return len(c.value) }
func (c *bytesUpsertContext) Put(dst []byte)            { copy(dst, c.value) }
func (c *bytesUpsertContext) PutAtomic(dst []byte) bool { return false }
func (c *bytesUpsertContext) InPlaceUpdatable() bool    { return false }

// bytesReadContext adapts a BytesKey to ReadContext, copying the found
// value into Result on a hit.
type bytesReadContext struct {
	key    BytesKey
	Result []byte
}

// NewBytesRead builds a ReadContext for key; after a synchronous Ok/NotFound
// result (or after the pending callback fires) Result holds a private copy
// of the value.
func NewBytesRead(key []byte) *bytesReadContext {
	return &bytesReadContext{key: BytesKey(key)}
}

func (c *bytesReadContext) Key() Key              { return c.key }
func (c *bytesReadContext) InPlaceUpdatable() bool { return false }

func (c *bytesReadContext) Get(src []byte) {
	c.Result = append([]byte(nil), src...)
}

func (c *bytesReadContext) GetAtomic(src []byte) { c.Get(src) }

// DeepCopy detaches the context from the caller's key buffer and returns c
// itself, so a pending read delivers its value into the Result the caller
// still holds.
func (c *bytesReadContext) DeepCopy() any {
	c.key = append(BytesKey(nil), c.key...)
	return c
}

// bytesDeleteContext adapts a BytesKey to DeleteContext.
type bytesDeleteContext struct{ key BytesKey }

// NewBytesDelete builds a DeleteContext for key.
func NewBytesDelete(key []byte) DeleteContext {
	return bytesDeleteContext{key: BytesKey(key)}
}

func (c bytesDeleteContext) Key() Key { return c.key }

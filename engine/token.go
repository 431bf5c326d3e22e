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
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Token is a 128-bit checkpoint/log identifier, rendered as the canonical
// 36-character hex-with-dashes form (spec.md §6).
type Token = uuid.UUID

var tokenCounter atomic.Uint64

func init() {
	tokenCounter.Store(uint64(time.Now().UnixNano()))
}

// newToken mints a UUIDv4-shaped token without relying on crypto/rand, the
// same low-entropy-safe approach as memcp's storage/fast_uuid.go: a
// monotonic counter folded against the wall clock, so token generation
// never stalls waiting on system entropy during checkpoint storms.
func newToken() Token {
	ctr := tokenCounter.Add(1)
	now := uint64(time.Now().UnixNano())
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], ctr)
	binary.LittleEndian.PutUint64(b[8:16], ctr^now^(now<<17))
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b)
}

// parseToken parses a token's canonical 36-character rendering, used by
// Recover to turn a persisted metadata record's session-guid keys back into
// Tokens.
func parseToken(s string) (Token, error) {
	return uuid.Parse(s)
}

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

// Package config holds the engine's tunable geometry and wires process
// lifecycle hooks around it.
package config

import (
	"fmt"

	"github.com/dc0d/onexit"
	units "github.com/docker/go-units"
)

// SettingsT is the engine's tunable geometry. ParseByteSize turns
// human-readable sizes ("32MiB") into the byte counts stored here.
type SettingsT struct {
	PageSize          uint64 // bytes per resident log page
	NumPages          uint64 // resident window, in pages
	NumBucketsInitial uint64 // initial hash-index bucket count (power of two)
	CheckpointEvery   uint64 // not read by the engine; nothing checkpoints automatically
	Trace             bool   // not read by any package; lifecycle events are always printed
}

var Settings = SettingsT{
	PageSize:          1 << 25, // 32MiB
	NumPages:          16,
	NumBucketsInitial: 1 << 16,
	CheckpointEvery:   0,
	Trace:             true,
}

// InitSettings registers the best-effort shutdown hook; call it once after
// filling in Settings.
func InitSettings(onShutdown func()) {
	if onShutdown != nil {
		onexit.Register(onShutdown)
	}
}

// ParseByteSize parses a human-readable size ("32MiB", "512 KB") into bytes
// using the same units table docker/go-units ships with.
func ParseByteSize(s string) (uint64, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid byte size %q: %w", s, err)
	}
	return uint64(n), nil
}

// FormatByteSize renders n bytes the way diagnostic logging reports page
// sizes and checkpoint thresholds.
func FormatByteSize(n uint64) string {
	return units.BytesSize(float64(n))
}

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

package config

import "testing"

func TestParseByteSizeAcceptsHumanReadableSizes(t *testing.T) {
	cases := map[string]uint64{
		"32MiB": 32 * 1024 * 1024,
		"1KiB":  1024,
		"512":   512,
	}
	for s, want := range cases {
		got, err := ParseByteSize(s)
		if err != nil {
			t.Fatalf("ParseByteSize(%q): %v", s, err)
		}
		if got != want {
			t.Fatalf("ParseByteSize(%q) = %d, want %d", s, got, want)
		}
	}
}

func TestParseByteSizeRejectsGarbage(t *testing.T) {
	if _, err := ParseByteSize("not-a-size"); err == nil {
		t.Fatalf("expected an error for an unparseable size")
	}
}

func TestFormatByteSizeRoundTripsThroughParse(t *testing.T) {
	formatted := FormatByteSize(32 * 1024 * 1024)
	got, err := ParseByteSize(formatted)
	if err != nil {
		t.Fatalf("ParseByteSize(%q): %v", formatted, err)
	}
	if got != 32*1024*1024 {
		t.Fatalf("round trip mismatch: got %d", got)
	}
}

func TestInitSettingsAcceptsNilAndRealHooks(t *testing.T) {
	InitSettings(nil)
	InitSettings(func() {})
}

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

package monitor

import (
	"testing"

	"github.com/launix-de/hlogstore/engine"
	"github.com/launix-de/hlogstore/internal/device"
)

func TestSampleReflectsEngineState(t *testing.T) {
	eng, err := engine.Open(engine.Config{
		Shard:             "test",
		PageSize:          4096,
		NumPages:          4,
		NumBucketsInitial: 16,
		Device:            device.Null{},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess := eng.OpenSession()
	defer sess.Close()

	before := sample(eng)
	sess.Upsert(engine.NewBytesUpsert([]byte("k"), []byte("v")), sess.LastSerial()+1)
	after := sample(eng)

	if after.SizeBytes <= before.SizeBytes {
		t.Fatalf("expected size to grow after an upsert: before=%d after=%d", before.SizeBytes, after.SizeBytes)
	}
	if after.Head != eng.Head() {
		t.Fatalf("sample head out of sync with engine: %d vs %d", after.Head, eng.Head())
	}
}

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

package epoch

import "testing"

func TestBumpAndWaitRunsAfterAllGuardsRefresh(t *testing.T) {
	m := NewManager()
	g1 := m.Acquire()
	g2 := m.Acquire()
	g1.Protect()
	g2.Protect()

	ran := make(chan struct{}, 1)
	m.BumpAndWait(func() { ran <- struct{}{} })

	select {
	case <-ran:
		t.Fatalf("drain action ran before any guard refreshed past the new epoch")
	default:
	}

	g1.Refresh()
	select {
	case <-ran:
		t.Fatalf("drain action ran before g2 refreshed")
	default:
	}

	g2.Refresh()
	select {
	case <-ran:
	default:
		t.Fatalf("drain action never ran once every guard refreshed")
	}
}

func TestUnprotectedGuardNeverBlocksDrain(t *testing.T) {
	m := NewManager()
	g1 := m.Acquire()
	g2 := m.Acquire()
	g1.Protect()
	g2.Unprotect() // never enters a protected region

	ran := false
	m.BumpAndWait(func() { ran = true })
	g1.Refresh()
	if !ran {
		t.Fatalf("drain action should not wait on an unprotected guard")
	}
}

func TestReleaseFreesSlotForReuse(t *testing.T) {
	m := NewManager()
	g := m.Acquire()
	slot := g.slot
	g.Unprotect()
	g.Release()
	g2 := m.Acquire()
	if g2.slot != slot {
		t.Fatalf("expected freed slot %d to be reused, got %d", slot, g2.slot)
	}
}

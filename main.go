/*
Copyright (C) 2023  Carl-Philip Hänsch

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
/*
	hlogstore: an embedded, concurrent, log-structured key-value store

*/
package main

import "fmt"

func main() {
	fmt.Print(`hlogstore Copyright (C) 2026  hlogstore authors
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;

Run the interactive shell with:

    go run ./cmd/hlogshell [-dir <checkpoint-directory>]

Import github.com/launix-de/hlogstore/engine to embed the store directly.
`)
}

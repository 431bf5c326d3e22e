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

// Package main is hlogshell, an interactive REPL over an engine.Engine,
// exercising Open/Upsert/Read/Delete/Checkpoint/GrowIndex/Scan by hand.
// It has no RMW or Recover command.
package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/launix-de/hlogstore/config"
	"github.com/launix-de/hlogstore/engine"
	"github.com/launix-de/hlogstore/internal/device"
	"github.com/launix-de/hlogstore/internal/hlog"
)

const (
	newprompt    = "\033[32mhlog>\033[0m "
	resultprompt = "\033[31m=\033[0m "
)

func main() {
	dir := flag.String("dir", "", "directory to persist checkpoints and evicted log pages under (empty: memory only)")
	flag.Parse()

	config.InitSettings(func() { fmt.Println("hlogshell: shutting down") })

	var dev device.Device = device.Null{}
	if *dir != "" {
		dev = device.NewFile(*dir)
	}

	eng, err := engine.Open(engine.Config{
		Shard:             "shell",
		PageSize:          config.Settings.PageSize,
		NumPages:          config.Settings.NumPages,
		NumBucketsInitial: config.Settings.NumBucketsInitial,
		Device:            dev,
	})
	if err != nil {
		panic(err)
	}
	sess := eng.OpenSession()
	defer sess.Close()

	fmt.Print(`hlogstore shell
    commands: upsert <key> <value> | get <key> | delete <key> |
              scan | size | checkpoint | grow | help | exit
`)

	l, err := readline.NewEx(&readline.Config{
		Prompt:            newprompt,
		HistoryFile:       ".hlogshell-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	var serial uint64
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			panic(err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		cmd := fields[0]

		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println("panic:", r)
				}
			}()
			serial++
			switch cmd {
			case "help":
				fmt.Print(`  upsert <key> <value>   write a key
  get <key>              read a key
  delete <key>           tombstone a key
  scan                   list every live key in the resident log
  size                   bytes appended to the log so far
  checkpoint             run a full index+log checkpoint, print its tokens
  grow                   double the hash index bucket count
  exit                   quit
`)
			case "upsert":
				if len(fields) < 3 {
					fmt.Println("usage: upsert <key> <value>")
					return
				}
				status := sess.Upsert(engine.NewBytesUpsert([]byte(fields[1]), []byte(fields[2])), serial)
				fmt.Println(resultprompt, status)
			case "get":
				if len(fields) < 2 {
					fmt.Println("usage: get <key>")
					return
				}
				ctx := engine.NewBytesRead([]byte(fields[1]))
				status := sess.Read(ctx, serial)
				if status == engine.Pending {
					sess.CompletePending(true)
				}
				fmt.Println(resultprompt, status, string(ctx.Result))
			case "delete":
				if len(fields) < 2 {
					fmt.Println("usage: delete <key>")
					return
				}
				status := sess.Delete(engine.NewBytesDelete([]byte(fields[1])), serial)
				fmt.Println(resultprompt, status)
			case "size":
				fmt.Println(resultprompt, eng.Size())
			case "grow":
				fmt.Println(resultprompt, eng.GrowIndex())
			case "checkpoint":
				it, lt, status := eng.Checkpoint()
				fmt.Println(resultprompt, status, "index", it, "log", lt)
			case "scan":
				scanAll(eng)
			default:
				fmt.Println("unknown command:", cmd, "(try 'help')")
			}
		}()
	}
}

func scanAll(eng *engine.Engine) {
	scanner, err := eng.ScanInMemory(hlog.Address(eng.Head()), hlog.Address(eng.Size()))
	if err != nil {
		fmt.Println("scan:", err)
		return
	}
	defer scanner.Close()

	var out engine.ScanResult
	count := 0
	for {
		ok, err := scanner.GetNext(&out)
		if err != nil {
			fmt.Println("scan:", err)
			return
		}
		if !ok {
			break
		}
		fmt.Printf("  %s = %s\n", string(out.Key), string(out.Value))
		count++
	}
	fmt.Println(resultprompt, count, "keys")
}

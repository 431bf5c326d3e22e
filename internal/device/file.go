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

package device

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// File is a filesystem-backed Device: one directory per database, one file
// per shard's log segment, one file per checkpoint artifact.
type File struct {
	path string
}

// NewFile opens (without creating) a File device rooted at path.
func NewFile(path string) *File {
	return &File{path: strings.TrimSuffix(path, "/") + "/"}
}

func (f *File) ensureDir() {
	if err := os.MkdirAll(f.path, 0750); err != nil {
		panic(err)
	}
}

func (f *File) WriteIndexImage(token string, data []byte) error {
	f.ensureDir()
	return os.WriteFile(f.path+"index-"+token+".img", data, 0640)
}

func (f *File) ReadIndexImage(token string) ([]byte, error) {
	data, err := os.ReadFile(f.path + "index-" + token + ".img")
	if err != nil {
		return nil, ErrNotFound
	}
	return data, nil
}

func (f *File) WriteMetadata(token string, data []byte) error {
	f.ensureDir()
	return os.WriteFile(f.path+"meta-"+token+".json", data, 0640)
}

func (f *File) ReadMetadata(token string) ([]byte, error) {
	data, err := os.ReadFile(f.path + "meta-" + token + ".json")
	if err != nil {
		return nil, ErrNotFound
	}
	return data, nil
}

func (f *File) segmentPath(shard string, idx uint64) string {
	return fmt.Sprintf("%s%s.log.%012d", f.path, shard, idx)
}

func (f *File) WriteLogSegment(shard string, idx uint64, data []byte) error {
	f.ensureDir()
	return os.WriteFile(f.segmentPath(shard, idx), data, 0640)
}

func (f *File) ReadLogSegment(shard string, idx uint64) ([]byte, error) {
	data, err := os.ReadFile(f.segmentPath(shard, idx))
	if err != nil {
		return nil, ErrNotFound
	}
	return data, nil
}

func (f *File) ListLogSegments(shard string) ([]uint64, error) {
	entries, err := os.ReadDir(f.path)
	if err != nil {
		return nil, nil
	}
	prefix := shard + ".log."
	var out []uint64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		n, err := strconv.ParseUint(name[len(prefix):], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *File) RemoveShard(shard string) error {
	segs, _ := f.ListLogSegments(shard)
	for _, idx := range segs {
		_ = os.Remove(f.segmentPath(shard, idx))
	}
	matches, _ := filepath.Glob(f.path + shard + ".*")
	for _, m := range matches {
		_ = os.Remove(m)
	}
	return nil
}

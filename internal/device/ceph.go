//go:build ceph

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
	"path"
	"strings"
	"sync"

	"github.com/ceph/go-ceph/rados"
)

// CephConfig names the RADOS cluster/pool a Ceph device connects to.
type CephConfig struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	Prefix      string
}

// Ceph is a RADOS-backed Device, built only with `-tags ceph`.
type Ceph struct {
	cfg CephConfig

	mu     sync.Mutex
	conn   *rados.Conn
	ioctx  *rados.IOContext
	opened bool
}

// NewCeph returns a Ceph device; the cluster connection opens lazily.
func NewCeph(cfg CephConfig) *Ceph {
	return &Ceph{cfg: cfg}
}

func (c *Ceph) ensureOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		return
	}
	conn, err := rados.NewConnWithClusterAndUser(c.cfg.ClusterName, c.cfg.UserName)
	if err != nil {
		panic(err)
	}
	if c.cfg.ConfFile != "" {
		if err := conn.ReadConfigFile(c.cfg.ConfFile); err != nil {
			panic(err)
		}
	} else {
		_ = conn.ReadDefaultConfigFile()
	}
	if err := conn.Connect(); err != nil {
		panic(err)
	}
	ioctx, err := conn.OpenIOContext(c.cfg.Pool)
	if err != nil {
		conn.Shutdown()
		panic(err)
	}
	c.conn = conn
	c.ioctx = ioctx
	c.opened = true
}

func (c *Ceph) obj(name string) string {
	return path.Join(strings.TrimSuffix(c.cfg.Prefix, "/"), name)
}

func (c *Ceph) read(obj string) ([]byte, error) {
	c.ensureOpen()
	stat, err := c.ioctx.Stat(obj)
	if err != nil {
		return nil, ErrNotFound
	}
	data := make([]byte, stat.Size)
	n, err := c.ioctx.Read(obj, data, 0)
	if err != nil {
		return nil, ErrNotFound
	}
	return data[:n], nil
}

func (c *Ceph) write(obj string, data []byte) error {
	c.ensureOpen()
	return c.ioctx.WriteFull(obj, data)
}

func (c *Ceph) WriteIndexImage(token string, data []byte) error {
	return c.write(c.obj("index-"+token+".img"), data)
}
func (c *Ceph) ReadIndexImage(token string) ([]byte, error) {
	return c.read(c.obj("index-" + token + ".img"))
}
func (c *Ceph) WriteMetadata(token string, data []byte) error {
	return c.write(c.obj("meta-"+token+".json"), data)
}
func (c *Ceph) ReadMetadata(token string) ([]byte, error) {
	return c.read(c.obj("meta-" + token + ".json"))
}

func (c *Ceph) segmentObj(shard string, idx uint64) string {
	return c.obj(fmt.Sprintf("%s.log.%012d", shard, idx))
}

func (c *Ceph) WriteLogSegment(shard string, idx uint64, data []byte) error {
	return c.write(c.segmentObj(shard, idx), data)
}
func (c *Ceph) ReadLogSegment(shard string, idx uint64) ([]byte, error) {
	return c.read(c.segmentObj(shard, idx))
}

// ListLogSegments needs a manifest object since RADOS enumeration is
// pool-wide; callers that never Recover from Ceph can ignore this
// limitation, matching the teacher's own "manifest/index" comment on the
// equivalent Remove limitation.
func (c *Ceph) ListLogSegments(shard string) ([]uint64, error) {
	return nil, fmt.Errorf("device: ceph backend requires a segment manifest, not yet implemented")
}

func (c *Ceph) RemoveShard(shard string) error {
	return fmt.Errorf("device: ceph RemoveShard needs a manifest to enumerate objects")
}

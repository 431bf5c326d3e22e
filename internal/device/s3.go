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
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config names the bucket/credentials an S3 device connects to. Region and
// Endpoint may both be empty to fall back to the default AWS config chain.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// S3 is an S3-backed Device. Log segments are one evicted page per object;
// S3 has no append primitive, so each WriteLogSegment call is a full
// PutObject of that page's bytes (pages are immutable once evicted, so no
// read-modify-write is ever needed, unlike the teacher's append-only log
// encoding which has to buffer and rewrite).
type S3 struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

// NewS3 returns an S3 device; the client connects lazily on first use.
func NewS3(cfg S3Config) *S3 {
	return &S3{cfg: cfg}
}

func (s *S3) ensureOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if s.cfg.Region != "" {
		opts = append(opts, config.WithRegion(s.cfg.Region))
	}
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		panic(fmt.Sprintf("device: S3 config load failed: %v", err))
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(s.cfg.Endpoint) })
	}
	if s.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	s.opened = true
}

func (s *S3) key(name string) string {
	pfx := strings.TrimSuffix(s.cfg.Prefix, "/")
	if pfx == "" {
		return name
	}
	return pfx + "/" + name
}

func (s *S3) get(key string) ([]byte, error) {
	s.ensureOpen()
	resp, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ErrNotFound
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *S3) put(key string, data []byte) error {
	s.ensureOpen()
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *S3) WriteIndexImage(token string, data []byte) error {
	return s.put(s.key("index-"+token+".img"), data)
}

func (s *S3) ReadIndexImage(token string) ([]byte, error) {
	return s.get(s.key("index-" + token + ".img"))
}

func (s *S3) WriteMetadata(token string, data []byte) error {
	return s.put(s.key("meta-"+token+".json"), data)
}

func (s *S3) ReadMetadata(token string) ([]byte, error) {
	return s.get(s.key("meta-" + token + ".json"))
}

func (s *S3) segmentKey(shard string, idx uint64) string {
	return s.key(fmt.Sprintf("%s.log.%012d", shard, idx))
}

func (s *S3) WriteLogSegment(shard string, idx uint64, data []byte) error {
	return s.put(s.segmentKey(shard, idx), data)
}

func (s *S3) ReadLogSegment(shard string, idx uint64) ([]byte, error) {
	return s.get(s.segmentKey(shard, idx))
}

func (s *S3) ListLogSegments(shard string) ([]uint64, error) {
	s.ensureOpen()
	prefix := s.key(shard + ".log.")
	var out []uint64
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			break
		}
		for _, obj := range page.Contents {
			var n uint64
			if _, err := fmt.Sscanf(strings.TrimPrefix(*obj.Key, prefix), "%d", &n); err == nil {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

func (s *S3) RemoveShard(shard string) error {
	s.ensureOpen()
	segs, _ := s.ListLogSegments(shard)
	for _, idx := range segs {
		_, _ = s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(s.segmentKey(shard, idx)),
		})
	}
	return nil
}

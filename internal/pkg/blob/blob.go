// Copyright 2026 AskAnna Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package blob stores the binary payloads of the system: package zips,
// run payloads, artifacts, results and frozen logs. Keys are relative
// slash-separated paths; a stored object becomes visible atomically.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/wire"
	"github.com/pkg/errors"
)

// Config selects and parameterizes the blob backend.
type Config struct {
	// Driver is "fs" or "minio".
	Driver string `mapstructure:"driver"`
	// Root is the local directory for the fs driver. Also used by every
	// driver as the scratch area for upload parts.
	Root string `mapstructure:"root"`

	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "fs"
	}
	if c.Root == "" {
		c.Root = "blob-data"
	}
	if c.Bucket == "" {
		c.Bucket = "runcore"
	}
}

// Store is an append-only object store. Put makes the full object visible
// in one step; a reader observes either absence or the complete bytes.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// ProviderSet provides the configured blob store.
var ProviderSet = wire.NewSet(NewStore)

func NewStore(conf *Config) (Store, error) {
	conf.SetDefaults()
	switch conf.Driver {
	case "fs":
		return NewFsStore(conf.Root)
	case "minio":
		return NewMinioStore(conf)
	default:
		return nil, errors.Errorf("unknown blob driver %q", conf.Driver)
	}
}

// FsStore keeps objects under a local directory root. Writes go to a
// temp file in the same directory and are renamed into place.
type FsStore struct {
	root string
}

func NewFsStore(root string) (*FsStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "create blob root")
	}
	return &FsStore{root: root}, nil
}

func (s *FsStore) abs(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", errors.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *FsStore) Put(_ context.Context, key string, r io.Reader) (int64, error) {
	path, err := s.abs(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, errors.Wrap(err, "create blob dir")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return 0, errors.Wrap(err, "create temp blob")
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, errors.Wrap(err, "write blob")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, errors.Wrap(err, "sync blob")
	}
	if err := tmp.Close(); err != nil {
		return 0, errors.Wrap(err, "close blob")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, errors.Wrap(err, "publish blob")
	}
	return size, nil
}

func (s *FsStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.abs(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *FsStore) Stat(_ context.Context, key string) (int64, error) {
	path, err := s.abs(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *FsStore) Delete(_ context.Context, key string) error {
	path, err := s.abs(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FsStore) DeletePrefix(_ context.Context, prefix string) error {
	path, err := s.abs(prefix)
	if err != nil {
		return err
	}
	return os.RemoveAll(path)
}

// PackageKey builds the key of an assembled package zip.
func PackageKey(projectUuid, packageUuid string) string {
	p := hexOf(projectUuid)
	k := hexOf(packageUuid)
	return fmt.Sprintf("packages/%s/%s/package_%s.zip", p, k, k)
}

// PayloadKey builds the key of a stored run payload.
func PayloadKey(projectUuid, payloadSuuid string) string {
	return fmt.Sprintf("payloads/%s/%s/payload.json", hexOf(projectUuid), payloadSuuid)
}

// RunDir is the per-run subtree that holds artifacts, result and log. The
// two leading shards spread runs over the filesystem.
func RunDir(runSuuid string) string {
	flat := strings.ReplaceAll(runSuuid, "-", "")
	return fmt.Sprintf("runs/%s/%s/%s", strings.ToLower(flat[:2]), strings.ToLower(flat[2:4]), runSuuid)
}

func ArtifactKey(runSuuid, artifactSuuid string) string {
	return RunDir(runSuuid) + "/artifacts/" + artifactSuuid + ".zip"
}

func ResultKey(runSuuid, resultSuuid string) string {
	return RunDir(runSuuid) + "/result/" + resultSuuid
}

func LogKey(runSuuid string) string {
	return RunDir(runSuuid) + "/log.json"
}

// hexOf strips the dashes of a uuid string.
func hexOf(u string) string {
	return strings.ReplaceAll(u, "-", "")
}

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

package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFsStorePutOpen(t *testing.T) {
	store, err := NewFsStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	size, err := store.Put(ctx, "a/b/c.txt", strings.NewReader("hello blob"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	rc, err := store.Open(ctx, "a/b/c.txt")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello blob", string(body))

	got, err := store.Stat(ctx, "a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)
}

func TestFsStoreDelete(t *testing.T) {
	store, err := NewFsStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Put(ctx, "runs/ab/cd/one", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "runs/ab/cd/two", strings.NewReader("y"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "runs/ab/cd/one"))
	_, err = store.Open(ctx, "runs/ab/cd/one")
	assert.Error(t, err)

	// deleting a missing key is not an error
	require.NoError(t, store.Delete(ctx, "runs/ab/cd/one"))

	require.NoError(t, store.DeletePrefix(ctx, "runs/ab"))
	_, err = store.Open(ctx, "runs/ab/cd/two")
	assert.Error(t, err)
}

func TestFsStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewFsStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Put(ctx, "../outside", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = store.Open(ctx, "/etc/passwd")
	assert.Error(t, err)
}

func TestKeyLayout(t *testing.T) {
	projectUuid := "3ba1b1cb-82a1-44c8-a8b4-2b1e99d28e6f"
	packageUuid := "90d1adc2-6833-4c9a-a54f-f21f9dbf0640"

	assert.Equal(t,
		"packages/3ba1b1cb82a144c8a8b42b1e99d28e6f/90d1adc268334c9aa54ff21f9dbf0640/package_90d1adc268334c9aa54ff21f9dbf0640.zip",
		PackageKey(projectUuid, packageUuid))

	assert.Equal(t,
		"payloads/3ba1b1cb82a144c8a8b42b1e99d28e6f/4PGi-Y4Zs-xGZB-E9GF/payload.json",
		PayloadKey(projectUuid, "4PGi-Y4Zs-xGZB-E9GF"))

	assert.Equal(t, "runs/4p/gi/4PGi-Y4Zs-xGZB-E9GF", RunDir("4PGi-Y4Zs-xGZB-E9GF"))
	assert.Equal(t, "runs/4p/gi/4PGi-Y4Zs-xGZB-E9GF/log.json", LogKey("4PGi-Y4Zs-xGZB-E9GF"))
	assert.Equal(t,
		"runs/4p/gi/4PGi-Y4Zs-xGZB-E9GF/artifacts/abcd-EFGH-1234-ijkl.zip",
		ArtifactKey("4PGi-Y4Zs-xGZB-E9GF", "abcd-EFGH-1234-ijkl"))
}

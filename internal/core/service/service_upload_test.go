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

package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
)

func md5hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func TestUpload_AssembleOutOfOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload, err := env.svcs.Upload.Begin(ctx, model.UploadParentPackage, "parent-1")
	require.NoError(t, err)

	parts := [][]byte{[]byte("alpha-"), []byte("beta-"), []byte("gamma")}
	// parts arrive out of order
	for _, n := range []int{3, 1, 2} {
		isLast := n == len(parts)
		_, err := env.svcs.Upload.PutPart(ctx, upload.SuuId, n, parts[n-1], md5hex(parts[n-1]), isLast)
		require.NoError(t, err)
	}

	full := []byte("alpha-beta-gamma")
	result, err := env.svcs.Upload.Complete(ctx, upload.SuuId, "assembled/blob", int64(len(full)), md5hex(full))
	require.NoError(t, err)
	assert.Equal(t, int64(len(full)), result.Size)
	assert.Equal(t, md5hex(full), result.Etag)

	rc, err := env.store.Open(ctx, "assembled/blob")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, full, body)

	// parts are garbage-collected after assembly
	_, err = env.store.Stat(ctx, "uploads/"+upload.SuuId+"/part_000001")
	assert.Error(t, err)
}

func TestUpload_PartEtagMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload, err := env.svcs.Upload.Begin(ctx, model.UploadParentArtifact, "run-1")
	require.NoError(t, err)

	_, err = env.svcs.Upload.PutPart(ctx, upload.SuuId, 1, []byte("data"), "deadbeef", true)
	require.Error(t, err)
	assert.Equal(t, apierror.Integrity, apierror.KindOf(err))
}

func TestUpload_DuplicatePart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload, err := env.svcs.Upload.Begin(ctx, model.UploadParentPackage, "parent-1")
	require.NoError(t, err)

	_, err = env.svcs.Upload.PutPart(ctx, upload.SuuId, 1, []byte("data"), "", false)
	require.NoError(t, err)
	_, err = env.svcs.Upload.PutPart(ctx, upload.SuuId, 1, []byte("data"), "", false)
	require.Error(t, err)
	assert.Equal(t, apierror.Conflict, apierror.KindOf(err))
}

func TestUpload_CompleteMissingPart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload, err := env.svcs.Upload.Begin(ctx, model.UploadParentPackage, "parent-1")
	require.NoError(t, err)

	_, err = env.svcs.Upload.PutPart(ctx, upload.SuuId, 1, []byte("one"), "", false)
	require.NoError(t, err)
	_, err = env.svcs.Upload.PutPart(ctx, upload.SuuId, 3, []byte("three"), "", true)
	require.NoError(t, err)

	_, err = env.svcs.Upload.Complete(ctx, upload.SuuId, "assembled/blob", 0, "")
	require.Error(t, err)
	assert.Equal(t, apierror.Incomplete, apierror.KindOf(err))
}

func TestUpload_CompleteWithoutLastFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload, err := env.svcs.Upload.Begin(ctx, model.UploadParentPackage, "parent-1")
	require.NoError(t, err)

	_, err = env.svcs.Upload.PutPart(ctx, upload.SuuId, 1, []byte("one"), "", false)
	require.NoError(t, err)

	_, err = env.svcs.Upload.Complete(ctx, upload.SuuId, "assembled/blob", 0, "")
	require.Error(t, err)
	assert.Equal(t, apierror.Incomplete, apierror.KindOf(err))
}

func TestUpload_CompleteTotalSizeMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload, err := env.svcs.Upload.Begin(ctx, model.UploadParentPackage, "parent-1")
	require.NoError(t, err)
	_, err = env.svcs.Upload.PutPart(ctx, upload.SuuId, 1, []byte("payload"), "", true)
	require.NoError(t, err)

	_, err = env.svcs.Upload.Complete(ctx, upload.SuuId, "assembled/blob", 999, "")
	require.Error(t, err)
	assert.Equal(t, apierror.Integrity, apierror.KindOf(err))
}

func TestUpload_CompleteIsExclusive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload, err := env.svcs.Upload.Begin(ctx, model.UploadParentPackage, "parent-1")
	require.NoError(t, err)
	_, err = env.svcs.Upload.PutPart(ctx, upload.SuuId, 1, []byte("payload"), "", true)
	require.NoError(t, err)

	_, err = env.svcs.Upload.Complete(ctx, upload.SuuId, "assembled/blob", 0, "")
	require.NoError(t, err)

	_, err = env.svcs.Upload.Complete(ctx, upload.SuuId, "assembled/blob", 0, "")
	require.Error(t, err)
	assert.Equal(t, apierror.Conflict, apierror.KindOf(err))
}

func TestUpload_Abort(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload, err := env.svcs.Upload.Begin(ctx, model.UploadParentPackage, "parent-1")
	require.NoError(t, err)
	part, err := env.svcs.Upload.PutPart(ctx, upload.SuuId, 1, []byte("payload"), "", true)
	require.NoError(t, err)

	require.NoError(t, env.svcs.Upload.Abort(ctx, upload.SuuId))

	_, err = env.store.Stat(ctx, part.FilePath)
	assert.Error(t, err)

	aborted, err := env.svcs.Upload.Get(ctx, upload.SuuId)
	require.NoError(t, err)
	assert.Equal(t, model.UploadStatusAborted, aborted.Status)

	// the session is closed for further parts
	_, err = env.svcs.Upload.PutPart(ctx, upload.SuuId, 2, []byte("more"), "", true)
	require.Error(t, err)
	assert.Equal(t, apierror.Conflict, apierror.KindOf(err))
}

func TestUpload_BeginUnknownParentKind(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svcs.Upload.Begin(context.Background(), "snapshot", "parent-1")
	require.Error(t, err)
	assert.Equal(t, apierror.InvalidInput, apierror.KindOf(err))
}

func TestSniffContentType(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want string
	}{
		{"json object", []byte(`{"a": 1}`), "application/json"},
		{"json array", []byte(`[1, 2, 3]`), "application/json"},
		{"plain text", []byte("hello world"), "text/plain; charset=utf-8"},
		{"zip", []byte("PK\x03\x04rest-of-archive"), "application/zip"},
		{"empty", nil, "text/plain; charset=utf-8"},
		{"large json truncated by the sniff window", largeJSONHead(512), "application/json"},
		{"truncated mid string literal", []byte(`{"name": "unterminat`), "application/json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SniffContentType(tt.head))
		})
	}
}

// largeJSONHead builds a JSON document well past the sniff window and
// returns only its first window bytes, the way Complete captures them.
func largeJSONHead(window int) []byte {
	var sb strings.Builder
	sb.WriteString(`{"rows": [`)
	for i := 0; sb.Len() < window*3; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, `{"index": %d, "value": "payload"}`, i)
	}
	sb.WriteString("]}")
	return []byte(sb.String())[:window]
}

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
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/pkg/blob"
	"github.com/askanna-io/runcore/pkg/log"
	"github.com/askanna-io/runcore/pkg/metrics"
	"gorm.io/gorm"
)

// UploadService implements resumable chunked uploads. Parts arrive in any
// order; complete assembles them into one immutable blob at a key the
// owning service chooses.
type UploadService struct {
	uploadRepo repo.IUploadRepository
	store      blob.Store
}

func NewUploadService(uploadRepo repo.IUploadRepository, store blob.Store) *UploadService {
	return &UploadService{uploadRepo: uploadRepo, store: store}
}

func partKey(uploadSuuid string, partNumber int) string {
	return fmt.Sprintf("uploads/%s/part_%06d", uploadSuuid, partNumber)
}

// Begin reserves an upload session for a parent object.
func (us *UploadService) Begin(ctx context.Context, parentKind, parentId string) (*model.Upload, error) {
	switch parentKind {
	case model.UploadParentPackage, model.UploadParentArtifact, model.UploadParentResult:
	default:
		return nil, apierror.E(apierror.InvalidInput, "unknown upload parent kind %q", parentKind)
	}

	upload := &model.Upload{
		ParentKind: parentKind,
		ParentId:   parentId,
		Status:     model.UploadStatusOpen,
	}
	if err := us.uploadRepo.Create(ctx, upload); err != nil {
		log.Errorw("failed to create upload", "parentKind", parentKind, "parentId", parentId, "error", err)
		return nil, apierror.Wrap(apierror.Internal, err, "create upload")
	}
	return upload, nil
}

// PutPart stores one part of an open upload. A repeated part number is a
// conflict, a mismatched etag an integrity failure.
func (us *UploadService) PutPart(ctx context.Context, uploadSuuid string, partNumber int, data []byte, expectedEtag string, isLast bool) (*model.ChunkPart, error) {
	if partNumber < 1 {
		return nil, apierror.E(apierror.InvalidInput, "part number must be >= 1, got %d", partNumber)
	}

	upload, err := us.getOpen(ctx, uploadSuuid)
	if err != nil {
		return nil, err
	}

	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])
	if expectedEtag != "" && !strings.EqualFold(expectedEtag, etag) {
		return nil, apierror.E(apierror.Integrity, "part %d etag mismatch: expected %s, got %s", partNumber, expectedEtag, etag)
	}

	if _, err := us.uploadRepo.GetPart(ctx, upload.SuuId, partNumber); err == nil {
		return nil, apierror.E(apierror.Conflict, "part %d already uploaded", partNumber)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierror.Wrap(apierror.Internal, err, "check part")
	}

	key := partKey(upload.SuuId, partNumber)
	if _, err := us.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		log.Errorw("failed to store upload part", "upload", upload.SuuId, "part", partNumber, "error", err)
		return nil, apierror.Wrap(storeErrKind(err), err, "store part")
	}

	part := &model.ChunkPart{
		UploadId:   upload.SuuId,
		PartNumber: partNumber,
		Size:       int64(len(data)),
		Etag:       etag,
		IsLast:     isLast,
		FilePath:   key,
		CreatedAt:  time.Now().UTC(),
	}
	if err := us.uploadRepo.CreatePart(ctx, part); err != nil {
		// The unique index on (upload, part number) decides races.
		return nil, apierror.Wrap(apierror.Conflict, err, "register part")
	}

	metrics.UploadParts.Inc()
	return part, nil
}

// CompleteResult describes the assembled blob.
type CompleteResult struct {
	Size        int64
	Etag        string
	ContentType string
}

// Complete assembles the parts in part-number order into targetKey. At most
// one caller per upload succeeds; the blob becomes visible only after the
// full concatenation is durable.
func (us *UploadService) Complete(ctx context.Context, uploadSuuid, targetKey string, totalSize int64, totalEtag string) (*CompleteResult, error) {
	upload, err := us.getOpen(ctx, uploadSuuid)
	if err != nil {
		return nil, err
	}

	parts, err := us.uploadRepo.ListParts(ctx, upload.SuuId)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "list parts")
	}
	if err := validateParts(parts); err != nil {
		return nil, err
	}

	readers := make([]io.Reader, 0, len(parts))
	closers := make([]io.Closer, 0, len(parts))
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	var assembled int64
	for _, part := range parts {
		rc, err := us.store.Open(ctx, part.FilePath)
		if err != nil {
			return nil, apierror.Wrap(apierror.Internal, err, "open part")
		}
		closers = append(closers, rc)
		readers = append(readers, rc)
		assembled += part.Size
	}

	if totalSize > 0 && totalSize != assembled {
		return nil, apierror.E(apierror.Integrity, "size mismatch: expected %d, assembled %d", totalSize, assembled)
	}

	hash := md5.New()
	var head bytes.Buffer
	body := io.TeeReader(io.MultiReader(readers...), io.MultiWriter(hash, capWriter{&head, 512}))

	size, err := us.store.Put(ctx, targetKey, body)
	if err != nil {
		log.Errorw("failed to assemble upload", "upload", upload.SuuId, "target", targetKey, "error", err)
		return nil, apierror.Wrap(storeErrKind(err), err, "assemble blob")
	}

	etag := hex.EncodeToString(hash.Sum(nil))
	if totalEtag != "" && !strings.EqualFold(totalEtag, etag) {
		us.store.Delete(ctx, targetKey)
		return nil, apierror.E(apierror.Integrity, "etag mismatch: expected %s, got %s", totalEtag, etag)
	}

	now := time.Now().UTC()
	won, err := us.uploadRepo.CompleteExclusive(ctx, upload.SuuId, map[string]any{
		"total_size":   size,
		"total_etag":   etag,
		"completed_at": now,
	})
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "complete upload")
	}
	if !won {
		us.store.Delete(ctx, targetKey)
		return nil, apierror.E(apierror.Conflict, "upload %s already completed or aborted", upload.SuuId)
	}

	if err := us.cleanupParts(ctx, upload.SuuId, parts); err != nil {
		log.Warnw("failed to garbage-collect upload parts", "upload", upload.SuuId, "error", err)
	}

	return &CompleteResult{
		Size:        size,
		Etag:        etag,
		ContentType: SniffContentType(head.Bytes()),
	}, nil
}

// Abort drops an open upload and its stored parts.
func (us *UploadService) Abort(ctx context.Context, uploadSuuid string) error {
	upload, err := us.getOpen(ctx, uploadSuuid)
	if err != nil {
		return err
	}

	parts, err := us.uploadRepo.ListParts(ctx, upload.SuuId)
	if err != nil {
		return apierror.Wrap(apierror.Internal, err, "list parts")
	}
	if err := us.cleanupParts(ctx, upload.SuuId, parts); err != nil {
		return apierror.Wrap(apierror.Internal, err, "drop parts")
	}
	if err := us.uploadRepo.Update(ctx, upload.SuuId, map[string]any{"status": model.UploadStatusAborted}); err != nil {
		return apierror.Wrap(apierror.Internal, err, "abort upload")
	}
	return nil
}

// Get returns an upload session by suuid.
func (us *UploadService) Get(ctx context.Context, uploadSuuid string) (*model.Upload, error) {
	upload, err := us.uploadRepo.Get(ctx, uploadSuuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.E(apierror.NotFound, "upload %s not found", uploadSuuid)
		}
		return nil, apierror.Wrap(apierror.Internal, err, "get upload")
	}
	return upload, nil
}

// storeErrKind tags blob writes that ran out of deadline as timeouts.
func storeErrKind(err error) apierror.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return apierror.Timeout
	}
	return apierror.Internal
}

func (us *UploadService) getOpen(ctx context.Context, uploadSuuid string) (*model.Upload, error) {
	upload, err := us.Get(ctx, uploadSuuid)
	if err != nil {
		return nil, err
	}
	if upload.Status != model.UploadStatusOpen {
		return nil, apierror.E(apierror.Conflict, "upload %s is %s", uploadSuuid, upload.Status)
	}
	return upload, nil
}

func (us *UploadService) cleanupParts(ctx context.Context, uploadSuuid string, parts []*model.ChunkPart) error {
	for _, part := range parts {
		if err := us.store.Delete(ctx, part.FilePath); err != nil {
			return err
		}
	}
	if err := us.store.DeletePrefix(ctx, "uploads/"+uploadSuuid); err != nil {
		return err
	}
	return us.uploadRepo.DeleteParts(ctx, uploadSuuid)
}

// validateParts checks the part set is contiguous from 1 and exactly the
// highest part carries the last flag.
func validateParts(parts []*model.ChunkPart) error {
	if len(parts) == 0 {
		return apierror.E(apierror.Incomplete, "upload has no parts")
	}

	lastFlagged := 0
	for i, part := range parts {
		if part.PartNumber != i+1 {
			return apierror.E(apierror.Incomplete, "missing part %d", i+1)
		}
		if part.IsLast {
			lastFlagged++
			if part.PartNumber != len(parts) {
				return apierror.E(apierror.Incomplete, "part %d flagged last but %d parts present", part.PartNumber, len(parts))
			}
		}
	}
	if lastFlagged != 1 {
		return apierror.E(apierror.Incomplete, "expected exactly one last part, found %d", lastFlagged)
	}
	return nil
}

// SniffContentType detects the media type of a blob from its head
// window. A text/plain detection whose head starts a JSON document is
// upgraded to application/json; the window may cut the document off,
// so a prefix check is used rather than full validation.
func SniffContentType(head []byte) string {
	detected := http.DetectContentType(head)
	if strings.HasPrefix(detected, "text/plain") && jsonPrefix(bytes.TrimSpace(head)) {
		return "application/json"
	}
	return detected
}

// jsonPrefix reports whether data is a complete JSON document or the
// beginning of one cut off mid-stream.
func jsonPrefix(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		if _, err := dec.Token(); err != nil {
			return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		}
	}
}

// capWriter copies at most n bytes into the buffer and discards the rest.
type capWriter struct {
	buf *bytes.Buffer
	n   int
}

func (w capWriter) Write(p []byte) (int, error) {
	if remain := w.n - w.buf.Len(); remain > 0 {
		if len(p) > remain {
			w.buf.Write(p[:remain])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}

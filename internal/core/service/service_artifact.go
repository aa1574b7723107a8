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
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/pkg/blob"
	"github.com/askanna-io/runcore/pkg/log"
	"gorm.io/gorm"
)

// ArtifactService stores the write-once binary outputs of runs: zipped
// artifacts and the single result file.
type ArtifactService struct {
	runRepo   repo.IRunRepository
	uploadSvc *UploadService
	store     blob.Store
}

func NewArtifactService(runRepo repo.IRunRepository, uploadSvc *UploadService, store blob.Store) *ArtifactService {
	return &ArtifactService{runRepo: runRepo, uploadSvc: uploadSvc, store: store}
}

// BeginArtifact registers an empty artifact for a run and opens its upload.
func (as *ArtifactService) BeginArtifact(ctx context.Context, runSuuid string) (*model.RunArtifact, *model.Upload, error) {
	if _, err := as.getRun(ctx, runSuuid); err != nil {
		return nil, nil, err
	}

	artifact := &model.RunArtifact{RunId: runSuuid}
	if err := as.runRepo.CreateArtifact(ctx, artifact); err != nil {
		return nil, nil, apierror.Wrap(apierror.Internal, err, "create artifact")
	}
	upload, err := as.uploadSvc.Begin(ctx, model.UploadParentArtifact, artifact.SuuId)
	if err != nil {
		return nil, nil, err
	}
	return artifact, upload, nil
}

// CompleteArtifact assembles the artifact zip and records its directory and
// file counts from the central directory.
func (as *ArtifactService) CompleteArtifact(ctx context.Context, uploadSuuid string, totalSize int64, totalEtag string) (*model.RunArtifact, error) {
	upload, err := as.uploadSvc.Get(ctx, uploadSuuid)
	if err != nil {
		return nil, err
	}
	if upload.ParentKind != model.UploadParentArtifact {
		return nil, apierror.E(apierror.InvalidInput, "upload %s does not belong to an artifact", uploadSuuid)
	}
	artifact, err := as.GetArtifact(ctx, upload.ParentId)
	if err != nil {
		return nil, err
	}

	key := blob.ArtifactKey(artifact.RunId, artifact.SuuId)
	result, err := as.uploadSvc.Complete(ctx, uploadSuuid, key, totalSize, totalEtag)
	if err != nil {
		return nil, err
	}

	countDir, countFiles, err := as.countZipEntries(ctx, key)
	if err != nil {
		log.Warnw("failed to inspect artifact archive", "artifact", artifact.SuuId, "error", err)
	}

	now := time.Now().UTC()
	err = as.runRepo.UpdateArtifact(ctx, artifact.SuuId, map[string]any{
		"size":               result.Size,
		"count_dir":          countDir,
		"count_files":        countFiles,
		"blob_path":          key,
		"finished_upload_at": now,
	})
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "finish artifact")
	}
	artifact.Size = result.Size
	artifact.CountDir = countDir
	artifact.CountFiles = countFiles
	artifact.BlobPath = key
	artifact.FinishedUploadAt = &now
	return artifact, nil
}

func (as *ArtifactService) GetArtifact(ctx context.Context, suuid string) (*model.RunArtifact, error) {
	artifact, err := as.runRepo.GetArtifact(ctx, suuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.E(apierror.NotFound, "artifact %s not found", suuid)
		}
		return nil, apierror.Wrap(apierror.Internal, err, "get artifact")
	}
	return artifact, nil
}

func (as *ArtifactService) ListArtifacts(ctx context.Context, runSuuid string) ([]*model.RunArtifact, error) {
	return as.runRepo.ListArtifacts(ctx, runSuuid)
}

// DownloadArtifact streams the artifact zip.
func (as *ArtifactService) DownloadArtifact(ctx context.Context, suuid string) (io.ReadCloser, *model.RunArtifact, error) {
	artifact, err := as.GetArtifact(ctx, suuid)
	if err != nil {
		return nil, nil, err
	}
	if artifact.FinishedUploadAt == nil || artifact.IsDeleted() {
		return nil, nil, apierror.E(apierror.NotFound, "artifact %s not available", suuid)
	}
	rc, err := as.store.Open(ctx, artifact.BlobPath)
	if err != nil {
		return nil, nil, apierror.Wrap(apierror.Internal, err, "open artifact blob")
	}
	return rc, artifact, nil
}

// BeginResult registers the single result of a run and opens its upload.
func (as *ArtifactService) BeginResult(ctx context.Context, runSuuid, name string) (*model.RunResult, *model.Upload, error) {
	if _, err := as.getRun(ctx, runSuuid); err != nil {
		return nil, nil, err
	}
	if existing, err := as.runRepo.GetResultByRun(ctx, runSuuid); err == nil && existing != nil {
		return nil, nil, apierror.E(apierror.Conflict, "run %s already has a result", runSuuid)
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apierror.Wrap(apierror.Internal, err, "check result")
	}

	result := &model.RunResult{
		RunId:     runSuuid,
		Name:      name,
		Extension: strings.TrimPrefix(path.Ext(name), "."),
	}
	if err := as.runRepo.CreateResult(ctx, result); err != nil {
		return nil, nil, apierror.Wrap(apierror.Internal, err, "create result")
	}
	upload, err := as.uploadSvc.Begin(ctx, model.UploadParentResult, result.SuuId)
	if err != nil {
		return nil, nil, err
	}
	return result, upload, nil
}

// CompleteResult assembles the result file and sniffs its content type.
func (as *ArtifactService) CompleteResult(ctx context.Context, uploadSuuid string, totalSize int64, totalEtag string) (*model.RunResult, error) {
	upload, err := as.uploadSvc.Get(ctx, uploadSuuid)
	if err != nil {
		return nil, err
	}
	if upload.ParentKind != model.UploadParentResult {
		return nil, apierror.E(apierror.InvalidInput, "upload %s does not belong to a result", uploadSuuid)
	}

	result, err := as.runRepo.GetResultBySuuid(ctx, upload.ParentId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.E(apierror.NotFound, "result %s not found", upload.ParentId)
		}
		return nil, apierror.Wrap(apierror.Internal, err, "get result")
	}

	key := blob.ResultKey(result.RunId, result.SuuId)
	completed, err := as.uploadSvc.Complete(ctx, uploadSuuid, key, totalSize, totalEtag)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = as.runRepo.UpdateResult(ctx, result.SuuId, map[string]any{
		"size":               completed.Size,
		"content_type":       completed.ContentType,
		"blob_path":          key,
		"finished_upload_at": now,
	})
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "finish result")
	}
	result.Size = completed.Size
	result.ContentType = completed.ContentType
	result.BlobPath = key
	result.FinishedUploadAt = &now
	return result, nil
}

// GetResult returns the result of a run.
func (as *ArtifactService) GetResult(ctx context.Context, runSuuid string) (*model.RunResult, error) {
	result, err := as.runRepo.GetResultByRun(ctx, runSuuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.E(apierror.NotFound, "run %s has no result", runSuuid)
		}
		return nil, apierror.Wrap(apierror.Internal, err, "get result")
	}
	return result, nil
}

// DownloadResult streams the result file.
func (as *ArtifactService) DownloadResult(ctx context.Context, runSuuid string) (io.ReadCloser, *model.RunResult, error) {
	result, err := as.GetResult(ctx, runSuuid)
	if err != nil {
		return nil, nil, err
	}
	if result.FinishedUploadAt == nil || result.IsDeleted() {
		return nil, nil, apierror.E(apierror.NotFound, "run %s result not available", runSuuid)
	}
	rc, err := as.store.Open(ctx, result.BlobPath)
	if err != nil {
		return nil, nil, apierror.Wrap(apierror.Internal, err, "open result blob")
	}
	return rc, result, nil
}

func (as *ArtifactService) getRun(ctx context.Context, runSuuid string) (*model.Run, error) {
	run, err := as.runRepo.Get(ctx, runSuuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.E(apierror.NotFound, "run %s not found", runSuuid)
		}
		return nil, apierror.Wrap(apierror.Internal, err, "get run")
	}
	return run, nil
}

// countZipEntries scans the archive's central directory without extracting.
// Directories are explicit dir entries plus those implied by file paths.
func (as *ArtifactService) countZipEntries(ctx context.Context, key string) (int, int, error) {
	rc, err := as.store.Open(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return 0, 0, err
	}
	archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return 0, 0, err
	}

	dirs := make(map[string]struct{})
	files := 0
	for _, file := range archive.File {
		name := strings.TrimSuffix(file.Name, "/")
		if strings.HasSuffix(file.Name, "/") {
			dirs[name] = struct{}{}
			continue
		}
		files++
		for dir := path.Dir(name); dir != "." && dir != "/"; dir = path.Dir(dir) {
			dirs[dir] = struct{}{}
		}
	}
	return len(dirs), files, nil
}

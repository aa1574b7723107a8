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
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/pkg/blob"
	"github.com/askanna-io/runcore/pkg/cronspec"
	"github.com/askanna-io/runcore/pkg/log"
	"go.yaml.in/yaml/v3"
	"gorm.io/gorm"
)

// manifestName is the configuration file expected at the archive root.
const manifestName = "askanna.yml"

type manifestEnvironment struct {
	Image       string `yaml:"image"`
	Credentials *struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"credentials"`
}

type manifestJob struct {
	Environment   *manifestEnvironment `yaml:"environment"`
	Schedule      any                  `yaml:"schedule"`
	Timezone      string               `yaml:"timezone"`
	Notifications map[string]any       `yaml:"notifications"`
}

type manifest struct {
	Jobs map[string]manifestJob `yaml:"jobs"`
}

// PackageService stores zipped project snapshots and projects the embedded
// manifest forward into job definitions and schedules.
type PackageService struct {
	packageRepo   repo.IPackageRepository
	jobRepo       repo.IJobRepository
	workspaceRepo repo.IWorkspaceRepository
	uploadSvc     *UploadService
	store         blob.Store
}

func NewPackageService(
	packageRepo repo.IPackageRepository,
	jobRepo repo.IJobRepository,
	workspaceRepo repo.IWorkspaceRepository,
	uploadSvc *UploadService,
	store blob.Store,
) *PackageService {
	return &PackageService{
		packageRepo:   packageRepo,
		jobRepo:       jobRepo,
		workspaceRepo: workspaceRepo,
		uploadSvc:     uploadSvc,
		store:         store,
	}
}

// Create registers a package in uploading state and opens its upload session.
func (ps *PackageService) Create(ctx context.Context, projectSuuid, createdBy, filename string) (*model.Package, *model.Upload, error) {
	active, err := ps.workspaceRepo.IsProjectChainActive(ctx, projectSuuid)
	if err != nil {
		return nil, nil, apierror.Wrap(apierror.Internal, err, "check project")
	}
	if !active {
		return nil, nil, apierror.E(apierror.NotFound, "project %s not found", projectSuuid)
	}

	pkg := &model.Package{
		ProjectId:        projectSuuid,
		CreatedById:      createdBy,
		OriginalFilename: filename,
	}
	if err := ps.packageRepo.Create(ctx, pkg); err != nil {
		log.Errorw("failed to create package", "project", projectSuuid, "error", err)
		return nil, nil, apierror.Wrap(apierror.Internal, err, "create package")
	}

	upload, err := ps.uploadSvc.Begin(ctx, model.UploadParentPackage, pkg.SuuId)
	if err != nil {
		return nil, nil, err
	}
	return pkg, upload, nil
}

// Complete assembles the package blob and ingests its manifest.
func (ps *PackageService) Complete(ctx context.Context, uploadSuuid string, totalSize int64, totalEtag string) (*model.Package, error) {
	upload, err := ps.uploadSvc.Get(ctx, uploadSuuid)
	if err != nil {
		return nil, err
	}
	if upload.ParentKind != model.UploadParentPackage {
		return nil, apierror.E(apierror.InvalidInput, "upload %s does not belong to a package", uploadSuuid)
	}

	pkg, err := ps.Get(ctx, upload.ParentId)
	if err != nil {
		return nil, err
	}
	project, err := ps.workspaceRepo.GetProject(ctx, pkg.ProjectId)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "get project")
	}

	key := blob.PackageKey(project.Uuid, pkg.Uuid)
	result, err := ps.uploadSvc.Complete(ctx, uploadSuuid, key, totalSize, totalEtag)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = ps.packageRepo.Update(ctx, pkg.SuuId, map[string]any{
		"size":               result.Size,
		"blob_path":          key,
		"finished_upload_at": now,
	})
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "finish package")
	}
	pkg.Size = result.Size
	pkg.BlobPath = key
	pkg.FinishedUploadAt = &now

	if err := ps.ingestManifest(ctx, pkg); err != nil {
		// A broken manifest leaves the package usable without jobs.
		log.Warnw("package manifest not ingested", "package", pkg.SuuId, "error", err)
	}
	return pkg, nil
}

// Abort cancels the package upload session.
func (ps *PackageService) Abort(ctx context.Context, uploadSuuid string) error {
	return ps.uploadSvc.Abort(ctx, uploadSuuid)
}

func (ps *PackageService) Get(ctx context.Context, suuid string) (*model.Package, error) {
	pkg, err := ps.packageRepo.Get(ctx, suuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.E(apierror.NotFound, "package %s not found", suuid)
		}
		return nil, apierror.Wrap(apierror.Internal, err, "get package")
	}
	return pkg, nil
}

func (ps *PackageService) List(ctx context.Context, query *repo.PackageQuery) ([]*model.Package, int64, error) {
	return ps.packageRepo.List(ctx, query)
}

// Delete soft-deletes a package. The reaper removes the blob later.
func (ps *PackageService) Delete(ctx context.Context, suuid string) error {
	if _, err := ps.Get(ctx, suuid); err != nil {
		return err
	}
	return ps.packageRepo.SoftDelete(ctx, suuid)
}

// Download streams the assembled package zip.
func (ps *PackageService) Download(ctx context.Context, suuid string) (io.ReadCloser, *model.Package, error) {
	pkg, err := ps.Get(ctx, suuid)
	if err != nil {
		return nil, nil, err
	}
	if !pkg.IsAvailable() {
		return nil, nil, apierror.E(apierror.NotFound, "package %s not available", suuid)
	}
	rc, err := ps.store.Open(ctx, pkg.BlobPath)
	if err != nil {
		return nil, nil, apierror.Wrap(apierror.Internal, err, "open package blob")
	}
	return rc, pkg, nil
}

// scheduleSpec is one canonicalized schedule candidate from the manifest.
type scheduleSpec struct {
	raw       any
	canonical string
	timezone  string
}

// ingestManifest parses the archive-root manifest, upserts job
// definitions and schedules for the owning project, and retires
// definitions the manifest dropped.
func (ps *PackageService) ingestManifest(ctx context.Context, pkg *model.Package) error {
	mf, err := ps.readManifest(ctx, pkg)
	if err != nil {
		return err
	}
	if mf == nil || len(mf.Jobs) == 0 {
		return nil
	}

	for name, job := range mf.Jobs {
		image, username, password := "", "", ""
		if job.Environment != nil {
			image = job.Environment.Image
			if job.Environment.Credentials != nil {
				username = job.Environment.Credentials.Username
				password = job.Environment.Credentials.Password
			}
		}
		timezone := job.Timezone
		if timezone == "" {
			timezone = "UTC"
		}
		if _, err := time.LoadLocation(timezone); err != nil {
			log.Warnw("job timezone not recognized, falling back to UTC",
				"package", pkg.SuuId, "job", name, "timezone", timezone)
			timezone = "UTC"
		}

		jobDef, err := ps.jobRepo.UpsertJobDefinition(ctx, &model.JobDefinition{
			ProjectId:           pkg.ProjectId,
			Name:                name,
			EnvironmentImage:    image,
			EnvironmentUsername: username,
			EnvironmentPassword: password,
			Timezone:            timezone,
		})
		if err != nil {
			return err
		}

		specs := parseScheduleSpecs(pkg.SuuId, name, job.Schedule, timezone)
		if err := ps.replaceSchedules(ctx, jobDef, pkg.CreatedById, specs); err != nil {
			return err
		}
	}
	return ps.pruneRemovedJobs(ctx, pkg.ProjectId, mf.Jobs)
}

// pruneRemovedJobs retires definitions the newest manifest no longer
// declares. Their schedules stop firing immediately; a definition that
// runs still reference is kept for history.
func (ps *PackageService) pruneRemovedJobs(ctx context.Context, projectId string, jobs map[string]manifestJob) error {
	defs, err := ps.jobRepo.ListJobDefinitions(ctx, projectId)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if _, ok := jobs[def.Name]; ok {
			continue
		}
		schedules, err := ps.jobRepo.ListSchedules(ctx, def.SuuId)
		if err != nil {
			return err
		}
		for _, schedule := range schedules {
			if err := ps.jobRepo.DeleteSchedule(ctx, schedule.SuuId); err != nil {
				return err
			}
		}
		runs, err := ps.jobRepo.CountRuns(ctx, def.SuuId)
		if err != nil {
			return err
		}
		if runs > 0 {
			log.Infow("job definition kept for run history", "project", projectId, "job", def.Name, "runs", runs)
			continue
		}
		if err := ps.jobRepo.DeleteJobDefinition(ctx, def.SuuId); err != nil {
			return err
		}
	}
	return nil
}

func (ps *PackageService) readManifest(ctx context.Context, pkg *model.Package) (*manifest, error) {
	rc, err := ps.store.Open(ctx, pkg.BlobPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, err
	}

	for _, file := range archive.File {
		if file.Name != manifestName {
			continue
		}
		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()

		raw, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		var mf manifest
		if err := yaml.Unmarshal(raw, &mf); err != nil {
			return nil, err
		}
		return &mf, nil
	}
	return nil, nil
}

// parseScheduleSpecs canonicalizes the schedule entry of one job. Invalid
// definitions are skipped with a warning, never failing ingestion.
func parseScheduleSpecs(packageSuuid, jobName string, raw any, timezone string) []scheduleSpec {
	if raw == nil {
		return nil
	}
	entries, ok := raw.([]any)
	if !ok {
		entries = []any{raw}
	}

	var specs []scheduleSpec
	for _, entry := range entries {
		canonical, err := cronspec.Canonicalize(entry)
		if err != nil {
			log.Warnw("schedule definition skipped",
				"package", packageSuuid, "job", jobName, "definition", entry, "error", err)
			continue
		}
		specs = append(specs, scheduleSpec{raw: entry, canonical: canonical, timezone: timezone})
	}
	return specs
}

// replaceSchedules swaps the job's schedules for the manifest's set. A
// schedule whose canonical cron and timezone match an old one keeps its
// last_run_at; everything gets fresh identifiers.
func (ps *PackageService) replaceSchedules(ctx context.Context, jobDef *model.JobDefinition, membershipId string, specs []scheduleSpec) error {
	existing, err := ps.jobRepo.ListSchedules(ctx, jobDef.SuuId)
	if err != nil {
		return err
	}

	type tuple struct{ cron, tz string }
	preserved := make(map[tuple]*time.Time, len(existing))
	for _, old := range existing {
		key := tuple{old.CronDefinition, old.CronTimezone}
		if old.LastRunAt != nil {
			preserved[key] = old.LastRunAt
		} else if _, ok := preserved[key]; !ok {
			preserved[key] = nil
		}
	}

	now := time.Now().UTC()
	for _, spec := range specs {
		next, err := cronspec.Next(spec.canonical, spec.timezone, now)
		if err != nil {
			return err
		}
		rawJSON, err := json.Marshal(spec.raw)
		if err != nil {
			return err
		}

		schedule := &model.Schedule{
			JobDefinitionId: jobDef.SuuId,
			MembershipId:    membershipId,
			RawDefinition:   rawJSON,
			CronDefinition:  spec.canonical,
			CronTimezone:    spec.timezone,
			NextRunAt:       &next,
		}
		if last, ok := preserved[tuple{spec.canonical, spec.timezone}]; ok {
			schedule.LastRunAt = last
		}
		if err := ps.jobRepo.CreateSchedule(ctx, schedule); err != nil {
			return err
		}
	}

	for _, old := range existing {
		if err := ps.jobRepo.DeleteSchedule(ctx, old.SuuId); err != nil {
			return err
		}
	}
	return nil
}

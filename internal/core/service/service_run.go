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
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/pkg/blob"
	"github.com/askanna-io/runcore/pkg/log"
	"github.com/askanna-io/runcore/pkg/metrics"
	"github.com/askanna-io/runcore/pkg/suuid"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// failureLogMissingPackage is written when a pending run has no code
// package to execute.
var failureLogMissingPackage = []string{
	"Could not find code package",
	"",
	"Run failed",
}

// Canceller terminates the container of a running run, best effort.
type Canceller interface {
	Cancel(runSuuid string)
}

// RunService is the run lifecycle controller and the only writer of run
// status fields.
type RunService struct {
	runRepo       repo.IRunRepository
	jobRepo       repo.IJobRepository
	packageRepo   repo.IPackageRepository
	workspaceRepo repo.IWorkspaceRepository
	store         blob.Store

	canceller Canceller
}

func NewRunService(
	runRepo repo.IRunRepository,
	jobRepo repo.IJobRepository,
	packageRepo repo.IPackageRepository,
	workspaceRepo repo.IWorkspaceRepository,
	store blob.Store,
) *RunService {
	return &RunService{
		runRepo:       runRepo,
		jobRepo:       jobRepo,
		packageRepo:   packageRepo,
		workspaceRepo: workspaceRepo,
		store:         store,
	}
}

// SetCanceller wires the executor's termination hook.
func (rs *RunService) SetCanceller(c Canceller) {
	rs.canceller = c
}

// CreateRequest creates one run.
type CreateRequest struct {
	JobDefinitionSuuid string
	Trigger            string
	MembershipId       string
	ScheduleId         string
	// Payload is the inline JSON input; an empty payload is stored when nil.
	Payload []byte
}

// Create registers a pending run with its payload and an empty log record.
func (rs *RunService) Create(ctx context.Context, req *CreateRequest) (*model.Run, error) {
	jobDef, err := rs.jobRepo.GetJobDefinition(ctx, req.JobDefinitionSuuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.E(apierror.NotFound, "job %s not found", req.JobDefinitionSuuid)
		}
		return nil, apierror.Wrap(apierror.Internal, err, "get job definition")
	}

	active, err := rs.workspaceRepo.IsProjectChainActive(ctx, jobDef.ProjectId)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "check project")
	}
	if !active {
		return nil, apierror.E(apierror.NotFound, "job %s not found", req.JobDefinitionSuuid)
	}

	project, err := rs.workspaceRepo.GetProject(ctx, jobDef.ProjectId)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "get project")
	}

	// The newest completed package is the code snapshot. Its absence is
	// not an error here: the run fails on dispatch.
	packageId := ""
	if pkg, err := rs.packageRepo.LatestCompleted(ctx, jobDef.ProjectId); err == nil && pkg != nil {
		packageId = pkg.SuuId
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierror.Wrap(apierror.Internal, err, "find package")
	}

	body := req.Payload
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	} else if !json.Valid(body) {
		return nil, apierror.E(apierror.InvalidInput, "payload is not valid JSON")
	}

	payloadUuid := uuid.New()
	payload := &model.Payload{
		JobDefinitionId: jobDef.SuuId,
		ProjectId:       jobDef.ProjectId,
		Size:            int64(len(body)),
		Lines:           bytes.Count(body, []byte("\n")) + 1,
	}
	payload.Uuid = payloadUuid.String()
	payload.SuuId = suuid.FromUUID(payloadUuid)
	payload.BlobPath = blob.PayloadKey(project.Uuid, payload.SuuId)
	if err := rs.jobRepo.CreatePayload(ctx, payload); err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "create payload")
	}
	if _, err := rs.store.Put(ctx, payload.BlobPath, bytes.NewReader(body)); err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "store payload")
	}

	now := time.Now().UTC()
	run := &model.Run{
		JobDefinitionId: jobDef.SuuId,
		ProjectId:       jobDef.ProjectId,
		PackageId:       packageId,
		PayloadId:       payload.SuuId,
		MembershipId:    req.MembershipId,
		ScheduleId:      req.ScheduleId,
		Status:          model.RunStatusPending,
		Trigger:         req.Trigger,
		SubmittedAt:     &now,
	}
	if err := rs.runRepo.Create(ctx, run); err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "create run")
	}

	if err := rs.runRepo.CreateLog(ctx, &model.RunLog{RunId: run.SuuId}); err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "create run log")
	}

	metrics.RunsCreated.Inc()
	log.Infow("run created", "run", run.SuuId, "job", jobDef.SuuId, "trigger", req.Trigger)
	return run, nil
}

func (rs *RunService) Get(ctx context.Context, suuid string) (*model.Run, error) {
	run, err := rs.runRepo.Get(ctx, suuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.E(apierror.NotFound, "run %s not found", suuid)
		}
		return nil, apierror.Wrap(apierror.Internal, err, "get run")
	}
	return run, nil
}

func (rs *RunService) List(ctx context.Context, query *repo.RunQuery) ([]*model.Run, int64, error) {
	return rs.runRepo.List(ctx, query)
}

// Start moves a pending run to in_progress after the executor accepted it.
func (rs *RunService) Start(ctx context.Context, suuid, containerId, runImageId string, envSnapshot []byte) error {
	now := time.Now().UTC()
	won, err := rs.runRepo.Transition(ctx, suuid, []string{model.RunStatusPending}, map[string]any{
		"status":       model.RunStatusInProgress,
		"container_id": containerId,
		"run_image_id": runImageId,
		"env_snapshot": envSnapshot,
		"started_at":   now,
	})
	if err != nil {
		return apierror.Wrap(apierror.Internal, err, "start run")
	}
	if !won {
		return apierror.E(apierror.Conflict, "run %s is not pending", suuid)
	}
	return nil
}

// Finish moves an in-progress run to finished.
func (rs *RunService) Finish(ctx context.Context, suuid string, exitCode int) error {
	return rs.finish(ctx, suuid, model.RunStatusFinished, exitCode, []string{model.RunStatusInProgress})
}

// Fail moves a pending or in-progress run to failed.
func (rs *RunService) Fail(ctx context.Context, suuid string, exitCode int) error {
	return rs.finish(ctx, suuid, model.RunStatusFailed, exitCode,
		[]string{model.RunStatusPending, model.RunStatusInProgress})
}

func (rs *RunService) finish(ctx context.Context, suuid, status string, exitCode int, from []string) error {
	now := time.Now().UTC()
	won, err := rs.runRepo.Transition(ctx, suuid, from, map[string]any{
		"status":      status,
		"exit_code":   exitCode,
		"finished_at": now,
	})
	if err != nil {
		return apierror.Wrap(apierror.Internal, err, "finish run")
	}
	if !won {
		return apierror.E(apierror.Conflict, "run %s cannot move to %s", suuid, status)
	}
	metrics.RunsFinished.WithLabelValues(status).Inc()
	log.Infow("run finished", "run", suuid, "status", status, "exitCode", exitCode)
	return nil
}

// FailMissingPackage fails a pending run that has no code package, writing
// the fixed failure log.
func (rs *RunService) FailMissingPackage(ctx context.Context, suuid string) error {
	if err := rs.AppendLogLines(ctx, suuid, failureLogMissingPackage); err != nil {
		return err
	}
	return rs.Fail(ctx, suuid, -1)
}

// Cancel terminates a non-terminal run. The container, when one exists,
// is stopped by the executor within a bounded time.
func (rs *RunService) Cancel(ctx context.Context, suuid string) error {
	now := time.Now().UTC()
	won, err := rs.runRepo.Transition(ctx, suuid,
		[]string{model.RunStatusPending, model.RunStatusInProgress},
		map[string]any{
			"status":      model.RunStatusCanceled,
			"finished_at": now,
		})
	if err != nil {
		return apierror.Wrap(apierror.Internal, err, "cancel run")
	}
	if !won {
		run, err := rs.Get(ctx, suuid)
		if err != nil {
			return err
		}
		return apierror.E(apierror.Conflict, "run %s is already %s", suuid, run.Status)
	}

	if rs.canceller != nil {
		rs.canceller.Cancel(suuid)
	}
	metrics.RunsFinished.WithLabelValues(model.RunStatusCanceled).Inc()
	log.Infow("run canceled", "run", suuid)
	return nil
}

// logEntry is one log line: [index, timestamp, text].
type logEntry = [3]any

// AppendLogLines appends text lines to the run's log blob and updates the
// bookkeeping record.
func (rs *RunService) AppendLogLines(ctx context.Context, runSuuid string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	entries, err := rs.readLogEntries(ctx, runSuuid)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, line := range lines {
		entries = append(entries, logEntry{len(entries) + 1, now, line})
	}

	body, err := json.Marshal(entries)
	if err != nil {
		return apierror.Wrap(apierror.Internal, err, "encode log")
	}
	key := blob.LogKey(runSuuid)
	size, err := rs.store.Put(ctx, key, bytes.NewReader(body))
	if err != nil {
		return apierror.Wrap(apierror.Internal, err, "store log")
	}

	runLog, err := rs.runRepo.GetLogByRun(ctx, runSuuid)
	if err != nil {
		return apierror.Wrap(apierror.Internal, err, "get run log")
	}
	err = rs.runRepo.UpdateLog(ctx, runLog.SuuId, map[string]any{
		"lines":     len(entries),
		"size":      size,
		"blob_path": key,
	})
	if err != nil {
		return apierror.Wrap(apierror.Internal, err, "update run log")
	}
	return nil
}

// ReadLog returns the run's log entries.
func (rs *RunService) ReadLog(ctx context.Context, runSuuid string) ([]logEntry, error) {
	if _, err := rs.Get(ctx, runSuuid); err != nil {
		return nil, err
	}
	return rs.readLogEntries(ctx, runSuuid)
}

func (rs *RunService) readLogEntries(ctx context.Context, runSuuid string) ([]logEntry, error) {
	rc, err := rs.store.Open(ctx, blob.LogKey(runSuuid))
	if err != nil {
		// No blob yet means an empty log.
		return []logEntry{}, nil
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "read log")
	}
	var entries []logEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "decode log")
	}
	return entries, nil
}

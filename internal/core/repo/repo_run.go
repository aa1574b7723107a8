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

package repo

import (
	"context"
	"errors"

	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/pkg/database"
	"gorm.io/gorm"
)

// RunQuery defines query parameters for listing runs.
type RunQuery struct {
	JobDefinitionId string
	ProjectId       string
	Status          string
	Page            int
	PageSize        int
}

type IRunRepository interface {
	Create(ctx context.Context, run *model.Run) error
	Get(ctx context.Context, suuid string) (*model.Run, error)
	List(ctx context.Context, query *RunQuery) ([]*model.Run, int64, error)
	// Transition updates run status only from the expected current states;
	// reports whether the transition happened.
	Transition(ctx context.Context, suuid string, from []string, updates map[string]any) (bool, error)
	NextPending(ctx context.Context, projectId string) (*model.Run, error)
	PendingProjects(ctx context.Context) ([]string, error)
	CountActive(ctx context.Context, projectId string) (int64, error)

	CreateArtifact(ctx context.Context, artifact *model.RunArtifact) error
	GetArtifact(ctx context.Context, suuid string) (*model.RunArtifact, error)
	ListArtifacts(ctx context.Context, runId string) ([]*model.RunArtifact, error)
	UpdateArtifact(ctx context.Context, suuid string, updates map[string]any) error

	CreateResult(ctx context.Context, result *model.RunResult) error
	GetResultByRun(ctx context.Context, runId string) (*model.RunResult, error)
	GetResultBySuuid(ctx context.Context, suuid string) (*model.RunResult, error)
	UpdateResult(ctx context.Context, suuid string, updates map[string]any) error

	CreateLog(ctx context.Context, runLog *model.RunLog) error
	GetLogByRun(ctx context.Context, runId string) (*model.RunLog, error)
	UpdateLog(ctx context.Context, suuid string, updates map[string]any) error

	GetOrCreateImage(ctx context.Context, name, tag string) (*model.RunImage, error)
	UpdateImage(ctx context.Context, suuid string, updates map[string]any) error
}

type RunRepo struct {
	database.IDatabase
}

func NewRunRepo(db database.IDatabase) IRunRepository {
	return &RunRepo{IDatabase: db}
}

func (r *RunRepo) Create(ctx context.Context, run *model.Run) error {
	return r.Database().WithContext(ctx).Create(run).Error
}

func (r *RunRepo) Get(ctx context.Context, suuid string) (*model.Run, error) {
	var one model.Run
	if err := r.Database().WithContext(ctx).
		Where("suuid = ? AND deleted_at IS NULL", suuid).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *RunRepo) List(ctx context.Context, query *RunQuery) ([]*model.Run, int64, error) {
	if query == nil {
		query = &RunQuery{}
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = 20
	}
	if query.PageSize > 100 {
		query.PageSize = 100
	}

	tx := r.Database().WithContext(ctx).Model(&model.Run{}).
		Where("deleted_at IS NULL")
	if query.JobDefinitionId != "" {
		tx = tx.Where("job_definition_id = ?", query.JobDefinitionId)
	}
	if query.ProjectId != "" {
		tx = tx.Where("project_id = ?", query.ProjectId)
	}
	if query.Status != "" {
		tx = tx.Where("status = ?", query.Status)
	}

	total, err := Count(tx)
	if err != nil {
		return nil, 0, err
	}

	var list []*model.Run
	err = tx.Order("created_at DESC").
		Offset((query.Page - 1) * query.PageSize).
		Limit(query.PageSize).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *RunRepo) Transition(ctx context.Context, suuid string, from []string, updates map[string]any) (bool, error) {
	tx := r.Database().WithContext(ctx).
		Model(&model.Run{}).
		Where("suuid = ? AND status IN ?", suuid, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// NextPending returns the oldest pending run of a project: FIFO dispatch.
func (r *RunRepo) NextPending(ctx context.Context, projectId string) (*model.Run, error) {
	var one model.Run
	err := r.Database().WithContext(ctx).
		Where("project_id = ? AND status = ? AND deleted_at IS NULL", projectId, model.RunStatusPending).
		Order("created_at ASC").
		First(&one).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &one, nil
}

func (r *RunRepo) PendingProjects(ctx context.Context) ([]string, error) {
	var projects []string
	err := r.Database().WithContext(ctx).Model(&model.Run{}).
		Where("status = ? AND deleted_at IS NULL", model.RunStatusPending).
		Distinct("project_id").
		Pluck("project_id", &projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *RunRepo) CountActive(ctx context.Context, projectId string) (int64, error) {
	var count int64
	err := r.Database().WithContext(ctx).Model(&model.Run{}).
		Where("project_id = ? AND status = ? AND deleted_at IS NULL", projectId, model.RunStatusInProgress).
		Count(&count).Error
	return count, err
}

func (r *RunRepo) CreateArtifact(ctx context.Context, artifact *model.RunArtifact) error {
	return r.Database().WithContext(ctx).Create(artifact).Error
}

func (r *RunRepo) GetArtifact(ctx context.Context, suuid string) (*model.RunArtifact, error) {
	var one model.RunArtifact
	if err := r.Database().WithContext(ctx).
		Where("suuid = ? AND deleted_at IS NULL", suuid).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *RunRepo) ListArtifacts(ctx context.Context, runId string) ([]*model.RunArtifact, error) {
	var list []*model.RunArtifact
	err := r.Database().WithContext(ctx).
		Where("run_id = ? AND deleted_at IS NULL", runId).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *RunRepo) UpdateArtifact(ctx context.Context, suuid string, updates map[string]any) error {
	return r.Database().WithContext(ctx).
		Model(&model.RunArtifact{}).
		Where("suuid = ?", suuid).
		Updates(updates).Error
}

func (r *RunRepo) CreateResult(ctx context.Context, result *model.RunResult) error {
	return r.Database().WithContext(ctx).Create(result).Error
}

func (r *RunRepo) GetResultByRun(ctx context.Context, runId string) (*model.RunResult, error) {
	var one model.RunResult
	if err := r.Database().WithContext(ctx).
		Where("run_id = ? AND deleted_at IS NULL", runId).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *RunRepo) GetResultBySuuid(ctx context.Context, suuid string) (*model.RunResult, error) {
	var one model.RunResult
	if err := r.Database().WithContext(ctx).
		Where("suuid = ? AND deleted_at IS NULL", suuid).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *RunRepo) UpdateResult(ctx context.Context, suuid string, updates map[string]any) error {
	return r.Database().WithContext(ctx).
		Model(&model.RunResult{}).
		Where("suuid = ?", suuid).
		Updates(updates).Error
}

func (r *RunRepo) CreateLog(ctx context.Context, runLog *model.RunLog) error {
	return r.Database().WithContext(ctx).Create(runLog).Error
}

func (r *RunRepo) GetLogByRun(ctx context.Context, runId string) (*model.RunLog, error) {
	var one model.RunLog
	if err := r.Database().WithContext(ctx).
		Where("run_id = ?", runId).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *RunRepo) UpdateLog(ctx context.Context, suuid string, updates map[string]any) error {
	return r.Database().WithContext(ctx).
		Model(&model.RunLog{}).
		Where("suuid = ?", suuid).
		Updates(updates).Error
}

func (r *RunRepo) GetOrCreateImage(ctx context.Context, name, tag string) (*model.RunImage, error) {
	var one model.RunImage
	err := r.Database().WithContext(ctx).
		Where("name = ? AND tag = ?", name, tag).
		First(&one).Error
	if err == nil {
		return &one, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	one = model.RunImage{Name: name, Tag: tag}
	if err := r.Database().WithContext(ctx).Create(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *RunRepo) UpdateImage(ctx context.Context, suuid string, updates map[string]any) error {
	return r.Database().WithContext(ctx).
		Model(&model.RunImage{}).
		Where("suuid = ?", suuid).
		Updates(updates).Error
}

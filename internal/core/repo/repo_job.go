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
	"time"

	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/pkg/database"
	"gorm.io/gorm"
)

type IJobRepository interface {
	UpsertJobDefinition(ctx context.Context, jobDef *model.JobDefinition) (*model.JobDefinition, error)
	GetJobDefinition(ctx context.Context, suuid string) (*model.JobDefinition, error)
	GetJobDefinitionByName(ctx context.Context, projectId, name string) (*model.JobDefinition, error)
	ListJobDefinitions(ctx context.Context, projectId string) ([]*model.JobDefinition, error)
	DeleteJobDefinition(ctx context.Context, suuid string) error
	CountRuns(ctx context.Context, jobDefinitionId string) (int64, error)

	CreateSchedule(ctx context.Context, schedule *model.Schedule) error
	GetSchedule(ctx context.Context, suuid string) (*model.Schedule, error)
	ListSchedules(ctx context.Context, jobDefinitionId string) ([]*model.Schedule, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]*model.Schedule, error)
	ListOverdueSchedules(ctx context.Context, before time.Time) ([]*model.Schedule, error)
	UpdateSchedule(ctx context.Context, suuid string, updates map[string]any) error
	// AdvanceSchedule moves last/next run markers only when next_run_at still
	// matches the observed value, keeping concurrent ticks monotonic.
	AdvanceSchedule(ctx context.Context, suuid string, observedNext, newNext time.Time) (bool, error)
	DeleteSchedule(ctx context.Context, suuid string) error

	CreatePayload(ctx context.Context, payload *model.Payload) error
	GetPayload(ctx context.Context, suuid string) (*model.Payload, error)
}

type JobRepo struct {
	database.IDatabase
}

func NewJobRepo(db database.IDatabase) IJobRepository {
	return &JobRepo{IDatabase: db}
}

// UpsertJobDefinition creates or updates the definition keyed by
// (project, name). Image, credentials, and timezone always reflect the
// latest config; an unspecified image clears the previous one.
func (r *JobRepo) UpsertJobDefinition(ctx context.Context, jobDef *model.JobDefinition) (*model.JobDefinition, error) {
	existing, err := r.GetJobDefinitionByName(ctx, jobDef.ProjectId, jobDef.Name)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err := r.Database().WithContext(ctx).Create(jobDef).Error; err != nil {
			return nil, err
		}
		return jobDef, nil
	}

	err = r.Database().WithContext(ctx).
		Model(&model.JobDefinition{}).
		Where("suuid = ?", existing.SuuId).
		Updates(map[string]any{
			"environment_image":    jobDef.EnvironmentImage,
			"environment_username": jobDef.EnvironmentUsername,
			"environment_password": jobDef.EnvironmentPassword,
			"timezone":             jobDef.Timezone,
		}).Error
	if err != nil {
		return nil, err
	}
	existing.EnvironmentImage = jobDef.EnvironmentImage
	existing.EnvironmentUsername = jobDef.EnvironmentUsername
	existing.EnvironmentPassword = jobDef.EnvironmentPassword
	existing.Timezone = jobDef.Timezone
	return existing, nil
}

func (r *JobRepo) GetJobDefinition(ctx context.Context, suuid string) (*model.JobDefinition, error) {
	var one model.JobDefinition
	if err := r.Database().WithContext(ctx).
		Where("suuid = ? AND deleted_at IS NULL", suuid).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *JobRepo) GetJobDefinitionByName(ctx context.Context, projectId, name string) (*model.JobDefinition, error) {
	var one model.JobDefinition
	if err := r.Database().WithContext(ctx).
		Where("project_id = ? AND name = ? AND deleted_at IS NULL", projectId, name).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *JobRepo) ListJobDefinitions(ctx context.Context, projectId string) ([]*model.JobDefinition, error) {
	var list []*model.JobDefinition
	err := r.Database().WithContext(ctx).
		Where("project_id = ? AND deleted_at IS NULL", projectId).
		Order("name ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *JobRepo) DeleteJobDefinition(ctx context.Context, suuid string) error {
	return r.Database().WithContext(ctx).
		Model(&model.JobDefinition{}).
		Where("suuid = ? AND deleted_at IS NULL", suuid).
		Update("deleted_at", time.Now().UTC()).Error
}

// CountRuns reports how many runs reference the job definition, deleted
// runs included.
func (r *JobRepo) CountRuns(ctx context.Context, jobDefinitionId string) (int64, error) {
	var count int64
	err := r.Database().WithContext(ctx).
		Model(&model.Run{}).
		Where("job_definition_id = ?", jobDefinitionId).
		Count(&count).Error
	return count, err
}

func (r *JobRepo) CreateSchedule(ctx context.Context, schedule *model.Schedule) error {
	return r.Database().WithContext(ctx).Create(schedule).Error
}

func (r *JobRepo) GetSchedule(ctx context.Context, suuid string) (*model.Schedule, error) {
	var one model.Schedule
	if err := r.Database().WithContext(ctx).
		Where("suuid = ? AND deleted_at IS NULL", suuid).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *JobRepo) ListSchedules(ctx context.Context, jobDefinitionId string) ([]*model.Schedule, error) {
	var list []*model.Schedule
	err := r.Database().WithContext(ctx).
		Where("job_definition_id = ? AND deleted_at IS NULL", jobDefinitionId).
		Order("id ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *JobRepo) ListDueSchedules(ctx context.Context, now time.Time) ([]*model.Schedule, error) {
	var list []*model.Schedule
	err := r.Database().WithContext(ctx).
		Where("next_run_at IS NOT NULL AND next_run_at <= ? AND deleted_at IS NULL", now).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *JobRepo) ListOverdueSchedules(ctx context.Context, before time.Time) ([]*model.Schedule, error) {
	var list []*model.Schedule
	err := r.Database().WithContext(ctx).
		Where("next_run_at IS NOT NULL AND next_run_at <= ? AND deleted_at IS NULL", before).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *JobRepo) UpdateSchedule(ctx context.Context, suuid string, updates map[string]any) error {
	return r.Database().WithContext(ctx).
		Model(&model.Schedule{}).
		Where("suuid = ?", suuid).
		Updates(updates).Error
}

func (r *JobRepo) AdvanceSchedule(ctx context.Context, suuid string, observedNext, newNext time.Time) (bool, error) {
	tx := r.Database().WithContext(ctx).
		Model(&model.Schedule{}).
		Where("suuid = ? AND next_run_at = ?", suuid, observedNext).
		Updates(map[string]any{
			"last_run_at": observedNext,
			"next_run_at": newNext,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *JobRepo) DeleteSchedule(ctx context.Context, suuid string) error {
	return r.Database().WithContext(ctx).
		Model(&model.Schedule{}).
		Where("suuid = ? AND deleted_at IS NULL", suuid).
		Update("deleted_at", time.Now().UTC()).Error
}

func (r *JobRepo) CreatePayload(ctx context.Context, payload *model.Payload) error {
	return r.Database().WithContext(ctx).Create(payload).Error
}

func (r *JobRepo) GetPayload(ctx context.Context, suuid string) (*model.Payload, error) {
	var one model.Payload
	if err := r.Database().WithContext(ctx).
		Where("suuid = ?", suuid).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

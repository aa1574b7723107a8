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

// RowQuery filters row listings by object name or label name.
type RowQuery struct {
	RunId     string
	Name      string
	LabelName string
	Page      int
	PageSize  int
}

type ITrackingRepository interface {
	// InsertMetricRow is a no-op when the row hash already exists.
	InsertMetricRow(ctx context.Context, row *model.MetricRow) (bool, error)
	InsertVariableRow(ctx context.Context, row *model.VariableRow) (bool, error)
	ListMetricRows(ctx context.Context, query *RowQuery) ([]*model.MetricRow, error)
	ListVariableRows(ctx context.Context, query *RowQuery) ([]*model.VariableRow, error)
	DeleteMetricRows(ctx context.Context, ids []uint) error
	DeleteVariableRows(ctx context.Context, ids []uint) error

	UpsertMetricMeta(ctx context.Context, meta *model.MetricMeta) error
	GetMetricMeta(ctx context.Context, runId string) (*model.MetricMeta, error)
	UpsertVariableMeta(ctx context.Context, meta *model.VariableMeta) error
	GetVariableMeta(ctx context.Context, runId string) (*model.VariableMeta, error)

	CreateVariable(ctx context.Context, variable *model.Variable) error
	GetVariable(ctx context.Context, suuid string) (*model.Variable, error)
	ListVariables(ctx context.Context, projectId string) ([]*model.Variable, error)
	UpdateVariable(ctx context.Context, suuid string, updates map[string]any) error
	DeleteVariable(ctx context.Context, suuid string) error
}

type TrackingRepo struct {
	database.IDatabase
}

func NewTrackingRepo(db database.IDatabase) ITrackingRepository {
	return &TrackingRepo{IDatabase: db}
}

func (r *TrackingRepo) InsertMetricRow(ctx context.Context, row *model.MetricRow) (bool, error) {
	var count int64
	err := r.Database().WithContext(ctx).Model(&model.MetricRow{}).
		Where("row_hash = ?", row.RowHash).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if err := r.Database().WithContext(ctx).Create(row).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *TrackingRepo) InsertVariableRow(ctx context.Context, row *model.VariableRow) (bool, error) {
	var count int64
	err := r.Database().WithContext(ctx).Model(&model.VariableRow{}).
		Where("row_hash = ?", row.RowHash).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if err := r.Database().WithContext(ctx).Create(row).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *TrackingRepo) ListMetricRows(ctx context.Context, query *RowQuery) ([]*model.MetricRow, error) {
	tx := r.Database().WithContext(ctx).Model(&model.MetricRow{}).
		Where("run_id = ?", query.RunId)
	if query.Name != "" {
		tx = tx.Where("metric LIKE ?", `%"name":"`+query.Name+`"%`)
	}
	if query.LabelName != "" {
		tx = tx.Where("label LIKE ?", `%"name":"`+query.LabelName+`"%`)
	}

	var list []*model.MetricRow
	if err := tx.Order("created_at ASC, id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *TrackingRepo) ListVariableRows(ctx context.Context, query *RowQuery) ([]*model.VariableRow, error) {
	tx := r.Database().WithContext(ctx).Model(&model.VariableRow{}).
		Where("run_id = ?", query.RunId)
	if query.Name != "" {
		tx = tx.Where("variable LIKE ?", `%"name":"`+query.Name+`"%`)
	}
	if query.LabelName != "" {
		tx = tx.Where("label LIKE ?", `%"name":"`+query.LabelName+`"%`)
	}

	var list []*model.VariableRow
	if err := tx.Order("created_at ASC, id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *TrackingRepo) DeleteMetricRows(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.Database().WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&model.MetricRow{}).Error
}

func (r *TrackingRepo) DeleteVariableRows(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.Database().WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&model.VariableRow{}).Error
}

func (r *TrackingRepo) UpsertMetricMeta(ctx context.Context, meta *model.MetricMeta) error {
	existing, err := r.GetMetricMeta(ctx, meta.RunId)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return r.Database().WithContext(ctx).Create(meta).Error
	}
	return r.Database().WithContext(ctx).
		Model(&model.MetricMeta{}).
		Where("suuid = ?", existing.SuuId).
		Updates(map[string]any{
			"count":        meta.Count,
			"size":         meta.Size,
			"metric_names": meta.MetricNames,
			"label_names":  meta.LabelNames,
			"blob_path":    meta.BlobPath,
		}).Error
}

func (r *TrackingRepo) GetMetricMeta(ctx context.Context, runId string) (*model.MetricMeta, error) {
	var one model.MetricMeta
	if err := r.Database().WithContext(ctx).
		Where("run_id = ?", runId).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *TrackingRepo) UpsertVariableMeta(ctx context.Context, meta *model.VariableMeta) error {
	existing, err := r.GetVariableMeta(ctx, meta.RunId)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return r.Database().WithContext(ctx).Create(meta).Error
	}
	return r.Database().WithContext(ctx).
		Model(&model.VariableMeta{}).
		Where("suuid = ?", existing.SuuId).
		Updates(map[string]any{
			"count":          meta.Count,
			"size":           meta.Size,
			"variable_names": meta.VariableNames,
			"label_names":    meta.LabelNames,
			"blob_path":      meta.BlobPath,
		}).Error
}

func (r *TrackingRepo) GetVariableMeta(ctx context.Context, runId string) (*model.VariableMeta, error) {
	var one model.VariableMeta
	if err := r.Database().WithContext(ctx).
		Where("run_id = ?", runId).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *TrackingRepo) CreateVariable(ctx context.Context, variable *model.Variable) error {
	return r.Database().WithContext(ctx).Create(variable).Error
}

func (r *TrackingRepo) GetVariable(ctx context.Context, suuid string) (*model.Variable, error) {
	var one model.Variable
	if err := r.Database().WithContext(ctx).
		Where("suuid = ? AND deleted_at IS NULL", suuid).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *TrackingRepo) ListVariables(ctx context.Context, projectId string) ([]*model.Variable, error) {
	var list []*model.Variable
	err := r.Database().WithContext(ctx).
		Where("project_id = ? AND deleted_at IS NULL", projectId).
		Order("name ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *TrackingRepo) UpdateVariable(ctx context.Context, suuid string, updates map[string]any) error {
	return r.Database().WithContext(ctx).
		Model(&model.Variable{}).
		Where("suuid = ?", suuid).
		Updates(updates).Error
}

func (r *TrackingRepo) DeleteVariable(ctx context.Context, suuid string) error {
	return r.Database().WithContext(ctx).
		Model(&model.Variable{}).
		Where("suuid = ? AND deleted_at IS NULL", suuid).
		Update("deleted_at", time.Now().UTC()).Error
}

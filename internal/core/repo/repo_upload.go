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

	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/pkg/database"
)

type IUploadRepository interface {
	Create(ctx context.Context, upload *model.Upload) error
	Get(ctx context.Context, suuid string) (*model.Upload, error)
	Update(ctx context.Context, suuid string, updates map[string]any) error
	// CompleteExclusive flips an open upload to completed and reports
	// whether this call won the transition.
	CompleteExclusive(ctx context.Context, suuid string, updates map[string]any) (bool, error)

	CreatePart(ctx context.Context, part *model.ChunkPart) error
	GetPart(ctx context.Context, uploadId string, partNumber int) (*model.ChunkPart, error)
	ListParts(ctx context.Context, uploadId string) ([]*model.ChunkPart, error)
	DeleteParts(ctx context.Context, uploadId string) error
}

type UploadRepo struct {
	database.IDatabase
}

func NewUploadRepo(db database.IDatabase) IUploadRepository {
	return &UploadRepo{IDatabase: db}
}

func (r *UploadRepo) Create(ctx context.Context, upload *model.Upload) error {
	return r.Database().WithContext(ctx).Create(upload).Error
}

func (r *UploadRepo) Get(ctx context.Context, suuid string) (*model.Upload, error) {
	var one model.Upload
	if err := r.Database().WithContext(ctx).
		Where("suuid = ?", suuid).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *UploadRepo) Update(ctx context.Context, suuid string, updates map[string]any) error {
	return r.Database().WithContext(ctx).
		Model(&model.Upload{}).
		Where("suuid = ?", suuid).
		Updates(updates).Error
}

func (r *UploadRepo) CompleteExclusive(ctx context.Context, suuid string, updates map[string]any) (bool, error) {
	updates["status"] = model.UploadStatusCompleted
	tx := r.Database().WithContext(ctx).
		Model(&model.Upload{}).
		Where("suuid = ? AND status = ?", suuid, model.UploadStatusOpen).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *UploadRepo) CreatePart(ctx context.Context, part *model.ChunkPart) error {
	return r.Database().WithContext(ctx).Create(part).Error
}

func (r *UploadRepo) GetPart(ctx context.Context, uploadId string, partNumber int) (*model.ChunkPart, error) {
	var one model.ChunkPart
	if err := r.Database().WithContext(ctx).
		Where("upload_id = ? AND part_number = ?", uploadId, partNumber).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *UploadRepo) ListParts(ctx context.Context, uploadId string) ([]*model.ChunkPart, error) {
	var list []*model.ChunkPart
	err := r.Database().WithContext(ctx).
		Where("upload_id = ?", uploadId).
		Order("part_number ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *UploadRepo) DeleteParts(ctx context.Context, uploadId string) error {
	return r.Database().WithContext(ctx).
		Where("upload_id = ?", uploadId).
		Delete(&model.ChunkPart{}).Error
}

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
	"time"

	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/pkg/database"
)

// PackageQuery defines query parameters for listing packages.
type PackageQuery struct {
	ProjectId string
	Page      int
	PageSize  int
}

type IPackageRepository interface {
	Create(ctx context.Context, pkg *model.Package) error
	Update(ctx context.Context, suuid string, updates map[string]any) error
	Get(ctx context.Context, suuid string) (*model.Package, error)
	List(ctx context.Context, query *PackageQuery) ([]*model.Package, int64, error)
	LatestCompleted(ctx context.Context, projectId string) (*model.Package, error)
	SoftDelete(ctx context.Context, suuid string) error
}

type PackageRepo struct {
	database.IDatabase
}

func NewPackageRepo(db database.IDatabase) IPackageRepository {
	return &PackageRepo{IDatabase: db}
}

func (r *PackageRepo) Create(ctx context.Context, pkg *model.Package) error {
	return r.Database().WithContext(ctx).Create(pkg).Error
}

func (r *PackageRepo) Update(ctx context.Context, suuid string, updates map[string]any) error {
	return r.Database().WithContext(ctx).
		Model(&model.Package{}).
		Where("suuid = ?", suuid).
		Updates(updates).Error
}

func (r *PackageRepo) Get(ctx context.Context, suuid string) (*model.Package, error) {
	var one model.Package
	if err := r.Database().WithContext(ctx).
		Where("suuid = ? AND deleted_at IS NULL", suuid).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *PackageRepo) List(ctx context.Context, query *PackageQuery) ([]*model.Package, int64, error) {
	if query == nil {
		query = &PackageQuery{}
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

	tx := r.Database().WithContext(ctx).Model(&model.Package{}).
		Where("deleted_at IS NULL")
	if query.ProjectId != "" {
		tx = tx.Where("project_id = ?", query.ProjectId)
	}

	total, err := Count(tx)
	if err != nil {
		return nil, 0, err
	}

	var list []*model.Package
	err = tx.Order("created_at DESC").
		Offset((query.Page - 1) * query.PageSize).
		Limit(query.PageSize).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// LatestCompleted returns the newest package with a finished upload for the
// project; used as the code snapshot of scheduled runs.
func (r *PackageRepo) LatestCompleted(ctx context.Context, projectId string) (*model.Package, error) {
	var one model.Package
	if err := r.Database().WithContext(ctx).
		Where("project_id = ? AND finished_upload_at IS NOT NULL AND deleted_at IS NULL", projectId).
		Order("finished_upload_at DESC").
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *PackageRepo) SoftDelete(ctx context.Context, suuid string) error {
	return r.Database().WithContext(ctx).
		Model(&model.Package{}).
		Where("suuid = ? AND deleted_at IS NULL", suuid).
		Update("deleted_at", time.Now().UTC()).Error
}

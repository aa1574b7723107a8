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

type ISettingRepository interface {
	// Get returns the stored row for a setting name, or gorm.ErrRecordNotFound
	// when the installation never overrode it.
	Get(ctx context.Context, name string) (*model.Setting, error)
	Upsert(ctx context.Context, name, value string) error
	List(ctx context.Context) ([]*model.Setting, error)
}

type SettingRepo struct {
	database.IDatabase
}

func NewSettingRepo(db database.IDatabase) ISettingRepository {
	return &SettingRepo{IDatabase: db}
}

func (r *SettingRepo) Get(ctx context.Context, name string) (*model.Setting, error) {
	var one model.Setting
	if err := r.Database().WithContext(ctx).
		Where("name = ?", name).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *SettingRepo) Upsert(ctx context.Context, name, value string) error {
	existing, err := r.Get(ctx, name)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return r.Database().WithContext(ctx).Create(&model.Setting{Name: name, Value: value}).Error
	}
	return r.Database().WithContext(ctx).
		Model(&model.Setting{}).
		Where("id = ?", existing.Id).
		Update("value", value).Error
}

func (r *SettingRepo) List(ctx context.Context) ([]*model.Setting, error) {
	var list []*model.Setting
	if err := r.Database().WithContext(ctx).Order("name ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

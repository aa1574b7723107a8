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
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/pkg/cache"
	"github.com/askanna-io/runcore/pkg/log"
	"gorm.io/gorm"
)

const settingCacheTTL = time.Hour

// SettingsService gives typed, cached access to operator-tunable settings.
// A name missing from the store falls back to the compiled default table.
type SettingsService struct {
	settingRepo repo.ISettingRepository
	cache       cache.ICache
}

func NewSettingsService(settingRepo repo.ISettingRepository, c cache.ICache) *SettingsService {
	return &SettingsService{settingRepo: settingRepo, cache: c}
}

func settingCacheKey(name string) string {
	return "setting:" + name
}

// Get returns the raw string value of a setting.
func (ss *SettingsService) Get(ctx context.Context, name string) (string, error) {
	if !model.IsKnownSetting(name) {
		return "", apierror.E(apierror.InvalidInput, "unknown setting %q", name)
	}

	if value, ok, err := ss.cache.Get(ctx, settingCacheKey(name)); err == nil && ok {
		return value, nil
	}

	row, err := ss.settingRepo.Get(ctx, name)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorw("failed to read setting", "name", name, "error", err)
			return "", apierror.Wrap(apierror.Internal, err, "read setting")
		}
		return model.SettingDefaults[name], nil
	}

	if err := ss.cache.Set(ctx, settingCacheKey(name), row.Value, settingCacheTTL); err != nil {
		log.Warnw("failed to cache setting", "name", name, "error", err)
	}
	return row.Value, nil
}

// GetBool coerces a setting to bool. Accepted spellings are
// true|1|t|y|yes and false|0|f|n|no, case-insensitive.
func (ss *SettingsService) GetBool(ctx context.Context, name string) (bool, error) {
	value, err := ss.Get(ctx, name)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "t", "y", "yes":
		return true, nil
	case "false", "0", "f", "n", "no":
		return false, nil
	}
	return false, apierror.E(apierror.SettingType, "setting %s: %q is not a bool", name, value)
}

// GetInt coerces a setting to int.
func (ss *SettingsService) GetInt(ctx context.Context, name string) (int, error) {
	value, err := ss.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, apierror.E(apierror.SettingType, "setting %s: %q is not an integer", name, value)
	}
	return n, nil
}

// GetHours reads an integer setting as a duration in hours.
func (ss *SettingsService) GetHours(ctx context.Context, name string) (time.Duration, error) {
	n, err := ss.GetInt(ctx, name)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Hour, nil
}

// Set overrides a setting and drops its cache entry.
func (ss *SettingsService) Set(ctx context.Context, name, value string) error {
	if !model.IsKnownSetting(name) {
		return apierror.E(apierror.InvalidInput, "unknown setting %q", name)
	}
	if err := ss.settingRepo.Upsert(ctx, name, value); err != nil {
		log.Errorw("failed to store setting", "name", name, "error", err)
		return apierror.Wrap(apierror.Internal, err, "store setting")
	}
	if err := ss.cache.Delete(ctx, settingCacheKey(name)); err != nil {
		log.Warnw("failed to drop setting cache", "name", name, "error", err)
	}
	return nil
}

// List returns every known setting with its effective value.
func (ss *SettingsService) List(ctx context.Context) (map[string]string, error) {
	effective := make(map[string]string, len(model.SettingDefaults))
	for name, def := range model.SettingDefaults {
		effective[name] = def
	}
	rows, err := ss.settingRepo.List(ctx)
	if err != nil {
		log.Errorw("failed to list settings", "error", err)
		return nil, apierror.Wrap(apierror.Internal, err, "list settings")
	}
	for _, row := range rows {
		if model.IsKnownSetting(row.Name) {
			effective[row.Name] = row.Value
		}
	}
	return effective, nil
}

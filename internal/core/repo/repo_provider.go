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
	"github.com/google/wire"
	"gorm.io/gorm"
)

// ProviderSet provides repository dependencies.
var ProviderSet = wire.NewSet(
	NewWorkspaceRepo,
	NewPackageRepo,
	NewUploadRepo,
	NewJobRepo,
	NewRunRepo,
	NewTrackingRepo,
	NewSettingRepo,
	NewRepositories,
)

// Repositories aggregates all repositories for injection.
type Repositories struct {
	Workspace IWorkspaceRepository
	Package   IPackageRepository
	Upload    IUploadRepository
	Job       IJobRepository
	Run       IRunRepository
	Tracking  ITrackingRepository
	Setting   ISettingRepository
}

func NewRepositories(
	workspace IWorkspaceRepository,
	pkg IPackageRepository,
	upload IUploadRepository,
	job IJobRepository,
	run IRunRepository,
	tracking ITrackingRepository,
	setting ISettingRepository,
) *Repositories {
	return &Repositories{
		Workspace: workspace,
		Package:   pkg,
		Upload:    upload,
		Job:       job,
		Run:       run,
		Tracking:  tracking,
		Setting:   setting,
	}
}

// Count returns the row count of the current query.
func Count(tx *gorm.DB) (int64, error) {
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

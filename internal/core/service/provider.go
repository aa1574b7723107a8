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
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/pkg/blob"
	"github.com/askanna-io/runcore/pkg/cache"
	"github.com/askanna-io/runcore/pkg/database"
	"github.com/google/wire"
)

// ProviderSet provides the service layer.
var ProviderSet = wire.NewSet(
	ProvideServices,
)

// Services aggregates the service layer for injection.
type Services struct {
	Settings *SettingsService
	Upload   *UploadService
	Package  *PackageService
	Schedule *ScheduleService
	Run      *RunService
	Ingest   *IngestService
	Artifact *ArtifactService
	Variable *VariableService
	Reaper   *ReaperService
}

// ProvideServices wires every service against the shared repositories,
// cache and blob store.
func ProvideServices(
	db database.IDatabase,
	c cache.ICache,
	repos *repo.Repositories,
	store blob.Store,
) *Services {
	settingsSvc := NewSettingsService(repos.Setting, c)
	uploadSvc := NewUploadService(repos.Upload, store)
	runSvc := NewRunService(repos.Run, repos.Job, repos.Package, repos.Workspace, store)

	return &Services{
		Settings: settingsSvc,
		Upload:   uploadSvc,
		Package:  NewPackageService(repos.Package, repos.Job, repos.Workspace, uploadSvc, store),
		Schedule: NewScheduleService(repos.Job, repos.Workspace, runSvc, c),
		Run:      runSvc,
		Ingest:   NewIngestService(repos.Tracking, repos.Run, store, c),
		Artifact: NewArtifactService(repos.Run, uploadSvc, store),
		Variable: NewVariableService(repos.Tracking, repos.Workspace),
		Reaper:   NewReaperService(db, store, settingsSvc),
	}
}

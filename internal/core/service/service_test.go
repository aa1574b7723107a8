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
	"archive/zip"
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/pkg/blob"
	"github.com/askanna-io/runcore/pkg/cache"
	"github.com/askanna-io/runcore/pkg/database"
)

type testDB struct {
	db *gorm.DB
}

func (t *testDB) Database() *gorm.DB {
	return t.db
}

type testEnv struct {
	svcs  *Services
	repos *repo.Repositories
	store blob.Store
	db    database.IDatabase
	cache cache.ICache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(dir, "runcore.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&model.Workspace{},
		&model.Project{},
		&model.Membership{},
		&model.JobDefinition{},
		&model.Schedule{},
		&model.Payload{},
		&model.Package{},
		&model.Upload{},
		&model.ChunkPart{},
		&model.Run{},
		&model.RunArtifact{},
		&model.RunResult{},
		&model.RunLog{},
		&model.RunImage{},
		&model.MetricRow{},
		&model.VariableRow{},
		&model.MetricMeta{},
		&model.VariableMeta{},
		&model.Variable{},
		&model.Setting{},
	))

	db := &testDB{db: gdb}
	repos := repo.NewRepositories(
		repo.NewWorkspaceRepo(db),
		repo.NewPackageRepo(db),
		repo.NewUploadRepo(db),
		repo.NewJobRepo(db),
		repo.NewRunRepo(db),
		repo.NewTrackingRepo(db),
		repo.NewSettingRepo(db),
	)
	store, err := blob.NewStore(&blob.Config{Driver: "fs", Root: filepath.Join(dir, "blob-data")})
	require.NoError(t, err)
	c := cache.NewMemoryCache()

	return &testEnv{
		svcs:  ProvideServices(db, c, repos, store),
		repos: repos,
		store: store,
		db:    db,
		cache: c,
	}
}

func (e *testEnv) seedProject(t *testing.T) *model.Project {
	t.Helper()
	ctx := context.Background()

	workspace := &model.Workspace{Name: "demo workspace"}
	require.NoError(t, e.repos.Workspace.CreateWorkspace(ctx, workspace))
	project := &model.Project{WorkspaceId: workspace.SuuId, Name: "demo project"}
	require.NoError(t, e.repos.Workspace.CreateProject(ctx, project))
	return project
}

func (e *testEnv) seedJob(t *testing.T, projectSuuid, name string) *model.JobDefinition {
	t.Helper()
	jobDef, err := e.repos.Job.UpsertJobDefinition(context.Background(), &model.JobDefinition{
		ProjectId: projectSuuid,
		Name:      name,
		Timezone:  "UTC",
	})
	require.NoError(t, err)
	return jobDef
}

// zipArchive builds an in-memory zip from a filename to content mapping.
func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// uploadPackage pushes a zip through the whole package flow in one part.
func (e *testEnv) uploadPackage(t *testing.T, projectSuuid string, files map[string]string) *model.Package {
	t.Helper()
	ctx := context.Background()

	archive := zipArchive(t, files)
	_, upload, err := e.svcs.Package.Create(ctx, projectSuuid, "", "code.zip")
	require.NoError(t, err)
	_, err = e.svcs.Upload.PutPart(ctx, upload.SuuId, 1, archive, "", true)
	require.NoError(t, err)
	pkg, err := e.svcs.Package.Complete(ctx, upload.SuuId, int64(len(archive)), "")
	require.NoError(t, err)
	return pkg
}

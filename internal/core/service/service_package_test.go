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
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
)

func TestPackage_ManifestIngestion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	env.uploadPackage(t, project.SuuId, map[string]string{
		"askanna.yml": `
jobs:
  train:
    environment:
      image: askanna/python:3
    schedule:
      - "0 12 * * *"
      - "@daily"
    timezone: Europe/Amsterdam
  lint: {}
`,
		"train.py": "print('train')",
	})

	jobs, err := env.repos.Job.ListJobDefinitions(ctx, project.SuuId)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "lint", jobs[0].Name)
	assert.Equal(t, "train", jobs[1].Name)
	assert.Equal(t, "askanna/python:3", jobs[1].EnvironmentImage)
	assert.Equal(t, "Europe/Amsterdam", jobs[1].Timezone)
	assert.Empty(t, jobs[0].EnvironmentImage)

	schedules, err := env.repos.Job.ListSchedules(ctx, jobs[1].SuuId)
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.Equal(t, "0 12 * * *", schedules[0].CronDefinition)
	assert.Equal(t, "0 0 * * *", schedules[1].CronDefinition)
	for _, schedule := range schedules {
		assert.Equal(t, "Europe/Amsterdam", schedule.CronTimezone)
		require.NotNil(t, schedule.NextRunAt)
		assert.True(t, schedule.NextRunAt.After(time.Now().UTC().Add(-time.Minute)))
		assert.Nil(t, schedule.LastRunAt)
	}
}

func TestPackage_ReingestionPreservesLastRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	manifest := `
jobs:
  train:
    schedule: "0 6 * * 1"
`
	env.uploadPackage(t, project.SuuId, map[string]string{"askanna.yml": manifest})

	jobDef, err := env.repos.Job.GetJobDefinitionByName(ctx, project.SuuId, "train")
	require.NoError(t, err)
	before, err := env.repos.Job.ListSchedules(ctx, jobDef.SuuId)
	require.NoError(t, err)
	require.Len(t, before, 1)

	lastRun := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	require.NoError(t, env.repos.Job.UpdateSchedule(ctx, before[0].SuuId, map[string]any{"last_run_at": lastRun}))

	// new package keeps one schedule and adds another
	env.uploadPackage(t, project.SuuId, map[string]string{"askanna.yml": `
jobs:
  train:
    schedule:
      - "0 6 * * 1"
      - "30 6 * * 1"
`})

	after, err := env.repos.Job.ListSchedules(ctx, jobDef.SuuId)
	require.NoError(t, err)
	require.Len(t, after, 2)

	byCron := map[string]*struct {
		suuid     string
		lastRunAt *time.Time
	}{}
	for _, schedule := range after {
		byCron[schedule.CronDefinition] = &struct {
			suuid     string
			lastRunAt *time.Time
		}{schedule.SuuId, schedule.LastRunAt}
	}

	kept := byCron["0 6 * * 1"]
	require.NotNil(t, kept)
	assert.NotEqual(t, before[0].SuuId, kept.suuid, "re-ingestion mints a new identifier")
	require.NotNil(t, kept.lastRunAt)
	assert.True(t, lastRun.Equal(kept.lastRunAt.UTC()))

	added := byCron["30 6 * * 1"]
	require.NotNil(t, added)
	assert.Nil(t, added.lastRunAt)
}

func TestPackage_ReingestionDropsRemovedJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	env.uploadPackage(t, project.SuuId, map[string]string{"askanna.yml": `
jobs:
  train:
    schedule: "0 6 * * *"
  obsolete:
    schedule: "0 * * * *"
`})

	obsolete, err := env.repos.Job.GetJobDefinitionByName(ctx, project.SuuId, "obsolete")
	require.NoError(t, err)

	env.uploadPackage(t, project.SuuId, map[string]string{"askanna.yml": `
jobs:
  train:
    schedule: "0 6 * * *"
`})

	jobs, err := env.repos.Job.ListJobDefinitions(ctx, project.SuuId)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "train", jobs[0].Name)

	schedules, err := env.repos.Job.ListSchedules(ctx, obsolete.SuuId)
	require.NoError(t, err)
	assert.Empty(t, schedules)

	due, err := env.repos.Job.ListDueSchedules(ctx, time.Now().UTC().Add(24*time.Hour))
	require.NoError(t, err)
	for _, schedule := range due {
		assert.NotEqual(t, obsolete.SuuId, schedule.JobDefinitionId, "a dropped job must not keep firing")
	}
}

func TestPackage_ReingestionKeepsRemovedJobWithRuns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	env.uploadPackage(t, project.SuuId, map[string]string{"askanna.yml": `
jobs:
  train: {}
  legacy:
    schedule: "0 * * * *"
`})

	legacy, err := env.repos.Job.GetJobDefinitionByName(ctx, project.SuuId, "legacy")
	require.NoError(t, err)
	_, err = env.svcs.Run.Create(ctx, &CreateRequest{
		JobDefinitionSuuid: legacy.SuuId,
		Trigger:            model.RunTriggerManual,
	})
	require.NoError(t, err)

	env.uploadPackage(t, project.SuuId, map[string]string{"askanna.yml": `
jobs:
  train: {}
`})

	kept, err := env.repos.Job.GetJobDefinition(ctx, legacy.SuuId)
	require.NoError(t, err, "a definition with run history survives removal")
	assert.Equal(t, "legacy", kept.Name)

	schedules, err := env.repos.Job.ListSchedules(ctx, legacy.SuuId)
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestPackage_ManifestImageCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	env.uploadPackage(t, project.SuuId, map[string]string{"askanna.yml": `
jobs:
  train:
    environment:
      image: registry.example.com/team/python:3
      credentials:
        username: deploy
        password: hunter2
`})

	jobDef, err := env.repos.Job.GetJobDefinitionByName(ctx, project.SuuId, "train")
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com/team/python:3", jobDef.EnvironmentImage)
	assert.Equal(t, "deploy", jobDef.EnvironmentUsername)
	assert.Equal(t, "hunter2", jobDef.EnvironmentPassword)

	// credentials dropped from the next config clear the stored ones
	env.uploadPackage(t, project.SuuId, map[string]string{"askanna.yml": `
jobs:
  train:
    environment:
      image: registry.example.com/team/python:3
`})

	jobDef, err = env.repos.Job.GetJobDefinitionByName(ctx, project.SuuId, "train")
	require.NoError(t, err)
	assert.Empty(t, jobDef.EnvironmentUsername)
	assert.Empty(t, jobDef.EnvironmentPassword)
}

func TestPackage_InvalidScheduleSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	env.uploadPackage(t, project.SuuId, map[string]string{"askanna.yml": `
jobs:
  train:
    schedule:
      - "not a cron line"
      - "15 3 * * *"
`})

	jobDef, err := env.repos.Job.GetJobDefinitionByName(ctx, project.SuuId, "train")
	require.NoError(t, err)
	schedules, err := env.repos.Job.ListSchedules(ctx, jobDef.SuuId)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "15 3 * * *", schedules[0].CronDefinition)
}

func TestPackage_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	env.uploadPackage(t, project.SuuId, map[string]string{"askanna.yml": `
jobs:
  train:
    timezone: Mars/Olympus_Mons
    schedule: "0 0 * * *"
`})

	jobDef, err := env.repos.Job.GetJobDefinitionByName(ctx, project.SuuId, "train")
	require.NoError(t, err)
	assert.Equal(t, "UTC", jobDef.Timezone)
}

func TestPackage_WithoutManifest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	pkg := env.uploadPackage(t, project.SuuId, map[string]string{"main.py": "print('hi')"})
	assert.True(t, pkg.IsAvailable())

	jobs, err := env.repos.Job.ListJobDefinitions(ctx, project.SuuId)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestPackage_Download(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	pkg := env.uploadPackage(t, project.SuuId, map[string]string{"main.py": "print('hi')"})

	rc, got, err := env.svcs.Package.Download(ctx, pkg.SuuId)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pkg.Size, int64(len(body)))
	assert.Equal(t, pkg.SuuId, got.SuuId)
}

func TestPackage_DeleteHidesDownload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	pkg := env.uploadPackage(t, project.SuuId, map[string]string{"main.py": ""})
	require.NoError(t, env.svcs.Package.Delete(ctx, pkg.SuuId))

	_, _, err := env.svcs.Package.Download(ctx, pkg.SuuId)
	require.Error(t, err)
	assert.Equal(t, apierror.NotFound, apierror.KindOf(err))
}

func TestPackage_CreateForUnknownProject(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.svcs.Package.Create(context.Background(), "missing-project", "", "code.zip")
	require.Error(t, err)
	assert.Equal(t, apierror.NotFound, apierror.KindOf(err))
}

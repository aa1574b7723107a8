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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/pkg/cronspec"
)

func (e *testEnv) seedSchedule(t *testing.T, jobDefSuuid, cron string, nextRunAt time.Time) *model.Schedule {
	t.Helper()
	schedule := &model.Schedule{
		JobDefinitionId: jobDefSuuid,
		MembershipId:    "member-1",
		CronDefinition:  cron,
		CronTimezone:    "UTC",
		NextRunAt:       &nextRunAt,
	}
	require.NoError(t, e.repos.Job.CreateSchedule(context.Background(), schedule))
	return schedule
}

func TestSchedule_TickFiresDueSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	now := time.Date(2026, 3, 2, 12, 0, 30, 0, time.UTC)
	due := now.Add(-20 * time.Second)
	schedule := env.seedSchedule(t, jobDef.SuuId, "0 * * * *", due)

	env.svcs.Schedule.Tick(ctx, now)

	runs, total, err := env.repos.Run.List(ctx, &repo.RunQuery{JobDefinitionId: jobDef.SuuId})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	run := runs[0]
	assert.Equal(t, model.RunTriggerSchedule, run.Trigger)
	assert.Equal(t, schedule.SuuId, run.ScheduleId)
	assert.Equal(t, "member-1", run.MembershipId)
	assert.Equal(t, model.RunStatusPending, run.Status)

	after, err := env.svcs.Schedule.Get(ctx, schedule.SuuId)
	require.NoError(t, err)
	expectedNext, err := cronspec.Next("0 * * * *", "UTC", now)
	require.NoError(t, err)
	require.NotNil(t, after.NextRunAt)
	assert.True(t, after.NextRunAt.Equal(expectedNext), "next_run_at advanced past the fired tick")
	require.NotNil(t, after.LastRunAt)
	assert.True(t, after.LastRunAt.Equal(due))
}

func TestSchedule_TickIsIdempotentPerDueTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	now := time.Date(2026, 3, 2, 12, 0, 30, 0, time.UTC)
	env.seedSchedule(t, jobDef.SuuId, "0 * * * *", now.Add(-20*time.Second))

	env.svcs.Schedule.Tick(ctx, now)
	env.svcs.Schedule.Tick(ctx, now)

	_, total, err := env.repos.Run.List(ctx, &repo.RunQuery{JobDefinitionId: jobDef.SuuId})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "the advanced next_run_at leaves nothing due")
}

func TestSchedule_TickSkipsFutureSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	env.seedSchedule(t, jobDef.SuuId, "0 * * * *", now.Add(time.Hour))

	env.svcs.Schedule.Tick(ctx, now)

	_, total, err := env.repos.Run.List(ctx, &repo.RunQuery{JobDefinitionId: jobDef.SuuId})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSchedule_TickDeletesOrphanSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	schedule := env.seedSchedule(t, "gone-job", "0 * * * *", now.Add(-time.Minute))

	env.svcs.Schedule.Tick(ctx, now)

	_, err := env.svcs.Schedule.Get(ctx, schedule.SuuId)
	require.Error(t, err)
	assert.Equal(t, apierror.NotFound, apierror.KindOf(err))
}

func TestSchedule_TickSkipsInactiveProject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	deleted := time.Now().UTC()
	err := env.db.Database().Model(&model.Project{}).
		Where("suuid = ?", project.SuuId).
		Update("deleted_at", deleted).Error
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	schedule := env.seedSchedule(t, jobDef.SuuId, "0 * * * *", now.Add(-time.Minute))

	env.svcs.Schedule.Tick(ctx, now)

	_, total, listErr := env.repos.Run.List(ctx, &repo.RunQuery{JobDefinitionId: jobDef.SuuId})
	require.NoError(t, listErr)
	assert.Zero(t, total)

	// the schedule stays put until the project comes back
	after, getErr := env.svcs.Schedule.Get(ctx, schedule.SuuId)
	require.NoError(t, getErr)
	require.NotNil(t, after.NextRunAt)
	assert.True(t, after.NextRunAt.Equal(now.Add(-time.Minute)))
}

func TestSchedule_SweepMissedAdvancesWithoutRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	missedAt := now.Add(-30 * time.Minute)
	schedule := env.seedSchedule(t, jobDef.SuuId, "*/5 * * * *", missedAt)

	env.svcs.Schedule.SweepMissed(ctx, now)

	_, total, err := env.repos.Run.List(ctx, &repo.RunQuery{JobDefinitionId: jobDef.SuuId})
	require.NoError(t, err)
	assert.Zero(t, total, "missed ticks are logged, not executed")

	after, err := env.svcs.Schedule.Get(ctx, schedule.SuuId)
	require.NoError(t, err)
	expectedNext, err := cronspec.Next("*/5 * * * *", "UTC", now)
	require.NoError(t, err)
	require.NotNil(t, after.NextRunAt)
	assert.True(t, after.NextRunAt.Equal(expectedNext))
}

func TestSchedule_SweepMissedLeavesRecentAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute) // within the grace window
	schedule := env.seedSchedule(t, jobDef.SuuId, "*/5 * * * *", recent)

	env.svcs.Schedule.SweepMissed(ctx, now)

	after, err := env.svcs.Schedule.Get(ctx, schedule.SuuId)
	require.NoError(t, err)
	require.NotNil(t, after.NextRunAt)
	assert.True(t, after.NextRunAt.Equal(recent))
}

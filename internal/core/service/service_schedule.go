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
	"time"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/pkg/cache"
	"github.com/askanna-io/runcore/pkg/cronspec"
	"github.com/askanna-io/runcore/pkg/log"
	"github.com/askanna-io/runcore/pkg/metrics"
	"gorm.io/gorm"
)

// missedGrace is how far next_run_at may lag before the fix-up sweep
// flags the schedule as missed.
const missedGrace = 5 * time.Minute

const scheduleLockTTL = 50 * time.Second

// ScheduleService turns due schedules into pending runs. Concurrent ticks
// are fenced by a per-schedule lock and the monotonicity of next_run_at.
type ScheduleService struct {
	jobRepo       repo.IJobRepository
	workspaceRepo repo.IWorkspaceRepository
	runSvc        *RunService
	cache         cache.ICache
}

func NewScheduleService(
	jobRepo repo.IJobRepository,
	workspaceRepo repo.IWorkspaceRepository,
	runSvc *RunService,
	c cache.ICache,
) *ScheduleService {
	return &ScheduleService{
		jobRepo:       jobRepo,
		workspaceRepo: workspaceRepo,
		runSvc:        runSvc,
		cache:         c,
	}
}

func (ss *ScheduleService) Get(ctx context.Context, suuid string) (*model.Schedule, error) {
	schedule, err := ss.jobRepo.GetSchedule(ctx, suuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.E(apierror.NotFound, "schedule %s not found", suuid)
		}
		return nil, apierror.Wrap(apierror.Internal, err, "get schedule")
	}
	return schedule, nil
}

func (ss *ScheduleService) ListForJob(ctx context.Context, jobDefinitionSuuid string) ([]*model.Schedule, error) {
	return ss.jobRepo.ListSchedules(ctx, jobDefinitionSuuid)
}

// Tick fires every due schedule once. Safe to call from multiple nodes.
func (ss *ScheduleService) Tick(ctx context.Context, now time.Time) {
	due, err := ss.jobRepo.ListDueSchedules(ctx, now)
	if err != nil {
		log.Errorw("failed to select due schedules", "error", err)
		return
	}

	for _, schedule := range due {
		if err := ss.fire(ctx, schedule, now); err != nil {
			log.Errorw("schedule tick failed", "schedule", schedule.SuuId, "error", err)
		}
	}
}

func (ss *ScheduleService) fire(ctx context.Context, schedule *model.Schedule, now time.Time) error {
	jobDef, err := ss.jobRepo.GetJobDefinition(ctx, schedule.JobDefinitionId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Orphaned schedule; drop its future ticks.
			return ss.jobRepo.DeleteSchedule(ctx, schedule.SuuId)
		}
		return err
	}
	active, err := ss.workspaceRepo.IsProjectChainActive(ctx, jobDef.ProjectId)
	if err != nil {
		return err
	}
	if !active {
		return nil
	}

	lockName := "schedule:tick:" + schedule.SuuId
	if err := ss.cache.TryLock(ctx, lockName, scheduleLockTTL); err != nil {
		if errors.Is(err, cache.ErrNotLocked) {
			return nil
		}
		return err
	}
	defer func() {
		if err := ss.cache.Unlock(context.WithoutCancel(ctx), lockName); err != nil {
			log.Warnw("failed to release schedule lock", "schedule", schedule.SuuId, "error", err)
		}
	}()

	if schedule.NextRunAt == nil {
		return nil
	}
	observedNext := *schedule.NextRunAt
	next, err := cronspec.Next(schedule.CronDefinition, schedule.CronTimezone, now)
	if err != nil {
		return err
	}

	// The CAS on next_run_at decides which tick owns this firing.
	advanced, err := ss.jobRepo.AdvanceSchedule(ctx, schedule.SuuId, observedNext, next)
	if err != nil {
		return err
	}
	if !advanced {
		return nil
	}

	_, err = ss.runSvc.Create(ctx, &CreateRequest{
		JobDefinitionSuuid: schedule.JobDefinitionId,
		Trigger:            model.RunTriggerSchedule,
		MembershipId:       schedule.MembershipId,
		ScheduleId:         schedule.SuuId,
	})
	if err != nil {
		return err
	}

	metrics.ScheduleTicks.Inc()
	log.Infow("schedule fired", "schedule", schedule.SuuId, "job", jobDef.SuuId, "nextRunAt", next)
	return nil
}

// SweepMissed repairs schedules whose next_run_at lags behind the clock by
// more than the grace window. The missed tick is logged, not executed.
func (ss *ScheduleService) SweepMissed(ctx context.Context, now time.Time) {
	overdue, err := ss.jobRepo.ListOverdueSchedules(ctx, now.Add(-missedGrace))
	if err != nil {
		log.Errorw("failed to select overdue schedules", "error", err)
		return
	}

	for _, schedule := range overdue {
		if schedule.NextRunAt == nil {
			continue
		}
		next, err := cronspec.Next(schedule.CronDefinition, schedule.CronTimezone, now)
		if err != nil {
			log.Errorw("failed to reschedule missed schedule", "schedule", schedule.SuuId, "error", err)
			continue
		}
		advanced, err := ss.jobRepo.AdvanceSchedule(ctx, schedule.SuuId, *schedule.NextRunAt, next)
		if err != nil {
			log.Errorw("failed to advance missed schedule", "schedule", schedule.SuuId, "error", err)
			continue
		}
		if advanced {
			log.Warnw("schedule missed its tick",
				"schedule", schedule.SuuId, "missedAt", schedule.NextRunAt, "nextRunAt", next)
		}
	}
}

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
	"time"

	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/pkg/blob"
	"github.com/askanna-io/runcore/pkg/database"
	"github.com/askanna-io/runcore/pkg/log"
)

// ReaperService hard-deletes soft-deleted entities once their TTL expired.
// An entity is only purged while its ancestors are alive: a soft-deleted
// ancestor purges the whole subtree itself when its own TTL expires.
type ReaperService struct {
	db          database.IDatabase
	store       blob.Store
	settingsSvc *SettingsService
}

func NewReaperService(db database.IDatabase, store blob.Store, settingsSvc *SettingsService) *ReaperService {
	return &ReaperService{db: db, store: store, settingsSvc: settingsSvc}
}

const (
	aliveProjects   = "SELECT suuid FROM t_project WHERE deleted_at IS NULL AND workspace_id IN (SELECT suuid FROM t_workspace WHERE deleted_at IS NULL)"
	aliveJobDefs    = "SELECT suuid FROM t_job_definition WHERE deleted_at IS NULL AND project_id IN (" + aliveProjects + ")"
	aliveRuns       = "SELECT suuid FROM t_run WHERE deleted_at IS NULL AND job_definition_id IN (" + aliveJobDefs + ")"
	aliveWorkspaces = "SELECT suuid FROM t_workspace WHERE deleted_at IS NULL"
)

// Sweep purges everything past the removal TTL, leafward first.
func (rps *ReaperService) Sweep(ctx context.Context, now time.Time) {
	ttl, err := rps.settingsSvc.GetHours(ctx, model.SettingObjectRemovalTTL)
	if err != nil {
		log.Errorw("reaper: cannot resolve removal ttl", "error", err)
		return
	}
	cutoff := now.Add(-ttl)

	rps.sweepArtifacts(ctx, cutoff)
	rps.sweepResults(ctx, cutoff)
	rps.sweepRuns(ctx, cutoff)
	rps.sweepPackages(ctx, cutoff)
	rps.sweepJobDefinitions(ctx, cutoff)
	rps.sweepProjects(ctx, cutoff)
	rps.sweepWorkspaces(ctx, cutoff)
}

func (rps *ReaperService) sweepArtifacts(ctx context.Context, cutoff time.Time) {
	var artifacts []*model.RunArtifact
	err := rps.db.Database().WithContext(ctx).
		Where("deleted_at IS NOT NULL AND deleted_at <= ?", cutoff).
		Where("run_id IN ("+aliveRuns+")").
		Find(&artifacts).Error
	if err != nil {
		log.Errorw("reaper: select artifacts failed", "error", err)
		return
	}
	for _, artifact := range artifacts {
		if artifact.BlobPath != "" {
			if err := rps.store.Delete(ctx, artifact.BlobPath); err != nil {
				log.Errorw("reaper: delete artifact blob failed", "artifact", artifact.SuuId, "error", err)
				continue
			}
		}
		if err := rps.db.Database().WithContext(ctx).Unscoped().
			Where("suuid = ?", artifact.SuuId).Delete(&model.RunArtifact{}).Error; err != nil {
			log.Errorw("reaper: delete artifact failed", "artifact", artifact.SuuId, "error", err)
			continue
		}
		log.Infow("reaper: artifact purged", "artifact", artifact.SuuId)
	}
}

func (rps *ReaperService) sweepResults(ctx context.Context, cutoff time.Time) {
	var results []*model.RunResult
	err := rps.db.Database().WithContext(ctx).
		Where("deleted_at IS NOT NULL AND deleted_at <= ?", cutoff).
		Where("run_id IN ("+aliveRuns+")").
		Find(&results).Error
	if err != nil {
		log.Errorw("reaper: select results failed", "error", err)
		return
	}
	for _, result := range results {
		if result.BlobPath != "" {
			if err := rps.store.Delete(ctx, result.BlobPath); err != nil {
				log.Errorw("reaper: delete result blob failed", "result", result.SuuId, "error", err)
				continue
			}
		}
		if err := rps.db.Database().WithContext(ctx).Unscoped().
			Where("suuid = ?", result.SuuId).Delete(&model.RunResult{}).Error; err != nil {
			log.Errorw("reaper: delete result failed", "result", result.SuuId, "error", err)
			continue
		}
		log.Infow("reaper: result purged", "result", result.SuuId)
	}
}

func (rps *ReaperService) sweepRuns(ctx context.Context, cutoff time.Time) {
	var runs []*model.Run
	err := rps.db.Database().WithContext(ctx).
		Where("deleted_at IS NOT NULL AND deleted_at <= ?", cutoff).
		Where("job_definition_id IN ("+aliveJobDefs+")").
		Find(&runs).Error
	if err != nil {
		log.Errorw("reaper: select runs failed", "error", err)
		return
	}
	for _, run := range runs {
		if err := rps.purgeRun(ctx, run); err != nil {
			log.Errorw("reaper: purge run failed", "run", run.SuuId, "error", err)
			continue
		}
		log.Infow("reaper: run purged", "run", run.SuuId)
	}
}

// purgeRun removes a run and every record and blob hanging off it.
func (rps *ReaperService) purgeRun(ctx context.Context, run *model.Run) error {
	if err := rps.store.DeletePrefix(ctx, blob.RunDir(run.SuuId)); err != nil {
		return err
	}

	db := rps.db.Database().WithContext(ctx).Unscoped()
	for _, target := range []any{
		&model.RunArtifact{}, &model.RunResult{}, &model.RunLog{},
	} {
		if err := db.Where("run_id = ?", run.SuuId).Delete(target).Error; err != nil {
			return err
		}
	}
	for _, target := range []any{
		&model.MetricRow{}, &model.VariableRow{}, &model.MetricMeta{}, &model.VariableMeta{},
	} {
		if err := db.Where("run_id = ?", run.SuuId).Delete(target).Error; err != nil {
			return err
		}
	}
	return db.Where("suuid = ?", run.SuuId).Delete(&model.Run{}).Error
}

func (rps *ReaperService) sweepPackages(ctx context.Context, cutoff time.Time) {
	var packages []*model.Package
	err := rps.db.Database().WithContext(ctx).
		Where("deleted_at IS NOT NULL AND deleted_at <= ?", cutoff).
		Where("project_id IN ("+aliveProjects+")").
		Find(&packages).Error
	if err != nil {
		log.Errorw("reaper: select packages failed", "error", err)
		return
	}
	for _, pkg := range packages {
		if pkg.BlobPath != "" {
			if err := rps.store.Delete(ctx, pkg.BlobPath); err != nil {
				log.Errorw("reaper: delete package blob failed", "package", pkg.SuuId, "error", err)
				continue
			}
		}
		if err := rps.db.Database().WithContext(ctx).Unscoped().
			Where("suuid = ?", pkg.SuuId).Delete(&model.Package{}).Error; err != nil {
			log.Errorw("reaper: delete package failed", "package", pkg.SuuId, "error", err)
			continue
		}
		log.Infow("reaper: package purged", "package", pkg.SuuId)
	}
}

func (rps *ReaperService) sweepJobDefinitions(ctx context.Context, cutoff time.Time) {
	var jobDefs []*model.JobDefinition
	err := rps.db.Database().WithContext(ctx).
		Where("deleted_at IS NOT NULL AND deleted_at <= ?", cutoff).
		Where("project_id IN ("+aliveProjects+")").
		Find(&jobDefs).Error
	if err != nil {
		log.Errorw("reaper: select job definitions failed", "error", err)
		return
	}
	db := rps.db.Database().WithContext(ctx).Unscoped()
	for _, jobDef := range jobDefs {
		if err := db.Where("job_definition_id = ?", jobDef.SuuId).Delete(&model.Schedule{}).Error; err != nil {
			log.Errorw("reaper: delete schedules failed", "jobDefinition", jobDef.SuuId, "error", err)
			continue
		}
		if err := db.Where("suuid = ?", jobDef.SuuId).Delete(&model.JobDefinition{}).Error; err != nil {
			log.Errorw("reaper: delete job definition failed", "jobDefinition", jobDef.SuuId, "error", err)
			continue
		}
		log.Infow("reaper: job definition purged", "jobDefinition", jobDef.SuuId)
	}
}

func (rps *ReaperService) sweepProjects(ctx context.Context, cutoff time.Time) {
	var projects []*model.Project
	err := rps.db.Database().WithContext(ctx).
		Where("deleted_at IS NOT NULL AND deleted_at <= ?", cutoff).
		Where("workspace_id IN ("+aliveWorkspaces+")").
		Find(&projects).Error
	if err != nil {
		log.Errorw("reaper: select projects failed", "error", err)
		return
	}
	for _, project := range projects {
		if err := rps.purgeProject(ctx, project); err != nil {
			log.Errorw("reaper: purge project failed", "project", project.SuuId, "error", err)
			continue
		}
		log.Infow("reaper: project purged", "project", project.SuuId)
	}
}

// purgeProject cascades through everything owned by the project.
func (rps *ReaperService) purgeProject(ctx context.Context, project *model.Project) error {
	db := rps.db.Database().WithContext(ctx)

	var runs []*model.Run
	if err := db.Where("project_id = ?", project.SuuId).Find(&runs).Error; err != nil {
		return err
	}
	for _, run := range runs {
		if err := rps.purgeRun(ctx, run); err != nil {
			return err
		}
	}

	var packages []*model.Package
	if err := db.Where("project_id = ?", project.SuuId).Find(&packages).Error; err != nil {
		return err
	}
	for _, pkg := range packages {
		if pkg.BlobPath != "" {
			if err := rps.store.Delete(ctx, pkg.BlobPath); err != nil {
				return err
			}
		}
	}

	unscoped := db.Unscoped()
	if err := unscoped.Where("project_id = ?", project.SuuId).Delete(&model.Package{}).Error; err != nil {
		return err
	}
	if err := unscoped.
		Where("job_definition_id IN (SELECT suuid FROM t_job_definition WHERE project_id = ?)", project.SuuId).
		Delete(&model.Schedule{}).Error; err != nil {
		return err
	}
	for _, target := range []any{
		&model.Payload{}, &model.JobDefinition{}, &model.Variable{},
	} {
		if err := unscoped.Where("project_id = ?", project.SuuId).Delete(target).Error; err != nil {
			return err
		}
	}
	return unscoped.Where("suuid = ?", project.SuuId).Delete(&model.Project{}).Error
}

func (rps *ReaperService) sweepWorkspaces(ctx context.Context, cutoff time.Time) {
	var workspaces []*model.Workspace
	err := rps.db.Database().WithContext(ctx).
		Where("deleted_at IS NOT NULL AND deleted_at <= ?", cutoff).
		Find(&workspaces).Error
	if err != nil {
		log.Errorw("reaper: select workspaces failed", "error", err)
		return
	}
	for _, workspace := range workspaces {
		var projects []*model.Project
		err := rps.db.Database().WithContext(ctx).
			Where("workspace_id = ?", workspace.SuuId).
			Find(&projects).Error
		if err != nil {
			log.Errorw("reaper: select workspace projects failed", "workspace", workspace.SuuId, "error", err)
			continue
		}
		failed := false
		for _, project := range projects {
			if err := rps.purgeProject(ctx, project); err != nil {
				log.Errorw("reaper: purge project failed", "project", project.SuuId, "error", err)
				failed = true
				break
			}
		}
		if failed {
			continue
		}

		unscoped := rps.db.Database().WithContext(ctx).Unscoped()
		if err := unscoped.Where("workspace_id = ?", workspace.SuuId).Delete(&model.Membership{}).Error; err != nil {
			log.Errorw("reaper: delete memberships failed", "workspace", workspace.SuuId, "error", err)
			continue
		}
		if err := unscoped.Where("suuid = ?", workspace.SuuId).Delete(&model.Workspace{}).Error; err != nil {
			log.Errorw("reaper: delete workspace failed", "workspace", workspace.SuuId, "error", err)
			continue
		}
		log.Infow("reaper: workspace purged", "workspace", workspace.SuuId)
	}
}

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

	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/pkg/database"
)

// IWorkspaceRepository covers the account-domain skeleton: workspaces,
// projects and memberships, plus the centralized ownership-chain predicate.
type IWorkspaceRepository interface {
	CreateWorkspace(ctx context.Context, workspace *model.Workspace) error
	GetWorkspace(ctx context.Context, suuid string) (*model.Workspace, error)
	CreateProject(ctx context.Context, project *model.Project) error
	GetProject(ctx context.Context, suuid string) (*model.Project, error)
	CreateMembership(ctx context.Context, membership *model.Membership) error
	GetMembership(ctx context.Context, suuid string) (*model.Membership, error)

	// IsProjectChainActive reports whether the project and its workspace
	// are both alive. The single visibility predicate every read path uses.
	IsProjectChainActive(ctx context.Context, projectId string) (bool, error)
}

type WorkspaceRepo struct {
	database.IDatabase
}

func NewWorkspaceRepo(db database.IDatabase) IWorkspaceRepository {
	return &WorkspaceRepo{IDatabase: db}
}

func (r *WorkspaceRepo) CreateWorkspace(ctx context.Context, workspace *model.Workspace) error {
	return r.Database().WithContext(ctx).Create(workspace).Error
}

func (r *WorkspaceRepo) GetWorkspace(ctx context.Context, suuid string) (*model.Workspace, error) {
	var one model.Workspace
	if err := r.Database().WithContext(ctx).
		Where("suuid = ?", suuid).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *WorkspaceRepo) CreateProject(ctx context.Context, project *model.Project) error {
	return r.Database().WithContext(ctx).Create(project).Error
}

func (r *WorkspaceRepo) GetProject(ctx context.Context, suuid string) (*model.Project, error) {
	var one model.Project
	if err := r.Database().WithContext(ctx).
		Where("suuid = ?", suuid).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *WorkspaceRepo) CreateMembership(ctx context.Context, membership *model.Membership) error {
	return r.Database().WithContext(ctx).Create(membership).Error
}

func (r *WorkspaceRepo) GetMembership(ctx context.Context, suuid string) (*model.Membership, error) {
	var one model.Membership
	if err := r.Database().WithContext(ctx).
		Where("suuid = ?", suuid).
		First(&one).Error; err != nil {
		return nil, err
	}
	return &one, nil
}

func (r *WorkspaceRepo) IsProjectChainActive(ctx context.Context, projectId string) (bool, error) {
	var project model.Project
	err := r.Database().WithContext(ctx).
		Where("suuid = ? AND deleted_at IS NULL", projectId).
		First(&project).Error
	if err != nil {
		return false, nil
	}

	var count int64
	err = r.Database().WithContext(ctx).Model(&model.Workspace{}).
		Where("suuid = ? AND deleted_at IS NULL", project.WorkspaceId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

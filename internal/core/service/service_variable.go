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
	"strings"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
)

// VariableService manages project-scoped variables injected into run
// containers. Masking is one-way: a masked value never surfaces again.
type VariableService struct {
	trackingRepo  repo.ITrackingRepository
	workspaceRepo repo.IWorkspaceRepository
}

func NewVariableService(trackingRepo repo.ITrackingRepository, workspaceRepo repo.IWorkspaceRepository) *VariableService {
	return &VariableService{trackingRepo: trackingRepo, workspaceRepo: workspaceRepo}
}

// Create adds a variable. Names matching a secret marker are masked
// regardless of the caller's flag.
func (vs *VariableService) Create(ctx context.Context, projectSuuid, name, value string, isMasked bool) (*model.Variable, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierror.E(apierror.InvalidInput, "variable name is required")
	}
	active, err := vs.workspaceRepo.IsProjectChainActive(ctx, projectSuuid)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "check project")
	}
	if !active {
		return nil, apierror.E(apierror.NotFound, "project %s not found", projectSuuid)
	}

	variable := &model.Variable{
		ProjectId: projectSuuid,
		Name:      name,
		Value:     value,
		IsMasked:  isMasked || NeedsMask(name),
	}
	if err := vs.trackingRepo.CreateVariable(ctx, variable); err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "create variable")
	}
	return vs.redact(variable), nil
}

// Get returns a variable with its value redacted when masked.
func (vs *VariableService) Get(ctx context.Context, suuid string) (*model.Variable, error) {
	variable, err := vs.trackingRepo.GetVariable(ctx, suuid)
	if err != nil {
		return nil, apierror.E(apierror.NotFound, "variable %s not found", suuid)
	}
	return vs.redact(variable), nil
}

// List returns the variables of a project, values redacted when masked.
func (vs *VariableService) List(ctx context.Context, projectSuuid string) ([]*model.Variable, error) {
	variables, err := vs.trackingRepo.ListVariables(ctx, projectSuuid)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, err, "list variables")
	}
	out := make([]*model.Variable, len(variables))
	for i, variable := range variables {
		out[i] = vs.redact(variable)
	}
	return out, nil
}

// UpdateRequest carries the mutable fields of a variable. Nil means keep.
type UpdateRequest struct {
	Name     *string
	Value    *string
	IsMasked *bool
}

// Update mutates a variable copy-on-write. Clearing is_masked is refused.
func (vs *VariableService) Update(ctx context.Context, suuid string, req *UpdateRequest) (*model.Variable, error) {
	variable, err := vs.trackingRepo.GetVariable(ctx, suuid)
	if err != nil {
		return nil, apierror.E(apierror.NotFound, "variable %s not found", suuid)
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apierror.E(apierror.InvalidInput, "variable name is required")
		}
		updates["name"] = name
		variable.Name = name
	}
	if req.Value != nil {
		updates["value"] = *req.Value
		variable.Value = *req.Value
	}
	if req.IsMasked != nil {
		if variable.IsMasked && !*req.IsMasked {
			return nil, apierror.E(apierror.InvalidInput, "is_masked cannot be cleared")
		}
		if *req.IsMasked {
			updates["is_masked"] = true
			variable.IsMasked = true
		}
	}
	if !variable.IsMasked && NeedsMask(variable.Name) {
		updates["is_masked"] = true
		variable.IsMasked = true
	}

	if len(updates) > 0 {
		if err := vs.trackingRepo.UpdateVariable(ctx, suuid, updates); err != nil {
			return nil, apierror.Wrap(apierror.Internal, err, "update variable")
		}
	}
	return vs.redact(variable), nil
}

// Delete soft-deletes a variable.
func (vs *VariableService) Delete(ctx context.Context, suuid string) error {
	if _, err := vs.trackingRepo.GetVariable(ctx, suuid); err != nil {
		return apierror.E(apierror.NotFound, "variable %s not found", suuid)
	}
	return vs.trackingRepo.DeleteVariable(ctx, suuid)
}

// EnvFor returns the cleartext name=value environment of a project for
// container injection, plus the redacted snapshot for persistence.
func (vs *VariableService) EnvFor(ctx context.Context, projectSuuid string) (env map[string]string, snapshot map[string]string, err error) {
	variables, err := vs.trackingRepo.ListVariables(ctx, projectSuuid)
	if err != nil {
		return nil, nil, apierror.Wrap(apierror.Internal, err, "list variables")
	}

	env = make(map[string]string, len(variables))
	snapshot = make(map[string]string, len(variables))
	for _, variable := range variables {
		env[variable.Name] = variable.Value
		if variable.IsMasked {
			snapshot[variable.Name] = model.MaskedSentinel
		} else {
			snapshot[variable.Name] = variable.Value
		}
	}
	return env, snapshot, nil
}

func (vs *VariableService) redact(variable *model.Variable) *model.Variable {
	out := *variable
	if out.IsMasked {
		out.Value = model.MaskedSentinel
	}
	return &out
}

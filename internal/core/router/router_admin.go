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

package router

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/pkg/http"
)

// adminRouter exposes settings plus the minimal workspace, project and
// membership surface other deployments provision the run domain with.
func (rt *Router) adminRouter(r fiber.Router) {
	setting := r.Group("/settings")
	{
		setting.Get("/", rt.listSettings)
		setting.Get("/:name", rt.getSetting)
		setting.Put("/:name", rt.putSetting)
	}

	workspace := r.Group("/workspaces")
	{
		workspace.Post("/", rt.createWorkspace)
		workspace.Get("/:workspaceId", rt.getWorkspace)
	}

	project := r.Group("/projects")
	{
		project.Post("/", rt.createProject)
		project.Get("/:projectId", rt.getProject)
		project.Get("/:projectId/jobs", rt.listProjectJobs)
	}

	membership := r.Group("/memberships")
	{
		membership.Post("/", rt.createMembership)
		membership.Get("/:membershipId", rt.getMembership)
	}
}

func (rt *Router) listSettings(c *fiber.Ctx) error {
	settings, err := rt.Services.Settings.List(c.Context())
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, settings)
}

func (rt *Router) getSetting(c *fiber.Ctx) error {
	value, err := rt.Services.Settings.Get(c.Context(), c.Params("name"))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, fiber.Map{"name": c.Params("name"), "value": value})
}

func (rt *Router) putSetting(c *fiber.Ctx) error {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}

	if err := rt.Services.Settings.Set(c.Context(), c.Params("name"), req.Value); err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, fiber.Map{"name": c.Params("name"), "value": req.Value})
}

func (rt *Router) createWorkspace(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	if strings.TrimSpace(req.Name) == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "name is required", c.Path())
	}

	workspace := &model.Workspace{Name: strings.TrimSpace(req.Name)}
	if err := rt.Repos.Workspace.CreateWorkspace(c.Context(), workspace); err != nil {
		return http.WithRepErrMsg(c, http.InternalError.Code, err.Error(), c.Path())
	}
	return http.WithRepStatus(c, fiber.StatusCreated, workspace)
}

func (rt *Router) getWorkspace(c *fiber.Ctx) error {
	workspace, err := rt.Repos.Workspace.GetWorkspace(c.Context(), c.Params("workspaceId"))
	if err != nil {
		return repoError(c, err, "workspace not found")
	}
	return http.WithRep(c, workspace)
}

func (rt *Router) createProject(c *fiber.Ctx) error {
	var req struct {
		WorkspaceId string `json:"workspaceId"`
		Name        string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	if strings.TrimSpace(req.WorkspaceId) == "" || strings.TrimSpace(req.Name) == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "workspaceId and name are required", c.Path())
	}
	if _, err := rt.Repos.Workspace.GetWorkspace(c.Context(), req.WorkspaceId); err != nil {
		return repoError(c, err, "workspace not found")
	}

	project := &model.Project{
		WorkspaceId: strings.TrimSpace(req.WorkspaceId),
		Name:        strings.TrimSpace(req.Name),
	}
	if err := rt.Repos.Workspace.CreateProject(c.Context(), project); err != nil {
		return http.WithRepErrMsg(c, http.InternalError.Code, err.Error(), c.Path())
	}
	return http.WithRepStatus(c, fiber.StatusCreated, project)
}

func (rt *Router) getProject(c *fiber.Ctx) error {
	project, err := rt.Repos.Workspace.GetProject(c.Context(), c.Params("projectId"))
	if err != nil {
		return repoError(c, err, "project not found")
	}
	return http.WithRep(c, project)
}

func (rt *Router) listProjectJobs(c *fiber.Ctx) error {
	list, err := rt.Repos.Job.ListJobDefinitions(c.Context(), c.Params("projectId"))
	if err != nil {
		return http.WithRepErrMsg(c, http.InternalError.Code, err.Error(), c.Path())
	}
	return http.WithRep(c, fiber.Map{"count": len(list), "results": list})
}

func (rt *Router) createMembership(c *fiber.Ctx) error {
	var req struct {
		WorkspaceId string `json:"workspaceId"`
		UserId      string `json:"userId"`
		Role        string `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	if strings.TrimSpace(req.WorkspaceId) == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "workspaceId is required", c.Path())
	}
	if _, err := rt.Repos.Workspace.GetWorkspace(c.Context(), req.WorkspaceId); err != nil {
		return repoError(c, err, "workspace not found")
	}

	membership := &model.Membership{
		WorkspaceId: strings.TrimSpace(req.WorkspaceId),
		UserId:      strings.TrimSpace(req.UserId),
		Role:        strings.TrimSpace(req.Role),
	}
	if err := rt.Repos.Workspace.CreateMembership(c.Context(), membership); err != nil {
		return http.WithRepErrMsg(c, http.InternalError.Code, err.Error(), c.Path())
	}
	return http.WithRepStatus(c, fiber.StatusCreated, membership)
}

func (rt *Router) getMembership(c *fiber.Ctx) error {
	membership, err := rt.Repos.Workspace.GetMembership(c.Context(), c.Params("membershipId"))
	if err != nil {
		return repoError(c, err, "membership not found")
	}
	return http.WithRep(c, membership)
}

func repoError(c *fiber.Ctx, err error, notFoundMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.WithRepErrMsg(c, http.NotFound.Code, notFoundMsg, c.Path())
	}
	return http.WithRepErrMsg(c, http.InternalError.Code, err.Error(), c.Path())
}

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
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/service"
	"github.com/askanna-io/runcore/pkg/http"
)

func (rt *Router) variableRouter(r fiber.Router) {
	project := r.Group("/projects/:projectId/variables")
	{
		project.Post("/", rt.createVariable)
		project.Get("/", rt.listProjectVariables)
	}

	variable := r.Group("/variables")
	{
		variable.Get("/:variableId", rt.getVariable)
		variable.Patch("/:variableId", rt.updateVariable)
		variable.Delete("/:variableId", rt.deleteVariable)
	}
}

// variableView exposes the redacted value, which the model hides from its
// own serialization.
func variableView(v *model.Variable) fiber.Map {
	return fiber.Map{
		"suuid":      v.SuuId,
		"projectId":  v.ProjectId,
		"name":       v.Name,
		"value":      v.Value,
		"isMasked":   v.IsMasked,
		"createdAt":  v.CreatedAt,
		"modifiedAt": v.ModifiedAt,
	}
}

func (rt *Router) createVariable(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name"`
		Value    string `json:"value"`
		IsMasked bool   `json:"isMasked"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}

	variable, err := rt.Services.Variable.Create(c.Context(), c.Params("projectId"), strings.TrimSpace(req.Name), req.Value, req.IsMasked)
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRepStatus(c, fiber.StatusCreated, variableView(variable))
}

func (rt *Router) listProjectVariables(c *fiber.Ctx) error {
	list, err := rt.Services.Variable.List(c.Context(), c.Params("projectId"))
	if err != nil {
		return apiError(c, err)
	}
	views := make([]fiber.Map, 0, len(list))
	for _, variable := range list {
		views = append(views, variableView(variable))
	}
	return http.WithRep(c, fiber.Map{"count": len(views), "results": views})
}

func (rt *Router) getVariable(c *fiber.Ctx) error {
	variable, err := rt.Services.Variable.Get(c.Context(), c.Params("variableId"))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, variableView(variable))
}

func (rt *Router) updateVariable(c *fiber.Ctx) error {
	var req struct {
		Name     *string `json:"name"`
		Value    *string `json:"value"`
		IsMasked *bool   `json:"isMasked"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}

	variable, err := rt.Services.Variable.Update(c.Context(), c.Params("variableId"), &service.UpdateRequest{
		Name:     req.Name,
		Value:    req.Value,
		IsMasked: req.IsMasked,
	})
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, variableView(variable))
}

func (rt *Router) deleteVariable(c *fiber.Ctx) error {
	if err := rt.Services.Variable.Delete(c.Context(), c.Params("variableId")); err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, nil)
}

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
	"github.com/gofiber/fiber/v2"

	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/core/service"
	"github.com/askanna-io/runcore/pkg/http"
)

func (rt *Router) trackingRouter(r fiber.Router) {
	run := r.Group("/runs/:runId")
	{
		run.Post("/metrics", rt.appendMetrics)
		run.Get("/metrics", rt.listMetrics)
		run.Post("/variables", rt.appendVariables)
		run.Get("/variables", rt.listVariables)
	}
}

func (rt *Router) appendMetrics(c *fiber.Ctx) error {
	return rt.appendRows(c, service.KindMetric)
}

func (rt *Router) appendVariables(c *fiber.Ctx) error {
	return rt.appendRows(c, service.KindVariable)
}

func (rt *Router) appendRows(c *fiber.Ctx, kind string) error {
	var req struct {
		Rows []service.IngestRow `json:"rows"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	if len(req.Rows) == 0 {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "rows is required", c.Path())
	}

	if err := rt.Services.Ingest.Append(c.Context(), kind, c.Params("runId"), req.Rows); err != nil {
		return apiError(c, err)
	}
	return http.WithRepStatus(c, fiber.StatusAccepted, fiber.Map{"accepted": len(req.Rows)})
}

func (rt *Router) listMetrics(c *fiber.Ctx) error {
	rows, err := rt.Services.Ingest.ListMetricRows(c.Context(), rt.rowQuery(c))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, fiber.Map{"count": len(rows), "results": rows})
}

func (rt *Router) listVariables(c *fiber.Ctx) error {
	rows, err := rt.Services.Ingest.ListVariableRows(c.Context(), rt.rowQuery(c))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, fiber.Map{"count": len(rows), "results": rows})
}

func (rt *Router) rowQuery(c *fiber.Ctx) *repo.RowQuery {
	return &repo.RowQuery{
		RunId:     c.Params("runId"),
		Name:      c.Query("name"),
		LabelName: c.Query("labelName"),
		Page:      http.QueryInt(c, "page"),
		PageSize:  http.QueryInt(c, "pageSize"),
	}
}

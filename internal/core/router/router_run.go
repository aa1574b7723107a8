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
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/core/service"
	"github.com/askanna-io/runcore/pkg/http"
)

func (rt *Router) runRouter(r fiber.Router) {
	job := r.Group("/jobs")
	{
		job.Get("/:jobId", rt.getJob)
		job.Post("/:jobId/runs", rt.createRun)
		job.Get("/:jobId/schedules", rt.listJobSchedules)
	}
	r.Get("/schedules/:scheduleId", rt.getSchedule)

	run := r.Group("/runs")
	{
		run.Get("/", rt.listRuns)
		run.Get("/:runId", rt.getRun)
		run.Post("/:runId/cancel", rt.cancelRun)
		run.Get("/:runId/log", rt.getRunLog)

		run.Post("/:runId/artifacts", rt.beginArtifact)
		run.Get("/:runId/artifacts", rt.listArtifacts)
		run.Post("/artifacts/uploads/:uploadId/complete", rt.completeArtifact)

		run.Post("/:runId/result", rt.beginResult)
		run.Get("/:runId/result", rt.getResult)
		run.Get("/:runId/result/download", rt.downloadResult)
		run.Post("/result/uploads/:uploadId/complete", rt.completeResult)
	}

	artifact := r.Group("/artifacts")
	{
		artifact.Get("/:artifactId", rt.getArtifact)
		artifact.Get("/:artifactId/download", rt.downloadArtifact)
	}
}

func (rt *Router) getJob(c *fiber.Ctx) error {
	jobDef, err := rt.Repos.Job.GetJobDefinition(c.Context(), c.Params("jobId"))
	if err != nil {
		return repoError(c, err, "job not found")
	}
	return http.WithRep(c, jobDef)
}

// createRun starts a run from an inline JSON payload. The request body is
// stored verbatim as the run payload; an empty body means an empty payload.
func (rt *Router) createRun(c *fiber.Ctx) error {
	membershipId := strings.TrimSpace(c.Query("membershipId"))

	var payload []byte
	if len(c.Body()) > 0 {
		payload = append(payload, c.Body()...)
	}

	run, err := rt.Services.Run.Create(c.Context(), &service.CreateRequest{
		JobDefinitionSuuid: c.Params("jobId"),
		Trigger:            model.RunTriggerManual,
		MembershipId:       membershipId,
		Payload:            payload,
	})
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRepStatus(c, fiber.StatusCreated, run)
}

func (rt *Router) listJobSchedules(c *fiber.Ctx) error {
	list, err := rt.Services.Schedule.ListForJob(c.Context(), c.Params("jobId"))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, fiber.Map{"count": len(list), "results": list})
}

func (rt *Router) getSchedule(c *fiber.Ctx) error {
	schedule, err := rt.Services.Schedule.Get(c.Context(), c.Params("scheduleId"))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, schedule)
}

func (rt *Router) listRuns(c *fiber.Ctx) error {
	list, total, err := rt.Services.Run.List(c.Context(), &repo.RunQuery{
		JobDefinitionId: c.Query("jobId"),
		ProjectId:       c.Query("projectId"),
		Status:          c.Query("status"),
		Page:            http.QueryInt(c, "page"),
		PageSize:        http.QueryInt(c, "pageSize"),
	})
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, fiber.Map{"count": total, "results": list})
}

func (rt *Router) getRun(c *fiber.Ctx) error {
	run, err := rt.Services.Run.Get(c.Context(), c.Params("runId"))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, run)
}

func (rt *Router) cancelRun(c *fiber.Ctx) error {
	if err := rt.Services.Run.Cancel(c.Context(), c.Params("runId")); err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, nil)
}

func (rt *Router) getRunLog(c *fiber.Ctx) error {
	entries, err := rt.Services.Run.ReadLog(c.Context(), c.Params("runId"))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, entries)
}

func (rt *Router) beginArtifact(c *fiber.Ctx) error {
	artifact, upload, err := rt.Services.Artifact.BeginArtifact(c.Context(), c.Params("runId"))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRepStatus(c, fiber.StatusCreated, fiber.Map{
		"artifact": artifact,
		"upload":   upload,
	})
}

func (rt *Router) listArtifacts(c *fiber.Ctx) error {
	list, err := rt.Services.Artifact.ListArtifacts(c.Context(), c.Params("runId"))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, fiber.Map{"count": len(list), "results": list})
}

func (rt *Router) completeArtifact(c *fiber.Ctx) error {
	var req struct {
		TotalSize int64  `json:"totalSize"`
		TotalEtag string `json:"totalEtag"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}

	artifact, err := rt.Services.Artifact.CompleteArtifact(c.Context(), c.Params("uploadId"), req.TotalSize, req.TotalEtag)
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, artifact)
}

func (rt *Router) getArtifact(c *fiber.Ctx) error {
	artifact, err := rt.Services.Artifact.GetArtifact(c.Context(), c.Params("artifactId"))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, artifact)
}

func (rt *Router) downloadArtifact(c *fiber.Ctx) error {
	reader, artifact, err := rt.Services.Artifact.DownloadArtifact(c.Context(), c.Params("artifactId"))
	if err != nil {
		return apiError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "artifact_"+artifact.SuuId+".zip"))
	return c.SendStream(reader, int(artifact.Size))
}

func (rt *Router) beginResult(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}

	result, upload, err := rt.Services.Artifact.BeginResult(c.Context(), c.Params("runId"), req.Name)
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRepStatus(c, fiber.StatusCreated, fiber.Map{
		"result": result,
		"upload": upload,
	})
}

func (rt *Router) completeResult(c *fiber.Ctx) error {
	var req struct {
		TotalSize int64  `json:"totalSize"`
		TotalEtag string `json:"totalEtag"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}

	result, err := rt.Services.Artifact.CompleteResult(c.Context(), c.Params("uploadId"), req.TotalSize, req.TotalEtag)
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, result)
}

func (rt *Router) getResult(c *fiber.Ctx) error {
	result, err := rt.Services.Artifact.GetResult(c.Context(), c.Params("runId"))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, result)
}

func (rt *Router) downloadResult(c *fiber.Ctx) error {
	reader, result, err := rt.Services.Artifact.DownloadResult(c.Context(), c.Params("runId"))
	if err != nil {
		return apiError(c, err)
	}
	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := result.Name
	if name == "" {
		name = "result_" + result.SuuId
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.SendStream(reader, int(result.Size))
}

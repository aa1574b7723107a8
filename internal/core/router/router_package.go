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

	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/pkg/http"
)

func (rt *Router) packageRouter(r fiber.Router) {
	pkg := r.Group("/packages")
	{
		pkg.Post("/", rt.createPackage)
		pkg.Get("/", rt.listPackages)
		pkg.Get("/:packageId", rt.getPackage)
		pkg.Delete("/:packageId", rt.deletePackage)
		pkg.Get("/:packageId/download", rt.downloadPackage)
		pkg.Post("/uploads/:uploadId/complete", rt.completePackage)
		pkg.Post("/uploads/:uploadId/abort", rt.abortPackage)
	}

	upload := r.Group("/uploads")
	{
		upload.Get("/:uploadId", rt.getUpload)
		upload.Put("/:uploadId/parts/:partNumber", rt.putUploadPart)
		upload.Post("/:uploadId/abort", rt.abortUpload)
	}
}

func (rt *Router) createPackage(c *fiber.Ctx) error {
	var req struct {
		ProjectId string `json:"projectId"`
		CreatedBy string `json:"createdBy"`
		Filename  string `json:"filename"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	if strings.TrimSpace(req.ProjectId) == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "projectId is required", c.Path())
	}

	pkg, upload, err := rt.Services.Package.Create(c.Context(), req.ProjectId, req.CreatedBy, req.Filename)
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRepStatus(c, fiber.StatusCreated, fiber.Map{
		"package": pkg,
		"upload":  upload,
	})
}

func (rt *Router) listPackages(c *fiber.Ctx) error {
	list, total, err := rt.Services.Package.List(c.Context(), &repo.PackageQuery{
		ProjectId: c.Query("projectId"),
		Page:      http.QueryInt(c, "page"),
		PageSize:  http.QueryInt(c, "pageSize"),
	})
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, fiber.Map{"count": total, "results": list})
}

func (rt *Router) getPackage(c *fiber.Ctx) error {
	pkg, err := rt.Services.Package.Get(c.Context(), c.Params("packageId"))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, pkg)
}

func (rt *Router) deletePackage(c *fiber.Ctx) error {
	if err := rt.Services.Package.Delete(c.Context(), c.Params("packageId")); err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, nil)
}

func (rt *Router) downloadPackage(c *fiber.Ctx) error {
	reader, pkg, err := rt.Services.Package.Download(c.Context(), c.Params("packageId"))
	if err != nil {
		return apiError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", pkg.OriginalFilename))
	return c.SendStream(reader, int(pkg.Size))
}

func (rt *Router) completePackage(c *fiber.Ctx) error {
	var req struct {
		TotalSize int64  `json:"totalSize"`
		TotalEtag string `json:"totalEtag"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}

	pkg, err := rt.Services.Package.Complete(c.Context(), c.Params("uploadId"), req.TotalSize, req.TotalEtag)
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, pkg)
}

func (rt *Router) abortPackage(c *fiber.Ctx) error {
	if err := rt.Services.Package.Abort(c.Context(), c.Params("uploadId")); err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, nil)
}

func (rt *Router) getUpload(c *fiber.Ctx) error {
	upload, err := rt.Services.Upload.Get(c.Context(), c.Params("uploadId"))
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, upload)
}

// putUploadPart receives one raw chunk body. The etag query parameter is the
// client-computed MD5 of the chunk; isLast marks the final chunk.
func (rt *Router) putUploadPart(c *fiber.Ctx) error {
	partNumber, err := c.ParamsInt("partNumber")
	if err != nil || partNumber < 1 {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "part number must be a positive integer", c.Path())
	}
	isLast := c.QueryBool("isLast")

	part, err := rt.Services.Upload.PutPart(c.Context(), c.Params("uploadId"), partNumber, c.Body(), c.Query("etag"), isLast)
	if err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, part)
}

func (rt *Router) abortUpload(c *fiber.Ctx) error {
	if err := rt.Services.Upload.Abort(c.Context(), c.Params("uploadId")); err != nil {
		return apiError(c, err)
	}
	return http.WithRep(c, nil)
}

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
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/wire"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/config"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/core/service"
	"github.com/askanna-io/runcore/pkg/http"
	"github.com/askanna-io/runcore/pkg/http/middleware"
)

// ProviderSet provides the HTTP router.
var ProviderSet = wire.NewSet(NewRouter)

// Router assembles the fiber application over the service layer.
type Router struct {
	AppConf  *config.AppConfig
	Services *service.Services
	Repos    *repo.Repositories
}

func NewRouter(appConf *config.AppConfig, services *service.Services, repos *repo.Repositories) *Router {
	return &Router{AppConf: appConf, Services: services, Repos: repos}
}

// Router builds the fiber app with every resource registered.
func (rt *Router) Router() *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             rt.AppConf.Http.BodyLimit,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(middleware.CorsMiddleware())
	if rt.AppConf.Http.AccessLog {
		app.Use(middleware.AccessLogMiddleware())
	}

	v1 := app.Group("/v1")
	rt.packageRouter(v1)
	rt.runRouter(v1)
	rt.trackingRouter(v1)
	rt.variableRouter(v1)
	rt.adminRouter(v1)
	return app
}

// apiError maps a service error onto the response envelope.
func apiError(c *fiber.Ctx, err error) error {
	switch apierror.KindOf(err) {
	case apierror.NotFound:
		return http.WithRepErrMsg(c, http.NotFound.Code, err.Error(), c.Path())
	case apierror.Conflict, apierror.RunNotActive:
		return http.WithRepErrMsg(c, http.Conflict.Code, err.Error(), c.Path())
	case apierror.InvalidInput, apierror.Incomplete, apierror.Integrity, apierror.SettingType:
		return http.WithRepErrMsg(c, http.BadRequest.Code, err.Error(), c.Path())
	case apierror.Timeout:
		return http.WithRepErrMsg(c, http.Timeout.Code, err.Error(), c.Path())
	default:
		return http.WithRepErrMsg(c, http.InternalError.Code, err.Error(), c.Path())
	}
}

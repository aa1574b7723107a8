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

//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/askanna-io/runcore/internal/core/bootstrap"
	"github.com/askanna-io/runcore/internal/core/config"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/core/router"
	"github.com/askanna-io/runcore/internal/core/service"
	"github.com/askanna-io/runcore/internal/pkg/blob"
	"github.com/askanna-io/runcore/internal/pkg/executor"
	"github.com/askanna-io/runcore/pkg/cache"
	"github.com/askanna-io/runcore/pkg/database"
	"github.com/askanna-io/runcore/pkg/log"
	"github.com/askanna-io/runcore/pkg/metrics"
)

func initApp(configPath string) (*bootstrap.App, func(), error) {
	panic(wire.Build(
		config.ProviderSet,
		log.ProviderSet,
		database.ProviderSet,
		cache.ProviderSet,
		metrics.ProviderSet,
		blob.ProviderSet,
		repo.ProviderSet,
		service.ProviderSet,
		executor.ProviderSet,
		router.ProviderSet,
		bootstrap.ProviderSet,
	))
}

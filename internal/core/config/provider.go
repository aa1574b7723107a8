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

package config

import (
	"github.com/google/wire"

	"github.com/askanna-io/runcore/internal/pkg/blob"
	"github.com/askanna-io/runcore/internal/pkg/executor"
	"github.com/askanna-io/runcore/pkg/cache"
	"github.com/askanna-io/runcore/pkg/database"
	"github.com/askanna-io/runcore/pkg/log"
	"github.com/askanna-io/runcore/pkg/metrics"
)

// ProviderSet provides the application configuration and the sub-configs
// the component providers consume.
var ProviderSet = wire.NewSet(
	NewConf,
	ProvideLogConf,
	ProvideDatabaseConf,
	ProvideRedisConf,
	ProvideMetricsConf,
	ProvideBlobConf,
	ProvideRunnerConf,
)

func ProvideLogConf(conf *AppConfig) *log.Conf {
	return &conf.Log
}

func ProvideDatabaseConf(conf *AppConfig) database.Database {
	return conf.Database
}

func ProvideRedisConf(conf *AppConfig) cache.Redis {
	return conf.Redis
}

func ProvideMetricsConf(conf *AppConfig) metrics.MetricsConfig {
	return conf.Metrics
}

func ProvideBlobConf(conf *AppConfig) *blob.Config {
	return &conf.Blob
}

func ProvideRunnerConf(conf *AppConfig) *executor.Config {
	return &conf.Runner
}

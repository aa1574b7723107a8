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

package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/askanna-io/runcore/pkg/log"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProviderSet provides metrics dependencies.
var ProviderSet = wire.NewSet(ProvideServer)

// MetricsConfig holds scrape listener configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// SetDefaults normalizes metrics configuration.
func (m *MetricsConfig) SetDefaults() {
	if m.Host == "" {
		m.Host = "127.0.0.1"
	}
	if m.Port == 0 {
		m.Port = 9102
	}
}

var (
	RunsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runcore_runs_created_total",
		Help: "Runs created, by manual request or schedule tick.",
	})
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runcore_runs_finished_total",
		Help: "Runs reaching a terminal state.",
	}, []string{"status"})
	UploadParts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runcore_upload_parts_total",
		Help: "Chunk parts accepted.",
	})
	IngestedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runcore_ingested_rows_total",
		Help: "Metric and variable rows persisted.",
	}, []string{"kind"})
	ScheduleTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runcore_schedule_ticks_total",
		Help: "Schedule engine ticks evaluated.",
	})
)

// Server exposes the prometheus scrape endpoint.
type Server struct {
	conf MetricsConfig
	srv  *http.Server
}

// ProvideServer creates the metrics server, nil when disabled.
func ProvideServer(conf MetricsConfig) *Server {
	conf.SetDefaults()
	if !conf.Enabled {
		return nil
	}
	return &Server{conf: conf}
}

// Start begins serving /metrics asynchronously.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.conf.Host, s.conf.Port),
		Handler: mux,
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("metrics server failed", "error", err)
		}
	}()
	log.Infow("metrics listener started", "address", s.srv.Addr)
	return nil
}

// Stop shuts the scrape listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

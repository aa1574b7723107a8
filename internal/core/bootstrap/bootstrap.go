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

package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/wire"

	"github.com/askanna-io/runcore/internal/core/config"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/core/router"
	"github.com/askanna-io/runcore/internal/core/service"
	"github.com/askanna-io/runcore/internal/pkg/executor"
	"github.com/askanna-io/runcore/pkg/log"
	"github.com/askanna-io/runcore/pkg/metrics"
	"github.com/askanna-io/runcore/pkg/safe"
	"github.com/askanna-io/runcore/pkg/shutdown"
)

// ProviderSet provides the application container.
var ProviderSet = wire.NewSet(NewApp, shutdown.NewManager)

// App holds every long-lived component of the process.
type App struct {
	HttpApp       *fiber.App
	MetricsServer *metrics.Server
	Executor      *executor.Executor
	Services      *service.Services
	Logger        *log.Logger
	AppConf       *config.AppConfig
	Repos         *repo.Repositories
	ShutdownMgr   *shutdown.Manager
}

// InitAppFunc is the wire-generated constructor signature.
type InitAppFunc func(configPath string) (*App, func(), error)

func NewApp(
	rt *router.Router,
	metricsServer *metrics.Server,
	exec *executor.Executor,
	services *service.Services,
	logger *log.Logger,
	appConf *config.AppConfig,
	repos *repo.Repositories,
	shutdownMgr *shutdown.Manager,
) (*App, func(), error) {
	app := &App{
		HttpApp:       rt.Router(),
		MetricsServer: metricsServer,
		Executor:      exec,
		Services:      services,
		Logger:        logger,
		AppConf:       appConf,
		Repos:         repos,
		ShutdownMgr:   shutdownMgr,
	}

	cleanup := func() {
		if metricsServer != nil {
			log.Info("shutting down metrics server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				log.Errorw("failed to stop metrics server", "error", err)
			}
		}
	}

	return app, cleanup, nil
}

// Bootstrap builds the App from the configuration file.
func Bootstrap(configFile string, initApp InitAppFunc) (*App, func(), *config.AppConfig, error) {
	app, cleanup, err := initApp(configFile)
	if err != nil {
		return nil, nil, nil, err
	}
	return app, cleanup, app.AppConf, nil
}

// Run starts every component and blocks until a shutdown signal arrives.
func Run(app *App, cleanup func()) {
	appConf := app.AppConf

	if app.MetricsServer != nil {
		if err := app.MetricsServer.Start(); err != nil {
			log.Errorw("metrics server failed", "error", err)
		}
	}

	// background workers stop when this context is canceled
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	safe.Go(func() {
		if err := app.Executor.Run(bgCtx); err != nil && bgCtx.Err() == nil {
			log.Errorw("executor stopped", "error", err)
		}
	})
	startTimers(bgCtx, app)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	safe.Go(func() {
		addr := fmt.Sprintf("%s:%d", appConf.Http.Host, appConf.Http.Port)
		log.Infow("HTTP listener started", "address", addr)
		if err := app.HttpApp.Listen(addr); err != nil {
			log.Errorw("HTTP listener failed", "address", addr, "error", err)
		}
	})

	select {
	case sig := <-quit:
		log.Infow("received OS signal, shutting down", "signal", sig)
		app.ShutdownMgr.Shutdown()
	case <-app.ShutdownMgr.Wait():
		log.Info("shutdown requested, shutting down")
	}

	bgCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(appConf.Http.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	if err := app.HttpApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	} else {
		log.Info("HTTP server shut down gracefully")
	}

	cleanup()
	log.Info("server shutdown complete")
}

// startTimers launches the periodic maintenance loops. Every loop shares
// the background context and exits on cancellation.
func startTimers(ctx context.Context, app *App) {
	timers := app.AppConf.Timers

	every(ctx, time.Duration(timers.ScheduleTick)*time.Second, func(now time.Time) {
		app.Services.Schedule.Tick(ctx, now)
	})
	every(ctx, time.Duration(timers.MissedSweep)*time.Second, func(now time.Time) {
		app.Services.Schedule.SweepMissed(ctx, now)
	})
	every(ctx, time.Duration(timers.ContainerSweep)*time.Second, func(_ time.Time) {
		app.Executor.CleanupContainers(ctx)
	})
	every(ctx, time.Duration(timers.DanglingPrune)*time.Second, func(_ time.Time) {
		app.Executor.PruneDangling(ctx)
	})
	every(ctx, time.Duration(timers.ReaperSweep)*time.Second, func(now time.Time) {
		app.Services.Reaper.Sweep(ctx, now)
	})
}

func every(ctx context.Context, interval time.Duration, fn func(now time.Time)) {
	safe.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				fn(now.UTC())
			}
		}
	})
}

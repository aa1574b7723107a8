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

// Package executor dispatches pending runs into containers and reports
// their lifecycle back to the run state machine.
package executor

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/wire"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/core/service"
	"github.com/askanna-io/runcore/internal/pkg/blob"
	"github.com/askanna-io/runcore/pkg/log"
	"github.com/askanna-io/runcore/pkg/safe"
)

// Config tunes the dispatch loop.
type Config struct {
	// Parallelism caps the number of simultaneously running containers.
	Parallelism int `mapstructure:"parallelism"`
	// PollInterval is the pause between dispatch rounds.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// ScratchDir holds extracted package trees during execution.
	ScratchDir string `mapstructure:"scratch_dir"`
	// Disabled turns off container dispatch; runs stay pending.
	Disabled bool `mapstructure:"disabled"`
}

func (c *Config) SetDefaults() {
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ScratchDir == "" {
		c.ScratchDir = "runcore-scratch"
	}
}

const (
	pullAttempts  = 3
	logFlushLines = 20
)

// ProviderSet provides the executor. The docker client dials lazily, so
// construction succeeds without a reachable daemon.
var ProviderSet = wire.NewSet(New, NewDockerRuntime)

// Executor consumes pending runs FIFO per project under a global
// parallelism cap.
type Executor struct {
	conf    *Config
	runtime *DockerRuntime
	svcs    *service.Services
	repos   *repo.Repositories
	store   blob.Store

	mu       sync.Mutex
	inflight map[string]string // run suuid -> container id ("" until started)
}

func New(conf *Config, runtime *DockerRuntime, svcs *service.Services, repos *repo.Repositories, store blob.Store) *Executor {
	conf.SetDefaults()
	e := &Executor{
		conf:     conf,
		runtime:  runtime,
		svcs:     svcs,
		repos:    repos,
		store:    store,
		inflight: make(map[string]string),
	}
	svcs.Run.SetCanceller(e)
	return e
}

// Cancel stops the container of a run, best effort.
func (e *Executor) Cancel(runSuuid string) {
	e.mu.Lock()
	containerId := e.inflight[runSuuid]
	e.mu.Unlock()
	if containerId == "" {
		return
	}
	safe.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.runtime.Stop(ctx, containerId); err != nil {
			log.Warnw("failed to stop canceled run container", "run", runSuuid, "error", err)
		}
	})
}

// Run drives the dispatch loop until the context ends.
func (e *Executor) Run(ctx context.Context) error {
	if e.conf.Disabled {
		log.Infow("executor disabled, runs stay pending")
		<-ctx.Done()
		return nil
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(e.conf.Parallelism)

	ticker := time.NewTicker(e.conf.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return group.Wait()
		case <-ticker.C:
			e.dispatchRound(ctx, group)
		}
	}
}

// dispatchRound starts at most one run per project that has no active run.
func (e *Executor) dispatchRound(ctx context.Context, group *errgroup.Group) {
	projects, err := e.repos.Run.PendingProjects(ctx)
	if err != nil {
		log.Errorw("failed to list pending projects", "error", err)
		return
	}

	for _, projectId := range projects {
		active, err := e.repos.Run.CountActive(ctx, projectId)
		if err != nil {
			log.Errorw("failed to count active runs", "project", projectId, "error", err)
			continue
		}
		if active > 0 {
			continue
		}

		run, err := e.repos.Run.NextPending(ctx, projectId)
		if err != nil {
			log.Errorw("failed to pick pending run", "project", projectId, "error", err)
			continue
		}
		if run == nil || !e.claim(run.SuuId) {
			continue
		}

		group.TryGo(func() error {
			defer e.release(run.SuuId)
			e.execute(ctx, run)
			return nil
		})
	}
}

func (e *Executor) claim(runSuuid string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inflight[runSuuid]; ok {
		return false
	}
	e.inflight[runSuuid] = ""
	return true
}

func (e *Executor) setContainer(runSuuid, containerId string) {
	e.mu.Lock()
	e.inflight[runSuuid] = containerId
	e.mu.Unlock()
}

func (e *Executor) release(runSuuid string) {
	e.mu.Lock()
	delete(e.inflight, runSuuid)
	e.mu.Unlock()
}

// execute runs one pending run to a terminal state.
func (e *Executor) execute(ctx context.Context, run *model.Run) {
	if run.PackageId == "" {
		if err := e.svcs.Run.FailMissingPackage(ctx, run.SuuId); err != nil {
			log.Errorw("failed to fail run without package", "run", run.SuuId, "error", err)
		}
		return
	}

	jobDef, err := e.repos.Job.GetJobDefinition(ctx, run.JobDefinitionId)
	if err != nil {
		e.failWithLog(ctx, run.SuuId, "Could not resolve the job of this run")
		return
	}

	imageRef, username, password, err := e.resolveImage(ctx, jobDef)
	if err != nil {
		log.Errorw("failed to resolve run image", "run", run.SuuId, "error", err)
		e.failWithLog(ctx, run.SuuId, "Could not resolve a container image for this run")
		return
	}
	imageRecord, err := e.ensureImage(ctx, imageRef, username, password)
	if err != nil {
		log.Errorw("image pull failed", "run", run.SuuId, "image", imageRef, "error", err)
		e.failWithLog(ctx, run.SuuId, "Could not pull the container image "+imageRef)
		return
	}

	codeDir, err := e.prepareCode(ctx, run)
	if err != nil {
		log.Errorw("failed to prepare run code", "run", run.SuuId, "error", err)
		e.failWithLog(ctx, run.SuuId, "Could not prepare the code package for this run")
		return
	}
	defer os.RemoveAll(codeDir)

	env, snapshot, err := e.svcs.Variable.EnvFor(ctx, run.ProjectId)
	if err != nil {
		e.failWithLog(ctx, run.SuuId, "Could not resolve the variables of this project")
		return
	}
	env["AA_RUN_SUUID"] = run.SuuId
	env["AA_JOB_NAME"] = jobDef.Name
	env["AA_PROJECT_SUUID"] = run.ProjectId
	env["AA_PAYLOAD_PATH"] = "/code/.askanna/payload.json"
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		e.failWithLog(ctx, run.SuuId, "Could not snapshot the run environment")
		return
	}

	containerId, err := e.runtime.StartContainer(ctx, StartOptions{
		RunSuuid: run.SuuId,
		Image:    imageRef,
		Env:      env,
		CodeDir:  codeDir,
	})
	if err != nil {
		log.Errorw("failed to start run container", "run", run.SuuId, "error", err)
		e.failWithLog(ctx, run.SuuId, "Could not start the run container")
		return
	}
	e.setContainer(run.SuuId, containerId)

	if err := e.svcs.Run.Start(ctx, run.SuuId, containerId, imageRecord.SuuId, snapshotJSON); err != nil {
		// Lost the pending state, most likely to a cancellation.
		log.Warnw("run not started", "run", run.SuuId, "error", err)
		e.runtime.Stop(context.WithoutCancel(ctx), containerId)
		return
	}
	log.Infow("run container started", "run", run.SuuId, "container", containerId, "image", imageRef)

	e.streamLogs(ctx, run.SuuId, containerId)

	exitCode, waitErr := e.runtime.Wait(ctx, containerId)
	switch {
	case waitErr != nil:
		log.Errorw("container wait failed", "run", run.SuuId, "error", waitErr)
		e.finish(ctx, run.SuuId, -1, false)
	case exitCode == 0:
		e.finish(ctx, run.SuuId, 0, true)
	default:
		e.finish(ctx, run.SuuId, exitCode, false)
	}
}

// resolveImage picks the job's image with the credentials its config
// declared, or the platform default with the settings-provided
// registry credentials.
func (e *Executor) resolveImage(ctx context.Context, jobDef *model.JobDefinition) (ref, username, password string, err error) {
	if jobDef.EnvironmentImage != "" {
		return jobDef.EnvironmentImage, jobDef.EnvironmentUsername, jobDef.EnvironmentPassword, nil
	}
	ref, err = e.svcs.Settings.Get(ctx, model.SettingRunnerDefaultImage)
	if err != nil {
		return "", "", "", err
	}
	username, err = e.svcs.Settings.Get(ctx, model.SettingRunnerImageUsername)
	if err != nil {
		return "", "", "", err
	}
	password, err = e.svcs.Settings.Get(ctx, model.SettingRunnerImagePassword)
	if err != nil {
		return "", "", "", err
	}
	return ref, username, password, nil
}

// ensureImage pulls the image when absent, with bounded backoff, and
// records the resolution.
func (e *Executor) ensureImage(ctx context.Context, ref, username, password string) (*model.RunImage, error) {
	name, tag := splitImageRef(ref)
	record, err := e.repos.Run.GetOrCreateImage(ctx, name, tag)
	if err != nil {
		return nil, err
	}

	if !e.runtime.HasImage(ctx, ref) {
		var pullErr error
		for attempt := 1; attempt <= pullAttempts; attempt++ {
			pullErr = e.runtime.PullImage(ctx, ref, username, password)
			if pullErr == nil {
				break
			}
			log.Warnw("image pull attempt failed", "image", ref, "attempt", attempt, "error", pullErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * time.Second):
			}
		}
		if pullErr != nil {
			if errors.Is(pullErr, context.DeadlineExceeded) {
				return nil, errors.Wrapf(pullErr, "pull %s timed out", ref)
			}
			return nil, errors.Wrapf(pullErr, "pull %s", ref)
		}
	}

	updates := map[string]any{"cached_image": ref}
	if digest := e.runtime.ImageDigest(ctx, ref); digest != "" {
		updates["digest"] = digest
	}
	if err := e.repos.Run.UpdateImage(ctx, record.SuuId, updates); err != nil {
		log.Warnw("failed to record image resolution", "image", ref, "error", err)
	}
	return record, nil
}

// prepareCode extracts the run's package zip and payload into a scratch
// directory that is bind-mounted into the container.
func (e *Executor) prepareCode(ctx context.Context, run *model.Run) (string, error) {
	pkg, err := e.repos.Package.Get(ctx, run.PackageId)
	if err != nil {
		return "", err
	}
	if !pkg.IsAvailable() {
		return "", errors.Errorf("package %s is not available", pkg.SuuId)
	}

	if err := os.MkdirAll(e.conf.ScratchDir, 0o755); err != nil {
		return "", err
	}
	codeDir, err := os.MkdirTemp(e.conf.ScratchDir, "run-"+run.SuuId+"-")
	if err != nil {
		return "", err
	}

	if err := e.extractPackage(ctx, pkg.BlobPath, codeDir); err != nil {
		os.RemoveAll(codeDir)
		return "", err
	}
	if err := e.writePayload(ctx, run, codeDir); err != nil {
		os.RemoveAll(codeDir)
		return "", err
	}
	return codeDir, nil
}

func (e *Executor) extractPackage(ctx context.Context, blobPath, codeDir string) error {
	rc, err := e.store.Open(ctx, blobPath)
	if err != nil {
		return err
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return err
	}

	for _, file := range archive.File {
		target := filepath.Join(codeDir, filepath.FromSlash(file.Name))
		if !strings.HasPrefix(target, filepath.Clean(codeDir)+string(os.PathSeparator)) {
			return errors.Errorf("archive entry escapes the code directory: %s", file.Name)
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := file.Open()
		if err != nil {
			return err
		}
		dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.Mode())
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) writePayload(ctx context.Context, run *model.Run, codeDir string) error {
	if run.PayloadId == "" {
		return nil
	}
	payload, err := e.repos.Job.GetPayload(ctx, run.PayloadId)
	if err != nil {
		return err
	}
	rc, err := e.store.Open(ctx, payload.BlobPath)
	if err != nil {
		return err
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return err
	}

	dir := filepath.Join(codeDir, ".askanna")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "payload.json"), body, 0o644)
}

// streamLogs copies container output into the run log, flushing in small
// batches, until the stream closes.
func (e *Executor) streamLogs(ctx context.Context, runSuuid, containerId string) {
	stream, err := e.runtime.StreamLogs(ctx, containerId)
	if err != nil {
		log.Warnw("failed to attach to container logs", "run", runSuuid, "error", err)
		return
	}

	printLog, err := e.svcs.Settings.GetBool(ctx, model.SettingDockerPrintLog)
	if err != nil {
		printLog = false
	}

	done := make(chan struct{})
	safe.Go(func() {
		defer close(done)
		defer stream.Close()

		scanner := bufio.NewScanner(stream)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		batch := make([]string, 0, logFlushLines)
		flush := func() {
			if len(batch) == 0 {
				return
			}
			if err := e.svcs.Run.AppendLogLines(ctx, runSuuid, batch); err != nil {
				log.Warnw("failed to append run log", "run", runSuuid, "error", err)
			}
			batch = batch[:0]
		}
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if printLog {
				log.Infow("run output", "run", runSuuid, "line", line)
			}
			batch = append(batch, line)
			if len(batch) >= logFlushLines {
				flush()
			}
		}
		flush()
	})
	<-done
}

// finish moves the run to its terminal state and materializes tracking data.
func (e *Executor) finish(ctx context.Context, runSuuid string, exitCode int, success bool) {
	var err error
	if success {
		err = e.svcs.Run.Finish(ctx, runSuuid, exitCode)
	} else {
		err = e.svcs.Run.Fail(ctx, runSuuid, exitCode)
	}
	if err != nil {
		// A cancellation can win the terminal transition; nothing to do.
		log.Warnw("terminal transition not applied", "run", runSuuid, "error", err)
	}

	for _, kind := range []string{service.KindMetric, service.KindVariable} {
		if err := e.svcs.Ingest.Deduplicate(ctx, kind, runSuuid); err != nil {
			log.Warnw("post-run deduplication failed", "run", runSuuid, "kind", kind, "error", err)
		}
		if err := e.svcs.Ingest.Finalize(ctx, kind, runSuuid); err != nil {
			log.Warnw("post-run materialization failed", "run", runSuuid, "kind", kind, "error", err)
		}
	}
}

func (e *Executor) failWithLog(ctx context.Context, runSuuid, message string) {
	if err := e.svcs.Run.AppendLogLines(ctx, runSuuid, []string{message, "", "Run failed"}); err != nil {
		log.Warnw("failed to append failure log", "run", runSuuid, "error", err)
	}
	if err := e.svcs.Run.Fail(ctx, runSuuid, -1); err != nil {
		log.Warnw("failed to fail run", "run", runSuuid, "error", err)
	}
}

// CleanupContainers removes exited labeled containers older than the
// configured auto-remove TTL.
func (e *Executor) CleanupContainers(ctx context.Context) {
	ttl, err := e.svcs.Settings.GetHours(ctx, model.SettingDockerAutoRemoveTTL)
	if err != nil {
		log.Errorw("cannot resolve container auto-remove ttl", "error", err)
		return
	}
	e.runtime.RemoveExited(ctx, ttl)
}

// PruneDangling drops dangling images and volumes.
func (e *Executor) PruneDangling(ctx context.Context) {
	e.runtime.PruneImages(ctx)
	e.runtime.PruneVolumes(ctx)
}

func splitImageRef(ref string) (name, tag string) {
	name, tag = ref, "latest"
	if idx := strings.LastIndex(ref, ":"); idx > strings.LastIndex(ref, "/") {
		name, tag = ref[:idx], ref[idx+1:]
	}
	return name, tag
}

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

package executor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/pkg/errors"

	"github.com/askanna-io/runcore/pkg/log"
)

// Containers started by this platform carry these labels; the cleanup
// sweeps only ever touch labeled containers.
const (
	labelManaged = "io.askanna.runcore"
	labelRun     = "io.askanna.runcore.run"
)

const pullTimeout = 10 * time.Minute

// DockerRuntime wraps the Docker engine API for run containers.
type DockerRuntime struct {
	client *client.Client
}

func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "create docker client")
	}
	return &DockerRuntime{client: cli}, nil
}

// PullImage fetches an image, optionally authenticated. The image digest
// is returned when the registry reports one.
func (d *DockerRuntime) PullImage(ctx context.Context, ref, username, password string) error {
	ctx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	opts := image.PullOptions{}
	if username != "" {
		auth, err := json.Marshal(registry.AuthConfig{Username: username, Password: password})
		if err != nil {
			return errors.Wrap(err, "encode registry auth")
		}
		opts.RegistryAuth = base64.URLEncoding.EncodeToString(auth)
	}

	reader, err := d.client.ImagePull(ctx, ref, opts)
	if err != nil {
		return errors.Wrapf(err, "pull image %s", ref)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return errors.Wrapf(err, "pull image %s", ref)
	}
	return nil
}

// HasImage reports whether the image is available locally.
func (d *DockerRuntime) HasImage(ctx context.Context, ref string) bool {
	_, err := d.client.ImageInspect(ctx, ref)
	return err == nil
}

// ImageDigest returns the repo digest of a local image, empty when unknown.
func (d *DockerRuntime) ImageDigest(ctx context.Context, ref string) string {
	inspect, err := d.client.ImageInspect(ctx, ref)
	if err != nil || len(inspect.RepoDigests) == 0 {
		return ""
	}
	return inspect.RepoDigests[0]
}

// StartOptions parameterize one run container.
type StartOptions struct {
	RunSuuid string
	Image    string
	Env      map[string]string
	// CodeDir is the host directory with the extracted package, mounted
	// read-only at /code.
	CodeDir string
}

// StartContainer creates and starts a labeled run container.
func (d *DockerRuntime) StartContainer(ctx context.Context, opts StartOptions) (string, error) {
	env := make([]string, 0, len(opts.Env))
	for name, value := range opts.Env {
		env = append(env, fmt.Sprintf("%s=%s", name, value))
	}

	config := &container.Config{
		Image:      opts.Image,
		Env:        env,
		WorkingDir: "/code",
		Tty:        true,
		Labels: map[string]string{
			labelManaged: "true",
			labelRun:     opts.RunSuuid,
		},
	}
	hostConfig := &container.HostConfig{}
	if opts.CodeDir != "" {
		hostConfig.Mounts = []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   opts.CodeDir,
			Target:   "/code",
			ReadOnly: true,
		}}
	}

	created, err := d.client.ContainerCreate(ctx, config, hostConfig, nil, nil, "runcore-run-"+opts.RunSuuid)
	if err != nil {
		return "", errors.Wrap(err, "create container")
	}
	if err := d.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", errors.Wrap(err, "start container")
	}
	return created.ID, nil
}

// Wait blocks until the container exits and returns its exit code.
func (d *DockerRuntime) Wait(ctx context.Context, containerId string) (int, error) {
	statusCh, errCh := d.client.ContainerWait(ctx, containerId, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), errors.New(status.Error.Message)
		}
		return int(status.StatusCode), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// StreamLogs follows the container's combined stdout and stderr.
func (d *DockerRuntime) StreamLogs(ctx context.Context, containerId string) (io.ReadCloser, error) {
	return d.client.ContainerLogs(ctx, containerId, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
}

// Stop terminates a container within a bounded grace period.
func (d *DockerRuntime) Stop(ctx context.Context, containerId string) error {
	timeout := 10
	return d.client.ContainerStop(ctx, containerId, container.StopOptions{Timeout: &timeout})
}

// RemoveExited removes exited run containers older than ttl. Only
// containers carrying the platform label are considered.
func (d *DockerRuntime) RemoveExited(ctx context.Context, ttl time.Duration) {
	args := filters.NewArgs(
		filters.Arg("label", labelManaged+"=true"),
		filters.Arg("status", "exited"),
	)
	containers, err := d.client.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		log.Errorw("failed to list exited containers", "error", err)
		return
	}

	cutoff := time.Now().Add(-ttl).Unix()
	for _, c := range containers {
		if c.Created > cutoff {
			continue
		}
		err := d.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{RemoveVolumes: true})
		if err != nil {
			log.Warnw("failed to remove exited container", "container", c.ID, "error", err)
			continue
		}
		log.Infow("removed exited container", "container", c.ID, "run", c.Labels[labelRun])
	}
}

// PruneVolumes drops dangling volumes.
func (d *DockerRuntime) PruneVolumes(ctx context.Context) {
	report, err := d.client.VolumesPrune(ctx, filters.NewArgs(filters.Arg("dangling", "true")))
	if err != nil {
		log.Errorw("failed to prune volumes", "error", err)
		return
	}
	if len(report.VolumesDeleted) > 0 {
		log.Infow("pruned dangling volumes", "count", len(report.VolumesDeleted), "reclaimed", report.SpaceReclaimed)
	}
}

// PruneImages drops dangling images.
func (d *DockerRuntime) PruneImages(ctx context.Context) {
	report, err := d.client.ImagesPrune(ctx, filters.NewArgs(filters.Arg("dangling", "true")))
	if err != nil {
		log.Errorw("failed to prune images", "error", err)
		return
	}
	if len(report.ImagesDeleted) > 0 {
		log.Infow("pruned dangling images", "count", len(report.ImagesDeleted), "reclaimed", report.SpaceReclaimed)
	}
}

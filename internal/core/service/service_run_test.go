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

package service

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
)

func TestRun_CreateDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	run, err := env.svcs.Run.Create(ctx, &CreateRequest{
		JobDefinitionSuuid: jobDef.SuuId,
		Trigger:            model.RunTriggerManual,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPending, run.Status)
	assert.Empty(t, run.PackageId, "no completed package exists yet")
	assert.NotEmpty(t, run.PayloadId)
	require.NotNil(t, run.SubmittedAt)

	// the default payload is an empty JSON object
	payload, err := env.repos.Job.GetPayload(ctx, run.PayloadId)
	require.NoError(t, err)
	rc, err := env.store.Open(ctx, payload.BlobPath)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(body))

	// an empty log record exists from the start
	entries, err := env.svcs.Run.ReadLog(ctx, run.SuuId)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_CreatePicksLatestPackage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	env.uploadPackage(t, project.SuuId, map[string]string{"v": "1"})
	second := env.uploadPackage(t, project.SuuId, map[string]string{"v": "2"})

	run, err := env.svcs.Run.Create(ctx, &CreateRequest{
		JobDefinitionSuuid: jobDef.SuuId,
		Trigger:            model.RunTriggerManual,
	})
	require.NoError(t, err)
	assert.Equal(t, second.SuuId, run.PackageId)
}

func TestRun_CreateRejectsInvalidPayload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	_, err := env.svcs.Run.Create(ctx, &CreateRequest{
		JobDefinitionSuuid: jobDef.SuuId,
		Trigger:            model.RunTriggerManual,
		Payload:            []byte("{broken"),
	})
	require.Error(t, err)
	assert.Equal(t, apierror.InvalidInput, apierror.KindOf(err))
}

func TestRun_CreateUnknownJob(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svcs.Run.Create(context.Background(), &CreateRequest{
		JobDefinitionSuuid: "missing-job",
		Trigger:            model.RunTriggerManual,
	})
	require.Error(t, err)
	assert.Equal(t, apierror.NotFound, apierror.KindOf(err))
}

func TestRun_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	run, err := env.svcs.Run.Create(ctx, &CreateRequest{
		JobDefinitionSuuid: jobDef.SuuId,
		Trigger:            model.RunTriggerManual,
	})
	require.NoError(t, err)

	require.NoError(t, env.svcs.Run.Start(ctx, run.SuuId, "container-1", "image-1", []byte(`{}`)))

	// starting twice loses the status race
	err = env.svcs.Run.Start(ctx, run.SuuId, "container-2", "image-1", nil)
	require.Error(t, err)
	assert.Equal(t, apierror.Conflict, apierror.KindOf(err))

	require.NoError(t, env.svcs.Run.Finish(ctx, run.SuuId, 0))

	finished, err := env.svcs.Run.Get(ctx, run.SuuId)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFinished, finished.Status)
	assert.Equal(t, 0, finished.ExitCode)
	assert.Equal(t, "container-1", finished.ContainerId)
	require.NotNil(t, finished.StartedAt)
	require.NotNil(t, finished.FinishedAt)
}

func TestRun_CancelPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	run, err := env.svcs.Run.Create(ctx, &CreateRequest{
		JobDefinitionSuuid: jobDef.SuuId,
		Trigger:            model.RunTriggerManual,
	})
	require.NoError(t, err)

	require.NoError(t, env.svcs.Run.Cancel(ctx, run.SuuId))

	canceled, err := env.svcs.Run.Get(ctx, run.SuuId)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCanceled, canceled.Status)

	// a terminal run cannot be canceled again
	err = env.svcs.Run.Cancel(ctx, run.SuuId)
	require.Error(t, err)
	assert.Equal(t, apierror.Conflict, apierror.KindOf(err))
}

func TestRun_FailMissingPackageWritesFixedLog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	run, err := env.svcs.Run.Create(ctx, &CreateRequest{
		JobDefinitionSuuid: jobDef.SuuId,
		Trigger:            model.RunTriggerManual,
	})
	require.NoError(t, err)

	require.NoError(t, env.svcs.Run.FailMissingPackage(ctx, run.SuuId))

	failed, err := env.svcs.Run.Get(ctx, run.SuuId)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, failed.Status)
	assert.Equal(t, -1, failed.ExitCode)

	entries, err := env.svcs.Run.ReadLog(ctx, run.SuuId)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Could not find code package", entries[0][2])
	assert.Equal(t, "", entries[1][2])
	assert.Equal(t, "Run failed", entries[2][2])
}

func TestRun_AppendLogLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	run, err := env.svcs.Run.Create(ctx, &CreateRequest{
		JobDefinitionSuuid: jobDef.SuuId,
		Trigger:            model.RunTriggerManual,
	})
	require.NoError(t, err)

	require.NoError(t, env.svcs.Run.AppendLogLines(ctx, run.SuuId, []string{"line one", "line two"}))
	require.NoError(t, env.svcs.Run.AppendLogLines(ctx, run.SuuId, []string{"line three"}))

	entries, err := env.svcs.Run.ReadLog(ctx, run.SuuId)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		// entry is [index, timestamp, text]; the index is 1-based
		assert.EqualValues(t, i+1, entry[0])
	}
	assert.Equal(t, "line three", entries[2][2])

	runLog, err := env.repos.Run.GetLogByRun(ctx, run.SuuId)
	require.NoError(t, err)
	assert.Equal(t, 3, runLog.Lines)
	assert.Positive(t, runLog.Size)
}

type recordingCanceller struct {
	canceled []string
}

func (r *recordingCanceller) Cancel(runSuuid string) {
	r.canceled = append(r.canceled, runSuuid)
}

func TestRun_CancelNotifiesCanceller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)
	jobDef := env.seedJob(t, project.SuuId, "train")

	rec := &recordingCanceller{}
	env.svcs.Run.SetCanceller(rec)

	run, err := env.svcs.Run.Create(ctx, &CreateRequest{
		JobDefinitionSuuid: jobDef.SuuId,
		Trigger:            model.RunTriggerManual,
	})
	require.NoError(t, err)
	require.NoError(t, env.svcs.Run.Start(ctx, run.SuuId, "container-1", "image-1", nil))
	require.NoError(t, env.svcs.Run.Cancel(ctx, run.SuuId))

	assert.Equal(t, []string{run.SuuId}, rec.canceled)
}

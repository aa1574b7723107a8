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
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/pkg/blob"
)

func (e *testEnv) seedRun(t *testing.T) *model.Run {
	t.Helper()
	project := e.seedProject(t)
	jobDef := e.seedJob(t, project.SuuId, "train")
	run, err := e.svcs.Run.Create(context.Background(), &CreateRequest{
		JobDefinitionSuuid: jobDef.SuuId,
		Trigger:            model.RunTriggerManual,
	})
	require.NoError(t, err)
	return run
}

func TestIngest_AppendMetricRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	run := env.seedRun(t)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := []IngestRow{
		{
			Object:    model.TrackedObject{Name: "accuracy", Value: 0.92, Type: "float"},
			Label:     []model.TrackedLabel{{Name: "phase", Value: "test", Type: "string"}},
			CreatedAt: at,
		},
		{
			Object:    model.TrackedObject{Name: "epochs", Value: 10, Type: "integer"},
			CreatedAt: at.Add(time.Second),
		},
	}
	require.NoError(t, env.svcs.Ingest.Append(ctx, KindMetric, run.SuuId, rows))

	stored, err := env.svcs.Ingest.ListMetricRows(ctx, &repo.RowQuery{RunId: run.SuuId})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.False(t, stored[0].IsMasked, "metric rows are never masked")
}

func TestIngest_AppendIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	run := env.seedRun(t)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := []IngestRow{{
		Object:    model.TrackedObject{Name: "accuracy", Value: 0.92, Type: "float"},
		CreatedAt: at,
	}}
	require.NoError(t, env.svcs.Ingest.Append(ctx, KindMetric, run.SuuId, rows))
	require.NoError(t, env.svcs.Ingest.Append(ctx, KindMetric, run.SuuId, rows))

	stored, err := env.svcs.Ingest.ListMetricRows(ctx, &repo.RowQuery{RunId: run.SuuId})
	require.NoError(t, err)
	assert.Len(t, stored, 1, "replaying a batch changes nothing")
}

func TestIngest_AppendMasksSecretVariables(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	run := env.seedRun(t)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := []IngestRow{
		{
			Object:    model.TrackedObject{Name: "AWS_SECRET_ACCESS_KEY", Value: "hunter2", Type: "string"},
			CreatedAt: at,
		},
		{
			Object:    model.TrackedObject{Name: "environment", Value: "production", Type: "string"},
			CreatedAt: at,
		},
	}
	require.NoError(t, env.svcs.Ingest.Append(ctx, KindVariable, run.SuuId, rows))

	stored, err := env.svcs.Ingest.ListVariableRows(ctx, &repo.RowQuery{RunId: run.SuuId})
	require.NoError(t, err)
	require.Len(t, stored, 2)

	var masked, plain *model.VariableRow
	for _, row := range stored {
		var object model.TrackedObject
		require.NoError(t, json.Unmarshal(row.Variable, &object))
		if object.Name == "AWS_SECRET_ACCESS_KEY" {
			masked = row
			assert.Equal(t, model.MaskedSentinel, object.Value, "secret value is replaced before it is stored")
		} else {
			plain = row
			assert.Equal(t, "production", object.Value)
		}
	}
	require.NotNil(t, masked)
	require.NotNil(t, plain)
	assert.True(t, masked.IsMasked)
	assert.False(t, plain.IsMasked)

	var labels []model.TrackedLabel
	require.NoError(t, json.Unmarshal(masked.Label, &labels))
	require.Len(t, labels, 1)
	assert.Equal(t, "is_masked", labels[0].Name)
	assert.Equal(t, "tag", labels[0].Type)
}

func TestIngest_AppendRejectsTerminalRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	run := env.seedRun(t)
	require.NoError(t, env.svcs.Run.Cancel(ctx, run.SuuId))

	err := env.svcs.Ingest.Append(ctx, KindMetric, run.SuuId, []IngestRow{{
		Object: model.TrackedObject{Name: "accuracy", Value: 0.92, Type: "float"},
	}})
	require.Error(t, err)
	assert.Equal(t, apierror.RunNotActive, apierror.KindOf(err))
}

func TestIngest_AppendUnknownRun(t *testing.T) {
	env := newTestEnv(t)

	err := env.svcs.Ingest.Append(context.Background(), KindMetric, "missing-run", []IngestRow{{
		Object: model.TrackedObject{Name: "accuracy", Value: 0.92, Type: "float"},
	}})
	require.Error(t, err)
	assert.Equal(t, apierror.NotFound, apierror.KindOf(err))
}

func TestIngest_FinalizeMaterializesMeta(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	run := env.seedRun(t)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := []IngestRow{
		{
			Object:    model.TrackedObject{Name: "accuracy", Value: 0.92, Type: "float"},
			Label:     []model.TrackedLabel{{Name: "phase", Value: "test", Type: "string"}},
			CreatedAt: at,
		},
		{
			Object:    model.TrackedObject{Name: "accuracy", Value: 1, Type: "integer"},
			Label:     []model.TrackedLabel{{Name: "phase", Value: "train", Type: "string"}, {Name: "fold", Value: 1, Type: "integer"}},
			CreatedAt: at.Add(time.Second),
		},
		{
			Object:    model.TrackedObject{Name: "model", Value: "xgboost", Type: "string"},
			CreatedAt: at.Add(2 * time.Second),
		},
	}
	require.NoError(t, env.svcs.Ingest.Append(ctx, KindMetric, run.SuuId, rows))
	require.NoError(t, env.svcs.Ingest.Finalize(ctx, KindMetric, run.SuuId))

	meta, err := env.repos.Tracking.GetMetricMeta(ctx, run.SuuId)
	require.NoError(t, err)
	assert.Equal(t, 3, meta.Count)
	assert.Positive(t, meta.Size)

	var names []model.UniqueName
	require.NoError(t, json.Unmarshal(meta.MetricNames, &names))
	require.Len(t, names, 2)
	assert.Equal(t, model.UniqueName{Name: "accuracy", Type: "float", Count: 2}, names[0],
		"integer and float observations of one name merge to float")
	assert.Equal(t, model.UniqueName{Name: "model", Type: "string", Count: 1}, names[1])

	var labelNames []string
	require.NoError(t, json.Unmarshal(meta.LabelNames, &labelNames))
	assert.Equal(t, []string{"phase", "fold"}, labelNames)

	// the rows file is readable from the blob store
	rc, err := env.store.Open(ctx, blob.RunDir(run.SuuId)+"/metrics.json")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	var written []trackedRow
	require.NoError(t, json.Unmarshal(body, &written))
	assert.Len(t, written, 3)
}

func TestIngest_FinalizeMixedTypes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	run := env.seedRun(t)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := []IngestRow{
		{Object: model.TrackedObject{Name: "threshold", Value: "auto", Type: "string"}, CreatedAt: at},
		{Object: model.TrackedObject{Name: "threshold", Value: 0.5, Type: "float"}, CreatedAt: at.Add(time.Second)},
	}
	require.NoError(t, env.svcs.Ingest.Append(ctx, KindMetric, run.SuuId, rows))
	require.NoError(t, env.svcs.Ingest.Finalize(ctx, KindMetric, run.SuuId))

	meta, err := env.repos.Tracking.GetMetricMeta(ctx, run.SuuId)
	require.NoError(t, err)
	var names []model.UniqueName
	require.NoError(t, json.Unmarshal(meta.MetricNames, &names))
	require.Len(t, names, 1)
	assert.Equal(t, "mixed", names[0].Type)
}

func TestIngest_FinalizeVariables(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	run := env.seedRun(t)

	require.NoError(t, env.svcs.Ingest.Append(ctx, KindVariable, run.SuuId, []IngestRow{
		{Object: model.TrackedObject{Name: "environment", Value: "staging", Type: "string"}},
		{Object: model.TrackedObject{Name: "API_TOKEN", Value: "abc123", Type: "string"}},
	}))
	require.NoError(t, env.svcs.Ingest.Finalize(ctx, KindVariable, run.SuuId))

	meta, err := env.repos.Tracking.GetVariableMeta(ctx, run.SuuId)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Count)

	var labelNames []string
	require.NoError(t, json.Unmarshal(meta.LabelNames, &labelNames))
	assert.Equal(t, []string{"is_masked"}, labelNames)
}

func TestIngest_MergeTypes(t *testing.T) {
	tests := []struct {
		accumulated string
		next        string
		want        string
	}{
		{"float", "float", "float"},
		{"integer", "float", "float"},
		{"float", "integer", "float"},
		{"string", "string", "string"},
		{"string", "integer", "mixed"},
		{"mixed", "float", "mixed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MergeTypes(tt.accumulated, tt.next), "%s + %s", tt.accumulated, tt.next)
	}
}

func TestIngest_NeedsMask(t *testing.T) {
	assert.True(t, NeedsMask("AWS_SECRET_ACCESS_KEY"))
	assert.True(t, NeedsMask("api_token"))
	assert.True(t, NeedsMask("DbPassword"))
	assert.True(t, NeedsMask("license key"))
	assert.False(t, NeedsMask("environment"))
	assert.False(t, NeedsMask("threshold"))
}

func TestIngest_DeduplicateAdjacentRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	run := env.seedRun(t)

	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	object, _ := json.Marshal(model.TrackedObject{Name: "accuracy", Value: 0.92, Type: "float"})

	// two rows equal in everything but row_hash, as left behind by a retried
	// batch that raced its own replay
	for i := 0; i < 2; i++ {
		_, err := env.repos.Tracking.InsertMetricRow(ctx, &model.MetricRow{
			RunId:     run.SuuId,
			RowHash:   run.SuuId + "-dup-" + string(rune('a'+i)),
			Metric:    object,
			Label:     []byte("[]"),
			CreatedAt: at,
		})
		require.NoError(t, err)
	}
	_, err := env.repos.Tracking.InsertMetricRow(ctx, &model.MetricRow{
		RunId:     run.SuuId,
		RowHash:   run.SuuId + "-keep",
		Metric:    object,
		Label:     []byte("[]"),
		CreatedAt: at.Add(time.Second),
	})
	require.NoError(t, err)

	require.NoError(t, env.svcs.Ingest.Deduplicate(ctx, KindMetric, run.SuuId))

	stored, listErr := env.svcs.Ingest.ListMetricRows(ctx, &repo.RowQuery{RunId: run.SuuId})
	require.NoError(t, listErr)
	assert.Len(t, stored, 2)
}

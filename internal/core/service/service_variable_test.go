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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
)

func TestVariable_CreateAndRedact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	variable, err := env.svcs.Variable.Create(ctx, project.SuuId, "environment", "staging", false)
	require.NoError(t, err)
	assert.False(t, variable.IsMasked)
	assert.Equal(t, "staging", variable.Value)

	masked, err := env.svcs.Variable.Create(ctx, project.SuuId, "DB_PASSWORD", "hunter2", false)
	require.NoError(t, err)
	assert.True(t, masked.IsMasked, "secret names are masked regardless of the caller's flag")
	assert.Equal(t, model.MaskedSentinel, masked.Value)

	// the stored value is intact, only the view is redacted
	got, err := env.svcs.Variable.Get(ctx, masked.SuuId)
	require.NoError(t, err)
	assert.Equal(t, model.MaskedSentinel, got.Value)

	envVars, snapshot, err := env.svcs.Variable.EnvFor(ctx, project.SuuId)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", envVars["DB_PASSWORD"], "container injection gets the cleartext")
	assert.Equal(t, model.MaskedSentinel, snapshot["DB_PASSWORD"])
	assert.Equal(t, "staging", snapshot["environment"])
}

func TestVariable_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	_, err := env.svcs.Variable.Create(ctx, project.SuuId, "  ", "x", false)
	require.Error(t, err)
	assert.Equal(t, apierror.InvalidInput, apierror.KindOf(err))

	_, err = env.svcs.Variable.Create(ctx, "missing-project", "environment", "x", false)
	require.Error(t, err)
	assert.Equal(t, apierror.NotFound, apierror.KindOf(err))
}

func TestVariable_UpdateCannotClearMask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	variable, err := env.svcs.Variable.Create(ctx, project.SuuId, "environment", "staging", true)
	require.NoError(t, err)

	unmask := false
	_, err = env.svcs.Variable.Update(ctx, variable.SuuId, &UpdateRequest{IsMasked: &unmask})
	require.Error(t, err)
	assert.Equal(t, apierror.InvalidInput, apierror.KindOf(err))
	assert.Contains(t, err.Error(), "is_masked cannot be cleared")
}

func TestVariable_UpdateRenameToSecretMasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	variable, err := env.svcs.Variable.Create(ctx, project.SuuId, "environment", "staging", false)
	require.NoError(t, err)

	name := "DEPLOY_TOKEN"
	updated, err := env.svcs.Variable.Update(ctx, variable.SuuId, &UpdateRequest{Name: &name})
	require.NoError(t, err)
	assert.True(t, updated.IsMasked, "renaming onto a secret marker masks the variable")
	assert.Equal(t, model.MaskedSentinel, updated.Value)

	persisted, err := env.svcs.Variable.Get(ctx, variable.SuuId)
	require.NoError(t, err)
	assert.True(t, persisted.IsMasked)
}

func TestVariable_UpdateValue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	variable, err := env.svcs.Variable.Create(ctx, project.SuuId, "environment", "staging", false)
	require.NoError(t, err)

	value := "production"
	updated, err := env.svcs.Variable.Update(ctx, variable.SuuId, &UpdateRequest{Value: &value})
	require.NoError(t, err)
	assert.Equal(t, "production", updated.Value)

	envVars, _, err := env.svcs.Variable.EnvFor(ctx, project.SuuId)
	require.NoError(t, err)
	assert.Equal(t, "production", envVars["environment"])
}

func TestVariable_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	variable, err := env.svcs.Variable.Create(ctx, project.SuuId, "environment", "staging", false)
	require.NoError(t, err)
	require.NoError(t, env.svcs.Variable.Delete(ctx, variable.SuuId))

	_, err = env.svcs.Variable.Get(ctx, variable.SuuId)
	require.Error(t, err)
	assert.Equal(t, apierror.NotFound, apierror.KindOf(err))

	list, err := env.svcs.Variable.List(ctx, project.SuuId)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = env.svcs.Variable.Delete(ctx, variable.SuuId)
	require.Error(t, err)
	assert.Equal(t, apierror.NotFound, apierror.KindOf(err))
}

func TestVariable_ListRedactsMaskedValues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project := env.seedProject(t)

	_, err := env.svcs.Variable.Create(ctx, project.SuuId, "API_KEY", "abc123", false)
	require.NoError(t, err)
	_, err = env.svcs.Variable.Create(ctx, project.SuuId, "environment", "staging", false)
	require.NoError(t, err)

	list, err := env.svcs.Variable.List(ctx, project.SuuId)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, variable := range list {
		if variable.IsMasked {
			assert.Equal(t, model.MaskedSentinel, variable.Value)
		} else {
			assert.Equal(t, "staging", variable.Value)
		}
	}
}

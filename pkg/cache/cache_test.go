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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheGetSetDelete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheTryLock(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.TryLock(ctx, "job", time.Minute))
	assert.ErrorIs(t, c.TryLock(ctx, "job", time.Minute), ErrNotLocked)

	// another name is independent
	require.NoError(t, c.TryLock(ctx, "other", time.Minute))

	require.NoError(t, c.Unlock(ctx, "job"))
	require.NoError(t, c.TryLock(ctx, "job", time.Minute))
}

func TestMemoryCacheLockTTLExpires(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.TryLock(ctx, "job", 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	// a crashed holder's lease lapses
	require.NoError(t, c.TryLock(ctx, "job", time.Minute))
}

func TestProvideCacheSelectsBackend(t *testing.T) {
	c := ProvideCache(Redis{})
	_, ok := c.(*memoryCache)
	assert.True(t, ok, "no address configured means in-process cache")

	c = ProvideCache(Redis{Addr: "127.0.0.1:6379"})
	_, ok = c.(*redisCache)
	assert.True(t, ok)
}

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

// Package cache provides the shared key/value cache and the named advisory
// locks used to serialize schedule ticks and per-run meta materialization.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

// ErrNotLocked is returned by TryLock when another holder owns the lock.
var ErrNotLocked = errors.New("cache: lock held by another owner")

// ProviderSet provides cache dependencies.
var ProviderSet = wire.NewSet(ProvideCache)

// Redis holds connection configuration.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ICache is a minimal cache with advisory locks. Locks carry a holder TTL so
// a crashed holder cannot wedge contenders forever.
type ICache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// TryLock acquires the named lock or returns ErrNotLocked.
	TryLock(ctx context.Context, name string, ttl time.Duration) error
	Unlock(ctx context.Context, name string) error
}

// ProvideCache returns a redis-backed cache when an address is configured,
// otherwise an in-process cache suitable for single-node deployments.
func ProvideCache(conf Redis) ICache {
	if conf.Addr == "" {
		return NewMemoryCache()
	}
	return NewRedisCache(conf)
}

type redisCache struct {
	client *redis.Client
}

// NewRedisCache connects a redis-backed ICache.
func NewRedisCache(conf Redis) ICache {
	return &redisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     conf.Addr,
			Password: conf.Password,
			DB:       conf.DB,
		}),
	}
}

func (r *redisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *redisCache) TryLock(ctx context.Context, name string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, "lock:"+name, "1", ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotLocked
	}
	return nil
}

func (r *redisCache) Unlock(ctx context.Context, name string) error {
	return r.client.Del(ctx, "lock:"+name).Err()
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	locks   map[string]time.Time
}

// NewMemoryCache returns an in-process ICache. Used when no redis address is
// configured and in tests.
func NewMemoryCache() ICache {
	return &memoryCache{
		entries: make(map[string]memoryEntry),
		locks:   make(map[string]time.Time),
	}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *memoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memoryCache) TryLock(_ context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until, held := m.locks[name]; held && time.Now().Before(until) {
		return ErrNotLocked
	}
	m.locks[name] = time.Now().Add(ttl)
	return nil
}

func (m *memoryCache) Unlock(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, name)
	return nil
}

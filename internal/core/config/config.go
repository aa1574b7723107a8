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
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/askanna-io/runcore/internal/pkg/blob"
	"github.com/askanna-io/runcore/internal/pkg/executor"
	"github.com/askanna-io/runcore/pkg/cache"
	"github.com/askanna-io/runcore/pkg/database"
	"github.com/askanna-io/runcore/pkg/http"
	"github.com/askanna-io/runcore/pkg/log"
	"github.com/askanna-io/runcore/pkg/metrics"
)

// TimersConfig tunes the background task cadence, in seconds.
type TimersConfig struct {
	ScheduleTick   int `mapstructure:"scheduleTick"`
	MissedSweep    int `mapstructure:"missedSweep"`
	ContainerSweep int `mapstructure:"containerSweep"`
	DanglingPrune  int `mapstructure:"danglingPrune"`
	ReaperSweep    int `mapstructure:"reaperSweep"`
}

func (t *TimersConfig) SetDefaults() {
	if t.ScheduleTick <= 0 {
		t.ScheduleTick = 60
	}
	if t.MissedSweep <= 0 {
		t.MissedSweep = 60
	}
	if t.ContainerSweep <= 0 {
		t.ContainerSweep = 120
	}
	if t.DanglingPrune <= 0 {
		t.DanglingPrune = 3600
	}
	if t.ReaperSweep <= 0 {
		t.ReaperSweep = 180
	}
}

type AppConfig struct {
	Log      log.Conf              `mapstructure:"log"`
	Http     http.Http             `mapstructure:"http"`
	Database database.Database     `mapstructure:"database"`
	Redis    cache.Redis           `mapstructure:"redis"`
	Blob     blob.Config           `mapstructure:"blob"`
	Runner   executor.Config       `mapstructure:"runner"`
	Metrics  metrics.MetricsConfig `mapstructure:"metrics"`
	Timers   TimersConfig          `mapstructure:"timers"`
}

func (c *AppConfig) setDefaults() {
	c.Http.SetDefaults()
	c.Blob.SetDefaults()
	c.Runner.SetDefaults()
	c.Metrics.SetDefaults()
	c.Timers.SetDefaults()
}

var (
	cfg  AppConfig
	mu   sync.RWMutex
	once sync.Once
)

func NewConf(confFile string) *AppConfig {
	once.Do(func() {
		var err error
		cfg, err = LoadConfigFile(confFile)
		if err != nil {
			panic(fmt.Sprintf("load config file error: %s", err))
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return &cfg
}

// GetConfig returns the current configuration, safe under hot reload.
func GetConfig() AppConfig {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// LoadConfigFile reads the configuration file and watches it for changes.
func LoadConfigFile(confFile string) (AppConfig, error) {
	config := viper.New()
	config.SetConfigFile(confFile)
	if err := config.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read configuration file: %v", err)
	}

	config.WatchConfig()
	config.OnConfigChange(func(e fsnotify.Event) {
		log.Infow("configuration changed, re-reading", "file", e.Name)
		if err := config.ReadInConfig(); err != nil {
			log.Errorw("failed to re-read configuration file", "error", err, "file", e.Name)
			return
		}
		mu.Lock()
		if err := config.Unmarshal(&cfg); err != nil {
			mu.Unlock()
			log.Errorw("failed to unmarshal configuration file", "error", err, "file", e.Name)
			return
		}
		cfg.setDefaults()
		mu.Unlock()
		log.Infow("configuration reloaded successfully", "file", e.Name)
	})

	if err := config.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal configuration file: %v", err)
	}
	cfg.setDefaults()
	log.Infow("config file loaded", "path", confFile)
	return cfg, nil
}

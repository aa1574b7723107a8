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

// Package log provides the process-wide structured logger.
package log

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/wire"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ProviderSet provides logger dependencies.
var ProviderSet = wire.NewSet(ProvideLogger)

// Conf defines logger configuration.
type Conf struct {
	Level      string `mapstructure:"level"`
	Output     string `mapstructure:"output"` // stdout | file
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	RotateSize int    `mapstructure:"rotateSize"` // MB
	RotateNum  int    `mapstructure:"rotateNum"`
	KeepDays   int    `mapstructure:"keepDays"`
}

// Logger wraps the zap sugared logger for dependency injection.
type Logger struct {
	*zap.SugaredLogger
}

var (
	mu     sync.RWMutex
	global = newDefault()
)

// SetDefaults normalizes logger configuration.
func (c *Conf) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
	if c.Output == "file" {
		if c.Path == "" {
			c.Path = "./logs"
		}
		if c.Filename == "" {
			c.Filename = "runcore.log"
		}
		if c.RotateSize <= 0 {
			c.RotateSize = 100
		}
		if c.RotateNum <= 0 {
			c.RotateNum = 10
		}
		if c.KeepDays <= 0 {
			c.KeepDays = 7
		}
	}
}

// ProvideLogger creates a logger from configuration and installs it globally.
func ProvideLogger(conf *Conf) (*Logger, error) {
	l, err := New(conf)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// New builds a logger from configuration and replaces the global instance.
func New(conf *Conf) (*Logger, error) {
	if conf == nil {
		conf = &Conf{}
	}
	conf.SetDefaults()

	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var sink zapcore.WriteSyncer
	if conf.Output == "file" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(conf.Path, conf.Filename),
			MaxSize:    conf.RotateSize,
			MaxBackups: conf.RotateNum,
			MaxAge:     conf.KeepDays,
		})
	} else {
		sink = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level)
	l := &Logger{SugaredLogger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()}

	mu.Lock()
	global = l
	mu.Unlock()
	return l, nil
}

func newDefault() *Logger {
	l, _ := zap.NewProduction(zap.AddCallerSkip(1))
	return &Logger{SugaredLogger: l.Sugar()}
}

func get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Debug logs at debug level.
func Debug(args ...any) { get().Debug(args...) }

// Debugw logs a structured message at debug level.
func Debugw(msg string, keysAndValues ...any) { get().Debugw(msg, keysAndValues...) }

// Info logs at info level.
func Info(args ...any) { get().Info(args...) }

// Infow logs a structured message at info level.
func Infow(msg string, keysAndValues ...any) { get().Infow(msg, keysAndValues...) }

// Warn logs at warn level.
func Warn(args ...any) { get().Warn(args...) }

// Warnw logs a structured message at warn level.
func Warnw(msg string, keysAndValues ...any) { get().Warnw(msg, keysAndValues...) }

// Error logs at error level.
func Error(args ...any) { get().Error(args...) }

// Errorw logs a structured message at error level.
func Errorw(msg string, keysAndValues ...any) { get().Errorw(msg, keysAndValues...) }

// Sync flushes buffered log entries.
func Sync() error { return get().SugaredLogger.Sync() }

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

package model

import (
	"time"

	"gorm.io/datatypes"
)

// TrackedObject is the {name, value, type} observation inside a row.
type TrackedObject struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Type  string `json:"type"`
}

// TrackedLabel is one label attached to a row.
type TrackedLabel struct {
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
	Type  string `json:"type"`
}

// MetricRow is one timestamped metric observation emitted by a run.
// RowHash is the digest of the (run, object, label, created_at) conflict key;
// a duplicate append is a no-op on its unique index.
type MetricRow struct {
	Id        uint           `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	RunId     string         `gorm:"column:run_id;index" json:"runSuuid"`
	RowHash   string         `gorm:"column:row_hash;uniqueIndex" json:"-"`
	Metric    datatypes.JSON `gorm:"column:metric" json:"metric"`
	Label     datatypes.JSON `gorm:"column:label" json:"label"`
	IsMasked  bool           `gorm:"column:is_masked" json:"isMasked"`
	CreatedAt time.Time      `gorm:"column:created_at;index" json:"createdAt"`
}

func (MetricRow) TableName() string {
	return "t_metric_row"
}

// VariableRow is one timestamped variable observation emitted by a run.
type VariableRow struct {
	Id        uint           `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	RunId     string         `gorm:"column:run_id;index" json:"runSuuid"`
	RowHash   string         `gorm:"column:row_hash;uniqueIndex" json:"-"`
	Variable  datatypes.JSON `gorm:"column:variable" json:"variable"`
	Label     datatypes.JSON `gorm:"column:label" json:"label"`
	IsMasked  bool           `gorm:"column:is_masked" json:"isMasked"`
	CreatedAt time.Time      `gorm:"column:created_at;index" json:"createdAt"`
}

func (VariableRow) TableName() string {
	return "t_variable_row"
}

// UniqueName aggregates one distinct (name, type) pair with its row count.
type UniqueName struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// MetricMeta is the per-run aggregated summary, materialized asynchronously.
type MetricMeta struct {
	BaseModel
	RunId           string         `gorm:"column:run_id;uniqueIndex" json:"runSuuid"`
	Count           int            `gorm:"column:count" json:"count"`
	Size            int64          `gorm:"column:size" json:"size"`
	MetricNames     datatypes.JSON `gorm:"column:metric_names" json:"metricNames"`
	LabelNames      datatypes.JSON `gorm:"column:label_names" json:"labelNames"`
	BlobPath        string         `gorm:"column:blob_path" json:"-"`
}

func (MetricMeta) TableName() string {
	return "t_metric_meta"
}

// VariableMeta mirrors MetricMeta for variable rows.
type VariableMeta struct {
	BaseModel
	RunId         string         `gorm:"column:run_id;uniqueIndex" json:"runSuuid"`
	Count         int            `gorm:"column:count" json:"count"`
	Size          int64          `gorm:"column:size" json:"size"`
	VariableNames datatypes.JSON `gorm:"column:variable_names" json:"variableNames"`
	LabelNames    datatypes.JSON `gorm:"column:label_names" json:"labelNames"`
	BlobPath      string         `gorm:"column:blob_path" json:"-"`
}

func (VariableMeta) TableName() string {
	return "t_variable_meta"
}

// Variable is a project-scoped environment variable injected into runs.
// Masking is one-way: once is_masked is set it cannot be cleared and the
// stored value never leaves the process unmasked.
type Variable struct {
	BaseModel
	ProjectId string `gorm:"column:project_id;index" json:"projectId"`
	Name      string `gorm:"column:name" json:"name"`
	Value     string `gorm:"column:value" json:"-"`
	IsMasked  bool   `gorm:"column:is_masked" json:"isMasked"`
}

func (Variable) TableName() string {
	return "t_variable"
}

// MaskedSentinel replaces masked variable values everywhere they surface.
const MaskedSentinel = "***masked***"

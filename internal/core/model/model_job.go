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

// JobDefinition is upserted by (project, name) whenever a package config is
// processed.
type JobDefinition struct {
	BaseModel
	ProjectId           string `gorm:"column:project_id;index:idx_jobdef_project_name" json:"projectId"`
	Name                string `gorm:"column:name;index:idx_jobdef_project_name" json:"name"`
	EnvironmentImage    string `gorm:"column:environment_image" json:"environmentImage"`
	EnvironmentUsername string `gorm:"column:environment_username" json:"-"`
	EnvironmentPassword string `gorm:"column:environment_password" json:"-"`
	Timezone            string `gorm:"column:timezone" json:"timezone"`
}

func (JobDefinition) TableName() string {
	return "t_job_definition"
}

// Schedule is a cron-defined recurrence owned by a job definition.
type Schedule struct {
	BaseModel
	JobDefinitionId string         `gorm:"column:job_definition_id;index" json:"jobDefinitionId"`
	MembershipId    string         `gorm:"column:membership_id" json:"membershipId"`
	RawDefinition   datatypes.JSON `gorm:"column:raw_definition" json:"rawDefinition"`
	CronDefinition  string         `gorm:"column:cron_definition" json:"cronDefinition"`
	CronTimezone    string         `gorm:"column:cron_timezone" json:"cronTimezone"`
	LastRunAt       *time.Time     `gorm:"column:last_run_at" json:"lastRunAt"`
	NextRunAt       *time.Time     `gorm:"column:next_run_at;index" json:"nextRunAt"`
}

func (Schedule) TableName() string {
	return "t_schedule"
}

// Payload is the immutable JSON input of one run invocation.
type Payload struct {
	BaseModel
	JobDefinitionId string `gorm:"column:job_definition_id;index" json:"jobDefinitionId"`
	ProjectId       string `gorm:"column:project_id" json:"projectId"`
	Size            int64  `gorm:"column:size" json:"size"`
	Lines           int    `gorm:"column:lines" json:"lines"`
	BlobPath        string `gorm:"column:blob_path" json:"-"`
}

func (Payload) TableName() string {
	return "t_payload"
}

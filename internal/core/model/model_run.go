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

// Run is one execution attempt of a job definition against a specific
// package and payload.
type Run struct {
	BaseModel
	JobDefinitionId string         `gorm:"column:job_definition_id;index" json:"jobDefinitionId"`
	ProjectId       string         `gorm:"column:project_id;index" json:"projectId"`
	PackageId       string         `gorm:"column:package_id" json:"packageId"`
	PayloadId       string         `gorm:"column:payload_id" json:"payloadId"`
	MembershipId    string         `gorm:"column:membership_id" json:"membershipId"`
	RunImageId      string         `gorm:"column:run_image_id" json:"runImageId"`
	Status          string         `gorm:"column:status;index" json:"status"`
	Trigger         string         `gorm:"column:trigger" json:"trigger"`
	ScheduleId      string         `gorm:"column:schedule_id" json:"scheduleId,omitempty"`
	ContainerId     string         `gorm:"column:container_id" json:"-"`
	ExitCode        int            `gorm:"column:exit_code" json:"exitCode"`
	EnvSnapshot     datatypes.JSON `gorm:"column:env_snapshot" json:"environment,omitempty"` // masked values only
	SubmittedAt     *time.Time     `gorm:"column:submitted_at" json:"submittedAt"`
	StartedAt       *time.Time     `gorm:"column:started_at" json:"startedAt"`
	FinishedAt      *time.Time     `gorm:"column:finished_at" json:"finishedAt"`
}

func (Run) TableName() string {
	return "t_run"
}

const (
	RunStatusPending    = "pending"
	RunStatusInProgress = "in_progress"
	RunStatusFinished   = "finished"
	RunStatusFailed     = "failed"
	RunStatusCanceled   = "canceled"
)

const (
	RunTriggerManual   = "manual"
	RunTriggerSchedule = "schedule"
)

// IsTerminal reports whether the run reached an absorbing state.
func (r *Run) IsTerminal() bool {
	switch r.Status {
	case RunStatusFinished, RunStatusFailed, RunStatusCanceled:
		return true
	}
	return false
}

// RunArtifact is a write-once zipped tree produced by a run.
type RunArtifact struct {
	BaseModel
	RunId            string     `gorm:"column:run_id;index" json:"runId"`
	Size             int64      `gorm:"column:size" json:"size"`
	CountDir         int        `gorm:"column:count_dir" json:"countDir"`
	CountFiles       int        `gorm:"column:count_files" json:"countFiles"`
	BlobPath         string     `gorm:"column:blob_path" json:"-"`
	FinishedUploadAt *time.Time `gorm:"column:finished_upload_at" json:"finishedUploadAt"`
}

func (RunArtifact) TableName() string {
	return "t_run_artifact"
}

// RunResult is the single output file of a run.
type RunResult struct {
	BaseModel
	RunId            string     `gorm:"column:run_id;uniqueIndex" json:"runId"`
	Name             string     `gorm:"column:name" json:"name"`
	Size             int64      `gorm:"column:size" json:"size"`
	ContentType      string     `gorm:"column:content_type" json:"contentType"`
	Extension        string     `gorm:"column:extension" json:"extension"`
	BlobPath         string     `gorm:"column:blob_path" json:"-"`
	FinishedUploadAt *time.Time `gorm:"column:finished_upload_at" json:"finishedUploadAt"`
}

func (RunResult) TableName() string {
	return "t_run_result"
}

// RunLog is the appended text log of a run, frozen on completion.
type RunLog struct {
	BaseModel
	RunId    string `gorm:"column:run_id;uniqueIndex" json:"runId"`
	Lines    int    `gorm:"column:lines" json:"lines"`
	Size     int64  `gorm:"column:size" json:"size"`
	BlobPath string `gorm:"column:blob_path" json:"-"`
}

func (RunLog) TableName() string {
	return "t_run_log"
}

// RunImage records a resolved container image and its local cache state.
type RunImage struct {
	BaseModel
	Name        string `gorm:"column:name;index:idx_run_image_ref" json:"name"`
	Tag         string `gorm:"column:tag;index:idx_run_image_ref" json:"tag"`
	Digest      string `gorm:"column:digest" json:"digest"`
	CachedImage string `gorm:"column:cached_image" json:"cachedImage"`
}

func (RunImage) TableName() string {
	return "t_run_image"
}

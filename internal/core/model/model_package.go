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

import "time"

// Package is an uploaded zip snapshot of a project working directory.
type Package struct {
	BaseModel
	ProjectId        string     `gorm:"column:project_id;index" json:"projectId"`
	CreatedById      string     `gorm:"column:created_by_id" json:"createdById"` // membership suuid
	OriginalFilename string     `gorm:"column:original_filename" json:"originalFilename"`
	Size             int64      `gorm:"column:size" json:"size"`
	BlobPath         string     `gorm:"column:blob_path" json:"-"`
	FinishedUploadAt *time.Time `gorm:"column:finished_upload_at" json:"finishedUploadAt"`
}

func (Package) TableName() string {
	return "t_package"
}

// IsAvailable reports whether the package blob finished assembly.
func (p *Package) IsAvailable() bool {
	return p.FinishedUploadAt != nil && !p.IsDeleted()
}

// Upload tracks one chunked upload session for any uploadable parent.
type Upload struct {
	BaseModel
	ParentKind  string     `gorm:"column:parent_kind;index:idx_upload_parent" json:"parentKind"`
	ParentId    string     `gorm:"column:parent_id;index:idx_upload_parent" json:"parentId"` // parent suuid
	Status      string     `gorm:"column:status" json:"status"`
	TotalSize   int64      `gorm:"column:total_size" json:"totalSize"`
	TotalEtag   string     `gorm:"column:total_etag" json:"totalEtag"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completedAt"`
}

func (Upload) TableName() string {
	return "t_upload"
}

const (
	UploadStatusOpen      = "open"
	UploadStatusCompleted = "completed"
	UploadStatusAborted   = "aborted"
)

const (
	UploadParentPackage  = "package"
	UploadParentArtifact = "run_artifact"
	UploadParentResult   = "run_result"
)

// ChunkPart is one stored part of an open upload. Ephemeral: deleted after
// assembly succeeds.
type ChunkPart struct {
	Id         uint      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	UploadId   string    `gorm:"column:upload_id;index:idx_part_upload,unique" json:"uploadId"`
	PartNumber int       `gorm:"column:part_number;index:idx_part_upload,unique" json:"partNumber"`
	Size       int64     `gorm:"column:size" json:"size"`
	Etag       string    `gorm:"column:etag" json:"etag"`
	IsLast     bool      `gorm:"column:is_last" json:"isLast"`
	FilePath   string    `gorm:"column:file_path" json:"-"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"createdAt"`
}

func (ChunkPart) TableName() string {
	return "t_chunk_part"
}

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

	"github.com/askanna-io/runcore/pkg/suuid"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel carries the identifier pair every entity has: the stable 128-bit
// uuid and the 16-character public suuid derived from it.
type BaseModel struct {
	Id         uint       `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	Uuid       string     `gorm:"column:uuid;size:36;uniqueIndex" json:"-"`
	SuuId      string     `gorm:"column:suuid;size:19;uniqueIndex" json:"suuid"`
	CreatedAt  time.Time  `gorm:"column:created_at" json:"createdAt"`
	ModifiedAt time.Time  `gorm:"column:modified_at;autoUpdateTime" json:"modifiedAt"`
	DeletedAt  *time.Time `gorm:"column:deleted_at;index" json:"deletedAt,omitempty"`
}

// BeforeCreate assigns the identifier pair when absent.
func (b *BaseModel) BeforeCreate(_ *gorm.DB) error {
	if b.Uuid == "" {
		u := uuid.New()
		b.Uuid = u.String()
		b.SuuId = suuid.FromUUID(u)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}

// IsDeleted reports whether the entity is soft-deleted.
func (b *BaseModel) IsDeleted() bool {
	return b.DeletedAt != nil
}

// MarkDeleted sets the soft-deletion marker.
func (b *BaseModel) MarkDeleted() {
	now := time.Now().UTC()
	b.DeletedAt = &now
}

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

// The core only needs identifiers and soft-deletion state from the account
// domain; membership/role logic lives outside this system.

type Workspace struct {
	BaseModel
	Name string `gorm:"column:name" json:"name"`
}

func (Workspace) TableName() string {
	return "t_workspace"
}

type Project struct {
	BaseModel
	WorkspaceId string `gorm:"column:workspace_id;index" json:"workspaceId"`
	Name        string `gorm:"column:name" json:"name"`
}

func (Project) TableName() string {
	return "t_project"
}

// Membership attributes runs and schedules to a user within a workspace.
type Membership struct {
	BaseModel
	WorkspaceId string `gorm:"column:workspace_id;index" json:"workspaceId"`
	UserId      string `gorm:"column:user_id" json:"userId"`
	Role        string `gorm:"column:role" json:"role"`
}

func (Membership) TableName() string {
	return "t_membership"
}

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

// Setting is an operator-tunable configuration value, read through a cache.
type Setting struct {
	BaseModel
	Name  string `gorm:"column:name;uniqueIndex" json:"name"`
	Value string `gorm:"column:value" json:"value"`
}

func (Setting) TableName() string {
	return "t_setting"
}

// Known setting names.
const (
	SettingUIURL                = "ASKANNA_UI_URL"
	SettingDefaultFromEmail     = "DEFAULT_FROM_EMAIL"
	SettingDockerAutoRemoveTTL  = "DOCKER_AUTO_REMOVE_TTL_HOURS"
	SettingDockerPrintLog       = "DOCKER_PRINT_LOG"
	SettingObjectRemovalTTL     = "OBJECT_REMOVAL_TTL_HOURS"
	SettingRunnerDefaultImage   = "RUNNER_DEFAULT_DOCKER_IMAGE"
	SettingRunnerImageUsername  = "RUNNER_DEFAULT_DOCKER_IMAGE_USERNAME"
	SettingRunnerImagePassword  = "RUNNER_DEFAULT_DOCKER_IMAGE_PASSWORD"
)

// SettingDefaults is the process-wide fallback table.
var SettingDefaults = map[string]string{
	SettingUIURL:               "",
	SettingDefaultFromEmail:    "",
	SettingDockerAutoRemoveTTL: "1",
	SettingDockerPrintLog:      "false",
	SettingObjectRemovalTTL:    "720",
	SettingRunnerDefaultImage:  "askanna/python:3-slim",
	SettingRunnerImageUsername: "",
	SettingRunnerImagePassword: "",
}

// IsKnownSetting reports whether name is part of the settings enum.
func IsKnownSetting(name string) bool {
	_, ok := SettingDefaults[name]
	return ok
}

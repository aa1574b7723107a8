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

package database

import (
	"github.com/google/wire"
	"gorm.io/gorm"
)

// ProviderSet provides database-related dependencies.
var ProviderSet = wire.NewSet(
	ProvideManager,
	ProvideIDatabase,
)

// IDatabase is the handle repositories depend on.
type IDatabase interface {
	Database() *gorm.DB
}

type databaseAdapter struct {
	manager Manager
}

func (a *databaseAdapter) Database() *gorm.DB {
	return a.manager.DB()
}

// NewDatabaseAdapter wraps a Manager as IDatabase.
func NewDatabaseAdapter(manager Manager) IDatabase {
	return &databaseAdapter{manager: manager}
}

// ProvideManager creates the database Manager instance.
func ProvideManager(conf Database) (Manager, error) {
	return NewManager(conf)
}

// ProvideIDatabase provides the IDatabase interface instance.
func ProvideIDatabase(manager Manager) IDatabase {
	return NewDatabaseAdapter(manager)
}

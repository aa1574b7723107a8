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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/askanna-io/runcore/internal/core/bootstrap"
	"github.com/askanna-io/runcore/internal/core/config"
	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/pkg/database"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:           "runcore",
		Short:         "runcore runs project jobs in containers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "conf", "conf.d/config.toml", "config file path")
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server, schedule engine and run executor",
		RunE: func(_ *cobra.Command, _ []string) error {
			app, cleanup, _, err := bootstrap.Bootstrap(configFile, initApp)
			if err != nil {
				return err
			}
			bootstrap.Run(app, cleanup)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			conf := config.NewConf(configFile)
			manager, err := database.NewManager(conf.Database)
			if err != nil {
				return err
			}
			defer manager.Close()

			return manager.DB().AutoMigrate(
				&model.Workspace{},
				&model.Project{},
				&model.Membership{},
				&model.JobDefinition{},
				&model.Schedule{},
				&model.Payload{},
				&model.Package{},
				&model.Upload{},
				&model.ChunkPart{},
				&model.Run{},
				&model.RunArtifact{},
				&model.RunResult{},
				&model.RunLog{},
				&model.RunImage{},
				&model.MetricRow{},
				&model.VariableRow{},
				&model.MetricMeta{},
				&model.VariableMeta{},
				&model.Variable{},
				&model.Setting{},
			)
		},
	}
}

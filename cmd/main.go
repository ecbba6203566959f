/*
Copyright 2025 ListingLens Engineering.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/listinglens/skillrun"
	"github.com/listinglens/skillrun/config"
	"github.com/listinglens/skillrun/database"
	"github.com/listinglens/skillrun/internal/notification"
)

// CLI wraps the root cobra command for the skillrun binary.
type CLI struct {
	cmd *cobra.Command
}

// skillrunInstance carries the engine instance and its configuration into the
// subcommands.
type skillrunInstance struct {
	skillrun *skillrun.Skillrun
	cnf      *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the engine before any
// subcommand executes.
func preRun(app *skillrunInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("skillrun.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newSkillrun, err := setupSkillrun(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.skillrun = newSkillrun
		app.cnf = cnf

		return nil
	}
}

func setupSkillrun(cfg *config.Configuration) (*skillrun.Skillrun, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newSkillrun, err := skillrun.NewSkillrun(db)
	if err != nil {
		return nil, fmt.Errorf("error creating skillrun: %v", err)
	}
	return newSkillrun, nil
}

// NewCLI builds the command tree: server, workers, migrations, and config
// inspection.
func NewCLI() *CLI {
	var configFile string
	b := &skillrunInstance{}

	var rootCmd = &cobra.Command{
		Use:   "skillrun",
		Short: "Skill execution engine and credit ledger",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./skillrun.json", "Configuration file for skillrun")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(configCommands())

	return &CLI{cmd: rootCmd}
}

func (w CLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}

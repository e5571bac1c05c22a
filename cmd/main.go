/*
Copyright 2024 Meterline Authors.

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

	"github.com/meterline/meterline"
	"github.com/meterline/meterline/config"
	"github.com/meterline/meterline/database"
	"github.com/meterline/meterline/internal/notification"
)

// CLI encapsulates the root Cobra command of the meterline binary.
type CLI struct {
	cmd *cobra.Command
}

// meterlineInstance holds the runtime Meterline instance and its
// configuration, shared by every subcommand.
type meterlineInstance struct {
	mtl *meterline.Meterline
	cnf *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// loadConfiguration loads the configuration from the given file path.
func loadConfiguration(configFile string) error {
	return config.InitConfig(configFile)
}

// preRun loads the configuration from the file selected by the --config flag
// and initializes the Meterline instance before any subcommand runs.
func preRun(app *meterlineInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := loadConfiguration(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newMeterline, err := setupMeterline(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.mtl = newMeterline
		app.cnf = cnf

		return nil
	}
}

// setupMeterline connects to the data source and builds a Meterline instance
// from the provided configuration.
func setupMeterline(cfg *config.Configuration) (*meterline.Meterline, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newMeterline, err := meterline.NewMeterline(db)
	if err != nil {
		return nil, fmt.Errorf("error creating meterline: %v", err)
	}
	return newMeterline, nil
}

// NewCLI assembles the command-line interface: the root command plus the
// server, workers, migrate and config subcommands.
func NewCLI() *CLI {
	var configFile string
	m := &meterlineInstance{}

	var rootCmd = &cobra.Command{
		Use:   "meterline",
		Short: "Work queue and prepaid usage metering server",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./meterline.json", "Configuration file for meterline")

	rootCmd.PersistentPreRunE = preRun(m, &configFile)

	rootCmd.AddCommand(serverCommands(m))
	rootCmd.AddCommand(workerCommands(m))
	rootCmd.AddCommand(migrateCommands(m))
	rootCmd.AddCommand(configCommands())

	return &CLI{cmd: rootCmd}
}

// executeCLI runs the root command and exits on error.
func (c CLI) executeCLI() {
	if err := c.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}

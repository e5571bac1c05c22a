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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/config"
)

func TestConfigFlagSelectsConfigFile(t *testing.T) {
	cnf := config.Configuration{
		ProjectName: "meterline-flag-test",
		DataSource:  config.DataSourceConfig{Dns: "postgres://localhost:5432/meterline"},
		Redis:       config.RedisConfig{Dns: "localhost:6379"},
		Server:      config.ServerConfig{Port: "6123"},
	}

	path := filepath.Join(t.TempDir(), "custom-meterline.json")
	data, err := json.Marshal(&cnf)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cli := NewCLI()
	require.NoError(t, cli.cmd.ParseFlags([]string{"--config", path}))

	flag := cli.cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, path, flag.Value.String())

	// The parsed flag value is what preRun hands to the config loader.
	require.NoError(t, loadConfiguration(flag.Value.String()))

	loaded, err := config.Fetch()
	require.NoError(t, err)
	assert.Equal(t, "meterline-flag-test", loaded.ProjectName)
	assert.Equal(t, "6123", loaded.Server.Port)
}

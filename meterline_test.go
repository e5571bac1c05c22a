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

package meterline

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/config"
	"github.com/meterline/meterline/database/mocks"
)

// newTestMeterline wires a Meterline instance against a mocked datasource and
// an in-process redis.
func newTestMeterline(t *testing.T) (*Meterline, *mocks.MockDataSource) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Billing: config.BillingConfig{
			UnitPrice: 1,
		},
	})

	mockDS := new(mocks.MockDataSource)
	m, err := NewMeterline(mockDS)
	require.NoError(t, err)
	return m, mockDS
}

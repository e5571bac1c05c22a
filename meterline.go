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
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/meterline/meterline/config"
	"github.com/meterline/meterline/database"
	"github.com/meterline/meterline/internal/cache"
	redis_db "github.com/meterline/meterline/internal/redis-db"
)

// Meterline represents the main struct for the Meterline application. It ties
// the claim queue, the billing ledger and the charge orchestrator to one
// datasource.
type Meterline struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	cache      cache.Cache
	pricing    PricingStrategy
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewMeterline initializes a new instance of Meterline with the provided
// datasource. It fetches the configuration and initializes the Redis client,
// task queue, balance cache and pricing strategy.
func NewMeterline(db database.IDataSource) (*Meterline, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	newMeterline := &Meterline{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		cache:      newCache,
		pricing:    NewPricingStrategy(&configuration.Billing),
	}
	return newMeterline, nil
}

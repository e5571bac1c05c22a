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
package api

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/meterline/meterline"
	"github.com/meterline/meterline/api/middleware"
	"github.com/meterline/meterline/config"
)

type Api struct {
	meterline *meterline.Meterline
	router    *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/queues/:queue_key/work-items", a.CreateWorkItem)
	router.GET("/queues/:queue_key/work-items", a.GetQueueWorkItems)
	router.POST("/queues/:queue_key/poll", a.PollWorkItem)

	router.GET("/work-items/:id", a.GetWorkItem)
	router.POST("/work-items/:id/submit", a.SubmitWorkItem)
	router.POST("/work-items/:id/release", a.ReleaseWorkItem)

	router.POST("/credits", a.CreateGrant)
	router.GET("/grants/:id", a.GetGrant)
	router.GET("/balances/:account_id", a.GetBalance)
	router.GET("/accounts/:account_id/ledger", a.GetLedgerEntries)

	router.POST("/charges", a.ChargeBatch)

	return a.router
}

func NewAPI(m *meterline.Meterline) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{meterline: m, router: r}
}

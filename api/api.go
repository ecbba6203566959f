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
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/typesense/typesense-go/typesense/api"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/listinglens/skillrun"
	"github.com/listinglens/skillrun/api/middleware"
	"github.com/listinglens/skillrun/config"
	"github.com/listinglens/skillrun/internal/apierror"
)

type Api struct {
	skillrun *skillrun.Skillrun
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/skills/:slug/execute", a.ExecuteSkill)

	router.POST("/executions", a.CreateExecution)
	router.GET("/executions/:id", a.GetExecution)
	router.GET("/executions", a.GetAllExecutions)
	router.DELETE("/executions/:id", a.CancelExecution)
	router.POST("/executions/:id/retry", a.RetryExecution)

	router.POST("/schedules", a.CreateSchedule)
	router.GET("/schedules/:id", a.GetSchedule)
	router.GET("/schedules", a.GetAllSchedules)
	router.DELETE("/schedules/:id", a.DeleteSchedule)

	router.POST("/dispatcher/tick", a.DispatcherTick)
	router.POST("/events/:trigger", a.DeliverEvent)

	router.POST("/accounts", a.CreateAccount)
	router.GET("/accounts/:id", a.GetAccount)
	router.GET("/accounts", a.GetAllAccounts)
	router.POST("/accounts/:id/topup", a.TopUpAccount)
	router.GET("/accounts/:id/transactions", a.GetAccountTransactions)
	router.GET("/accounts/:id/reconciliation", a.ReconcileAccount)

	router.POST("/search/:collection", a.Search)
	return a.router
}

func NewAPI(s *skillrun.Skillrun) *Api {
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

	return &Api{skillrun: s, router: r}
}

func (a Api) Search(c *gin.Context) {
	collection, passed := c.Params.Get("collection")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection is required. pass id in the route /:collection"})
		return
	}

	var query api.SearchCollectionParams
	err := c.BindJSON(&query)
	if err != nil {
		return
	}

	resp, err := a.skillrun.Search(collection, &query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleError maps service errors to HTTP status codes, exposing APIError
// bodies as-is.
func handleError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	if apiErr, ok := err.(apierror.APIError); ok {
		c.JSON(status, gin.H{"error": apiErr.Message, "code": apiErr.Code, "details": apiErr.Details})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

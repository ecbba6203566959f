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

	"github.com/gin-gonic/gin"

	model2 "github.com/listinglens/skillrun/api/model"
)

// ExecuteSkill runs a skill synchronously and returns the settled execution,
// including output, token usage, and the debited cost.
func (a Api) ExecuteSkill(c *gin.Context) {
	slug := c.Param("slug")

	var req model2.ExecuteSkill
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := req.ValidateExecuteSkill(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	execution, err := a.skillrun.ExecuteSkill(c.Request.Context(), slug, req.AccountID, req.Input, req.TriggeredBy)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, execution)
}

// CreateExecution enqueues a manual execution for async processing.
func (a Api) CreateExecution(c *gin.Context) {
	var req model2.CreateExecution
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := req.ValidateCreateExecution(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	execution, err := a.skillrun.EnqueueExecution(c.Request.Context(), req.ToExecution())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, execution)
}

func (a Api) GetExecution(c *gin.Context) {
	id := c.Param("id")

	execution, err := a.skillrun.GetExecution(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, execution)
}

func (a Api) GetAllExecutions(c *gin.Context) {
	limit, offset := pagination(c)
	executions, err := a.skillrun.GetAllExecutions(c.Request.Context(), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, executions)
}

func (a Api) CancelExecution(c *gin.Context) {
	id := c.Param("id")

	execution, err := a.skillrun.CancelExecution(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, execution)
}

func (a Api) RetryExecution(c *gin.Context) {
	id := c.Param("id")

	var req model2.RetryExecution
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	execution, err := a.skillrun.RetryExecution(c.Request.Context(), id, req.TriggeredBy)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, execution)
}

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
)

// DispatcherTick runs one dispatcher pass. Safe to call from overlapping
// schedulers; duplicate ticks claim nothing.
func (a Api) DispatcherTick(c *gin.Context) {
	result, err := a.skillrun.Tick(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeliverEvent fans an external event out to its bound schedules.
func (a Api) DeliverEvent(c *gin.Context) {
	trigger := c.Param("trigger")

	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	executions, err := a.skillrun.DeliverEvent(c.Request.Context(), trigger, payload, c.GetHeader("X-Event-Source"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"enqueued": len(executions), "executions": executions})
}

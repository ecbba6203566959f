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

func (a Api) CreateSchedule(c *gin.Context) {
	var req model2.CreateSchedule
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := req.ValidateCreateSchedule(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	schedule, err := a.skillrun.CreateSchedule(c.Request.Context(), req.ToSchedule())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

func (a Api) GetSchedule(c *gin.Context) {
	id := c.Param("id")

	schedule, err := a.skillrun.GetSchedule(id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

func (a Api) GetAllSchedules(c *gin.Context) {
	limit, offset := pagination(c)
	schedules, err := a.skillrun.GetAllSchedules(limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedules)
}

// DeleteSchedule deactivates a schedule; the record and its execution history
// remain.
func (a Api) DeleteSchedule(c *gin.Context) {
	id := c.Param("id")

	if err := a.skillrun.DeactivateSchedule(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Schedule deactivated"})
}

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

package skillrun

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/listinglens/skillrun/internal/apierror"
	"github.com/listinglens/skillrun/internal/search"
	"github.com/listinglens/skillrun/model"
)

// CreateSchedule validates and persists a recurring trigger configuration and
// seeds next_run_at for polled schedule types. Event schedules carry no
// next_run_at; the dispatcher never polls them.
func (s *Skillrun) CreateSchedule(ctx context.Context, schedule model.Schedule) (model.Schedule, error) {
	ctx, span := tracer.Start(ctx, "Creating schedule")
	defer span.End()

	if err := schedule.ValidateConfig(); err != nil {
		return model.Schedule{}, apierror.NewAPIError(apierror.ErrScheduleConfig, err.Error(), err)
	}
	if _, err := s.datasource.GetAccountByID(ctx, schedule.AccountID); err != nil {
		return model.Schedule{}, logAndRecordError(span, "fetch account error: ", err)
	}

	now := time.Now()
	switch schedule.ScheduleType {
	case model.ScheduleTypeInterval:
		next := schedule.NextIntervalRun(now)
		schedule.NextRunAt = &next
	case model.ScheduleTypeCron:
		next, err := s.cron.NextAfter(*schedule.CronExpression, now)
		if err != nil {
			return model.Schedule{}, apierror.NewAPIError(apierror.ErrScheduleConfig, fmt.Sprintf("Invalid cron expression '%s'", *schedule.CronExpression), err)
		}
		schedule.NextRunAt = &next
	case model.ScheduleTypeEvent:
		schedule.NextRunAt = nil
	}
	schedule.IsActive = true

	created, err := s.datasource.CreateSchedule(schedule)
	if err != nil {
		return model.Schedule{}, logAndRecordError(span, "create schedule error: ", err)
	}

	if err := s.queue.queueIndexData(created.ScheduleID, search.CollectionSchedules, created); err != nil {
		logrus.Error("index queue error: ", err)
	}
	return created, nil
}

// GetSchedule retrieves a schedule by its id.
func (s *Skillrun) GetSchedule(id string) (*model.Schedule, error) {
	return s.datasource.GetScheduleByID(id)
}

// GetAllSchedules lists schedules, newest first.
func (s *Skillrun) GetAllSchedules(limit, offset int) ([]model.Schedule, error) {
	return s.datasource.GetAllSchedules(limit, offset)
}

// DeactivateSchedule turns a schedule off. Execution history stays; the
// dispatcher stops claiming it and event delivery skips it.
func (s *Skillrun) DeactivateSchedule(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Deactivating schedule")
	defer span.End()

	if err := s.datasource.DeactivateSchedule(ctx, id); err != nil {
		return logAndRecordError(span, "deactivate schedule error: ", err)
	}

	if schedule, err := s.datasource.GetScheduleByID(id); err == nil {
		if err := s.queue.queueIndexData(schedule.ScheduleID, search.CollectionSchedules, schedule); err != nil {
			logrus.Error("index queue error: ", err)
		}
	}
	return nil
}

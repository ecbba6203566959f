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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/listinglens/skillrun/internal/apierror"
	"github.com/listinglens/skillrun/model"
)

const scheduleColumns = `schedule_id, account_id, agent_slug, schedule_type, interval_minutes, cron_expression, event_trigger, max_concurrent, is_active, next_run_at, last_run_at, created_by, created_at, meta_data`

func scanSchedule(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Schedule, error) {
	schedule := &model.Schedule{}
	metaDataJSON := []byte{}
	var intervalMinutes sql.NullInt64
	var cronExpression, eventTrigger sql.NullString
	var nextRunAt, lastRunAt sql.NullTime

	err := scanner.Scan(&schedule.ScheduleID, &schedule.AccountID, &schedule.AgentSlug, &schedule.ScheduleType,
		&intervalMinutes, &cronExpression, &eventTrigger, &schedule.MaxConcurrent, &schedule.IsActive,
		&nextRunAt, &lastRunAt, &schedule.CreatedBy, &schedule.CreatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}

	if intervalMinutes.Valid {
		minutes := int(intervalMinutes.Int64)
		schedule.IntervalMinutes = &minutes
	}
	if cronExpression.Valid {
		schedule.CronExpression = &cronExpression.String
	}
	if eventTrigger.Valid {
		schedule.EventTrigger = &eventTrigger.String
	}
	if nextRunAt.Valid {
		schedule.NextRunAt = &nextRunAt.Time
	}
	if lastRunAt.Valid {
		schedule.LastRunAt = &lastRunAt.Time
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &schedule.MetaData); err != nil {
			return nil, err
		}
	}
	return schedule, nil
}

// CreateSchedule persists a new trigger configuration. The caller is expected
// to have validated the config and precomputed next_run_at for polled types.
func (d Datasource) CreateSchedule(schedule model.Schedule) (model.Schedule, error) {
	metaDataJSON, err := json.Marshal(schedule.MetaData)
	if err != nil {
		return model.Schedule{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	schedule.ScheduleID = model.GenerateUUIDWithSuffix("sch")
	schedule.CreatedAt = time.Now()

	var intervalMinutes interface{}
	if schedule.IntervalMinutes != nil {
		intervalMinutes = *schedule.IntervalMinutes
	}
	var cronExpression interface{}
	if schedule.CronExpression != nil {
		cronExpression = *schedule.CronExpression
	}
	var eventTrigger interface{}
	if schedule.EventTrigger != nil {
		eventTrigger = *schedule.EventTrigger
	}
	var nextRunAt interface{}
	if schedule.NextRunAt != nil {
		nextRunAt = *schedule.NextRunAt
	}

	_, err = d.Conn.Exec(`
		INSERT INTO skillrun.schedules (schedule_id, account_id, agent_slug, schedule_type, interval_minutes, cron_expression, event_trigger, max_concurrent, is_active, next_run_at, created_by, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, schedule.ScheduleID, schedule.AccountID, schedule.AgentSlug, schedule.ScheduleType, intervalMinutes, cronExpression, eventTrigger, schedule.MaxConcurrent, schedule.IsActive, nextRunAt, schedule.CreatedBy, schedule.CreatedAt, metaDataJSON)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "foreign_key_violation":
				return model.Schedule{}, apierror.NewAPIError(apierror.ErrBadRequest, "Invalid account ID", err)
			default:
				return model.Schedule{}, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return model.Schedule{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create schedule", err)
	}

	return schedule, nil
}

func (d Datasource) GetScheduleByID(id string) (*model.Schedule, error) {
	row := d.Conn.QueryRow(fmt.Sprintf(`
		SELECT %s FROM skillrun.schedules WHERE schedule_id = $1
	`, scheduleColumns), id)

	schedule, err := scanSchedule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Schedule with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve schedule", err)
	}
	return schedule, nil
}

func (d Datasource) GetAllSchedules(limit, offset int) ([]model.Schedule, error) {
	rows, err := d.Conn.Query(fmt.Sprintf(`
		SELECT %s FROM skillrun.schedules
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, scheduleColumns), limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve schedules", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectSchedules(rows)
}

// GetDueSchedules returns active polled schedules whose next_run_at has
// passed. Event schedules keep next_run_at null and never show up here.
func (d Datasource) GetDueSchedules(ctx context.Context, now time.Time) ([]model.Schedule, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM skillrun.schedules
		WHERE is_active = true AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at ASC
	`, scheduleColumns), now)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve due schedules", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectSchedules(rows)
}

// GetSchedulesWithPendingWork returns active schedules that have at least one
// pending execution. The dispatcher walks these every tick to re-enqueue work
// that earlier admission passes deferred at capacity, regardless of whether
// the schedule itself is due — event schedules are never due but still defer.
func (d Datasource) GetSchedulesWithPendingWork(ctx context.Context) ([]model.Schedule, error) {
	cols := "s.schedule_id, s.account_id, s.agent_slug, s.schedule_type, s.interval_minutes, s.cron_expression, s.event_trigger, s.max_concurrent, s.is_active, s.next_run_at, s.last_run_at, s.created_by, s.created_at, s.meta_data"
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT %s FROM skillrun.schedules s
		JOIN skillrun.executions e ON e.schedule_id = s.schedule_id
		WHERE s.is_active = true AND e.status = $1
	`, cols), model.StatusPending)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve schedules with pending work", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectSchedules(rows)
}

func (d Datasource) GetSchedulesByEventTrigger(ctx context.Context, trigger string) ([]model.Schedule, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM skillrun.schedules
		WHERE is_active = true AND event_trigger = $1
	`, scheduleColumns), trigger)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve event schedules", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectSchedules(rows)
}

func collectSchedules(rows *sql.Rows) ([]model.Schedule, error) {
	schedules := []model.Schedule{}
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan schedule", err)
		}
		schedules = append(schedules, *schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating schedules", err)
	}
	return schedules, nil
}

// ClaimDueSchedule advances a schedule past one due instant. The WHERE clause
// keys on the exact next_run_at the dispatcher read, so two overlapping ticks
// cannot both claim the same instant; the loser affects zero rows and must
// not enqueue.
func (d Datasource) ClaimDueSchedule(ctx context.Context, scheduleID string, due time.Time, next *time.Time, now time.Time) (bool, error) {
	var nextRunAt interface{}
	if next != nil {
		nextRunAt = *next
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE skillrun.schedules
		SET next_run_at = $2, last_run_at = $3
		WHERE schedule_id = $1 AND next_run_at = $4 AND is_active = true
	`, scheduleID, nextRunAt, now, due)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim due schedule", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected == 1, nil
}

// DeactivateSchedule flips is_active off. Schedules are never deleted so
// execution history keeps a valid parent.
func (d Datasource) DeactivateSchedule(ctx context.Context, id string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE skillrun.schedules SET is_active = false WHERE schedule_id = $1
	`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to deactivate schedule", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Schedule with ID '%s' not found", id), nil)
	}
	return nil
}

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

const executionColumns = `execution_id, agent_slug, schedule_id, account_id, status, trigger_source, input, output, tokens_used, cost_credits, error_message, credit_flagged, retry_of, triggered_by, created_at, started_at, completed_at`

func scanExecution(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Execution, error) {
	execution := &model.Execution{}
	inputJSON := []byte{}
	outputJSON := []byte{}
	var scheduleID, errorMessage, retryOf, triggeredBy sql.NullString
	var startedAt, completedAt sql.NullTime

	err := scanner.Scan(&execution.ExecutionID, &execution.AgentSlug, &scheduleID, &execution.AccountID,
		&execution.Status, &execution.TriggerSource, &inputJSON, &outputJSON, &execution.TokensUsed,
		&execution.CostCredits, &errorMessage, &execution.CreditFlagged, &retryOf, &triggeredBy,
		&execution.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	execution.ScheduleID = scheduleID.String
	execution.ErrorMessage = errorMessage.String
	execution.RetryOf = retryOf.String
	execution.TriggeredBy = triggeredBy.String
	if startedAt.Valid {
		execution.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}
	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &execution.Input); err != nil {
			return nil, err
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &execution.Output); err != nil {
			return nil, err
		}
	}
	return execution, nil
}

// CreateExecution inserts a new record in pending. All executions start
// life here; the state machine owns every later mutation.
func (d Datasource) CreateExecution(ctx context.Context, execution model.Execution) (model.Execution, error) {
	inputJSON, err := json.Marshal(execution.Input)
	if err != nil {
		return model.Execution{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal input", err)
	}

	execution.ExecutionID = model.GenerateUUIDWithSuffix("exe")
	execution.Status = model.StatusPending
	execution.CreatedAt = time.Now()

	var scheduleID interface{}
	if execution.ScheduleID != "" {
		scheduleID = execution.ScheduleID
	}
	var retryOf interface{}
	if execution.RetryOf != "" {
		retryOf = execution.RetryOf
	}
	var triggeredBy interface{}
	if execution.TriggeredBy != "" {
		triggeredBy = execution.TriggeredBy
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO skillrun.executions (execution_id, agent_slug, schedule_id, account_id, status, trigger_source, input, tokens_used, cost_credits, credit_flagged, retry_of, triggered_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, false, $8, $9, $10)
	`, execution.ExecutionID, execution.AgentSlug, scheduleID, execution.AccountID, execution.Status, execution.TriggerSource, inputJSON, retryOf, triggeredBy, execution.CreatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "foreign_key_violation":
				return model.Execution{}, apierror.NewAPIError(apierror.ErrBadRequest, "Invalid schedule or account ID", err)
			default:
				return model.Execution{}, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return model.Execution{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create execution", err)
	}

	return execution, nil
}

func (d Datasource) GetExecutionByID(ctx context.Context, id string) (*model.Execution, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM skillrun.executions WHERE execution_id = $1
	`, executionColumns), id)

	execution, err := scanExecution(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Execution with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve execution", err)
	}
	return execution, nil
}

func (d Datasource) GetAllExecutions(ctx context.Context, limit, offset int) ([]model.Execution, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM skillrun.executions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, executionColumns), limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve executions", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectExecutions(rows)
}

// GetPendingExecutions returns the oldest pending executions for a schedule,
// the order admission should pick them up in. An empty schedule id selects
// unscheduled work, which is stored with a null schedule_id.
func (d Datasource) GetPendingExecutions(ctx context.Context, scheduleID string, limit int) ([]model.Execution, error) {
	var rows *sql.Rows
	var err error
	if scheduleID == "" {
		rows, err = d.Conn.QueryContext(ctx, fmt.Sprintf(`
			SELECT %s FROM skillrun.executions
			WHERE schedule_id IS NULL AND status = $1
			ORDER BY created_at ASC
			LIMIT $2
		`, executionColumns), model.StatusPending, limit)
	} else {
		rows, err = d.Conn.QueryContext(ctx, fmt.Sprintf(`
			SELECT %s FROM skillrun.executions
			WHERE schedule_id = $1 AND status = $2
			ORDER BY created_at ASC
			LIMIT $3
		`, executionColumns), scheduleID, model.StatusPending, limit)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve pending executions", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectExecutions(rows)
}

func collectExecutions(rows *sql.Rows) ([]model.Execution, error) {
	executions := []model.Execution{}
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan execution", err)
		}
		executions = append(executions, *execution)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating executions", err)
	}
	return executions, nil
}

// CountRunningExecutions counts committed running rows for one schedule.
// Admission control reads this instead of any in-memory counter so the cap
// holds across processes.
func (d Datasource) CountRunningExecutions(ctx context.Context, scheduleID string) (int64, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM skillrun.executions WHERE schedule_id = $1 AND status = $2
	`, scheduleID, model.StatusRunning).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count running executions", err)
	}
	return count, nil
}

func (d Datasource) CountRunning(ctx context.Context) (int64, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM skillrun.executions WHERE status = $1
	`, model.StatusRunning).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count running executions", err)
	}
	return count, nil
}

// MarkExecutionRunning performs the pending-to-running transition. A false
// return means the record left pending in the meantime.
func (d Datasource) MarkExecutionRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	return d.transitionExecution(ctx, `
		UPDATE skillrun.executions
		SET status = $2, started_at = $3
		WHERE execution_id = $1 AND status = $4
	`, id, model.StatusRunning, startedAt, model.StatusPending)
}

// MarkExecutionCompleted performs the running-to-completed transition and
// records the output metrics. Losing the conditional update means a cancel
// won the race; the caller must refund any debit it already applied.
func (d Datasource) MarkExecutionCompleted(ctx context.Context, execution *model.Execution) (bool, error) {
	outputJSON, err := json.Marshal(execution.Output)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal output", err)
	}

	var errorMessage interface{}
	if execution.ErrorMessage != "" {
		errorMessage = execution.ErrorMessage
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE skillrun.executions
		SET status = $2, output = $3, tokens_used = $4, cost_credits = $5, credit_flagged = $6, error_message = $7, completed_at = $8
		WHERE execution_id = $1 AND status = $9
	`, execution.ExecutionID, model.StatusCompleted, outputJSON, execution.TokensUsed, execution.CostCredits, execution.CreditFlagged, errorMessage, time.Now(), model.StatusRunning)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to complete execution", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected == 1, nil
}

// MarkExecutionFailed settles a record as failed. Running work fails on an
// adapter error or a dead worker; pending work fails when the account cannot
// cover a fixed skill price before the run starts.
func (d Datasource) MarkExecutionFailed(ctx context.Context, id string, errorMessage string, completedAt time.Time) (bool, error) {
	return d.transitionExecution(ctx, `
		UPDATE skillrun.executions
		SET status = $2, error_message = $3, completed_at = $4
		WHERE execution_id = $1 AND status IN ($5, $6)
	`, id, model.StatusFailed, errorMessage, completedAt, model.StatusRunning, model.StatusPending)
}

func (d Datasource) MarkExecutionCancelled(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	return d.transitionExecution(ctx, `
		UPDATE skillrun.executions
		SET status = $2, completed_at = $3
		WHERE execution_id = $1 AND status = $4
	`, id, model.StatusCancelled, completedAt, model.StatusRunning)
}

func (d Datasource) transitionExecution(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to transition execution", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected == 1, nil
}

// GetStuckExecutions returns running executions whose worker went quiet before
// the cutoff. The caller fails each one individually so it can also settle any
// debit the dead worker left behind.
func (d Datasource) GetStuckExecutions(ctx context.Context, olderThan time.Time) ([]model.Execution, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM skillrun.executions
		WHERE status = $1 AND started_at < $2
		ORDER BY started_at ASC
	`, executionColumns), model.StatusRunning, olderThan)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stuck executions", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectExecutions(rows)
}

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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/listinglens/skillrun/model"
)

func TestCreateExecution_ForcesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	execution := model.Execution{
		AgentSlug:     "listing-photo-qa",
		AccountID:     "acc_1",
		Status:        model.StatusRunning, // must be overridden
		TriggerSource: model.TriggerSourceManual,
		Input:         map[string]interface{}{"listing_id": "lst_42"},
		TriggeredBy:   "usr_ops",
	}

	mock.ExpectExec("INSERT INTO skillrun.executions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateExecution(context.Background(), execution)
	assert.NoError(t, err)
	assert.Contains(t, created.ExecutionID, "exe_")
	assert.Equal(t, model.StatusPending, created.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkExecutionRunning(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	startedAt := time.Now()

	mock.ExpectExec("UPDATE skillrun.executions").
		WithArgs("exe_1", model.StatusRunning, startedAt, model.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ds.MarkExecutionRunning(context.Background(), "exe_1", startedAt)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestMarkExecutionRunning_NotPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	startedAt := time.Now()

	mock.ExpectExec("UPDATE skillrun.executions").
		WithArgs("exe_1", model.StatusRunning, startedAt, model.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := ds.MarkExecutionRunning(context.Background(), "exe_1", startedAt)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkExecutionCompleted_CancelWonRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	execution := &model.Execution{
		ExecutionID: "exe_1",
		Output:      map[string]interface{}{"report_url": "https://cdn.test/report.pdf"},
		TokensUsed:  4200,
		CostCredits: 5,
	}

	// The record was cancelled while the worker was finishing; the conditional
	// update misses and the caller must refund its debit.
	mock.ExpectExec("UPDATE skillrun.executions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := ds.MarkExecutionCompleted(context.Background(), execution)
	assert.NoError(t, err)
	assert.False(t, won)
}

func TestMarkExecutionCancelled(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	completedAt := time.Now()

	mock.ExpectExec("UPDATE skillrun.executions").
		WithArgs("exe_1", model.StatusCancelled, completedAt, model.StatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ds.MarkExecutionCancelled(context.Background(), "exe_1", completedAt)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestCountRunningExecutions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("sch_1", model.StatusRunning).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	count, err := ds.CountRunningExecutions(context.Background(), "sch_1")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMarkExecutionFailedFromPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	completedAt := time.Now()

	mock.ExpectExec("UPDATE skillrun.executions").
		WithArgs("exe_1", model.StatusFailed, "insufficient credits: required 75, available 50", completedAt, model.StatusRunning, model.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ds.MarkExecutionFailed(context.Background(), "exe_1", "insufficient credits: required 75, available 50", completedAt)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestGetStuckExecutions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	cutoff := time.Now().Add(-30 * time.Minute)
	started := cutoff.Add(-time.Hour)

	rows := sqlmock.NewRows([]string{"execution_id", "agent_slug", "schedule_id", "account_id", "status", "trigger_source", "input", "output", "tokens_used", "cost_credits", "error_message", "credit_flagged", "retry_of", "triggered_by", "created_at", "started_at", "completed_at"}).
		AddRow("exe_1", "listing-photo-qa", "sch_1", "acc_1", model.StatusRunning, model.TriggerSourceSchedule,
			[]byte(`{}`), []byte(`{}`), int64(0), int64(25), nil, false, nil, nil, time.Now(), started, nil)

	mock.ExpectQuery("SELECT (.+) FROM skillrun.executions").
		WithArgs(model.StatusRunning, cutoff).
		WillReturnRows(rows)

	stuck, err := ds.GetStuckExecutions(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Len(t, stuck, 1)
	assert.Equal(t, "exe_1", stuck[0].ExecutionID)
	assert.Equal(t, int64(25), stuck[0].CostCredits)
}

func TestGetPendingExecutionsWithoutSchedule(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	rows := sqlmock.NewRows([]string{"execution_id", "agent_slug", "schedule_id", "account_id", "status", "trigger_source", "input", "output", "tokens_used", "cost_credits", "error_message", "credit_flagged", "retry_of", "triggered_by", "created_at", "started_at", "completed_at"}).
		AddRow("exe_1", "market-report", nil, "acc_1", model.StatusPending, model.TriggerSourceManual,
			[]byte(`{}`), []byte(`{}`), int64(0), int64(0), nil, false, nil, nil, time.Now(), nil, nil)

	mock.ExpectQuery("SELECT (.+) FROM skillrun.executions").
		WithArgs(model.StatusPending, 5).
		WillReturnRows(rows)

	pending, err := ds.GetPendingExecutions(context.Background(), "", 5)
	assert.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, "", pending[0].ScheduleID)
}

func TestGetExecutionByID_RoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()
	started := now.Add(-time.Minute)

	rows := sqlmock.NewRows([]string{"execution_id", "agent_slug", "schedule_id", "account_id", "status", "trigger_source", "input", "output", "tokens_used", "cost_credits", "error_message", "credit_flagged", "retry_of", "triggered_by", "created_at", "started_at", "completed_at"}).
		AddRow("exe_1", "listing-photo-qa", "sch_1", "acc_1", model.StatusRunning, model.TriggerSourceSchedule,
			[]byte(`{"listing_id":"lst_42"}`), []byte(`{}`), int64(0), int64(0), nil, false, nil, nil, now, started, nil)

	mock.ExpectQuery("SELECT (.+) FROM skillrun.executions").
		WithArgs("exe_1").
		WillReturnRows(rows)

	execution, err := ds.GetExecutionByID(context.Background(), "exe_1")
	assert.NoError(t, err)
	assert.Equal(t, "exe_1", execution.ExecutionID)
	assert.Equal(t, "sch_1", execution.ScheduleID)
	assert.Equal(t, model.StatusRunning, execution.Status)
	assert.Equal(t, "lst_42", execution.Input["listing_id"])
	assert.NotNil(t, execution.StartedAt)
	assert.Nil(t, execution.CompletedAt)
}

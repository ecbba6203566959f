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
	"time"

	"github.com/listinglens/skillrun/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	account
	transaction
	schedule
	execution
}

// account defines methods for handling accounts.
type account interface {
	CreateAccount(account model.Account) (model.Account, error)
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	// GetAccountForUpdate bypasses the read-through cache; the ledger's
	// optimistic retry loop depends on reading the committed version.
	GetAccountForUpdate(ctx context.Context, id string) (*model.Account, error)
	GetAllAccounts(limit, offset int) ([]model.Account, error)
	// ApplyTransaction moves the account balance by txn.Amount and appends the
	// ledger entry in one database transaction. The update is conditional on
	// account.Version; zero rows affected surfaces as a CONFLICT for the
	// caller's retry loop. The balance can never go below zero.
	ApplyTransaction(ctx context.Context, account *model.Account, txn *model.CreditTransaction) error
}

// transaction defines methods for reading the append-only credit ledger log.
type transaction interface {
	GetTransaction(ctx context.Context, id string) (*model.CreditTransaction, error)
	GetTransactionByRef(ctx context.Context, reference string) (*model.CreditTransaction, error)
	TransactionExistsByRef(ctx context.Context, reference string) (bool, error)
	GetTransactionsByAccount(ctx context.Context, accountID string, limit, offset int) ([]model.CreditTransaction, error)
	SumTransactionsByAccount(ctx context.Context, accountID string) (int64, error)
}

// schedule defines methods for handling recurring trigger configurations.
type schedule interface {
	CreateSchedule(schedule model.Schedule) (model.Schedule, error)
	GetScheduleByID(id string) (*model.Schedule, error)
	GetAllSchedules(limit, offset int) ([]model.Schedule, error)
	GetDueSchedules(ctx context.Context, now time.Time) ([]model.Schedule, error)
	GetSchedulesWithPendingWork(ctx context.Context) ([]model.Schedule, error)
	GetSchedulesByEventTrigger(ctx context.Context, trigger string) ([]model.Schedule, error)
	// ClaimDueSchedule advances next_run_at in a single conditional update.
	// It reports false when another tick already claimed this due instant.
	ClaimDueSchedule(ctx context.Context, scheduleID string, due time.Time, next *time.Time, now time.Time) (bool, error)
	DeactivateSchedule(ctx context.Context, id string) error
}

// execution defines methods for handling execution records and their
// conditional state transitions. Each MarkExecution* method reports whether
// the transition won; a false return means the record was no longer in the
// required source state.
type execution interface {
	CreateExecution(ctx context.Context, execution model.Execution) (model.Execution, error)
	GetExecutionByID(ctx context.Context, id string) (*model.Execution, error)
	GetAllExecutions(ctx context.Context, limit, offset int) ([]model.Execution, error)
	GetPendingExecutions(ctx context.Context, scheduleID string, limit int) ([]model.Execution, error)
	CountRunningExecutions(ctx context.Context, scheduleID string) (int64, error)
	CountRunning(ctx context.Context) (int64, error)
	MarkExecutionRunning(ctx context.Context, id string, startedAt time.Time) (bool, error)
	MarkExecutionCompleted(ctx context.Context, execution *model.Execution) (bool, error)
	MarkExecutionFailed(ctx context.Context, id string, errorMessage string, completedAt time.Time) (bool, error)
	MarkExecutionCancelled(ctx context.Context, id string, completedAt time.Time) (bool, error)
	GetStuckExecutions(ctx context.Context, olderThan time.Time) ([]model.Execution, error)
}

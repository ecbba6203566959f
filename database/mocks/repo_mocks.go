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
package mocks

import (
	"context"
	"time"

	"github.com/listinglens/skillrun/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Account methods

func (m *MockDataSource) CreateAccount(account model.Account) (model.Account, error) {
	args := m.Called(account)
	return args.Get(0).(model.Account), args.Error(1)
}

func (m *MockDataSource) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockDataSource) GetAccountForUpdate(ctx context.Context, id string) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockDataSource) GetAllAccounts(limit, offset int) ([]model.Account, error) {
	args := m.Called(limit, offset)
	return args.Get(0).([]model.Account), args.Error(1)
}

func (m *MockDataSource) ApplyTransaction(ctx context.Context, account *model.Account, txn *model.CreditTransaction) error {
	args := m.Called(ctx, account, txn)
	return args.Error(0)
}

// Transaction methods

func (m *MockDataSource) GetTransaction(ctx context.Context, id string) (*model.CreditTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CreditTransaction), args.Error(1)
}

func (m *MockDataSource) GetTransactionByRef(ctx context.Context, reference string) (*model.CreditTransaction, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CreditTransaction), args.Error(1)
}

func (m *MockDataSource) TransactionExistsByRef(ctx context.Context, reference string) (bool, error) {
	args := m.Called(ctx, reference)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetTransactionsByAccount(ctx context.Context, accountID string, limit, offset int) ([]model.CreditTransaction, error) {
	args := m.Called(ctx, accountID, limit, offset)
	return args.Get(0).([]model.CreditTransaction), args.Error(1)
}

func (m *MockDataSource) SumTransactionsByAccount(ctx context.Context, accountID string) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

// Schedule methods

func (m *MockDataSource) CreateSchedule(schedule model.Schedule) (model.Schedule, error) {
	args := m.Called(schedule)
	return args.Get(0).(model.Schedule), args.Error(1)
}

func (m *MockDataSource) GetScheduleByID(id string) (*model.Schedule, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Schedule), args.Error(1)
}

func (m *MockDataSource) GetAllSchedules(limit, offset int) ([]model.Schedule, error) {
	args := m.Called(limit, offset)
	return args.Get(0).([]model.Schedule), args.Error(1)
}

func (m *MockDataSource) GetDueSchedules(ctx context.Context, now time.Time) ([]model.Schedule, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]model.Schedule), args.Error(1)
}

func (m *MockDataSource) GetSchedulesWithPendingWork(ctx context.Context) ([]model.Schedule, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Schedule), args.Error(1)
}

func (m *MockDataSource) GetSchedulesByEventTrigger(ctx context.Context, trigger string) ([]model.Schedule, error) {
	args := m.Called(ctx, trigger)
	return args.Get(0).([]model.Schedule), args.Error(1)
}

func (m *MockDataSource) ClaimDueSchedule(ctx context.Context, scheduleID string, due time.Time, next *time.Time, now time.Time) (bool, error) {
	args := m.Called(ctx, scheduleID, due, next, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) DeactivateSchedule(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Execution methods

func (m *MockDataSource) CreateExecution(ctx context.Context, execution model.Execution) (model.Execution, error) {
	args := m.Called(ctx, execution)
	return args.Get(0).(model.Execution), args.Error(1)
}

func (m *MockDataSource) GetExecutionByID(ctx context.Context, id string) (*model.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Execution), args.Error(1)
}

func (m *MockDataSource) GetAllExecutions(ctx context.Context, limit, offset int) ([]model.Execution, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Execution), args.Error(1)
}

func (m *MockDataSource) GetPendingExecutions(ctx context.Context, scheduleID string, limit int) ([]model.Execution, error) {
	args := m.Called(ctx, scheduleID, limit)
	return args.Get(0).([]model.Execution), args.Error(1)
}

func (m *MockDataSource) CountRunningExecutions(ctx context.Context, scheduleID string) (int64, error) {
	args := m.Called(ctx, scheduleID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) CountRunning(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) MarkExecutionRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, startedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) MarkExecutionCompleted(ctx context.Context, execution *model.Execution) (bool, error) {
	args := m.Called(ctx, execution)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) MarkExecutionFailed(ctx context.Context, id string, errorMessage string, completedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, errorMessage, completedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) MarkExecutionCancelled(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, completedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetStuckExecutions(ctx context.Context, olderThan time.Time) ([]model.Execution, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).([]model.Execution), args.Error(1)
}

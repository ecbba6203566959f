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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/listinglens/skillrun/internal/apierror"
	"github.com/listinglens/skillrun/model"
)

func TestProcessExecutionDebitsAndCompletes(t *testing.T) {
	s, mockDS := newTestSkillrun(t)
	invoker := &stubInvoker{result: &InvokeResult{
		Output:      map[string]interface{}{"photos": 12},
		TokensUsed:  0,
		CostCredits: 10,
	}}
	s.WithInvoker(invoker)

	execution := &model.Execution{
		ExecutionID:   "exe_1",
		AgentSlug:     "listing-photos",
		AccountID:     "acc_1",
		Status:        model.StatusPending,
		TriggerSource: model.TriggerSourceManual,
	}
	account := &model.Account{AccountID: "acc_1", CreditBalance: 100, Version: 0}

	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(execution, nil)
	mockDS.On("CountRunning", mock.Anything).Return(int64(0), nil)
	mockDS.On("MarkExecutionRunning", mock.Anything, "exe_1", mock.Anything).Return(true, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_1").Return(false, nil)
	mockDS.On("GetAccountForUpdate", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("ApplyTransaction", mock.Anything, mock.Anything, mock.Anything).
		Run(applyTransactionMutation).Return(nil)
	mockDS.On("MarkExecutionCompleted", mock.Anything, mock.Anything).Return(true, nil)

	err := s.ProcessExecution(context.Background(), "exe_1")

	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, execution.Status)
	assert.Equal(t, int64(10), execution.CostCredits)
	assert.Equal(t, int64(90), account.CreditBalance)
	assert.Equal(t, 1, invoker.invocations)
	mockDS.AssertExpectations(t)
}

func TestProcessExecutionFailureNeverDebits(t *testing.T) {
	s, mockDS := newTestSkillrun(t)
	invoker := &stubInvoker{err: errors.New("runtime exploded")}
	s.WithInvoker(invoker)

	execution := &model.Execution{
		ExecutionID:   "exe_1",
		AgentSlug:     "listing-photos",
		AccountID:     "acc_1",
		Status:        model.StatusPending,
		TriggerSource: model.TriggerSourceManual,
	}

	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(execution, nil)
	mockDS.On("CountRunning", mock.Anything).Return(int64(0), nil)
	mockDS.On("MarkExecutionRunning", mock.Anything, "exe_1", mock.Anything).Return(true, nil)
	mockDS.On("MarkExecutionFailed", mock.Anything, "exe_1", "runtime exploded", mock.Anything).Return(true, nil)
	// no prepay happened, so there is no debit to give back
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_1").Return(false, nil)

	err := s.ProcessExecution(context.Background(), "exe_1")

	assert.NoError(t, err)
	assert.Equal(t, model.StatusFailed, execution.Status)
	assert.Equal(t, "runtime exploded", execution.ErrorMessage)
	mockDS.AssertNotCalled(t, "ApplyTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessExecutionFlagsUnpaidUsage(t *testing.T) {
	s, mockDS := newTestSkillrun(t)
	// usage-priced: 5000 tokens at the default 1 credit per 1k tokens = 5
	invoker := &stubInvoker{result: &InvokeResult{
		Output:     map[string]interface{}{"summary": "done"},
		TokensUsed: 5000,
	}}
	s.WithInvoker(invoker)

	execution := &model.Execution{
		ExecutionID:   "exe_1",
		AgentSlug:     "market-report",
		AccountID:     "acc_1",
		Status:        model.StatusPending,
		TriggerSource: model.TriggerSourceManual,
	}
	account := &model.Account{AccountID: "acc_1", CreditBalance: 2, Version: 0}

	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(execution, nil)
	mockDS.On("CountRunning", mock.Anything).Return(int64(0), nil)
	mockDS.On("MarkExecutionRunning", mock.Anything, "exe_1", mock.Anything).Return(true, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_1").Return(false, nil)
	mockDS.On("GetAccountForUpdate", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("MarkExecutionCompleted", mock.Anything, mock.Anything).Return(true, nil)

	err := s.ProcessExecution(context.Background(), "exe_1")

	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, execution.Status)
	assert.True(t, execution.CreditFlagged)
	assert.Equal(t, int64(5), execution.CostCredits)
	// the work already happened: keep the output, write no ledger entry
	assert.Equal(t, map[string]interface{}{"summary": "done"}, execution.Output)
	assert.Equal(t, int64(2), account.CreditBalance)
	mockDS.AssertNotCalled(t, "ApplyTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessExecutionRefundsWhenCancelWinsRace(t *testing.T) {
	s, mockDS := newTestSkillrun(t)
	invoker := &stubInvoker{result: &InvokeResult{CostCredits: 10}}
	s.WithInvoker(invoker)

	execution := &model.Execution{
		ExecutionID:   "exe_1",
		AgentSlug:     "listing-photos",
		AccountID:     "acc_1",
		Status:        model.StatusPending,
		TriggerSource: model.TriggerSourceManual,
	}
	account := &model.Account{AccountID: "acc_1", CreditBalance: 100, Version: 0}

	var refund *model.CreditTransaction
	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(execution, nil)
	mockDS.On("CountRunning", mock.Anything).Return(int64(0), nil)
	mockDS.On("MarkExecutionRunning", mock.Anything, "exe_1", mock.Anything).Return(true, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_1").Return(false, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "refund:exe_1").Return(false, nil)
	mockDS.On("GetAccountForUpdate", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("ApplyTransaction", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			applyTransactionMutation(args)
			txn := args.Get(2).(*model.CreditTransaction)
			if txn.Type == model.TransactionTypeRefund {
				refund = txn
			}
		}).Return(nil)
	// a cancel landed between the debit and the completion update
	mockDS.On("MarkExecutionCompleted", mock.Anything, mock.Anything).Return(false, nil)

	err := s.ProcessExecution(context.Background(), "exe_1")

	assert.NoError(t, err)
	assert.NotNil(t, refund)
	assert.Equal(t, int64(10), refund.Amount)
	assert.Equal(t, "refund:exe_1", refund.Reference)
	assert.Equal(t, int64(100), account.CreditBalance)
}

func TestProcessExecutionDefersAtScheduleCapacity(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	execution := &model.Execution{
		ExecutionID:   "exe_1",
		AgentSlug:     "listing-photos",
		ScheduleID:    "sch_1",
		AccountID:     "acc_1",
		Status:        model.StatusPending,
		TriggerSource: model.TriggerSourceSchedule,
	}
	schedule := &model.Schedule{ScheduleID: "sch_1", MaxConcurrent: 1}

	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(execution, nil)
	mockDS.On("GetScheduleByID", "sch_1").Return(schedule, nil)
	mockDS.On("CountRunningExecutions", mock.Anything, "sch_1").Return(int64(1), nil)

	err := s.ProcessExecution(context.Background(), "exe_1")

	// deferred, not failed: the record stays pending for the next tick
	assert.NoError(t, err)
	assert.Equal(t, model.StatusPending, execution.Status)
	mockDS.AssertNotCalled(t, "MarkExecutionRunning", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessExecutionSkipsTerminalRecord(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	execution := &model.Execution{ExecutionID: "exe_1", Status: model.StatusCancelled}
	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(execution, nil)

	err := s.ProcessExecution(context.Background(), "exe_1")

	assert.NoError(t, err)
	mockDS.AssertNotCalled(t, "MarkExecutionRunning", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteSkillAtCapacity(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	account := &model.Account{AccountID: "acc_1", CreditBalance: 100}
	created := model.Execution{
		ExecutionID:   "exe_1",
		AgentSlug:     "listing-photos",
		AccountID:     "acc_1",
		Status:        model.StatusPending,
		TriggerSource: model.TriggerSourceManual,
	}

	mockDS.On("GetAccountByID", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("CreateExecution", mock.Anything, mock.Anything).Return(created, nil)
	// the default engine cap is 10
	mockDS.On("CountRunning", mock.Anything).Return(int64(10), nil)

	_, err := s.ExecuteSkill(context.Background(), "listing-photos", "acc_1", nil, "ops@listinglens.com")

	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestExecuteSkillRejectsUnaffordableFixedPrice(t *testing.T) {
	s, mockDS := newTestSkillrunPriced(t, map[string]int64{"listing-photos": 75})
	invoker := &stubInvoker{result: &InvokeResult{CostCredits: 75}}
	s.WithInvoker(invoker)

	account := &model.Account{AccountID: "acc_1", CreditBalance: 50, Version: 0}
	created := model.Execution{
		ExecutionID:   "exe_1",
		AgentSlug:     "listing-photos",
		AccountID:     "acc_1",
		Status:        model.StatusPending,
		TriggerSource: model.TriggerSourceManual,
	}

	mockDS.On("GetAccountByID", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("CreateExecution", mock.Anything, mock.Anything).Return(created, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_1").Return(false, nil)
	mockDS.On("GetAccountForUpdate", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("MarkExecutionFailed", mock.Anything, "exe_1", mock.Anything, mock.Anything).Return(true, nil)

	_, err := s.ExecuteSkill(context.Background(), "listing-photos", "acc_1", nil, "ops@listinglens.com")

	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInsufficientCredits, apiErr.Code)
	// the skill never ran and the record never reached running
	assert.Equal(t, 0, invoker.invocations)
	mockDS.AssertNotCalled(t, "MarkExecutionRunning", mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertNotCalled(t, "ApplyTransaction", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, int64(50), account.CreditBalance)
}

func TestProcessExecutionRejectsUnaffordableFixedPrice(t *testing.T) {
	s, mockDS := newTestSkillrunPriced(t, map[string]int64{"listing-photos": 75})
	invoker := &stubInvoker{}
	s.WithInvoker(invoker)

	execution := &model.Execution{
		ExecutionID:   "exe_1",
		AgentSlug:     "listing-photos",
		AccountID:     "acc_1",
		Status:        model.StatusPending,
		TriggerSource: model.TriggerSourceManual,
	}
	account := &model.Account{AccountID: "acc_1", CreditBalance: 50, Version: 0}

	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(execution, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_1").Return(false, nil)
	mockDS.On("GetAccountForUpdate", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("MarkExecutionFailed", mock.Anything, "exe_1", mock.Anything, mock.Anything).Return(true, nil)

	err := s.ProcessExecution(context.Background(), "exe_1")

	// settled as failed; the task is done, not retried
	assert.NoError(t, err)
	assert.Equal(t, model.StatusFailed, execution.Status)
	assert.Equal(t, 0, invoker.invocations)
	mockDS.AssertNotCalled(t, "MarkExecutionRunning", mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertNotCalled(t, "ApplyTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessExecutionPrepaysFixedPriceOnce(t *testing.T) {
	s, mockDS := newTestSkillrunPriced(t, map[string]int64{"listing-photos": 25})
	invoker := &stubInvoker{result: &InvokeResult{Output: map[string]interface{}{"photos": 3}}}
	s.WithInvoker(invoker)

	execution := &model.Execution{
		ExecutionID:   "exe_1",
		AgentSlug:     "listing-photos",
		AccountID:     "acc_1",
		Status:        model.StatusPending,
		TriggerSource: model.TriggerSourceManual,
	}
	account := &model.Account{AccountID: "acc_1", CreditBalance: 100, Version: 0}
	prepaid := &model.CreditTransaction{
		TransactionID: "txn_1",
		AccountID:     "acc_1",
		Amount:        -25,
		Type:          model.TransactionTypeRedemption,
		Reference:     "exec:exe_1",
	}

	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(execution, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_1").Return(false, nil).Once()
	mockDS.On("GetAccountForUpdate", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("ApplyTransaction", mock.Anything, mock.Anything, mock.Anything).
		Run(applyTransactionMutation).Return(nil)
	mockDS.On("CountRunning", mock.Anything).Return(int64(0), nil)
	mockDS.On("MarkExecutionRunning", mock.Anything, "exe_1", mock.Anything).Return(true, nil)
	// settlement replays the prepay reference instead of charging again
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_1").Return(true, nil)
	mockDS.On("GetTransactionByRef", mock.Anything, "exec:exe_1").Return(prepaid, nil)
	mockDS.On("MarkExecutionCompleted", mock.Anything, mock.Anything).Return(true, nil)

	err := s.ProcessExecution(context.Background(), "exe_1")

	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, execution.Status)
	assert.Equal(t, int64(25), execution.CostCredits)
	assert.Equal(t, 1, invoker.invocations)
	assert.Equal(t, int64(75), account.CreditBalance)
	mockDS.AssertNumberOfCalls(t, "ApplyTransaction", 1)
}

func TestFailedPrepaidRunIsRefunded(t *testing.T) {
	s, mockDS := newTestSkillrunPriced(t, map[string]int64{"listing-photos": 25})
	invoker := &stubInvoker{err: errors.New("runtime exploded")}
	s.WithInvoker(invoker)

	execution := &model.Execution{
		ExecutionID:   "exe_1",
		AgentSlug:     "listing-photos",
		AccountID:     "acc_1",
		Status:        model.StatusPending,
		TriggerSource: model.TriggerSourceManual,
	}
	account := &model.Account{AccountID: "acc_1", CreditBalance: 100, Version: 0}

	var refund *model.CreditTransaction
	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(execution, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_1").Return(false, nil).Once()
	mockDS.On("GetAccountForUpdate", mock.Anything, "acc_1").Return(account, nil)
	var debited *model.CreditTransaction
	mockDS.On("ApplyTransaction", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			applyTransactionMutation(args)
			txn := args.Get(2).(*model.CreditTransaction)
			switch txn.Type {
			case model.TransactionTypeRedemption:
				debited = txn
			case model.TransactionTypeRefund:
				refund = txn
			}
		}).Return(nil)
	mockDS.On("CountRunning", mock.Anything).Return(int64(0), nil)
	mockDS.On("MarkExecutionRunning", mock.Anything, "exe_1", mock.Anything).Return(true, nil)
	mockDS.On("MarkExecutionFailed", mock.Anything, "exe_1", "runtime exploded", mock.Anything).Return(true, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_1").Return(true, nil)
	mockDS.On("GetTransactionByRef", mock.Anything, "exec:exe_1").
		Return(&model.CreditTransaction{TransactionID: "txn_1", AccountID: "acc_1", Amount: -25, Type: model.TransactionTypeRedemption, Reference: "exec:exe_1"}, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "refund:exe_1").Return(false, nil)

	err := s.ProcessExecution(context.Background(), "exe_1")

	assert.NoError(t, err)
	assert.Equal(t, model.StatusFailed, execution.Status)
	assert.NotNil(t, debited)
	assert.NotNil(t, refund)
	assert.Equal(t, int64(25), refund.Amount)
	assert.Equal(t, "refund:exe_1", refund.Reference)
	// failed work is never charged: the prepay came back in full
	assert.Equal(t, int64(100), account.CreditBalance)
}

func TestCancelExecution(t *testing.T) {
	s, mockDS := newTestSkillrun(t)
	invoker := &stubInvoker{}
	s.WithInvoker(invoker)

	startedAt := time.Now()
	running := &model.Execution{ExecutionID: "exe_1", AccountID: "acc_1", Status: model.StatusRunning, StartedAt: &startedAt}
	cancelled := &model.Execution{ExecutionID: "exe_1", AccountID: "acc_1", Status: model.StatusCancelled}

	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(running, nil).Once()
	mockDS.On("MarkExecutionCancelled", mock.Anything, "exe_1", mock.Anything).Return(true, nil)
	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(cancelled, nil).Once()

	result, err := s.CancelExecution(context.Background(), "exe_1")

	assert.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, result.Status)
	assert.Equal(t, []string{"exe_1"}, invoker.cancelled)
}

func TestCancelExecutionRejectsTerminalState(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	completed := &model.Execution{ExecutionID: "exe_1", Status: model.StatusCompleted}
	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(completed, nil)

	_, err := s.CancelExecution(context.Background(), "exe_1")

	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidState, apiErr.Code)
	mockDS.AssertNotCalled(t, "MarkExecutionCancelled", mock.Anything, mock.Anything, mock.Anything)
}

func TestRetryExecution(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	failed := &model.Execution{
		ExecutionID:   "exe_1",
		AgentSlug:     "listing-photos",
		AccountID:     "acc_1",
		Status:        model.StatusFailed,
		TriggerSource: model.TriggerSourceManual,
		Input:         map[string]interface{}{"listing_id": "lst_9"},
	}
	account := &model.Account{AccountID: "acc_1"}

	var submitted model.Execution
	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(failed, nil)
	mockDS.On("GetAccountByID", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("CreateExecution", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			submitted = args.Get(1).(model.Execution)
		}).
		Return(model.Execution{ExecutionID: "exe_2", AgentSlug: "listing-photos", AccountID: "acc_1", Status: model.StatusPending, TriggerSource: model.TriggerSourceManual}, nil)

	retried, err := s.RetryExecution(context.Background(), "exe_1", "ops@listinglens.com")

	assert.NoError(t, err)
	assert.Equal(t, "exe_2", retried.ExecutionID)
	assert.Equal(t, "exe_1", submitted.RetryOf)
	assert.Equal(t, failed.Input, submitted.Input)
	assert.Equal(t, model.TriggerSourceManual, submitted.TriggerSource)
}

func TestRetryExecutionOnlyFromFailed(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	completed := &model.Execution{ExecutionID: "exe_1", Status: model.StatusCompleted}
	mockDS.On("GetExecutionByID", mock.Anything, "exe_1").Return(completed, nil)

	_, err := s.RetryExecution(context.Background(), "exe_1", "")

	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidState, apiErr.Code)
	mockDS.AssertNotCalled(t, "CreateExecution", mock.Anything, mock.Anything)
}

func TestRecoverStuckExecutions(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	started := time.Now().Add(-2 * time.Hour)
	stuck := []model.Execution{
		{ExecutionID: "exe_1", AccountID: "acc_1", Status: model.StatusRunning, StartedAt: &started},
		{ExecutionID: "exe_2", AccountID: "acc_1", Status: model.StatusRunning, StartedAt: &started},
	}

	mockDS.On("GetStuckExecutions", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		return cutoff.Before(time.Now())
	})).Return(stuck, nil)
	mockDS.On("MarkExecutionFailed", mock.Anything, "exe_1", mock.Anything, mock.Anything).Return(true, nil)
	mockDS.On("MarkExecutionFailed", mock.Anything, "exe_2", mock.Anything, mock.Anything).Return(true, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_1").Return(false, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_2").Return(false, nil)

	recovered, err := s.RecoverStuckExecutions(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, int64(2), recovered)
	mockDS.AssertNotCalled(t, "ApplyTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecoverStuckRefundsCommittedDebit(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	started := time.Now().Add(-2 * time.Hour)
	stuck := []model.Execution{
		{ExecutionID: "exe_1", AccountID: "acc_1", Status: model.StatusRunning, StartedAt: &started},
	}
	debit := &model.CreditTransaction{
		TransactionID: "txn_1",
		AccountID:     "acc_1",
		Amount:        -25,
		Type:          model.TransactionTypeRedemption,
		Reference:     "exec:exe_1",
	}
	account := &model.Account{AccountID: "acc_1", CreditBalance: 0, Version: 4}

	var refund *model.CreditTransaction
	mockDS.On("GetStuckExecutions", mock.Anything, mock.Anything).Return(stuck, nil)
	mockDS.On("MarkExecutionFailed", mock.Anything, "exe_1", mock.Anything, mock.Anything).Return(true, nil)
	// the dead worker committed its debit before going silent
	mockDS.On("TransactionExistsByRef", mock.Anything, "exec:exe_1").Return(true, nil)
	mockDS.On("GetTransactionByRef", mock.Anything, "exec:exe_1").Return(debit, nil)
	mockDS.On("TransactionExistsByRef", mock.Anything, "refund:exe_1").Return(false, nil)
	mockDS.On("GetAccountForUpdate", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("ApplyTransaction", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			applyTransactionMutation(args)
			refund = args.Get(2).(*model.CreditTransaction)
		}).Return(nil)

	recovered, err := s.RecoverStuckExecutions(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, int64(1), recovered)
	assert.NotNil(t, refund)
	assert.Equal(t, int64(25), refund.Amount)
	assert.Equal(t, model.TransactionTypeRefund, refund.Type)
	assert.Equal(t, "refund:exe_1", refund.Reference)
	assert.Equal(t, int64(25), account.CreditBalance)
}

func TestEnqueueExecutionValidatesInput(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	_, err := s.EnqueueExecution(context.Background(), model.Execution{
		AccountID:     "acc_1",
		TriggerSource: model.TriggerSourceManual,
	})
	assert.Error(t, err)

	_, err = s.EnqueueExecution(context.Background(), model.Execution{
		AgentSlug:     "listing-photos",
		AccountID:     "acc_1",
		TriggerSource: "webhook",
	})
	assert.Error(t, err)
	mockDS.AssertNotCalled(t, "CreateExecution", mock.Anything, mock.Anything)
}

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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/listinglens/skillrun/config"
	"github.com/listinglens/skillrun/internal/apierror"
	redlock "github.com/listinglens/skillrun/internal/lock"
	"github.com/listinglens/skillrun/internal/notification"
	"github.com/listinglens/skillrun/internal/search"
	"github.com/listinglens/skillrun/model"
)

// EnqueueExecution records a pending execution and hands it to the worker
// queue. This is the async path used by manual triggers, the dispatcher, and
// event delivery.
func (s *Skillrun) EnqueueExecution(ctx context.Context, execution model.Execution) (*model.Execution, error) {
	ctx, span := tracer.Start(ctx, "Enqueuing execution")
	defer span.End()

	if execution.AgentSlug == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Agent slug is required", nil)
	}
	if !model.ValidTriggerSource(execution.TriggerSource) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown trigger source '%s'", execution.TriggerSource), nil)
	}
	if _, err := s.datasource.GetAccountByID(ctx, execution.AccountID); err != nil {
		return nil, logAndRecordError(span, "fetch account error: ", err)
	}

	created, err := s.datasource.CreateExecution(ctx, execution)
	if err != nil {
		return nil, logAndRecordError(span, "create execution error: ", err)
	}

	if err := s.queue.Enqueue(ctx, &created); err != nil {
		return nil, logAndRecordError(span, "enqueue execution error: ", err)
	}

	s.indexExecution(&created)
	return &created, nil
}

// ProcessExecution is the worker entry point: admit the execution against its
// concurrency cap, then run it. A nil return with the record still pending
// means admission deferred it; the next dispatcher tick re-enqueues it.
func (s *Skillrun) ProcessExecution(ctx context.Context, executionID string) error {
	ctx, span := tracer.Start(ctx, "Processing execution")
	defer span.End()

	execution, err := s.datasource.GetExecutionByID(ctx, executionID)
	if err != nil {
		return logAndRecordError(span, "fetch execution error: ", err)
	}
	if execution.Status != model.StatusPending {
		// cancelled, already claimed by another worker, or replayed task
		logrus.Infof("execution %s is %s, nothing to process", executionID, execution.Status)
		return nil
	}

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}
	if cost := cnf.Engine.SkillCosts[execution.AgentSlug]; cost > 0 {
		if err := s.prepayExecution(ctx, execution, cost); err != nil {
			if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrInsufficientCredits {
				// recorded as failed; nothing left to retry
				return nil
			}
			return logAndRecordError(span, "prepay error: ", err)
		}
	}

	admitted, err := s.admitExecution(ctx, execution)
	if err != nil {
		return logAndRecordError(span, "admission error: ", err)
	}
	if !admitted {
		logrus.Infof("execution %s deferred: schedule at capacity", executionID)
		return nil
	}

	return s.runExecution(ctx, execution)
}

// admitExecution enforces per-schedule max_concurrent (global engine cap for
// unscheduled runs). The count reads committed running rows only, under a lock
// keyed on the schedule, so two workers cannot both admit into the last slot.
// Admission itself is the conditional pending-to-running update.
func (s *Skillrun) admitExecution(ctx context.Context, execution *model.Execution) (bool, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return false, err
	}

	lockKey := "engine:global"
	capacity := int64(cnf.Engine.MaxConcurrent)
	if execution.ScheduleID != "" {
		schedule, err := s.datasource.GetScheduleByID(execution.ScheduleID)
		if err != nil {
			return false, err
		}
		lockKey = fmt.Sprintf("sched:%s", execution.ScheduleID)
		capacity = int64(schedule.MaxConcurrent)
	}

	locker := redlock.NewLocker(s.redis, lockKey, model.GenerateUUIDWithSuffix("loc"))
	if err := locker.WaitLock(ctx, time.Minute, 30*time.Second); err != nil {
		return false, err
	}
	defer func(locker *redlock.Locker, ctx context.Context) {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error(err)
		}
	}(locker, ctx)

	var running int64
	if execution.ScheduleID != "" {
		running, err = s.datasource.CountRunningExecutions(ctx, execution.ScheduleID)
	} else {
		running, err = s.datasource.CountRunning(ctx)
	}
	if err != nil {
		return false, err
	}
	if running >= capacity {
		return false, nil
	}

	startedAt := time.Now()
	won, err := s.datasource.MarkExecutionRunning(ctx, execution.ExecutionID, startedAt)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}
	execution.Status = model.StatusRunning
	execution.StartedAt = &startedAt
	return true, nil
}

// runExecution invokes the skill and settles the record. Failures never keep a
// charge: a prepaid run that fails is refunded in failExecution. Successful
// runs debit before the running-to-completed flip; if cancellation won that
// race the debit is refunded so cancelled work is never charged.
func (s *Skillrun) runExecution(ctx context.Context, execution *model.Execution) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	result, err := s.invoker.Invoke(ctx, execution.AgentSlug, execution.Input)
	if err != nil {
		return s.failExecution(ctx, execution, err)
	}

	execution.Output = result.Output
	execution.TokensUsed = result.TokensUsed
	if execution.CostCredits == 0 {
		execution.CostCredits = resolveCost(result, cnf)
	}

	if execution.CostCredits > 0 {
		reference := executionReference(execution.ExecutionID)
		description := fmt.Sprintf("skill run %s (%s)", execution.ExecutionID, execution.AgentSlug)
		// A prepaid run replays its reference here; no second charge.
		_, err := s.Debit(ctx, execution.AccountID, execution.CostCredits, model.TransactionTypeRedemption, description, reference)
		if err != nil {
			if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrInsufficientCredits {
				if result.CostCredits == 0 && result.TokensUsed > 0 {
					// Usage-priced work already happened; keep the result,
					// flag the unpaid cost, write no ledger entry.
					execution.CreditFlagged = true
					execution.ErrorMessage = apiErr.Message
					s.notifyWebhook("credit.insufficient", execution)
					return s.completeExecution(ctx, execution)
				}
				// Fixed-price run lost a balance race after the work ran.
				execution.CostCredits = 0
				s.notifyWebhook("credit.insufficient", execution)
				if failErr := s.failExecution(ctx, execution, err); failErr != nil {
					return failErr
				}
				return err
			}
			return s.failExecution(ctx, execution, err)
		}
	}

	return s.completeExecution(ctx, execution)
}

func (s *Skillrun) completeExecution(ctx context.Context, execution *model.Execution) error {
	won, err := s.datasource.MarkExecutionCompleted(ctx, execution)
	if err != nil {
		return err
	}
	if !won {
		// A cancel landed while the skill was finishing. The record stays
		// cancelled; give back what we charged.
		if execution.CostCredits > 0 && !execution.CreditFlagged {
			description := fmt.Sprintf("refund for cancelled run %s", execution.ExecutionID)
			if _, refundErr := s.Credit(ctx, execution.AccountID, execution.CostCredits, model.TransactionTypeRefund, description, refundReference(execution.ExecutionID)); refundErr != nil {
				notification.NotifyError(refundErr)
				return refundErr
			}
		}
		logrus.Infof("execution %s was cancelled before completion; debit refunded", execution.ExecutionID)
		return nil
	}

	execution.Status = model.StatusCompleted
	s.notifyWebhook("execution.completed", execution)
	s.indexExecution(execution)
	return nil
}

func (s *Skillrun) failExecution(ctx context.Context, execution *model.Execution, cause error) error {
	execution.ErrorMessage = cause.Error()
	won, err := s.datasource.MarkExecutionFailed(ctx, execution.ExecutionID, execution.ErrorMessage, time.Now())
	if err != nil {
		return err
	}
	if !won {
		logrus.Infof("execution %s left running before failure could be recorded", execution.ExecutionID)
		return nil
	}

	execution.Status = model.StatusFailed
	s.refundExecutionDebit(ctx, execution)
	s.notifyWebhook("execution.failed", execution)
	s.indexExecution(execution)
	return nil
}

// refundExecutionDebit gives back whatever the run's own reference debited.
// Failed work is never charged; this covers a prepaid run whose invocation
// failed and a stuck run whose worker died between the debit and completion.
// Refund errors are reported, not returned: the failure record already stands.
func (s *Skillrun) refundExecutionDebit(ctx context.Context, execution *model.Execution) {
	reference := executionReference(execution.ExecutionID)
	exists, err := s.datasource.TransactionExistsByRef(ctx, reference)
	if err != nil {
		notification.NotifyError(err)
		return
	}
	if !exists {
		return
	}

	debit, err := s.datasource.GetTransactionByRef(ctx, reference)
	if err != nil {
		notification.NotifyError(err)
		return
	}
	amount := -debit.Amount // debits are stored negative
	if amount <= 0 {
		return
	}

	description := fmt.Sprintf("refund for failed run %s", execution.ExecutionID)
	if _, err := s.Credit(ctx, execution.AccountID, amount, model.TransactionTypeRefund, description, refundReference(execution.ExecutionID)); err != nil {
		notification.NotifyError(err)
	}
}

// prepayExecution debits a fixed skill price before the run is admitted. An
// account that cannot cover the price fails the execution straight from
// pending; the skill is never invoked and nothing reaches running. The debit
// uses the execution's own reference, so re-processing the same record replays
// it instead of charging twice.
func (s *Skillrun) prepayExecution(ctx context.Context, execution *model.Execution, cost int64) error {
	description := fmt.Sprintf("skill run %s (%s)", execution.ExecutionID, execution.AgentSlug)
	_, err := s.Debit(ctx, execution.AccountID, cost, model.TransactionTypeRedemption, description, executionReference(execution.ExecutionID))
	if err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrInsufficientCredits {
			if _, markErr := s.datasource.MarkExecutionFailed(ctx, execution.ExecutionID, apiErr.Message, time.Now()); markErr != nil {
				return markErr
			}
			execution.Status = model.StatusFailed
			execution.ErrorMessage = apiErr.Message
			s.notifyWebhook("credit.insufficient", execution)
			s.indexExecution(execution)
		}
		return err
	}
	execution.CostCredits = cost
	return nil
}

// ExecuteSkill runs a skill synchronously for a manual trigger and returns the
// settled execution record. It goes through the same prepay, admission and
// settlement path as queued work, against the global engine cap. A fixed-price
// skill the account cannot afford returns INSUFFICIENT_CREDITS without ever
// invoking the skill.
func (s *Skillrun) ExecuteSkill(ctx context.Context, agentSlug, accountID string, input map[string]interface{}, triggeredBy string) (*model.Execution, error) {
	ctx, span := tracer.Start(ctx, "Executing skill")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	if _, err := s.datasource.GetAccountByID(ctx, accountID); err != nil {
		return nil, logAndRecordError(span, "fetch account error: ", err)
	}

	execution, err := s.datasource.CreateExecution(ctx, model.Execution{
		AgentSlug:     agentSlug,
		AccountID:     accountID,
		TriggerSource: model.TriggerSourceManual,
		Input:         input,
		TriggeredBy:   triggeredBy,
	})
	if err != nil {
		return nil, logAndRecordError(span, "create execution error: ", err)
	}

	if cost := cnf.Engine.SkillCosts[agentSlug]; cost > 0 {
		if err := s.prepayExecution(ctx, &execution, cost); err != nil {
			return nil, logAndRecordError(span, "prepay error: ", err)
		}
	}

	admitted, err := s.admitExecution(ctx, &execution)
	if err != nil {
		return nil, logAndRecordError(span, "admission error: ", err)
	}
	if !admitted {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Engine is at capacity, try again shortly", nil)
	}

	if err := s.runExecution(ctx, &execution); err != nil {
		return nil, logAndRecordError(span, "run error: ", err)
	}
	return s.datasource.GetExecutionByID(ctx, execution.ExecutionID)
}

// CancelExecution stops a running execution. Only the running state can be
// cancelled; pending work is cancelled by its worker finding the record
// already terminal, and terminal records are immutable.
func (s *Skillrun) CancelExecution(ctx context.Context, executionID string) (*model.Execution, error) {
	ctx, span := tracer.Start(ctx, "Cancelling execution")
	defer span.End()

	execution, err := s.datasource.GetExecutionByID(ctx, executionID)
	if err != nil {
		return nil, logAndRecordError(span, "fetch execution error: ", err)
	}
	if !execution.CanTransition(model.StatusCancelled) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Cannot cancel execution in status '%s'", execution.Status), nil)
	}

	// Best effort; losing the completion race is handled by the worker's
	// conditional update, not by the runtime stopping in time.
	if err := s.invoker.Cancel(ctx, executionID); err != nil {
		logrus.Warnf("skill runtime cancel failed for %s: %v", executionID, err)
	}

	won, err := s.datasource.MarkExecutionCancelled(ctx, executionID, time.Now())
	if err != nil {
		return nil, logAndRecordError(span, "cancel execution error: ", err)
	}
	if !won {
		return nil, apierror.NewAPIError(apierror.ErrInvalidState, "Execution reached a terminal state before it could be cancelled", nil)
	}

	cancelled, err := s.datasource.GetExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	s.notifyWebhook("execution.cancelled", cancelled)
	s.indexExecution(cancelled)
	return cancelled, nil
}

// RetryExecution creates a fresh pending execution from a failed one. The
// original record is untouched; the new record carries retry_of for
// provenance and keeps the original input and trigger source.
func (s *Skillrun) RetryExecution(ctx context.Context, executionID, triggeredBy string) (*model.Execution, error) {
	ctx, span := tracer.Start(ctx, "Retrying execution")
	defer span.End()

	original, err := s.datasource.GetExecutionByID(ctx, executionID)
	if err != nil {
		return nil, logAndRecordError(span, "fetch execution error: ", err)
	}
	if original.Status != model.StatusFailed {
		return nil, apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Only failed executions can be retried, got '%s'", original.Status), nil)
	}

	return s.EnqueueExecution(ctx, model.Execution{
		AgentSlug:     original.AgentSlug,
		ScheduleID:    original.ScheduleID,
		AccountID:     original.AccountID,
		TriggerSource: original.TriggerSource,
		Input:         original.Input,
		RetryOf:       original.ExecutionID,
		TriggeredBy:   triggeredBy,
	})
}

var errWorkerAbandoned = errors.New("execution abandoned: worker did not report a result")

// RecoverStuckExecutions fails running executions whose worker never reported
// back, refunding any debit the dead worker had already committed. Called on
// worker start and periodically from the tick loop.
func (s *Skillrun) RecoverStuckExecutions(ctx context.Context) (int64, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-time.Duration(cnf.Engine.StuckRunningAfterMin) * time.Minute)
	stuck, err := s.datasource.GetStuckExecutions(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	var failed int64
	for i := range stuck {
		execution := &stuck[i]
		if err := s.failExecution(ctx, execution, errWorkerAbandoned); err != nil {
			logrus.Errorf("stuck recovery for %s: %v", execution.ExecutionID, err)
			continue
		}
		if execution.Status == model.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		logrus.Warnf("recovered %d stuck executions", failed)
	}
	return failed, nil
}

// GetExecution retrieves an execution by its id.
func (s *Skillrun) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	return s.datasource.GetExecutionByID(ctx, id)
}

// GetAllExecutions lists executions, newest first.
func (s *Skillrun) GetAllExecutions(ctx context.Context, limit, offset int) ([]model.Execution, error) {
	return s.datasource.GetAllExecutions(ctx, limit, offset)
}

func (s *Skillrun) indexExecution(execution *model.Execution) {
	if err := s.queue.queueIndexData(execution.ExecutionID, search.CollectionExecutions, execution); err != nil {
		logrus.Error("index queue error: ", err)
	}
}

func (s *Skillrun) notifyWebhook(event string, payload interface{}) {
	go func() {
		if err := SendWebhook(NewWebhook{Event: event, Payload: payload}); err != nil {
			notification.NotifyError(err)
		}
	}()
}

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
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/listinglens/skillrun/config"
	"github.com/listinglens/skillrun/model"
)

// CronEvaluator computes the next fire time for a cron expression. It exists
// as an interface so tests can pin time; the default is robfig-backed.
type CronEvaluator interface {
	NextAfter(expression string, after time.Time) (time.Time, error)
}

type robfigEvaluator struct {
	parser cron.Parser
}

// NewCronEvaluator returns the standard five-field cron evaluator.
func NewCronEvaluator() CronEvaluator {
	return &robfigEvaluator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

func (r *robfigEvaluator) NextAfter(expression string, after time.Time) (time.Time, error) {
	sched, err := r.parser.Parse(expression)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

// TickResult summarizes one dispatcher pass.
type TickResult struct {
	DueSchedules int   `json:"due_schedules"`
	Claimed      int   `json:"claimed"`
	Enqueued     int   `json:"enqueued"`
	Requeued     int   `json:"requeued"`
	Recovered    int64 `json:"recovered"`
}

// Tick runs one dispatcher pass: claim every due polled schedule, enqueue an
// execution for each claim, and re-enqueue deferred pending work. Ticks are
// idempotent under overlap: the claim is a single conditional update keyed on
// the exact next_run_at that was read, so of two concurrent ticks only one
// enqueues per schedule per due instant.
func (s *Skillrun) Tick(ctx context.Context) (*TickResult, error) {
	ctx, span := tracer.Start(ctx, "Dispatcher tick")
	defer span.End()

	now := time.Now()
	result := &TickResult{}

	due, err := s.datasource.GetDueSchedules(ctx, now)
	if err != nil {
		return nil, logAndRecordError(span, "fetch due schedules error: ", err)
	}
	result.DueSchedules = len(due)

	for i := range due {
		schedule := due[i]
		next, err := s.nextRunAfter(&schedule, now)
		if err != nil {
			logrus.Errorf("dispatcher: cannot compute next run for %s: %v", schedule.ScheduleID, err)
			continue
		}

		claimed, err := s.datasource.ClaimDueSchedule(ctx, schedule.ScheduleID, *schedule.NextRunAt, next, now)
		if err != nil {
			logrus.Errorf("dispatcher: claim error for %s: %v", schedule.ScheduleID, err)
			continue
		}
		if !claimed {
			// another tick owns this due instant
			continue
		}
		result.Claimed++

		if _, err := s.EnqueueExecution(ctx, model.Execution{
			AgentSlug:     schedule.AgentSlug,
			ScheduleID:    schedule.ScheduleID,
			AccountID:     schedule.AccountID,
			TriggerSource: model.TriggerSourceSchedule,
			Input:         schedule.MetaData,
		}); err != nil {
			logrus.Errorf("dispatcher: enqueue error for %s: %v", schedule.ScheduleID, err)
			continue
		}
		result.Enqueued++
	}

	requeued, err := s.requeueDeferredWork(ctx)
	if err != nil {
		logrus.Errorf("dispatcher: requeue error: %v", err)
	}
	result.Requeued = requeued

	recovered, err := s.RecoverStuckExecutions(ctx)
	if err != nil {
		logrus.Errorf("dispatcher: stuck recovery error: %v", err)
	}
	result.Recovered = recovered

	return result, nil
}

// nextRunAfter computes a polled schedule's next due instant. Event schedules
// never reach here; GetDueSchedules filters on next_run_at.
func (s *Skillrun) nextRunAfter(schedule *model.Schedule, now time.Time) (*time.Time, error) {
	switch schedule.ScheduleType {
	case model.ScheduleTypeInterval:
		next := schedule.NextIntervalRun(now)
		return &next, nil
	case model.ScheduleTypeCron:
		next, err := s.cron.NextAfter(*schedule.CronExpression, now)
		if err != nil {
			return nil, err
		}
		return &next, nil
	default:
		return nil, nil
	}
}

// requeueDeferredWork re-enqueues pending executions that earlier admission
// passes deferred at capacity. It sweeps every active schedule holding pending
// rows, not just schedules that came due this tick, so event-triggered and
// manual work drains as soon as slots free up. A second pass covers pending
// executions with no schedule at all against the global engine cap. Re-queuing
// an execution that is already in the queue is a no-op; the task id is keyed
// on the execution id.
func (s *Skillrun) requeueDeferredWork(ctx context.Context) (int, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return 0, err
	}

	requeued := 0
	withPending, err := s.datasource.GetSchedulesWithPendingWork(ctx)
	if err != nil {
		return 0, err
	}
	for i := range withPending {
		kicked, err := s.kickDeferredExecutions(ctx, &withPending[i])
		if err != nil {
			logrus.Errorf("dispatcher: requeue error for %s: %v", withPending[i].ScheduleID, err)
			continue
		}
		requeued += kicked
	}

	running, err := s.datasource.CountRunning(ctx)
	if err != nil {
		return requeued, err
	}
	free := int64(cnf.Engine.MaxConcurrent) - running
	if free <= 0 {
		return requeued, nil
	}

	unscheduled, err := s.datasource.GetPendingExecutions(ctx, "", int(free))
	if err != nil {
		return requeued, err
	}
	for i := range unscheduled {
		if err := s.queue.Enqueue(ctx, &unscheduled[i]); err != nil {
			logrus.Errorf("dispatcher: re-enqueue error for %s: %v", unscheduled[i].ExecutionID, err)
			continue
		}
		requeued++
	}
	return requeued, nil
}

// kickDeferredExecutions re-enqueues one schedule's deferred pending work, up
// to the schedule's free slots.
func (s *Skillrun) kickDeferredExecutions(ctx context.Context, schedule *model.Schedule) (int, error) {
	running, err := s.datasource.CountRunningExecutions(ctx, schedule.ScheduleID)
	if err != nil {
		return 0, err
	}
	free := int64(schedule.MaxConcurrent) - running
	if free <= 0 {
		return 0, nil
	}

	pending, err := s.datasource.GetPendingExecutions(ctx, schedule.ScheduleID, int(free))
	if err != nil {
		return 0, err
	}

	requeued := 0
	for i := range pending {
		if err := s.queue.Enqueue(ctx, &pending[i]); err != nil {
			logrus.Errorf("dispatcher: re-enqueue error for %s: %v", pending[i].ExecutionID, err)
			continue
		}
		requeued++
	}
	return requeued, nil
}

// DeliverEvent fans an external event out to every active schedule bound to
// its trigger, enqueuing one execution per schedule with the event payload as
// input.
func (s *Skillrun) DeliverEvent(ctx context.Context, trigger string, payload map[string]interface{}, triggeredBy string) ([]model.Execution, error) {
	ctx, span := tracer.Start(ctx, "Delivering event")
	defer span.End()

	schedules, err := s.datasource.GetSchedulesByEventTrigger(ctx, trigger)
	if err != nil {
		return nil, logAndRecordError(span, "fetch event schedules error: ", err)
	}

	executions := []model.Execution{}
	for i := range schedules {
		schedule := schedules[i]
		created, err := s.EnqueueExecution(ctx, model.Execution{
			AgentSlug:     schedule.AgentSlug,
			ScheduleID:    schedule.ScheduleID,
			AccountID:     schedule.AccountID,
			TriggerSource: model.TriggerSourceEvent,
			Input:         payload,
			TriggeredBy:   triggeredBy,
		})
		if err != nil {
			logrus.Errorf("event %s: enqueue error for schedule %s: %v", trigger, schedule.ScheduleID, err)
			continue
		}
		executions = append(executions, *created)
	}
	return executions, nil
}

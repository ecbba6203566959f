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
package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/listinglens/skillrun/model"
)

// CreateAccount is the request body for POST /accounts.
type CreateAccount struct {
	Name     string                 `json:"name"`
	Email    string                 `json:"email"`
	MetaData map[string]interface{} `json:"meta_data"`
}

func (a *CreateAccount) ValidateCreateAccount() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Name, validation.Required),
		validation.Field(&a.Email, validation.Required, is.Email),
	)
}

func (a *CreateAccount) ToAccount() model.Account {
	return model.Account{
		Name:     a.Name,
		Email:    a.Email,
		MetaData: a.MetaData,
	}
}

// TopUpAccount is the request body for POST /accounts/:id/topup.
type TopUpAccount struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

func (t *TopUpAccount) ValidateTopUpAccount() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Amount, validation.Required, validation.Min(1)),
		validation.Field(&t.Reference, validation.Required),
	)
}

// CreateSchedule is the request body for POST /schedules. Exactly one of
// IntervalMinutes, CronExpression, EventTrigger must be set, matching the
// schedule type.
type CreateSchedule struct {
	AccountID       string                 `json:"account_id"`
	AgentSlug       string                 `json:"agent_slug"`
	ScheduleType    string                 `json:"schedule_type"`
	IntervalMinutes *int                   `json:"interval_minutes"`
	CronExpression  *string                `json:"cron_expression"`
	EventTrigger    *string                `json:"event_trigger"`
	MaxConcurrent   int                    `json:"max_concurrent"`
	CreatedBy       string                 `json:"created_by"`
	MetaData        map[string]interface{} `json:"meta_data"`
}

func (s *CreateSchedule) exactlyOneTriggerConfig() validation.RuleFunc {
	return func(value interface{}) error {
		set := 0
		if s.IntervalMinutes != nil {
			set++
		}
		if s.CronExpression != nil {
			set++
		}
		if s.EventTrigger != nil {
			set++
		}
		if set != 1 {
			return errors.New("exactly one of interval_minutes, cron_expression, event_trigger is required")
		}
		return nil
	}
}

func (s *CreateSchedule) ValidateCreateSchedule() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.AccountID, validation.Required),
		validation.Field(&s.AgentSlug, validation.Required),
		validation.Field(&s.ScheduleType, validation.Required, validation.In(model.ScheduleTypeInterval, model.ScheduleTypeCron, model.ScheduleTypeEvent)),
		validation.Field(&s.ScheduleType, validation.By(s.exactlyOneTriggerConfig())),
		validation.Field(&s.MaxConcurrent, validation.Min(0)),
	)
}

func (s *CreateSchedule) ToSchedule() model.Schedule {
	maxConcurrent := s.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = 1
	}
	return model.Schedule{
		AccountID:       s.AccountID,
		AgentSlug:       s.AgentSlug,
		ScheduleType:    s.ScheduleType,
		IntervalMinutes: s.IntervalMinutes,
		CronExpression:  s.CronExpression,
		EventTrigger:    s.EventTrigger,
		MaxConcurrent:   maxConcurrent,
		CreatedBy:       s.CreatedBy,
		MetaData:        s.MetaData,
	}
}

// CreateExecution is the request body for POST /executions (async enqueue).
type CreateExecution struct {
	AgentSlug   string                 `json:"agent_slug"`
	AccountID   string                 `json:"account_id"`
	Input       map[string]interface{} `json:"input"`
	TriggeredBy string                 `json:"triggered_by"`
}

func (e *CreateExecution) ValidateCreateExecution() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.AgentSlug, validation.Required),
		validation.Field(&e.AccountID, validation.Required),
	)
}

func (e *CreateExecution) ToExecution() model.Execution {
	return model.Execution{
		AgentSlug:     e.AgentSlug,
		AccountID:     e.AccountID,
		TriggerSource: model.TriggerSourceManual,
		Input:         e.Input,
		TriggeredBy:   e.TriggeredBy,
	}
}

// ExecuteSkill is the request body for POST /skills/:slug/execute.
type ExecuteSkill struct {
	AccountID   string                 `json:"account_id"`
	Input       map[string]interface{} `json:"input"`
	TriggeredBy string                 `json:"triggered_by"`
}

func (e *ExecuteSkill) ValidateExecuteSkill() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.AccountID, validation.Required),
	)
}

// RetryExecution is the request body for POST /executions/:id/retry.
type RetryExecution struct {
	TriggeredBy string `json:"triggered_by"`
}

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
	"encoding/json"
	"time"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

const (
	TriggerSourceManual   = "manual"
	TriggerSourceSchedule = "schedule"
	TriggerSourceEvent    = "event"
)

// Execution is one recorded invocation attempt of a skill. Terminal records
// are immutable; a retry of a failed execution creates a fresh record with
// RetryOf pointing back at the original. CreditFlagged marks completed work
// whose usage-dependent cost could not be debited.
type Execution struct {
	ID            int64                  `json:"-"`
	ExecutionID   string                 `json:"execution_id"`
	AgentSlug     string                 `json:"agent_slug"`
	ScheduleID    string                 `json:"schedule_id,omitempty"`
	AccountID     string                 `json:"account_id"`
	Status        string                 `json:"status"`
	TriggerSource string                 `json:"trigger_source"`
	Input         map[string]interface{} `json:"input,omitempty"`
	Output        map[string]interface{} `json:"output,omitempty"`
	TokensUsed    int64                  `json:"tokens_used"`
	CostCredits   int64                  `json:"cost_credits"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	CreditFlagged bool                   `json:"credit_flagged,omitempty"`
	RetryOf       string                 `json:"retry_of,omitempty"`
	TriggeredBy   string                 `json:"triggered_by,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

func (e *Execution) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// IsTerminal reports whether the execution has reached a final state.
func (e *Execution) IsTerminal() bool {
	switch e.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving to the target status is a legal step in
// the execution state machine. Pending moves to running, or straight to failed
// when the account cannot cover a fixed skill price. Running moves to
// completed, failed, or cancelled. A failed execution is not transitioned on
// retry; retry creates a new record.
func (e *Execution) CanTransition(target string) bool {
	switch e.Status {
	case StatusPending:
		return target == StatusRunning || target == StatusFailed
	case StatusRunning:
		return target == StatusCompleted || target == StatusFailed || target == StatusCancelled
	}
	return false
}

// ValidStatus reports whether the given string names a known execution status.
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ValidTriggerSource reports whether the given string names a known trigger
// provenance.
func ValidTriggerSource(source string) bool {
	switch source {
	case TriggerSourceManual, TriggerSourceSchedule, TriggerSourceEvent:
		return true
	}
	return false
}

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
	"fmt"
	"time"
)

const (
	ScheduleTypeInterval = "interval"
	ScheduleTypeCron     = "cron"
	ScheduleTypeEvent    = "event"
)

// Schedule is a recurring trigger configuration for a skill. Exactly one of
// IntervalMinutes, CronExpression or EventTrigger is populated, matching
// ScheduleType. NextRunAt is the precomputed due instant for interval and cron
// schedules so the dispatcher can claim due schedules with a single conditional
// update; event schedules are never polled and keep NextRunAt nil.
type Schedule struct {
	ID              int64                  `json:"-"`
	ScheduleID      string                 `json:"schedule_id"`
	AccountID       string                 `json:"account_id"`
	AgentSlug       string                 `json:"agent_slug"`
	ScheduleType    string                 `json:"schedule_type"`
	IntervalMinutes *int                   `json:"interval_minutes,omitempty"`
	CronExpression  *string                `json:"cron_expression,omitempty"`
	EventTrigger    *string                `json:"event_trigger,omitempty"`
	MaxConcurrent   int                    `json:"max_concurrent"`
	IsActive        bool                   `json:"is_active"`
	NextRunAt       *time.Time             `json:"next_run_at,omitempty"`
	LastRunAt       *time.Time             `json:"last_run_at,omitempty"`
	CreatedBy       string                 `json:"created_by"`
	CreatedAt       time.Time              `json:"created_at"`
	MetaData        map[string]interface{} `json:"meta_data,omitempty"`
}

func (s *Schedule) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// ValidateConfig enforces the schedule invariants: a known type, exactly one
// trigger field populated for that type, and a positive concurrency cap.
func (s *Schedule) ValidateConfig() error {
	if s.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", s.MaxConcurrent)
	}

	populated := 0
	if s.IntervalMinutes != nil {
		populated++
	}
	if s.CronExpression != nil {
		populated++
	}
	if s.EventTrigger != nil {
		populated++
	}
	if populated != 1 {
		return fmt.Errorf("exactly one of interval_minutes, cron_expression or event_trigger must be set, got %d", populated)
	}

	switch s.ScheduleType {
	case ScheduleTypeInterval:
		if s.IntervalMinutes == nil {
			return fmt.Errorf("interval schedule requires interval_minutes")
		}
		if *s.IntervalMinutes < 1 {
			return fmt.Errorf("interval_minutes must be at least 1, got %d", *s.IntervalMinutes)
		}
	case ScheduleTypeCron:
		if s.CronExpression == nil {
			return fmt.Errorf("cron schedule requires cron_expression")
		}
	case ScheduleTypeEvent:
		if s.EventTrigger == nil {
			return fmt.Errorf("event schedule requires event_trigger")
		}
	default:
		return fmt.Errorf("unknown schedule_type %q", s.ScheduleType)
	}
	return nil
}

// IsDue reports whether a polled schedule is due at the given instant.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.IsActive || s.NextRunAt == nil {
		return false
	}
	return !s.NextRunAt.After(now)
}

// NextIntervalRun computes the next due instant for an interval schedule.
func (s *Schedule) NextIntervalRun(from time.Time) time.Time {
	minutes := 0
	if s.IntervalMinutes != nil {
		minutes = *s.IntervalMinutes
	}
	return from.Add(time.Duration(minutes) * time.Minute)
}

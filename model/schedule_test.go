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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int          { return &i }
func strPtr(s string) *string    { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func TestScheduleValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		wantErr  bool
	}{
		{
			name: "valid interval",
			schedule: Schedule{
				ScheduleType:    ScheduleTypeInterval,
				IntervalMinutes: intPtr(15),
				MaxConcurrent:   1,
			},
		},
		{
			name: "valid cron",
			schedule: Schedule{
				ScheduleType:   ScheduleTypeCron,
				CronExpression: strPtr("0 9 * * 1"),
				MaxConcurrent:  3,
			},
		},
		{
			name: "valid event",
			schedule: Schedule{
				ScheduleType:  ScheduleTypeEvent,
				EventTrigger:  strPtr("listing.media.uploaded"),
				MaxConcurrent: 2,
			},
		},
		{
			name: "no trigger field",
			schedule: Schedule{
				ScheduleType:  ScheduleTypeInterval,
				MaxConcurrent: 1,
			},
			wantErr: true,
		},
		{
			name: "two trigger fields",
			schedule: Schedule{
				ScheduleType:    ScheduleTypeInterval,
				IntervalMinutes: intPtr(5),
				CronExpression:  strPtr("* * * * *"),
				MaxConcurrent:   1,
			},
			wantErr: true,
		},
		{
			name: "type mismatch",
			schedule: Schedule{
				ScheduleType:   ScheduleTypeInterval,
				CronExpression: strPtr("* * * * *"),
				MaxConcurrent:  1,
			},
			wantErr: true,
		},
		{
			name: "zero max_concurrent",
			schedule: Schedule{
				ScheduleType:    ScheduleTypeInterval,
				IntervalMinutes: intPtr(5),
				MaxConcurrent:   0,
			},
			wantErr: true,
		},
		{
			name: "zero interval",
			schedule: Schedule{
				ScheduleType:    ScheduleTypeInterval,
				IntervalMinutes: intPtr(0),
				MaxConcurrent:   1,
			},
			wantErr: true,
		},
		{
			name: "unknown type",
			schedule: Schedule{
				ScheduleType:  "hourly",
				EventTrigger:  strPtr("x"),
				MaxConcurrent: 1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schedule.ValidateConfig()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduleIsDue(t *testing.T) {
	now := time.Now()

	due := Schedule{IsActive: true, NextRunAt: timePtr(now.Add(-time.Minute))}
	assert.True(t, due.IsDue(now))

	exact := Schedule{IsActive: true, NextRunAt: timePtr(now)}
	assert.True(t, exact.IsDue(now))

	future := Schedule{IsActive: true, NextRunAt: timePtr(now.Add(time.Minute))}
	assert.False(t, future.IsDue(now))

	inactive := Schedule{IsActive: false, NextRunAt: timePtr(now.Add(-time.Minute))}
	assert.False(t, inactive.IsDue(now))

	event := Schedule{IsActive: true}
	assert.False(t, event.IsDue(now))
}

func TestNextIntervalRun(t *testing.T) {
	s := Schedule{
		ScheduleType:    ScheduleTypeInterval,
		IntervalMinutes: intPtr(30),
		MaxConcurrent:   1,
	}
	require.NoError(t, s.ValidateConfig())

	from := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(30*time.Minute), s.NextIntervalRun(from))
}

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAgentInBusinessWindow(t *testing.T) {
	// 2024-01-01 was a Monday, 2024-01-06 a Saturday.
	monday := func(hour, minute int) time.Time {
		return time.Date(2024, 1, 1, hour, minute, 0, 0, time.UTC)
	}
	saturday := func(hour, minute int) time.Time {
		return time.Date(2024, 1, 6, hour, minute, 0, 0, time.UTC)
	}

	weekdays := Agent{ActiveDays: "1,2,3,4,5", StartMinutes: 540, EndMinutes: 1080}

	tests := []struct {
		name  string
		agent Agent
		now   time.Time
		want  bool
	}{
		{"no active days means always on", Agent{}, saturday(3, 0), true},
		{"weekday inside window", weekdays, monday(10, 0), true},
		{"weekday at window start", weekdays, monday(9, 0), true},
		{"weekday before window", weekdays, monday(8, 59), false},
		{"weekday at window end is exclusive", weekdays, monday(18, 0), false},
		{"saturday outside active days", weekdays, saturday(10, 0), false},
		{
			name:  "timezone shifts the local clock",
			agent: Agent{ActiveDays: "1,2,3,4,5", StartMinutes: 540, EndMinutes: 1080, Timezone: "America/Sao_Paulo"},
			// 11:30 UTC is 08:30 in São Paulo, still before opening.
			now:  monday(11, 30),
			want: false,
		},
		{
			name:  "timezone in window",
			agent: Agent{ActiveDays: "1,2,3,4,5", StartMinutes: 540, EndMinutes: 1080, Timezone: "America/Sao_Paulo"},
			now:   monday(12, 30),
			want:  true,
		},
		{
			name:  "unknown timezone falls back to UTC",
			agent: Agent{ActiveDays: "1,2,3,4,5", StartMinutes: 540, EndMinutes: 1080, Timezone: "Mars/Olympus"},
			now:   monday(10, 0),
			want:  true,
		},
		{
			name:  "garbage day entries are skipped",
			agent: Agent{ActiveDays: "x,1", StartMinutes: 0, EndMinutes: 1440},
			now:   monday(10, 0),
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.agent.InBusinessWindow(tt.now))
		})
	}
}

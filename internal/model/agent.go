package model

import (
	"strconv"
	"strings"
	"time"
)

// Out-of-hours policy values. The policy decides what the responder does
// with a timer that fires outside the agent's business window.
const (
	OutOfHoursSkip           = "skip"
	OutOfHoursCannedMessage  = "canned_message"
	OutOfHoursGenerateAnyway = "generate_anyway"
)

// Agent is a tenant-configured AI responder profile.
type Agent struct {
	ID          string  `json:"id" gorm:"column:id;primaryKey"`
	AccountID   string  `json:"account_id" gorm:"column:account_id;index"`
	Name        string  `json:"name" gorm:"column:name"`
	Prompt      string  `json:"prompt" gorm:"column:prompt"`
	Model       string  `json:"model" gorm:"column:model"`
	Temperature float64 `json:"temperature" gorm:"column:temperature;default:0.7"`
	MaxTokens   int     `json:"max_tokens" gorm:"column:max_tokens;default:1024"`
	// WaitSeconds is the debounce window between the last inbound message
	// and the generated reply.
	WaitSeconds int  `json:"wait_seconds" gorm:"column:wait_seconds;default:5"`
	Active      bool `json:"active" gorm:"column:active;default:false"`

	// Business hours. ActiveDays is a CSV of weekday numbers (0=Sunday).
	// Start/End are minutes from midnight in the agent timezone. An empty
	// ActiveDays means the agent is always on.
	ActiveDays   string `json:"active_days,omitempty" gorm:"column:active_days"`
	StartMinutes int    `json:"start_minutes" gorm:"column:start_minutes;default:0"`
	EndMinutes   int    `json:"end_minutes" gorm:"column:end_minutes;default:1440"`
	Timezone     string `json:"timezone,omitempty" gorm:"column:timezone"`

	OutOfHoursPolicy string `json:"out_of_hours_policy" gorm:"column:out_of_hours_policy;default:generate_anyway"`
	OutOfHoursReply  string `json:"out_of_hours_reply,omitempty" gorm:"column:out_of_hours_reply"`

	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Agent) TableName() string {
	return "agent_ia"
}

// InBusinessWindow reports whether now falls inside the agent's configured
// business hours. Agents with no active days are always in window. An
// unknown timezone falls back to UTC.
func (a *Agent) InBusinessWindow(now time.Time) bool {
	if strings.TrimSpace(a.ActiveDays) == "" {
		return true
	}

	loc := time.UTC
	if a.Timezone != "" {
		if l, err := time.LoadLocation(a.Timezone); err == nil {
			loc = l
		}
	}
	local := now.In(loc)

	dayActive := false
	for _, part := range strings.Split(a.ActiveDays, ",") {
		day, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if day == int(local.Weekday()) {
			dayActive = true
			break
		}
	}
	if !dayActive {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	return minutes >= a.StartMinutes && minutes < a.EndMinutes
}

// AgentStage is one ordered step of the agent's conversation script.
type AgentStage struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	AgentID   string    `json:"agent_id" gorm:"column:agent_id;index"`
	Position  int       `json:"position" gorm:"column:position"`
	Title     string    `json:"title" gorm:"column:title"`
	Script    string    `json:"script" gorm:"column:script"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (AgentStage) TableName() string {
	return "agent_ia_etapas"
}

// AgentFAQ is a question/answer pair injected into the system prompt.
type AgentFAQ struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	AgentID   string    `json:"agent_id" gorm:"column:agent_id;index"`
	Position  int       `json:"position" gorm:"column:position"`
	Question  string    `json:"question" gorm:"column:question"`
	Answer    string    `json:"answer" gorm:"column:answer"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (AgentFAQ) TableName() string {
	return "agent_ia_perguntas"
}

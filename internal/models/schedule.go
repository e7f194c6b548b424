package models

import (
	"time"
)

// ScanType selects which scan primitive a schedule dispatches
type ScanType string

const (
	ScanTypeQuick ScanType = "quick"
	ScanTypeDeep  ScanType = "deep"
)

// Frequency is how often a schedule fires
type Frequency string

const (
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCron    Frequency = "cron"
)

// TimeConfig parameterises a Frequency. Only the fields relevant to the
// frequency are consulted: Minute for hourly, Hour+Minute for daily,
// DayOfWeek for weekly, DayOfMonth for monthly, CronExpr for cron.
type TimeConfig struct {
	Hour       int    `json:"hour"`
	Minute     int    `json:"minute"`
	DayOfWeek  int    `json:"day_of_week"`  // 0 = Sunday, matching time.Weekday
	DayOfMonth int    `json:"day_of_month"` // clamped to month length
	CronExpr   string `json:"cron_expr,omitempty"`
}

// ScanParams is the bag of typed scan options carried by a schedule
type ScanParams struct {
	MaxPages       int      `json:"max_pages,omitempty"`
	CustomPages    []string `json:"custom_pages,omitempty"`
	ChunkSize      int      `json:"chunk_size,omitempty"`
	AcceptSelector string   `json:"accept_selector,omitempty"`
	UserAgent      string   `json:"user_agent,omitempty"`
}

// Schedule is a recurring scan definition.
// Invariant: Enabled && NextRun != nil implies NextRun >= now at the time
// it was last computed.
type Schedule struct {
	ID             string     `json:"id" badgerhold:"key"`
	DomainConfigID string     `json:"domain_config_id"`
	Domain         string     `json:"domain"`
	ScanType       ScanType   `json:"scan_type"`
	ScanParams     ScanParams `json:"scan_params"`
	Frequency      Frequency  `json:"frequency"`
	TimeConfig     TimeConfig `json:"time_config"`
	Enabled        bool       `json:"enabled"`
	NextRun        *time.Time `json:"next_run,omitempty"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	LastStatus     string     `json:"last_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ExecutionStatus is the terminal state of one schedule fire
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionSkipped   ExecutionStatus = "skipped"
)

// ScheduleExecution records one schedule fire. Deleting a Schedule deletes
// its executions. ScanID is empty for skipped executions.
type ScheduleExecution struct {
	ID          string          `json:"id" badgerhold:"key"`
	ScheduleID  string          `json:"schedule_id"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Status      ExecutionStatus `json:"status"`
	ScanID      string          `json:"scan_id,omitempty"`
	Error       string          `json:"error,omitempty"`
}

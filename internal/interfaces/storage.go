package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/consentry/internal/models"
)

// ScheduleStorage persists schedules and their execution history
type ScheduleStorage interface {
	SaveSchedule(ctx context.Context, schedule *models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	ListSchedules(ctx context.Context) ([]*models.Schedule, error)

	// ListDueSchedules returns enabled schedules with NextRun <= now
	ListDueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error)

	// DeleteSchedule removes a schedule and cascades to its executions
	DeleteSchedule(ctx context.Context, id string) error

	SaveExecution(ctx context.Context, execution *models.ScheduleExecution) error
	ListExecutions(ctx context.Context, scheduleID string) ([]*models.ScheduleExecution, error)

	// ListExecutionsByStatus returns executions in the given state across
	// all schedules (used for orphaned-execution cleanup at startup)
	ListExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ScheduleExecution, error)
}

// ScanStorage persists terminal scan results. Cookie values are stored in
// hashed form only.
type ScanStorage interface {
	SaveScanResult(ctx context.Context, result *models.ScanResult) error
	GetScanResult(ctx context.Context, scanID string) (*models.ScanResult, error)
	ListScanResults(ctx context.Context, domain string, limit int) ([]*models.ScanResult, error)
}

// StorageManager owns the storage backends
type StorageManager interface {
	ScheduleStorage() ScheduleStorage
	ScanStorage() ScanStorage
	Close() error
}

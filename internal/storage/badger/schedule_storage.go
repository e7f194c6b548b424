package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/consentry/internal/interfaces"
	"github.com/ternarybob/consentry/internal/models"
)

// ScheduleStorage implements the ScheduleStorage interface for Badger
type ScheduleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScheduleStorage creates a new ScheduleStorage instance
func NewScheduleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScheduleStorage {
	return &ScheduleStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ScheduleStorage) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		return fmt.Errorf("schedule ID is required")
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now().UTC()
	}
	schedule.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(schedule.ID, schedule); err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", schedule.ID, err)
	}
	return nil
}

func (s *ScheduleStorage) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := s.db.Store().Get(id, &schedule); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("schedule not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get schedule %s: %w", id, err)
	}
	return &schedule, nil
}

func (s *ScheduleStorage) ListSchedules(ctx context.Context) ([]*models.Schedule, error) {
	var schedules []models.Schedule
	if err := s.db.Store().Find(&schedules, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	result := make([]*models.Schedule, len(schedules))
	for i := range schedules {
		result[i] = &schedules[i]
	}
	return result, nil
}

// ListDueSchedules returns enabled schedules whose next run has arrived.
// NextRun is a pointer field, so the due filter runs in Go rather than in a
// badgerhold query.
func (s *ScheduleStorage) ListDueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	var schedules []models.Schedule
	if err := s.db.Store().Find(&schedules, badgerhold.Where("Enabled").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to query enabled schedules: %w", err)
	}

	due := make([]*models.Schedule, 0)
	for i := range schedules {
		if schedules[i].NextRun != nil && !schedules[i].NextRun.After(now) {
			due = append(due, &schedules[i])
		}
	}
	return due, nil
}

// DeleteSchedule removes a schedule and cascades to its executions.
func (s *ScheduleStorage) DeleteSchedule(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Schedule{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}

	if err := s.db.Store().DeleteMatching(&models.ScheduleExecution{}, badgerhold.Where("ScheduleID").Eq(id)); err != nil {
		return fmt.Errorf("failed to delete executions for schedule %s: %w", id, err)
	}

	s.logger.Debug().Str("schedule_id", id).Msg("Schedule and executions deleted")
	return nil
}

func (s *ScheduleStorage) SaveExecution(ctx context.Context, execution *models.ScheduleExecution) error {
	if execution.ID == "" {
		return fmt.Errorf("execution ID is required")
	}
	if execution.ScheduleID == "" {
		return fmt.Errorf("execution schedule ID is required")
	}

	if err := s.db.Store().Upsert(execution.ID, execution); err != nil {
		return fmt.Errorf("failed to save execution %s: %w", execution.ID, err)
	}
	return nil
}

func (s *ScheduleStorage) ListExecutions(ctx context.Context, scheduleID string) ([]*models.ScheduleExecution, error) {
	var executions []models.ScheduleExecution
	query := badgerhold.Where("ScheduleID").Eq(scheduleID).SortBy("StartedAt").Reverse()
	if err := s.db.Store().Find(&executions, query); err != nil {
		return nil, fmt.Errorf("failed to list executions for schedule %s: %w", scheduleID, err)
	}

	result := make([]*models.ScheduleExecution, len(executions))
	for i := range executions {
		result[i] = &executions[i]
	}
	return result, nil
}

func (s *ScheduleStorage) ListExecutionsByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.ScheduleExecution, error) {
	var executions []models.ScheduleExecution
	if err := s.db.Store().Find(&executions, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to list executions with status %s: %w", status, err)
	}

	result := make([]*models.ScheduleExecution, len(executions))
	for i := range executions {
		result[i] = &executions[i]
	}
	return result, nil
}

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consentry/internal/common"
	"github.com/ternarybob/consentry/internal/interfaces"
	"github.com/ternarybob/consentry/internal/models"
)

// lockKeyPrefix namespaces schedule locks in the shared lock backend.
const lockKeyPrefix = "lock:schedule:"

// Coordinator fires due schedules on a cron tick. Every fire is guarded by
// a distributed lock so that in a fleet exactly one instance runs a given
// schedule; the losers record a Skipped execution and move on without
// waiting.
type Coordinator struct {
	config     *common.Config
	storage    interfaces.ScheduleStorage
	scans      interfaces.ScanStorage
	quick      interfaces.PageScanner
	enterprise interfaces.PageScanner
	lock       interfaces.DistributedLock
	cron       *cron.Cron
	logger     arbor.ILogger

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup

	now func() time.Time
}

// NewCoordinator builds a coordinator. scans may be nil when scheduled
// scan results need not be persisted.
func NewCoordinator(config *common.Config, storage interfaces.ScheduleStorage, scans interfaces.ScanStorage, quick, enterprise interfaces.PageScanner, lock interfaces.DistributedLock) *Coordinator {
	return &Coordinator{
		config:     config,
		storage:    storage,
		scans:      scans,
		quick:      quick,
		enterprise: enterprise,
		lock:       lock,
		cron:       cron.New(),
		logger:     common.GetLogger(),
		now:        time.Now,
	}
}

// Start cleans up executions orphaned by a previous crash, fills in missing
// next-run times, and begins ticking.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("schedule coordinator already running")
	}

	if err := c.cleanupOrphanedExecutions(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Orphaned execution cleanup failed")
	}
	if err := c.initializeNextRuns(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Next-run initialization failed")
	}

	tickSchedule := c.config.Scheduler.TickSchedule
	if tickSchedule == "" {
		tickSchedule = "*/1 * * * *"
	}
	if _, err := c.cron.AddFunc(tickSchedule, func() { c.Tick(context.Background()) }); err != nil {
		return fmt.Errorf("failed to register coordinator tick: %w", err)
	}

	c.cron.Start()
	c.running = true
	c.logger.Info().
		Str("tick_schedule", tickSchedule).
		Int("lock_ttl_seconds", c.config.Scheduler.LockTTLSeconds).
		Msg("Schedule coordinator started")
	return nil
}

// Stop halts the tick and waits for in-flight executions to drain.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	c.cron.Stop()
	c.wg.Wait()
	c.logger.Info().Msg("Schedule coordinator stopped")
}

// Tick enumerates enabled schedules whose next run has arrived and attempts
// each one. Exposed for external fire signals; the cron entry calls it every
// tick.
func (c *Coordinator) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Coordinator tick panicked")
		}
	}()

	now := c.now().UTC()
	due, err := c.storage.ListDueSchedules(ctx, now)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to list due schedules, retrying next tick")
		return
	}
	for _, schedule := range due {
		c.fire(ctx, schedule, now)
	}
}

// RunScheduleNow fires one schedule immediately, regardless of its next-run
// time. The distributed lock still applies.
func (c *Coordinator) RunScheduleNow(ctx context.Context, scheduleID string) error {
	schedule, err := c.storage.GetSchedule(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to load schedule %s: %w", scheduleID, err)
	}
	c.fire(ctx, schedule, c.now().UTC())
	return nil
}

// fire drives one schedule through the per-fire state machine:
// lock attempt, then Running and a terminal Succeeded/Failed, or Skipped
// when another instance holds the lock. A scan never runs unlocked.
func (c *Coordinator) fire(ctx context.Context, schedule *models.Schedule, firedAt time.Time) {
	key := lockKeyPrefix + schedule.ID
	token := common.NewLockToken()
	ttl := time.Duration(c.config.Scheduler.LockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 300 * time.Second
	}

	acquired, err := c.lock.SetIfAbsent(ctx, key, token, ttl)
	if err != nil {
		// Lock backend unreachable: skip this tick entirely rather than
		// risk a duplicate run. No execution is recorded.
		c.logger.Warn().
			Str("schedule_id", schedule.ID).
			Err(err).
			Msg("Lock backend unavailable, deferring schedule to next tick")
		return
	}
	if !acquired {
		c.recordSkipped(ctx, schedule, firedAt)
		return
	}

	c.wg.Add(1)
	defer c.wg.Done()
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := c.lock.CompareAndDelete(releaseCtx, key, token); err != nil {
			c.logger.Warn().Str("schedule_id", schedule.ID).Err(err).Msg("Lock release failed, TTL will reclaim it")
		}
	}()

	extendStop := make(chan struct{})
	defer close(extendStop)
	go c.extendWhileRunning(key, token, ttl, extendStop)

	c.execute(ctx, schedule, firedAt)
}

// execute runs the scan with the lock already held and records the
// execution and schedule updates on every exit path, panics included.
func (c *Coordinator) execute(ctx context.Context, schedule *models.Schedule, firedAt time.Time) {
	execution := &models.ScheduleExecution{
		ID:         common.NewExecutionID(),
		ScheduleID: schedule.ID,
		StartedAt:  firedAt,
		Status:     models.ExecutionRunning,
	}
	if err := c.storage.SaveExecution(ctx, execution); err != nil {
		c.logger.Warn().Str("schedule_id", schedule.ID).Err(err).Msg("Failed to record running execution")
	}

	c.logger.Info().
		Str("schedule_id", schedule.ID).
		Str("execution_id", execution.ID).
		Str("domain", schedule.Domain).
		Str("scan_type", string(schedule.ScanType)).
		Msg("Executing schedule")

	finalize := func(status models.ExecutionStatus, scanID, errMsg string) {
		completedAt := c.now().UTC()
		execution.Status = status
		execution.CompletedAt = &completedAt
		execution.ScanID = scanID
		execution.Error = errMsg
		if err := c.storage.SaveExecution(ctx, execution); err != nil {
			c.logger.Warn().Str("execution_id", execution.ID).Err(err).Msg("Failed to record execution outcome")
		}
		c.advanceSchedule(ctx, schedule, firedAt, completedAt, status)
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("schedule_id", schedule.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Schedule execution panicked")
			finalize(models.ExecutionFailed, "", fmt.Sprintf("panic: %v", r))
		}
	}()

	result, err := c.runScan(ctx, schedule)
	switch {
	case err != nil:
		c.logger.Warn().
			Str("schedule_id", schedule.ID).
			Err(err).
			Msg("Scheduled scan failed")
		finalize(models.ExecutionFailed, "", err.Error())
	default:
		if c.scans != nil {
			if err := c.scans.SaveScanResult(ctx, result); err != nil {
				c.logger.Warn().Str("scan_id", result.ScanID).Err(err).Msg("Failed to persist scan result")
			}
		}
		c.logger.Info().
			Str("schedule_id", schedule.ID).
			Str("scan_id", result.ScanID).
			Int("unique_cookies", result.UniqueCookies).
			Msg("Scheduled scan succeeded")
		finalize(models.ExecutionSucceeded, result.ScanID, "")
	}
}

// runScan dispatches to the scan primitive matching the schedule's type.
func (c *Coordinator) runScan(ctx context.Context, schedule *models.Schedule) (*models.ScanResult, error) {
	req := models.ScanRequest{
		Domain:         schedule.Domain,
		DomainConfigID: schedule.DomainConfigID,
		MaxPages:       schedule.ScanParams.MaxPages,
		CustomPages:    schedule.ScanParams.CustomPages,
		ChunkSize:      schedule.ScanParams.ChunkSize,
		AcceptSelector: schedule.ScanParams.AcceptSelector,
		UserAgent:      schedule.ScanParams.UserAgent,
	}

	switch schedule.ScanType {
	case models.ScanTypeQuick:
		req.Mode = models.ScanModeQuick
		return c.quick.Scan(ctx, req, nil)
	case models.ScanTypeDeep:
		req.Mode = models.ScanModeEnterprise
		req.EnablePersistence = true
		return c.enterprise.Scan(ctx, req, nil)
	default:
		return nil, fmt.Errorf("unknown scan type %q on schedule %s", schedule.ScanType, schedule.ID)
	}
}

// recordSkipped notes a fire lost to another lock holder. Skipped is normal
// fleet behaviour, not a failure; the schedule itself is left untouched so
// the winning instance owns lastRun and nextRun.
func (c *Coordinator) recordSkipped(ctx context.Context, schedule *models.Schedule, firedAt time.Time) {
	completedAt := firedAt
	execution := &models.ScheduleExecution{
		ID:          common.NewExecutionID(),
		ScheduleID:  schedule.ID,
		StartedAt:   firedAt,
		CompletedAt: &completedAt,
		Status:      models.ExecutionSkipped,
	}
	if err := c.storage.SaveExecution(ctx, execution); err != nil {
		c.logger.Warn().Str("schedule_id", schedule.ID).Err(err).Msg("Failed to record skipped execution")
	}
	c.logger.Debug().
		Str("schedule_id", schedule.ID).
		Msg("Schedule locked by another instance, skipped")
}

// advanceSchedule moves the schedule past this fire: lastRun, lastStatus and
// a fresh nextRun computed from the completion time so it lands in the
// future.
func (c *Coordinator) advanceSchedule(ctx context.Context, schedule *models.Schedule, firedAt, completedAt time.Time, status models.ExecutionStatus) {
	schedule.LastRun = &firedAt
	schedule.LastStatus = string(status)
	schedule.UpdatedAt = completedAt

	next, err := NextRun(schedule.Frequency, schedule.TimeConfig, completedAt)
	if err != nil {
		c.logger.Warn().
			Str("schedule_id", schedule.ID).
			Err(err).
			Msg("Next-run computation failed, schedule will not refire")
		schedule.NextRun = nil
	} else {
		schedule.NextRun = &next
	}

	if err := c.storage.SaveSchedule(ctx, schedule); err != nil {
		c.logger.Warn().Str("schedule_id", schedule.ID).Err(err).Msg("Failed to persist schedule advance")
	}
}

// extendWhileRunning refreshes the lock TTL at half-TTL intervals so a scan
// longer than the TTL keeps its lock. Stops when the fire finishes.
func (c *Coordinator) extendWhileRunning(key, token string, ttl time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := c.lock.Extend(ctx, key, token, ttl)
			cancel()
			if err != nil {
				c.logger.Warn().Str("lock_key", key).Err(err).Msg("Lock extension failed")
			} else if !ok {
				c.logger.Warn().Str("lock_key", key).Msg("Lock no longer held, extension refused")
				return
			}
		}
	}
}

// cleanupOrphanedExecutions fails any execution left Running by a previous
// process. The lock TTL has long reclaimed their locks.
func (c *Coordinator) cleanupOrphanedExecutions(ctx context.Context) error {
	orphans, err := c.storage.ListExecutionsByStatus(ctx, models.ExecutionRunning)
	if err != nil {
		return err
	}
	for _, execution := range orphans {
		completedAt := c.now().UTC()
		execution.Status = models.ExecutionFailed
		execution.CompletedAt = &completedAt
		execution.Error = "orphaned: process terminated during execution"
		if err := c.storage.SaveExecution(ctx, execution); err != nil {
			c.logger.Warn().Str("execution_id", execution.ID).Err(err).Msg("Failed to fail orphaned execution")
		}
	}
	if len(orphans) > 0 {
		c.logger.Info().Int("count", len(orphans)).Msg("Orphaned executions marked failed")
	}
	return nil
}

// initializeNextRuns computes a next-run for enabled schedules that have
// none, so newly created or imported schedules become eligible to fire.
func (c *Coordinator) initializeNextRuns(ctx context.Context) error {
	schedules, err := c.storage.ListSchedules(ctx)
	if err != nil {
		return err
	}
	now := c.now().UTC()
	for _, schedule := range schedules {
		if !schedule.Enabled || schedule.NextRun != nil {
			continue
		}
		next, err := NextRun(schedule.Frequency, schedule.TimeConfig, now)
		if err != nil {
			c.logger.Warn().Str("schedule_id", schedule.ID).Err(err).Msg("Cannot compute next run")
			continue
		}
		schedule.NextRun = &next
		schedule.UpdatedAt = now
		if err := c.storage.SaveSchedule(ctx, schedule); err != nil {
			c.logger.Warn().Str("schedule_id", schedule.ID).Err(err).Msg("Failed to persist next run")
		}
	}
	return nil
}

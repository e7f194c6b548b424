package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consentry/internal/classifier"
	"github.com/ternarybob/consentry/internal/common"
	"github.com/ternarybob/consentry/internal/interfaces"
	"github.com/ternarybob/consentry/internal/lock"
	"github.com/ternarybob/consentry/internal/scanner"
	"github.com/ternarybob/consentry/internal/scheduler"
	"github.com/ternarybob/consentry/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	Lock           interfaces.DistributedLock
	Overrides      *classifier.OverrideStore
	Classifier     interfaces.Classifier
	Checkpoints    *scanner.CheckpointStore

	ParallelScanner   *scanner.ParallelScanner
	EnterpriseScanner *scanner.EnterpriseScanner
	Coordinator       *scheduler.Coordinator

	redisLock *lock.RedisLock
}

// New wires the scan engine: storage, lock backend, classifier, scanners
// and the schedule coordinator, in dependency order.
func New(ctx context.Context, config *common.Config) (*App, error) {
	logger := common.GetLogger()

	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
	}

	if err := a.initLock(ctx); err != nil {
		storageManager.Close()
		return nil, err
	}

	a.Overrides = classifier.NewOverrideStore()
	a.Classifier = classifier.NewService(a.Overrides)

	a.Checkpoints, err = scanner.NewCheckpointStore(config.Scan.CheckpointDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint store: %w", err)
	}

	visitor := scanner.NewChromeVisitor(scanner.VisitorConfig{
		Timeout:         time.Duration(config.Scan.TimeoutMs) * time.Millisecond,
		SettleWait:      config.Scan.SettleWait,
		AcceptSelectors: config.Scan.AcceptSelectors,
		MaxRetries:      config.Scan.MaxRetries,
		Limiter:         scanner.NewPolitenessLimiter(config.Scan.RequestDelay),
	})

	a.ParallelScanner = scanner.NewParallelScanner(config, visitor, a.Classifier)
	a.EnterpriseScanner = scanner.NewEnterpriseScanner(config, visitor, a.Classifier, a.Checkpoints)

	a.Coordinator = scheduler.NewCoordinator(
		config,
		storageManager.ScheduleStorage(),
		storageManager.ScanStorage(),
		a.ParallelScanner,
		a.EnterpriseScanner,
		a.Lock,
	)

	logger.Info().
		Str("environment", config.Environment).
		Str("storage_path", config.Storage.Badger.Path).
		Msg("Application initialized")
	return a, nil
}

// initLock picks the lock backend: Redis when configured, otherwise the
// in-process lock for single-instance deployments.
func (a *App) initLock(ctx context.Context) error {
	if a.Config.Redis.URL != "" {
		redisLock, err := lock.NewRedisLockFromURL(ctx, a.Config.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to connect lock backend: %w", err)
		}
		a.redisLock = redisLock
		a.Lock = redisLock
		a.Logger.Info().Str("backend", "redis").Msg("Distributed lock ready")
		return nil
	}
	if a.Config.Redis.Host != "" {
		url := fmt.Sprintf("redis://%s/%d", a.Config.Redis.Addr(), a.Config.Redis.DB)
		redisLock, err := lock.NewRedisLockFromURL(ctx, url)
		if err != nil {
			return fmt.Errorf("failed to connect lock backend: %w", err)
		}
		a.redisLock = redisLock
		a.Lock = redisLock
		a.Logger.Info().Str("backend", "redis").Str("addr", a.Config.Redis.Addr()).Msg("Distributed lock ready")
		return nil
	}

	a.Lock = lock.NewMemoryLock()
	a.Logger.Warn().Msg("No Redis configured, using in-process lock (single instance only)")
	return nil
}

// Start begins the schedule coordinator when enabled.
func (a *App) Start(ctx context.Context) error {
	if !a.Config.Scheduler.Enabled {
		a.Logger.Info().Msg("Schedule coordinator disabled by configuration")
		return nil
	}
	return a.Coordinator.Start(ctx)
}

// Close shuts components down in reverse dependency order.
func (a *App) Close() error {
	if a.Coordinator != nil {
		a.Coordinator.Stop()
	}

	var firstErr error
	if a.redisLock != nil {
		if err := a.redisLock.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.Logger.Info().Msg("Application closed")
	return firstErr
}

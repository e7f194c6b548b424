package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consentry/internal/common"
	"github.com/ternarybob/consentry/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	schedule interfaces.ScheduleStorage
	scan     interfaces.ScanStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		schedule: NewScheduleStorage(db, logger),
		scan:     NewScanStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// ScheduleStorage returns the Schedule storage interface
func (m *Manager) ScheduleStorage() interfaces.ScheduleStorage {
	return m.schedule
}

// ScanStorage returns the Scan storage interface
func (m *Manager) ScanStorage() interfaces.ScanStorage {
	return m.scan
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

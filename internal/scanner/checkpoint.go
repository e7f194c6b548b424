package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consentry/internal/common"
	"github.com/ternarybob/consentry/internal/models"
)

// CheckpointStore persists enterprise scan checkpoints, one JSON file per
// scan ID under the checkpoint root. Writes are atomic (temp file then
// rename) and serialized: at most one write per store is in flight, on a
// background goroutine off the chunk's critical path.
type CheckpointStore struct {
	root    string
	writeMu sync.Mutex
	logger  arbor.ILogger
}

func NewCheckpointStore(root string) (*CheckpointStore, error) {
	if root == "" {
		root = "./scan_checkpoints"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", root, err)
	}
	return &CheckpointStore{
		root:   root,
		logger: common.GetLogger(),
	}, nil
}

func (s *CheckpointStore) path(scanID string) string {
	return filepath.Join(s.root, scanID+".json")
}

// Save writes the checkpoint atomically. Errors are returned for logging
// but must never fail the scan.
func (s *CheckpointStore) Save(checkpoint *models.Checkpoint) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	checkpoint.Timestamp = time.Now().UTC()
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint for %s: %w", checkpoint.ScanID, err)
	}

	tmp, err := os.CreateTemp(s.root, checkpoint.ScanID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync checkpoint temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path(checkpoint.ScanID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint for %s: %w", checkpoint.ScanID, err)
	}
	return nil
}

// SaveAsync queues a checkpoint write on a background goroutine. A failed
// write is logged and the scan continues.
func (s *CheckpointStore) SaveAsync(checkpoint *models.Checkpoint) {
	go func() {
		if err := s.Save(checkpoint); err != nil {
			s.logger.Warn().
				Str("scan_id", checkpoint.ScanID).
				Err(err).
				Msg("Checkpoint write failed")
		}
	}()
}

// Load reads the checkpoint for scanID. os.IsNotExist(err) distinguishes a
// missing checkpoint from a corrupt one.
func (s *CheckpointStore) Load(scanID string) (*models.Checkpoint, error) {
	data, err := os.ReadFile(s.path(scanID))
	if err != nil {
		return nil, err
	}
	var checkpoint models.Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint for %s: %w", scanID, err)
	}
	return &checkpoint, nil
}

// Delete removes the checkpoint file; missing files are not an error.
func (s *CheckpointStore) Delete(scanID string) error {
	err := os.Remove(s.path(scanID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint for %s: %w", scanID, err)
	}
	return nil
}

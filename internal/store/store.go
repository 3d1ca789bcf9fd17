// Package store persists workspace snapshots to disk. Each project gets
// one JSON record holding the snapshot, opaque caller metadata (e.g. a
// conversation transcript), and a save timestamp. Writes are atomic
// (temp file + rename) and guarded by file locks so concurrent server
// processes cannot interleave partial records. A snapshot is always
// saved between commands, never concurrently with an in-flight
// mutation; the workspace layer guarantees that.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/previewfs/previewfs/internal/vfs"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxStorageSize caps a single persisted record (50MB).
	DefaultMaxStorageSize = int64(50 * 1024 * 1024)

	DataPathEnvVar       = "PREVIEWFS_DATA_PATH"
	MaxStorageSizeEnvVar = "PREVIEWFS_MAX_STORAGE_SIZE"

	recordFileName = "workspace.json"
)

// Record is the persisted unit for one project.
type Record struct {
	Snapshot vfs.Snapshot    `json:"snapshot"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	SavedAt  time.Time       `json:"saved_at"`
}

// Store handles file I/O for workspace records under a base directory.
type Store struct {
	basePath       string
	logger         *logrus.Logger
	maxStorageSize int64
}

// NewStore creates a store rooted at PREVIEWFS_DATA_PATH, defaulting to
// ~/.previewfs/workspaces.
func NewStore(logger *logrus.Logger) (*Store, error) {
	basePath := os.Getenv(DataPathEnvVar)
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		basePath = filepath.Join(home, ".previewfs", "workspaces")
	}
	return NewStoreAt(logger, basePath), nil
}

// NewStoreAt creates a store rooted at an explicit directory.
func NewStoreAt(logger *logrus.Logger, basePath string) *Store {
	s := &Store{basePath: basePath, logger: logger, maxStorageSize: DefaultMaxStorageSize}
	if sizeStr := os.Getenv(MaxStorageSizeEnvVar); sizeStr != "" {
		if size, err := strconv.ParseInt(sizeStr, 10, 64); err == nil && size > 0 {
			s.maxStorageSize = size
		}
	}
	return s
}

// BasePath returns the directory the store writes under.
func (s *Store) BasePath() string {
	return s.basePath
}

// validateProject rejects project identifiers that could escape the
// base directory or collide with lock/temp files. Identifiers come from
// the transport boundary and are untrusted.
func validateProject(project string) error {
	if project == "" {
		return fmt.Errorf("project identifier is empty")
	}
	for _, r := range project {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("project identifier %q contains disallowed character %q", project, r)
		}
	}
	return nil
}

func (s *Store) recordPath(project string) string {
	return filepath.Join(s.basePath, project, recordFileName)
}

// Save writes the record for a project atomically under a write lock.
func (s *Store) Save(project string, snap vfs.Snapshot, meta json.RawMessage) error {
	if err := validateProject(project); err != nil {
		return err
	}
	recordPath := s.recordPath(project)
	if err := os.MkdirAll(filepath.Dir(recordPath), 0700); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	data, err := json.Marshal(Record{Snapshot: snap, Metadata: meta, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal workspace record: %w", err)
	}
	if int64(len(data)) > s.maxStorageSize {
		return fmt.Errorf("workspace record is %d bytes, exceeding the %d byte limit (adjust with %s)",
			len(data), s.maxStorageSize, MaxStorageSizeEnvVar)
	}

	fileLock := flock.New(recordPath + ".lock")
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("could not acquire write lock on %s", recordPath)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			s.logger.WithError(err).Warn("Failed to release write lock")
		}
	}()

	tempPath := recordPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempPath, recordPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"project": project,
		"entries": len(snap.Entries),
		"bytes":   len(data),
	}).Debug("Workspace record saved")
	return nil
}

// Load reads the record for a project under a read lock. A project that
// has never been saved loads as an empty record, so callers can treat
// first use and restored use uniformly. A record that fails to parse is
// reported as vfs.ErrMalformedSnapshot so the caller can discard it and
// fall back.
func (s *Store) Load(project string) (Record, error) {
	if err := validateProject(project); err != nil {
		return Record{}, err
	}
	recordPath := s.recordPath(project)
	if _, err := os.Stat(recordPath); os.IsNotExist(err) {
		return Record{Snapshot: vfs.Snapshot{Version: vfs.SnapshotVersion}}, nil
	}

	fileLock := flock.New(recordPath + ".lock")
	locked, err := fileLock.TryRLock()
	if err != nil {
		return Record{}, fmt.Errorf("failed to acquire read lock: %w", err)
	}
	if !locked {
		return Record{}, fmt.Errorf("could not acquire read lock on %s", recordPath)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			s.logger.WithError(err).Warn("Failed to release read lock")
		}
	}()

	data, err := os.ReadFile(recordPath)
	if err != nil {
		return Record{}, fmt.Errorf("failed to read workspace record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", vfs.ErrMalformedSnapshot, err)
	}
	return rec, nil
}

// Exists reports whether a project has a persisted record.
func (s *Store) Exists(project string) bool {
	if err := validateProject(project); err != nil {
		return false
	}
	_, err := os.Stat(s.recordPath(project))
	return err == nil
}

// Backup copies the current record aside with a timestamp suffix, for
// recovery before destructive imports.
func (s *Store) Backup(project string) error {
	if err := validateProject(project); err != nil {
		return err
	}
	recordPath := s.recordPath(project)
	data, err := os.ReadFile(recordPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read record for backup: %w", err)
	}
	backupPath := recordPath + ".backup." + time.Now().Format("20060102_150405")
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	s.logger.WithField("backup_path", backupPath).Info("Workspace record backed up")
	return nil
}

// Delete removes a project's record and its directory.
func (s *Store) Delete(project string) error {
	if err := validateProject(project); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Dir(s.recordPath(project)))
}

// Package store persists the last synced remote manifest.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
)

// FileName is the table file created under the data directory.
const FileName = "remote_catalogs.yaml"

// tableVersion is the current on-disk format.
const tableVersion = 1

// Store errors.
var (
	ErrTableCorrupt = errors.New("remote catalog table is corrupt")
	ErrSaveFailed   = errors.New("failed to save remote catalog table")
)

type tableDTO struct {
	Version  int              `yaml:"version"`
	SyncedAt time.Time        `yaml:"synced_at"`
	Catalogs []catalog.Remote `yaml:"catalogs"`
}

// RemoteTable keeps the remote manifest in one YAML file. ReplaceAll writes
// a temporary file and renames it over the table, so readers see either the
// old rows or the new rows, never a mix.
type RemoteTable struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewRemoteTable creates a table stored at path.
func NewRemoteTable(path string) *RemoteTable {
	return &RemoteTable{path: path, now: time.Now}
}

// InDir creates a table named FileName in dir.
func InDir(dir string) *RemoteTable {
	return NewRemoteTable(filepath.Join(dir, FileName))
}

// Path returns the table file path.
func (t *RemoteTable) Path() string {
	return t.path
}

// Load returns the persisted rows, in the order they were written. A missing
// file is an empty table.
func (t *RemoteTable) Load(_ context.Context) ([]catalog.Remote, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dto, err := t.read()
	if err != nil {
		return nil, err
	}
	if dto.Catalogs == nil {
		return []catalog.Remote{}, nil
	}
	return dto.Catalogs, nil
}

// SyncedAt returns when the table was last replaced, zero if never.
func (t *RemoteTable) SyncedAt(_ context.Context) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dto, err := t.read()
	if err != nil {
		return time.Time{}, err
	}
	return dto.SyncedAt, nil
}

// ReplaceAll deletes every row and inserts list in one commit. A context
// cancelled before the commit leaves the table untouched.
func (t *RemoteTable) ReplaceAll(ctx context.Context, list []catalog.Remote) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	dto := tableDTO{
		Version:  tableVersion,
		SyncedAt: t.now().UTC(),
		Catalogs: list,
	}
	data, err := yaml.Marshal(&dto)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %w", ErrSaveFailed, err)
	}

	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, t.path); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return nil
}

func (t *RemoteTable) read() (tableDTO, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return tableDTO{}, nil
		}
		return tableDTO{}, fmt.Errorf("failed to read remote catalog table: %w", err)
	}

	var dto tableDTO
	if err := yaml.Unmarshal(data, &dto); err != nil {
		return tableDTO{}, fmt.Errorf("%w: %w", ErrTableCorrupt, err)
	}
	if dto.Version > tableVersion {
		return tableDTO{}, fmt.Errorf("%w: unsupported version %d", ErrTableCorrupt, dto.Version)
	}
	return dto, nil
}

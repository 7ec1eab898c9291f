package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	dErrors "argus/pkg/domain-errors"
)

const fileFormat = 1

var ErrSnapshotCorrupt = errors.New("snapshot corrupt")

// Source says where a loaded snapshot came from.
type Source string

const (
	SourcePrimary Source = "primary"
	SourceBackup  Source = "backup"
	SourceReplay  Source = "replay"
)

type fileEnvelope struct {
	Format int    `json:"format"`
	State  *State `json:"state"`
}

// FileStore keeps the snapshot at Path with the previous one at Path+".bak".
type FileStore struct {
	path   string
	logger *slog.Logger
}

type FileStoreOption func(*FileStore)

func WithFileLogger(logger *slog.Logger) FileStoreOption {
	return func(f *FileStore) {
		f.logger = logger
	}
}

func NewFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	f := &FileStore{path: filepath.Clean(path), logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FileStore) Path() string       { return f.path }
func (f *FileStore) BackupPath() string { return f.path + ".bak" }
func (f *FileStore) tmpPath() string    { return f.path + ".tmp" }

// Save writes state atomically: tmp file, fsync, move the current primary to
// .bak, rename tmp over the primary.
func (f *FileStore) Save(state *State) error {
	if state == nil {
		return fmt.Errorf("snapshot state is required")
	}
	raw, err := json.Marshal(fileEnvelope{Format: fileFormat, State: state})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.OpenFile(f.tmpPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open snapshot tmp: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync snapshot tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot tmp: %w", err)
	}

	if err := os.Rename(f.path, f.BackupPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("rotate snapshot backup: %w", err)
	}
	if err := os.Rename(f.tmpPath(), f.path); err != nil {
		return fmt.Errorf("install snapshot: %w", err)
	}
	return nil
}

// Load reads the primary, falling back to the backup. It returns an error
// carrying CodeSnapshotCorrupt when neither is usable; callers then replay.
func (f *FileStore) Load() (*State, Source, error) {
	primary, primaryErr := readSnapshot(f.path)
	if primaryErr == nil {
		return primary, SourcePrimary, nil
	}
	backup, backupErr := readSnapshot(f.BackupPath())
	if backupErr == nil {
		f.logger.Warn("primary snapshot unusable, loaded backup",
			"path", f.path,
			"error", primaryErr,
		)
		return backup, SourceBackup, nil
	}
	return nil, SourceReplay, dErrors.Wrap(
		errors.Join(primaryErr, backupErr),
		dErrors.CodeSnapshotCorrupt,
		"no usable snapshot",
	)
}

func readSnapshot(path string) (*State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var env fileEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSnapshotCorrupt, path, err)
	}
	if env.Format != fileFormat || env.State == nil {
		return nil, fmt.Errorf("%w: %s: unsupported format %d", ErrSnapshotCorrupt, path, env.Format)
	}
	if env.State.Seq < 0 {
		return nil, fmt.Errorf("%w: %s: negative seq", ErrSnapshotCorrupt, path)
	}
	env.State.normalize()
	return env.State, nil
}

package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileStore implements Store backed by a YAML file on disk. It uses SHA-256
// content hashing for optimistic concurrency and atomic writes
// (write-to-temp + rename) to avoid partial writes.
type FileStore struct {
	path     string
	maxBytes int
	logger   *slog.Logger
	mu       sync.Mutex
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithMaxBlobBytes overrides the size ceiling on the marshaled config.
func WithMaxBlobBytes(n int) FileStoreOption {
	return func(s *FileStore) {
		s.maxBytes = n
	}
}

// WithLogger sets the logger used by the watcher.
func WithLogger(logger *slog.Logger) FileStoreOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// NewFileStore creates a FileStore for the given path. The file does not
// need to exist yet; Load returns an empty, incomplete config for a missing
// file so a fresh install starts from the UNINITIALIZED state.
func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		path:     path,
		maxBytes: DefaultMaxBlobBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file path managed by this store.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and parses the config file, returning it together with a
// version token (SHA-256 hex digest of the raw bytes). A missing file yields
// a zero-value config whose version matches what Save expects for first
// writes.
func (s *FileStore) Load(_ context.Context) (*SyncConfig, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return nil, "", err
	}

	version := hashBytes(data)

	var cfg SyncConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, "", fmt.Errorf("config store: failed to parse %s: %w", s.path, err)
	}

	return &cfg, version, nil
}

// Save marshals the config and writes it atomically. The provided version
// must match the current content hash or ErrVersionConflict is returned.
// The marshaled blob must fit under the size ceiling.
func (s *FileStore) Save(_ context.Context, cfg *SyncConfig, version string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentData, err := s.readLocked()
	if err != nil {
		return "", err
	}
	if hashBytes(currentData) != version {
		return "", ErrVersionConflict
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("config store: failed to marshal config: %w", err)
	}
	if len(data) > s.maxBytes {
		return "", fmt.Errorf("config store: %d bytes: %w", len(data), ErrBlobTooLarge)
	}

	if err := s.writeAtomicLocked(data); err != nil {
		return "", err
	}

	return hashBytes(data), nil
}

// Watch emits a ChangeEvent whenever the config file is written or replaced
// externally. The channel closes when ctx is cancelled.
func (s *FileStore) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config store: failed to create watcher: %w", err)
	}

	// Watch the directory rather than the file: atomic rename-in-place
	// replaces the inode, which breaks a direct file watch.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config store: failed to watch %s: %w", filepath.Dir(s.path), err)
	}

	events := make(chan ChangeEvent, 1)
	go func() {
		defer close(events)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}

				change := ChangeEvent{}
				if _, version, err := s.Load(ctx); err != nil {
					change.Error = err
				} else {
					change.Version = version
				}

				select {
				case events <- change:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("config watcher error", "path", s.path, "error", err)
			}
		}
	}()

	return events, nil
}

// readLocked returns the raw file bytes, treating a missing file as empty.
// Must be called with s.mu held.
func (s *FileStore) readLocked() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config store: failed to read %s: %w", s.path, err)
	}
	if len(data) > s.maxBytes {
		return nil, fmt.Errorf("config store: %s: %w", s.path, ErrBlobTooLarge)
	}
	return data, nil
}

// writeAtomicLocked writes data to the config path via a temp file in the
// same directory followed by a rename. Must be called with s.mu held.
func (s *FileStore) writeAtomicLocked(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".svgsync-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("config store: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("config store: failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("config store: failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config store: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("config store: failed to rename temp file: %w", err)
	}
	tmpName = "" // prevent deferred Remove

	return nil
}

// hashBytes returns the SHA-256 hex digest of data.
func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

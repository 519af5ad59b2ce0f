// Package config holds the persisted application state shared with the
// host: the setup-complete pointer for the managed model and the legacy
// inline entries awaiting migration. The state is an explicit value loaded
// and saved through a Store; nothing in this repository mutates it through
// package-level globals.
package config

import (
	"context"
	"errors"

	"github.com/vectorglue/svgsync/internal/records"
)

// DefaultMaxBlobBytes is the host-imposed ceiling on the marshaled
// configuration blob. Legacy inline entries live inside this bound, which is
// the reason the migration engine exists.
const DefaultMaxBlobBytes = 256 << 10

// ErrVersionConflict is returned when a Save detects the stored config was
// modified since the caller last loaded it (optimistic concurrency).
var ErrVersionConflict = errors.New("config version conflict: state was modified since last load")

// ErrBlobTooLarge is returned when the marshaled config exceeds the ceiling.
var ErrBlobTooLarge = errors.New("config blob exceeds maximum allowed size")

// LegacyEntry is one item of the deprecated inline storage format: the SVG
// source embedded directly in the configuration blob, optionally already
// referencing an uploaded asset.
type LegacyEntry struct {
	ID       string            `yaml:"id" json:"id"`
	Filename string            `yaml:"filename" json:"filename"`
	Source   string            `yaml:"source" json:"source"`
	AssetRef *records.AssetRef `yaml:"assetRef,omitempty" json:"assetRef,omitempty"`
}

// SyncConfig is the persisted configuration surface. SetupComplete and
// ManagedModelID form the managed-schema pointer; it starts incomplete and
// becomes complete exactly once, either through explicit provisioning or
// through bootstrap discovery.
type SyncConfig struct {
	SetupComplete  bool          `yaml:"setupComplete" json:"setupComplete"`
	ManagedModelID string        `yaml:"managedModelId,omitempty" json:"managedModelId,omitempty"`
	LegacyEntries  []LegacyEntry `yaml:"legacyEntries,omitempty" json:"legacyEntries,omitempty"`
}

// ChangeEvent is emitted by Watch when the stored config changes externally.
type ChangeEvent struct {
	// Version is the new content hash after the change.
	Version string

	// Error is set if the watcher failed to read the changed config.
	Error error
}

// Store abstracts persistent storage for the configuration surface.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load reads the current configuration and returns it with a version
	// token used for optimistic concurrency on Save.
	Load(ctx context.Context) (*SyncConfig, string, error)

	// Save writes the configuration back. The version must match the
	// currently stored one or ErrVersionConflict is returned. The new
	// version token is returned on success.
	Save(ctx context.Context, cfg *SyncConfig, version string) (string, error)

	// Watch emits events when the stored config changes externally. The
	// channel closes when ctx is cancelled. Implementations without watch
	// support may return a nil channel and nil error.
	Watch(ctx context.Context) (<-chan ChangeEvent, error)
}

// PruneLegacyEntries removes from cfg exactly the legacy entries whose ids
// appear in migratedIDs, preserving the order of the remainder. Callers must
// prune only the ids reported as migrated; pruning anything else loses data,
// pruning less re-migrates on the next run.
func PruneLegacyEntries(cfg *SyncConfig, migratedIDs []string) {
	if len(migratedIDs) == 0 {
		return
	}

	migrated := make(map[string]struct{}, len(migratedIDs))
	for _, id := range migratedIDs {
		migrated[id] = struct{}{}
	}

	remaining := cfg.LegacyEntries[:0]
	for _, e := range cfg.LegacyEntries {
		if _, ok := migrated[e.ID]; !ok {
			remaining = append(remaining, e)
		}
	}
	cfg.LegacyEntries = remaining
}

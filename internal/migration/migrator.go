// Package migration converts legacy inline entries, embedded in the bounded
// configuration blob by earlier versions of the system, into per-asset
// managed records.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vectorglue/svgsync/internal/config"
	"github.com/vectorglue/svgsync/internal/sync"
)

// ErrNotProvisioned is returned by Run when the managed schema pointer is
// not complete yet.
var ErrNotProvisioned = errors.New("migration: managed model is not provisioned")

// MigratedRecord links a legacy entry to the record created for it.
type MigratedRecord struct {
	EntryID  string `json:"entryId"`
	RecordID string `json:"recordId"`
	AssetID  string `json:"assetId,omitempty"`
}

// EntryFailure reports one entry that could not be migrated.
type EntryFailure struct {
	EntryID string `json:"entryId"`
	Reason  string `json:"reason"`
}

// Result is the outcome of one migration batch. Migrated preserves the
// relative order of the input; Failed lists the entries left behind in the
// legacy blob for a future retry.
type Result struct {
	Migrated []MigratedRecord `json:"migrated"`
	Failed   []EntryFailure   `json:"failed"`
}

// FailureCount returns the number of entries that failed.
func (r Result) FailureCount() int {
	return len(r.Failed)
}

// Migrator moves legacy entries into managed records, reusing the sync
// engine's creation path.
type Migrator struct {
	engine   *sync.Engine
	cfgStore config.Store
	logger   *slog.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the migrator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) {
		m.logger = logger
	}
}

// NewMigrator creates a Migrator. cfgStore may be nil when only
// MigrateLegacyEntries is used (the caller then owns pruning).
func NewMigrator(engine *sync.Engine, cfgStore config.Store, opts ...Option) *Migrator {
	m := &Migrator{
		engine:   engine,
		cfgStore: cfgStore,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MigrateLegacyEntries attempts to create a managed record for each entry
// independently. An entry that already references an asset keeps that
// reference without a new upload; one without gets a fresh upload through
// the explicit creation path. Per-entry failures are logged and collected;
// they never abort the batch. Migrated preserves input order with no
// deduplication.
//
// Callers must remove from the legacy blob exactly the entries reported as
// migrated; that is what makes repeated invocations idempotent. The engine
// does not defend against a caller that prunes the wrong subset.
func (m *Migrator) MigrateLegacyEntries(ctx context.Context, managedModelID string, entries []config.LegacyEntry) Result {
	result := Result{Migrated: []MigratedRecord{}, Failed: []EntryFailure{}}

	for _, entry := range entries {
		migrated, err := m.migrateEntry(ctx, managedModelID, entry)
		if err != nil {
			m.logger.Error("legacy entry migration failed", "entry", entry.ID, "filename", entry.Filename, "error", err)
			result.Failed = append(result.Failed, EntryFailure{EntryID: entry.ID, Reason: err.Error()})
			continue
		}
		result.Migrated = append(result.Migrated, migrated)
	}

	m.logger.Info("legacy migration batch finished",
		"migrated", len(result.Migrated), "failed", len(result.Failed))
	return result
}

func (m *Migrator) migrateEntry(ctx context.Context, modelID string, entry config.LegacyEntry) (MigratedRecord, error) {
	if entry.AssetRef != nil {
		rec, err := m.engine.CreateRecordWithAsset(ctx, modelID, entry.Source, entry.Filename, *entry.AssetRef)
		if err != nil {
			return MigratedRecord{}, err
		}
		return MigratedRecord{EntryID: entry.ID, RecordID: rec.ID, AssetID: entry.AssetRef.AssetID}, nil
	}

	rec, err := m.engine.CreateManagedAsset(ctx, modelID, entry.Source, entry.Filename)
	if err != nil {
		return MigratedRecord{}, err
	}

	migrated := MigratedRecord{EntryID: entry.ID, RecordID: rec.ID}
	if rec.AssetRef != nil {
		migrated.AssetID = rec.AssetRef.AssetID
	}
	return migrated, nil
}

// Run executes a full migration pass against the persisted configuration:
// load, migrate, prune exactly the migrated entries, save. A partial
// migration leaves the failed entries in the blob and still persists the
// pruned remainder.
func (m *Migrator) Run(ctx context.Context) (Result, error) {
	cfg, version, err := m.cfgStore.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("migration: loading configuration: %w", err)
	}

	if !cfg.SetupComplete || cfg.ManagedModelID == "" {
		return Result{}, ErrNotProvisioned
	}

	if len(cfg.LegacyEntries) == 0 {
		return Result{Migrated: []MigratedRecord{}, Failed: []EntryFailure{}}, nil
	}

	result := m.MigrateLegacyEntries(ctx, cfg.ManagedModelID, cfg.LegacyEntries)

	migratedIDs := make([]string, 0, len(result.Migrated))
	for _, mr := range result.Migrated {
		migratedIDs = append(migratedIDs, mr.EntryID)
	}
	config.PruneLegacyEntries(cfg, migratedIDs)

	if _, err := m.cfgStore.Save(ctx, cfg, version); err != nil {
		// The records exist; only the pruning failed to persist. A retry
		// would double-create, so surface this loudly.
		return result, fmt.Errorf("migration: persisting pruned legacy entries: %w", err)
	}

	return result, nil
}

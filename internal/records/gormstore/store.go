// Package gormstore provides a gorm-backed implementation of the record
// store, used when the server runs in standalone mode against its own
// database instead of a remote host API.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vectorglue/svgsync/internal/records"
)

// recordRow is the persisted shape of a managed record.
type recordRow struct {
	ID        string    `gorm:"primaryKey;column:id"`
	ModelID   string    `gorm:"column:model_id;index"`
	Name      string    `gorm:"column:name"`
	Source    string    `gorm:"column:source"`
	AssetID   *string   `gorm:"column:asset_id;index"`
	AssetURL  *string   `gorm:"column:asset_url"`
	Draft     bool      `gorm:"column:draft;index"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (recordRow) TableName() string { return "svg_records" }

// modelRow is the persisted shape of a managed model.
type modelRow struct {
	ID        string    `gorm:"primaryKey;column:id"`
	Key       string    `gorm:"column:key;uniqueIndex"`
	Name      string    `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (modelRow) TableName() string { return "svg_models" }

// Store implements records.Store and records.ModelFinder on a gorm database.
type Store struct {
	db *gorm.DB
}

// Open connects to the database identified by dsn and migrates the schema.
// DSNs starting with "postgres://" or "postgresql://" select the postgres
// driver; anything else is treated as a sqlite path (":memory:" works).
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: failed to open database: %w", err)
	}

	return NewWithDB(db)
}

// NewWithDB wraps an existing gorm connection and migrates the schema.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&recordRow{}, &modelRow{}); err != nil {
		return nil, fmt.Errorf("gormstore: failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Find returns the record with the given id.
func (s *Store) Find(ctx context.Context, id string) (*records.Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, records.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gormstore: failed to find record %s: %w", id, err)
	}
	return rowToRecord(row), nil
}

// Create inserts a new record under the given model.
func (s *Store) Create(ctx context.Context, modelID string, attrs records.Attributes) (*records.Record, error) {
	row := recordRow{
		ID:      uuid.NewString(),
		ModelID: modelID,
	}
	applyAttrs(&row, attrs)

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("gormstore: failed to create record: %w", err)
	}
	return rowToRecord(row), nil
}

// Update applies a partial attribute set to an existing record. Nil fields
// are left as stored.
func (s *Store) Update(ctx context.Context, id string, attrs records.Attributes) (*records.Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, records.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gormstore: failed to load record %s: %w", id, err)
	}

	applyAttrs(&row, attrs)

	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return nil, fmt.Errorf("gormstore: failed to update record %s: %w", id, err)
	}
	return rowToRecord(row), nil
}

// Destroy deletes a record. It reports false when the id matched nothing.
func (s *Store) Destroy(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&recordRow{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("gormstore: failed to destroy record %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// List returns records for a model. The "current" version selector includes
// unpublished drafts; "published" excludes them.
func (s *Store) List(ctx context.Context, opts records.ListOptions) ([]records.Record, error) {
	q := s.db.WithContext(ctx).Model(&recordRow{}).Order("created_at, id")

	if opts.ModelID != "" {
		q = q.Where("model_id = ?", opts.ModelID)
	}
	if opts.Version == records.VersionPublished {
		q = q.Where("draft = ?", false)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	var rows []recordRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: failed to list records: %w", err)
	}

	out := make([]records.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, *rowToRecord(row))
	}
	return out, nil
}

// FindModelByKey returns the model registered under the fixed schema key.
func (s *Store) FindModelByKey(ctx context.Context, key string) (*records.Model, error) {
	var row modelRow
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, records.ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gormstore: failed to find model %s: %w", key, err)
	}
	return &records.Model{ID: row.ID, Key: row.Key, Name: row.Name}, nil
}

// ProvisionModel creates a managed model under the given schema key. This is
// the standalone-mode Model Provisioner; it fails if the key already exists.
func (s *Store) ProvisionModel(ctx context.Context, key, name string) (*records.Model, error) {
	row := modelRow{
		ID:   uuid.NewString(),
		Key:  key,
		Name: name,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("gormstore: failed to provision model %s: %w", key, err)
	}
	return &records.Model{ID: row.ID, Key: row.Key, Name: row.Name}, nil
}

func applyAttrs(row *recordRow, attrs records.Attributes) {
	if attrs.Name != nil {
		row.Name = *attrs.Name
	}
	if attrs.Source != nil {
		row.Source = *attrs.Source
	}
	if attrs.AssetRef != nil {
		assetID := attrs.AssetRef.AssetID
		assetURL := attrs.AssetRef.URL
		row.AssetID = &assetID
		row.AssetURL = &assetURL
	}
	if attrs.Draft != nil {
		row.Draft = *attrs.Draft
	}
}

func rowToRecord(row recordRow) *records.Record {
	rec := &records.Record{
		ID:      row.ID,
		ModelID: row.ModelID,
		Name:    row.Name,
		Source:  row.Source,
		Draft:   row.Draft,
	}
	if row.AssetID != nil {
		rec.AssetRef = &records.AssetRef{AssetID: *row.AssetID}
		if row.AssetURL != nil {
			rec.AssetRef.URL = *row.AssetURL
		}
	}
	return rec
}

// Compile-time interface checks.
var (
	_ records.Store       = (*Store)(nil)
	_ records.ModelFinder = (*Store)(nil)
)

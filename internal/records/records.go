// Package records defines the Record Store adapter: the structured-record
// CRUD surface the sync and migration engines operate against, plus the
// mutation payload type accepted at the hook boundary.
package records

import (
	"context"
	"errors"
)

// ErrRecordNotFound is returned when a record lookup matches nothing.
var ErrRecordNotFound = errors.New("record not found")

// ErrModelNotFound is returned when no model matches the given schema key.
var ErrModelNotFound = errors.New("model not found")

// Version selectors for List. VersionCurrent includes unpublished drafts.
const (
	VersionCurrent   = "current"
	VersionPublished = "published"
)

// AssetRef points a record at its binary rendition in the asset library.
// AssetID is stable for the asset's lifetime; URL tracks the current content
// address and changes when content is swapped in place.
type AssetRef struct {
	AssetID string `json:"assetId" yaml:"assetId"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Record is a managed structured record: a display name, the inline SVG
// source, and an optional reference to the binary rendition.
type Record struct {
	ID       string    `json:"id"`
	ModelID  string    `json:"modelId"`
	Name     string    `json:"name"`
	Source   string    `json:"source"`
	AssetRef *AssetRef `json:"assetRef,omitempty"`
	Draft    bool      `json:"draft"`
}

// Attributes is a partial attribute set for create/update calls. Nil fields
// are left untouched by Update; mutation payloads commonly carry only the
// fields that changed.
type Attributes struct {
	Name     *string   `json:"name,omitempty"`
	Source   *string   `json:"source,omitempty"`
	AssetRef *AssetRef `json:"assetRef,omitempty"`
	Draft    *bool     `json:"draft,omitempty"`
}

// MutationEvent is an incoming upsert request before it is committed.
// RecordID is empty for brand-new records. The attribute set is partial.
// Fields the decoder does not recognize are dropped at the JSON boundary;
// the engines never probe untyped payloads.
type MutationEvent struct {
	RecordID string     `json:"entityId,omitempty"`
	ModelID  string     `json:"itemType"`
	Attrs    Attributes `json:"attributes"`
}

// Model identifies a managed schema: the store-generated id plus the fixed
// key it can be discovered by.
type Model struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ListOptions selects records for List.
type ListOptions struct {
	ModelID string
	Limit   int
	Version string // VersionCurrent or VersionPublished; defaults to VersionCurrent
}

// Store is the Record Store adapter consumed by the engines.
type Store interface {
	Find(ctx context.Context, id string) (*Record, error)
	Create(ctx context.Context, modelID string, attrs Attributes) (*Record, error)
	Update(ctx context.Context, id string, attrs Attributes) (*Record, error)
	Destroy(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, opts ListOptions) ([]Record, error)
}

// ModelFinder locates a managed model by its fixed schema key. Used by
// bootstrap reconciliation to adopt a previously provisioned schema.
type ModelFinder interface {
	FindModelByKey(ctx context.Context, key string) (*Model, error)
}

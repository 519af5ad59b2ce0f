// Package assets defines the Asset Store adapter: the content-addressed
// library holding binary renditions of SVG sources.
package assets

import (
	"context"
	"errors"
)

// ErrAssetNotFound is returned when an asset id matches nothing.
var ErrAssetNotFound = errors.New("asset not found")

// Object is a stored asset. ID is immutable for the asset's lifetime;
// Address is the current content location and changes when content is
// replaced in place.
type Object struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Store is the Asset Store adapter consumed by the sync and migration
// engines.
type Store interface {
	// CreateFromContent uploads content under a new id and returns the
	// stored object.
	CreateFromContent(ctx context.Context, content []byte, filename string) (*Object, error)

	// UpdateContent replaces the content behind id with the content at
	// address. The id exposed to record references never changes.
	UpdateContent(ctx context.Context, id, address string) error

	// Destroy removes the asset with the given id.
	Destroy(ctx context.Context, id string) error
}

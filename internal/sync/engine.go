// Package sync implements the synchronization engine that keeps a record's
// inline SVG source and its binary rendition in the asset library
// consistent. The engine is a side-channel observer of record mutations: it
// never blocks, gates, or fails the record commit that triggered it.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vectorglue/svgsync/internal/assets"
	"github.com/vectorglue/svgsync/internal/records"
	"github.com/vectorglue/svgsync/internal/svg"
)

// ErrFetchFailed wraps failures to load the current record state while
// resolving an asset reference.
var ErrFetchFailed = errors.New("sync: failed to fetch current record")

// ErrUploadFailed wraps asset create/replace failures.
var ErrUploadFailed = errors.New("sync: asset upload failed")

// Status describes which branch a sync attempt took.
type Status string

const (
	// StatusSynced means the swap completed and the asset now carries the
	// new content.
	StatusSynced Status = "synced"

	// StatusSkippedOtherModel means the event targeted a model this engine
	// does not manage.
	StatusSkippedOtherModel Status = "skipped_other_model"

	// StatusSkippedInvalid means the event carried no source or a source
	// that is not well-formed SVG. Silent no-op.
	StatusSkippedInvalid Status = "skipped_invalid"

	// StatusSkippedNoRef means no asset reference could be resolved. The
	// engine never creates a first-time asset from a mutation.
	StatusSkippedNoRef Status = "skipped_no_ref"

	// StatusFailedFetch means the stored record could not be loaded while
	// resolving the asset reference.
	StatusFailedFetch Status = "failed_fetch"

	// StatusFailedUpload means the asset create or replace call failed.
	// The original asset content is untouched.
	StatusFailedUpload Status = "failed_upload"
)

// Outcome reports the result of one sync attempt. Err is informational;
// the engine has already caught and logged it.
type Outcome struct {
	Status Status

	// AssetID is the stable id whose content was replaced, when synced.
	AssetID string

	// OrphanedTempID is set when the temporary asset could not be deleted
	// after a successful swap. The leak is accepted, not retried.
	OrphanedTempID string

	Err error
}

// Engine performs swap-in-place synchronization and explicit asset
// creation. It holds no locks and coordinates no cross-call state; under
// concurrent syncs of the same asset the last completing swap wins.
type Engine struct {
	records records.Store
	assets  assets.Store
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an Engine over the given adapters.
func NewEngine(recordStore records.Store, assetStore assets.Store, opts ...Option) *Engine {
	e := &Engine{
		records: recordStore,
		assets:  assetStore,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncFromMutation refreshes the binary rendition of the asset referenced
// by a record mutation. Every failure is caught here and reported through
// the Outcome; nothing propagates to the caller's commit path.
//
// The engine has no knowledge of which model it manages; managedModelID is
// supplied by the caller and gates the whole operation.
func (e *Engine) SyncFromMutation(ctx context.Context, ev records.MutationEvent, managedModelID string) Outcome {
	if managedModelID == "" || ev.ModelID != managedModelID {
		return Outcome{Status: StatusSkippedOtherModel}
	}

	if ev.Attrs.Source == nil {
		return Outcome{Status: StatusSkippedInvalid}
	}
	source := *ev.Attrs.Source
	if err := svg.Validate(source); err != nil {
		// ValidationSkip: not an operational error, the commit proceeds
		// with whatever the user typed.
		e.logger.Debug("skipping sync, source not usable", "record", ev.RecordID, "reason", err)
		return Outcome{Status: StatusSkippedInvalid, Err: err}
	}

	ref := ev.Attrs.AssetRef
	name := ""
	if ev.Attrs.Name != nil {
		name = *ev.Attrs.Name
	}

	// Mutation payloads are commonly partial; recover the reference and
	// display name from the stored record with a single fetch.
	if ref == nil && ev.RecordID != "" {
		rec, err := e.records.Find(ctx, ev.RecordID)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrFetchFailed, err)
			e.logger.Error("sync aborted", "record", ev.RecordID, "error", err)
			return Outcome{Status: StatusFailedFetch, Err: err}
		}
		ref = rec.AssetRef
		if name == "" {
			name = rec.Name
		}
	}

	if ref == nil {
		// Brand-new record or record without a rendition: first-time
		// assets are created only through the explicit upload path.
		return Outcome{Status: StatusSkippedNoRef}
	}

	return e.swapInPlace(ctx, ref.AssetID, source, svg.Filename(name))
}

// swapInPlace replaces the content behind assetID while preserving the id:
// create a temporary asset with the new content, point the existing asset
// at the temporary content address, then delete the temporary asset.
func (e *Engine) swapInPlace(ctx context.Context, assetID, source, filename string) Outcome {
	tmp, err := e.assets.CreateFromContent(ctx, []byte(source), filename)
	if err != nil {
		err = fmt.Errorf("%w: creating temporary asset: %v", ErrUploadFailed, err)
		e.logger.Error("sync aborted, original asset untouched", "asset", assetID, "error", err)
		return Outcome{Status: StatusFailedUpload, Err: err}
	}

	if err := e.assets.UpdateContent(ctx, assetID, tmp.Address); err != nil {
		err = fmt.Errorf("%w: replacing content of %s: %v", ErrUploadFailed, assetID, err)
		e.logger.Error("sync aborted, original asset untouched", "asset", assetID, "temp", tmp.ID, "error", err)
		return Outcome{Status: StatusFailedUpload, Err: err}
	}

	out := Outcome{Status: StatusSynced, AssetID: assetID}
	if err := e.assets.Destroy(ctx, tmp.ID); err != nil {
		// Accepted leak: the swap already landed, the temp object is
		// simply left behind.
		e.logger.Warn("failed to delete temporary asset, leaving orphan", "temp", tmp.ID, "error", err)
		out.OrphanedTempID = tmp.ID
	}

	e.logger.Info("asset content synchronized", "asset", assetID, "filename", filename)
	return out
}

// CreateManagedAsset uploads well-formed SVG content as a new asset and
// creates the record referencing it. If record creation fails after the
// upload succeeded the asset is left orphaned; the error reports it but no
// compensating delete is attempted.
func (e *Engine) CreateManagedAsset(ctx context.Context, managedModelID, source, name string) (*records.Record, error) {
	if err := svg.Validate(source); err != nil {
		return nil, err
	}

	filename := svg.Filename(name)
	obj, err := e.assets.CreateFromContent(ctx, []byte(source), filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	rec, err := e.createRecord(ctx, managedModelID, source, name, records.AssetRef{AssetID: obj.ID, URL: obj.Address})
	if err != nil {
		e.logger.Error("record creation failed after upload, asset left orphaned", "asset", obj.ID, "error", err)
		return nil, fmt.Errorf("creating record (asset %s orphaned): %w", obj.ID, err)
	}
	return rec, nil
}

// CreateRecordWithAsset creates a record that reuses an already uploaded
// asset reference. Migration uses this to carry existing renditions over
// without a redundant upload.
func (e *Engine) CreateRecordWithAsset(ctx context.Context, managedModelID, source, name string, ref records.AssetRef) (*records.Record, error) {
	if err := svg.Validate(source); err != nil {
		return nil, err
	}
	return e.createRecord(ctx, managedModelID, source, name, ref)
}

func (e *Engine) createRecord(ctx context.Context, modelID, source, name string, ref records.AssetRef) (*records.Record, error) {
	return e.records.Create(ctx, modelID, records.Attributes{
		Name:     &name,
		Source:   &source,
		AssetRef: &ref,
	})
}

// Package bootstrap recovers or establishes the managed-schema pointer. A
// setup interrupted after schema creation but before the pointer was
// persisted is self-healed by discovering the schema under its fixed key;
// a genuinely missing schema requires an explicit provisioning call.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vectorglue/svgsync/internal/config"
	"github.com/vectorglue/svgsync/internal/records"
)

// SchemaKey is the fixed key the managed model is registered and discovered
// under. It is baked into the system, independent of the model's generated
// id.
const SchemaKey = "svg_asset"

// ManagedModelName is the display name used when provisioning the model.
const ManagedModelName = "SVG Asset"

// ErrNotProvisioned is returned when reconciliation finds no managed schema
// and no explicit provisioning has happened.
var ErrNotProvisioned = errors.New("bootstrap: managed schema not provisioned")

// State of the reconciler. READY is terminal.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateReady         State = "READY"
)

// ModelProvisioner is the one-shot external call that creates the managed
// model and its fields. The reconciler invokes it only through Provision,
// never during discovery.
type ModelProvisioner interface {
	ProvisionModel(ctx context.Context, key, name string) (*records.Model, error)
}

// Reconciler is a small state machine over the persisted managed-schema
// pointer: UNINITIALIZED -> READY either by discovering an existing schema
// or by explicit provisioning.
type Reconciler struct {
	cfgStore    config.Store
	finder      records.ModelFinder
	provisioner ModelProvisioner
	logger      *slog.Logger

	mu      sync.Mutex
	state   State
	modelID string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the reconciler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// NewReconciler creates a Reconciler. provisioner may be nil when explicit
// provisioning is handled elsewhere; Provision then fails cleanly.
func NewReconciler(cfgStore config.Store, finder records.ModelFinder, provisioner ModelProvisioner, opts ...Option) *Reconciler {
	r := &Reconciler{
		cfgStore:    cfgStore,
		finder:      finder,
		provisioner: provisioner,
		logger:      slog.Default(),
		state:       StateUninitialized,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current reconciler state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ManagedModelID returns the adopted model id, or "" while UNINITIALIZED.
func (r *Reconciler) ManagedModelID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modelID
}

// Reconcile advances the state machine once. If the persisted pointer is
// already complete it adopts it. Otherwise it probes the record store for a
// model under the fixed schema key; when found, the pointer is persisted as
// complete without invoking the provisioner. When nothing is found the
// state stays UNINITIALIZED and ErrNotProvisioned is returned.
//
// READY is terminal: once reached, Reconcile is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateReady {
		return StateReady, nil
	}

	cfg, version, err := r.cfgStore.Load(ctx)
	if err != nil {
		return r.state, fmt.Errorf("bootstrap: loading configuration: %w", err)
	}

	if cfg.SetupComplete && cfg.ManagedModelID != "" {
		r.adoptLocked(cfg.ManagedModelID)
		r.logger.Info("managed schema pointer already complete", "modelId", cfg.ManagedModelID)
		return StateReady, nil
	}

	model, err := r.finder.FindModelByKey(ctx, SchemaKey)
	if errors.Is(err, records.ErrModelNotFound) {
		r.logger.Info("no managed schema found, awaiting explicit provisioning", "schemaKey", SchemaKey)
		return StateUninitialized, ErrNotProvisioned
	}
	if err != nil {
		return r.state, fmt.Errorf("bootstrap: probing for schema %q: %w", SchemaKey, err)
	}

	// Interrupted setup: the schema exists but the pointer was never
	// marked complete. Adopt and persist.
	if err := r.persistPointerLocked(ctx, cfg, version, model.ID); err != nil {
		return r.state, err
	}
	r.adoptLocked(model.ID)

	r.logger.Info("recovered existing managed schema", "schemaKey", SchemaKey, "modelId", model.ID)
	return StateReady, nil
}

// Provision creates the managed model through the external provisioner and
// marks the pointer complete. It is the explicit path taken when Reconcile
// reports ErrNotProvisioned.
func (r *Reconciler) Provision(ctx context.Context) (*records.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateReady {
		return &records.Model{ID: r.modelID, Key: SchemaKey, Name: ManagedModelName}, nil
	}
	if r.provisioner == nil {
		return nil, fmt.Errorf("bootstrap: no provisioner configured")
	}

	cfg, version, err := r.cfgStore.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: loading configuration: %w", err)
	}

	model, err := r.provisioner.ProvisionModel(ctx, SchemaKey, ManagedModelName)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: provisioning schema %q: %w", SchemaKey, err)
	}

	if err := r.persistPointerLocked(ctx, cfg, version, model.ID); err != nil {
		return nil, err
	}
	r.adoptLocked(model.ID)

	r.logger.Info("provisioned managed schema", "schemaKey", SchemaKey, "modelId", model.ID)
	return model, nil
}

// persistPointerLocked marks the pointer complete in the persisted config.
// Must be called with r.mu held.
func (r *Reconciler) persistPointerLocked(ctx context.Context, cfg *config.SyncConfig, version, modelID string) error {
	cfg.SetupComplete = true
	cfg.ManagedModelID = modelID
	if _, err := r.cfgStore.Save(ctx, cfg, version); err != nil {
		return fmt.Errorf("bootstrap: persisting schema pointer: %w", err)
	}
	return nil
}

// adoptLocked transitions to READY. Must be called with r.mu held.
func (r *Reconciler) adoptLocked(modelID string) {
	r.state = StateReady
	r.modelID = modelID
}

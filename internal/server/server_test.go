package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorglue/svgsync/internal/assets"
	"github.com/vectorglue/svgsync/internal/bootstrap"
	"github.com/vectorglue/svgsync/internal/config"
	"github.com/vectorglue/svgsync/internal/migration"
	"github.com/vectorglue/svgsync/internal/records"
	"github.com/vectorglue/svgsync/internal/records/gormstore"
	syncengine "github.com/vectorglue/svgsync/internal/sync"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg"><rect width="1" height="1"/></svg>`

// fakeAssetStore is a minimal in-memory asset library.
type fakeAssetStore struct {
	mu       sync.Mutex
	contents map[string]string
	next     int
}

func newFakeAssetStore() *fakeAssetStore {
	return &fakeAssetStore{contents: map[string]string{}}
}

func (s *fakeAssetStore) CreateFromContent(_ context.Context, content []byte, _ string) (*assets.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("asset-%d", s.next)
	s.contents[id] = string(content)
	return &assets.Object{ID: id, Address: "addr-" + id}, nil
}

func (s *fakeAssetStore) UpdateContent(_ context.Context, id, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[id] = s.contents[strings.TrimPrefix(address, "addr-")]
	return nil
}

func (s *fakeAssetStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contents, id)
	return nil
}

func (s *fakeAssetStore) contentOf(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contents[id]
}

type testHarness struct {
	server     *Server
	ts         *httptest.Server
	assetStore *fakeAssetStore
	recStore   *gormstore.Store
	reconciler *bootstrap.Reconciler
	cfgStore   *config.FileStore
}

func newHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()

	recStore, err := gormstore.Open(":memory:")
	require.NoError(t, err)

	assetStore := newFakeAssetStore()
	cfgStore := config.NewFileStore(filepath.Join(t.TempDir(), "svgsync.yaml"))

	engine := syncengine.NewEngine(recStore, assetStore)
	reconciler := bootstrap.NewReconciler(cfgStore, recStore, recStore)
	migrator := migration.NewMigrator(engine, cfgStore)

	srv := New(engine, migrator, reconciler, cfgStore, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testHarness{
		server:     srv,
		ts:         ts,
		assetStore: assetStore,
		recStore:   recStore,
		reconciler: reconciler,
		cfgStore:   cfgStore,
	}
}

// recordsAttributes builds a full attribute set referencing an uploaded
// asset.
func recordsAttributes(source, name string, obj *assets.Object) records.Attributes {
	return records.Attributes{
		Name:     &name,
		Source:   &source,
		AssetRef: &records.AssetRef{AssetID: obj.ID, URL: obj.Address},
	}
}

func (h *testHarness) provision(t *testing.T) string {
	t.Helper()
	model, err := h.reconciler.Provision(context.Background())
	require.NoError(t, err)
	return model.ID
}

func (h *testHarness) postJSON(t *testing.T, path string, body any, headers ...http.Header) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, h.ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, hd := range headers {
		for k, vs := range hd {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRecordHook_AlwaysAllows(t *testing.T) {
	h := newHarness(t)

	// Not provisioned, unknown model, invalid payload: the hook still
	// returns the allow-commit signal in every case.
	resp, body := h.postJSON(t, "/hooks/records", map[string]any{
		"itemType":   "whatever",
		"attributes": map[string]any{"source": "<svg/>"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["allow"])

	req, err := http.NewRequest(http.MethodPost, h.ts.URL+"/hooks/records", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(raw.Body).Decode(&decoded))
	assert.Equal(t, true, decoded["allow"])
}

func TestRecordHook_TriggersBackgroundSync(t *testing.T) {
	h := newHarness(t)
	modelID := h.provision(t)

	// Seed a record that already references an asset.
	obj, err := h.assetStore.CreateFromContent(context.Background(), []byte(testSVG), "star.svg")
	require.NoError(t, err)
	rec, err := h.recStore.Create(context.Background(), modelID, recordsAttributes(testSVG, "star", obj))
	require.NoError(t, err)

	newSource := `<svg><circle r="9"/></svg>`
	resp, body := h.postJSON(t, "/hooks/records", map[string]any{
		"entityId":   rec.ID,
		"itemType":   modelID,
		"attributes": map[string]any{"source": newSource},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["allow"])

	// The sync runs after the response; poll for the swap to land.
	require.Eventually(t, func() bool {
		return h.assetStore.contentOf(obj.ID) == newSource
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRecordHook_JWTVerification(t *testing.T) {
	secret := "hook-secret"
	h := newHarness(t, WithHookVerifier(NewJWTHookVerifier(secret, nil)))

	payload := map[string]any{"itemType": "m", "attributes": map[string]any{}}

	// No token: rejected before the hook contract applies.
	resp, _ := h.postJSON(t, "/hooks/records", payload)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong secret.
	badToken, err := jwt.New(jwt.SigningMethodHS256).SignedString([]byte("other"))
	require.NoError(t, err)
	resp, _ = h.postJSON(t, "/hooks/records", payload, http.Header{"Authorization": {"Bearer " + badToken}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid token.
	token, err := jwt.New(jwt.SigningMethodHS256).SignedString([]byte(secret))
	require.NoError(t, err)
	resp, body := h.postJSON(t, "/hooks/records", payload, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["allow"])
}

func TestStatus(t *testing.T) {
	h := newHarness(t)

	resp, body := getJSON(t, h.ts.URL+"/api/v1/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(bootstrap.StateUninitialized), body["state"])

	h.provision(t)
	resp, body = getJSON(t, h.ts.URL+"/api/v1/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(bootstrap.StateReady), body["state"])
	assert.NotEmpty(t, body["managedModelId"])
}

func TestBootstrap(t *testing.T) {
	h := newHarness(t)

	// Nothing to discover: stays UNINITIALIZED.
	resp, body := h.postJSON(t, "/api/v1/bootstrap", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(bootstrap.StateUninitialized), body["state"])
	assert.Equal(t, false, body["provisioned"])

	// Explicit provisioning through the endpoint.
	resp, body = h.postJSON(t, "/api/v1/bootstrap?provision=true", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(bootstrap.StateReady), body["state"])
	assert.Equal(t, true, body["provisioned"])
	assert.NotEmpty(t, body["managedModelId"])
}

func TestBootstrap_SelfHealsFromExistingSchema(t *testing.T) {
	h := newHarness(t)

	// Schema exists but the pointer was never persisted (interrupted setup).
	_, err := h.recStore.ProvisionModel(context.Background(), bootstrap.SchemaKey, bootstrap.ManagedModelName)
	require.NoError(t, err)

	resp, body := h.postJSON(t, "/api/v1/bootstrap", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(bootstrap.StateReady), body["state"])
	assert.Equal(t, false, body["provisioned"])
}

func TestCreateAsset(t *testing.T) {
	h := newHarness(t)

	// Not provisioned yet.
	resp, _ := h.postJSON(t, "/api/v1/assets", createAssetRequest{Source: testSVG, Name: "star"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	h.provision(t)

	resp, body := h.postJSON(t, "/api/v1/assets", createAssetRequest{Source: testSVG, Name: "star"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "star", body["name"])
	assert.NotNil(t, body["assetRef"])

	// Malformed source is a client error, not a gateway error.
	resp, _ = h.postJSON(t, "/api/v1/assets", createAssetRequest{Source: "<svg><oops", Name: "bad"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestManualSync(t *testing.T) {
	h := newHarness(t)
	modelID := h.provision(t)

	obj, err := h.assetStore.CreateFromContent(context.Background(), []byte(testSVG), "star.svg")
	require.NoError(t, err)
	rec, err := h.recStore.Create(context.Background(), modelID, recordsAttributes(testSVG, "star", obj))
	require.NoError(t, err)

	newSource := `<svg><path d="M0 0h1"/></svg>`
	resp, body := h.postJSON(t, "/api/v1/sync", map[string]any{
		"entityId":   rec.ID,
		"attributes": map[string]any{"source": newSource},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(syncengine.StatusSynced), body["status"])
	assert.Equal(t, newSource, h.assetStore.contentOf(obj.ID))

	// Foreground path surfaces validation problems.
	resp, body = h.postJSON(t, "/api/v1/sync", map[string]any{
		"entityId":   rec.ID,
		"attributes": map[string]any{"source": "<nope"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, string(syncengine.StatusSkippedInvalid), body["status"])
}

func TestMigrate(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.postJSON(t, "/api/v1/migrate", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	h.provision(t)

	// Park two legacy entries in the persisted config.
	ctx := context.Background()
	cfg, version, err := h.cfgStore.Load(ctx)
	require.NoError(t, err)
	cfg.LegacyEntries = []config.LegacyEntry{
		{ID: "a", Filename: "a.svg", Source: testSVG},
		{ID: "b", Filename: "b.svg", Source: "not svg"},
	}
	_, err = h.cfgStore.Save(ctx, cfg, version)
	require.NoError(t, err)

	resp, body := h.postJSON(t, "/api/v1/migrate", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["migrated"], 1)
	assert.Len(t, body["failed"], 1)

	// The failed entry stays behind for a retry.
	cfg, _, err = h.cfgStore.Load(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.LegacyEntries, 1)
	assert.Equal(t, "b", cfg.LegacyEntries[0].ID)
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

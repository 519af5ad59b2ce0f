package gormstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vectorglue/svgsync/internal/records"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store, err := NewWithDB(db)
	require.NoError(t, err)
	return store
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestStore_CreateAndFind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "model-1", records.Attributes{
		Name:   strPtr("logo"),
		Source: strPtr("<svg/>"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, "model-1", rec.ModelID)
	assert.Equal(t, "logo", rec.Name)
	assert.Nil(t, rec.AssetRef)

	found, err := store.Find(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, found)
}

func TestStore_Find_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, records.ErrRecordNotFound)
}

func TestStore_Update_PartialAttrs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "model-1", records.Attributes{
		Name:     strPtr("logo"),
		Source:   strPtr("<svg/>"),
		AssetRef: &records.AssetRef{AssetID: "asset-1", URL: "s3://bucket/asset-1"},
	})
	require.NoError(t, err)

	// Only the source changes; name and asset ref must survive.
	updated, err := store.Update(ctx, rec.ID, records.Attributes{
		Source: strPtr(`<svg viewBox="0 0 1 1"/>`),
	})
	require.NoError(t, err)
	assert.Equal(t, "logo", updated.Name)
	assert.Equal(t, `<svg viewBox="0 0 1 1"/>`, updated.Source)
	require.NotNil(t, updated.AssetRef)
	assert.Equal(t, "asset-1", updated.AssetRef.AssetID)
}

func TestStore_Update_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Update(context.Background(), "missing", records.Attributes{Name: strPtr("x")})
	assert.ErrorIs(t, err, records.ErrRecordNotFound)
}

func TestStore_Destroy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, "model-1", records.Attributes{Name: strPtr("logo")})
	require.NoError(t, err)

	ok, err := store.Destroy(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Destroy(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Find(ctx, rec.ID)
	assert.ErrorIs(t, err, records.ErrRecordNotFound)
}

func TestStore_List_CurrentIncludesDrafts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "model-1", records.Attributes{Name: strPtr("published"), Draft: boolPtr(false)})
	require.NoError(t, err)
	_, err = store.Create(ctx, "model-1", records.Attributes{Name: strPtr("draft"), Draft: boolPtr(true)})
	require.NoError(t, err)
	_, err = store.Create(ctx, "other-model", records.Attributes{Name: strPtr("elsewhere")})
	require.NoError(t, err)

	current, err := store.List(ctx, records.ListOptions{ModelID: "model-1", Version: records.VersionCurrent})
	require.NoError(t, err)
	assert.Len(t, current, 2)

	published, err := store.List(ctx, records.ListOptions{ModelID: "model-1", Version: records.VersionPublished})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, "published", published[0].Name)
}

func TestStore_List_Limit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Create(ctx, "model-1", records.Attributes{Name: strPtr("rec")})
		require.NoError(t, err)
	}

	out, err := store.List(ctx, records.ListOptions{ModelID: "model-1", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestStore_ModelProvisionAndDiscovery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.FindModelByKey(ctx, "svg_asset")
	assert.ErrorIs(t, err, records.ErrModelNotFound)

	created, err := store.ProvisionModel(ctx, "svg_asset", "SVG Asset")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	found, err := store.FindModelByKey(ctx, "svg_asset")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "svg_asset", found.Key)

	// The schema key is unique; provisioning twice fails.
	_, err = store.ProvisionModel(ctx, "svg_asset", "SVG Asset")
	assert.Error(t, err)
}

// TestStore_Find_DriverError exercises the non-not-found error path with an
// injected driver failure.
func TestStore_Find_DriverError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "svg_records"`).WillReturnError(assert.AnError)

	db, err := gorm.Open(gormpg.New(gormpg.Config{Conn: sqlDB, PreferSimpleProtocol: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := &Store{db: db}
	_, err = store.Find(context.Background(), "any")
	require.Error(t, err)
	assert.NotErrorIs(t, err, records.ErrRecordNotFound)
	assert.Contains(t, err.Error(), "failed to find record")
}

package s3store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestObjectKey(t *testing.T) {
	s := NewWithClient(nil, Options{Bucket: "b", Prefix: "svg-assets"})

	key := s.objectKey("abc-123", "logo.svg")
	assert.Equal(t, "svg-assets/abc-123/logo.svg", key)

	key = s.objectKey("abc-123", "")
	assert.True(t, strings.HasSuffix(key, "/asset.svg"))

	noPrefix := NewWithClient(nil, Options{Bucket: "b"})
	assert.Equal(t, "abc-123/logo.svg", noPrefix.objectKey("abc-123", "logo.svg"))
}

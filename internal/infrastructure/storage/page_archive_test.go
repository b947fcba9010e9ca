package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/rosterlink/backend/internal/infrastructure/config"
)

func TestNewS3PageArchive_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3PageArchive(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3PageArchive(&config.ArchiveConfig{AccessKey: "k", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing credentials returns error", func(t *testing.T) {
		_, err := NewS3PageArchive(&config.ArchiveConfig{Bucket: "b"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key and secret key")
	})

	t.Run("defaults prefix", func(t *testing.T) {
		archive, err := NewS3PageArchive(&config.ArchiveConfig{Bucket: "b", AccessKey: "k", SecretKey: "s", Endpoint: "localhost:9000"})
		require.NoError(t, err)
		assert.Equal(t, "raw-pages", archive.prefix)
		assert.Equal(t, "b", archive.GetBucket())
	})
}

func TestS3PageArchive_ObjectKey(t *testing.T) {
	archive, err := NewS3PageArchive(&config.ArchiveConfig{Bucket: "b", AccessKey: "k", SecretKey: "s", Prefix: "/failures/"})
	require.NoError(t, err)
	archive.now = func() time.Time { return time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC) }

	key := archive.objectKey(integration.PlatformCodeStorefront, "https://shop.example.com/my-account/view-order/7/")
	assert.True(t, strings.HasPrefix(key, "failures/storefront/2026/03/09/"), key)

	other := archive.objectKey(integration.PlatformCodeStorefront, "https://shop.example.com/my-account/view-order/7/")
	assert.NotEqual(t, key, other, "repeated failures of the same page are kept")
}

func TestS3PageArchive_Archive(t *testing.T) {
	type captured struct {
		method string
		path   string
		meta   string
		ctype  string
	}
	var (
		mu       sync.Mutex
		requests []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, captured{
			method: r.Method,
			path:   r.URL.Path,
			meta:   r.Header.Get("X-Amz-Meta-Source-Ref"),
			ctype:  r.Header.Get("Content-Type"),
		})
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	archive, err := NewS3PageArchive(&config.ArchiveConfig{
		Bucket:       "raw",
		AccessKey:    "k",
		SecretKey:    "s",
		Endpoint:     srv.URL,
		UsePathStyle: true,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	err = archive.Archive(context.Background(), integration.PlatformCodeResourceAPI, "https://api.example.com/rec/events", []byte(`{"data": [`))
	require.NoError(t, err)

	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodPut, requests[0].method)
	assert.True(t, strings.HasPrefix(requests[0].path, "/raw/raw-pages/resource_api/"), requests[0].path)
	assert.Equal(t, "https://api.example.com/rec/events", requests[0].meta)
	assert.Equal(t, "application/json", requests[0].ctype)

	assert.Error(t, archive.Archive(context.Background(), integration.PlatformCodeResourceAPI, "ref", nil))
}

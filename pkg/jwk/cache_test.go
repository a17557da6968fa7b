package jwk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestURLSetCache(t *testing.T) {
	var requests atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/jwks" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testSet))
	}))
	defer srv.Close()

	ctx := context.Background()

	t.Run("fetches once", func(t *testing.T) {
		requests.Store(0)
		cache := NewURLSetCache(srv.Client(), 0, time.Hour)

		set, err := cache.Get(ctx, srv.URL+"/jwks")
		require.NoError(t, err)
		require.Len(t, set.Keys, 4)

		again, err := cache.Get(ctx, srv.URL+"/jwks")
		require.NoError(t, err)
		require.Same(t, set, again)

		key, err := cache.GetKey(ctx, srv.URL+"/jwks", "1")
		require.NoError(t, err)
		require.Equal(t, "EC", key[KeyType])

		require.Equal(t, int32(1), requests.Load())
		require.Equal(t, 1, cache.Len())
	})

	t.Run("expired sets are fetched again", func(t *testing.T) {
		requests.Store(0)
		cache := NewURLSetCache(srv.Client(), 1, time.Millisecond)

		_, err := cache.Get(ctx, srv.URL+"/jwks")
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)

		_, err = cache.Get(ctx, srv.URL+"/jwks")
		require.NoError(t, err)
		require.Equal(t, int32(2), requests.Load())
	})

	t.Run("missing key", func(t *testing.T) {
		cache := NewURLSetCache(srv.Client(), 0, time.Hour)
		_, err := cache.GetKey(ctx, srv.URL+"/jwks", "nope")
		require.ErrorContains(t, err, `key "nope"`)
	})

	t.Run("fetch errors are not cached", func(t *testing.T) {
		requests.Store(0)
		cache := NewURLSetCache(srv.Client(), 0, time.Hour)

		_, err := cache.Get(ctx, srv.URL+"/missing")
		require.Error(t, err)
		_, err = cache.Get(ctx, srv.URL+"/missing")
		require.Error(t, err)

		require.Equal(t, int32(2), requests.Load())
		require.Zero(t, cache.Len())
	})
}

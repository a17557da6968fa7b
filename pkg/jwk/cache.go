package jwk

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultURLSetCacheSize is the number of URLs a cache created with a
// non-positive size keeps.
const DefaultURLSetCacheSize = 64

// URLSetCache is a cache of JWK sets keyed by URL. A set is fetched on
// first use and again once it has been cached for longer than the cache
// duration. It is safe for concurrent use.
type URLSetCache struct {
	// client is the HTTP client used to fetch JWK sets.
	client *http.Client

	// sets holds the fetched sets, least recently used first out.
	sets *expirable.LRU[string, *Set]
}

// NewURLSetCache returns a new JWK set cache holding up to size URLs for
// cacheDuration each. A nil client means http.DefaultClient.
func NewURLSetCache(client *http.Client, size int, cacheDuration time.Duration) *URLSetCache {
	if client == nil {
		client = http.DefaultClient
	}
	if size <= 0 {
		size = DefaultURLSetCacheSize
	}
	return &URLSetCache{
		client: client,
		sets:   expirable.NewLRU[string, *Set](size, nil, cacheDuration),
	}
}

// Get returns the JWK set for the given URL, fetching it if it is not
// cached or has expired.
func (c *URLSetCache) Get(ctx context.Context, url string) (*Set, error) {
	if set, ok := c.sets.Get(url); ok {
		return set, nil
	}
	return c.Fetch(ctx, url)
}

// GetKey returns the key with the given key id from the JWK set for the
// given URL.
func (c *URLSetCache) GetKey(ctx context.Context, url string, keyID string) (Value, error) {
	set, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	key, err := set.Get(keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get key %q from JWK set: %w", keyID, err)
	}
	return key, nil
}

// Fetch fetches the JWK set for the given URL and caches it, replacing
// any cached copy.
func (c *URLSetCache) Fetch(ctx context.Context, url string) (*Set, error) {
	set, err := FetchSet(ctx, url, c.client)
	if err != nil {
		return nil, err
	}
	c.sets.Add(url, set)
	return set, nil
}

// Len returns the number of cached sets, expired ones included until
// they are evicted.
func (c *URLSetCache) Len() int {
	return c.sets.Len()
}

package dispatch

import (
	"bytes"
	"encoding/json"
	"math/big"
	"time"

	"github.com/patrickmn/go-cache"
)

const canonicalNumberPrec = 512

var DefaultCacheableMethods = []string{
	"eth_blockNumber",
	"eth_chainId",
	"net_version",
	"eth_gasPrice",
}

// ResponseCache memoizes results of read-only methods for a short window.
// Expired entries stay in the store until the next Put with the same key.
type ResponseCache struct {
	store     *cache.Cache
	cacheable map[string]struct{}
}

type cacheEntry struct {
	result    json.RawMessage
	expiresAt time.Time
}

func NewResponseCache(methods []string) *ResponseCache {
	cacheable := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		cacheable[m] = struct{}{}
	}

	return &ResponseCache{
		// no janitor: expiry is checked against the caller's clock on Get
		store:     cache.New(cache.NoExpiration, 0),
		cacheable: cacheable,
	}
}

func (c *ResponseCache) IsCacheable(method string) bool {
	_, ok := c.cacheable[method]
	return ok
}

// KeyFor returns false for methods outside the whitelist and for params that
// are not valid JSON. Params are canonicalized so that equal values produce
// equal keys regardless of formatting.
func (c *ResponseCache) KeyFor(method string, params json.RawMessage) (string, bool) {
	if !c.IsCacheable(method) {
		return "", false
	}

	params = bytes.TrimSpace(params)
	if len(params) == 0 || string(params) == jsonMsgNullString {
		params = json.RawMessage("[]")
	}

	var decoded interface{}
	err := NewJsonDecoder(params, false).Decode(&decoded)
	if err != nil {
		return "", false
	}
	canonical, err := json.Marshal(canonicalNumbers(decoded))
	if err != nil {
		return "", false
	}

	return method + "|" + string(canonical), true
}

func (c *ResponseCache) Get(key string, now time.Time) (json.RawMessage, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if !now.Before(entry.expiresAt) {
		return nil, false
	}

	return entry.result, true
}

func (c *ResponseCache) Put(key string, result json.RawMessage, now time.Time, ttl time.Duration) {
	r := make(json.RawMessage, len(result))
	copy(r, result)

	c.store.Set(key, cacheEntry{result: r, expiresAt: now.Add(ttl)}, cache.NoExpiration)
}

func (c *ResponseCache) Len() int {
	return c.store.ItemCount()
}

// canonicalNumbers rewrites every number to one spelling per value, so 1, 1.0
// and 1e0 share a key. Values with up to ~150 significant digits stay distinct.
func canonicalNumbers(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		f, _, err := big.ParseFloat(val.String(), 10, canonicalNumberPrec, big.ToNearestEven)
		if err != nil {
			return val
		}
		if f.Sign() == 0 {
			return json.Number("0")
		}

		return json.Number(f.Text('g', -1))
	case []interface{}:
		for i := range val {
			val[i] = canonicalNumbers(val[i])
		}
	case map[string]interface{}:
		for k := range val {
			val[k] = canonicalNumbers(val[k])
		}
	}

	return v
}

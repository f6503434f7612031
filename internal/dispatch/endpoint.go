package dispatch

import (
	"sync"
	"time"
)

// Endpoint is one upstream JSON-RPC provider. Only the cooldown deadline is
// mutable; it is shared by every in-flight dispatch.
type Endpoint struct {
	url  string
	name string

	mx               sync.RWMutex
	rateLimitedUntil time.Time
}

func NewEndpoint(name, url string) *Endpoint {
	return &Endpoint{
		url:  url,
		name: name,
	}
}

func (e *Endpoint) Name() string {
	return e.name
}

func (e *Endpoint) URL() string {
	return e.url
}

// RateLimitedUntil returns the zero time when the endpoint was never limited.
func (e *Endpoint) RateLimitedUntil() time.Time {
	e.mx.RLock()
	defer e.mx.RUnlock()

	return e.rateLimitedUntil
}

func (e *Endpoint) isEligible(now time.Time) bool {
	return !e.RateLimitedUntil().After(now)
}

func (e *Endpoint) setRateLimitedUntil(t time.Time) {
	e.mx.Lock()
	e.rateLimitedUntil = t
	e.mx.Unlock()
}

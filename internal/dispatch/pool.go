package dispatch

import (
	"iter"
	"net/url"
	"time"
)

type Pool struct {
	endpoints []*Endpoint
}

type EndpointStatus struct {
	Name             string    `json:"name" csv:"name"`
	URL              string    `json:"url" csv:"url"`
	CoolingDown      bool      `json:"coolingDown" csv:"cooling_down"`
	RateLimitedUntil time.Time `json:"rateLimitedUntil" csv:"rate_limited_until"`
}

// NewPool keeps the given order; it is the order endpoints are tried in.
func NewPool(endpoints ...*Endpoint) *Pool {
	e := make([]*Endpoint, len(endpoints))
	copy(e, endpoints)

	return &Pool{endpoints: e}
}

func (p *Pool) Len() int {
	return len(p.endpoints)
}

// ListEligible yields endpoints in configured order, skipping the ones still
// cooling down at now. The sequence may be ranged over any number of times.
func (p *Pool) ListEligible(now time.Time) iter.Seq[*Endpoint] {
	return func(yield func(*Endpoint) bool) {
		for _, e := range p.endpoints {
			if !e.isEligible(now) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// MarkRateLimited always recomputes the deadline from now, so repeated
// signals during a cooldown push it further out.
func (p *Pool) MarkRateLimited(e *Endpoint, now time.Time, cooldown time.Duration) {
	e.setRateLimitedUntil(now.Add(cooldown))
}

func (p *Pool) CountEligible(now time.Time) (n int) {
	for range p.ListEligible(now) {
		n++
	}

	return n
}

func (p *Pool) Snapshot(now time.Time) []EndpointStatus {
	res := make([]EndpointStatus, 0, len(p.endpoints))
	for _, e := range p.endpoints {
		until := e.RateLimitedUntil()
		res = append(res, EndpointStatus{
			Name:             e.Name(),
			URL:              redactURL(e.URL()),
			CoolingDown:      until.After(now),
			RateLimitedUntil: until,
		})
	}

	return res
}

// redactURL drops path and query, where providers usually carry API keys.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}

	return u.Scheme + "://" + u.Host
}

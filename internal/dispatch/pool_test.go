package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(p *Pool, now time.Time) (res []string) {
	for e := range p.ListEligible(now) {
		res = append(res, e.Name())
	}
	return res
}

func TestListEligibleKeepsConfiguredOrder(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a, b, c := NewEndpoint("a", "http://a"), NewEndpoint("b", "http://b"), NewEndpoint("c", "http://c")
	p := NewPool(a, b, c)

	require.Equal(t, []string{"a", "b", "c"}, names(p, now))

	p.MarkRateLimited(b, now, time.Minute)
	require.Equal(t, []string{"a", "c"}, names(p, now))
	// restartable
	require.Equal(t, []string{"a", "c"}, names(p, now))
	require.Equal(t, 2, p.CountEligible(now))
}

func TestListEligibleEmptyWhenAllCoolingDown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a, b := NewEndpoint("a", "http://a"), NewEndpoint("b", "http://b")
	p := NewPool(a, b)
	p.MarkRateLimited(a, now, time.Second)
	p.MarkRateLimited(b, now, time.Second)

	require.Empty(t, names(p, now))
	require.Empty(t, names(p, now.Add(999*time.Millisecond)))
	// eligible again exactly at the deadline
	require.Equal(t, []string{"a", "b"}, names(p, now.Add(time.Second)))
}

func TestListEligibleStopsOnBreak(t *testing.T) {
	p := NewPool(NewEndpoint("a", "http://a"), NewEndpoint("b", "http://b"))

	var seen int
	for range p.ListEligible(time.Now()) {
		seen++
		break
	}
	require.Equal(t, 1, seen)
}

func TestMarkRateLimitedExtendsFromNow(t *testing.T) {
	now1 := time.Unix(1_700_000_000, 0)
	now2 := now1.Add(10 * time.Second)
	cooldown := 30 * time.Second
	e := NewEndpoint("a", "http://a")
	p := NewPool(e)

	require.True(t, e.RateLimitedUntil().IsZero())

	p.MarkRateLimited(e, now1, cooldown)
	first := e.RateLimitedUntil()
	require.Equal(t, now1.Add(cooldown), first)

	p.MarkRateLimited(e, now2, cooldown)
	second := e.RateLimitedUntil()
	require.Equal(t, now2.Add(cooldown), second)
	require.True(t, second.After(first))
}

func TestPoolSnapshotRedactsURL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := NewEndpoint("alchemy", "https://eth-mainnet.g.alchemy.com/v2/secret-key")
	b := NewEndpoint("public", "https://rpc.example.org")
	p := NewPool(a, b)
	p.MarkRateLimited(a, now, time.Minute)

	s := p.Snapshot(now)
	require.Len(t, s, 2)
	assert.Equal(t, "alchemy", s[0].Name)
	assert.Equal(t, "https://eth-mainnet.g.alchemy.com", s[0].URL)
	assert.True(t, s[0].CoolingDown)
	assert.Equal(t, now.Add(time.Minute), s[0].RateLimitedUntil)
	assert.False(t, s[1].CoolingDown)
	assert.True(t, s[1].RateLimitedUntil.IsZero())
}

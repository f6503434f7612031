package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mx  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mx.Lock()
	c.now = c.now.Add(d)
	c.mx.Unlock()
}

type reply struct {
	status int
	body   string
	err    error
}

// scriptedCaller answers by endpoint name and counts calls.
type scriptedCaller struct {
	mx      sync.Mutex
	replies map[string]reply
	calls   map[string]int
	order   []string
}

func newScriptedCaller(replies map[string]reply) *scriptedCaller {
	return &scriptedCaller{replies: replies, calls: make(map[string]int)}
}

func (sc *scriptedCaller) Call(_ context.Context, e *Endpoint, _ []byte) (int, []byte, error) {
	sc.mx.Lock()
	defer sc.mx.Unlock()
	sc.calls[e.Name()]++
	sc.order = append(sc.order, e.Name())

	r, ok := sc.replies[e.Name()]
	if !ok {
		return 0, nil, fmt.Errorf("no reply for %s", e.Name())
	}

	return r.status, []byte(r.body), r.err
}

func (sc *scriptedCaller) total() (n int) {
	sc.mx.Lock()
	defer sc.mx.Unlock()
	for _, c := range sc.calls {
		n += c
	}
	return n
}

func resultReply(result string) reply {
	return reply{status: http.StatusOK, body: fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"result":%s}`, result)}
}

var throttled = reply{status: http.StatusTooManyRequests, body: "Too Many Requests"}

func newTestDispatcher(caller Caller, clock *fakeClock, names ...string) *Dispatcher {
	endpoints := make([]*Endpoint, 0, len(names))
	for _, n := range names {
		endpoints = append(endpoints, NewEndpoint(n, "http://"+n+".invalid"))
	}

	return NewDispatcher(NewPool(endpoints...), NewResponseCache(DefaultCacheableMethods), caller, Options{
		AttemptTimeout:    time.Second,
		RateLimitCooldown: 30 * time.Second,
		CacheTTL:          5 * time.Second,
		Now:               clock.Now,
	})
}

func rpcUsed(t *testing.T, r *RPCResponse) string {
	t.Helper()
	require.NotNil(t, r.Meta)
	require.NotNil(t, r.Meta.RpcUsed)
	return *r.Meta.RpcUsed
}

func TestDispatchMissingMethodMakesNoCalls(t *testing.T) {
	caller := newScriptedCaller(map[string]reply{"a": resultReply(`"0x1"`)})
	d := newTestDispatcher(caller, newFakeClock(), "a")

	res, err := d.Dispatch(context.Background(), RPCRequest{ID: 5})
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.NotNil(t, res.Error)
	assert.Equal(t, InvalidRequestErrCode, res.Error.Code)
	assert.Equal(t, 5, res.ID)
	assert.Zero(t, caller.total())
}

func TestDispatchServesCacheWithinTTL(t *testing.T) {
	clock := newFakeClock()
	caller := newScriptedCaller(map[string]reply{"a": resultReply(`"0x64"`)})
	d := newTestDispatcher(caller, clock, "a")
	req := RPCRequest{JSONRPC: "2.0", Method: "eth_blockNumber", ID: 1}

	first, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "a", rpcUsed(t, first))
	assert.False(t, first.Meta.CachedResult)

	clock.Advance(4 * time.Second)
	second, err := d.Dispatch(context.Background(), RPCRequest{JSONRPC: "2.0", Method: "eth_blockNumber", ID: 2})
	require.NoError(t, err)
	assert.Equal(t, "cache", rpcUsed(t, second))
	assert.True(t, second.Meta.CachedResult)
	assert.Zero(t, second.Meta.Retries)
	assert.Equal(t, 2, second.ID)
	assert.JSONEq(t, `"0x64"`, string(second.Result))
	assert.Equal(t, 1, caller.total())
}

func TestDispatchRefetchesAfterTTL(t *testing.T) {
	clock := newFakeClock()
	caller := newScriptedCaller(map[string]reply{"a": resultReply(`"0x64"`)})
	d := newTestDispatcher(caller, clock, "a")
	req := RPCRequest{Method: "eth_chainId"}

	_, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	res, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Meta.CachedResult)
	assert.Equal(t, 2, caller.total())
}

func TestDispatchNeverCachesOtherMethods(t *testing.T) {
	caller := newScriptedCaller(map[string]reply{"a": resultReply(`"0xde0b6b3a7640000"`)})
	d := newTestDispatcher(caller, newFakeClock(), "a")
	req := RPCRequest{Method: "eth_getBalance", Params: json.RawMessage(`["0xabc","latest"]`)}

	for i := 0; i < 3; i++ {
		res, err := d.Dispatch(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, res.Meta.CachedResult)
		assert.Equal(t, "a", rpcUsed(t, res))
	}
	assert.Equal(t, 3, caller.total())
}

func TestDispatchDoesNotCacheNullResult(t *testing.T) {
	caller := newScriptedCaller(map[string]reply{"a": resultReply(`null`)})
	d := newTestDispatcher(caller, newFakeClock(), "a")
	req := RPCRequest{Method: "eth_gasPrice"}

	_, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, caller.total())
}

func TestDispatchRetriesCountsThrottledEndpoints(t *testing.T) {
	for k := 0; k < 3; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			replies := map[string]reply{}
			names := []string{"e0", "e1", "e2", "e3"}
			for i, n := range names {
				if i < k {
					replies[n] = throttled
				} else {
					replies[n] = resultReply(`"0x1"`)
				}
			}
			caller := newScriptedCaller(replies)
			d := newTestDispatcher(caller, newFakeClock(), names...)

			res, err := d.Dispatch(context.Background(), RPCRequest{Method: "eth_getBalance"})
			require.NoError(t, err)
			assert.Equal(t, names[k], rpcUsed(t, res))
			assert.Equal(t, k, res.Meta.Retries)
			assert.Equal(t, names[:k+1], caller.order)
		})
	}
}

func TestDispatchSkipsCoolingEndpointsWithoutCalling(t *testing.T) {
	clock := newFakeClock()
	caller := newScriptedCaller(map[string]reply{"a": throttled, "b": resultReply(`"0x1"`)})
	d := newTestDispatcher(caller, clock, "a", "b")

	_, err := d.Dispatch(context.Background(), RPCRequest{Method: "eth_call"})
	require.NoError(t, err)

	clock.Advance(10 * time.Second)
	res, err := d.Dispatch(context.Background(), RPCRequest{Method: "eth_call"})
	require.NoError(t, err)
	assert.Equal(t, "b", rpcUsed(t, res))
	assert.Zero(t, res.Meta.Retries)
	assert.Equal(t, 1, caller.calls["a"])

	// cooldown over
	clock.Advance(20 * time.Second)
	_, err = d.Dispatch(context.Background(), RPCRequest{Method: "eth_call"})
	require.NoError(t, err)
	assert.Equal(t, 2, caller.calls["a"])
}

func TestDispatchAllThrottledIsExhausted(t *testing.T) {
	caller := newScriptedCaller(map[string]reply{
		"a": throttled,
		"b": {status: http.StatusOK, body: `{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"limit exceeded"}}`},
		"c": {status: http.StatusServiceUnavailable},
	})
	clock := newFakeClock()
	d := newTestDispatcher(caller, clock, "a", "b", "c")

	res, err := d.Dispatch(context.Background(), RPCRequest{Method: "eth_getLogs", ID: "x"})
	require.ErrorIs(t, err, ErrAllEndpointsExhausted)
	require.NotNil(t, res.Meta)
	assert.Nil(t, res.Meta.RpcUsed)
	assert.Equal(t, 3, res.Meta.Retries)
	assert.Equal(t, "x", res.ID)
	require.NotNil(t, res.Error)
	assert.Equal(t, AllEndpointsUnavailableCode, res.Error.Code)

	data, ok := res.Error.Data.(ExhaustedData)
	require.True(t, ok)
	assert.Equal(t, 3, data.EndpointsTried)
	assert.Equal(t, "HTTP 503", data.LastError)

	for e := range d.Pool().ListEligible(clock.Now()) {
		t.Fatalf("endpoint %s should be cooling down", e.Name())
	}

	// nothing eligible: no calls, zero retries
	again, err := d.Dispatch(context.Background(), RPCRequest{Method: "eth_getLogs"})
	require.ErrorIs(t, err, ErrAllEndpointsExhausted)
	assert.Zero(t, again.Meta.Retries)
	assert.Equal(t, noEligibleEndpointsLastError, again.Error.Data.(ExhaustedData).LastError)
	assert.Equal(t, 3, caller.total())
}

func TestDispatchPassesApplicationErrorThrough(t *testing.T) {
	caller := newScriptedCaller(map[string]reply{
		"a": {status: http.StatusOK, body: `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"the method eth_foo does not exist"}}`},
		"b": resultReply(`"0x1"`),
	})
	d := newTestDispatcher(caller, newFakeClock(), "a", "b")

	res, err := d.Dispatch(context.Background(), RPCRequest{Method: "net_version"})
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, MethodNotFoundErrCode, res.Error.Code)
	assert.Equal(t, "the method eth_foo does not exist", res.Error.Message)
	assert.Equal(t, "a", rpcUsed(t, res))
	assert.Zero(t, res.Meta.Retries)
	assert.Zero(t, caller.calls["b"])
	assert.Zero(t, d.cache.Len())
}

func TestDispatchFailuresDoNotCoolDown(t *testing.T) {
	clock := newFakeClock()
	caller := newScriptedCaller(map[string]reply{
		"a": {err: errors.New("connection refused")},
		"b": {status: http.StatusInternalServerError},
		"c": {status: http.StatusOK, body: "<html>bad gateway</html>"},
		"d": resultReply(`"0x2"`),
	})
	d := newTestDispatcher(caller, clock, "a", "b", "c", "d")

	res, err := d.Dispatch(context.Background(), RPCRequest{Method: "eth_call"})
	require.NoError(t, err)
	assert.Equal(t, "d", rpcUsed(t, res))
	assert.Equal(t, 3, res.Meta.Retries)
	assert.Equal(t, 4, d.Pool().CountEligible(clock.Now()))
}

func TestDispatchOversizedLogQueryDoesNotCoolDown(t *testing.T) {
	clock := newFakeClock()
	caller := newScriptedCaller(map[string]reply{
		"a": {status: http.StatusOK, body: `{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"query returned more than 10000 results"}}`},
		"b": resultReply(`[]`),
	})
	d := newTestDispatcher(caller, clock, "a", "b")

	res, err := d.Dispatch(context.Background(), RPCRequest{Method: "eth_getLogs", Params: json.RawMessage(`[{"fromBlock":"0x0"}]`)})
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, LimitExceededErrCode, res.Error.Code)
	assert.Equal(t, "a", rpcUsed(t, res))
	assert.Zero(t, res.Meta.Retries)
	assert.Zero(t, caller.calls["b"])
	assert.Equal(t, 2, d.Pool().CountEligible(clock.Now()))
}

func TestDispatchFailsOverFromRateLimitedEndpoint(t *testing.T) {
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
	}))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "eth_blockNumber", req.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x64"}`))
	}))
	defer b.Close()

	epA, epB := NewEndpoint("A", a.URL), NewEndpoint("B", b.URL)
	before := time.Now()
	d := NewDispatcher(NewPool(epA, epB), NewResponseCache(DefaultCacheableMethods), NewHTTPCaller(), Options{
		RateLimitCooldown: time.Minute,
	})

	res, err := d.Dispatch(context.Background(), RPCRequest{JSONRPC: "2.0", Method: "eth_blockNumber", Params: json.RawMessage(`[]`), ID: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `"0x64"`, string(res.Result))
	assert.Equal(t, "B", rpcUsed(t, res))
	assert.Equal(t, 1, res.Meta.Retries)
	assert.False(t, res.Meta.CachedResult)
	assert.True(t, epA.RateLimitedUntil().After(before))
	assert.True(t, epB.RateLimitedUntil().IsZero())
}

func TestDispatchAttemptTimeoutMovesOn(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	defer fast.Close()

	d := NewDispatcher(NewPool(NewEndpoint("slow", slow.URL), NewEndpoint("fast", fast.URL)),
		NewResponseCache(nil), NewHTTPCaller(), Options{AttemptTimeout: 100 * time.Millisecond})

	res, err := d.Dispatch(context.Background(), RPCRequest{Method: "eth_call"})
	require.NoError(t, err)
	assert.Equal(t, "fast", rpcUsed(t, res))
	assert.Equal(t, 1, res.Meta.Retries)
	assert.True(t, d.Pool().endpoints[0].RateLimitedUntil().IsZero())
}

func TestDispatchIgnoresCallerCancellation(t *testing.T) {
	caller := newScriptedCaller(map[string]reply{"a": resultReply(`"0x1"`)})
	d := newTestDispatcher(caller, newFakeClock(), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := d.Dispatch(ctx, RPCRequest{Method: "eth_call"})
	require.NoError(t, err)
	assert.Equal(t, "a", rpcUsed(t, res))
}

func TestDispatchBatchKeepsOrder(t *testing.T) {
	caller := newScriptedCaller(map[string]reply{"a": resultReply(`"0x1"`)})
	d := newTestDispatcher(caller, newFakeClock(), "a")

	res := d.DispatchBatch(context.Background(), RPCRequests{
		{Method: "eth_call", ID: 1},
		{ID: 2},
		nil,
		{Method: "eth_chainId", ID: 4},
	})
	require.Len(t, res, 4)

	assert.Equal(t, 1, res[0].ID)
	assert.Nil(t, res[0].Error)
	assert.Equal(t, 2, res[1].ID)
	assert.Equal(t, InvalidRequestErrCode, res[1].Error.Code)
	assert.Nil(t, res[2].ID)
	assert.Equal(t, InvalidRequestErrCode, res[2].Error.Code)
	assert.Equal(t, 4, res[3].ID)
	assert.Nil(t, res[3].Error)
	assert.Equal(t, 2, caller.total())
}

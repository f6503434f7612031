package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/sync/errgroup"

	"rpcgate/internal/pkg/log"
	"rpcgate/internal/pkg/metrics"
)

const (
	DefaultAttemptTimeout    = 8 * time.Second
	DefaultRateLimitCooldown = 30 * time.Second
	DefaultCacheTTL          = 5 * time.Second

	maxBatchConcurrency = 8
)

type Options struct {
	// AttemptTimeout bounds a single upstream call, not the whole dispatch
	AttemptTimeout    time.Duration
	RateLimitCooldown time.Duration
	CacheTTL          time.Duration
	// Now is the clock, time.Now when nil
	Now func() time.Time
}

type Dispatcher struct {
	pool   *Pool
	cache  *ResponseCache
	caller Caller

	attemptTimeout    time.Duration
	rateLimitCooldown time.Duration
	cacheTTL          time.Duration
	now               func() time.Time
}

func NewDispatcher(pool *Pool, cache *ResponseCache, caller Caller, opts Options) *Dispatcher {
	d := &Dispatcher{
		pool:              pool,
		cache:             cache,
		caller:            caller,
		attemptTimeout:    opts.AttemptTimeout,
		rateLimitCooldown: opts.RateLimitCooldown,
		cacheTTL:          opts.CacheTTL,
		now:               opts.Now,
	}
	if d.attemptTimeout <= 0 {
		d.attemptTimeout = DefaultAttemptTimeout
	}
	if d.rateLimitCooldown <= 0 {
		d.rateLimitCooldown = DefaultRateLimitCooldown
	}
	if d.cacheTTL <= 0 {
		d.cacheTTL = DefaultCacheTTL
	}
	if d.now == nil {
		d.now = time.Now
	}

	return d
}

func (d *Dispatcher) Pool() *Pool {
	return d.pool
}

// WalkBudget is the longest a single dispatch can take: every endpoint
// eligible and every attempt running into its timeout.
func (d *Dispatcher) WalkBudget() time.Duration {
	return d.attemptTimeout * time.Duration(d.pool.Len())
}

// TimeoutResponse is the envelope sent when the server gives up on a request
// before its endpoint walk is over.
func TimeoutResponse(timeout time.Duration) *RPCResponse {
	return &RPCResponse{
		JSONRPC: jsonrpcVersion,
		Error: &jsonrpc.RPCError{
			Code:    AllEndpointsUnavailableCode,
			Message: allEndpointsUnavailableMsg,
			Data: ExhaustedData{
				LastError:  fmt.Sprintf("request timeout after %s", timeout),
				Suggestion: allEndpointsRetrySuggestion,
			},
		},
		Meta: &Meta{
			LatencyMs: timeout.Milliseconds(),
		},
	}
}

// Dispatch satisfies one JSON-RPC call. The returned response is always a
// complete envelope; the error is ErrInvalidRequest or
// ErrAllEndpointsExhausted when the envelope carries a gateway error.
// Cancellation of ctx does not stop the endpoint walk.
func (d *Dispatcher) Dispatch(ctx context.Context, req RPCRequest) (*RPCResponse, error) {
	start := d.now()
	req = normalizeRequest(req)

	if req.Method == "" {
		metrics.IncDispatchRequestsCnt(req.Method, "invalid")
		return d.invalidRequestResponse(req.ID, "missing method", start), ErrInvalidRequest
	}

	key, cacheable := d.cache.KeyFor(req.Method, req.Params)
	if cacheable {
		if result, ok := d.cache.Get(key, start); ok {
			rpcUsed := cacheRpcUsed
			latency := d.now().Sub(start)
			metrics.IncDispatchRequestsCnt(req.Method, "cache")
			metrics.ObserveDispatchLatency(req.Method, true, latency)

			return &RPCResponse{
				JSONRPC: jsonrpcVersion,
				ID:      req.ID,
				Result:  result,
				Meta: &Meta{
					RpcUsed:      &rpcUsed,
					LatencyMs:    latency.Milliseconds(),
					CachedResult: true,
				},
			}, nil
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		metrics.IncDispatchRequestsCnt(req.Method, "invalid")
		return d.invalidRequestResponse(req.ID, fmt.Sprintf("Marshal: %s", err), start), ErrInvalidRequest
	}

	var (
		retries int
		lastErr error
	)
	for e := range d.pool.ListEligible(start) {
		outcome := d.attempt(ctx, e, body)
		metrics.IncEndpointAttemptsCnt(e.Name(), outcome.Kind.String())

		switch outcome.Kind {
		case OutcomeSuccess, OutcomeApplicationError:
			if cacheable && outcome.Response.HasResult() {
				d.cache.Put(key, outcome.Response.Result, d.now(), d.cacheTTL)
			}

			return d.finalResponse(req, outcome, e, retries, start), nil
		case OutcomeRateLimited:
			d.pool.MarkRateLimited(e, d.now(), d.rateLimitCooldown)
			log.Logger.Gateway.Warnf("endpoint %s rate limited (%s), cooling down for %s", e.Name(), outcome.Err, d.rateLimitCooldown)
		case OutcomeHTTPFailure, OutcomeTransportFailure:
			log.Logger.Gateway.Errorf("endpoint %s %s: %s", e.Name(), outcome.Kind, outcome.Err)
		}

		retries++
		lastErr = outcome.Err
	}

	return d.exhaustedResponse(req, retries, lastErr, start), ErrAllEndpointsExhausted
}

// DispatchBatch dispatches every call concurrently and keeps request order.
func (d *Dispatcher) DispatchBatch(ctx context.Context, reqs RPCRequests) RPCResponses {
	res := make(RPCResponses, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBatchConcurrency)
	for i, r := range reqs {
		g.Go(func() error {
			if r == nil {
				res[i] = d.invalidRequestResponse(nil, "empty batch element", d.now())
				return nil
			}
			// envelope errors are per element, never abort the batch
			res[i], _ = d.Dispatch(gctx, *r)
			return nil
		})
	}
	_ = g.Wait()

	return res
}

func (d *Dispatcher) attempt(ctx context.Context, e *Endpoint, body []byte) Outcome {
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.attemptTimeout)
	defer cancel()

	startTime := d.now()
	statusCode, respBody, err := d.caller.Call(attemptCtx, e, body)
	metrics.ObserveEndpointResponseTime(e.Name(), d.now().Sub(startTime))

	return classify(statusCode, respBody, err)
}

func (d *Dispatcher) finalResponse(req RPCRequest, outcome Outcome, e *Endpoint, retries int, start time.Time) *RPCResponse {
	rpcUsed := e.Name()
	latency := d.now().Sub(start)
	metrics.IncDispatchRequestsCnt(req.Method, outcome.Kind.String())
	metrics.ObserveDispatchLatency(req.Method, false, latency)
	metrics.ObserveDispatchRetries(req.Method, retries)

	return &RPCResponse{
		JSONRPC: jsonrpcVersion,
		ID:      req.ID,
		Result:  outcome.Response.Result,
		Error:   outcome.Response.Error,
		Meta: &Meta{
			RpcUsed:   &rpcUsed,
			LatencyMs: latency.Milliseconds(),
			Retries:   retries,
		},
	}
}

func (d *Dispatcher) exhaustedResponse(req RPCRequest, retries int, lastErr error, start time.Time) *RPCResponse {
	lastError := noEligibleEndpointsLastError
	if lastErr != nil {
		lastError = lastErr.Error()
	}
	latency := d.now().Sub(start)
	metrics.IncDispatchRequestsCnt(req.Method, "exhausted")
	metrics.ObserveDispatchRetries(req.Method, retries)
	log.Logger.Gateway.Errorf("%s: all endpoints exhausted after %d attempts: %s", req.Method, retries, lastError)

	return &RPCResponse{
		JSONRPC: jsonrpcVersion,
		ID:      req.ID,
		Error: &jsonrpc.RPCError{
			Code:    AllEndpointsUnavailableCode,
			Message: allEndpointsUnavailableMsg,
			Data: ExhaustedData{
				LastError:      lastError,
				EndpointsTried: retries,
				Suggestion:     allEndpointsRetrySuggestion,
			},
		},
		Meta: &Meta{
			LatencyMs: latency.Milliseconds(),
			Retries:   retries,
		},
	}
}

func (d *Dispatcher) invalidRequestResponse(id interface{}, reason string, start time.Time) *RPCResponse {
	return &RPCResponse{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Error: &jsonrpc.RPCError{
			Code:    InvalidRequestErrCode,
			Message: "Invalid request",
			Data:    reason,
		},
		Meta: &Meta{
			LatencyMs: d.now().Sub(start).Milliseconds(),
		},
	}
}

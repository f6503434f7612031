package probe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/sync/errgroup"

	"rpcgate/internal/dispatch"
	"rpcgate/internal/pkg/config"
	"rpcgate/internal/pkg/log"
)

type Status string

const (
	StatusOK          Status = "ok"
	StatusRpcError    Status = "rpc_error"
	StatusRateLimited Status = "rate_limited"
	StatusFailed      Status = "failed"
)

type Result struct {
	Name    string
	URL     string
	Status  Status
	Latency time.Duration
	// result on success, error message otherwise
	Detail string
}

// Answered reports whether the endpoint returned a JSON-RPC envelope.
func (r Result) Answered() bool {
	return r.Status == StatusOK || r.Status == StatusRpcError
}

type Prober struct {
	method  string
	timeout time.Duration
}

func New(method string, timeout time.Duration) *Prober {
	return &Prober{method: method, timeout: timeout}
}

func newClient(url string, timeout time.Duration) jsonrpc.RPCClient {
	return jsonrpc.NewClientWithOpts(url, &jsonrpc.RPCClientOpts{HTTPClient: &http.Client{
		Timeout:   timeout,
		Transport: gzhttp.Transport(dispatch.NewHTTPTransport()),
	}})
}

// Run calls the method once on every target concurrently, results keep target order.
func (p *Prober) Run(ctx context.Context, targets config.EndpointTargets) []Result {
	results := make([]Result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			results[i] = p.probe(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Prober) probe(ctx context.Context, t config.EndpointTarget) Result {
	res := Result{Name: t.Name, URL: t.Url}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := newClient(t.Url, p.timeout).Call(ctx, p.method)
	res.Latency = time.Since(start)

	var httpErr *jsonrpc.HTTPError
	switch {
	case errors.As(err, &httpErr) && dispatch.IsRateLimitStatus(httpErr.Code):
		res.Status, res.Detail = StatusRateLimited, httpErr.Error()
	case err != nil:
		res.Status, res.Detail = StatusFailed, err.Error()
	case resp.Error != nil && dispatch.IsRateLimitError(resp.Error):
		res.Status, res.Detail = StatusRateLimited, resp.Error.Message
	case resp.Error != nil:
		res.Status, res.Detail = StatusRpcError, resp.Error.Error()
	default:
		res.Status, res.Detail = StatusOK, string(resp.Result)
	}
	log.Logger.Probe.Debugf("%s: %s in %s", t.Name, res.Status, res.Latency)

	return res
}

// AllFailed is true when no endpoint answered.
func AllFailed(results []Result) bool {
	for _, r := range results {
		if r.Answered() {
			return false
		}
	}

	return true
}

package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

// Caller performs one upstream JSON-RPC POST. The context carries the
// per-attempt deadline.
type Caller interface {
	Call(ctx context.Context, e *Endpoint, body []byte) (statusCode int, respBody []byte, err error)
}

const (
	transportDialerTimeout = 2 * time.Second
	maxResponseBodySize    = 16 << 20
)

var ErrResponseTooLarge = errors.New("upstream response too large")

type HTTPCaller struct {
	client      *http.Client
	maxBodySize int64
}

func NewHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   transportDialerTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func NewHTTPCaller() *HTTPCaller {
	return newHTTPCaller(maxResponseBodySize)
}

func newHTTPCaller(maxBodySize int64) *HTTPCaller {
	return &HTTPCaller{
		client: &http.Client{
			Transport: gzhttp.Transport(NewHTTPTransport()),
		},
		maxBodySize: maxBodySize,
	}
}

func (hc *HTTPCaller) Call(ctx context.Context, e *Endpoint, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL(), bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("NewRequest: %s", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	// one extra byte tells a full body from a cut one
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, hc.maxBodySize+1))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("ReadAll: %s", err)
	}
	if int64(len(respBody)) > hc.maxBodySize {
		return resp.StatusCode, nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, hc.maxBodySize)
	}

	return resp.StatusCode, respBody, nil
}

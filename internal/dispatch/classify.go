package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeApplicationError
	OutcomeRateLimited
	OutcomeHTTPFailure
	OutcomeTransportFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeApplicationError:
		return "app_error"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeHTTPFailure:
		return "http_failure"
	case OutcomeTransportFailure:
		return "transport_failure"
	}

	return "unknown"
}

// Outcome is the result of one upstream attempt. Response is set for
// Success and ApplicationError, Err for everything else.
type Outcome struct {
	Kind     OutcomeKind
	Response *RPCResponse
	Err      error
}

// Final reports whether the outcome ends the endpoint walk.
func (o Outcome) Final() bool {
	return o.Kind == OutcomeSuccess || o.Kind == OutcomeApplicationError
}

var (
	rateLimitStatuses = map[int]struct{}{
		http.StatusTooManyRequests:    {},
		http.StatusServiceUnavailable: {},
		509:                           {}, // bandwidth limit exceeded
	}
	rateLimitErrCodes = map[int]struct{}{
		LimitExceededErrCode:       {},
		http.StatusTooManyRequests: {},
	}
	rateLimitMessage = regexp.MustCompile(`(?i)rate[ _-]?limit|too many requests|request limit|limit exceeded|exceeded .*capacity|throttl`)
	// -32005 is also used for eth_getLogs queries whose result is too big
	resultTooLargeMessage = regexp.MustCompile(`(?i)query returned more than|more than \d+ results|response size|results? (set )?(is )?too (large|big)|too many (results|logs)|block range|range (is )?too (large|wide)`)
)

// IsRateLimitStatus reports whether an HTTP status is a throttling signal.
func IsRateLimitStatus(statusCode int) bool {
	_, ok := rateLimitStatuses[statusCode]
	return ok
}

// IsRateLimitError reports whether a JSON-RPC error is a throttling signal.
func IsRateLimitError(rpcErr *jsonrpc.RPCError) bool {
	if rpcErr == nil {
		return false
	}
	if resultTooLargeMessage.MatchString(rpcErr.Message) {
		return false
	}
	if _, ok := rateLimitErrCodes[rpcErr.Code]; ok {
		return true
	}

	return rateLimitMessage.MatchString(rpcErr.Message)
}

func classify(statusCode int, body []byte, callErr error) Outcome {
	if callErr != nil {
		return Outcome{Kind: OutcomeTransportFailure, Err: callErr}
	}
	if IsRateLimitStatus(statusCode) {
		return Outcome{Kind: OutcomeRateLimited, Err: fmt.Errorf("HTTP %d", statusCode)}
	}
	if statusCode < 200 || statusCode >= 300 {
		return Outcome{Kind: OutcomeHTTPFailure, Err: fmt.Errorf("HTTP %d", statusCode)}
	}

	rpcResponse, err := decodeNodeResponse(body)
	if err != nil {
		return Outcome{Kind: OutcomeTransportFailure, Err: err}
	}
	if rpcResponse.Error != nil {
		if IsRateLimitError(rpcResponse.Error) {
			return Outcome{Kind: OutcomeRateLimited, Err: fmt.Errorf("rpcErr: code %d %s", rpcResponse.Error.Code, rpcResponse.Error.Message)}
		}

		return Outcome{Kind: OutcomeApplicationError, Response: rpcResponse}
	}

	return Outcome{Kind: OutcomeSuccess, Response: rpcResponse}
}

func decodeNodeResponse(body []byte) (*RPCResponse, error) {
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}

	var rpcResponse RPCResponse
	err := NewJsonDecoder(body, false).Decode(&rpcResponse)
	if err != nil {
		return nil, fmt.Errorf("error while parsing response: %s", err)
	}
	if rpcResponse.JSONRPC == "" {
		return nil, errors.New("empty response body")
	}
	if rpcResponse.Error == nil && len(rpcResponse.Result) == 0 {
		return nil, errors.New("empty response field")
	}
	// upstream metadata is never trusted
	rpcResponse.Meta = nil

	return &rpcResponse, nil
}

package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

const (
	jsonrpcVersion    = "2.0"
	jsonMsgNullString = "null"
	cacheRpcUsed      = "cache"

	ParseErrCode                 = -32700
	InvalidRequestErrCode        = -32600
	MethodNotFoundErrCode        = -32601
	InvalidParamsErrCode         = -32602
	InternalErrorErrCode         = -32603
	LimitExceededErrCode         = -32005
	AllEndpointsUnavailableCode  = -32000
	allEndpointsUnavailableMsg   = "All RPC endpoints unavailable"
	allEndpointsRetrySuggestion  = "Retry in a few seconds; every upstream endpoint is failing or rate limited"
	noEligibleEndpointsLastError = "no eligible endpoints: all endpoints are cooling down"
)

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrAllEndpointsExhausted = errors.New("all endpoints exhausted")
)

type (
	// copied from jsonrpc, 'id' field changed to interface (can be int, string, null)
	// and params kept raw so they are forwarded untouched
	RPCRequest struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
		ID      interface{}     `json:"id"`
	}
	RPCRequests []*RPCRequest

	RPCResponse struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      interface{}       `json:"id"`
		Result  json.RawMessage   `json:"result,omitempty"`
		Error   *jsonrpc.RPCError `json:"error,omitempty"`
		Meta    *Meta             `json:"_meta,omitempty"`
	}
	RPCResponses []*RPCResponse

	Meta struct {
		// nil on total failure
		RpcUsed      *string `json:"rpcUsed"`
		LatencyMs    int64   `json:"latencyMs"`
		CachedResult bool    `json:"cachedResult"`
		Retries      int     `json:"retries"`
	}

	ExhaustedData struct {
		LastError      string `json:"lastError"`
		EndpointsTried int    `json:"endpointsTried"`
		Suggestion     string `json:"suggestion"`
	}
)

// HasResult reports whether the response carries a usable result and no error.
func (r *RPCResponse) HasResult() bool {
	if r == nil || r.Error != nil {
		return false
	}

	return len(r.Result) != 0 && string(r.Result) != jsonMsgNullString
}

func normalizeRequest(req RPCRequest) RPCRequest {
	if req.JSONRPC == "" {
		req.JSONRPC = jsonrpcVersion
	}
	params := bytes.TrimSpace(req.Params)
	if len(params) == 0 || string(params) == jsonMsgNullString {
		req.Params = json.RawMessage("[]")
	}
	if req.ID == nil {
		req.ID = 1
	}

	return req
}

func NewJsonDecoder(data []byte, disallowUnknownFields bool) (decoder *json.Decoder) {
	decoder = json.NewDecoder(bytes.NewBuffer(data))
	decoder.UseNumber()
	if disallowUnknownFields {
		decoder.DisallowUnknownFields()
	}

	return
}

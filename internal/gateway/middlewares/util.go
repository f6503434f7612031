package middlewares

import (
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/labstack/echo/v4"

	"rpcgate/internal/dispatch"
)

const (
	bodyLimit      = 1000
	jsonrpcVersion = "2.0"

	HeaderRpcUsed    = "X-Rpc-Used"
	HeaderRpcRetries = "X-Rpc-Retries"
	HeaderRpcCached  = "X-Rpc-Cached"
)

func errMsg(err error) string {
	if err == nil {
		return ""
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr == nil {
		return err.Error()
	}
	rpcResponse, ok := httpErr.Message.(*dispatch.RPCResponse)
	if !ok || rpcResponse == nil || rpcResponse.Error == nil {
		return httpErr.Error()
	}

	return rpcResponse.Error.Message
}

var (
	parseErrorResponse = &dispatch.RPCResponse{
		Error: &jsonrpc.RPCError{
			Code:    dispatch.ParseErrCode,
			Message: "Parse error",
		},
		JSONRPC: jsonrpcVersion,
	}
	emptyBatchErrorResponse = &dispatch.RPCResponse{
		Error: &jsonrpc.RPCError{
			Code:    dispatch.InvalidRequestErrCode,
			Message: "Invalid request",
			Data:    "empty batch",
		},
		JSONRPC: jsonrpcVersion,
	}
	invalidContentTypeErrorResponse = &dispatch.RPCResponse{
		Error: &jsonrpc.RPCError{
			Code:    415,
			Message: "Invalid content-type, this application only supports application/json",
		},
		JSONRPC: jsonrpcVersion,
	}
)

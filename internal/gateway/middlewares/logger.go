package middlewares

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/blake2b"

	"rpcgate/internal/pkg/log"
	"rpcgate/internal/pkg/storage"
	echo2 "rpcgate/internal/pkg/util/echo"
)

func NewLoggerMiddleware(saveStat func(storage.Stat)) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogRequestID: true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogURI:       true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			cc := c.(*echo2.CustomContext)
			saveStat(newStat(cc, v))

			// truncate before log
			reqBody := truncate(cc.GetReqBody())
			resBody := truncate(cc.GetResBody())

			if v.Error != nil || len(cc.GetRpcErrors()) != 0 || v.Status >= http.StatusBadRequest {
				log.Logger.Gateway.Errorf("%d %s, id: %s, latency: %d, rpc_used: %s, rpc_method: %v, retries: %d, cached: %t, "+
					"rpc_error_code: %v, error: %s, request_body: %s, response_body: %s, remote_ip: %s, user_agent: %s, path: %s",
					v.Status, v.Method, v.RequestID, v.Latency.Milliseconds(), cc.GetRpcUsed(), cc.GetReqMethods(), cc.GetRetries(), cc.GetCached(),
					cc.GetRpcErrors(), errMsg(v.Error), reqBody, resBody, v.RemoteIP, v.UserAgent, v.URI)
			} else {
				log.Logger.Gateway.Infof("%d %s, id: %s, latency: %d, rpc_used: %s, rpc_method: %v, retries: %d, cached: %t, "+
					"request_body: %s, response_body: %s, remote_ip: %s, user_agent: %s, path: %s",
					v.Status, v.Method, v.RequestID, v.Latency.Milliseconds(), cc.GetRpcUsed(), cc.GetReqMethods(), cc.GetRetries(), cc.GetCached(),
					reqBody, resBody, v.RemoteIP, v.UserAgent, v.URI)
			}

			return nil
		},
	})
}

func newStat(cc *echo2.CustomContext, v middleware.RequestLoggerValues) storage.Stat {
	var rpcErrorCode string
	if codes := cc.GetRpcErrors(); len(codes) > 1 {
		rpcErrorCode = echo2.MultipleValuesRequested
	} else if len(codes) == 1 {
		rpcErrorCode = fmt.Sprintf("%d", codes[0])
	}

	clientHash := blake2b.Sum256([]byte(v.RemoteIP))

	return storage.Stat{
		Timestamp:       time.Now().UTC(),
		ClientHash:      hex.EncodeToString(clientHash[:]),
		RequestID:       v.RequestID,
		Status:          uint16(v.Status),
		ExecutionTimeMs: v.Latency.Milliseconds(),
		RpcMethod:       cc.GetReqMethod(),
		RpcUsed:         cc.GetRpcUsed(),
		Retries:         uint8(min(cc.GetRetries(), 255)),
		Cached:          cc.GetCached(),
		RpcErrorCode:    rpcErrorCode,
		UserAgent:       v.UserAgent,
	}
}

func truncate(s string) string {
	if len(s) > bodyLimit {
		return s[:bodyLimit]
	}
	return s
}

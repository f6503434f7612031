package middlewares

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"rpcgate/internal/dispatch"
	echo2 "rpcgate/internal/pkg/util/echo"
)

const noRpcUsed = "none"

// NewDispatchMiddleware is the last element of the chain, it never calls next.
func NewDispatchMiddleware(d *dispatch.Dispatcher) echo.MiddlewareFunc {
	return func(_ echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := c.(*echo2.CustomContext)

			parsed, batch := cc.GetParsedRequest()
			if batch {
				reqs, ok := parsed.(dispatch.RPCRequests)
				if !ok {
					return echo.NewHTTPError(http.StatusInternalServerError)
				}

				return respondBatch(cc, d.DispatchBatch(c.Request().Context(), reqs))
			}

			req, ok := parsed.(*dispatch.RPCRequest)
			if !ok || req == nil {
				return echo.NewHTTPError(http.StatusInternalServerError)
			}

			res, err := d.Dispatch(c.Request().Context(), *req)
			status := http.StatusOK
			switch {
			case errors.Is(err, dispatch.ErrInvalidRequest):
				status = http.StatusBadRequest
				cc.SetUserError(true)
			case errors.Is(err, dispatch.ErrAllEndpointsExhausted):
				status = http.StatusServiceUnavailable
				cc.SetHasError(true)
			}

			return respond(cc, status, res, res.Meta)
		}
	}
}

func respondBatch(cc *echo2.CustomContext, res dispatch.RPCResponses) error {
	var (
		meta      = dispatch.Meta{CachedResult: true}
		used      []string
		seen      = make(map[string]struct{})
		exhausted int
	)
	for _, r := range res {
		if r.Error != nil && r.Error.Code == dispatch.AllEndpointsUnavailableCode {
			exhausted++
		}
		if r.Meta == nil {
			meta.CachedResult = false
			continue
		}
		meta.Retries += r.Meta.Retries
		meta.CachedResult = meta.CachedResult && r.Meta.CachedResult
		if r.Meta.RpcUsed == nil {
			continue
		}
		if _, ok := seen[*r.Meta.RpcUsed]; !ok {
			seen[*r.Meta.RpcUsed] = struct{}{}
			used = append(used, *r.Meta.RpcUsed)
		}
	}
	if len(used) != 0 {
		joined := strings.Join(used, ",")
		meta.RpcUsed = &joined
	}

	status := http.StatusOK
	if exhausted == len(res) {
		status = http.StatusServiceUnavailable
		cc.SetHasError(true)
	}

	return respond(cc, status, res, &meta)
}

func respond(cc *echo2.CustomContext, status int, body any, meta *dispatch.Meta) error {
	rpcUsed := noRpcUsed
	if meta != nil {
		if meta.RpcUsed != nil {
			rpcUsed = *meta.RpcUsed
		}
		cc.SetRpcUsed(rpcUsed)
		cc.SetRetries(meta.Retries)
		cc.SetCached(meta.CachedResult)
	}
	cc.SetRpcErrors(rpcErrorCodes(body))

	h := cc.Response().Header()
	h.Set(HeaderRpcUsed, rpcUsed)
	h.Set(HeaderRpcRetries, strconv.Itoa(cc.GetRetries()))
	h.Set(HeaderRpcCached, strconv.FormatBool(cc.GetCached()))

	resBody, err := json.Marshal(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	cc.SetResBody(string(resBody))

	return cc.JSONBlob(status, resBody)
}

func rpcErrorCodes(body any) (codes []int) {
	switch b := body.(type) {
	case *dispatch.RPCResponse:
		if b.Error != nil {
			codes = append(codes, b.Error.Code)
		}
	case dispatch.RPCResponses:
		for _, r := range b {
			if r != nil && r.Error != nil {
				codes = append(codes, r.Error.Code)
			}
		}
	}

	return codes
}

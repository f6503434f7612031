package middlewares

import (
	"github.com/labstack/echo/v4"

	"rpcgate/internal/pkg/metrics"
	echo2 "rpcgate/internal/pkg/util/echo"
)

func NewMetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			cc := c.(*echo2.CustomContext)

			success := !cc.GetHasError() || cc.GetUserError()
			metrics.IncHttpResponsesTotalCnt(cc.GetReqMethod(), success)

			return err
		}
	}
}

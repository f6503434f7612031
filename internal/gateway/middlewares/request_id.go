package middlewares

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"rpcgate/internal/pkg/log"
)

// RequestIDMiddleware returns a X-Request-ID middleware.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := generator()
			c.Request().Header.Set(echo.HeaderXRequestID, rid) // prevent reading the custom id by the logger middleware
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			return next(c)
		}
	}
}

func generator() string {
	u, err := uuid.NewRandom()
	if err != nil {
		log.Logger.Gateway.Errorf("uuid.NewRandom: %s", err)
	}

	return u.String()
}

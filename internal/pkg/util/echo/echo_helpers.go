package echo

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log2 "github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"rpcgate/internal/pkg/log"
)

const (
	apiReadTimeout        = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	writeTimeoutMargin    = 2 * time.Second
)

// InitHandlersStart installs the global chain. timeoutBody is written as is
// when a request outlives requestTimeout, POST responses are JSON.
func InitHandlersStart(router *echo.Echo, rps float64, requestTimeout time.Duration, timeoutBody string) {
	router.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
		LogErrorFunc:    LogPanic,
	}))
	router.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&CustomContext{
				Context: c,
			})
		}
	})
	// the timeout handler writes its body to the original writer, set the type there
	router.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodPost {
				c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			}
			return next(c)
		}
	})
	router.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		ErrorMessage: timeoutBody,
		Timeout:      requestTimeout,
	}))

	// general rate limit, per client ip
	if rps > 0 {
		router.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(rps))))
	}
}

func SetupServer(router *echo.Echo, requestTimeout time.Duration) {
	router.HideBanner = true
	router.HidePort = true
	router.Server.ReadTimeout = apiReadTimeout
	router.Server.WriteTimeout = requestTimeout + writeTimeoutMargin // must be greater than requestTimeout, which used for timeout middleware
	router.Logger.SetLevel(log2.OFF)
}

func LogPanic(c echo.Context, err error, stack []byte) error {
	log.Logger.Gateway.Errorf("PANIC RECOVER: %s %s", err, strconv.Quote(string(stack)))
	return nil
}

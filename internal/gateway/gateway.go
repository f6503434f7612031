package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"rpcgate/internal/dispatch"
	"rpcgate/internal/gateway/config"
	"rpcgate/internal/gateway/middlewares"
	"rpcgate/internal/pkg/log"
	"rpcgate/internal/pkg/metrics"
	"rpcgate/internal/pkg/storage"
	"rpcgate/internal/pkg/storage/clickhouse"
	"rpcgate/internal/pkg/storage/delayed_insertion"
	"rpcgate/internal/pkg/storage/sqlite"
	echo2 "rpcgate/internal/pkg/util/echo"
)

type gateway struct {
	certData      []byte
	port           uint64
	metricsPort    uint64
	requestTimeout time.Duration
	router        *echo.Echo
	metricsServer *echo.Echo
	waitGroup     *sync.WaitGroup
	ctx           context.Context
	ctxCancel     context.CancelFunc

	dispatcher     *dispatch.Dispatcher
	sqliteStorage  *sqlite.Storage
	chStorage      *clickhouse.Storage
	statsCollector *delayed_insertion.Collector[storage.Stat]
}

const (
	serverShutdownTimeout   = 10 * time.Second
	availableEndpointsCheck = 5 * time.Second
	metricsNamespace        = "rpcgate"
	dispatchTimeoutMargin   = 5 * time.Second
)

// requestTimeout leaves room for a full endpoint walk, so a dispatch always
// ends with its own envelope before the server timeout fires.
func requestTimeout(d *dispatch.Dispatcher) time.Duration {
	return max(echo2.DefaultRequestTimeout, d.WalkBudget()+dispatchTimeoutMargin)
}

func NewGateway(cfg config.Config) (*gateway, error) {
	ctx, cancelFunc := context.WithCancel(context.Background())

	targets, err := cfg.Gateway.Targets()
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("Targets: %s", err)
	}
	endpoints := make([]*dispatch.Endpoint, 0, len(targets))
	for _, t := range targets {
		endpoints = append(endpoints, dispatch.NewEndpoint(t.Name, t.Url))
	}

	sqliteStorage, err := sqlite.New(ctx, cfg.Stats)
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("sqlite storage init: %s", err)
	}
	hostname, _ := os.Hostname()
	chStorage, err := clickhouse.New(cfg.Stats.ClickhouseDSN, hostname)
	if err != nil {
		cancelFunc()
		closeStorage("sqlite", sqliteStorage)
		return nil, fmt.Errorf("CH storage init: %s", err)
	}

	var savers []delayed_insertion.Saver[storage.Stat]
	if sqliteStorage != nil {
		savers = append(savers, sqliteStorage.BatchInsertStats)
	}
	if chStorage != nil {
		savers = append(savers, chStorage.BatchInsertStats)
	}

	g := &gateway{
		port:          cfg.Gateway.Port,
		metricsPort:   cfg.Gateway.MetricsPort,
		router:        echo.New(),
		metricsServer: echo.New(),
		waitGroup:     &sync.WaitGroup{},
		ctx:           ctx,
		ctxCancel:     cancelFunc,

		dispatcher: dispatch.NewDispatcher(
			dispatch.NewPool(endpoints...),
			dispatch.NewResponseCache(cfg.Gateway.CacheableMethods),
			dispatch.NewHTTPCaller(),
			dispatch.Options{
				AttemptTimeout:    cfg.Gateway.AttemptTimeout,
				RateLimitCooldown: cfg.Gateway.RateLimitCooldown,
				CacheTTL:          cfg.Gateway.CacheTTL,
			},
		),
		sqliteStorage:  sqliteStorage,
		chStorage:      chStorage,
		statsCollector: delayed_insertion.New[storage.Stat](ctx, cfg.Stats.FlushInterval, savers...),
	}

	if cfg.Gateway.CertFile != "" {
		g.certData, err = os.ReadFile(cfg.Gateway.CertFile)
		if err != nil {
			cancelFunc()
			<-g.statsCollector.Done()
			closeStorage("sqlite", sqliteStorage)
			closeStorage("clickhouse", chStorage)
			return nil, fmt.Errorf("fail to read certificate (%s): %s", cfg.Gateway.CertFile, err)
		}
	}
	g.requestTimeout = requestTimeout(g.dispatcher)
	g.setupServer()
	g.initMetrics()
	g.initHandlers(cfg.Gateway.RateLimitRPS)

	g.waitGroup.Add(1)
	go g.closeStorages()
	go g.observeAvailableEndpoints()

	log.Logger.Gateway.Infof("gateway configured with %d endpoints, request timeout %s", len(endpoints), g.requestTimeout)

	return g, nil
}

func (g *gateway) setupServer() {
	echo2.SetupServer(g.router, g.requestTimeout)
	echo2.SetupServer(g.metricsServer, echo2.DefaultRequestTimeout)
}

func (g *gateway) initMetrics() {
	g.metricsServer.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
		LogErrorFunc:    echo2.LogPanic,
	}))
	g.metricsServer.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				log.Logger.Gateway.Errorf("metrics: code %d method %s: %s", v.Status, v.Method, v.Error)
			}
			return nil
		},
	}))

	prom := prometheus.NewPrometheus(metricsNamespace, nil, metrics.MetricList())
	// Setup metrics endpoint at another server
	prom.SetMetricsPath(g.metricsServer)

	metrics.InitStartTime()
}

func (g *gateway) initHandlers(rps float64) {
	timeoutBody, err := json.Marshal(dispatch.TimeoutResponse(g.requestTimeout))
	if err != nil {
		log.Logger.Gateway.Fatalf("timeout response: %s", err)
	}
	echo2.InitHandlersStart(g.router, rps, g.requestTimeout, string(timeoutBody))

	g.router.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		ExposeHeaders: []string{echo.HeaderXRequestID, middlewares.HeaderRpcUsed, middlewares.HeaderRpcRetries, middlewares.HeaderRpcCached},
	}))

	g.router.GET("/health", g.healthHandler)
	g.router.GET("/endpoints", g.endpointsHandler)
	g.router.GET("/stats", g.statsHandler)

	// dispatch
	g.router.POST("/", nil,
		middlewares.RequestDurationMiddleware(),
		middlewares.RequestIDMiddleware(),
		middlewares.NewLoggerMiddleware(g.statsCollector.Add),
		middlewares.NewMetricsMiddleware(),
		middlewares.NewValidatorMiddleware(),
		middlewares.NewDispatchMiddleware(g.dispatcher),
	)
}

func (g *gateway) observeAvailableEndpoints() {
	for {
		metrics.ObserveAvailableEndpoints(g.dispatcher.Pool().CountEligible(time.Now()))

		select {
		case <-g.ctx.Done():
			return
		case <-time.After(availableEndpointsCheck):
		}
	}
}

func (g *gateway) Run() (err error) {
	addr := fmt.Sprintf(":%d", g.port)
	if len(g.certData) != 0 {
		err = g.router.StartTLS(addr, g.certData, g.certData)
	} else {
		err = g.router.Start(addr)
	}

	if err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (g *gateway) RunMetrics() (err error) {
	if g.metricsPort == 0 {
		return nil
	}
	err = g.metricsServer.Start(fmt.Sprintf(":%d", g.metricsPort))
	if err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (g *gateway) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	go g.metricsServer.Shutdown(ctx)
	err := g.router.Shutdown(ctx)
	if err != nil {
		log.Logger.Gateway.Errorf("router.Shutdown: %s", err)
	}
	// final stats flush runs on cancel
	g.ctxCancel()

	return nil
}

func (g *gateway) closeStorages() {
	defer g.waitGroup.Done()
	<-g.statsCollector.Done()

	closeStorage("sqlite", g.sqliteStorage)
	closeStorage("clickhouse", g.chStorage)
}

func closeStorage(name string, s io.Closer) {
	if err := s.Close(); err != nil {
		log.Logger.Gateway.Errorf("%s.Close: %s", name, err)
	}
}

func (g *gateway) WaitGroup() *sync.WaitGroup {
	return g.waitGroup
}

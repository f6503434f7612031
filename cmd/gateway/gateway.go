package main

import (
	"flag"
	"time"

	"rpcgate/internal/gateway"
	gatewayConfig "rpcgate/internal/gateway/config"
	"rpcgate/internal/pkg/config"
	"rpcgate/internal/pkg/log"
	"rpcgate/internal/pkg/util"
)

const (
	waitTimeout = time.Second * 15
)

type flags struct {
	logLevel string
	envFile  string
}

// Setup flags
func getFlags() (f flags) {
	flag.StringVar(&f.logLevel, "log", "info", "log level [debug|info|warn|error|crit]")
	flag.StringVar(&f.envFile, "envFile", "", "path to .env file")
	flag.Parse()

	return
}

func main() {
	f := getFlags()
	err := log.Setup(f.logLevel)
	if err != nil {
		log.Logger.Gateway.Fatalf("Log setup: %s", err)
	}

	cfg, err := config.LoadFile[gatewayConfig.Config](f.envFile)
	if err != nil {
		log.Logger.Gateway.Fatalf("Config: %s", err)
	}

	app, err := gateway.NewGateway(cfg)
	if err != nil {
		log.Logger.Gateway.Fatalf("NewGateway: %s", err)
	}

	// Gateway
	go func() {
		log.Logger.Gateway.Infof("listening on :%d", cfg.Gateway.Port)
		if err := app.Run(); err != nil {
			log.Logger.Gateway.Fatalf("Gateway: %s", err)
		}
	}()
	// Metrics
	go func() {
		if err := app.RunMetrics(); err != nil {
			log.Logger.Gateway.Fatalf("Metrics: %s", err)
		}
	}()

	// Termination handler.
	util.GracefulStop(app.WaitGroup(), waitTimeout, func() {
		err = app.Stop()
		if err != nil {
			log.Logger.Gateway.Errorf(err.Error())
		}
	})
}

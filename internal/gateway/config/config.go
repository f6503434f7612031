package config

import (
	"fmt"

	"rpcgate/internal/pkg/config"
)

type Config struct {
	Gateway config.GatewayConfig
	Stats   config.StatsConfig
}

func (c Config) Validate() error {
	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("gateway: %s", err)
	}
	if err := c.Stats.Validate(); err != nil {
		return fmt.Errorf("stats: %s", err)
	}

	return nil
}

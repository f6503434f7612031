package probe

import (
	"fmt"

	"rpcgate/internal/pkg/config"
)

type Config struct {
	Gateway config.GatewayConfig
	Probe   config.ProbeConfig
}

func (c Config) Validate() error {
	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("gateway: %s", err)
	}
	if err := c.Probe.Validate(); err != nil {
		return fmt.Errorf("probe: %s", err)
	}

	return nil
}

package config

import (
	"errors"
	"fmt"
	"net/url"
)

func (g GatewayConfig) Validate() error {
	if g.Port == 0 {
		return errors.New("invalid port")
	}
	if g.AttemptTimeout <= 0 {
		return fmt.Errorf("invalid AttemptTimeout: %s", g.AttemptTimeout)
	}
	if g.RateLimitCooldown < 0 {
		return fmt.Errorf("invalid RateLimitCooldown: %s", g.RateLimitCooldown)
	}
	if g.CacheTTL < 0 {
		return fmt.Errorf("invalid CacheTTL: %s", g.CacheTTL)
	}

	targets, err := g.Targets()
	if err != nil {
		return fmt.Errorf("endpoints: %s", err)
	}

	return targets.Validate()
}

func (e EndpointTargets) Validate() error {
	if len(e) == 0 {
		return errors.New("empty endpoints")
	}

	names := make(map[string]struct{}, len(e))
	for _, t := range e {
		u, err := url.Parse(t.Url)
		if err != nil {
			return fmt.Errorf("endpoint %s: invalid url: %s", t.Name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("endpoint %s: invalid url scheme %q", t.Name, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("endpoint %s: empty host", t.Name)
		}
		if _, ok := names[t.Name]; ok {
			return fmt.Errorf("duplicate endpoint name: %s", t.Name)
		}
		names[t.Name] = struct{}{}
	}

	return nil
}

func (p ProbeConfig) Validate() error {
	if p.Method == "" {
		return errors.New("empty Method")
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("invalid Timeout: %s", p.Timeout)
	}

	return nil
}

func (s StatsConfig) Validate() error {
	if s.SqlitePath != "" && s.MigrationsPath == "" {
		return errors.New("invalid MigrationsPath")
	}
	if s.FlushInterval <= 0 {
		return fmt.Errorf("invalid FlushInterval: %s", s.FlushInterval)
	}

	return nil
}

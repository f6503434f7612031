package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// struct field names are used for env variable names. Edit with care
type (
	GatewayConfig struct {
		Port              uint64          `required:"false" split_words:"true" default:"8545"`
		MetricsPort       uint64          `required:"false" split_words:"true"`
		CertFile          string          `required:"false" split_words:"true"`
		Endpoints         EndpointTargets `required:"false" split_words:"true"`
		EndpointsFile     string          `required:"false" split_words:"true"`
		AttemptTimeout    time.Duration   `required:"false" split_words:"true" default:"8s"`
		RateLimitCooldown time.Duration   `required:"false" split_words:"true" default:"30s"`
		CacheTTL          time.Duration   `required:"false" envconfig:"CACHE_TTL" default:"5s"`
		CacheableMethods  []string        `required:"false" split_words:"true" default:"eth_blockNumber,eth_chainId,net_version,eth_gasPrice"`
		RateLimitRPS      float64         `required:"false" envconfig:"RATE_LIMIT_RPS" default:"20"`
	}
	ProbeConfig struct {
		Method  string        `required:"false" split_words:"true" default:"eth_blockNumber"`
		Timeout time.Duration `required:"false" split_words:"true" default:"10s"`
	}
)

// struct field names are used for env variable names. Edit with care
type (
	StatsConfig struct {
		SqlitePath     string        `required:"false" split_words:"true"`
		MigrationsPath string        `required:"false" split_words:"true" default:"migrations/sqlite"`
		ClickhouseDSN  string        `required:"false" envconfig:"CLICKHOUSE_DSN"`
		FlushInterval  time.Duration `required:"false" split_words:"true" default:"10s"`
	}
)

type EndpointTarget struct {
	Name string `json:"name" yaml:"name"`
	Url  string `json:"url" yaml:"url"`
}

type EndpointTargets []EndpointTarget

func (e *EndpointTargets) Decode(value string) error {
	if len(value) == 0 {
		return nil
	}

	return json.Unmarshal([]byte(value), &e)
}

type endpointsFile struct {
	Endpoints EndpointTargets `yaml:"endpoints"`
}

// LoadEndpointsFile parses a YAML file with a top-level `endpoints` list.
func LoadEndpointsFile(filename string) (EndpointTargets, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var f endpointsFile
	err = yaml.Unmarshal(content, &f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing YAML file %s", filename)
	}

	return f.Endpoints, nil
}

// Targets returns the configured upstream list in configured order. The YAML
// file, when set, takes precedence over the inline JSON list.
func (g GatewayConfig) Targets() (targets EndpointTargets, err error) {
	targets = g.Endpoints
	if g.EndpointsFile != "" {
		targets, err = LoadEndpointsFile(g.EndpointsFile)
		if err != nil {
			return nil, err
		}
	}

	res := make(EndpointTargets, len(targets))
	for i, t := range targets {
		if t.Name == "" {
			t.Name = fmt.Sprintf("endpoint-%d", i+1)
		}
		res[i] = t
	}

	return res, nil
}

type PossibleConfig interface {
	Validate() error
}

func LoadFile[T PossibleConfig](envFile string) (c T, err error) {
	if envFile != "" {
		err = godotenv.Load(envFile)
		if err != nil {
			return c, fmt.Errorf("godotenv.Load (%s): %s", envFile, err)
		}
	}

	err = envconfig.Process("", &c)
	if err != nil {
		return c, fmt.Errorf("envconfig.Process: %s", err)
	}

	err = c.Validate()
	if err != nil {
		return c, fmt.Errorf("validate: %s", err)
	}

	return c, nil
}

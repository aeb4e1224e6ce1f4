package binance

import (
	"github.com/quantarc/quantarc/internal/session"
	"github.com/quantarc/quantarc/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config configures the live Binance adapter.
type Config struct {
	// Credentials authenticate against the venue.
	Credentials session.Credentials `yaml:"credentials" json:"credentials"`
	// UseTestnet connects to the Binance testnet instead of production.
	UseTestnet bool `yaml:"use_testnet" json:"use_testnet"`
	// BaseURL overrides the endpoint; takes precedence over UseTestnet.
	// Used by integration tests pointing at a mock server.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Session overrides the rate limit and retry policy. Zero value means
	// session.DefaultConfig.
	Session session.Config `yaml:"session" json:"session"`
}

// Validate checks the configuration, failing fast at construction time.
func (c *Config) Validate() error {
	if err := c.Credentials.Validate(); err != nil {
		return err
	}

	if c.Session != (session.Config{}) {
		if err := c.Session.Validate(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) sessionConfig() session.Config {
	if c.Session == (session.Config{}) {
		return session.DefaultConfig()
	}

	return c.Session
}

// ConfigFromYAML parses and validates a Config from YAML.
func ConfigFromYAML(data []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse binance config", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

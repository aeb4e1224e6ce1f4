package simulated

import (
	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/quantarc/quantarc/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config controls the fidelity of the simulated venue. It is immutable after
// construction; the engine never re-reads configuration mid-session.
type Config struct {
	// InitialBalance is the starting cash balance.
	InitialBalance float64 `yaml:"initial_balance" json:"initial_balance" validate:"required,gt=0"`
	// SlippageBps is applied to market and triggered fills, in basis points.
	SlippageBps float64 `yaml:"slippage_bps" json:"slippage_bps" validate:"gte=0"`
	// FeeRate is the proportional fee charged on each fill's notional.
	FeeRate float64 `yaml:"fee_rate" json:"fee_rate" validate:"gte=0,lt=1"`
	// LiquidityCap bounds the quantity filled per order per step. Orders
	// larger than the cap roll their remainder to the next step as partially
	// filled. Unset means partial fills are not modeled.
	LiquidityCap optional.Option[float64] `yaml:"liquidity_cap" json:"liquidity_cap"`
}

// Validate checks the configuration, failing fast at construction time.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid simulated venue config", err)
	}

	if c.LiquidityCap.IsSome() && c.LiquidityCap.Unwrap() <= 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "liquidity cap must be greater than zero when set")
	}

	return nil
}

// ConfigFromYAML parses and validates a Config from YAML.
func ConfigFromYAML(data []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse simulated venue config", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

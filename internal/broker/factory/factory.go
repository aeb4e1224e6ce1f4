// Package factory constructs venue implementations by registered venue type.
package factory

import (
	"github.com/quantarc/quantarc/internal/broker"
	"github.com/quantarc/quantarc/internal/broker/binance"
	"github.com/quantarc/quantarc/internal/broker/simulated"
	"github.com/quantarc/quantarc/internal/logger"
	"github.com/quantarc/quantarc/internal/types"
	"github.com/quantarc/quantarc/pkg/errors"
)

// Options carries the per-venue configuration. Only the section matching the
// requested venue type is read.
type Options struct {
	Simulated simulated.Config
	Binance   binance.Config
}

// New creates the venue implementation for the given venue type.
func New(venueType broker.VenueType, options Options, symbols *types.SymbolTable, log *logger.Logger) (broker.Broker, error) {
	if _, err := broker.GetVenueInfo(string(venueType)); err != nil {
		return nil, err
	}

	switch venueType {
	case broker.VenueSimulated:
		return simulated.NewEngine(options.Simulated, symbols, log)
	case broker.VenueBinancePaper:
		config := options.Binance
		config.UseTestnet = true

		return binance.NewAdapter(config, symbols, log)
	case broker.VenueBinanceLive:
		return binance.NewAdapter(options.Binance, symbols, log)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported venue: %s", venueType)
	}
}

// FromYAML creates the venue for the given type from its YAML configuration
// document.
func FromYAML(venueType broker.VenueType, data []byte, symbols *types.SymbolTable, log *logger.Logger) (broker.Broker, error) {
	if _, err := broker.GetVenueInfo(string(venueType)); err != nil {
		return nil, err
	}

	options := Options{}

	switch venueType {
	case broker.VenueSimulated:
		config, err := simulated.ConfigFromYAML(data)
		if err != nil {
			return nil, err
		}

		options.Simulated = config
	case broker.VenueBinancePaper, broker.VenueBinanceLive:
		config, err := binance.ConfigFromYAML(data)
		if err != nil {
			return nil, err
		}

		options.Binance = config
	}

	return New(venueType, options, symbols, log)
}

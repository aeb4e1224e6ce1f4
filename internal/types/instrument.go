package types

import (
	"strings"

	"github.com/quantarc/quantarc/pkg/errors"
)

// AssetClass tags an instrument with the market segment it trades in.
type AssetClass string

const (
	AssetClassEquity AssetClass = "EQUITY"
	AssetClassFx     AssetClass = "FX"
	AssetClassFuture AssetClass = "FUTURE"
	AssetClassOption AssetClass = "OPTION"
	AssetClassCrypto AssetClass = "CRYPTO"
)

// Instrument is a normalized tradable symbol plus its asset class.
type Instrument struct {
	Symbol string     `yaml:"symbol" json:"symbol" validate:"required"`
	Class  AssetClass `yaml:"class" json:"class" validate:"required,oneof=EQUITY FX FUTURE OPTION CRYPTO"`
}

// SymbolTable maps venue-specific symbol aliases to canonical instruments.
// Normalization is pure and total over registered aliases: every accepted
// alias maps to exactly one canonical symbol, and canonical symbols map to
// themselves. Unmapped aliases are an error, never passed through.
type SymbolTable struct {
	instruments map[string]Instrument
}

// NewSymbolTable creates an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		instruments: make(map[string]Instrument),
	}
}

// Register adds a canonical symbol and its aliases to the table.
// The canonical symbol is registered as an alias of itself so that
// normalization is idempotent.
func (t *SymbolTable) Register(canonical string, class AssetClass, aliases ...string) error {
	if canonical == "" {
		return errors.New(errors.ErrCodeInvalidParameter, "canonical symbol must not be empty")
	}

	instrument := Instrument{Symbol: canonical, Class: class}
	t.instruments[normalizeKey(canonical)] = instrument

	for _, alias := range aliases {
		if alias == "" {
			return errors.Newf(errors.ErrCodeInvalidParameter, "empty alias for canonical symbol %s", canonical)
		}

		key := normalizeKey(alias)
		if existing, ok := t.instruments[key]; ok && existing.Symbol != canonical {
			return errors.Newf(errors.ErrCodeInvalidParameter,
				"alias %s already maps to %s", alias, existing.Symbol)
		}

		t.instruments[key] = instrument
	}

	return nil
}

// Normalize resolves a venue alias to its canonical instrument.
// Unmapped aliases fail with ErrCodeUnknownInstrument.
func (t *SymbolTable) Normalize(alias string) (Instrument, error) {
	instrument, ok := t.instruments[normalizeKey(alias)]
	if !ok {
		return Instrument{}, errors.Newf(errors.ErrCodeUnknownInstrument, "unknown instrument alias: %s", alias)
	}

	return instrument, nil
}

// Known reports whether the alias resolves to a canonical instrument.
func (t *SymbolTable) Known(alias string) bool {
	_, ok := t.instruments[normalizeKey(alias)]

	return ok
}

// Symbols returns the set of canonical symbols in the table.
func (t *SymbolTable) Symbols() []string {
	seen := make(map[string]bool)
	symbols := make([]string, 0, len(t.instruments))

	for _, instrument := range t.instruments {
		if !seen[instrument.Symbol] {
			seen[instrument.Symbol] = true

			symbols = append(symbols, instrument.Symbol)
		}
	}

	return symbols
}

func normalizeKey(alias string) string {
	return strings.ToUpper(strings.TrimSpace(alias))
}

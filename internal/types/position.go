package types

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Position represents the current net holding of a single instrument.
// Quantity is signed: positive for long, negative for short. A position with
// zero quantity is logically closed. Positions are mutated only by fill
// events or explicit reconciliation against venue-reported truth.
type Position struct {
	Symbol        string    `yaml:"symbol" json:"symbol"`
	Quantity      float64   `yaml:"quantity" json:"quantity"`
	AvgEntryPrice float64   `yaml:"avg_entry_price" json:"avg_entry_price"`
	RealizedPnL   float64   `yaml:"realized_pnl" json:"realized_pnl"`
	UnrealizedPnL float64   `yaml:"unrealized_pnl" json:"unrealized_pnl"`
	UpdatedAt     time.Time `yaml:"updated_at" json:"updated_at"`
}

// IsClosed reports whether the position has no net exposure.
func (p *Position) IsClosed() bool {
	return p.Quantity == 0
}

// ApplyFill mutates the position with a fill event. Fills in the direction of
// the position increase it and move the average entry price; fills against it
// realize P&L on the closed quantity. A fill that crosses through zero opens
// a new position in the opposite direction at the fill price. Fees reduce
// realized P&L.
func (p *Position) ApplyFill(side Side, quantity, price, fee float64, executedAt time.Time) {
	signed := quantity
	if side == SideSell {
		signed = -quantity
	}

	qty := decimal.NewFromFloat(p.Quantity)
	avg := decimal.NewFromFloat(p.AvgEntryPrice)
	fillQty := decimal.NewFromFloat(signed)
	fillPrice := decimal.NewFromFloat(price)
	realized := decimal.NewFromFloat(p.RealizedPnL).Sub(decimal.NewFromFloat(fee))

	switch {
	case qty.IsZero() || qty.Sign() == fillQty.Sign():
		// Opening or increasing: weighted average entry price.
		oldAbs := qty.Abs()
		newAbs := oldAbs.Add(fillQty.Abs())
		avg = oldAbs.Mul(avg).Add(fillQty.Abs().Mul(fillPrice)).Div(newAbs)
		qty = qty.Add(fillQty)

	case fillQty.Abs().LessThanOrEqual(qty.Abs()):
		// Reducing or closing: realize P&L on the closed quantity.
		closed := fillQty.Abs()
		realized = realized.Add(fillPrice.Sub(avg).Mul(closed).Mul(decimal.NewFromInt(int64(sign(qty)))))
		qty = qty.Add(fillQty)

		if qty.IsZero() {
			avg = decimal.Zero
		}

	default:
		// Crossing through zero: close the full position, open the remainder.
		closed := qty.Abs()
		realized = realized.Add(fillPrice.Sub(avg).Mul(closed).Mul(decimal.NewFromInt(int64(sign(qty)))))
		qty = qty.Add(fillQty)
		avg = fillPrice
	}

	p.Quantity, _ = qty.Float64()
	p.AvgEntryPrice, _ = avg.Float64()
	p.RealizedPnL, _ = realized.Float64()
	p.UpdatedAt = executedAt

	// Unrealized P&L is recomputed against the fill price so that a query
	// immediately following the fill reflects it.
	p.MarkPrice(price, executedAt)
}

// MarkPrice recomputes unrealized P&L against the given market price.
func (p *Position) MarkPrice(price float64, at time.Time) {
	if p.Quantity == 0 {
		p.UnrealizedPnL = 0
		p.UpdatedAt = at

		return
	}

	unrealized := decimal.NewFromFloat(price).
		Sub(decimal.NewFromFloat(p.AvgEntryPrice)).
		Mul(decimal.NewFromFloat(p.Quantity))

	p.UnrealizedPnL, _ = unrealized.Float64()
	p.UpdatedAt = at
}

// AbsQuantity returns the magnitude of the net position.
func (p *Position) AbsQuantity() float64 {
	return math.Abs(p.Quantity)
}

func sign(d decimal.Decimal) int {
	if d.Sign() < 0 {
		return -1
	}

	return 1
}

package portfolio

import (
	"errors"
	"math"

	"github.com/r7zex/t-invest-bot/internal/clients/invest"
)

// ErrNoData marks a valuation that would be ambiguous: with neither
// positions nor a cash balance, a zero total cannot be told apart from a
// failed fetch, so the engine refuses to report one.
var ErrNoData = errors.New("portfolio: no positions and no balance")

// Money is a plain amount with a currency code.
type Money struct {
	Amount   float64
	Currency string
}

// PositionValuation is the valuation of a single holding.
//
// The formulas are sign-symmetric: for a short position both CostBasis
// and MarketValue are negative and the profit fields stay economically
// correct (a price drop on a short yields a positive ProfitAbs).
type PositionValuation struct {
	Position     invest.Position
	Quantity     float64
	AveragePrice float64
	CurrentPrice float64
	CostBasis    float64
	MarketValue  float64
	ProfitAbs    float64
	ProfitPct    float64
}

// Valuation is the aggregate portfolio valuation.
type Valuation struct {
	Positions      []PositionValuation
	StocksValue    float64
	TotalBuyValue  float64
	Balance        float64
	Currency       string
	PortfolioValue float64
	ProfitAbs      float64
	ProfitPct      float64
}

// ValuatePosition values one holding. A positive priceOverride (typically
// a fresher last-trade price) wins over the price embedded in the
// position.
func ValuatePosition(pos invest.Position, priceOverride float64) PositionValuation {
	price := priceOverride
	if price <= 0 {
		price = pos.CurrentPrice.Float()
	}

	qty := pos.Quantity.Float()
	avg := pos.AveragePositionPrice.Float()

	cost := qty * avg
	value := qty * price
	profit := value - cost

	pct := 0.0
	if cost != 0 {
		pct = profit / math.Abs(cost) * 100
	}

	return PositionValuation{
		Position:     pos,
		Quantity:     qty,
		AveragePrice: avg,
		CurrentPrice: price,
		CostBasis:    cost,
		MarketValue:  value,
		ProfitAbs:    profit,
		ProfitPct:    pct,
	}
}

// Valuate computes the aggregate valuation of a position list. prices
// maps FIGI to a fresh last-trade price and may be nil. balance is the
// cash balance, nil when unknown.
//
// A portfolio with no positions and no balance yields ErrNoData rather
// than a zero valuation.
func Valuate(positions []invest.Position, prices map[string]float64, balance *Money) (Valuation, error) {
	if len(positions) == 0 && (balance == nil || balance.Amount == 0) {
		return Valuation{}, ErrNoData
	}

	v := Valuation{
		Positions: make([]PositionValuation, 0, len(positions)),
		Currency:  "rub",
	}
	if balance != nil {
		v.Balance = balance.Amount
		if balance.Currency != "" {
			v.Currency = balance.Currency
		}
	}

	for _, pos := range positions {
		pv := ValuatePosition(pos, prices[pos.FIGI])
		v.Positions = append(v.Positions, pv)
		v.StocksValue += pv.MarketValue
		v.TotalBuyValue += pv.CostBasis
	}

	v.PortfolioValue = v.Balance + v.StocksValue
	v.ProfitAbs = v.StocksValue - v.TotalBuyValue

	if basis := v.PortfolioValue - v.ProfitAbs; basis != 0 {
		v.ProfitPct = round(v.ProfitAbs/basis*100, 2)
	}

	return v, nil
}

// DayChange computes today's profit against a reconstructed
// start-of-day baseline, with the same basis-denominator formula as the
// all-time figures. An unavailable or zero baseline fails soft to (0, 0).
func DayChange(portfolioValue, baseline float64, baselineOK bool) (abs, pct float64) {
	if !baselineOK || baseline == 0 {
		return 0, 0
	}
	abs = portfolioValue - baseline
	pct = abs / baseline * 100
	return abs, pct
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}

package engine

import (
	"github.com/shopspring/decimal"

	"github.com/openwager/wagerbook/internal/domain"
)

// crossPriceCalculator derives the arbitrage-consistent price for one
// outcome from the prices of all other outcomes of the market:
//
//	price_a = price_b / (price_b - 1)                          (2-way)
//	price_a = price_bc / (price_bc - price_b - price_c)        (3-way)
//	price_a = price_bcd / (price_bcd - price_bc - price_cd - price_bd)
//
// where price_bc is the product of the component prices. The calculator
// accumulates the full product and the partial products with one component
// left out each.
type crossPriceCalculator struct {
	full          decimal.Decimal
	partials      []decimal.Decimal
	partialsIndex int
}

// newCrossPriceCalculator sizes the calculator for a market with the given
// outcome count: it expects outcomeCount-1 prices to be added.
func newCrossPriceCalculator(outcomeCount int) *crossPriceCalculator {
	partials := make([]decimal.Decimal, outcomeCount-1)
	for i := range partials {
		partials[i] = decimal.New(1, 0)
	}
	return &crossPriceCalculator{
		full:          decimal.New(1, 0),
		partials:      partials,
		partialsIndex: outcomeCount - 1,
	}
}

func (c *crossPriceCalculator) add(price domain.Price) {
	c.partialsIndex--

	d := price.Decimal()
	c.full = c.full.Mul(d)
	for i := range c.partials {
		if i != c.partialsIndex {
			c.partials[i] = c.partials[i].Mul(d)
		}
	}
}

// result returns the derived price, or an error when the implied price is
// non-positive or does not fit in 3 decimal places. A price that needs more
// precision cannot sit on any ladder, so it is not representable.
func (c *crossPriceCalculator) result() (domain.Price, error) {
	var sub decimal.Decimal
	one := decimal.New(1, 0)

	// A 2-way market has no partials: the divisor is full - 1.
	if len(c.partials) == 0 {
		sub = c.full.Sub(one)
	} else {
		sub = c.full
		for _, partial := range c.partials {
			sub = sub.Sub(partial)
		}
	}

	if sub.Sign() <= 0 {
		return 0, domain.ErrNoViableCrossLiquidity
	}

	result := c.full.Div(sub)
	truncated := result.Truncate(3)
	if !result.Equal(truncated) {
		return 0, domain.ErrNoViableCrossLiquidity
	}

	milli := truncated.Mul(decimal.New(1000, 0)).IntPart()
	if milli <= 1000 {
		return 0, domain.ErrNoViableCrossLiquidity
	}
	return domain.Price(milli), nil
}

// CrossPrice computes the derived price for the remaining outcome of an
// outcomeCount-way market given the prices of the other outcomes. The
// number of source prices must be outcomeCount-1.
func CrossPrice(outcomeCount int, sourcePrices []domain.Price) (domain.Price, error) {
	if len(sourcePrices) == 0 || len(sourcePrices) != outcomeCount-1 {
		return 0, domain.ErrNoViableCrossLiquidity
	}
	calc := newCrossPriceCalculator(outcomeCount)
	for _, p := range sourcePrices {
		calc.add(p)
	}
	return calc.result()
}

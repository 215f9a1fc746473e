package domain

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Price is a decimal-odds price in milli-units: 2.00 is stored as 2000.
// Odds carry at most three decimal places, so the milli representation is
// exact and comparisons are plain integer comparisons.
type Price int64

// priceScale converts between milli-odds and decimal odds.
const priceScale = 1000

// ParsePrice converts a float64 odds value to a Price. It validates that
// the input has at most 3 decimal places and is greater than 1.0 (a price
// of 1.0 or below implies zero or negative return).
func ParsePrice(f float64) (Price, error) {
	scaled := math.Round(f * priceScale * 10)
	if math.Mod(scaled, 10) != 0 {
		return 0, &ValidationError{Message: fmt.Sprintf("price %v must have at most 3 decimal places", f)}
	}
	p := Price(math.Round(f * priceScale))
	if p <= priceScale {
		return 0, &ValidationError{Message: fmt.Sprintf("price %v must be greater than 1.0", f)}
	}
	return p, nil
}

// Float64 returns the price as decimal odds.
func (p Price) Float64() float64 {
	return float64(p) / priceScale
}

// Decimal returns the price as a decimal.Decimal with 3-decimal scale.
func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -3)
}

func (p Price) String() string {
	return p.Decimal().String()
}

// RiskFromStake returns the liability in cents of an against stake at the
// given price: stake × (price − 1), rounded half away from zero to a cent.
// A purchaser laying 10.00 at 3.0 risks 20.00 to win the 10.00 stake.
func RiskFromStake(stake int64, price Price) int64 {
	return decimal.NewFromInt(stake).
		Mul(price.Decimal().Sub(decimal.New(1, 0))).
		Round(0).
		IntPart()
}

// StakeCross converts a stake matched at one price into the equivalent
// stake at another price so that both sides of a cross-matched pairing
// carry the same payout: stake × price / crossPrice, floored to a cent.
func StakeCross(stake int64, price, crossPrice Price) int64 {
	return decimal.NewFromInt(stake).
		Mul(price.Decimal()).
		Div(crossPrice.Decimal()).
		Floor().
		IntPart()
}

// PriceLadder is the discrete set of legal prices for a market, sorted
// ascending.
type PriceLadder []Price

// NewPriceLadder parses and sorts a float64 ladder, rejecting duplicates.
func NewPriceLadder(prices []float64) (PriceLadder, error) {
	if len(prices) == 0 {
		return nil, &ValidationError{Message: "price ladder must not be empty"}
	}
	ladder := make(PriceLadder, 0, len(prices))
	for _, f := range prices {
		p, err := ParsePrice(f)
		if err != nil {
			return nil, err
		}
		ladder = append(ladder, p)
	}
	sort.Slice(ladder, func(i, j int) bool { return ladder[i] < ladder[j] })
	for i := 1; i < len(ladder); i++ {
		if ladder[i] == ladder[i-1] {
			return nil, &ValidationError{Message: fmt.Sprintf("duplicate price %s in ladder", ladder[i])}
		}
	}
	return ladder, nil
}

// Contains reports whether the price is on the ladder.
func (l PriceLadder) Contains(p Price) bool {
	i := sort.Search(len(l), func(i int) bool { return l[i] >= p })
	return i < len(l) && l[i] == p
}

// Floats returns the ladder as float64 odds, for API responses.
func (l PriceLadder) Floats() []float64 {
	out := make([]float64, len(l))
	for i, p := range l {
		out[i] = p.Float64()
	}
	return out
}

package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"pgregory.net/rapid"
)

type UtilsTestSuite struct {
	suite.Suite
}

func TestUtilsTestSuite(t *testing.T) {
	suite.Run(t, new(UtilsTestSuite))
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// perShare charges 0.005 per share with a 1.00 minimum.
func perShare(quantity decimal.Decimal) decimal.Decimal {
	return decimal.Max(quantity.Abs().Mul(d("0.005")), d("1"))
}

func (suite *UtilsTestSuite) TestRoundQuantityToLot() {
	tests := []struct {
		name     string
		quantity string
		lot      string
		expected string
	}{
		{name: "forex lot down", quantity: "1600", lot: "1000", expected: "1000"},
		{name: "forex lot negative", quantity: "-1600", lot: "1000", expected: "-1000"},
		{name: "below one lot", quantity: "600", lot: "1000", expected: "0"},
		{name: "shares", quantity: "10.7", lot: "1", expected: "10"},
		{name: "crypto lot", quantity: "0.123456", lot: "0.001", expected: "0.123"},
		{name: "no lot", quantity: "3.3", lot: "0", expected: "3.3"},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.True(d(tc.expected).Equal(RoundQuantityToLot(d(tc.quantity), d(tc.lot))),
				"got %s", RoundQuantityToLot(d(tc.quantity), d(tc.lot)))
		})
	}
}

func (suite *UtilsTestSuite) TestRoundPriceToIncrement() {
	tests := []struct {
		name      string
		price     string
		increment string
		expected  string
	}{
		{name: "cents", price: "10.123", increment: "0.01", expected: "10.12"},
		{name: "tie to even down", price: "10.125", increment: "0.01", expected: "10.12"},
		{name: "tie to even up", price: "10.135", increment: "0.01", expected: "10.14"},
		{name: "quarter ticks", price: "100.3", increment: "0.25", expected: "100.25"},
		{name: "no increment", price: "1.23456", increment: "0", expected: "1.23456"},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.True(d(tc.expected).Equal(RoundPriceToIncrement(d(tc.price), d(tc.increment))))
		})
	}
}

func (suite *UtilsTestSuite) TestCalculateMaxQuantity() {
	tests := []struct {
		name     string
		balance  string
		price    string
		lot      string
		fee      FeeFunc
		expected string
	}{
		{name: "no commission", balance: "1000", price: "100", lot: "1", fee: nil, expected: "10"},
		{name: "with commission", balance: "1000", price: "100", lot: "1", fee: perShare, expected: "9"},
		{name: "zero balance", balance: "0", price: "100", lot: "1", fee: perShare, expected: "0"},
		{name: "zero price", balance: "1000", price: "0", lot: "1", fee: perShare, expected: "0"},
		{name: "balance less than price", balance: "50", price: "100", lot: "1", fee: nil, expected: "0"},
		{name: "forex lots", balance: "2500", price: "1.1", lot: "1000", fee: nil, expected: "2000"},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			got := CalculateMaxQuantity(d(tc.balance), d(tc.price), d(tc.lot), tc.fee)
			suite.True(d(tc.expected).Equal(got), "got %s", got)
		})
	}
}

func (suite *UtilsTestSuite) TestCalculateOrderQuantityByPercentage() {
	got := CalculateOrderQuantityByPercentage(d("10000"), d("100"), d("1"), nil, d("0.5"))
	suite.True(d("50").Equal(got))
}

func TestLotRoundingProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		quantity := decimal.NewFromInt(rapid.Int64Range(-1_000_000, 1_000_000).Draw(t, "quantity"))
		lot := decimal.NewFromInt(rapid.SampledFrom([]int64{1, 10, 100, 1000}).Draw(t, "lot"))

		rounded := RoundQuantityToLot(quantity, lot)

		if !rounded.Mod(lot).IsZero() {
			t.Fatalf("%s is not a multiple of %s", rounded, lot)
		}

		if rounded.Abs().GreaterThan(quantity.Abs()) {
			t.Fatalf("%s rounded away from zero to %s", quantity, rounded)
		}

		if quantity.Abs().Sub(rounded.Abs()).GreaterThanOrEqual(lot) {
			t.Fatalf("%s lost a whole lot, got %s", quantity, rounded)
		}

		if !rounded.IsZero() && rounded.Sign() != quantity.Sign() {
			t.Fatalf("sign flipped: %s -> %s", quantity, rounded)
		}
	})
}

func TestMaxQuantityFitsBalance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		balance := decimal.NewFromInt(rapid.Int64Range(0, 1_000_000).Draw(t, "balance"))
		price := decimal.NewFromInt(rapid.Int64Range(1, 5_000).Draw(t, "price"))

		qty := CalculateMaxQuantity(balance, price, decimal.NewFromInt(1), perShare)
		if qty.Sign() < 0 {
			t.Fatalf("negative quantity %s", qty)
		}

		if qty.Sign() > 0 && qty.Mul(price).Add(perShare(qty)).GreaterThan(balance) {
			t.Fatalf("quantity %s at %s exceeds %s", qty, price, balance)
		}
	})
}

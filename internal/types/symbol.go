package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type SecurityType string

type OptionRight string

const (
	SecurityTypeBase   SecurityType = "BASE"
	SecurityTypeEquity SecurityType = "EQUITY"
	SecurityTypeForex  SecurityType = "FOREX"
	SecurityTypeCrypto SecurityType = "CRYPTO"
	SecurityTypeOption SecurityType = "OPTION"
	SecurityTypeFuture SecurityType = "FUTURE"
)

const (
	OptionRightNone OptionRight = ""
	OptionRightCall OptionRight = "CALL"
	OptionRightPut  OptionRight = "PUT"
)

const (
	MarketUSA     = "usa"
	MarketOanda   = "oanda"
	MarketBinance = "binance"
	MarketCME     = "cme"
)

// Symbol identifies a security. Symbols are plain values and are safe to use
// as map keys; two symbols are equal when every field is equal.
type Symbol struct {
	Ticker       string       `yaml:"ticker" json:"ticker" validate:"required"`
	SecurityType SecurityType `yaml:"security_type" json:"security_type" validate:"required,oneof=BASE EQUITY FOREX CRYPTO OPTION FUTURE"`
	Market       string       `yaml:"market" json:"market" validate:"required"`
	// Underlying is the ticker of the underlying security for derivatives.
	Underlying string `yaml:"underlying,omitempty" json:"underlying,omitempty"`
	// Expiry is stored as a YYYYMMDD integer so the struct stays comparable.
	Expiry int         `yaml:"expiry,omitempty" json:"expiry,omitempty"`
	Strike float64     `yaml:"strike,omitempty" json:"strike,omitempty"`
	Right  OptionRight `yaml:"right,omitempty" json:"right,omitempty"`
}

// NewSymbol creates a symbol for a non-derivative security.
func NewSymbol(ticker string, securityType SecurityType, market string) Symbol {
	return Symbol{
		Ticker:       strings.ToUpper(ticker),
		SecurityType: securityType,
		Market:       strings.ToLower(market),
		Underlying:   "",
		Expiry:       0,
		Strike:       0,
		Right:        OptionRightNone,
	}
}

// NewEquity is a shortcut for a US equity symbol.
func NewEquity(ticker string) Symbol {
	return NewSymbol(ticker, SecurityTypeEquity, MarketUSA)
}

// NewForex is a shortcut for an Oanda forex pair such as EURUSD.
func NewForex(pair string) Symbol {
	return NewSymbol(pair, SecurityTypeForex, MarketOanda)
}

// NewOption creates an option contract symbol on the given underlying.
func NewOption(underlying Symbol, expiry time.Time, strike float64, right OptionRight) Symbol {
	flag := "C"
	if right == OptionRightPut {
		flag = "P"
	}

	ticker := fmt.Sprintf("%s%s%s%s", underlying.Ticker, expiry.Format("060102"), flag, strconv.FormatFloat(strike, 'f', -1, 64))

	return Symbol{
		Ticker:       ticker,
		SecurityType: SecurityTypeOption,
		Market:       underlying.Market,
		Underlying:   underlying.Ticker,
		Expiry:       dateKey(expiry),
		Strike:       strike,
		Right:        right,
	}
}

// NewFuture creates a futures contract symbol.
func NewFuture(root string, market string, expiry time.Time) Symbol {
	return Symbol{
		Ticker:       fmt.Sprintf("%s%s", strings.ToUpper(root), expiry.Format("060102")),
		SecurityType: SecurityTypeFuture,
		Market:       strings.ToLower(market),
		Underlying:   strings.ToUpper(root),
		Expiry:       dateKey(expiry),
		Strike:       0,
		Right:        OptionRightNone,
	}
}

// IsDerivative reports whether the symbol has an underlying security.
func (s Symbol) IsDerivative() bool {
	return s.Underlying != ""
}

// UnderlyingSymbol returns the symbol of the underlying security. For futures
// the underlying is the continuous root, which is not tradable on its own.
func (s Symbol) UnderlyingSymbol() Symbol {
	switch s.SecurityType {
	case SecurityTypeOption:
		return NewSymbol(s.Underlying, SecurityTypeEquity, s.Market)
	case SecurityTypeFuture:
		return NewSymbol(s.Underlying, SecurityTypeFuture, s.Market)
	default:
		return s
	}
}

// ExpiryDate returns the contract expiry, or the zero time for non-derivatives.
func (s Symbol) ExpiryDate() time.Time {
	if s.Expiry == 0 {
		return time.Time{}
	}

	return time.Date(s.Expiry/10000, time.Month(s.Expiry/100%100), s.Expiry%100, 0, 0, 0, 0, time.UTC)
}

// String returns a canonical key such as "SPY EQUITY usa". The key orders
// symbols deterministically.
func (s Symbol) String() string {
	return fmt.Sprintf("%s %s %s", s.Ticker, s.SecurityType, s.Market)
}

// Less orders symbols by their canonical key.
func (s Symbol) Less(other Symbol) bool {
	return s.String() < other.String()
}

// IsZero reports whether the symbol is unset.
func (s Symbol) IsZero() bool {
	return s == Symbol{} //nolint:exhaustruct
}

// CurrencyPair splits a six letter forex or crypto ticker into its base and quote currencies.
func (s Symbol) CurrencyPair() (base string, quote string, ok bool) {
	if s.SecurityType != SecurityTypeForex && s.SecurityType != SecurityTypeCrypto {
		return "", "", false
	}

	if len(s.Ticker) != 6 {
		return "", "", false
	}

	return s.Ticker[:3], s.Ticker[3:], true
}

func dateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

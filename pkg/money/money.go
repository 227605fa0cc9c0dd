// Package money converts between integer minor units and display strings.
// Arithmetic on balances never leaves int64; decimals only appear at the edge.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooPrecise      = errors.New("amount has more decimal places than the currency allows")
	ErrOutOfRange      = errors.New("amount out of range")
)

// Currency describes how many minor units make up one major unit
type Currency struct {
	Code     string
	Exponent int32 // 2 means 100 minor units per major unit
}

var currencies = map[string]Currency{
	"USD": {Code: "USD", Exponent: 2},
	"EUR": {Code: "EUR", Exponent: 2},
	"GBP": {Code: "GBP", Exponent: 2},
	"SC":  {Code: "SC", Exponent: 2}, // sweepstakes coins
	"GC":  {Code: "GC", Exponent: 0}, // gold coins
	"BTC": {Code: "BTC", Exponent: 8},
}

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// Lookup returns the currency registered under code
func Lookup(code string) (Currency, error) {
	c, ok := currencies[strings.ToUpper(code)]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return c, nil
}

// Codes returns every registered currency code
func Codes() []string {
	codes := make([]string, 0, len(currencies))
	for code := range currencies {
		codes = append(codes, code)
	}
	return codes
}

// FormatMinor renders a minor-unit amount in major units, e.g. 1050 USD -> "10.50"
func FormatMinor(amount int64, c Currency) string {
	return decimal.New(amount, -c.Exponent).StringFixed(c.Exponent)
}

// ParseMajor parses a major-unit string into minor units, e.g. "10.5" USD -> 1050.
// Values that cannot be represented exactly are rejected rather than rounded.
func ParseMajor(s string, c Currency) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	minor := d.Shift(c.Exponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q for %s", ErrTooPrecise, s, c.Code)
	}
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: %q", ErrOutOfRange, s)
	}

	return minor.IntPart(), nil
}

// Format is FormatMinor for a currency code, falling back to the raw integer
func Format(amount int64, code string) string {
	c, err := Lookup(code)
	if err != nil {
		return fmt.Sprintf("%d", amount)
	}
	return FormatMinor(amount, c)
}

// Package currency provides standardized currency handling across the application.
// Prices are stored as integer minor units and converted through decimal.Decimal,
// never through binary floating point.
package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents an ISO 4217 currency code.
type Currency string

// Supported currencies.
const (
	CAD Currency = "CAD" // Canadian Dollar
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
	JPY Currency = "JPY" // Japanese Yen
	AUD Currency = "AUD" // Australian Dollar
	CHF Currency = "CHF" // Swiss Franc
)

// DefaultCurrency is the home currency of most tracked retailers.
const DefaultCurrency = CAD

var (
	ErrUnsupported  = errors.New("unsupported currency")
	ErrPrecision    = errors.New("amount has more precision than the currency allows")
	ErrNegative     = errors.New("amount is negative")
	ErrOutOfRange   = errors.New("amount out of range")
	maxMinorDecimal = decimal.New(1, 15)
)

// CurrencyInfo contains metadata about a currency.
type CurrencyInfo struct {
	Code          Currency
	Name          string
	Symbol        string
	DecimalPlaces int    // Number of decimal places (e.g., 2 for CAD, 0 for JPY)
	SymbolBefore  bool   // Whether symbol appears before amount
	ThousandsSep  string // Thousands separator
	DecimalSep    string // Decimal separator
}

// currencies maps currency codes to their info.
var currencies = map[Currency]CurrencyInfo{
	CAD: {Code: CAD, Name: "Canadian Dollar", Symbol: "$", DecimalPlaces: 2, SymbolBefore: true, ThousandsSep: ",", DecimalSep: "."},
	USD: {Code: USD, Name: "US Dollar", Symbol: "$", DecimalPlaces: 2, SymbolBefore: true, ThousandsSep: ",", DecimalSep: "."},
	EUR: {Code: EUR, Name: "Euro", Symbol: "€", DecimalPlaces: 2, SymbolBefore: false, ThousandsSep: ".", DecimalSep: ","},
	GBP: {Code: GBP, Name: "British Pound", Symbol: "£", DecimalPlaces: 2, SymbolBefore: true, ThousandsSep: ",", DecimalSep: "."},
	JPY: {Code: JPY, Name: "Japanese Yen", Symbol: "¥", DecimalPlaces: 0, SymbolBefore: true, ThousandsSep: ",", DecimalSep: "."},
	AUD: {Code: AUD, Name: "Australian Dollar", Symbol: "$", DecimalPlaces: 2, SymbolBefore: true, ThousandsSep: ",", DecimalSep: "."},
	CHF: {Code: CHF, Name: "Swiss Franc", Symbol: "CHF", DecimalPlaces: 2, SymbolBefore: true, ThousandsSep: "'", DecimalSep: "."},
}

// symbolPrefixes maps unambiguous price prefixes to a currency. A bare "$"
// is deliberately absent: it resolves to the retailer's home currency.
var symbolPrefixes = map[string]Currency{
	"CA$": CAD,
	"C$":  CAD,
	"US$": USD,
	"A$":  AUD,
	"€":   EUR,
	"£":   GBP,
	"¥":   JPY,
}

// SupportedCurrencies returns a list of all supported currency codes.
func SupportedCurrencies() []Currency {
	return []Currency{CAD, USD, EUR, GBP, JPY, AUD, CHF}
}

// IsValid checks if a currency code is supported.
func IsValid(code string) bool {
	_, ok := currencies[Currency(code)]
	return ok
}

// GetInfo returns metadata for a currency code.
func GetInfo(code Currency) (CurrencyInfo, bool) {
	info, ok := currencies[code]
	return info, ok
}

// Parse returns the currency for a case-insensitive ISO code.
func Parse(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := currencies[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, code)
	}
	return c, nil
}

// DetectSymbol returns the currency implied by an unambiguous symbol in s.
func DetectSymbol(s string) (Currency, bool) {
	// Longest prefixes first so "CA$" wins over a bare "$".
	for _, p := range []string{"CA$", "US$", "C$", "A$", "€", "£", "¥"} {
		if strings.Contains(s, p) {
			return symbolPrefixes[p], true
		}
	}
	return "", false
}

// ToMinor converts an exact decimal amount to integer minor units. It refuses
// amounts that would need rounding.
func ToMinor(amount decimal.Decimal, c Currency) (int64, error) {
	info, ok := GetInfo(c)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupported, c)
	}
	if amount.IsNegative() {
		return 0, ErrNegative
	}
	minor := amount.Shift(int32(info.DecimalPlaces))
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s %s", ErrPrecision, amount.String(), c)
	}
	if minor.GreaterThanOrEqual(maxMinorDecimal) {
		return 0, ErrOutOfRange
	}
	return minor.IntPart(), nil
}

// FromMinor converts integer minor units back to a decimal amount.
func FromMinor(minor int64, c Currency) decimal.Decimal {
	info, ok := GetInfo(c)
	if !ok {
		info = currencies[DefaultCurrency]
	}
	return decimal.New(minor, -int32(info.DecimalPlaces))
}

// Money represents a monetary amount with currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// NewMoney creates a new Money value.
func NewMoney(amount decimal.Decimal, curr Currency) Money {
	if curr == "" {
		curr = DefaultCurrency
	}
	return Money{Amount: amount, Currency: curr}
}

// NewMoneyFromMinor creates a Money from integer minor units.
func NewMoneyFromMinor(minor int64, curr Currency) Money {
	if curr == "" {
		curr = DefaultCurrency
	}
	return NewMoney(FromMinor(minor, curr), curr)
}

// Format returns a formatted string representation.
// Uses the currency's standard formatting rules.
func (m Money) Format() string {
	info, ok := GetInfo(m.Currency)
	if !ok {
		return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
	}

	rounded := m.Amount.Round(int32(info.DecimalPlaces))

	if info.SymbolBefore {
		return fmt.Sprintf("%s%s", info.Symbol, rounded.StringFixed(int32(info.DecimalPlaces)))
	}
	return fmt.Sprintf("%s%s", rounded.StringFixed(int32(info.DecimalPlaces)), info.Symbol)
}

// String returns the amount as a plain string.
func (m Money) String() string {
	info, ok := GetInfo(m.Currency)
	if !ok {
		return m.Amount.String()
	}
	return m.Amount.StringFixed(int32(info.DecimalPlaces))
}

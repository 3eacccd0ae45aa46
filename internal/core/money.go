// Package core holds the domain types shared by every other package.
//
// Money is stored as integer cents. Conversions to decimal.Decimal happen at
// the edges (JSON, ratios) so sums never drift.
package core

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (rounds up)
//	ParseDecimalToCents("12.344") -> 1234, nil (rounds down)
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if iv > MaxAmountCents/100 {
		return 0, ErrInvalidAmount
	}
	// Two fractional digits, half-up on the third.
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 || cents > MaxAmountCents {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseAmount is ParseDecimalToCents for amounts as they appear in bank
// exports: an optional currency symbol and thousands separators are allowed.
// When both separators appear the last one is the decimal separator.
// A leading minus (debits in most exports) is dropped.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimLeft(s, "$€£¥ ")
	s = strings.TrimRight(s, "$€£¥ ")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "'", "")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0 && lastDot > lastComma:
		s = strings.ReplaceAll(s, ",", "")
	case lastDot >= 0 && lastComma >= 0:
		s = strings.ReplaceAll(s, ".", "")
	case lastComma >= 0 && strings.Count(s, ",") > 1:
		s = strings.ReplaceAll(s, ",", "")
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	return ParseDecimalToCents(s)
}

// MaxAmountCents bounds a single amount (one trillion currency units) so
// that per-user sums stay well inside int64.
const MaxAmountCents int64 = 100_000_000_000_000

var maxAmount = decimal.New(MaxAmountCents, -2)

// NewMoneyFromDecimal rounds d half away from zero to whole cents.
func NewMoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Shift(2).Round(0).IntPart()}
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// Div splits m into n equal parts, rounded to the cent. n <= 0 yields zero.
func (m Money) Div(n int64) Money {
	if n <= 0 {
		return Money{}
	}
	return NewMoneyFromDecimal(m.Decimal().Div(decimal.NewFromInt(n)))
}

// PercentOf is m/total in percent, rounded to one decimal.
func (m Money) PercentOf(total Money) float64 {
	if total.Cents <= 0 {
		return 0
	}
	f, _ := m.Decimal().Div(total.Decimal()).Mul(decimal.NewFromInt(100)).Round(1).Float64()
	return f
}

// String formats the amount with two decimals and no symbol.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*m = Money{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Validationf("invalid amount %q", s)
	}
	if d.Abs().GreaterThan(maxAmount) {
		return Validationf("amount %q exceeds %s", s, maxAmount.StringFixed(2))
	}
	*m = NewMoneyFromDecimal(d)
	return nil
}

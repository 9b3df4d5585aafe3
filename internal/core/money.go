// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents. Division and percentages go through
// shopspring/decimal so rounding is explicit.
package core

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var brl = message.NewPrinter(language.BrazilianPortuguese)

// ParseDecimalToCents converts a decimal string to cents with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// on the third decimal place. Negative and zero amounts are rejected.
//
// Examples:
//
//	ParseDecimalToCents("29.90") -> 2990, nil
//	ParseDecimalToCents("29,90") -> 2990, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
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
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
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
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// NewMoney builds a Money from a decimal amount rounded half-up to cents.
func NewMoney(d decimal.Decimal) Money {
	return Money{Cents: d.Round(2).Shift(2).IntPart()}
}

// Cents is a shorthand for Money{Cents: c}.
func Cents(c int64) Money {
	return Money{Cents: c}
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) IsZero() bool { return m.Cents == 0 }

// Reais returns the value as a float64 for display and JSON payloads.
// Calculations stay in cents.
func (m Money) Reais() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

// Format renders the amount as Brazilian Real, e.g. "R$ 1.234,56".
func (m Money) Format() string {
	if m.Cents < 0 {
		return "-" + brl.Sprintf("R$ %.2f", Money{Cents: -m.Cents}.Reais())
	}
	return brl.Sprintf("R$ %.2f", m.Reais())
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

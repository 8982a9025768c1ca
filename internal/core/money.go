// Package core provides the domain types shared by every store.
//
// This file contains the Money type and the parser used for amounts typed
// into forms. Amounts are whole currency units; the backend stores them as
// plain JSON numbers.
package core

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in whole currency units.
type Money int64

func (m Money) Validate() error {
	if m < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// UnmarshalJSON accepts integers, decimals (rounded half-up) and numeric strings.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*m = Money(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrInvalidAmount
	}
	*m = Money(math.Floor(f + 0.5))
	return nil
}

// String formats the amount with comma thousands separators, e.g. "-12,000".
func (m Money) String() string {
	n := int64(m)
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ParseAmount converts user input into Money.
//
// Commas, underscores and spaces are treated as digit grouping. An optional
// fractional part after a single dot is rounded half-up to whole units.
// Negative values and anything non-numeric are rejected; zero is allowed.
//
// Examples:
//
//	ParseAmount("12,000")  -> 12000, nil
//	ParseAmount("1 500")   -> 1500, nil
//	ParseAmount("999.5")   -> 1000, nil
//	ParseAmount("-1")      -> 0, ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	s = strings.NewReplacer(",", "", "_", "", " ", "").Replace(s)

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
	n, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if fracPart != "" && fracPart[0] >= '5' {
		if n == math.MaxInt64 {
			return 0, ErrInvalidAmount
		}
		n++
	}
	return Money(n), nil
}

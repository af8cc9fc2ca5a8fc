package postgres

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts are NUMERIC(19,2) in the database and integer minor units in the domain.

func numericStringToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty numeric string")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

func centsToNumericString(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

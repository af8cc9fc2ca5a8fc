package clients

import (
	"github.com/shopspring/decimal"
)

// toMinorUnits converts a major-unit amount such as 19.99 into 1999.
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

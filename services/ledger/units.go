package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the precision of the article token.
const DefaultDecimals = 18

// FormatUnits renders atomic as a decimal token amount with trailing zeros removed,
// e.g. 100000000000000000 with 18 decimals is "0.1".
func FormatUnits(atomic *big.Int, decimals int32) string {
	if atomic == nil {
		return "0"
	}
	return decimal.NewFromBigInt(atomic, -decimals).String()
}

// ParseUnits converts a decimal token amount into atomic units. More fractional digits than
// decimals is an error.
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative")
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}
	return scaled.BigInt(), nil
}

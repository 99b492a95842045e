package simpledao

import (
	"math/big"
	"strings"
)

// FormatUnits renders an integer amount of base units as a decimal string
// with the given number of decimals, e.g. 1500000000000000000 at 18 decimals
// is "1.5". Whole amounts keep one fractional digit ("2.0"); nil is "0.0".
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0.0"
	}
	if decimals <= 0 {
		return amount.String() + ".0"
	}

	sign := ""
	abs := new(big.Int).Set(amount)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}

	digits := abs.String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}

	integerPart := digits[:len(digits)-decimals]
	decimalPart := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if decimalPart == "" {
		decimalPart = "0"
	}

	return sign + integerPart + "." + decimalPart
}

// FormatTokens renders a governance token amount
func FormatTokens(amount *big.Int) string {
	return FormatUnits(amount, TokenDecimals)
}

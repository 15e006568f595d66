package balance

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatUnits renders a base-unit amount as a human balance: thousands-separated
// integer part and exactly two fraction digits, truncated rather than rounded.
func FormatUnits(raw *big.Int, decimals int32) string {
	if raw == nil {
		return "0.00"
	}

	fixed := decimal.NewFromBigInt(raw, -decimals).Truncate(2).StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	return sign + groupThousands(intPart) + "." + fracPart
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}

	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

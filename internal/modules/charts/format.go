package charts

import (
	"fmt"
	"math"
	"strings"
)

var currencySymbols = map[string]string{
	"RUB": "₽",
	"USD": "$",
	"EUR": "€",
}

// Symbol returns the display symbol for a currency code, falling back to
// the code itself.
func Symbol(currency string) string {
	if s, ok := currencySymbols[strings.ToUpper(currency)]; ok {
		return s
	}
	return currency
}

// PricePrecision picks the number of decimals for a price so small and
// large quotes both stay readable: sub-ruble prices keep three
// significant digits (capped at six decimals), large ones get fewer.
func PricePrecision(price float64) int {
	abs := math.Abs(price)
	switch {
	case abs == 0:
		return 2
	case abs < 1:
		leadingZeros := int(math.Floor(-math.Log10(abs)))
		if leadingZeros < 0 {
			leadingZeros = 0
		}
		precision := leadingZeros + 3
		if precision > 6 {
			precision = 6
		}
		return precision
	case abs < 10:
		return 3
	case abs < 1000:
		return 2
	default:
		return 1
	}
}

// FormatPrice renders a price with magnitude-aware precision and the
// currency symbol attached.
func FormatPrice(value float64, currency string) string {
	return fmt.Sprintf("%.*f%s", PricePrecision(value), value, Symbol(currency))
}

// FormatAmount renders a rounded amount with the currency symbol, for
// axis labels.
func FormatAmount(value float64, currency string) string {
	return fmt.Sprintf("%.0f%s", value, Symbol(currency))
}

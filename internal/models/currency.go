package models

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code accepted by the checkout.
type Currency string

const (
	CurrencyKES Currency = "KES"
	CurrencyUSD Currency = "USD"
)

// ParseCurrency normalises user input; an empty value selects KES.
func ParseCurrency(raw string) (Currency, error) {
	switch c := Currency(strings.ToUpper(strings.TrimSpace(raw))); c {
	case "":
		return CurrencyKES, nil
	case CurrencyKES, CurrencyUSD:
		return c, nil
	default:
		return "", fmt.Errorf("unsupported currency %q", raw)
	}
}

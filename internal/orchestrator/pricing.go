package orchestrator

import (
	"fmt"
	"sort"

	"cleanpay/internal/models"
)

var supportedCurrencies = []models.Currency{models.CurrencyKES, models.CurrencyUSD}

// Pricing maps a currency to the charge in minor units. The amount depends on
// the currency alone; nothing the cleaning service returns feeds into it.
type Pricing struct {
	amounts map[models.Currency]int64
	flat    int64
}

// DefaultPricing charges 500 KES or 15 USD.
func DefaultPricing() Pricing {
	return Pricing{amounts: map[models.Currency]int64{
		models.CurrencyKES: 500 * 100,
		models.CurrencyUSD: 15 * 100,
	}}
}

// FlatPricing charges the same minor-unit amount in every supported currency.
func FlatPricing(amount int64) Pricing {
	return Pricing{flat: amount}
}

// NewPricing builds a table from currency codes to minor units.
func NewPricing(table map[string]int64) (Pricing, error) {
	amounts := make(map[models.Currency]int64, len(table))
	for code, amount := range table {
		currency, err := models.ParseCurrency(code)
		if err != nil || code == "" {
			return Pricing{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
		}
		if amount <= 0 {
			return Pricing{}, fmt.Errorf("amount for %s must be positive", currency)
		}
		amounts[currency] = amount
	}
	return Pricing{amounts: amounts}, nil
}

// Amount returns the charge for c.
func (p Pricing) Amount(c models.Currency) (int64, error) {
	if p.flat > 0 {
		for _, supported := range supportedCurrencies {
			if c == supported {
				return p.flat, nil
			}
		}
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, c)
	}
	amount, ok := p.amounts[c]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, c)
	}
	return amount, nil
}

// PriceEntry is one row of the price table.
type PriceEntry struct {
	Currency models.Currency
	Amount   int64
}

// Entries lists the table sorted by currency code.
func (p Pricing) Entries() []PriceEntry {
	var out []PriceEntry
	if p.flat > 0 {
		for _, c := range supportedCurrencies {
			out = append(out, PriceEntry{Currency: c, Amount: p.flat})
		}
		return out
	}
	for c, amount := range p.amounts {
		out = append(out, PriceEntry{Currency: c, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

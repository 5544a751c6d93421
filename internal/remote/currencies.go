package remote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/dispatch"
)

// Currencies implements invoice.CurrencyConverter.
type Currencies struct {
	d dispatch.Dispatcher
}

// NewCurrencies constructs a currency converter.
func NewCurrencies(d dispatch.Dispatcher) *Currencies {
	return &Currencies{d: d}
}

// ToCurrency converts amount from one currency to another at asOf. Equal
// currencies convert locally.
func (c *Currencies) ToCurrency(ctx context.Context, from, to string, amount decimal.Decimal, asOf time.Time) (decimal.Decimal, error) {
	src, err := currencyCode(from)
	if err != nil {
		return decimal.Zero, err
	}
	dst, err := currencyCode(to)
	if err != nil {
		return decimal.Zero, err
	}
	if src == dst {
		return amount, nil
	}
	return dispatch.Call[decimal.Decimal](ctx, c.d, typeCurrency, "toCurrency", src, dst, amount, formatDate(asOf))
}

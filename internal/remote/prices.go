package remote

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/dispatch"
	"github.com/odyssey-erp/invoicing/internal/invoice"
	"github.com/odyssey-erp/invoicing/internal/money"
)

// Prices implements invoice.PriceLookup.
type Prices struct {
	d dispatch.Dispatcher
}

// NewPrices constructs a price lookup.
func NewPrices(d dispatch.Dispatcher) *Prices {
	return &Prices{d: d}
}

type priceOptions struct {
	AsOf         string `json:"asOf"`
	Currency     string `json:"currency"`
	Effective    string `json:"effective"`
	QuantityUnit string `json:"quantityUnit"`
	PriceUnit    string `json:"priceUnit"`
}

type priceResult struct {
	Price decimal.Decimal `json:"price"`
}

// ItemPrice asks the customer's price list for a price. The ERP answers
// -9999 when no price applies; that becomes Found=false here.
func (p *Prices) ItemPrice(ctx context.Context, req invoice.PriceRequest) (invoice.PriceQuote, error) {
	opts := priceOptions{
		AsOf:         formatDate(req.AsOf),
		Currency:     req.Currency,
		Effective:    formatDate(req.Effective),
		QuantityUnit: req.QuantityUnit,
		PriceUnit:    req.PriceUnit,
	}
	res, err := dispatch.Call[priceResult](ctx, p.d, typeCustomer, "itemPrice", req.Customer, req.Item, req.Quantity, opts)
	if err != nil {
		return invoice.PriceQuote{}, err
	}
	if money.IsSentinelNoPrice(res.Price) {
		return invoice.PriceQuote{}, nil
	}
	return invoice.PriceQuote{Price: res.Price, Found: true}, nil
}

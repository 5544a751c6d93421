package remote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/dispatch"
)

// Credits implements invoice.CreditLookup.
type Credits struct {
	d dispatch.Dispatcher
}

// NewCredits constructs a credit lookup.
func NewCredits(d dispatch.Dispatcher) *Credits {
	return &Credits{d: d}
}

// OutstandingCredit returns unapplied credit for customer in currency.
func (c *Credits) OutstandingCredit(ctx context.Context, customer, currency string, asOf time.Time) (decimal.Decimal, error) {
	return dispatch.Call[decimal.Decimal](ctx, c.d, typeInvoice, "outstandingCredit", customer, currency, formatDate(asOf))
}

// AuthorizedCredit returns credit card authorizations held for an invoice.
func (c *Credits) AuthorizedCredit(ctx context.Context, invoiceNumber string) (decimal.Decimal, error) {
	return dispatch.Call[decimal.Decimal](ctx, c.d, typeInvoice, "authorizedCredit", invoiceNumber)
}

package remote

import (
	"context"

	"github.com/odyssey-erp/invoicing/internal/dispatch"
)

// Invoices implements invoice.Actions.
type Invoices struct {
	d dispatch.Dispatcher
}

// NewInvoices constructs the invoice action adapter.
func NewInvoices(d dispatch.Dispatcher) *Invoices {
	return &Invoices{d: d}
}

// Post posts the invoice on the ERP.
func (i *Invoices) Post(ctx context.Context, number string) error {
	_, err := i.d.Dispatch(ctx, typeInvoice, "post", number)
	return err
}

// Void voids a posted invoice on the ERP.
func (i *Invoices) Void(ctx context.Context, number string) error {
	_, err := i.d.Dispatch(ctx, typeInvoice, "void", number)
	return err
}

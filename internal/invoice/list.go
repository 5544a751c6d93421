package invoice

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/shared"
)

// ListItem is the lightweight list form of an invoice.
type ListItem struct {
	Number         string          `json:"number"`
	CustomerNumber string          `json:"customer_number"`
	CustomerName   string          `json:"customer_name"`
	InvoiceDate    time.Time       `json:"invoice_date"`
	Total          decimal.Decimal `json:"total"`
	IsPosted       bool            `json:"is_posted"`
	IsVoid         bool            `json:"is_void"`
	IsPrinted      bool            `json:"is_printed"`
}

// Relation is the picker form of an invoice used by other documents.
type Relation struct {
	Number       string    `json:"number"`
	CustomerName string    `json:"customer_name"`
	InvoiceDate  time.Time `json:"invoice_date"`
	IsPosted     bool      `json:"is_posted"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Customer string
	Posted   *bool
	Limit    int
	Offset   int
}

// CouldDestroy reports whether the entry may be deleted.
func (li ListItem) CouldDestroy(p Privileges) bool {
	return p.Has(shared.PermMaintainMiscInvoices) && !li.IsPosted
}

// CanPost reports whether the entry may be posted.
func (li ListItem) CanPost(p Privileges) bool {
	return p.Has(shared.PermPostMiscInvoices) && !li.IsPosted
}

// CanVoid reports whether the entry may be voided.
func (li ListItem) CanVoid(p Privileges) bool {
	return p.Has(shared.PermVoidPostedInvoices) && li.IsPosted
}

// CanPrint reports whether the entry may be printed.
func (li ListItem) CanPrint(p Privileges) bool {
	return p.Has(shared.PermPrintInvoices)
}

// DoPost asks the ERP to post the invoice.
func (li ListItem) DoPost(ctx context.Context, a Actions) error {
	return a.Post(ctx, li.Number)
}

// DoVoid asks the ERP to void the invoice.
func (li ListItem) DoVoid(ctx context.Context, a Actions) error {
	return a.Void(ctx, li.Number)
}

// DoPrint records a print request. Rendering happens elsewhere.
func (li ListItem) DoPrint(logger zerolog.Logger) {
	logger.Info().Str("invoice", li.Number).Msg("invoice print requested")
}

// Relation returns the picker form of rec.
func (rec Record) Relation() Relation {
	r := Relation{Number: rec.Number, InvoiceDate: rec.InvoiceDate, IsPosted: rec.IsPosted}
	if rec.Customer != nil {
		r.CustomerName = rec.Customer.Name
	}
	return r
}

// ListItem returns the list form of rec.
func (rec Record) ListItem() ListItem {
	li := ListItem{
		Number:      rec.Number,
		InvoiceDate: rec.InvoiceDate,
		Total:       rec.Total,
		IsPosted:    rec.IsPosted,
		IsVoid:      rec.IsVoid,
		IsPrinted:   rec.IsPrinted,
	}
	if rec.Customer != nil {
		li.CustomerNumber = rec.Customer.Number
		li.CustomerName = rec.Customer.Name
	}
	return li
}

// ListItem returns the list form of the document.
func (inv *Invoice) ListItem() ListItem {
	return inv.Record().ListItem()
}

// applyFlags syncs the posted, void and printed flags after an ERP action.
func (inv *Invoice) applyFlags(posted, void, printed bool) {
	_ = inv.engine.Do(func() error {
		if inv.isPosted != posted {
			inv.isPosted = posted
			inv.node.Changed(AttrIsPosted)
		}
		if inv.isVoid != void {
			inv.isVoid = void
			inv.node.Changed(AttrIsVoid)
		}
		if inv.isPrinted != printed {
			inv.isPrinted = printed
			inv.node.Changed(AttrIsPrinted)
		}
		inv.applyIsPostedRules()
		return nil
	})
}

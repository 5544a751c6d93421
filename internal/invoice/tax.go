package invoice

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/money"
	"github.com/odyssey-erp/invoicing/internal/recalc"
)

const (
	edgeTax     = "line.tax"
	edgeTaxType = "line.tax_type"
)

// calculateTax rebuilds the line's taxes from a tax detail request keyed by
// tax zone, tax type, effective date, currency and extended price. Only the
// latest request is applied. Without a date, a currency or a non-zero
// extended price nothing is requested and the current taxes stay.
func (l *Line) calculateTax() {
	p := l.parent
	if p == nil || l.status.destroyed() {
		return
	}
	amount := l.extendedPrice
	if p.invoiceDate.IsZero() || p.currency == nil || amount.IsZero() {
		return
	}
	taxes := p.svc.Taxes
	if taxes == nil {
		return
	}
	tok := l.taxGen.Next()
	req := TaxRequest{
		TaxZone:   taxZoneID(p.taxZone),
		TaxType:   taxTypeID(l.taxType),
		Effective: p.invoiceDate,
		Currency:  currencyID(p.currency),
		Amount:    amount,
	}
	recalc.Spawn(l.engine, edgeTax, func(ctx context.Context) ([]TaxDetail, error) {
		return taxes.TaxDetail(ctx, req)
	}, func(details []TaxDetail, err error) {
		if !l.taxGen.Current(tok) {
			l.owner.stale(edgeTax)
			return
		}
		if err != nil {
			p.svc.Metrics.Async(edgeTax, recalc.OutcomeError)
			l.owner.emit(EventError, CodeTaxFailed, l.uuid, err)
			return
		}
		p.svc.Metrics.Async(edgeTax, recalc.OutcomeApplied)
		rebuilt := make([]LineTax, 0, len(details))
		for _, d := range details {
			rebuilt = append(rebuilt, LineTax{
				UUID:    uuid.New(),
				TaxType: l.taxType,
				TaxCode: d.TaxCode,
				Amount:  d.Amount,
			})
		}
		l.setTaxes(rebuilt)
	})
}

// setTaxes replaces the tax collection and recalculates the document.
func (l *Line) setTaxes(taxes []LineTax) {
	if len(taxes) == 0 && len(l.taxes) == 0 {
		return
	}
	l.taxes = taxes
	amounts := make([]decimal.Decimal, 0, len(taxes))
	for _, t := range taxes {
		amounts = append(amounts, t.Amount)
	}
	l.taxTotal = money.Sum(amounts, money.TaxScale)
	l.node.Changed(AttrTaxes)
	l.recalculateParent()
}

// fetchTaxType looks up the item's tax type for the document's tax zone.
func (l *Line) fetchTaxType() {
	tok := l.taxTypeGen.Next()
	catalog := l.owner.svc.Items
	if l.item == nil || catalog == nil {
		return
	}
	itemID := l.item.ID
	zoneID := ""
	if l.parent != nil {
		zoneID = taxZoneID(l.parent.taxZone)
	}
	recalc.Spawn(l.engine, edgeTaxType, func(ctx context.Context) (*TaxType, error) {
		return catalog.TaxType(ctx, itemID, zoneID)
	}, func(t *TaxType, err error) {
		if !l.taxTypeGen.Current(tok) {
			l.owner.stale(edgeTaxType)
			return
		}
		if err != nil {
			l.owner.svc.Metrics.Async(edgeTaxType, recalc.OutcomeError)
			l.owner.emit(EventError, CodeTaxTypeFailed, l.uuid, err)
			return
		}
		l.owner.svc.Metrics.Async(edgeTaxType, recalc.OutcomeApplied)
		l.setTaxType(t)
	})
}

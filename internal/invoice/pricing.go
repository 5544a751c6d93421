package invoice

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/money"
	"github.com/odyssey-erp/invoicing/internal/recalc"
)

const edgePrice = "line.price"

// calculatePrice asks the customer's price list for this line's unit price
// when every input is known. At most one request is in flight per line; a
// request made while one is pending marks it stale, and the stale response is
// dropped in favor of a fresh request built from current values.
func (l *Line) calculatePrice(force bool) {
	p := l.parent
	if p == nil || p.isPosted || l.status.destroyed() {
		return
	}
	if !force && p.settings.UpdatePriceOnLineEdit == PriceNever && l.price.Valid {
		return
	}
	prices := p.svc.Prices
	if prices == nil {
		return
	}
	billed := money.OrZero(l.billed)
	if p.customer == nil || p.currency == nil || l.item == nil || billed.IsZero() ||
		l.units.quantityUnit == nil || l.units.priceUnit == nil ||
		l.units.priceUnitRatio.IsZero() || p.invoiceDate.IsZero() {
		return
	}

	tok, issue := l.priceGen.Acquire()
	if !issue {
		return
	}
	l.priceReadOnly = l.readOnly.Is(AttrPrice)
	l.readOnly.Set(true, AttrPrice)

	req := PriceRequest{
		Customer:     p.customer.Number,
		Item:         l.item.Number,
		Quantity:     billed,
		Currency:     p.currency.Abbreviation,
		AsOf:         p.invoiceDate,
		Effective:    p.invoiceDate,
		QuantityUnit: l.units.quantityUnit.ID,
		PriceUnit:    l.units.priceUnit.ID,
	}
	recalc.Spawn(l.engine, edgePrice, func(ctx context.Context) (PriceQuote, error) {
		return prices.ItemPrice(ctx, req)
	}, func(quote PriceQuote, err error) {
		l.readOnly.Set(l.priceReadOnly, AttrPrice)
		if !l.priceGen.Release(tok) {
			l.owner.stale(edgePrice)
			l.calculatePrice(true)
			return
		}
		if err != nil {
			p.svc.Metrics.Async(edgePrice, recalc.OutcomeError)
			l.owner.emit(EventError, CodePriceFailed, l.uuid, err)
			return
		}
		p.svc.Metrics.Async(edgePrice, recalc.OutcomeApplied)
		if !quote.Found {
			l.priceNotFound()
			return
		}
		price := money.Null(quote.Price.Round(money.SalesPriceScale))
		setNull(l.node, &l.customerPrice, price, AttrCustomerPrice)
		setNull(l.node, &l.price, price, AttrPrice)
		l.engine.Schedule(l.extendedRule)
	})
}

// priceNotFound clears the price and the quantities it was requested for.
func (l *Line) priceNotFound() {
	l.owner.emit(EventWarning, CodePriceNotFound, l.uuid, nil)
	setNull(l.node, &l.customerPrice, decimal.NullDecimal{}, AttrCustomerPrice)
	setNull(l.node, &l.price, decimal.NullDecimal{}, AttrPrice)
	setNull(l.node, &l.billed, decimal.NullDecimal{}, AttrBilled)
	setNull(l.node, &l.quantity, decimal.NullDecimal{}, AttrQuantity)
}


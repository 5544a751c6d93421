package invoice

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/money"
	"github.com/odyssey-erp/invoicing/internal/recalc"
)

const (
	edgeAllocatedCredit   = "invoice.allocated_credit"
	edgeOutstandingCredit = "invoice.outstanding_credit"
	edgeAuthorizedCredit  = "invoice.authorized_credit"
)

// calculateAllocatedCredit converts every allocation that carries a currency
// into the invoice currency as of now and folds the results in allocation
// order. Allocations without a currency are left out.
func (inv *Invoice) calculateAllocatedCredit() {
	tok := inv.allocatedGen.Next()

	var allocations []Allocation
	for _, a := range inv.allocations {
		if a.Currency != nil {
			allocations = append(allocations, a)
		}
	}
	if len(allocations) == 0 {
		inv.setAmount(&inv.allocatedCredit, decimal.Zero, AttrAllocatedCredit)
		return
	}
	converter := inv.svc.Currencies
	target := inv.currency
	if converter == nil || target == nil {
		return
	}
	to := target.Abbreviation
	asOf := inv.svc.now()

	recalc.Spawn(inv.engine, edgeAllocatedCredit, func(ctx context.Context) (decimal.Decimal, error) {
		return recalc.FoldOrdered(ctx, allocations,
			func(ctx context.Context, a Allocation) (decimal.Decimal, error) {
				return converter.ToCurrency(ctx, a.Currency.Abbreviation, to, a.Amount, asOf)
			},
			decimal.Zero,
			func(acc, converted decimal.Decimal) decimal.Decimal {
				return acc.Add(converted)
			})
	}, func(total decimal.Decimal, err error) {
		if !inv.allocatedGen.Current(tok) {
			inv.stale(edgeAllocatedCredit)
			return
		}
		if err != nil {
			inv.svc.Metrics.Async(edgeAllocatedCredit, recalc.OutcomeError)
			inv.emit(EventError, CodeAllocatedFailed, uuid.Nil, err)
			return
		}
		inv.svc.Metrics.Async(edgeAllocatedCredit, recalc.OutcomeApplied)
		inv.setAmount(&inv.allocatedCredit, money.Round(total, money.MoneyScale), AttrAllocatedCredit)
	})
}

// calculateOutstandingCredit looks up open customer credit. Any failure,
// including missing inputs, resets the value to unknown.
func (inv *Invoice) calculateOutstandingCredit() {
	tok := inv.outstandingGen.Next()
	credits := inv.svc.Credits
	if credits == nil {
		return
	}
	if inv.customer == nil || inv.currency == nil || inv.invoiceDate.IsZero() {
		inv.setNullAmount(&inv.outstandingCredit, decimal.NullDecimal{}, AttrOutstandingCredit)
		return
	}
	customer := inv.customer.Number
	currency := inv.currency.Abbreviation
	date := inv.invoiceDate

	recalc.Spawn(inv.engine, edgeOutstandingCredit, func(ctx context.Context) (decimal.Decimal, error) {
		return credits.OutstandingCredit(ctx, customer, currency, date)
	}, func(v decimal.Decimal, err error) {
		if !inv.outstandingGen.Current(tok) {
			inv.stale(edgeOutstandingCredit)
			return
		}
		if err != nil {
			inv.svc.Metrics.Async(edgeOutstandingCredit, recalc.OutcomeError)
			inv.setNullAmount(&inv.outstandingCredit, decimal.NullDecimal{}, AttrOutstandingCredit)
			inv.emit(EventError, CodeOutstandingFailed, uuid.Nil, err)
			return
		}
		inv.svc.Metrics.Async(edgeOutstandingCredit, recalc.OutcomeApplied)
		inv.setNullAmount(&inv.outstandingCredit, money.Null(v), AttrOutstandingCredit)
	})
}

func (inv *Invoice) calculateAuthorizedCredit() {
	tok := inv.authorizedGen.Next()
	credits := inv.svc.Credits
	if credits == nil || inv.number == "" {
		return
	}
	number := inv.number

	recalc.Spawn(inv.engine, edgeAuthorizedCredit, func(ctx context.Context) (decimal.Decimal, error) {
		return credits.AuthorizedCredit(ctx, number)
	}, func(v decimal.Decimal, err error) {
		if !inv.authorizedGen.Current(tok) {
			inv.stale(edgeAuthorizedCredit)
			return
		}
		if err != nil {
			inv.svc.Metrics.Async(edgeAuthorizedCredit, recalc.OutcomeError)
			inv.emit(EventError, CodeAuthorizedFailed, uuid.Nil, err)
			return
		}
		inv.svc.Metrics.Async(edgeAuthorizedCredit, recalc.OutcomeApplied)
		inv.setNullAmount(&inv.authorizedCredit, money.Null(v), AttrAuthorizedCredit)
		inv.calculateBalance()
	})
}


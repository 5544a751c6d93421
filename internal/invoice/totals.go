package invoice

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/money"
)

// TaxAmount is one tax amount tagged by tax code.
type TaxAmount struct {
	Code   string
	Amount decimal.Decimal
}

// TotalsInput collects the amounts a document total is built from.
type TotalsInput struct {
	ExtendedPrices []decimal.Decimal
	Taxes          []TaxAmount
	MiscCharge     decimal.Decimal
}

// Totals are the document-level amounts derived from TotalsInput.
type Totals struct {
	Subtotal decimal.Decimal
	TaxTotal decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals derives subtotal, tax total and total.
//
// Taxes are grouped by tax code. Each group is summed and rounded at tax
// precision first, and only the rounded group subtotals are accumulated at
// money scale. Groups are accumulated in code order.
func ComputeTotals(in TotalsInput) Totals {
	groups := make(map[string][]decimal.Decimal)
	for _, t := range in.Taxes {
		groups[t.Code] = append(groups[t.Code], t.Amount)
	}
	codes := make([]string, 0, len(groups))
	for code := range groups {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	taxTotal := decimal.Zero
	for _, code := range codes {
		groupTotal := money.Sum(groups[code], money.TaxScale)
		taxTotal = money.Add(money.MoneyScale, taxTotal, groupTotal)
	}

	subtotal := money.Sum(in.ExtendedPrices, money.MoneyScale)

	parts := make([]decimal.Decimal, 0, len(in.ExtendedPrices)+2)
	parts = append(parts, in.ExtendedPrices...)
	parts = append(parts, in.MiscCharge, taxTotal)

	return Totals{
		Subtotal: subtotal,
		TaxTotal: taxTotal,
		Total:    money.Sum(parts, money.MoneyScale),
	}
}

// Balance is what remains payable after allocated and outstanding credit,
// never below zero. Unknown outstanding credit counts as zero.
func Balance(total, allocated decimal.Decimal, outstanding decimal.NullDecimal) decimal.Decimal {
	raw := money.Add(money.MoneyScale, total, allocated.Neg(), money.OrZero(outstanding).Neg())
	return money.Max(decimal.Zero, raw)
}

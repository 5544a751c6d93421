package remote

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/dispatch"
	"github.com/odyssey-erp/invoicing/internal/invoice"
)

// Taxes implements invoice.TaxCalculator.
type Taxes struct {
	d dispatch.Dispatcher
}

// NewTaxes constructs a tax calculator.
func NewTaxes(d dispatch.Dispatcher) *Taxes {
	return &Taxes{d: d}
}

type taxDetail struct {
	TaxCode struct {
		Code string `json:"code"`
	} `json:"taxCode"`
	Tax decimal.Decimal `json:"tax"`
}

// TaxDetail computes tax for one amount.
func (t *Taxes) TaxDetail(ctx context.Context, req invoice.TaxRequest) ([]invoice.TaxDetail, error) {
	res, err := dispatch.Call[[]taxDetail](ctx, t.d, typeTax, "taxDetail",
		req.TaxZone, req.TaxType, formatDate(req.Effective), req.Currency, req.Amount)
	if err != nil {
		return nil, err
	}
	out := make([]invoice.TaxDetail, 0, len(res))
	for _, r := range res {
		out = append(out, invoice.TaxDetail{TaxCode: r.TaxCode.Code, Amount: r.Tax})
	}
	return out, nil
}

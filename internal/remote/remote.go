// Package remote implements the invoice collaborator ports over a dispatcher.
package remote

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

// Record types on the ERP side.
const (
	typeCustomer      = "XM.Customer"
	typeCurrency      = "XM.Currency"
	typeInvoice       = "XM.Invoice"
	typeItem          = "XM.Item"
	typeSalesCategory = "XM.SalesCategory"
	typeSalesRep      = "XM.SalesRep"
	typeSaleType      = "XM.SaleType"
	typeTax           = "XM.Tax"
	typeTaxType       = "XM.TaxType"
	typeTaxZone       = "XM.TaxZone"
	typeTerms         = "XM.Terms"
	typeUnit          = "XM.Unit"
)

const wireDate = "2006-01-02"

// ErrInvalidCurrency rejects codes that are not ISO 4217.
var ErrInvalidCurrency = errors.New("remote: invalid currency code")

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(wireDate)
}

// currencyCode validates and canonicalises an ISO 4217 code.
func currencyCode(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return unit.String(), nil
}

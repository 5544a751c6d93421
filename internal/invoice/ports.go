package invoice

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/recalc"
)

// PriceRequest asks the customer's price list for an item price.
type PriceRequest struct {
	Customer     string
	Item         string
	Quantity     decimal.Decimal
	Currency     string
	AsOf         time.Time
	Effective    time.Time
	QuantityUnit string
	PriceUnit    string
}

// PriceQuote is the outcome of a price lookup. Found is false when the price
// list has no price for the request.
type PriceQuote struct {
	Price decimal.Decimal
	Found bool
}

// PriceLookup resolves customer item prices.
type PriceLookup interface {
	ItemPrice(ctx context.Context, req PriceRequest) (PriceQuote, error)
}

// TaxRequest asks for the tax detail of one amount.
type TaxRequest struct {
	TaxZone   string
	TaxType   string
	Effective time.Time
	Currency  string
	Amount    decimal.Decimal
}

// TaxDetail is one tax code and amount of a tax response.
type TaxDetail struct {
	TaxCode string
	Amount  decimal.Decimal
}

// TaxCalculator computes tax detail.
type TaxCalculator interface {
	TaxDetail(ctx context.Context, req TaxRequest) ([]TaxDetail, error)
}

// UnitConversion relates a selling unit to the item's inventory unit.
type UnitConversion struct {
	Ratio      decimal.Decimal
	Fractional bool
}

// ItemCatalog answers item-level questions.
type ItemCatalog interface {
	// TaxType returns the item's tax type in a zone, or nil when none applies.
	TaxType(ctx context.Context, itemID, taxZoneID string) (*TaxType, error)
	SellingUnits(ctx context.Context, itemID string) ([]Unit, error)
	UnitConversion(ctx context.Context, itemID, unitID string) (UnitConversion, error)
}

// CurrencyConverter converts amounts between currencies.
type CurrencyConverter interface {
	ToCurrency(ctx context.Context, from, to string, amount decimal.Decimal, asOf time.Time) (decimal.Decimal, error)
}

// CreditLookup answers customer credit questions.
type CreditLookup interface {
	OutstandingCredit(ctx context.Context, customer, currency string, asOf time.Time) (decimal.Decimal, error)
	AuthorizedCredit(ctx context.Context, invoiceNumber string) (decimal.Decimal, error)
}

// Actions performs document-level actions on the ERP.
type Actions interface {
	Post(ctx context.Context, number string) error
	Void(ctx context.Context, number string) error
}

// Privileges answers synchronous privilege checks.
type Privileges interface {
	Has(privilege string) bool
}

// Services bundles the collaborators a document consults while it settles.
// Nil collaborators disable the edges that need them.
type Services struct {
	Prices     PriceLookup
	Taxes      TaxCalculator
	Items      ItemCatalog
	Currencies CurrencyConverter
	Credits    CreditLookup
	Now        func() time.Time
	Logger     zerolog.Logger
	Metrics    *recalc.Metrics
}

func (s Services) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PricePolicy decides whether edits reprice lines that already have a price.
type PricePolicy string

const (
	PriceAlways PricePolicy = "always"
	PriceNever  PricePolicy = "never"
)

// Settings holds session settings that shape document behavior.
type Settings struct {
	UpdatePriceOnLineEdit PricePolicy
	DefaultSite           string
}

// Directory resolves reference records by their user-facing keys. Unknown
// keys return an error wrapping ErrNotFound.
type Directory interface {
	Customer(ctx context.Context, number string) (*Customer, error)
	Currency(ctx context.Context, abbreviation string) (*Currency, error)
	Item(ctx context.Context, number string) (*Item, error)
	Unit(ctx context.Context, name string) (*Unit, error)
	TaxZone(ctx context.Context, code string) (*TaxZone, error)
	TaxType(ctx context.Context, name string) (*TaxType, error)
	Terms(ctx context.Context, code string) (*Terms, error)
	SalesRep(ctx context.Context, number string) (*SalesRep, error)
	SaleType(ctx context.Context, code string) (*SaleType, error)
	SalesCategory(ctx context.Context, name string) (*SalesCategory, error)
}

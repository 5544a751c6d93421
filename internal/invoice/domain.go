package invoice

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================================
// REFERENCE RECORDS
// ============================================================================
//
// Reference records are point-in-time snapshots fetched from the ERP. A
// document keeps the snapshot it was given; nothing is live-linked.

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	Line3      string `json:"line3,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Contact struct {
	Name    string   `json:"name,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Address *Address `json:"address,omitempty"`
}

type Currency struct {
	ID           string `json:"id"`
	Abbreviation string `json:"abbreviation"`
	Symbol       string `json:"symbol,omitempty"`
}

type SalesRep struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type Terms struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

type TaxZone struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

type TaxType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SaleType struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

type SalesCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Unit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Item struct {
	ID            string `json:"id"`
	Number        string `json:"number"`
	Description   string `json:"description,omitempty"`
	InventoryUnit *Unit  `json:"inventory_unit,omitempty"`
	PriceUnit     *Unit  `json:"price_unit,omitempty"`
}

type Customer struct {
	ID               string          `json:"id"`
	Number           string          `json:"number"`
	Name             string          `json:"name"`
	BillingContact   *Contact        `json:"billing_contact,omitempty"`
	SalesRep         *SalesRep       `json:"sales_rep,omitempty"`
	Commission       decimal.Decimal `json:"commission"`
	Terms            *Terms          `json:"terms,omitempty"`
	TaxZone          *TaxZone        `json:"tax_zone,omitempty"`
	Currency         *Currency       `json:"currency,omitempty"`
	IsFreeFormBillto bool            `json:"is_free_form_billto"`
}

// Billto is the bill-to block copied from the customer's billing contact.
type Billto struct {
	Name       string `json:"name,omitempty"`
	Address1   string `json:"address1,omitempty"`
	Address2   string `json:"address2,omitempty"`
	Address3   string `json:"address3,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

func currencyID(c *Currency) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func taxZoneID(z *TaxZone) string {
	if z == nil {
		return ""
	}
	return z.ID
}

func taxTypeID(t *TaxType) string {
	if t == nil {
		return ""
	}
	return t.ID
}

// ============================================================================
// OWNED RECORDS
// ============================================================================

// LineTax is one tax amount applied to a line. It is replaced wholesale on
// every tax recalculation.
type LineTax struct {
	UUID    uuid.UUID       `json:"uuid"`
	TaxType *TaxType        `json:"tax_type,omitempty"`
	TaxCode string          `json:"tax_code"`
	Amount  decimal.Decimal `json:"amount"`
}

// TaxAdjustment is a document-level tax amount.
type TaxAdjustment struct {
	UUID    uuid.UUID       `json:"uuid"`
	TaxCode string          `json:"tax_code" validate:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

// Allocation applies existing customer credit against the invoice.
type Allocation struct {
	UUID     uuid.UUID       `json:"uuid"`
	Currency *Currency       `json:"currency,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Source   string          `json:"source,omitempty"`
}

type Characteristic struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

// AssignmentKind names the kind of record a document assignment links to.
type AssignmentKind string

const (
	AssignContact  AssignmentKind = "contact"
	AssignAccount  AssignmentKind = "account"
	AssignCustomer AssignmentKind = "customer"
	AssignFile     AssignmentKind = "file"
	AssignURL      AssignmentKind = "url"
	AssignItem     AssignmentKind = "item"
)

type Assignment struct {
	Kind   AssignmentKind `json:"kind" validate:"required,oneof=contact account customer file url item"`
	Target string         `json:"target" validate:"required"`
}

// ============================================================================
// RECORD STATUS
// ============================================================================

type Status int

const (
	StatusNew Status = iota
	StatusReadyClean
	StatusReadyDirty
	StatusDestroyedDirty
	StatusDestroyedClean
	StatusBusyCommitting
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusReadyClean:
		return "ready_clean"
	case StatusReadyDirty:
		return "ready_dirty"
	case StatusDestroyedDirty:
		return "destroyed_dirty"
	case StatusDestroyedClean:
		return "destroyed_clean"
	case StatusBusyCommitting:
		return "busy_committing"
	default:
		return "unknown"
	}
}

// MarshalText renders the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for v := StatusNew; v <= StatusBusyCommitting; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("invoice: unknown status %q", b)
}

func (s Status) destroyed() bool {
	return s == StatusDestroyedDirty || s == StatusDestroyedClean
}

// ============================================================================
// EVENTS
// ============================================================================

type EventKind string

const (
	EventWarning EventKind = "warning"
	EventError   EventKind = "error"
)

// Event codes.
const (
	CodePriceNotFound      = "price.not_found"
	CodePriceFailed        = "price.failed"
	CodeTaxFailed          = "tax.failed"
	CodeTaxTypeFailed      = "item.tax_type_failed"
	CodeSellingUnitsFailed = "item.selling_units_failed"
	CodeUnitRatioFailed    = "item.unit_ratio_failed"
	CodeAllocatedFailed    = "credit.allocated_failed"
	CodeOutstandingFailed  = "credit.outstanding_failed"
	CodeAuthorizedFailed   = "credit.authorized_failed"
)

// Event is a notification raised while the graph settles. Failed remote calls
// are reported here and never retried.
type Event struct {
	Kind    EventKind `json:"kind"`
	Code    string    `json:"code"`
	Line    uuid.UUID `json:"line,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

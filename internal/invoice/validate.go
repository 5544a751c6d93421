package invoice

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/invoicing/internal/money"
	"github.com/odyssey-erp/invoicing/internal/recalc"
)

var (
	ErrRequired            = errors.New("value is required")
	ErrNegativeTotal       = errors.New("invoice total must not be negative")
	ErrNoLineItems         = errors.New("invoice must have at least one line item")
	ErrNonPositiveQuantity = errors.New("quantity must be greater than zero")
	ErrFractionalQuantity  = errors.New("quantity must be a whole number for this unit")
)

// Validation error codes.
const (
	CodeRequired            = "required"
	CodeNegativeTotal       = "invoice.negative_total"
	CodeNoLineItems         = "invoice.no_lines"
	CodeNonPositiveQuantity = "line.non_positive_quantity"
	CodeFractionalQuantity  = "line.fractional_quantity"
	CodeInvalid             = "invalid"
)

// ValidationError reports the first business rule a document breaks.
type ValidationError struct {
	Code string
	Attr recalc.Attr
	Line uuid.UUID
	Err  error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Line != uuid.Nil {
		fmt.Fprintf(&b, " line %s", e.Line)
	}
	if e.Attr != "" {
		fmt.Fprintf(&b, " %s", e.Attr)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// translateValidation turns validator output into a ValidationError for the
// first failing field.
func translateValidation(err error, line uuid.UUID) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	if fe.Tag() == "required" {
		return &ValidationError{Code: CodeRequired, Attr: recalc.Attr(fe.Field()), Line: line, Err: ErrRequired}
	}
	return &ValidationError{
		Code: CodeInvalid,
		Attr: recalc.Attr(fe.Field()),
		Line: line,
		Err:  fmt.Errorf("failed %s", fe.Tag()),
	}
}

type documentFields struct {
	Number          string           `json:"number" validate:"required"`
	Customer        *Customer        `json:"customer" validate:"required"`
	Currency        *Currency        `json:"currency" validate:"required"`
	InvoiceDate     time.Time        `json:"invoice_date" validate:"required"`
	TaxAdjustments  []TaxAdjustment  `json:"tax_adjustments" validate:"dive"`
	Characteristics []Characteristic `json:"characteristics" validate:"dive"`
	Assignments     []Assignment     `json:"assignments" validate:"dive"`
}

type lineFields struct {
	UUID uuid.UUID `json:"uuid" validate:"required"`
	Site string    `json:"site" validate:"max=100"`
}

// Validate reports the first rule the document breaks, or nil.
func (inv *Invoice) Validate() error {
	var err error
	inv.engine.Read(func() { err = inv.validate() })
	return err
}

// validate checks, in order: base field rules, non-negative total, at least
// one line not pending deletion, then each surviving line.
func (inv *Invoice) validate() error {
	base := documentFields{
		Number:          inv.number,
		Customer:        inv.customer,
		Currency:        inv.currency,
		InvoiceDate:     inv.invoiceDate,
		TaxAdjustments:  inv.taxAdjustments,
		Characteristics: inv.characteristics,
		Assignments:     inv.assignments,
	}
	if err := validate.Struct(base); err != nil {
		return translateValidation(err, uuid.Nil)
	}

	if inv.total.IsNegative() {
		return &ValidationError{Code: CodeNegativeTotal, Attr: AttrTotal, Err: ErrNegativeTotal}
	}

	var live []*Line
	for _, l := range inv.lines {
		if l.status != StatusDestroyedDirty && l.status != StatusDestroyedClean {
			live = append(live, l)
		}
	}
	if len(live) == 0 {
		return &ValidationError{Code: CodeNoLineItems, Attr: AttrLineItems, Err: ErrNoLineItems}
	}

	for _, l := range live {
		if err := l.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports the first rule the line breaks, or nil.
func (l *Line) Validate() error {
	var err error
	l.engine.Read(func() { err = l.validate() })
	return err
}

func (l *Line) validate() error {
	billed := money.OrZero(l.billed)
	quantity := money.OrZero(l.quantity)

	if !billed.IsPositive() {
		return &ValidationError{Code: CodeNonPositiveQuantity, Attr: AttrBilled, Line: l.uuid, Err: ErrNonPositiveQuantity}
	}
	if !quantity.IsPositive() {
		return &ValidationError{Code: CodeNonPositiveQuantity, Attr: AttrQuantity, Line: l.uuid, Err: ErrNonPositiveQuantity}
	}
	if !l.units.unitIsFractional && (!money.IsWhole(quantity) || !money.IsWhole(billed)) {
		return &ValidationError{Code: CodeFractionalQuantity, Attr: AttrQuantity, Line: l.uuid, Err: ErrFractionalQuantity}
	}

	if l.isMiscellaneous {
		switch {
		case l.itemNumber == "":
			return l.required(AttrItemNumber)
		case l.itemDescription == "":
			return l.required(AttrItemDescription)
		case l.salesCategory == nil:
			return l.required(AttrSalesCategory)
		}
	} else if l.item == nil {
		return l.required(AttrItem)
	}

	if err := validate.Struct(lineFields{UUID: l.uuid, Site: l.site}); err != nil {
		return translateValidation(err, l.uuid)
	}
	return nil
}

func (l *Line) required(attr recalc.Attr) error {
	return &ValidationError{Code: CodeRequired, Attr: attr, Line: l.uuid, Err: ErrRequired}
}

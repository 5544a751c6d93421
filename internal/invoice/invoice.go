package invoice

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/money"
	"github.com/odyssey-erp/invoicing/internal/recalc"
)

// Invoice is an invoice document with its lines, tax adjustments and credit
// allocations. Derived amounts are kept current by the document's recalc
// engine; every exported method is safe for concurrent use.
type Invoice struct {
	engine   *recalc.Engine
	node     *recalc.Node
	readOnly recalc.Flags
	svc      Services
	settings Settings
	logger   zerolog.Logger

	status      Status
	prevStatus  Status
	// saving holds the line statuses written by the save in flight.
	saving      map[uuid.UUID]Status
	dirtyAfter  bool
	number      string
	customer    *Customer
	currency    *Currency
	invoiceDate time.Time
	billto      Billto
	salesRep    *SalesRep
	commission  decimal.Decimal
	terms       *Terms
	taxZone     *TaxZone
	saleType    *SaleType
	shipVia     string
	notes       string

	miscCharge        decimal.Decimal
	subtotal          decimal.Decimal
	taxTotal          decimal.Decimal
	total             decimal.Decimal
	allocatedCredit   decimal.Decimal
	outstandingCredit decimal.NullDecimal
	authorizedCredit  decimal.NullDecimal
	balance           decimal.Decimal

	isPosted  bool
	isVoid    bool
	isPrinted bool

	lines           []*Line
	taxAdjustments  []TaxAdjustment
	allocations     []Allocation
	characteristics []Characteristic
	assignments     []Assignment
	events          []Event

	allocatedGen   recalc.Generation
	outstandingGen recalc.Generation
	authorizedGen  recalc.Generation

	outstandingRule *recalc.Rule
	authorizedRule  *recalc.Rule
}

// New starts a new invoice numbered number.
func New(number string, svc Services, settings Settings) *Invoice {
	inv := newInvoice(svc, settings)
	_ = inv.engine.Do(func() error {
		inv.status = StatusNew
		inv.number = number
		inv.invoiceDate = dateOf(svc.now())
		inv.applyCustomerSettings()
		inv.setCurrencyReadOnly()
		inv.node.Changed(AttrInvoiceDate)
		return nil
	})
	return inv
}

func newInvoice(svc Services, settings Settings) *Invoice {
	if settings.UpdatePriceOnLineEdit == "" {
		settings.UpdatePriceOnLineEdit = PriceAlways
	}
	engine := recalc.New(recalc.Config{Logger: svc.Logger, Metrics: svc.Metrics})
	inv := &Invoice{
		engine:     engine,
		node:       engine.NewNode(),
		readOnly:   recalc.Flags{},
		svc:        svc,
		settings:   settings,
		logger:     svc.Logger,
		commission: decimal.Zero,
	}
	inv.readOnly.Set(true, invoiceReadOnlyDefaults...)
	inv.bindRules()
	return inv
}

func (inv *Invoice) bindRules() {
	n := inv.node
	n.On("invoice.customerDidChange", inv.customerDidChange, AttrCustomer)
	n.On("invoice.lineItemsDidChange", inv.lineItemsDidChange, AttrLineItems)
	inv.outstandingRule = n.On("invoice.calculateOutstandingCredit", inv.calculateOutstandingCredit,
		AttrInvoiceDate, AttrCurrency, AttrCustomer)
	inv.authorizedRule = n.On("invoice.calculateAuthorizedCredit", inv.calculateAuthorizedCredit,
		AttrInvoiceDate, AttrCurrency)
	n.On("invoice.calculateAllocatedCredit", inv.calculateAllocatedCredit,
		AttrInvoiceDate, AttrAllocations, AttrCurrency)
	n.On("invoice.calculateTotals", inv.calculateTotals,
		AttrLineItems, attrLineAmounts, AttrMiscCharge, AttrTaxAdjustments, AttrTaxZone)
	n.On("invoice.recalculateTaxes", inv.recalculateTaxes, AttrTaxZone)
	n.On("invoice.calculateBalance", inv.calculateBalance,
		AttrTotal, AttrAllocatedCredit, AttrOutstandingCredit)
	n.On("invoice.allocatedCreditDidChange", inv.setCurrencyReadOnly, AttrAllocatedCredit)
	n.On("invoice.statusDidChange", inv.statusDidChange, AttrStatus)
}

// ============================================================================
// RULES
// ============================================================================

func (inv *Invoice) applyCustomerSettings() {
	c := inv.customer
	inv.readOnly.Set(c == nil || inv.isPosted, AttrLineItems)
	inv.readOnly.Set(c == nil || !c.IsFreeFormBillto, billtoAttrs...)
}

func (inv *Invoice) applyIsPostedRules() {
	inv.readOnly.Set(inv.isPosted, postedAttrs...)
	inv.readOnly.Set(inv.isPosted || inv.customer == nil, AttrLineItems)
}

func (inv *Invoice) customerDidChange() {
	inv.applyCustomerSettings()

	c := inv.customer
	if c == nil {
		inv.setBillto(Billto{})
		inv.setSalesRep(nil)
		inv.setCommission(decimal.Zero)
		inv.setTerms(nil)
		inv.setTaxZone(nil)
		inv.setShipVia("")
		inv.setCurrency(nil)
		return
	}

	b := Billto{Name: c.Name}
	if contact := c.BillingContact; contact != nil {
		b.Phone = contact.Phone
		if a := contact.Address; a != nil {
			b.Address1 = a.Line1
			b.Address2 = a.Line2
			b.Address3 = a.Line3
			b.City = a.City
			b.State = a.State
			b.PostalCode = a.PostalCode
			b.Country = a.Country
		}
	}
	inv.setBillto(b)
	inv.setSalesRep(c.SalesRep)
	inv.setCommission(c.Commission)
	inv.setTerms(c.Terms)
	inv.setTaxZone(c.TaxZone)
	currency := c.Currency
	if currency == nil {
		currency = inv.currency
	}
	inv.setCurrency(currency)
}

func (inv *Invoice) lineItemsDidChange() {
	inv.setCurrencyReadOnly()
	inv.readOnly.Set(len(inv.lines) > 0, AttrCustomer)
}

// setCurrencyReadOnly locks the currency once lines exist or credit is
// allocated. The raw line count is used, so lines pending deletion still lock.
func (inv *Invoice) setCurrencyReadOnly() {
	inv.readOnly.Set(len(inv.lines) > 0 || !inv.allocatedCredit.IsZero(), AttrCurrency)
}

func (inv *Invoice) statusDidChange() {
	if inv.status != StatusReadyClean {
		return
	}
	inv.applyIsPostedRules()
	inv.setCurrencyReadOnly()
}

func (inv *Invoice) recalculateTaxes() {
	for _, l := range inv.lines {
		if l.status.destroyed() {
			continue
		}
		inv.engine.Schedule(l.taxRule)
	}
}

// calculateTotals covers the lines a save would store. Lines pending deletion
// are skipped.
func (inv *Invoice) calculateTotals() {
	var in TotalsInput
	in.MiscCharge = inv.miscCharge
	for _, l := range inv.lines {
		if l.status.destroyed() {
			continue
		}
		in.ExtendedPrices = append(in.ExtendedPrices, l.extendedPrice)
		for _, t := range l.taxes {
			in.Taxes = append(in.Taxes, TaxAmount{Code: t.TaxCode, Amount: t.Amount})
		}
	}
	for _, adj := range inv.taxAdjustments {
		in.Taxes = append(in.Taxes, TaxAmount{Code: adj.TaxCode, Amount: adj.Amount})
	}
	totals := ComputeTotals(in)
	inv.setAmount(&inv.subtotal, totals.Subtotal, AttrSubtotal)
	inv.setAmount(&inv.taxTotal, totals.TaxTotal, AttrTaxTotal)
	inv.setAmount(&inv.total, totals.Total, AttrTotal)
}

func (inv *Invoice) calculateBalance() {
	inv.setAmount(&inv.balance, Balance(inv.total, inv.allocatedCredit, inv.outstandingCredit), AttrBalance)
}

// ============================================================================
// INTERNAL SETTERS
// ============================================================================

func sameRef[T any](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(*a, *b)
}

func (inv *Invoice) setAmount(dst *decimal.Decimal, v decimal.Decimal, attr recalc.Attr) {
	if dst.Equal(v) {
		return
	}
	*dst = v
	inv.node.Changed(attr)
}

func (inv *Invoice) setNullAmount(dst *decimal.NullDecimal, v decimal.NullDecimal, attr recalc.Attr) {
	if dst.Valid == v.Valid && (!v.Valid || dst.Decimal.Equal(v.Decimal)) {
		return
	}
	*dst = v
	inv.node.Changed(attr)
}

func (inv *Invoice) setCustomer(c *Customer) {
	if sameRef(inv.customer, c) {
		return
	}
	inv.customer = c
	inv.node.Changed(AttrCustomer)
}

func (inv *Invoice) setCurrency(c *Currency) {
	if sameRef(inv.currency, c) {
		return
	}
	inv.currency = c
	inv.node.Changed(AttrCurrency)
}

func (inv *Invoice) setSalesRep(r *SalesRep) {
	if sameRef(inv.salesRep, r) {
		return
	}
	inv.salesRep = r
	inv.node.Changed(AttrSalesRep)
}

func (inv *Invoice) setTerms(t *Terms) {
	if sameRef(inv.terms, t) {
		return
	}
	inv.terms = t
	inv.node.Changed(AttrTerms)
}

func (inv *Invoice) setTaxZone(z *TaxZone) {
	if sameRef(inv.taxZone, z) {
		return
	}
	inv.taxZone = z
	inv.node.Changed(AttrTaxZone)
}

func (inv *Invoice) setSaleType(t *SaleType) {
	if sameRef(inv.saleType, t) {
		return
	}
	inv.saleType = t
	inv.node.Changed(AttrSaleType)
}

func (inv *Invoice) setCommission(v decimal.Decimal) {
	inv.setAmount(&inv.commission, v, AttrCommission)
}

func (inv *Invoice) setShipVia(v string) {
	if inv.shipVia == v {
		return
	}
	inv.shipVia = v
	inv.node.Changed(AttrShipVia)
}

func (inv *Invoice) setInvoiceDate(d time.Time) {
	d = dateOf(d)
	if inv.invoiceDate.Equal(d) {
		return
	}
	inv.invoiceDate = d
	inv.node.Changed(AttrInvoiceDate)
}

func (inv *Invoice) setBillto(b Billto) {
	old := inv.billto
	inv.billto = b
	pairs := []struct {
		attr     recalc.Attr
		old, new string
	}{
		{AttrBilltoName, old.Name, b.Name},
		{AttrBilltoAddress1, old.Address1, b.Address1},
		{AttrBilltoAddress2, old.Address2, b.Address2},
		{AttrBilltoAddress3, old.Address3, b.Address3},
		{AttrBilltoCity, old.City, b.City},
		{AttrBilltoState, old.State, b.State},
		{AttrBilltoPostalCode, old.PostalCode, b.PostalCode},
		{AttrBilltoCountry, old.Country, b.Country},
		{AttrBilltoPhone, old.Phone, b.Phone},
	}
	for _, p := range pairs {
		if p.old != p.new {
			inv.node.Changed(p.attr)
		}
	}
}

func (inv *Invoice) setStatus(s Status) {
	if inv.status == s {
		return
	}
	inv.status = s
	inv.node.Changed(AttrStatus)
}

func (inv *Invoice) markDirty() {
	if inv.status == StatusBusyCommitting {
		inv.dirtyAfter = true
		return
	}
	if inv.status == StatusReadyClean {
		inv.setStatus(StatusReadyDirty)
	}
}

func (inv *Invoice) emit(kind EventKind, code string, line uuid.UUID, err error) {
	msg := code
	if err != nil {
		msg = err.Error()
	}
	inv.events = append(inv.events, Event{
		Kind:    kind,
		Code:    code,
		Line:    line,
		Message: msg,
		At:      inv.svc.now(),
	})
	ev := inv.logger.Warn()
	if kind == EventError {
		ev = inv.logger.Error()
	}
	ev.Str("invoice", inv.number).Str("code", code).Err(err).Msg("invoice event")
}

func (inv *Invoice) stale(edge string) {
	inv.svc.Metrics.Async(edge, recalc.OutcomeStale)
	inv.logger.Debug().Str("invoice", inv.number).Str("edge", edge).Msg("discarded stale response")
}

func dateOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ============================================================================
// EDITING
// ============================================================================

func (inv *Invoice) edit(attr recalc.Attr, fn func() error) error {
	return inv.engine.Do(func() error {
		if inv.status == StatusBusyCommitting {
			return ErrSaving
		}
		if inv.readOnly.Is(attr) {
			return fmt.Errorf("%w: %s", ErrReadOnly, attr)
		}
		if err := fn(); err != nil {
			return err
		}
		inv.markDirty()
		return nil
	})
}

// SetCustomer sets the customer and copies its billing defaults.
func (inv *Invoice) SetCustomer(c *Customer) error {
	return inv.edit(AttrCustomer, func() error {
		inv.setCustomer(c)
		return nil
	})
}

// SetCurrency sets the document currency.
func (inv *Invoice) SetCurrency(c *Currency) error {
	return inv.edit(AttrCurrency, func() error {
		inv.setCurrency(c)
		return nil
	})
}

// SetInvoiceDate sets the invoice date.
func (inv *Invoice) SetInvoiceDate(d time.Time) error {
	return inv.edit(AttrInvoiceDate, func() error {
		inv.setInvoiceDate(d)
		return nil
	})
}

// SetNumber renumbers the document.
func (inv *Invoice) SetNumber(number string) error {
	return inv.edit(AttrNumber, func() error {
		if inv.number != number {
			inv.number = number
			inv.node.Changed(AttrNumber)
		}
		return nil
	})
}

// SetTaxZone sets the tax zone and recalculates every line's taxes.
func (inv *Invoice) SetTaxZone(z *TaxZone) error {
	return inv.edit(AttrTaxZone, func() error {
		inv.setTaxZone(z)
		return nil
	})
}

// SetTerms sets the payment terms.
func (inv *Invoice) SetTerms(t *Terms) error {
	return inv.edit(AttrTerms, func() error {
		inv.setTerms(t)
		return nil
	})
}

// SetSalesRep sets the sales rep.
func (inv *Invoice) SetSalesRep(r *SalesRep) error {
	return inv.edit(AttrSalesRep, func() error {
		inv.setSalesRep(r)
		return nil
	})
}

// SetCommission sets the sales rep commission rate.
func (inv *Invoice) SetCommission(v decimal.Decimal) error {
	return inv.edit(AttrCommission, func() error {
		inv.setCommission(v)
		return nil
	})
}

// SetSaleType sets the sale type.
func (inv *Invoice) SetSaleType(t *SaleType) error {
	return inv.edit(AttrSaleType, func() error {
		inv.setSaleType(t)
		return nil
	})
}

// SetShipVia sets the ship-via text.
func (inv *Invoice) SetShipVia(v string) error {
	return inv.edit(AttrShipVia, func() error {
		inv.setShipVia(v)
		return nil
	})
}

// SetNotes sets the document notes.
func (inv *Invoice) SetNotes(v string) error {
	return inv.edit(AttrNotes, func() error {
		if inv.notes != v {
			inv.notes = v
			inv.node.Changed(AttrNotes)
		}
		return nil
	})
}

// SetMiscCharge sets the document-level miscellaneous charge.
func (inv *Invoice) SetMiscCharge(v decimal.Decimal) error {
	return inv.edit(AttrMiscCharge, func() error {
		inv.setAmount(&inv.miscCharge, money.Round(v, money.MoneyScale), AttrMiscCharge)
		return nil
	})
}

// SetBillto replaces the bill-to block. Only free-form bill-to customers allow it.
func (inv *Invoice) SetBillto(b Billto) error {
	return inv.edit(AttrBilltoName, func() error {
		inv.setBillto(b)
		return nil
	})
}

// SetCharacteristic sets or replaces a named characteristic.
func (inv *Invoice) SetCharacteristic(name, value string) error {
	c := Characteristic{Name: name, Value: value}
	if err := validate.Struct(c); err != nil {
		return translateValidation(err, uuid.Nil)
	}
	return inv.engine.Do(func() error {
		if inv.status == StatusBusyCommitting {
			return ErrSaving
		}
		for i := range inv.characteristics {
			if inv.characteristics[i].Name == name {
				inv.characteristics[i].Value = value
				inv.markDirty()
				return nil
			}
		}
		inv.characteristics = append(inv.characteristics, c)
		inv.markDirty()
		return nil
	})
}

// Assign links the document to another record.
func (inv *Invoice) Assign(kind AssignmentKind, target string) error {
	a := Assignment{Kind: kind, Target: target}
	if err := validate.Struct(a); err != nil {
		return translateValidation(err, uuid.Nil)
	}
	return inv.engine.Do(func() error {
		if inv.status == StatusBusyCommitting {
			return ErrSaving
		}
		for _, existing := range inv.assignments {
			if existing == a {
				return nil
			}
		}
		inv.assignments = append(inv.assignments, a)
		inv.markDirty()
		return nil
	})
}

// Unassign removes a document link.
func (inv *Invoice) Unassign(kind AssignmentKind, target string) error {
	return inv.engine.Do(func() error {
		if inv.status == StatusBusyCommitting {
			return ErrSaving
		}
		for i, existing := range inv.assignments {
			if existing.Kind == kind && existing.Target == target {
				inv.assignments = append(inv.assignments[:i], inv.assignments[i+1:]...)
				inv.markDirty()
				return nil
			}
		}
		return ErrNotFound
	})
}

// ============================================================================
// COLLECTIONS
// ============================================================================

// NewLine creates an unattached line bound to this document's engine.
func (inv *Invoice) NewLine() *Line {
	return newLine(inv)
}

// AddLine attaches l and assigns its line number.
func (inv *Invoice) AddLine(l *Line) error {
	if l.owner != inv {
		return ErrForeignLine
	}
	return inv.edit(AttrLineItems, func() error {
		if l.parent != nil {
			return ErrLineAttached
		}
		inv.lines = append(inv.lines, l)
		l.parent = inv
		l.node.Changed(AttrParent)
		inv.node.Changed(AttrLineItems)
		return nil
	})
}

// RemoveLine drops a new line or marks a persisted line for deletion on save.
func (inv *Invoice) RemoveLine(id uuid.UUID) error {
	return inv.edit(AttrLineItems, func() error {
		for i, l := range inv.lines {
			if l.uuid != id || l.status.destroyed() {
				continue
			}
			if l.status == StatusNew {
				inv.lines = append(inv.lines[:i], inv.lines[i+1:]...)
				l.parent = nil
			} else {
				l.status = StatusDestroyedDirty
			}
			l.priceGen.Next()
			l.taxGen.Next()
			inv.node.Changed(AttrLineItems)
			return nil
		}
		return ErrNotFound
	})
}

// Line returns the live line with id.
func (inv *Invoice) Line(id uuid.UUID) (*Line, error) {
	var found *Line
	inv.engine.Read(func() {
		for _, l := range inv.lines {
			if l.uuid == id && !l.status.destroyed() {
				found = l
				return
			}
		}
	})
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// AddTaxAdjustment adds a document-level tax amount and returns its id.
func (inv *Invoice) AddTaxAdjustment(adj TaxAdjustment) (uuid.UUID, error) {
	if err := validate.Struct(adj); err != nil {
		return uuid.Nil, translateValidation(err, uuid.Nil)
	}
	if adj.UUID == uuid.Nil {
		adj.UUID = uuid.New()
	}
	err := inv.edit(AttrTaxAdjustments, func() error {
		inv.taxAdjustments = append(inv.taxAdjustments, adj)
		inv.node.Changed(AttrTaxAdjustments)
		return nil
	})
	return adj.UUID, err
}

// RemoveTaxAdjustment removes a tax adjustment by id.
func (inv *Invoice) RemoveTaxAdjustment(id uuid.UUID) error {
	return inv.edit(AttrTaxAdjustments, func() error {
		for i, adj := range inv.taxAdjustments {
			if adj.UUID == id {
				inv.taxAdjustments = append(inv.taxAdjustments[:i], inv.taxAdjustments[i+1:]...)
				inv.node.Changed(AttrTaxAdjustments)
				return nil
			}
		}
		return ErrNotFound
	})
}

// AddAllocation applies existing credit to the invoice and returns its id.
func (inv *Invoice) AddAllocation(a Allocation) (uuid.UUID, error) {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	err := inv.edit(AttrAllocations, func() error {
		inv.allocations = append(inv.allocations, a)
		inv.node.Changed(AttrAllocations)
		return nil
	})
	return a.UUID, err
}

// RemoveAllocation removes a credit allocation by id.
func (inv *Invoice) RemoveAllocation(id uuid.UUID) error {
	return inv.edit(AttrAllocations, func() error {
		for i, a := range inv.allocations {
			if a.UUID == id {
				inv.allocations = append(inv.allocations[:i], inv.allocations[i+1:]...)
				inv.node.Changed(AttrAllocations)
				return nil
			}
		}
		return ErrNotFound
	})
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Number returns the document number.
func (inv *Invoice) Number() string {
	var n string
	inv.engine.Read(func() { n = inv.number })
	return n
}

// IsReadOnly reports whether attr currently rejects edits.
func (inv *Invoice) IsReadOnly(attr recalc.Attr) bool {
	var ro bool
	inv.engine.Read(func() { ro = inv.readOnly.Is(attr) })
	return ro
}

// Events drains queued notifications.
func (inv *Invoice) Events() []Event {
	var out []Event
	inv.engine.Read(func() {
		out = inv.events
		inv.events = nil
	})
	return out
}

// Wait blocks until every pending remote call has been applied.
func (inv *Invoice) Wait(ctx context.Context) error {
	return inv.engine.Wait(ctx)
}

// Close abandons pending remote calls.
func (inv *Invoice) Close() {
	inv.engine.Close()
}

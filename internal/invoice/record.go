package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/recalc"
)

// Record is the persisted form of an invoice.
type Record struct {
	Number            string              `json:"number"`
	Customer          *Customer           `json:"customer,omitempty"`
	Currency          *Currency           `json:"currency,omitempty"`
	InvoiceDate       time.Time           `json:"invoice_date"`
	Billto            Billto              `json:"billto"`
	SalesRep          *SalesRep           `json:"sales_rep,omitempty"`
	Commission        decimal.Decimal     `json:"commission"`
	Terms             *Terms              `json:"terms,omitempty"`
	TaxZone           *TaxZone            `json:"tax_zone,omitempty"`
	SaleType          *SaleType           `json:"sale_type,omitempty"`
	ShipVia           string              `json:"ship_via,omitempty"`
	Notes             string              `json:"notes,omitempty"`
	MiscCharge        decimal.Decimal     `json:"misc_charge"`
	Subtotal          decimal.Decimal     `json:"subtotal"`
	TaxTotal          decimal.Decimal     `json:"tax_total"`
	Total             decimal.Decimal     `json:"total"`
	AllocatedCredit   decimal.Decimal     `json:"allocated_credit"`
	OutstandingCredit decimal.NullDecimal `json:"outstanding_credit"`
	AuthorizedCredit  decimal.NullDecimal `json:"authorized_credit"`
	Balance           decimal.Decimal     `json:"balance"`
	IsPosted          bool                `json:"is_posted"`
	IsVoid            bool                `json:"is_void"`
	IsPrinted         bool                `json:"is_printed"`
	Lines             []LineRecord        `json:"lines"`
	TaxAdjustments    []TaxAdjustment     `json:"tax_adjustments"`
	Allocations       []Allocation        `json:"allocations"`
	Characteristics   []Characteristic    `json:"characteristics"`
	Assignments       []Assignment        `json:"assignments"`
}

// LineRecord is the persisted form of a line.
type LineRecord struct {
	UUID              uuid.UUID           `json:"uuid"`
	Status            Status              `json:"status"`
	LineNumber        int                 `json:"line_number"`
	Item              *Item               `json:"item,omitempty"`
	IsMiscellaneous   bool                `json:"is_miscellaneous"`
	ItemNumber        string              `json:"item_number,omitempty"`
	ItemDescription   string              `json:"item_description,omitempty"`
	SalesCategory     *SalesCategory      `json:"sales_category,omitempty"`
	QuantityUnit      *Unit               `json:"quantity_unit,omitempty"`
	PriceUnit         *Unit               `json:"price_unit,omitempty"`
	QuantityUnitRatio decimal.Decimal     `json:"quantity_unit_ratio"`
	PriceUnitRatio    decimal.Decimal     `json:"price_unit_ratio"`
	UnitIsFractional  bool                `json:"unit_is_fractional"`
	Billed            decimal.NullDecimal `json:"billed"`
	Quantity          decimal.NullDecimal `json:"quantity"`
	Price             decimal.NullDecimal `json:"price"`
	CustomerPrice     decimal.NullDecimal `json:"customer_price"`
	ExtendedPrice     decimal.Decimal     `json:"extended_price"`
	TaxType           *TaxType            `json:"tax_type,omitempty"`
	Taxes             []LineTax           `json:"taxes"`
	TaxTotal          decimal.Decimal     `json:"tax_total"`
	Site              string              `json:"site,omitempty"`
	Notes             string              `json:"notes,omitempty"`
}

// View is the read model served to clients.
type View struct {
	Record
	Status       Status                      `json:"status"`
	ReadOnly     []recalc.Attr               `json:"read_only"`
	LineReadOnly map[uuid.UUID][]recalc.Attr `json:"line_read_only"`
}

// Restore rebuilds a persisted invoice. Derived amounts are taken as stored;
// outstanding and authorized credit are looked up again.
func Restore(rec Record, svc Services, settings Settings) *Invoice {
	inv := newInvoice(svc, settings)
	_ = inv.engine.Do(func() error {
		inv.number = rec.Number
		inv.customer = rec.Customer
		inv.currency = rec.Currency
		inv.invoiceDate = dateOf(rec.InvoiceDate)
		inv.billto = rec.Billto
		inv.salesRep = rec.SalesRep
		inv.commission = rec.Commission
		inv.terms = rec.Terms
		inv.taxZone = rec.TaxZone
		inv.saleType = rec.SaleType
		inv.shipVia = rec.ShipVia
		inv.notes = rec.Notes
		inv.miscCharge = rec.MiscCharge
		inv.subtotal = rec.Subtotal
		inv.taxTotal = rec.TaxTotal
		inv.total = rec.Total
		inv.allocatedCredit = rec.AllocatedCredit
		inv.outstandingCredit = rec.OutstandingCredit
		inv.authorizedCredit = rec.AuthorizedCredit
		inv.balance = rec.Balance
		inv.isPosted = rec.IsPosted
		inv.isVoid = rec.IsVoid
		inv.isPrinted = rec.IsPrinted
		inv.taxAdjustments = append([]TaxAdjustment(nil), rec.TaxAdjustments...)
		inv.allocations = append([]Allocation(nil), rec.Allocations...)
		inv.characteristics = append([]Characteristic(nil), rec.Characteristics...)
		inv.assignments = append([]Assignment(nil), rec.Assignments...)

		for _, lr := range rec.Lines {
			l := newLine(inv)
			l.restore(lr)
			l.parent = inv
			inv.lines = append(inv.lines, l)
		}

		inv.applyCustomerSettings()
		inv.lineItemsDidChange()
		inv.status = StatusReadyClean
		inv.node.Changed(AttrStatus)
		inv.engine.Schedule(inv.outstandingRule)
		inv.engine.Schedule(inv.authorizedRule)
		return nil
	})
	return inv
}

func (l *Line) restore(lr LineRecord) {
	l.uuid = lr.UUID
	l.status = StatusReadyClean
	l.lineNumber = lr.LineNumber
	l.item = lr.Item
	l.isMiscellaneous = lr.IsMiscellaneous
	l.itemNumber = lr.ItemNumber
	l.itemDescription = lr.ItemDescription
	l.salesCategory = lr.SalesCategory
	l.units.quantityUnit = lr.QuantityUnit
	l.units.priceUnit = lr.PriceUnit
	l.units.quantityUnitRatio = lr.QuantityUnitRatio
	l.units.priceUnitRatio = lr.PriceUnitRatio
	l.units.unitIsFractional = lr.UnitIsFractional
	l.billed = lr.Billed
	l.quantity = lr.Quantity
	l.price = lr.Price
	l.customerPrice = lr.CustomerPrice
	l.extendedPrice = lr.ExtendedPrice
	l.taxType = lr.TaxType
	l.taxes = append([]LineTax(nil), lr.Taxes...)
	l.taxTotal = lr.TaxTotal
	l.site = lr.Site
	l.notes = lr.Notes
	l.isMiscellaneousDidChange()
}

func (l *Line) record() LineRecord {
	return LineRecord{
		UUID:              l.uuid,
		Status:            l.status,
		LineNumber:        l.lineNumber,
		Item:              l.item,
		IsMiscellaneous:   l.isMiscellaneous,
		ItemNumber:        l.itemNumber,
		ItemDescription:   l.itemDescription,
		SalesCategory:     l.salesCategory,
		QuantityUnit:      l.units.quantityUnit,
		PriceUnit:         l.units.priceUnit,
		QuantityUnitRatio: l.units.quantityUnitRatio,
		PriceUnitRatio:    l.units.priceUnitRatio,
		UnitIsFractional:  l.units.unitIsFractional,
		Billed:            l.billed,
		Quantity:          l.quantity,
		Price:             l.price,
		CustomerPrice:     l.customerPrice,
		ExtendedPrice:     l.extendedPrice,
		TaxType:           l.taxType,
		Taxes:             append([]LineTax(nil), l.taxes...),
		TaxTotal:          l.taxTotal,
		Site:              l.site,
		Notes:             l.notes,
	}
}

func (inv *Invoice) record() Record {
	rec := Record{
		Number:            inv.number,
		Customer:          inv.customer,
		Currency:          inv.currency,
		InvoiceDate:       inv.invoiceDate,
		Billto:            inv.billto,
		SalesRep:          inv.salesRep,
		Commission:        inv.commission,
		Terms:             inv.terms,
		TaxZone:           inv.taxZone,
		SaleType:          inv.saleType,
		ShipVia:           inv.shipVia,
		Notes:             inv.notes,
		MiscCharge:        inv.miscCharge,
		Subtotal:          inv.subtotal,
		TaxTotal:          inv.taxTotal,
		Total:             inv.total,
		AllocatedCredit:   inv.allocatedCredit,
		OutstandingCredit: inv.outstandingCredit,
		AuthorizedCredit:  inv.authorizedCredit,
		Balance:           inv.balance,
		IsPosted:          inv.isPosted,
		IsVoid:            inv.isVoid,
		IsPrinted:         inv.isPrinted,
		TaxAdjustments:    append([]TaxAdjustment(nil), inv.taxAdjustments...),
		Allocations:       append([]Allocation(nil), inv.allocations...),
		Characteristics:   append([]Characteristic(nil), inv.characteristics...),
		Assignments:       append([]Assignment(nil), inv.assignments...),
	}
	for _, l := range inv.lines {
		rec.Lines = append(rec.Lines, l.record())
	}
	return rec
}

// Record returns a snapshot of the document, including lines pending deletion.
func (inv *Invoice) Record() Record {
	var rec Record
	inv.engine.Read(func() { rec = inv.record() })
	return rec
}

// View returns the client read model. Lines pending deletion are omitted.
func (inv *Invoice) View() View {
	var v View
	inv.engine.Read(func() {
		v.Record = inv.record()
		v.Status = inv.status
		v.ReadOnly = inv.readOnly.List()
		v.LineReadOnly = make(map[uuid.UUID][]recalc.Attr, len(inv.lines))
		live := v.Record.Lines[:0]
		for i, l := range inv.lines {
			if l.status.destroyed() {
				continue
			}
			live = append(live, v.Record.Lines[i])
			v.LineReadOnly[l.uuid] = l.readOnly.List()
		}
		v.Record.Lines = live
	})
	return v
}

// beginSave validates the document and marks it busy. The returned record is
// what the repository must persist. Edits are rejected until endSave.
func (inv *Invoice) beginSave() (Record, error) {
	var rec Record
	err := inv.engine.Do(func() error {
		if inv.status == StatusBusyCommitting {
			return ErrSaving
		}
		if err := inv.validate(); err != nil {
			return err
		}
		rec = inv.record()
		inv.saving = make(map[uuid.UUID]Status, len(rec.Lines))
		for _, lr := range rec.Lines {
			inv.saving[lr.UUID] = lr.Status
		}
		inv.dirtyAfter = false
		inv.prevStatus = inv.status
		inv.setStatus(StatusBusyCommitting)
		return nil
	})
	return rec, err
}

// endSave finishes a save. On failure the document returns to its prior
// status. On success only what the saved record carried is finalized: lines
// it deleted are dropped, lines it wrote become clean. Anything that changed
// after the record was taken keeps the document dirty.
func (inv *Invoice) endSave(saveErr error) {
	_ = inv.engine.Do(func() error {
		saved := inv.saving
		dirty := inv.dirtyAfter
		inv.saving = nil
		inv.dirtyAfter = false
		if saveErr != nil {
			inv.setStatus(inv.prevStatus)
			if dirty {
				inv.markDirty()
			}
			return nil
		}
		live := inv.lines[:0]
		for _, l := range inv.lines {
			was, ok := saved[l.uuid]
			switch {
			case ok && was.destroyed():
				l.status = StatusDestroyedClean
				l.parent = nil
				continue
			case ok && !l.status.destroyed() && !dirty:
				l.status = StatusReadyClean
			default:
				dirty = true
			}
			live = append(live, l)
		}
		for i := len(live); i < len(inv.lines); i++ {
			inv.lines[i] = nil
		}
		inv.lines = live
		if dirty {
			inv.setStatus(StatusReadyDirty)
		} else {
			inv.setStatus(StatusReadyClean)
		}
		inv.node.Changed(AttrLineItems)
		return nil
	})
}

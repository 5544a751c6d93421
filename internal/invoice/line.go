package invoice

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/money"
	"github.com/odyssey-erp/invoicing/internal/recalc"
)

// Line is one invoiced line. A line shares its document's engine from the
// moment it is created, whether or not it is attached yet.
type Line struct {
	engine   *recalc.Engine
	node     *recalc.Node
	readOnly recalc.Flags
	owner    *Invoice
	parent   *Invoice
	status   Status

	uuid            uuid.UUID
	lineNumber      int
	item            *Item
	isMiscellaneous bool
	itemNumber      string
	itemDescription string
	salesCategory   *SalesCategory
	billed          decimal.NullDecimal
	quantity        decimal.NullDecimal
	price           decimal.NullDecimal
	customerPrice   decimal.NullDecimal
	extendedPrice   decimal.Decimal
	taxType         *TaxType
	taxes           []LineTax
	taxTotal        decimal.Decimal
	site            string
	notes           string

	units sellingUnits

	priceGen      recalc.Generation
	priceReadOnly bool
	taxGen        recalc.Generation
	taxTypeGen    recalc.Generation

	extendedRule     *recalc.Rule
	taxRule          *recalc.Rule
	priceUnitRule    *recalc.Rule
	quantityUnitRule *recalc.Rule
}

func newLine(owner *Invoice) *Line {
	l := &Line{
		engine:   owner.engine,
		node:     owner.engine.NewNode(),
		readOnly: recalc.Flags{},
		owner:    owner,
		status:   StatusNew,
		uuid:     uuid.New(),
		site:     owner.settings.DefaultSite,
		units: sellingUnits{
			quantityUnitRatio: decimal.NewFromInt(1),
			priceUnitRatio:    decimal.NewFromInt(1),
		},
	}
	l.readOnly.Set(true, lineReadOnlyDefaults...)
	l.bindRules()
	l.isMiscellaneousDidChange()
	return l
}

func (l *Line) bindRules() {
	n := l.node
	n.On("line.itemDidChange", l.itemDidChange, AttrItem)
	n.On("line.billedDidChange", l.billedDidChange, AttrBilled)
	l.extendedRule = n.On("line.calculateExtendedPrice", l.calculateExtendedPrice,
		AttrBilled, AttrPrice, AttrQuantityUnitRatio, AttrPriceUnitRatio)
	l.taxRule = n.On("line.calculateTax", l.calculateTax, AttrTaxType)
	l.priceUnitRule = n.On("line.priceUnitDidChange", func() { l.units.priceUnitDidChange(l) }, AttrPriceUnit)
	l.quantityUnitRule = n.On("line.quantityUnitDidChange", func() { l.units.quantityUnitDidChange(l) }, AttrQuantityUnit)
	n.On("line.parentDidChange", l.parentDidChange, AttrParent)
	n.On("line.isMiscellaneousDidChange", l.isMiscellaneousDidChange, AttrIsMiscellaneous)
}

// ============================================================================
// RULES
// ============================================================================

func (l *Line) itemDidChange() {
	l.units.setPriceUnitRatio(l, decimal.Zero)
	l.setTaxType(nil)
	l.units.fetchSellingUnits(l)

	if l.item == nil {
		return
	}
	l.units.applyItemDefaults(l, l.item)
	l.engine.Schedule(l.priceUnitRule)
	l.engine.Schedule(l.quantityUnitRule)
	l.fetchTaxType()
	l.calculatePrice(false)
}

func (l *Line) billedDidChange() {
	l.calculatePrice(false)
}

// calculateExtendedPrice derives the extended price and always follows up
// with tax and document total recalculation.
func (l *Line) calculateExtendedPrice() {
	l.setExtendedPrice(ExtendedPrice(
		money.OrZero(l.billed),
		l.units.quantityUnitRatio,
		l.units.priceUnitRatio,
		money.OrZero(l.price),
	))
	l.engine.Schedule(l.taxRule)
	l.recalculateParent()
}

// ExtendedPrice is billed * quantityRatio / priceRatio * price at extended
// price scale. A zero price ratio yields zero.
func ExtendedPrice(billed, quantityRatio, priceRatio, price decimal.Decimal) decimal.Decimal {
	if priceRatio.IsZero() {
		return decimal.Zero
	}
	return money.ToExtendedPrice(billed.Mul(quantityRatio).Div(priceRatio).Mul(price))
}

// parentDidChange numbers a newly attached line after the highest surviving
// line and prices it against its new document.
func (l *Line) parentDidChange() {
	p := l.parent
	if p == nil {
		return
	}
	if l.lineNumber == 0 {
		highest := 0
		for _, other := range p.lines {
			if other == l || other.status.destroyed() {
				continue
			}
			if other.lineNumber > highest {
				highest = other.lineNumber
			}
		}
		l.lineNumber = highest + 1
		l.node.Changed(AttrLineNumber)
	}
	if l.item != nil && l.taxType == nil {
		l.fetchTaxType()
	}
	l.calculatePrice(false)
	l.engine.Schedule(l.extendedRule)
}

func (l *Line) isMiscellaneousDidChange() {
	misc := l.isMiscellaneous
	l.readOnly.Set(misc, AttrItem)
	l.readOnly.Set(!misc, AttrItemNumber, AttrItemDescription, AttrSalesCategory)
}

func (l *Line) recalculateParent() {
	if l.parent != nil {
		l.parent.node.Changed(attrLineAmounts)
	}
}

// ============================================================================
// INTERNAL SETTERS
// ============================================================================

func setNull(n *recalc.Node, dst *decimal.NullDecimal, v decimal.NullDecimal, attr recalc.Attr) {
	if dst.Valid == v.Valid && (!v.Valid || dst.Decimal.Equal(v.Decimal)) {
		return
	}
	*dst = v
	n.Changed(attr)
}

func (l *Line) setExtendedPrice(v decimal.Decimal) {
	if l.extendedPrice.Equal(v) {
		return
	}
	l.extendedPrice = v
	l.node.Changed(AttrExtendedPrice)
}

func (l *Line) setTaxType(t *TaxType) {
	if sameRef(l.taxType, t) {
		return
	}
	l.taxType = t
	l.node.Changed(AttrTaxType)
}

func (l *Line) markDirty() {
	if l.status == StatusReadyClean {
		l.status = StatusReadyDirty
	}
	if l.parent != nil {
		l.parent.markDirty()
	}
}

// ============================================================================
// EDITING
// ============================================================================

func (l *Line) edit(attr recalc.Attr, fn func()) error {
	return l.engine.Do(func() error {
		if l.parent != nil && l.parent.status == StatusBusyCommitting {
			return ErrSaving
		}
		if l.readOnly.Is(attr) || l.status.destroyed() {
			return fmt.Errorf("%w: %s", ErrReadOnly, attr)
		}
		if l.parent != nil && l.parent.readOnly.Is(AttrLineItems) {
			return fmt.Errorf("%w: %s", ErrReadOnly, AttrLineItems)
		}
		fn()
		l.markDirty()
		return nil
	})
}

// SetItem sets the catalog item and refetches its units, tax type and price.
func (l *Line) SetItem(item *Item) error {
	return l.edit(AttrItem, func() {
		if sameRef(l.item, item) {
			return
		}
		l.item = item
		l.node.Changed(AttrItem)
	})
}

// SetMiscellaneous switches the line between a catalog item and free-text item fields.
func (l *Line) SetMiscellaneous(misc bool) error {
	return l.edit(AttrIsMiscellaneous, func() {
		if l.isMiscellaneous == misc {
			return
		}
		l.isMiscellaneous = misc
		l.node.Changed(AttrIsMiscellaneous)
	})
}

// SetItemNumber sets the item number of a miscellaneous line.
func (l *Line) SetItemNumber(v string) error {
	return l.edit(AttrItemNumber, func() {
		if l.itemNumber != v {
			l.itemNumber = v
			l.node.Changed(AttrItemNumber)
		}
	})
}

// SetItemDescription sets the item description of a miscellaneous line.
func (l *Line) SetItemDescription(v string) error {
	return l.edit(AttrItemDescription, func() {
		if l.itemDescription != v {
			l.itemDescription = v
			l.node.Changed(AttrItemDescription)
		}
	})
}

// SetSalesCategory sets the sales category of a miscellaneous line.
func (l *Line) SetSalesCategory(c *SalesCategory) error {
	return l.edit(AttrSalesCategory, func() {
		if !sameRef(l.salesCategory, c) {
			l.salesCategory = c
			l.node.Changed(AttrSalesCategory)
		}
	})
}

// SetBilled sets the billed quantity and reprices the line.
func (l *Line) SetBilled(v decimal.Decimal) error {
	return l.edit(AttrBilled, func() {
		setNull(l.node, &l.billed, money.Null(v), AttrBilled)
	})
}

// SetQuantity sets the invoiced quantity.
func (l *Line) SetQuantity(v decimal.Decimal) error {
	return l.edit(AttrQuantity, func() {
		setNull(l.node, &l.quantity, money.Null(v), AttrQuantity)
	})
}

// SetPrice sets the unit price by hand.
func (l *Line) SetPrice(v decimal.Decimal) error {
	return l.edit(AttrPrice, func() {
		setNull(l.node, &l.price, money.Null(v.Round(money.SalesPriceScale)), AttrPrice)
	})
}

// SetQuantityUnit sets the quantity unit and fetches its ratio.
func (l *Line) SetQuantityUnit(u *Unit) error {
	return l.edit(AttrQuantityUnit, func() {
		l.units.setQuantityUnit(l, u)
	})
}

// SetPriceUnit sets the price unit and fetches its ratio.
func (l *Line) SetPriceUnit(u *Unit) error {
	return l.edit(AttrPriceUnit, func() {
		l.units.setPriceUnit(l, u)
	})
}

// SetTaxType sets the tax type and recalculates the line taxes.
func (l *Line) SetTaxType(t *TaxType) error {
	return l.edit(AttrTaxType, func() {
		l.setTaxType(t)
	})
}

// SetSite sets the warehouse site.
func (l *Line) SetSite(site string) error {
	return l.edit(AttrSite, func() {
		if l.site != site {
			l.site = site
			l.node.Changed(AttrSite)
		}
	})
}

// SetNotes sets the line notes.
func (l *Line) SetNotes(notes string) error {
	return l.edit(AttrNotes, func() {
		l.notes = notes
	})
}

// CalculatePrice requests a fresh price. force overrides the session's
// reprice policy.
func (l *Line) CalculatePrice(force bool) error {
	return l.engine.Do(func() error {
		if l.parent != nil && l.parent.status == StatusBusyCommitting {
			return ErrSaving
		}
		l.calculatePrice(force)
		return nil
	})
}

// UUID returns the line identifier.
func (l *Line) UUID() uuid.UUID {
	return l.uuid
}

// IsReadOnly reports whether attr currently rejects edits.
func (l *Line) IsReadOnly(attr recalc.Attr) bool {
	var ro bool
	l.engine.Read(func() { ro = l.readOnly.Is(attr) })
	return ro
}

// Record returns a snapshot of the line.
func (l *Line) Record() LineRecord {
	var rec LineRecord
	l.engine.Read(func() { rec = l.record() })
	return rec
}

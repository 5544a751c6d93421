package invoice

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/recalc"
)

const (
	edgeSellingUnits     = "line.selling_units"
	edgeQuantityUnitRate = "line.quantity_unit_ratio"
	edgePriceUnitRate    = "line.price_unit_ratio"
)

// unitHost is what a document line exposes to the selling-units capability.
type unitHost interface {
	unitEngine() *recalc.Engine
	unitNode() *recalc.Node
	unitItem() *Item
	unitCatalog() ItemCatalog
	unitsResolved()
	unitFailed(edge, code string, err error)
	unitStale(edge string)
}

// sellingUnits holds the units of measure a line sells in and their ratios
// to the item's inventory unit.
type sellingUnits struct {
	quantityUnit      *Unit
	priceUnit         *Unit
	quantityUnitRatio decimal.Decimal
	priceUnitRatio    decimal.Decimal
	unitIsFractional  bool
	available         []Unit

	availableGen recalc.Generation
	quantityGen  recalc.Generation
	priceGen     recalc.Generation
}

func (s *sellingUnits) setQuantityUnit(h unitHost, u *Unit) {
	if sameRef(s.quantityUnit, u) {
		return
	}
	s.quantityUnit = u
	h.unitNode().Changed(AttrQuantityUnit)
}

func (s *sellingUnits) setPriceUnit(h unitHost, u *Unit) {
	if sameRef(s.priceUnit, u) {
		return
	}
	s.priceUnit = u
	h.unitNode().Changed(AttrPriceUnit)
}

func (s *sellingUnits) setQuantityUnitRatio(h unitHost, v decimal.Decimal) {
	if s.quantityUnitRatio.Equal(v) {
		return
	}
	s.quantityUnitRatio = v
	h.unitNode().Changed(AttrQuantityUnitRatio)
}

func (s *sellingUnits) setPriceUnitRatio(h unitHost, v decimal.Decimal) {
	if s.priceUnitRatio.Equal(v) {
		return
	}
	s.priceUnitRatio = v
	h.unitNode().Changed(AttrPriceUnitRatio)
}

// applyItemDefaults selects the item's inventory and price units.
func (s *sellingUnits) applyItemDefaults(h unitHost, item *Item) {
	if item.InventoryUnit != nil {
		s.setQuantityUnit(h, item.InventoryUnit)
	}
	priceUnit := item.PriceUnit
	if priceUnit == nil {
		priceUnit = item.InventoryUnit
	}
	if priceUnit != nil {
		s.setPriceUnit(h, priceUnit)
	}
}

func (s *sellingUnits) fetchSellingUnits(h unitHost) {
	tok := s.availableGen.Next()
	item := h.unitItem()
	catalog := h.unitCatalog()
	if item == nil || catalog == nil {
		s.available = nil
		return
	}
	itemID := item.ID
	recalc.Spawn(h.unitEngine(), edgeSellingUnits, func(ctx context.Context) ([]Unit, error) {
		return catalog.SellingUnits(ctx, itemID)
	}, func(units []Unit, err error) {
		if !s.availableGen.Current(tok) {
			h.unitStale(edgeSellingUnits)
			return
		}
		if err != nil {
			h.unitFailed(edgeSellingUnits, CodeSellingUnitsFailed, err)
			return
		}
		s.available = units
	})
}

func (s *sellingUnits) quantityUnitDidChange(h unitHost) {
	tok := s.quantityGen.Next()
	item := h.unitItem()
	unit := s.quantityUnit
	catalog := h.unitCatalog()
	if item == nil || unit == nil || catalog == nil {
		s.unitIsFractional = false
		s.setQuantityUnitRatio(h, decimal.NewFromInt(1))
		h.unitsResolved()
		return
	}
	itemID, unitID := item.ID, unit.ID
	recalc.Spawn(h.unitEngine(), edgeQuantityUnitRate, func(ctx context.Context) (UnitConversion, error) {
		return catalog.UnitConversion(ctx, itemID, unitID)
	}, func(conv UnitConversion, err error) {
		if !s.quantityGen.Current(tok) {
			h.unitStale(edgeQuantityUnitRate)
			return
		}
		if err != nil {
			h.unitFailed(edgeQuantityUnitRate, CodeUnitRatioFailed, err)
			return
		}
		s.unitIsFractional = conv.Fractional
		s.setQuantityUnitRatio(h, conv.Ratio)
		h.unitsResolved()
	})
}

func (s *sellingUnits) priceUnitDidChange(h unitHost) {
	tok := s.priceGen.Next()
	item := h.unitItem()
	unit := s.priceUnit
	catalog := h.unitCatalog()
	if item == nil || unit == nil || catalog == nil {
		s.setPriceUnitRatio(h, decimal.NewFromInt(1))
		h.unitsResolved()
		return
	}
	itemID, unitID := item.ID, unit.ID
	recalc.Spawn(h.unitEngine(), edgePriceUnitRate, func(ctx context.Context) (UnitConversion, error) {
		return catalog.UnitConversion(ctx, itemID, unitID)
	}, func(conv UnitConversion, err error) {
		if !s.priceGen.Current(tok) {
			h.unitStale(edgePriceUnitRate)
			return
		}
		if err != nil {
			h.unitFailed(edgePriceUnitRate, CodeUnitRatioFailed, err)
			return
		}
		s.setPriceUnitRatio(h, conv.Ratio)
		h.unitsResolved()
	})
}

// ============================================================================
// LINE AS UNIT HOST
// ============================================================================

func (l *Line) unitEngine() *recalc.Engine { return l.engine }
func (l *Line) unitNode() *recalc.Node     { return l.node }
func (l *Line) unitItem() *Item            { return l.item }
func (l *Line) unitCatalog() ItemCatalog   { return l.owner.svc.Items }

func (l *Line) unitsResolved() {
	l.calculatePrice(false)
}

func (l *Line) unitFailed(edge, code string, err error) {
	l.owner.svc.Metrics.Async(edge, recalc.OutcomeError)
	l.owner.emit(EventError, code, l.uuid, err)
}

func (l *Line) unitStale(edge string) {
	l.owner.stale(edge)
}

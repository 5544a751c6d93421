package remote

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/dispatch"
	"github.com/odyssey-erp/invoicing/internal/invoice"
)

// Items implements invoice.ItemCatalog. Answers are cached when a cache is
// configured.
type Items struct {
	d     dispatch.Dispatcher
	cache *Cache
}

// NewItems constructs an item catalog. cache may be nil.
func NewItems(d dispatch.Dispatcher, cache *Cache) *Items {
	return &Items{d: d, cache: cache}
}

type unitRatio struct {
	Ratio        decimal.Decimal `json:"ratio"`
	IsFractional bool            `json:"isFractional"`
}

// TaxType returns the item's tax type in a zone; nil when none applies.
func (i *Items) TaxType(ctx context.Context, itemID, taxZoneID string) (*invoice.TaxType, error) {
	key := "item:" + itemID + ":tax_type:" + taxZoneID
	return cached(ctx, i.cache, key, func(ctx context.Context) (*invoice.TaxType, error) {
		return dispatch.Call[*invoice.TaxType](ctx, i.d, typeItem, "taxType", itemID, taxZoneID)
	})
}

// SellingUnits lists the units the item may be sold in.
func (i *Items) SellingUnits(ctx context.Context, itemID string) ([]invoice.Unit, error) {
	return cached(ctx, i.cache, "item:"+itemID+":selling_units", func(ctx context.Context) ([]invoice.Unit, error) {
		return dispatch.Call[[]invoice.Unit](ctx, i.d, typeItem, "sellingUnits", itemID)
	})
}

// UnitConversion relates unitID to the item's inventory unit.
func (i *Items) UnitConversion(ctx context.Context, itemID, unitID string) (invoice.UnitConversion, error) {
	res, err := cached(ctx, i.cache, "item:"+itemID+":unit:"+unitID, func(ctx context.Context) (unitRatio, error) {
		return dispatch.Call[unitRatio](ctx, i.d, typeItem, "unitToUnitRatio", itemID, unitID)
	})
	if err != nil {
		return invoice.UnitConversion{}, err
	}
	return invoice.UnitConversion{Ratio: res.Ratio, Fractional: res.IsFractional}, nil
}

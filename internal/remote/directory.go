package remote

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/invoicing/internal/dispatch"
	"github.com/odyssey-erp/invoicing/internal/invoice"
)

// Directory implements invoice.Directory with XM.<Type>.fetch calls.
type Directory struct {
	d     dispatch.Dispatcher
	cache *Cache
}

// NewDirectory constructs a directory. cache may be nil.
func NewDirectory(d dispatch.Dispatcher, cache *Cache) *Directory {
	return &Directory{d: d, cache: cache}
}

// fetch resolves one reference record. A null answer is ErrNotFound and is
// never cached.
func fetch[T any](ctx context.Context, dir *Directory, recordType, key string) (*T, error) {
	load := func(ctx context.Context) (*T, error) {
		rec, err := dispatch.Call[*T](ctx, dir.d, recordType, "fetch", key)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("%w: %s %q", invoice.ErrNotFound, recordType, key)
		}
		return rec, nil
	}
	return cached(ctx, dir.cache, "dir:"+recordType+":"+key, load)
}

func (dir *Directory) Customer(ctx context.Context, number string) (*invoice.Customer, error) {
	return fetch[invoice.Customer](ctx, dir, typeCustomer, number)
}

// Currency validates the ISO code before asking the ERP.
func (dir *Directory) Currency(ctx context.Context, abbreviation string) (*invoice.Currency, error) {
	code, err := currencyCode(abbreviation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", invoice.ErrNotFound, err)
	}
	return fetch[invoice.Currency](ctx, dir, typeCurrency, code)
}

func (dir *Directory) Item(ctx context.Context, number string) (*invoice.Item, error) {
	return fetch[invoice.Item](ctx, dir, typeItem, number)
}

func (dir *Directory) Unit(ctx context.Context, name string) (*invoice.Unit, error) {
	return fetch[invoice.Unit](ctx, dir, typeUnit, name)
}

func (dir *Directory) TaxZone(ctx context.Context, code string) (*invoice.TaxZone, error) {
	return fetch[invoice.TaxZone](ctx, dir, typeTaxZone, code)
}

func (dir *Directory) TaxType(ctx context.Context, name string) (*invoice.TaxType, error) {
	return fetch[invoice.TaxType](ctx, dir, typeTaxType, name)
}

func (dir *Directory) Terms(ctx context.Context, code string) (*invoice.Terms, error) {
	return fetch[invoice.Terms](ctx, dir, typeTerms, code)
}

func (dir *Directory) SalesRep(ctx context.Context, number string) (*invoice.SalesRep, error) {
	return fetch[invoice.SalesRep](ctx, dir, typeSalesRep, number)
}

func (dir *Directory) SaleType(ctx context.Context, code string) (*invoice.SaleType, error) {
	return fetch[invoice.SaleType](ctx, dir, typeSaleType, code)
}

func (dir *Directory) SalesCategory(ctx context.Context, name string) (*invoice.SalesCategory, error) {
	return fetch[invoice.SalesCategory](ctx, dir, typeSalesCategory, name)
}

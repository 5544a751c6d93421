package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/invoicing/internal/platform/httpx"
	"github.com/odyssey-erp/invoicing/internal/rbac"
)

// fakeDirectory resolves the fixtures by their user-facing keys.
type fakeDirectory struct{}

func notFound(kind, key string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, key)
}

func (fakeDirectory) Customer(_ context.Context, number string) (*Customer, error) {
	if number == ttoys.Number {
		return ttoys, nil
	}
	return nil, notFound("customer", number)
}

func (fakeDirectory) Currency(_ context.Context, abbr string) (*Currency, error) {
	for _, c := range []*Currency{usd, eur, gbp} {
		if c.Abbreviation == abbr {
			return c, nil
		}
	}
	return nil, notFound("currency", abbr)
}

func (fakeDirectory) Item(_ context.Context, number string) (*Item, error) {
	if number == truck.Number {
		return truck, nil
	}
	return nil, notFound("item", number)
}

func (fakeDirectory) Unit(_ context.Context, name string) (*Unit, error) {
	if name == each.Name {
		return each, nil
	}
	return nil, notFound("unit", name)
}

func (fakeDirectory) TaxZone(_ context.Context, code string) (*TaxZone, error) {
	if code == vaZone.Code {
		return vaZone, nil
	}
	return nil, notFound("tax zone", code)
}

func (fakeDirectory) TaxType(_ context.Context, name string) (*TaxType, error) {
	return nil, notFound("tax type", name)
}

func (fakeDirectory) Terms(_ context.Context, code string) (*Terms, error) {
	if code == ttoys.Terms.Code {
		return ttoys.Terms, nil
	}
	return nil, notFound("terms", code)
}

func (fakeDirectory) SalesRep(_ context.Context, number string) (*SalesRep, error) {
	if number == ttoys.SalesRep.Number {
		return ttoys.SalesRep, nil
	}
	return nil, notFound("sales rep", number)
}

func (fakeDirectory) SaleType(_ context.Context, code string) (*SaleType, error) {
	return nil, notFound("sale type", code)
}

func (fakeDirectory) SalesCategory(_ context.Context, name string) (*SalesCategory, error) {
	if name == "NORMAL" {
		return &SalesCategory{ID: "1", Name: "NORMAL"}, nil
	}
	return nil, notFound("sales category", name)
}

const maintainer = "MaintainMiscInvoices,ViewMiscInvoices,PostMiscInvoices,PrintInvoices"

type handlerFixture struct {
	router  http.Handler
	repo    *memoryRepo
	actions *fakeActions
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	repo := newMemoryRepo()
	actions := &fakeActions{}
	svc := NewService(ServiceConfig{
		Repo:     repo,
		Actions:  actions,
		Services: testServices(),
		Logger:   zerolog.Nop(),
	})
	m := rbac.Middleware{Logger: zerolog.Nop()}
	h := NewHandler(zerolog.Nop(), svc, fakeDirectory{}, m)

	r := chi.NewRouter()
	r.Use(m.Load)
	r.Route("/api/invoices", h.MountRoutes)
	return &handlerFixture{router: r, repo: repo, actions: actions}
}

func (f *handlerFixture) do(t *testing.T, method, path, privileges, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if privileges != "" {
		req.Header.Set(rbac.HeaderPrivileges, privileges)
	}
	req.Header.Set(rbac.HeaderActor, "admin")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) View {
	t.Helper()
	var v View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p), rec.Body.String())
	return p
}

// draft creates an invoice for TTOYS with one miscellaneous line.
func (f *handlerFixture) draft(t *testing.T) View {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/invoices", maintainer, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	number := decodeView(t, rec).Number

	rec = f.do(t, http.MethodPatch, "/api/invoices/"+number, maintainer, `{"customer":"TTOYS"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/invoices/"+number+"/lines?wait=true", maintainer,
		`{"is_miscellaneous":true,"item_number":"FREIGHT","item_description":"Freight","sales_category":"NORMAL","billed":"2","quantity":"2","price":"12.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeView(t, rec)
}

func TestHandlerEditAndSave(t *testing.T) {
	f := newHandlerFixture(t)
	view := f.draft(t)

	assert.Equal(t, "60001", view.Number)
	assert.Equal(t, "Tremendous Toys", view.Billto.Name)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 1, view.Lines[0].LineNumber)
	assert.True(t, view.Total.Equal(dec("25.00")))
	assert.Contains(t, view.ReadOnly, AttrCustomer)

	rec := f.do(t, http.MethodPost, "/api/invoices/60001/save", maintainer, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, StatusReadyClean, decodeView(t, rec).Status)

	stored, err := f.repo.Load(context.Background(), "60001")
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(dec("25.00")))
}

func TestHandlerPatchLine(t *testing.T) {
	f := newHandlerFixture(t)
	view := f.draft(t)
	path := fmt.Sprintf("/api/invoices/%s/lines/%s?wait=true", view.Number, view.Lines[0].UUID)

	rec := f.do(t, http.MethodPatch, path, maintainer, `{"billed":"4","quantity":"4"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeView(t, rec).Total.Equal(dec("50.00")))

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/invoices/%s/lines/%s", view.Number, view.Lines[0].UUID), maintainer, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decodeView(t, rec).Lines)

	rec = f.do(t, http.MethodPatch, "/api/invoices/60001/lines/not-a-uuid", maintainer, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerErrors(t *testing.T) {
	f := newHandlerFixture(t)
	f.draft(t)

	tests := []struct {
		name   string
		method string
		path   string
		privs  string
		body   string
		status int
	}{
		{"missing privilege", http.MethodPost, "/api/invoices", "ViewMiscInvoices", "", http.StatusForbidden},
		{"unknown session", http.MethodGet, "/api/invoices/99999", maintainer, "", http.StatusNotFound},
		{"unknown currency", http.MethodPatch, "/api/invoices/60001", maintainer, `{"currency":"XYZ"}`, http.StatusNotFound},
		{"read-only misc charge", http.MethodPatch, "/api/invoices/60001", maintainer, `{"misc_charge":"5"}`, http.StatusConflict},
		{"read-only customer", http.MethodPatch, "/api/invoices/60001", maintainer, `{"customer":""}`, http.StatusConflict},
		{"malformed body", http.MethodPatch, "/api/invoices/60001", maintainer, `{"notes":`, http.StatusBadRequest},
		{"unknown field", http.MethodPatch, "/api/invoices/60001", maintainer, `{"colour":"red"}`, http.StatusBadRequest},
		{"invalid field", http.MethodPatch, "/api/invoices/60001", maintainer, `{"currency":"US"}`, http.StatusUnprocessableEntity},
		{"bad date", http.MethodPatch, "/api/invoices/60001", maintainer, `{"invoice_date":"14/03/2026"}`, http.StatusUnprocessableEntity},
		{"void unsaved", http.MethodPost, "/api/invoices/60001/void", "VoidPostedInvoices", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.privs, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerSaveReportsValidation(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, http.MethodPost, "/api/invoices", maintainer, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPatch, "/api/invoices/60001", maintainer, `{"customer":"TTOYS"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/invoices/60001/save", maintainer, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	p := decodeProblem(t, rec)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, CodeNoLineItems, p.Errors[0].Code)
	assert.Equal(t, string(AttrLineItems), p.Errors[0].Field)
}

func TestHandlerPostAndList(t *testing.T) {
	f := newHandlerFixture(t)
	f.draft(t)
	rec := f.do(t, http.MethodPost, "/api/invoices/60001/save", maintainer, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/invoices/60001/post", "ViewMiscInvoices", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/invoices/60001/post", maintainer, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res ActionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, ActionResult{Number: "60001"}, res)
	assert.Equal(t, []string{"60001"}, f.actions.posted)

	rec = f.do(t, http.MethodGet, "/api/invoices?posted=true", "ViewMiscInvoices,VoidPostedInvoices", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	item := list.Items[0]
	assert.Equal(t, "60001", item.Number)
	assert.True(t, item.IsPosted)
	assert.True(t, item.CanVoid)
	assert.False(t, item.CanPost)
	assert.False(t, item.CanDestroy)

	rec = f.do(t, http.MethodDelete, "/api/invoices/60001", maintainer, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerEventsAndValidate(t *testing.T) {
	f := newHandlerFixture(t)
	f.draft(t)

	rec := f.do(t, http.MethodGet, "/api/invoices/60001/events", "ViewMiscInvoices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/invoices/60001/validate", "ViewMiscInvoices", "")
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/invoices/60001/tax-adjustments?wait=true", maintainer, `{"tax_code":"FED","amount":"1.25"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decodeView(t, rec)
	require.Len(t, view.TaxAdjustments, 1)
	assert.True(t, view.TaxTotal.Equal(dec("1.25")))

	rec = f.do(t, http.MethodDelete, "/api/invoices/60001/tax-adjustments/"+view.TaxAdjustments[0].UUID.String(), maintainer, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeView(t, rec).TaxTotal.IsZero())
}

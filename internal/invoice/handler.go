package invoice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/invoicing/internal/dispatch"
	"github.com/odyssey-erp/invoicing/internal/platform/httpx"
	"github.com/odyssey-erp/invoicing/internal/rbac"
	"github.com/odyssey-erp/invoicing/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler exposes invoices over JSON.
type Handler struct {
	logger    zerolog.Logger
	service   *Service
	directory Directory
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger zerolog.Logger, service *Service, directory Directory, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger.With().Str("component", "invoice.handler").Logger(),
		service:   service,
		directory: directory,
		rbac:      rbac,
	}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermViewInvoices, shared.PermMaintainMiscInvoices))
		r.Get("/", h.list)
		r.Get("/{number}", h.show)
		r.Get("/{number}/events", h.events)
		r.Post("/{number}/validate", h.validate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermMaintainMiscInvoices))
		r.Post("/", h.create)
		r.Patch("/{number}", h.patch)
		r.Post("/{number}/lines", h.addLine)
		r.Patch("/{number}/lines/{line}", h.patchLine)
		r.Delete("/{number}/lines/{line}", h.removeLine)
		r.Post("/{number}/lines/{line}/price", h.repriceLine)
		r.Post("/{number}/allocations", h.addAllocation)
		r.Delete("/{number}/allocations/{id}", h.removeAllocation)
		r.Post("/{number}/tax-adjustments", h.addTaxAdjustment)
		r.Delete("/{number}/tax-adjustments/{id}", h.removeTaxAdjustment)
		r.Post("/{number}/save", h.save)
		r.Delete("/{number}/session", h.discard)
		r.Delete("/{number}", h.delete)
	})
	// Post, void and print check privileges against the stored document.
	r.Post("/{number}/post", h.post)
	r.Post("/{number}/void", h.void)
	r.Post("/{number}/print", h.print)
}

// ============================================================================
// REQUESTS
// ============================================================================

// headerRequest patches document header fields. Absent fields are left
// alone; an empty reference key clears the reference.
type headerRequest struct {
	Customer        *string           `json:"customer" validate:"omitempty,max=100"`
	Currency        *string           `json:"currency" validate:"omitempty,len=3"`
	InvoiceDate     *string           `json:"invoice_date" validate:"omitempty,datetime=2006-01-02"`
	Number          *string           `json:"number" validate:"omitempty,max=100"`
	TaxZone         *string           `json:"tax_zone" validate:"omitempty,max=100"`
	Terms           *string           `json:"terms" validate:"omitempty,max=100"`
	SalesRep        *string           `json:"sales_rep" validate:"omitempty,max=100"`
	SaleType        *string           `json:"sale_type" validate:"omitempty,max=100"`
	Commission      *decimal.Decimal  `json:"commission"`
	MiscCharge      *decimal.Decimal  `json:"misc_charge"`
	ShipVia         *string           `json:"ship_via" validate:"omitempty,max=100"`
	Notes           *string           `json:"notes"`
	Billto          *Billto           `json:"billto"`
	Characteristics map[string]string `json:"characteristics"`
	Assignments     []Assignment      `json:"assignments" validate:"dive"`
}

type lineRequest struct {
	Item            *string          `json:"item" validate:"omitempty,max=100"`
	IsMiscellaneous *bool            `json:"is_miscellaneous"`
	ItemNumber      *string          `json:"item_number" validate:"omitempty,max=100"`
	ItemDescription *string          `json:"item_description"`
	SalesCategory   *string          `json:"sales_category" validate:"omitempty,max=100"`
	QuantityUnit    *string          `json:"quantity_unit" validate:"omitempty,max=100"`
	PriceUnit       *string          `json:"price_unit" validate:"omitempty,max=100"`
	Billed          *decimal.Decimal `json:"billed"`
	Quantity        *decimal.Decimal `json:"quantity"`
	Price           *decimal.Decimal `json:"price"`
	TaxType         *string          `json:"tax_type" validate:"omitempty,max=100"`
	Site            *string          `json:"site" validate:"omitempty,max=100"`
	Notes           *string          `json:"notes"`
}

type allocationRequest struct {
	Currency string          `json:"currency" validate:"required,len=3"`
	Amount   decimal.Decimal `json:"amount"`
	Source   string          `json:"source" validate:"max=100"`
}

type taxAdjustmentRequest struct {
	TaxCode string          `json:"tax_code" validate:"required,max=50"`
	Amount  decimal.Decimal `json:"amount"`
}

type priceRequest struct {
	Force bool `json:"force"`
}

type listEntry struct {
	ListItem
	CanDestroy bool `json:"can_destroy"`
	CanPost    bool `json:"can_post"`
	CanVoid    bool `json:"can_void"`
	CanPrint   bool `json:"can_print"`
}

type listResponse struct {
	Items      []listEntry       `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// ============================================================================
// DOCUMENT HANDLERS
// ============================================================================

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PaginationFromQuery(q)
	filter := ListFilter{Customer: q.Get("customer"), Limit: page.PerPage, Offset: page.Offset()}
	if raw := q.Get("posted"); raw != "" {
		posted := raw == "true"
		filter.Posted = &posted
	}
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	privs := shared.PrivilegesFromContext(r.Context())
	resp := listResponse{Items: make([]listEntry, 0, len(items)), Pagination: page}
	for _, li := range items {
		resp.Items = append(resp.Items, listEntry{
			ListItem:   li,
			CanDestroy: li.CouldDestroy(privs),
			CanPost:    li.CanPost(privs),
			CanVoid:    li.CanVoid(privs),
			CanPrint:   li.CanPrint(privs),
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Create(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, inv)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	inv, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, inv)
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	var req headerRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.applyHeader(r.Context(), inv, req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, inv)
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	inv, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	events := inv.Events()
	if events == nil {
		events = []Event{}
	}
	httpx.JSON(w, http.StatusOK, events)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	inv, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := inv.Wait(r.Context()); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", ErrNotSettled, err))
		return
	}
	if err := inv.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Save(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Discard(chi.URLParam(r, "number")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	privs := shared.PrivilegesFromContext(r.Context())
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "number"), privs); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// LINE HANDLERS
// ============================================================================

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	l := inv.NewLine()
	if err := inv.AddLine(l); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.applyLine(r.Context(), l, req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, inv)
}

func (h *Handler) patchLine(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, l, err := h.line(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.applyLine(r.Context(), l, req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, inv)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	inv, l, err := h.line(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := inv.RemoveLine(l.UUID()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, inv)
}

func (h *Handler) repriceLine(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	inv, l, err := h.line(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := l.CalculatePrice(req.Force); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, inv)
}

// ============================================================================
// OWNED RECORD HANDLERS
// ============================================================================

func (h *Handler) addAllocation(w http.ResponseWriter, r *http.Request) {
	var req allocationRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	currency, err := h.directory.Currency(r.Context(), req.Currency)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := inv.AddAllocation(Allocation{Currency: currency, Amount: req.Amount, Source: req.Source}); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, inv)
}

func (h *Handler) removeAllocation(w http.ResponseWriter, r *http.Request) {
	h.removeOwned(w, r, func(inv *Invoice, id uuid.UUID) error { return inv.RemoveAllocation(id) })
}

func (h *Handler) addTaxAdjustment(w http.ResponseWriter, r *http.Request) {
	var req taxAdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := inv.AddTaxAdjustment(TaxAdjustment{TaxCode: req.TaxCode, Amount: req.Amount}); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, inv)
}

func (h *Handler) removeTaxAdjustment(w http.ResponseWriter, r *http.Request) {
	h.removeOwned(w, r, func(inv *Invoice, id uuid.UUID) error { return inv.RemoveTaxAdjustment(id) })
}

func (h *Handler) removeOwned(w http.ResponseWriter, r *http.Request, remove func(*Invoice, uuid.UUID) error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: id must be a uuid", httpx.ErrValidation))
		return
	}
	inv, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := remove(inv, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, inv)
}

// ============================================================================
// ACTION HANDLERS
// ============================================================================

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.service.Post)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.service.Void)
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request, run func(context.Context, string, Privileges) (ActionResult, error)) {
	privs := shared.PrivilegesFromContext(r.Context())
	res, err := run(r.Context(), chi.URLParam(r, "number"), privs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Queued {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, res)
}

func (h *Handler) print(w http.ResponseWriter, r *http.Request) {
	privs := shared.PrivilegesFromContext(r.Context())
	if err := h.service.Print(r.Context(), chi.URLParam(r, "number"), privs); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// APPLY
// ============================================================================

// applyHeader applies req in a fixed order. The customer goes first because
// it resets the fields it defaults.
func (h *Handler) applyHeader(ctx context.Context, inv *Invoice, req headerRequest) error {
	d := h.directory
	if err := resolve(ctx, req.Customer, d.Customer, inv.SetCustomer); err != nil {
		return err
	}
	if err := resolve(ctx, req.Currency, d.Currency, inv.SetCurrency); err != nil {
		return err
	}
	if req.InvoiceDate != nil {
		var date time.Time
		if *req.InvoiceDate != "" {
			parsed, err := time.Parse(dateLayout, *req.InvoiceDate)
			if err != nil {
				return fmt.Errorf("%w: invoice_date: %v", httpx.ErrValidation, err)
			}
			date = parsed
		}
		if err := inv.SetInvoiceDate(date); err != nil {
			return err
		}
	}
	if req.Number != nil {
		if err := inv.SetNumber(*req.Number); err != nil {
			return err
		}
	}
	if err := resolve(ctx, req.TaxZone, d.TaxZone, inv.SetTaxZone); err != nil {
		return err
	}
	if err := resolve(ctx, req.Terms, d.Terms, inv.SetTerms); err != nil {
		return err
	}
	if err := resolve(ctx, req.SalesRep, d.SalesRep, inv.SetSalesRep); err != nil {
		return err
	}
	if err := resolve(ctx, req.SaleType, d.SaleType, inv.SetSaleType); err != nil {
		return err
	}
	if req.Commission != nil {
		if err := inv.SetCommission(*req.Commission); err != nil {
			return err
		}
	}
	if req.MiscCharge != nil {
		if err := inv.SetMiscCharge(*req.MiscCharge); err != nil {
			return err
		}
	}
	if req.ShipVia != nil {
		if err := inv.SetShipVia(*req.ShipVia); err != nil {
			return err
		}
	}
	if req.Notes != nil {
		if err := inv.SetNotes(*req.Notes); err != nil {
			return err
		}
	}
	if req.Billto != nil {
		if err := inv.SetBillto(*req.Billto); err != nil {
			return err
		}
	}
	names := make([]string, 0, len(req.Characteristics))
	for name := range req.Characteristics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := inv.SetCharacteristic(name, req.Characteristics[name]); err != nil {
			return err
		}
	}
	for _, a := range req.Assignments {
		if err := inv.Assign(a.Kind, a.Target); err != nil {
			return err
		}
	}
	return nil
}

// applyLine applies req to l. The misc flag and item go first since they
// decide which other fields are editable and reset unit defaults.
func (h *Handler) applyLine(ctx context.Context, l *Line, req lineRequest) error {
	d := h.directory
	if req.IsMiscellaneous != nil {
		if err := l.SetMiscellaneous(*req.IsMiscellaneous); err != nil {
			return err
		}
	}
	if err := resolve(ctx, req.Item, d.Item, l.SetItem); err != nil {
		return err
	}
	if req.ItemNumber != nil {
		if err := l.SetItemNumber(*req.ItemNumber); err != nil {
			return err
		}
	}
	if req.ItemDescription != nil {
		if err := l.SetItemDescription(*req.ItemDescription); err != nil {
			return err
		}
	}
	if err := resolve(ctx, req.SalesCategory, d.SalesCategory, l.SetSalesCategory); err != nil {
		return err
	}
	if err := resolve(ctx, req.QuantityUnit, d.Unit, l.SetQuantityUnit); err != nil {
		return err
	}
	if err := resolve(ctx, req.PriceUnit, d.Unit, l.SetPriceUnit); err != nil {
		return err
	}
	if req.Quantity != nil {
		if err := l.SetQuantity(*req.Quantity); err != nil {
			return err
		}
	}
	if req.Billed != nil {
		if err := l.SetBilled(*req.Billed); err != nil {
			return err
		}
	}
	if req.Price != nil {
		if err := l.SetPrice(*req.Price); err != nil {
			return err
		}
	}
	if err := resolve(ctx, req.TaxType, d.TaxType, l.SetTaxType); err != nil {
		return err
	}
	if req.Site != nil {
		if err := l.SetSite(*req.Site); err != nil {
			return err
		}
	}
	if req.Notes != nil {
		if err := l.SetNotes(*req.Notes); err != nil {
			return err
		}
	}
	return nil
}

// resolve looks key up and hands the reference to set. A nil key leaves the
// field alone; an empty key clears it.
func resolve[T any](ctx context.Context, key *string, fetch func(context.Context, string) (*T, error), set func(*T) error) error {
	if key == nil {
		return nil
	}
	var ref *T
	if *key != "" {
		var err error
		if ref, err = fetch(ctx, *key); err != nil {
			return err
		}
	}
	return set(ref)
}

// ============================================================================
// HELPERS
// ============================================================================

func (h *Handler) session(r *http.Request) (*Invoice, error) {
	return h.service.Open(r.Context(), chi.URLParam(r, "number"))
}

func (h *Handler) line(r *http.Request) (*Invoice, *Line, error) {
	id, err := uuid.Parse(chi.URLParam(r, "line"))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: line must be a uuid", httpx.ErrValidation)
	}
	inv, err := h.session(r)
	if err != nil {
		return nil, nil, err
	}
	l, err := inv.Line(id)
	if err != nil {
		return nil, nil, err
	}
	return inv, l, nil
}

// respond writes the document view. With ?wait=true the response is held
// until pending remote calls have been applied.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, inv *Invoice) {
	if r.URL.Query().Get("wait") == "true" {
		if err := inv.Wait(r.Context()); err != nil {
			h.fail(w, r, fmt.Errorf("%w: %v", ErrNotSettled, err))
			return
		}
	}
	httpx.JSON(w, status, inv.View())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		httpx.RespondError(w, requestProblem(err))
		return false
	}
	return true
}

func requestProblem(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	p := &httpx.ValidationProblem{Detail: "request body is invalid"}
	for _, fe := range fieldErrs {
		p.Fields = append(p.Fields, httpx.FieldError{Code: fe.Tag(), Field: fe.Field()})
	}
	return p
}

// fail maps domain errors onto problem responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *ValidationError
		derr *dispatch.Error
	)
	switch {
	case errors.As(err, &verr):
		f := httpx.FieldError{Code: verr.Code, Field: string(verr.Attr)}
		if verr.Line != uuid.Nil {
			f.Line = verr.Line.String()
		}
		httpx.RespondError(w, &httpx.ValidationProblem{Detail: verr.Error(), Fields: []httpx.FieldError{f}})
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownSession):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrDuplicate, err))
	case errors.Is(err, ErrForbidden):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrForbidden, err))
	case errors.Is(err, ErrReadOnly), errors.Is(err, ErrPosted), errors.Is(err, ErrNotPosted),
		errors.Is(err, ErrNotSettled), errors.Is(err, ErrSaving), errors.Is(err, ErrLineAttached), errors.Is(err, ErrForeignLine):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.As(err, &derr):
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("dispatch failed")
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUpstream, err))
	case errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("invoice request failed")
		httpx.RespondError(w, err)
	}
}

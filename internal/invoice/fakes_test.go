package invoice

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/invoicing/internal/shared"
)

var (
	usd    = &Currency{ID: "1", Abbreviation: "USD", Symbol: "$"}
	eur    = &Currency{ID: "2", Abbreviation: "EUR"}
	gbp    = &Currency{ID: "3", Abbreviation: "GBP"}
	each   = &Unit{ID: "1", Name: "EA"}
	vaZone = &TaxZone{ID: "1", Code: "VA TAX"}

	ttoys = &Customer{
		ID:         "10",
		Number:     "TTOYS",
		Name:       "Tremendous Toys",
		Commission: decimal.RequireFromString("0.075"),
		SalesRep:   &SalesRep{ID: "5", Number: "1000", Name: "Sam Masters"},
		Terms:      &Terms{ID: "2", Code: "2-10N30"},
		TaxZone:    vaZone,
		Currency:   usd,
		BillingContact: &Contact{
			Phone:   "757-555-0100",
			Address: &Address{Line1: "Tremendous Toys Plaza", City: "Norfolk", State: "VA", Country: "United States"},
		},
	}
	truck = &Item{ID: "100", Number: "BTRUCK1", Description: "Truck", InventoryUnit: each}
)

var (
	testDate = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	testDay  = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func settle(t *testing.T, inv *Invoice) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, inv.Wait(ctx))
}

func testServices() Services {
	return Services{
		Now:    func() time.Time { return testDate },
		Logger: zerolog.Nop(),
	}
}

// fakePrices answers price requests through quote. When gate is set every
// call reports itself on started and blocks until gate yields.
type fakePrices struct {
	mu      sync.Mutex
	calls   []PriceRequest
	quote   func(PriceRequest) (PriceQuote, error)
	started chan PriceRequest
	gate    chan struct{}
}

func (f *fakePrices) ItemPrice(ctx context.Context, req PriceRequest) (PriceQuote, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- req
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return PriceQuote{}, ctx.Err()
		}
	}
	return f.quote(req)
}

func (f *fakePrices) requests() []PriceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PriceRequest(nil), f.calls...)
}

func fixedPrice(price string) func(PriceRequest) (PriceQuote, error) {
	return func(PriceRequest) (PriceQuote, error) {
		return PriceQuote{Price: dec(price), Found: true}, nil
	}
}

// fakeTaxes charges rate on every amount under one code.
type fakeTaxes struct {
	code  string
	rate  decimal.Decimal
	err   error
	calls atomic.Int32
}

func (f *fakeTaxes) TaxDetail(_ context.Context, req TaxRequest) ([]TaxDetail, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []TaxDetail{{TaxCode: f.code, Amount: req.Amount.Mul(f.rate)}}, nil
}

// fakeConverter multiplies by a per-currency rate. Conversions from a gated
// currency wait for the gate.
type fakeConverter struct {
	rates map[string]decimal.Decimal
	gates map[string]chan struct{}

	mu    sync.Mutex
	order []string
}

func (f *fakeConverter) ToCurrency(ctx context.Context, from, _ string, amount decimal.Decimal, _ time.Time) (decimal.Decimal, error) {
	if gate, ok := f.gates[from]; ok {
		select {
		case <-gate:
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	f.mu.Lock()
	f.order = append(f.order, from)
	f.mu.Unlock()
	return amount.Mul(f.rates[from]), nil
}

type fakeCredits struct {
	outstanding    decimal.Decimal
	outstandingErr error
	authorized     decimal.Decimal
}

func (f *fakeCredits) OutstandingCredit(context.Context, string, string, time.Time) (decimal.Decimal, error) {
	return f.outstanding, f.outstandingErr
}

func (f *fakeCredits) AuthorizedCredit(context.Context, string) (decimal.Decimal, error) {
	return f.authorized, nil
}

type fakeActions struct {
	mu     sync.Mutex
	posted []string
	voided []string
	err    error
}

func (f *fakeActions) Post(_ context.Context, number string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, number)
	return f.err
}

func (f *fakeActions) Void(_ context.Context, number string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voided = append(f.voided, number)
	return f.err
}

type fakeQueue struct {
	posts []string
	voids []string
}

func (f *fakeQueue) EnqueuePost(_ context.Context, number string) error {
	f.posts = append(f.posts, number)
	return nil
}

func (f *fakeQueue) EnqueueVoid(_ context.Context, number string) error {
	f.voids = append(f.voids, number)
	return nil
}

type fakeAuditor struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (f *fakeAuditor) Record(_ context.Context, log shared.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeAuditor) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.logs))
	for _, l := range f.logs {
		out = append(out, l.Action)
	}
	return out
}

// memoryRepo keeps records the way the PostgreSQL repository does: lines
// pending deletion are dropped on save.
type memoryRepo struct {
	mu      sync.Mutex
	next    int
	records map[string]Record
	// onSave runs before a save is applied, outside the lock.
	onSave func(Record)
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{next: 60000, records: map[string]Record{}}
}

func (m *memoryRepo) NextNumber(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return strconv.Itoa(m.next), nil
}

func (m *memoryRepo) Load(_ context.Context, number string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[number]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Save mirrors the PostgreSQL repository: lines are upserted by uuid and a
// stored line is removed only when the record marks it destroyed.
func (m *memoryRepo) Save(_ context.Context, prevNumber string, rec Record) error {
	if m.onSave != nil {
		m.onSave(rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Number != prevNumber {
		if _, taken := m.records[rec.Number]; taken {
			return ErrDuplicate
		}
	}
	stored := m.records[prevNumber].Lines
	delete(m.records, prevNumber)

	lines := make([]LineRecord, 0, len(stored)+len(rec.Lines))
	index := map[uuid.UUID]int{}
	for _, l := range stored {
		index[l.UUID] = len(lines)
		lines = append(lines, l)
	}
	gone := map[uuid.UUID]bool{}
	for _, l := range rec.Lines {
		if l.Status.destroyed() {
			gone[l.UUID] = true
			continue
		}
		l.Status = StatusReadyClean
		if i, ok := index[l.UUID]; ok {
			lines[i] = l
			continue
		}
		index[l.UUID] = len(lines)
		lines = append(lines, l)
	}
	rec.Lines = make([]LineRecord, 0, len(lines))
	for _, l := range lines {
		if !gone[l.UUID] {
			rec.Lines = append(rec.Lines, l)
		}
	}
	m.records[rec.Number] = rec
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[number]
	if !ok {
		return ErrNotFound
	}
	if rec.IsPosted {
		return ErrPosted
	}
	delete(m.records, number)
	return nil
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]ListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ListItem
	for _, rec := range m.records {
		li := rec.ListItem()
		if filter.Customer != "" && li.CustomerNumber != filter.Customer {
			continue
		}
		if filter.Posted != nil && li.IsPosted != *filter.Posted {
			continue
		}
		out = append(out, li)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memoryRepo) SetFlags(_ context.Context, number string, posted, void, printed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[number]
	if !ok {
		return ErrNotFound
	}
	rec.IsPosted, rec.IsVoid, rec.IsPrinted = posted, void, printed
	m.records[number] = rec
	return nil
}

// miscLine attaches a complete miscellaneous line to inv.
func miscLine(t *testing.T, inv *Invoice, number string, billed, price string) *Line {
	t.Helper()
	l := inv.NewLine()
	require.NoError(t, inv.AddLine(l))
	require.NoError(t, l.SetMiscellaneous(true))
	require.NoError(t, l.SetItemNumber(number))
	require.NoError(t, l.SetItemDescription(number+" service"))
	require.NoError(t, l.SetSalesCategory(&SalesCategory{ID: "1", Name: "NORMAL"}))
	require.NoError(t, l.SetBilled(dec(billed)))
	require.NoError(t, l.SetQuantity(dec(billed)))
	require.NoError(t, l.SetPrice(dec(price)))
	return l
}

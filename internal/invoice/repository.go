package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/invoicing/internal/platform/db"
)

const uniqueViolation = "23505"

// PGRepository stores invoices in PostgreSQL. Reference snapshots are kept as
// JSONB; amounts are NUMERIC scanned through the decimal codec.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// NextNumber draws the next document number from invoice_number_seq.
func (r *PGRepository) NextNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

// ============================================================================
// LOAD
// ============================================================================

const selectHeader = `
SELECT id, number, customer, currency, invoice_date, billto, sales_rep, commission,
       terms, tax_zone, sale_type, ship_via, notes, misc_charge, subtotal, tax_total,
       total, allocated_credit, outstanding_credit, authorized_credit, balance,
       is_posted, is_void, is_printed, characteristics, assignments
FROM invoices WHERE number = $1`

// Load reads the invoice stored under number.
func (r *PGRepository) Load(ctx context.Context, number string) (Record, error) {
	var (
		rec Record
		id  int64

		customer, currency, billto, salesRep, terms, taxZone, saleType []byte
		characteristics, assignments                                   []byte
	)
	err := r.pool.QueryRow(ctx, selectHeader, number).Scan(
		&id, &rec.Number, &customer, &currency, &rec.InvoiceDate, &billto, &salesRep,
		&rec.Commission, &terms, &taxZone, &saleType, &rec.ShipVia, &rec.Notes,
		&rec.MiscCharge, &rec.Subtotal, &rec.TaxTotal, &rec.Total, &rec.AllocatedCredit,
		&rec.OutstandingCredit, &rec.AuthorizedCredit, &rec.Balance,
		&rec.IsPosted, &rec.IsVoid, &rec.IsPrinted, &characteristics, &assignments,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, number)
		}
		return Record{}, err
	}
	if err := decodeAll(
		jsonField{customer, &rec.Customer},
		jsonField{currency, &rec.Currency},
		jsonField{billto, &rec.Billto},
		jsonField{salesRep, &rec.SalesRep},
		jsonField{terms, &rec.Terms},
		jsonField{taxZone, &rec.TaxZone},
		jsonField{saleType, &rec.SaleType},
		jsonField{characteristics, &rec.Characteristics},
		jsonField{assignments, &rec.Assignments},
	); err != nil {
		return Record{}, fmt.Errorf("decode invoice %s: %w", number, err)
	}

	if rec.Lines, err = r.loadLines(ctx, id); err != nil {
		return Record{}, err
	}
	if rec.TaxAdjustments, err = r.loadTaxAdjustments(ctx, id); err != nil {
		return Record{}, err
	}
	if rec.Allocations, err = r.loadAllocations(ctx, id); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *PGRepository) loadLines(ctx context.Context, invoiceID int64) ([]LineRecord, error) {
	rows, err := r.pool.Query(ctx, `
SELECT uuid, line_number, item, is_miscellaneous, item_number, item_description,
       sales_category, quantity_unit, price_unit, quantity_unit_ratio, price_unit_ratio,
       unit_is_fractional, billed, quantity, price, customer_price, extended_price,
       tax_type, tax_total, site, notes
FROM invoice_lines WHERE invoice_id = $1 ORDER BY line_number`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []LineRecord
	for rows.Next() {
		var (
			lr                                                       LineRecord
			item, salesCategory, quantityUnit, priceUnit, taxTypeRaw []byte
		)
		if err := rows.Scan(
			&lr.UUID, &lr.LineNumber, &item, &lr.IsMiscellaneous, &lr.ItemNumber,
			&lr.ItemDescription, &salesCategory, &quantityUnit, &priceUnit,
			&lr.QuantityUnitRatio, &lr.PriceUnitRatio, &lr.UnitIsFractional,
			&lr.Billed, &lr.Quantity, &lr.Price, &lr.CustomerPrice, &lr.ExtendedPrice,
			&taxTypeRaw, &lr.TaxTotal, &lr.Site, &lr.Notes,
		); err != nil {
			return nil, err
		}
		if err := decodeAll(
			jsonField{item, &lr.Item},
			jsonField{salesCategory, &lr.SalesCategory},
			jsonField{quantityUnit, &lr.QuantityUnit},
			jsonField{priceUnit, &lr.PriceUnit},
			jsonField{taxTypeRaw, &lr.TaxType},
		); err != nil {
			return nil, fmt.Errorf("decode line %s: %w", lr.UUID, err)
		}
		lr.Status = StatusReadyClean
		lines = append(lines, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range lines {
		if lines[i].Taxes, err = r.loadLineTaxes(ctx, lines[i].UUID.String()); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func (r *PGRepository) loadLineTaxes(ctx context.Context, lineUUID string) ([]LineTax, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT uuid, tax_type, tax_code, amount FROM invoice_line_taxes WHERE line_uuid = $1 ORDER BY tax_code`,
		lineUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var taxes []LineTax
	for rows.Next() {
		var (
			t   LineTax
			raw []byte
		)
		if err := rows.Scan(&t.UUID, &raw, &t.TaxCode, &t.Amount); err != nil {
			return nil, err
		}
		if err := decodeJSON(raw, &t.TaxType); err != nil {
			return nil, err
		}
		taxes = append(taxes, t)
	}
	return taxes, rows.Err()
}

func (r *PGRepository) loadTaxAdjustments(ctx context.Context, invoiceID int64) ([]TaxAdjustment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT uuid, tax_code, amount FROM invoice_tax_adjustments WHERE invoice_id = $1 ORDER BY tax_code`,
		invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaxAdjustment
	for rows.Next() {
		var adj TaxAdjustment
		if err := rows.Scan(&adj.UUID, &adj.TaxCode, &adj.Amount); err != nil {
			return nil, err
		}
		out = append(out, adj)
	}
	return out, rows.Err()
}

func (r *PGRepository) loadAllocations(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT uuid, currency, amount, source FROM invoice_allocations WHERE invoice_id = $1 ORDER BY uuid`,
		invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Allocation
	for rows.Next() {
		var (
			a   Allocation
			raw []byte
		)
		if err := rows.Scan(&a.UUID, &raw, &a.Amount, &a.Source); err != nil {
			return nil, err
		}
		if err := decodeJSON(raw, &a.Currency); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ============================================================================
// SAVE
// ============================================================================

// Save writes rec in a single repeatable-read transaction. The header row
// stored under prevNumber is updated, or inserted when none exists. Lines
// pending deletion are removed; owned tax rows are rewritten.
func (r *PGRepository) Save(ctx context.Context, prevNumber string, rec Record) error {
	header, err := headerArgs(rec)
	if err != nil {
		return err
	}
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		id, err := upsertHeader(ctx, tx, prevNumber, header)
		if err != nil {
			return err
		}
		for _, lr := range rec.Lines {
			if lr.Status.destroyed() {
				if _, err := tx.Exec(ctx, `DELETE FROM invoice_lines WHERE uuid = $1 AND invoice_id = $2`, lr.UUID, id); err != nil {
					return fmt.Errorf("delete line %s: %w", lr.UUID, err)
				}
				continue
			}
			if err := upsertLine(ctx, tx, id, lr); err != nil {
				return err
			}
		}
		if err := rewriteTaxAdjustments(ctx, tx, id, rec.TaxAdjustments); err != nil {
			return err
		}
		return rewriteAllocations(ctx, tx, id, rec.Allocations)
	})
	return mapPGError(err)
}

func headerArgs(rec Record) ([]any, error) {
	customer, err := jsonRef(rec.Customer)
	if err != nil {
		return nil, err
	}
	currency, err := jsonRef(rec.Currency)
	if err != nil {
		return nil, err
	}
	billto, err := json.Marshal(rec.Billto)
	if err != nil {
		return nil, err
	}
	salesRep, err := jsonRef(rec.SalesRep)
	if err != nil {
		return nil, err
	}
	terms, err := jsonRef(rec.Terms)
	if err != nil {
		return nil, err
	}
	taxZone, err := jsonRef(rec.TaxZone)
	if err != nil {
		return nil, err
	}
	saleType, err := jsonRef(rec.SaleType)
	if err != nil {
		return nil, err
	}
	characteristics, err := jsonList(rec.Characteristics)
	if err != nil {
		return nil, err
	}
	assignments, err := jsonList(rec.Assignments)
	if err != nil {
		return nil, err
	}
	return []any{
		rec.Number, customer, currency, rec.InvoiceDate, billto, salesRep, rec.Commission,
		terms, taxZone, saleType, rec.ShipVia, rec.Notes, rec.MiscCharge, rec.Subtotal,
		rec.TaxTotal, rec.Total, rec.AllocatedCredit, rec.OutstandingCredit,
		rec.AuthorizedCredit, rec.Balance, characteristics, assignments,
	}, nil
}

const updateHeader = `
UPDATE invoices SET
    number = $1, customer = $2, currency = $3, invoice_date = $4, billto = $5,
    sales_rep = $6, commission = $7, terms = $8, tax_zone = $9, sale_type = $10,
    ship_via = $11, notes = $12, misc_charge = $13, subtotal = $14, tax_total = $15,
    total = $16, allocated_credit = $17, outstanding_credit = $18,
    authorized_credit = $19, balance = $20, characteristics = $21, assignments = $22,
    updated_at = NOW()
WHERE number = $23
RETURNING id`

const insertHeader = `
INSERT INTO invoices (
    number, customer, currency, invoice_date, billto, sales_rep, commission, terms,
    tax_zone, sale_type, ship_via, notes, misc_charge, subtotal, tax_total, total,
    allocated_credit, outstanding_credit, authorized_credit, balance,
    characteristics, assignments
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
          $17, $18, $19, $20, $21, $22)
RETURNING id`

func upsertHeader(ctx context.Context, tx pgx.Tx, prevNumber string, args []any) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, updateHeader, append(args, prevNumber)...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("update invoice: %w", err)
	}
	if err := tx.QueryRow(ctx, insertHeader, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}
	return id, nil
}

const upsertLineSQL = `
INSERT INTO invoice_lines (
    uuid, invoice_id, line_number, item, is_miscellaneous, item_number, item_description,
    sales_category, quantity_unit, price_unit, quantity_unit_ratio, price_unit_ratio,
    unit_is_fractional, billed, quantity, price, customer_price, extended_price,
    tax_type, tax_total, site, notes
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
          $18, $19, $20, $21, $22)
ON CONFLICT (uuid) DO UPDATE SET
    line_number = EXCLUDED.line_number, item = EXCLUDED.item,
    is_miscellaneous = EXCLUDED.is_miscellaneous, item_number = EXCLUDED.item_number,
    item_description = EXCLUDED.item_description, sales_category = EXCLUDED.sales_category,
    quantity_unit = EXCLUDED.quantity_unit, price_unit = EXCLUDED.price_unit,
    quantity_unit_ratio = EXCLUDED.quantity_unit_ratio,
    price_unit_ratio = EXCLUDED.price_unit_ratio,
    unit_is_fractional = EXCLUDED.unit_is_fractional, billed = EXCLUDED.billed,
    quantity = EXCLUDED.quantity, price = EXCLUDED.price,
    customer_price = EXCLUDED.customer_price, extended_price = EXCLUDED.extended_price,
    tax_type = EXCLUDED.tax_type, tax_total = EXCLUDED.tax_total, site = EXCLUDED.site,
    notes = EXCLUDED.notes
WHERE invoice_lines.invoice_id = EXCLUDED.invoice_id`

func upsertLine(ctx context.Context, tx pgx.Tx, invoiceID int64, lr LineRecord) error {
	item, err := jsonRef(lr.Item)
	if err != nil {
		return err
	}
	salesCategory, err := jsonRef(lr.SalesCategory)
	if err != nil {
		return err
	}
	quantityUnit, err := jsonRef(lr.QuantityUnit)
	if err != nil {
		return err
	}
	priceUnit, err := jsonRef(lr.PriceUnit)
	if err != nil {
		return err
	}
	taxType, err := jsonRef(lr.TaxType)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, upsertLineSQL,
		lr.UUID, invoiceID, lr.LineNumber, item, lr.IsMiscellaneous, lr.ItemNumber,
		lr.ItemDescription, salesCategory, quantityUnit, priceUnit, lr.QuantityUnitRatio,
		lr.PriceUnitRatio, lr.UnitIsFractional, lr.Billed, lr.Quantity, lr.Price,
		lr.CustomerPrice, lr.ExtendedPrice, taxType, lr.TaxTotal, lr.Site, lr.Notes,
	); err != nil {
		return fmt.Errorf("upsert line %s: %w", lr.UUID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM invoice_line_taxes WHERE line_uuid = $1`, lr.UUID); err != nil {
		return fmt.Errorf("clear line taxes %s: %w", lr.UUID, err)
	}
	if len(lr.Taxes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range lr.Taxes {
		raw, err := jsonRef(t.TaxType)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO invoice_line_taxes (uuid, line_uuid, tax_type, tax_code, amount) VALUES ($1, $2, $3, $4, $5)`,
			t.UUID, lr.UUID, raw, t.TaxCode, t.Amount)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert line taxes %s: %w", lr.UUID, err)
	}
	return nil
}

func rewriteTaxAdjustments(ctx context.Context, tx pgx.Tx, invoiceID int64, adjs []TaxAdjustment) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM invoice_tax_adjustments WHERE invoice_id = $1`, invoiceID)
	for _, adj := range adjs {
		batch.Queue(`INSERT INTO invoice_tax_adjustments (uuid, invoice_id, tax_code, amount) VALUES ($1, $2, $3, $4)`,
			adj.UUID, invoiceID, adj.TaxCode, adj.Amount)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("rewrite tax adjustments: %w", err)
	}
	return nil
}

func rewriteAllocations(ctx context.Context, tx pgx.Tx, invoiceID int64, allocs []Allocation) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM invoice_allocations WHERE invoice_id = $1`, invoiceID)
	for _, a := range allocs {
		raw, err := jsonRef(a.Currency)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO invoice_allocations (uuid, invoice_id, currency, amount, source) VALUES ($1, $2, $3, $4, $5)`,
			a.UUID, invoiceID, raw, a.Amount, a.Source)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("rewrite allocations: %w", err)
	}
	return nil
}

// ============================================================================
// DELETE / LIST / FLAGS
// ============================================================================

// Delete removes an unposted invoice and everything it owns.
func (r *PGRepository) Delete(ctx context.Context, number string) error {
	var posted bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT is_posted FROM invoices WHERE number = $1 FOR UPDATE`, number).Scan(&posted); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrNotFound, number)
			}
			return err
		}
		if posted {
			return ErrPosted
		}
		_, err := tx.Exec(ctx, `DELETE FROM invoices WHERE number = $1`, number)
		return err
	})
	return err
}

// List returns invoices newest first.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]ListItem, error) {
	var (
		where []string
		args  []any
	)
	if filter.Customer != "" {
		args = append(args, filter.Customer)
		where = append(where, fmt.Sprintf("customer ->> 'number' = $%d", len(args)))
	}
	if filter.Posted != nil {
		args = append(args, *filter.Posted)
		where = append(where, fmt.Sprintf("is_posted = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT number, COALESCE(customer ->> 'number', ''), COALESCE(customer ->> 'name', ''),
       invoice_date, total, is_posted, is_void, is_printed FROM invoices`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY invoice_date DESC, number DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListItem
	for rows.Next() {
		var li ListItem
		if err := rows.Scan(&li.Number, &li.CustomerNumber, &li.CustomerName, &li.InvoiceDate,
			&li.Total, &li.IsPosted, &li.IsVoid, &li.IsPrinted); err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// SetFlags records the outcome of a post, void or print action.
func (r *PGRepository) SetFlags(ctx context.Context, number string, posted, void, printed bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE invoices SET is_posted = $2, is_void = $3, is_printed = $4, updated_at = NOW() WHERE number = $1`,
		number, posted, void, printed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, number)
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

type jsonField struct {
	raw []byte
	dst any
}

func decodeAll(fields ...jsonField) error {
	for _, f := range fields {
		if err := decodeJSON(f.raw, f.dst); err != nil {
			return err
		}
	}
	return nil
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// jsonRef encodes a reference snapshot; nil becomes SQL NULL.
func jsonRef[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func jsonList[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}

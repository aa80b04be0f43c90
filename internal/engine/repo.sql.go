package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comptaflow/comptaflow/internal/coa"
	"github.com/comptaflow/comptaflow/internal/documents"
)

// PgRepository persists documents and ledger entries.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs PgRepository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("engine repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func documentTable(kind documents.Kind) (string, error) {
	switch kind {
	case documents.KindPurchase:
		return "purchase_invoices", nil
	case documents.KindSale:
		return "sales_invoices", nil
	case documents.KindBank:
		return "bank_statements", nil
	}
	return "", documents.ErrUnknownKind
}

func entryLinkColumn(kind documents.Kind) (string, error) {
	switch kind {
	case documents.KindPurchase:
		return "purchase_id", nil
	case documents.KindSale:
		return "sale_id", nil
	case documents.KindBank:
		return "bank_id", nil
	}
	return "", documents.ErrUnknownKind
}

const documentColumns = `id, tenant_id, client_id, reference, supplier, date, total_ht, vat7, vat13, vat19, total_tva, total_ttc, discount, fiscal_stamp, status, created_at, updated_at`

func scanDocument(row pgx.Row, kind documents.Kind) (documents.Document, error) {
	var d documents.Document
	var status string
	err := row.Scan(&d.ID, &d.TenantID, &d.ClientID, &d.Reference, &d.Supplier, &d.Date,
		&d.TotalHT, &d.VAT7, &d.VAT13, &d.VAT19, &d.TotalTVA, &d.TotalTTC,
		&d.Discount, &d.FiscalStamp, &status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return documents.Document{}, documents.ErrDocumentNotFound
		}
		return documents.Document{}, err
	}
	d.Kind = kind
	d.Status = documents.ParseStatus(status)
	return d, nil
}

// GetDocument loads one document of the given kind.
func (r *PgRepository) GetDocument(ctx context.Context, id int64, kind documents.Kind) (documents.Document, error) {
	table, err := documentTable(kind)
	if err != nil {
		return documents.Document{}, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1`, documentColumns, table)
	doc, err := scanDocument(r.pool.QueryRow(ctx, query, id), kind)
	if err != nil {
		return documents.Document{}, err
	}
	if kind == documents.KindBank {
		movements, err := r.listMovements(ctx, id)
		if err != nil {
			return documents.Document{}, err
		}
		doc.Movements = movements
	}
	return doc, nil
}

func (r *PgRepository) listMovements(ctx context.Context, statementID int64) ([]documents.Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, date, label, debit, credit FROM bank_movements WHERE statement_id=$1 ORDER BY date, id`, statementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []documents.Movement
	for rows.Next() {
		var m documents.Movement
		if err := rows.Scan(&m.ID, &m.Date, &m.Label, &m.Debit, &m.Credit); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ListPurchaseDocuments loads every purchase document of the tenant, ordered
// by date then id so batch iteration order is stable.
func (r *PgRepository) ListPurchaseDocuments(ctx context.Context, tenantID int64) ([]documents.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM purchase_invoices WHERE tenant_id=$1 ORDER BY date, id`, documentColumns)
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []documents.Document
	for rows.Next() {
		doc, err := scanDocument(rows, documents.KindPurchase)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListTenants returns every tenant holding at least one purchase document.
// The nightly sweep fans out over this set.
func (r *PgRepository) ListTenants(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM purchase_invoices ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BulkSyncStatus re-syncs posted status across all three journals.
func (r *PgRepository) BulkSyncStatus(ctx context.Context, tenantID int64) (int64, error) {
	var total int64
	for _, target := range []struct {
		table string
		link  string
	}{
		{"purchase_invoices", "purchase_id"},
		{"sales_invoices", "sale_id"},
		{"bank_statements", "bank_id"},
	} {
		query := fmt.Sprintf(`UPDATE %s d SET status='POSTED', updated_at=NOW()
WHERE d.tenant_id=$1 AND d.status <> 'POSTED'
AND EXISTS (SELECT 1 FROM ledger_entries e WHERE e.%s = d.id)`, target.table, target.link)
		cmd, err := r.pool.Exec(ctx, query, tenantID)
		if err != nil {
			return total, err
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

func (r *txRepository) DeleteEntries(ctx context.Context, ref documents.Ref) error {
	column, err := entryLinkColumn(ref.Kind)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM ledger_entries WHERE %s=$1`, column), ref.ID)
	return err
}

func (r *txRepository) ResolveAccount(ctx context.Context, tenantID int64, code string) (coa.Account, error) {
	var a coa.Account
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, code, label, type, is_active, created_at, updated_at
FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code).
		Scan(&a.ID, &a.TenantID, &a.Code, &a.Label, &a.Type, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coa.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
		}
		return coa.Account{}, err
	}
	return a, nil
}

func (r *txRepository) InsertEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(`INSERT INTO ledger_entries (purchase_id, sale_id, bank_id, account_id, label, debit, credit, date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			entry.PurchaseID, entry.SaleID, entry.BankID, entry.AccountID, entry.Label,
			toNumeric(entry.Debit), toNumeric(entry.Credit), entry.Date)
	}
	results := r.tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23503" {
				return fmt.Errorf("%w: account row vanished mid-commit", ErrAccountNotFound)
			}
			return err
		}
	}
	return results.Close()
}

func (r *txRepository) UpdateStatus(ctx context.Context, ref documents.Ref, status documents.Status) error {
	table, err := documentTable(ref.Kind)
	if err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET status=$2, updated_at=NOW() WHERE id=$1`, table), ref.ID, string(status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return documents.ErrDocumentNotFound
	}
	return nil
}

func (r *txRepository) WritePostingSummary(ctx context.Context, ref documents.Ref, summary PostingSummary) error {
	table, err := documentTable(ref.Kind)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET posting_summary=$2, updated_at=NOW() WHERE id=$1`, table), ref.ID, payload)
	return err
}

// toNumeric renders a 3-decimal monetary amount for a NUMERIC column.
func toNumeric(v float64) any {
	return fmt.Sprintf("%.3f", v)
}

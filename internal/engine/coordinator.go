package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/comptaflow/comptaflow/internal/documents"
	"github.com/comptaflow/comptaflow/internal/shared"
)

// AuditPort records posting events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Coordinator replaces a document's entries with a freshly generated set
// inside one atomic transaction, keeping the status flag and the denormalized
// posting summary consistent with the new set.
type Coordinator struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewCoordinator constructs the persistence coordinator.
func NewCoordinator(repo Repository, audit AuditPort) *Coordinator {
	return &Coordinator{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (c *Coordinator) WithNow(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// Commit deletes any existing entries for the document, re-resolves every
// account by code inside the transaction, bulk-inserts the new set, and flips
// the document to posted. Delete, insert, and status update are all-or-nothing:
// a mid-flight account deletion aborts the whole call with ErrAccountNotFound
// and leaves the previous state intact.
func (c *Coordinator) Commit(ctx context.Context, ref documents.Ref, entries []ProposedEntry) ([]Entry, error) {
	if ref.ID == 0 || ref.Kind == "" {
		return nil, ErrMissingDocument
	}
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	var persisted []Entry
	err := c.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteEntries(ctx, ref); err != nil {
			return err
		}

		summary := PostingSummary{PostedAt: c.now()}
		rows := make([]Entry, 0, len(entries))
		for _, entry := range entries {
			account, err := tx.ResolveAccount(ctx, ref.TenantID, entry.AccountCode)
			if err != nil {
				return err
			}
			label := entry.Label
			if label == "" {
				label = account.Label
			}
			date := entry.Date
			if date.IsZero() {
				date = ref.Date
			}
			purchaseID, saleID, bankID := linkFor(ref)
			rows = append(rows, Entry{
				PurchaseID: purchaseID,
				SaleID:     saleID,
				BankID:     bankID,
				AccountID:  account.ID,
				Label:      label,
				Debit:      entry.Debit,
				Credit:     entry.Credit,
				Date:       date,
			})
			summary.EntryCount++
			summary.TotalDebit += entry.Debit
			summary.TotalCredit += entry.Credit
		}

		if err := tx.InsertEntries(ctx, rows); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, ref, documents.StatusPosted); err != nil {
			return err
		}
		if ref.Kind == documents.KindSale || ref.Kind == documents.KindBank {
			if err := tx.WritePostingSummary(ctx, ref, summary); err != nil {
				return err
			}
		}
		persisted = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.audit != nil {
		_ = c.audit.Record(ctx, shared.AuditLog{
			TenantID: ref.TenantID,
			Action:   "posting.commit",
			Entity:   "document",
			EntityID: fmt.Sprintf("%s:%d", ref.Kind, ref.ID),
			Meta: map[string]any{
				"entry_count": len(persisted),
			},
			At: c.now(),
		})
	}
	return persisted, nil
}

package engine

import (
	"context"

	"github.com/comptaflow/comptaflow/internal/coa"
	"github.com/comptaflow/comptaflow/internal/documents"
)

// Repository abstracts document and entry persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, id int64, kind documents.Kind) (documents.Document, error)
	ListPurchaseDocuments(ctx context.Context, tenantID int64) ([]documents.Document, error)
	// BulkSyncStatus marks every tenant document holding at least one entry
	// as posted and returns the number of rows touched.
	BulkSyncStatus(ctx context.Context, tenantID int64) (int64, error)
}

// TxRepository exposes the operations composed into one commit transaction.
type TxRepository interface {
	DeleteEntries(ctx context.Context, ref documents.Ref) error
	ResolveAccount(ctx context.Context, tenantID int64, code string) (coa.Account, error)
	InsertEntries(ctx context.Context, entries []Entry) error
	UpdateStatus(ctx context.Context, ref documents.Ref, status documents.Status) error
	WritePostingSummary(ctx context.Context, ref documents.Ref, summary PostingSummary) error
}

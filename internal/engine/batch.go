package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/comptaflow/comptaflow/internal/coa"
	"github.com/comptaflow/comptaflow/internal/documents"
)

const (
	// maxBatchMessages caps the detailed error list in a batch report;
	// failures beyond the cap are counted but not detailed.
	maxBatchMessages = 10
	defaultPause     = 50 * time.Millisecond
)

// ChartPort supplies the tenant chart of accounts.
type ChartPort interface {
	ListAccounts(ctx context.Context, tenantID int64) ([]coa.Account, error)
}

// BatchReport aggregates a tenant-wide regeneration run.
type BatchReport struct {
	RunID       uuid.UUID `json:"run_id"`
	Regenerated int       `json:"regenerated"`
	Errors      int       `json:"errors"`
	Total       int       `json:"total"`
	Messages    []string  `json:"messages,omitempty"`
}

// BatchController regenerates entries for every purchase document of a
// tenant, one document at a time.
type BatchController struct {
	charts    ChartPort
	generator *Generator
	coord     *Coordinator
	repo      Repository
	logger    *slog.Logger
	opts      Options
	pause     time.Duration
}

// BatchConfig wires the controller. Opts should carry a reduced retry and
// timeout budget relative to the interactive path.
type BatchConfig struct {
	Charts    ChartPort
	Generator *Generator
	Coord     *Coordinator
	Repo      Repository
	Logger    *slog.Logger
	Opts      Options
	Pause     time.Duration
}

// NewBatchController constructs the controller.
func NewBatchController(cfg BatchConfig) *BatchController {
	pause := cfg.Pause
	if pause <= 0 {
		pause = defaultPause
	}
	return &BatchController{
		charts:    cfg.Charts,
		generator: cfg.Generator,
		coord:     cfg.Coord,
		repo:      cfg.Repo,
		logger:    cfg.Logger,
		opts:      cfg.Opts,
		pause:     pause,
	}
}

// RegenerateAll rewrites entries for every purchase document of the tenant.
// Processing is strictly sequential: the Gemini backend rate-limits bursts,
// and sequential iteration keeps error attribution per document unambiguous.
// One failing document never aborts the batch.
func (b *BatchController) RegenerateAll(ctx context.Context, tenantID int64) (BatchReport, error) {
	report := BatchReport{RunID: uuid.New()}

	chart, err := b.charts.ListAccounts(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("engine: load chart: %w", err)
	}
	docs, err := b.repo.ListPurchaseDocuments(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("engine: load documents: %w", err)
	}
	report.Total = len(docs)

	for i, doc := range docs {
		if i > 0 && b.pause > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(b.pause):
			}
		}

		if err := b.regenerateOne(ctx, doc.Ref(), doc, chart); err != nil {
			report.Errors++
			if len(report.Messages) < maxBatchMessages {
				report.Messages = append(report.Messages, fmt.Sprintf("%s: %v", doc.Reference, err))
			}
			if b.logger != nil {
				b.logger.Warn("document regeneration failed",
					slog.Int64("tenant_id", tenantID),
					slog.Int64("document_id", doc.ID),
					slog.String("reference", doc.Reference),
					slog.Any("error", err))
			}
			continue
		}
		report.Regenerated++
	}

	// Best-effort re-sync, independent of the per-document outcomes above.
	if _, err := b.repo.BulkSyncStatus(ctx, tenantID); err != nil && b.logger != nil {
		b.logger.Warn("bulk status sync failed", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
	}

	if b.logger != nil {
		b.logger.Info("batch regeneration finished",
			slog.String("run_id", report.RunID.String()),
			slog.Int64("tenant_id", tenantID),
			slog.Int("regenerated", report.Regenerated),
			slog.Int("errors", report.Errors),
			slog.Int("total", report.Total))
	}
	return report, nil
}

func (b *BatchController) regenerateOne(ctx context.Context, ref documents.Ref, doc documents.Document, chart []coa.Account) error {
	result, err := b.generator.Generate(ctx, doc, chart, b.opts)
	if err != nil {
		return err
	}
	rec := Reconcile(result.Entries, chart)
	if len(rec.Accepted) == 0 {
		return ErrNoEntries
	}
	_, err = b.coord.Commit(ctx, ref, rec.Accepted)
	return err
}

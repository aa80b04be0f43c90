package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/comptaflow/comptaflow/internal/engine"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRegeneratePostings regenerates all entries for one tenant.
	TaskTypeRegeneratePostings = "posting:regenerate"
	// TaskTypeRegenerateSweep fans the nightly schedule out to one
	// regeneration task per tenant.
	TaskTypeRegenerateSweep = "posting:regenerate:sweep"
)

// RegeneratePostingsPayload identifies the tenant to regenerate.
type RegeneratePostingsPayload struct {
	TenantID int64 `json:"tenant_id"`
}

// NewRegeneratePostingsTask constructs an Asynq task.
func NewRegeneratePostingsTask(payload RegeneratePostingsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRegeneratePostings, data), nil
}

// NewRegeneratePostingsHandler builds the task handler around the batch
// controller. The batch already isolates per-document failures, so the task
// only fails (and retries) when the tenant-level loads fail.
func NewRegeneratePostingsHandler(batch *engine.BatchController, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RegeneratePostingsPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		report, err := batch.RegenerateAll(ctx, payload.TenantID)
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("regeneration task finished",
				slog.Int64("tenant_id", payload.TenantID),
				slog.String("run_id", report.RunID.String()),
				slog.Int("regenerated", report.Regenerated),
				slog.Int("errors", report.Errors))
		}
		return nil
	}
}

// NewRegenerateSweepTask constructs the nightly sweep task. It carries no
// payload; the tenant set is resolved at execution time.
func NewRegenerateSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeRegenerateSweep, nil)
}

// TenantLister enumerates the tenants holding postable documents.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]int64, error)
}

// NewRegenerateSweepHandler builds the sweep handler. One failing enqueue
// never stops the sweep; failures are reported at the end so the task retries.
func NewRegenerateSweepHandler(tenants TenantLister, enqueue func(tenantID int64) (string, error), logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		ids, err := tenants.ListTenants(ctx)
		if err != nil {
			return err
		}
		failed := 0
		for _, id := range ids {
			if _, err := enqueue(id); err != nil {
				failed++
				if logger != nil {
					logger.Warn("enqueue tenant regeneration",
						slog.Int64("tenant_id", id),
						slog.Any("error", err))
				}
			}
		}
		if logger != nil {
			logger.Info("regeneration sweep finished",
				slog.Int("tenants", len(ids)),
				slog.Int("failed", failed))
		}
		if failed > 0 {
			return fmt.Errorf("jobs: %d of %d tenant enqueues failed", failed, len(ids))
		}
		return nil
	}
}

// Enqueuer wraps the Asynq client for the HTTP surface.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer constructs an Enqueuer.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueRegenerate schedules a tenant regeneration and returns the task id.
func (e *Enqueuer) EnqueueRegenerate(tenantID int64) (string, error) {
	task, err := NewRegeneratePostingsTask(RegeneratePostingsPayload{TenantID: tenantID})
	if err != nil {
		return "", err
	}
	info, err := e.client.Enqueue(task, asynq.Queue(QueueDefault))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

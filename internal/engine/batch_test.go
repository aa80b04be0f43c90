package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/comptaflow/comptaflow/internal/coa"
	"github.com/comptaflow/comptaflow/internal/documents"
)

type memoryCharts struct {
	repo *memoryRepo
}

func (c memoryCharts) ListAccounts(ctx context.Context, tenantID int64) ([]coa.Account, error) {
	return c.repo.chart(tenantID), nil
}

func seedPurchases(repo *memoryRepo, tenantID int64, count int) {
	for i := 1; i <= count; i++ {
		id := int64(i)
		repo.docs[id] = documents.Document{
			ID:        id,
			TenantID:  tenantID,
			Kind:      documents.KindPurchase,
			Reference: fmt.Sprintf("FAC-%03d", i),
			Supplier:  "ACME",
			TotalHT:   1000,
			TotalTVA:  190,
			TotalTTC:  1190,
			Date:      time.Date(2026, 1, i, 0, 0, 0, 0, time.UTC),
		}
	}
}

func newBatch(repo *memoryRepo) *BatchController {
	return NewBatchController(BatchConfig{
		Charts:    memoryCharts{repo: repo},
		Generator: NewGenerator(nil, testLogger()),
		Coord:     NewCoordinator(repo, nil),
		Repo:      repo,
		Logger:    testLogger(),
		Opts:      Options{UseAI: false},
		Pause:     time.Nanosecond,
	})
}

func TestRegenerateAllHappyPath(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedChart(7, testChart()...)
	seedPurchases(repo, 7, 3)

	report, err := newBatch(repo).RegenerateAll(context.Background(), 7)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, report.RunID)
	require.Equal(t, 3, report.Total)
	require.Equal(t, 3, report.Regenerated)
	require.Zero(t, report.Errors)
	require.Empty(t, report.Messages)

	for id := int64(1); id <= 3; id++ {
		key := refKey(documents.Ref{ID: id, Kind: documents.KindPurchase})
		require.Len(t, repo.entries[key], 3)
		require.Equal(t, documents.StatusPosted, repo.statuses[key])
	}
	require.Equal(t, 1, repo.syncCalls)
}

func TestRegenerateAllIsolatesFailingDocument(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedChart(7, testChart()...)
	seedPurchases(repo, 7, 3)
	repo.failDelete[2] = errors.New("deadlock detected")

	report, err := newBatch(repo).RegenerateAll(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 3, report.Total)
	require.Equal(t, 2, report.Regenerated)
	require.Equal(t, 1, report.Errors)
	require.Len(t, report.Messages, 1)
	require.True(t, strings.HasPrefix(report.Messages[0], "FAC-002: "))

	require.Len(t, repo.entries[refKey(documents.Ref{ID: 1, Kind: documents.KindPurchase})], 3)
	require.Empty(t, repo.entries[refKey(documents.Ref{ID: 2, Kind: documents.KindPurchase})])
	require.Len(t, repo.entries[refKey(documents.Ref{ID: 3, Kind: documents.KindPurchase})], 3)
}

func TestRegenerateAllCapsMessages(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedChart(7, testChart()...)
	seedPurchases(repo, 7, 13)
	for id := int64(1); id <= 12; id++ {
		repo.failDelete[id] = errors.New("deadlock detected")
	}

	report, err := newBatch(repo).RegenerateAll(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 13, report.Total)
	require.Equal(t, 1, report.Regenerated)
	require.Equal(t, 12, report.Errors)
	require.Len(t, report.Messages, 10)
}

func TestRegenerateAllEmptyChart(t *testing.T) {
	repo := newMemoryRepo()
	seedPurchases(repo, 7, 2)

	report, err := newBatch(repo).RegenerateAll(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 2, report.Total)
	require.Zero(t, report.Regenerated)
	require.Equal(t, 2, report.Errors)
	for _, message := range report.Messages {
		require.Contains(t, message, ErrNoEntries.Error())
	}
}

func TestRegenerateAllNoDocuments(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedChart(7, testChart()...)

	report, err := newBatch(repo).RegenerateAll(context.Background(), 7)
	require.NoError(t, err)
	require.Zero(t, report.Total)
	require.Zero(t, report.Regenerated)
	require.Zero(t, report.Errors)
}

func TestRegenerateAllStopsOnContextCancel(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedChart(7, testChart()...)
	seedPurchases(repo, 7, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := NewBatchController(BatchConfig{
		Charts:    memoryCharts{repo: repo},
		Generator: NewGenerator(nil, testLogger()),
		Coord:     NewCoordinator(repo, nil),
		Repo:      repo,
		Logger:    testLogger(),
		Opts:      Options{UseAI: false},
		Pause:     time.Hour,
	})
	_, err := batch.RegenerateAll(ctx, 7)
	require.ErrorIs(t, err, context.Canceled)
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeTenantLister struct {
	ids []int64
	err error
}

func (f fakeTenantLister) ListTenants(ctx context.Context) ([]int64, error) {
	return f.ids, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRegeneratePostingsTask(t *testing.T) {
	task, err := NewRegeneratePostingsTask(RegeneratePostingsPayload{TenantID: 7})
	require.NoError(t, err)
	require.Equal(t, TaskTypeRegeneratePostings, task.Type())

	var payload RegeneratePostingsPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(7), payload.TenantID)
}

func TestRegenerateSweepEnqueuesEveryTenant(t *testing.T) {
	var enqueued []int64
	handler := NewRegenerateSweepHandler(fakeTenantLister{ids: []int64{7, 8, 9}}, func(tenantID int64) (string, error) {
		enqueued = append(enqueued, tenantID)
		return "task", nil
	}, discardLogger())

	require.NoError(t, handler(context.Background(), NewRegenerateSweepTask()))
	require.Equal(t, []int64{7, 8, 9}, enqueued)
}

func TestRegenerateSweepContinuesPastEnqueueFailure(t *testing.T) {
	var enqueued []int64
	handler := NewRegenerateSweepHandler(fakeTenantLister{ids: []int64{7, 8, 9}}, func(tenantID int64) (string, error) {
		if tenantID == 8 {
			return "", errors.New("redis gone")
		}
		enqueued = append(enqueued, tenantID)
		return "task", nil
	}, discardLogger())

	err := handler(context.Background(), NewRegenerateSweepTask())
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 3")
	require.Equal(t, []int64{7, 9}, enqueued)
}

func TestRegenerateSweepListFailureAborts(t *testing.T) {
	listErr := errors.New("connection refused")
	handler := NewRegenerateSweepHandler(fakeTenantLister{err: listErr}, func(int64) (string, error) {
		t.Fatal("enqueue must not be called")
		return "", nil
	}, discardLogger())

	require.ErrorIs(t, handler(context.Background(), NewRegenerateSweepTask()), listErr)
}

package jobs

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func workerConfig(cron []CronRegistration) WorkerConfig {
	return WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:6379"},
		Logger:    discardLogger(),
		Handlers: []TaskHandler{
			{Type: TaskTypeRegenerateSweep, Handler: func(ctx context.Context, t *asynq.Task) error { return nil }},
		},
		Cron: cron,
	}
}

func TestNewWorkerRegistersCron(t *testing.T) {
	worker, err := NewWorker(workerConfig([]CronRegistration{
		{Spec: "0 2 * * *", Task: NewRegenerateSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
	}))
	require.NoError(t, err)
	require.NotNil(t, worker.scheduler)
}

func TestNewWorkerRejectsInvalidCronSpec(t *testing.T) {
	_, err := NewWorker(workerConfig([]CronRegistration{
		{Spec: "every night", Task: NewRegenerateSweepTask()},
	}))
	require.Error(t, err)
}

func TestNewWorkerWithoutCronSkipsScheduler(t *testing.T) {
	worker, err := NewWorker(workerConfig(nil))
	require.NoError(t, err)
	require.Nil(t, worker.scheduler)
}

func TestNewWorkerSkipsEmptyCronEntries(t *testing.T) {
	worker, err := NewWorker(workerConfig([]CronRegistration{
		{Spec: "", Task: NewRegenerateSweepTask()},
		{Spec: "0 2 * * *", Task: nil},
	}))
	require.NoError(t, err)
	require.NotNil(t, worker.scheduler)
}

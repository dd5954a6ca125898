package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/internal/transfer"
	"github.com/rs/zerolog/log"
)

// Enqueuer is the part of *asynq.Client the dispatcher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher hands processing queue items to the worker through asynq.
// Retries are tracked on the queue item, so asynq never retries a post.
type Dispatcher struct {
	client  Enqueuer
	timeout time.Duration
}

func NewDispatcher(client Enqueuer) *Dispatcher {
	return &Dispatcher{client: client, timeout: config.PostTaskTimeout}
}

func (d *Dispatcher) DispatchPost(ctx context.Context, tenantKey string, itemID int64) error {
	payload, err := json.Marshal(transfer.PostTaskPayload{TenantKey: tenantKey, QueueItemID: itemID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePost, payload)
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(0),
		asynq.Timeout(d.timeout),
	)
	if err != nil {
		return err
	}

	log.Info().Str("task_id", info.ID).Str("tenant", tenantKey).Int64("item_id", itemID).Msg("post task enqueued")
	return nil
}

// EnqueueBackfill schedules a backfill run and returns its run id.
func EnqueueBackfill(ctx context.Context, client Enqueuer, tenantKey string, req transfer.BackfillRequest) (string, error) {
	payload := transfer.BackfillTaskPayload{
		RunID:     uuid.NewString(),
		TenantKey: tenantKey,
		Request:   req,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TaskTypeBackfill, data)
	if _, err := client.EnqueueContext(ctx, task,
		asynq.TaskID(payload.RunID),
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Hour),
	); err != nil {
		return "", err
	}

	log.Info().Str("run_id", payload.RunID).Str("tenant", tenantKey).Msg("backfill task enqueued")
	return payload.RunID, nil
}

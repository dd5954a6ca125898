package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/backfill"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/transfer"
	"github.com/rs/zerolog/log"
)

// Mux routes the worker's task types.
func (q *Queue) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePost, q.HandlePostTask)
	mux.HandleFunc(TaskTypeBackfill, q.HandleBackfillTask)
	return mux
}

func (q *Queue) HandlePostTask(ctx context.Context, task *asynq.Task) error {
	var payload transfer.PostTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode post payload: %v: %w", err, asynq.SkipRetry)
	}

	err := q.PublishItem(ctx, payload.TenantKey, payload.QueueItemID)
	if err == nil {
		return nil
	}
	if serr := q.settle(ctx, payload, err); serr != nil {
		log.Error().Err(serr).Int64("item_id", payload.QueueItemID).Msg("error recording post failure")
		return fmt.Errorf("%w: %w", serr, asynq.SkipRetry)
	}
	return nil
}

// PublishItem posts one processing queue item and moves it to history.
func (q *Queue) PublishItem(ctx context.Context, tenantKey string, itemID int64) error {
	item, err := q.items.GetByID(ctx, tenantKey, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		log.Warn().Str("tenant", tenantKey).Int64("item_id", itemID).Msg("queue item gone before posting")
		return nil
	}
	if item.Status != models.QueueStatusProcessing {
		log.Warn().Int64("item_id", itemID).Str("status", string(item.Status)).Msg("queue item not processing, skipping")
		return nil
	}

	li, err := q.library.GetByID(ctx, tenantKey, item.LibraryItemID)
	if err != nil {
		return err
	}
	if li == nil {
		return q.qs.Complete(ctx, tenantKey, itemID, models.OutcomeSkipped, "", "library item removed")
	}

	mediaURL := q.store.PublicURL(li.Location)
	if mediaURL == "" {
		return apperrors.New(apperrors.ErrConfiguration, "publish", errors.New("object store has no public url, posting needs r2 storage"))
	}

	cred, err := q.creds.Resolve(ctx, tenantKey)
	if err != nil {
		return err
	}

	postID, err := q.ig.Publish(ctx, cred.AccessToken, cred.AccountID, mediaURL, li.MimeType, li.Caption)
	if err != nil {
		return err
	}
	if err := q.qs.Complete(ctx, tenantKey, itemID, models.OutcomePosted, postID, ""); err != nil {
		return &publishedError{postID: postID, err: err}
	}
	return nil
}

// publishedError is a failure after Instagram accepted the post. The item
// must never be published again.
type publishedError struct {
	postID string
	err    error
}

func (e *publishedError) Error() string {
	return fmt.Sprintf("published as %s but not recorded: %v", e.postID, e.err)
}

func (e *publishedError) Unwrap() error { return e.err }

// settle maps a posting failure onto the queue item's state machine.
func (q *Queue) settle(ctx context.Context, p transfer.PostTaskPayload, cause error) error {
	log.Error().Err(cause).Str("tenant", p.TenantKey).Int64("item_id", p.QueueItemID).
		Str("kind", string(apperrors.KindOf(cause))).Msg("post failed")

	var published *publishedError
	switch {
	case errors.As(cause, &published):
		log.Error().Str("post_id", published.postID).Int64("item_id", p.QueueItemID).Msg("posted item left unrecorded, failing it")
		return q.qs.MarkFailed(ctx, p.TenantKey, p.QueueItemID, cause)
	case apperrors.IsEscalated(cause):
		return q.qs.MarkFailed(ctx, p.TenantKey, p.QueueItemID, cause)
	case errors.Is(cause, apperrors.ErrContentNotFound), errors.Is(cause, apperrors.ErrUnsupportedMedia):
		return q.qs.Complete(ctx, p.TenantKey, p.QueueItemID, models.OutcomeRejected, "", cause.Error())
	default:
		_, err := q.qs.ScheduleRetry(ctx, p.TenantKey, p.QueueItemID, cause, 0)
		return err
	}
}

func (q *Queue) HandleBackfillTask(ctx context.Context, task *asynq.Task) error {
	var payload transfer.BackfillTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode backfill payload: %v: %w", err, asynq.SkipRetry)
	}

	opts, err := BackfillOptions(payload.TenantKey, payload.Request)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	res, err := q.backfill.Run(ctx, opts)
	if res != nil {
		log.Info().Str("task_run_id", payload.RunID).Str("run_id", res.RunID).Int("downloaded", res.Downloaded).
			Int("failed", res.Failed).Msg("backfill task done")
	}
	if err != nil {
		if apperrors.IsEscalated(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func BackfillOptions(tenantKey string, req transfer.BackfillRequest) (backfill.Options, error) {
	sel, err := backfill.ParseMediaSelection(req.MediaTypes)
	if err != nil {
		return backfill.Options{}, err
	}
	if req.Limit < 0 {
		return backfill.Options{}, fmt.Errorf("limit %d must not be negative", req.Limit)
	}
	return backfill.Options{
		TenantKey:  tenantKey,
		Limit:      req.Limit,
		Since:      req.Since,
		MediaTypes: sel,
		DryRun:     req.DryRun,
		Category:   req.Category,
	}, nil
}

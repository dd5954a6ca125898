package service

import (
	"context"
	"fmt"
	"time"

	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/locker"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/repository"
	"github.com/maheshrc27/reshare/internal/scheduler"
	"github.com/rs/zerolog/log"
)

// Dispatcher hands a queue item that is now processing to the posting worker.
type Dispatcher interface {
	DispatchPost(ctx context.Context, tenantKey string, itemID int64) error
}

type QueueService interface {
	GetPending(ctx context.Context, tenantKey string, limit int) ([]*models.QueueItem, error)
	List(ctx context.Context, tenantKey string) ([]*models.QueueItem, error)
	Enqueue(ctx context.Context, tenantKey string, libraryItemIDs []int64) ([]*models.QueueItem, error)
	ScheduleRetry(ctx context.Context, tenantKey string, itemID int64, cause error, delay time.Duration) (*models.QueueItem, error)
	ForcePost(ctx context.Context, tenantKey string, itemID int64) (*scheduler.ShiftPlan, error)
	Complete(ctx context.Context, tenantKey string, itemID int64, outcome models.Outcome, externalPostID, detail string) error
	MarkFailed(ctx context.Context, tenantKey string, itemID int64, cause error) error
	DeleteAllPending(ctx context.Context, tenantKey string) (int64, error)
	RescheduleOverdue(ctx context.Context, tenantKey string) (int, error)
	DispatchDue(ctx context.Context, tenantKey string) (int, error)
	RemainingCapacity(ctx context.Context, tenantKey string) (int, error)
}

type queueService struct {
	cfg      config.Queue
	queue    repository.QueueRepository
	history  repository.HistoryRepository
	library  repository.LibraryRepository
	tenants  repository.TenantRepository
	locks    locker.Locker
	dispatch Dispatcher
	now      func() time.Time
}

func NewQueueService(
	cfg config.Queue,
	queue repository.QueueRepository,
	history repository.HistoryRepository,
	library repository.LibraryRepository,
	tenants repository.TenantRepository,
	locks locker.Locker,
	dispatch Dispatcher,
) QueueService {
	return &queueService{
		cfg:      cfg,
		queue:    queue,
		history:  history,
		library:  library,
		tenants:  tenants,
		locks:    locks,
		dispatch: dispatch,
		now:      time.Now,
	}
}

func (s *queueService) GetPending(ctx context.Context, tenantKey string, limit int) ([]*models.QueueItem, error) {
	return s.queue.GetPending(ctx, tenantKey, s.now(), limit)
}

func (s *queueService) List(ctx context.Context, tenantKey string) ([]*models.QueueItem, error) {
	return s.queue.ListByTenant(ctx, tenantKey)
}

func (s *queueService) loadItem(ctx context.Context, tenantKey string, itemID int64) (*models.QueueItem, error) {
	item, err := s.queue.GetByID(ctx, tenantKey, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "load queue item", fmt.Errorf("item %d", itemID))
	}
	return item, nil
}

func (s *queueService) settings(ctx context.Context, tenantKey string) (*models.TenantSettings, error) {
	settings, err := s.tenants.Get(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return models.DefaultTenantSettings(tenantKey), nil
	}
	return settings, nil
}

// Enqueue schedules library items into the next free daily slots after the
// tenant's last scheduled item.
func (s *queueService) Enqueue(ctx context.Context, tenantKey string, libraryItemIDs []int64) ([]*models.QueueItem, error) {
	if len(libraryItemIDs) == 0 {
		return nil, nil
	}

	release, err := s.locks.Acquire(ctx, locker.TenantKey(tenantKey))
	if err != nil {
		return nil, err
	}
	defer release()

	settings, err := s.settings(ctx, tenantKey)
	if err != nil {
		return nil, err
	}

	from := s.now()
	last, err := s.queue.LastScheduled(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	if last != nil && last.After(from) {
		from = *last
	}

	slots := scheduler.NextSlots(from, settings, len(libraryItemIDs))
	items := make([]*models.QueueItem, 0, len(libraryItemIDs))
	for i, libraryID := range libraryItemIDs {
		li, err := s.library.GetByID(ctx, tenantKey, libraryID)
		if err != nil {
			return items, err
		}
		if li == nil {
			return items, apperrors.New(apperrors.ErrNotFound, "enqueue", fmt.Errorf("library item %d", libraryID))
		}

		item := &models.QueueItem{
			TenantKey:     tenantKey,
			LibraryItemID: libraryID,
			ScheduledFor:  slots[i],
			Status:        models.QueueStatusPending,
			MaxRetries:    s.cfg.MaxRetries,
		}
		id, err := s.queue.Create(ctx, nil, item)
		if err != nil {
			return items, err
		}
		item.ID = id
		items = append(items, item)
	}

	log.Info().Str("tenant", tenantKey).Int("count", len(items)).Msg("enqueued library items")
	return items, nil
}

// ScheduleRetry records a failed attempt. A zero delay uses exponential
// backoff. On exhaustion the row stays failed for an operator and a failed
// history record is appended.
func (s *queueService) ScheduleRetry(ctx context.Context, tenantKey string, itemID int64, cause error, delay time.Duration) (*models.QueueItem, error) {
	item, err := s.loadItem(ctx, tenantKey, itemID)
	if err != nil {
		return nil, err
	}

	if delay <= 0 {
		delay = scheduler.Backoff(item.RetryCount+1, s.cfg.RetryBaseDelay)
	}

	now := s.now()
	prev := item.RetryCount
	if err := scheduler.ApplyRetry(item, errorText(cause), delay, now); err != nil {
		return nil, err
	}
	if err := s.queue.SaveRetryState(ctx, item, prev); err != nil {
		return nil, err
	}

	if item.Status == models.QueueStatusFailed {
		log.Warn().Str("tenant", tenantKey).Int64("item_id", itemID).Int("retries", item.RetryCount).
			Str("error", item.LastError).Msg("retries exhausted")
		if err := s.appendHistory(ctx, item, models.OutcomeFailed, now); err != nil {
			log.Warn().Err(err).Int64("item_id", itemID).Msg("history not recorded")
		}
	}
	return item, nil
}

// appendHistory returns the error so callers can choose to ignore it.
func (s *queueService) appendHistory(ctx context.Context, item *models.QueueItem, outcome models.Outcome, at time.Time) error {
	_, err := s.history.Create(ctx, nil, models.NewHistoryRecord(item, outcome, at))
	return err
}

// ForcePost posts itemID now and shifts the rest of the tenant's queue
// forward by one slot.
func (s *queueService) ForcePost(ctx context.Context, tenantKey string, itemID int64) (*scheduler.ShiftPlan, error) {
	release, err := s.locks.Acquire(ctx, locker.TenantKey(tenantKey))
	if err != nil {
		return nil, err
	}
	defer release()

	remaining, err := s.RemainingCapacity(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	if remaining == 0 {
		return nil, apperrors.New(apperrors.ErrRateLimited, "force post", fmt.Errorf("%d posts in %s", s.cfg.PostsPerWindow, s.cfg.RateWindow))
	}

	plan, err := s.queue.ShiftSlotsForward(ctx, tenantKey, itemID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("tenant", tenantKey).Int64("item_id", itemID).Int("shifted", plan.Shifted).
		Time("discarded", plan.Discarded).Msg("force post")

	if err := s.dispatch.DispatchPost(ctx, tenantKey, itemID); err != nil {
		log.Error().Err(err).Int64("item_id", itemID).Msg("dispatch forced item")
		if _, rerr := s.ScheduleRetry(ctx, tenantKey, itemID, err, 0); rerr != nil {
			return plan, rerr
		}
		return plan, err
	}
	return plan, nil
}

// Complete moves a finished item out of the queue into history.
func (s *queueService) Complete(ctx context.Context, tenantKey string, itemID int64, outcome models.Outcome, externalPostID, detail string) error {
	if outcome == models.OutcomeFailed {
		return s.MarkFailed(ctx, tenantKey, itemID, fmt.Errorf("%s", detail))
	}

	item, err := s.loadItem(ctx, tenantKey, itemID)
	if err != nil {
		return err
	}
	if outcome == models.OutcomePosted && item.Status != models.QueueStatusProcessing {
		return apperrors.New(apperrors.ErrInvalidTransition, "complete", fmt.Errorf("%s -> posted", item.Status))
	}
	if item.Status == models.QueueStatusFailed {
		return apperrors.New(apperrors.ErrInvalidTransition, "complete", fmt.Errorf("failed -> %s", outcome))
	}

	record := models.NewHistoryRecord(item, outcome, s.now())
	record.ExternalPostID = externalPostID
	if detail != "" {
		record.ErrorMessage = detail
	}

	if _, err := s.queue.Resolve(ctx, item, record); err != nil {
		return err
	}
	log.Info().Str("tenant", tenantKey).Int64("item_id", itemID).Str("outcome", string(outcome)).Msg("queue item resolved")
	return nil
}

// MarkFailed fails an item without retrying, for errors that need a user.
func (s *queueService) MarkFailed(ctx context.Context, tenantKey string, itemID int64, cause error) error {
	item, err := s.loadItem(ctx, tenantKey, itemID)
	if err != nil {
		return err
	}
	if err := scheduler.Transition(item.Status, models.QueueStatusFailed); err != nil {
		return err
	}

	item.Status = models.QueueStatusFailed
	item.LastError = errorText(cause)
	item.NextRetryAt = nil
	if err := s.queue.MarkFailed(ctx, tenantKey, itemID, item.LastError); err != nil {
		return err
	}

	log.Warn().Str("tenant", tenantKey).Int64("item_id", itemID).Str("error", item.LastError).Msg("queue item failed")
	if err := s.appendHistory(ctx, item, models.OutcomeFailed, s.now()); err != nil {
		log.Warn().Err(err).Int64("item_id", itemID).Msg("history not recorded")
	}
	return nil
}

func (s *queueService) DeleteAllPending(ctx context.Context, tenantKey string) (int64, error) {
	release, err := s.locks.Acquire(ctx, locker.TenantKey(tenantKey))
	if err != nil {
		return 0, err
	}
	defer release()

	return s.queue.DeleteAllPending(ctx, tenantKey)
}

// RescheduleOverdue bumps a paused tenant's overdue items by OverdueDelta.
// It runs at most once per delta within a pause cycle.
func (s *queueService) RescheduleOverdue(ctx context.Context, tenantKey string) (int, error) {
	settings, err := s.settings(ctx, tenantKey)
	if err != nil {
		return 0, err
	}
	now := s.now()
	if !overdueSweepDue(settings, now, s.cfg.OverdueDelta) {
		return 0, nil
	}

	release, err := s.locks.Acquire(ctx, locker.TenantKey(tenantKey))
	if err != nil {
		return 0, err
	}
	defer release()

	items, err := s.queue.GetOverduePending(ctx, tenantKey, now)
	if err != nil {
		return 0, err
	}
	if len(items) > 0 {
		if err := s.queue.RescheduleItems(ctx, tenantKey, scheduler.OverdueShift(items, s.cfg.OverdueDelta)); err != nil {
			return 0, err
		}
		log.Info().Str("tenant", tenantKey).Int("count", len(items)).Dur("delta", s.cfg.OverdueDelta).Msg("rescheduled overdue items")
	}

	if err := s.tenants.MarkOverdueSwept(ctx, tenantKey, now); err != nil {
		return len(items), err
	}
	return len(items), nil
}

func overdueSweepDue(settings *models.TenantSettings, now time.Time, delta time.Duration) bool {
	if !settings.Paused {
		return false
	}
	last := settings.LastOverdueSweepAt
	if last == nil {
		return true
	}
	if settings.PausedAt != nil && last.Before(*settings.PausedAt) {
		return true
	}
	return now.Sub(*last) >= delta
}

// DispatchDue promotes due retries and hands due pending items to the
// worker, up to the remaining rate-limit capacity.
func (s *queueService) DispatchDue(ctx context.Context, tenantKey string) (int, error) {
	release, err := s.locks.Acquire(ctx, locker.TenantKey(tenantKey))
	if err != nil {
		return 0, err
	}
	defer release()

	now := s.now()
	if err := s.recoverStale(ctx, tenantKey, now); err != nil {
		return 0, err
	}
	if _, err := s.queue.PromoteRetries(ctx, tenantKey, now); err != nil {
		return 0, err
	}

	remaining, err := s.RemainingCapacity(ctx, tenantKey)
	if err != nil {
		return 0, err
	}
	if remaining == 0 {
		return 0, apperrors.New(apperrors.ErrRateLimited, "dispatch due", fmt.Errorf("%d posts in %s", s.cfg.PostsPerWindow, s.cfg.RateWindow))
	}

	items, err := s.queue.GetPending(ctx, tenantKey, now, remaining)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, item := range items {
		ok, err := s.queue.MarkProcessing(ctx, tenantKey, item.ID)
		if err != nil {
			return dispatched, err
		}
		if !ok {
			continue
		}

		if err := s.dispatch.DispatchPost(ctx, tenantKey, item.ID); err != nil {
			log.Error().Err(err).Int64("item_id", item.ID).Msg("dispatch")
			if _, rerr := s.ScheduleRetry(ctx, tenantKey, item.ID, err, 0); rerr != nil {
				log.Error().Err(rerr).Int64("item_id", item.ID).Msg("schedule retry after dispatch")
			}
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// recoverStale sends items whose post task was lost, by a worker crash or an
// unrecorded failure, back through the retry path.
func (s *queueService) recoverStale(ctx context.Context, tenantKey string, now time.Time) error {
	items, err := s.queue.GetStaleProcessing(ctx, tenantKey, now.Add(-s.cfg.ProcessingTimeout))
	if err != nil {
		return err
	}
	for _, item := range items {
		cause := fmt.Errorf("processing timed out after %s", s.cfg.ProcessingTimeout)
		if _, err := s.ScheduleRetry(ctx, tenantKey, item.ID, cause, 0); err != nil {
			log.Error().Err(err).Int64("item_id", item.ID).Msg("recover stale item")
			continue
		}
		log.Warn().Str("tenant", tenantKey).Int64("item_id", item.ID).Time("since", item.UpdatedAt).Msg("stale processing item sent to retry")
	}
	return nil
}

// RemainingCapacity is the number of posts still allowed in the trailing
// rate window.
func (s *queueService) RemainingCapacity(ctx context.Context, tenantKey string) (int, error) {
	posted, err := s.history.CountSince(ctx, tenantKey, models.OutcomePosted, s.now().Add(-s.cfg.RateWindow))
	if err != nil {
		return 0, err
	}
	return max(s.cfg.PostsPerWindow-posted, 0), nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

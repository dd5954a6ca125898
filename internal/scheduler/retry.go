package scheduler

import (
	"fmt"
	"time"

	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
)

const maxBackoff = time.Hour

var transitions = map[models.QueueStatus][]models.QueueStatus{
	models.QueueStatusPending:    {models.QueueStatusProcessing, models.QueueStatusRetrying, models.QueueStatusFailed},
	models.QueueStatusProcessing: {models.QueueStatusRetrying, models.QueueStatusFailed},
	models.QueueStatusRetrying:   {models.QueueStatusPending, models.QueueStatusRetrying, models.QueueStatusFailed},
}

// Transition validates a status change. Nothing leaves failed, and a waiting
// retry may fail again before it is promoted.
func Transition(from, to models.QueueStatus) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return apperrors.New(apperrors.ErrInvalidTransition, "transition", fmt.Errorf("%s -> %s", from, to))
}

// ApplyRetry records a failed attempt on item. Once RetryCount reaches
// MaxRetries the item is failed for good.
func ApplyRetry(item *models.QueueItem, errMsg string, delay time.Duration, now time.Time) error {
	next := models.QueueStatusRetrying
	if item.RetryCount+1 >= item.MaxRetries {
		next = models.QueueStatusFailed
	}
	if err := Transition(item.Status, next); err != nil {
		return err
	}

	item.RetryCount++
	item.LastError = errMsg
	item.Status = next
	item.UpdatedAt = now
	if next == models.QueueStatusRetrying {
		at := now.Add(delay)
		item.NextRetryAt = &at
	} else {
		item.NextRetryAt = nil
	}
	return nil
}

// Backoff returns base * 2^(attempt-1), capped at one hour.
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

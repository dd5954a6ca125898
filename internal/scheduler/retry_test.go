package scheduler

import (
	"testing"
	"time"

	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRetry_ExhaustsToFailed(t *testing.T) {
	now := at(12)

	for maxRetries := 1; maxRetries <= 5; maxRetries++ {
		item := &models.QueueItem{ID: 1, Status: models.QueueStatusProcessing, MaxRetries: maxRetries}

		for i := 0; i < maxRetries; i++ {
			require.NoError(t, ApplyRetry(item, "timeout", time.Minute, now))
			if item.Status == models.QueueStatusRetrying {
				assert.Less(t, item.RetryCount, item.MaxRetries)
			}
		}

		assert.Equal(t, models.QueueStatusFailed, item.Status, "max_retries=%d", maxRetries)
		assert.Equal(t, maxRetries, item.RetryCount)
		assert.Nil(t, item.NextRetryAt)

		err := ApplyRetry(item, "again", time.Minute, now)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
		assert.Equal(t, models.QueueStatusFailed, item.Status)
		assert.Equal(t, maxRetries, item.RetryCount)
	}
}

func TestApplyRetry_SetsNextRetryAt(t *testing.T) {
	now := at(12)
	item := &models.QueueItem{ID: 1, Status: models.QueueStatusPending, MaxRetries: 3}

	require.NoError(t, ApplyRetry(item, "503 from graph api", 5*time.Minute, now))
	assert.Equal(t, models.QueueStatusRetrying, item.Status)
	assert.Equal(t, 1, item.RetryCount)
	assert.Equal(t, "503 from graph api", item.LastError)
	require.NotNil(t, item.NextRetryAt)
	assert.True(t, now.Add(5*time.Minute).Equal(*item.NextRetryAt))
}

func TestTransition(t *testing.T) {
	ok := [][2]models.QueueStatus{
		{models.QueueStatusPending, models.QueueStatusProcessing},
		{models.QueueStatusPending, models.QueueStatusRetrying},
		{models.QueueStatusProcessing, models.QueueStatusFailed},
		{models.QueueStatusRetrying, models.QueueStatusPending},
		{models.QueueStatusRetrying, models.QueueStatusFailed},
	}
	for _, tr := range ok {
		assert.NoError(t, Transition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	bad := [][2]models.QueueStatus{
		{models.QueueStatusFailed, models.QueueStatusPending},
		{models.QueueStatusFailed, models.QueueStatusRetrying},
		{models.QueueStatusFailed, models.QueueStatusProcessing},
		{models.QueueStatusProcessing, models.QueueStatusPending},
	}
	for _, tr := range bad {
		assert.ErrorIs(t, Transition(tr[0], tr[1]), apperrors.ErrInvalidTransition, "%s -> %s", tr[0], tr[1])
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, Backoff(0, time.Minute))
	assert.Equal(t, time.Minute, Backoff(1, time.Minute))
	assert.Equal(t, 2*time.Minute, Backoff(2, time.Minute))
	assert.Equal(t, 8*time.Minute, Backoff(4, time.Minute))
	assert.Equal(t, time.Hour, Backoff(10, time.Minute))
	assert.Equal(t, time.Hour, Backoff(1, 2*time.Hour))
}

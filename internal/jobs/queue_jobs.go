package job

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/reshare/internal/apperrors"
	"github.com/maheshrc27/reshare/internal/locker"
	"github.com/maheshrc27/reshare/internal/models"
	"github.com/maheshrc27/reshare/internal/service"
	"github.com/rs/zerolog/log"
)

type TenantLister interface {
	ListByPaused(ctx context.Context, paused bool) ([]*models.TenantSettings, error)
}

// DispatchJob hands due items of every running tenant to the worker.
type DispatchJob struct {
	tenants TenantLister
	qs      service.QueueService
	timeout time.Duration
}

func NewDispatchJob(tenants TenantLister, qs service.QueueService) *DispatchJob {
	return &DispatchJob{tenants: tenants, qs: qs, timeout: time.Minute}
}

func (j *DispatchJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	tenants, err := j.tenants.ListByPaused(ctx, false)
	if err != nil {
		log.Error().Err(err).Msg("error listing running tenants")
		return
	}

	for _, t := range tenants {
		n, err := j.qs.DispatchDue(ctx, t.TenantKey)
		switch {
		case errors.Is(err, apperrors.ErrRateLimited):
			log.Info().Str("tenant", t.TenantKey).Msg("posting window exhausted")
		case errors.Is(err, locker.ErrLockHeld):
			log.Debug().Str("tenant", t.TenantKey).Msg("tenant busy, dispatch skipped")
		case err != nil:
			log.Error().Err(err).Str("tenant", t.TenantKey).Msg("dispatch failed")
		case n > 0:
			log.Info().Str("tenant", t.TenantKey).Int("dispatched", n).Msg("dispatched due items")
		}
	}
}

// OverdueSweepJob pushes the overdue items of paused tenants forward.
type OverdueSweepJob struct {
	tenants TenantLister
	qs      service.QueueService
	timeout time.Duration
}

func NewOverdueSweepJob(tenants TenantLister, qs service.QueueService) *OverdueSweepJob {
	return &OverdueSweepJob{tenants: tenants, qs: qs, timeout: time.Minute}
}

func (j *OverdueSweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	tenants, err := j.tenants.ListByPaused(ctx, true)
	if err != nil {
		log.Error().Err(err).Msg("error listing paused tenants")
		return
	}

	for _, t := range tenants {
		if _, err := j.qs.RescheduleOverdue(ctx, t.TenantKey); err != nil {
			log.Error().Err(err).Str("tenant", t.TenantKey).Msg("overdue sweep failed")
		}
	}
}

package job

import (
	"context"
	"time"

	"github.com/maheshrc27/reshare/internal/service"
	"github.com/rs/zerolog/log"
)

type TokenRefreshJob struct {
	ts      service.TokenService
	timeout time.Duration
}

func NewTokenRefreshJob(ts service.TokenService) *TokenRefreshJob {
	return &TokenRefreshJob{ts: ts, timeout: 5 * time.Minute}
}

// RefreshTokens refreshes every credential inside the refresh buffer.
func (j *TokenRefreshJob) RefreshTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	summary, err := j.ts.RefreshExpiring(ctx)
	if err != nil {
		log.Error().Err(err).Msg("token refresh sweep failed")
		return
	}
	if summary.Failed > 0 {
		log.Warn().Int("failed", summary.Failed).Int("refreshed", summary.Refreshed).Msg("some tokens were not refreshed")
	}
}

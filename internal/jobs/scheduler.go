package job

import (
	config "github.com/maheshrc27/reshare/configs"
	"github.com/robfig/cron/v3"
)

// NewCron registers the periodic jobs. The caller starts and stops it.
func NewCron(cfg config.Config, refresh *TokenRefreshJob, dispatch *DispatchJob, overdue *OverdueSweepJob) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(cfg.Tokens.RefreshSpec, refresh.RefreshTokens); err != nil {
		return nil, err
	}
	if _, err := c.AddJob(cfg.Queue.DispatchSpec, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(dispatch)); err != nil {
		return nil, err
	}
	if _, err := c.AddJob(cfg.Queue.OverdueSpec, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(overdue)); err != nil {
		return nil, err
	}
	return c, nil
}

package models

import "time"

type TenantSettings struct {
	TenantKey          string     `db:"tenant_key" json:"tenant_key"`
	Paused             bool       `db:"paused" json:"paused"`
	PausedAt           *time.Time `db:"paused_at" json:"paused_at,omitempty"`
	ActiveAccountID    *int64     `db:"active_account_id" json:"active_account_id,omitempty"`
	PostsPerDay        int        `db:"posts_per_day" json:"posts_per_day"`
	PostingHourStart   int        `db:"posting_hour_start" json:"posting_hour_start"`
	PostingHourEnd     int        `db:"posting_hour_end" json:"posting_hour_end"`
	Category           string     `db:"category" json:"category"`
	LastOverdueSweepAt *time.Time `db:"last_overdue_sweep_at" json:"last_overdue_sweep_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

func DefaultTenantSettings(tenantKey string) *TenantSettings {
	return &TenantSettings{
		TenantKey:        tenantKey,
		PostsPerDay:      3,
		PostingHourStart: 9,
		PostingHourEnd:   21,
	}
}

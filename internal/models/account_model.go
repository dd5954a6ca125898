package models

import (
	"time"
)

// Account is a connected Instagram account. Its tokens are stored as
// credentials under AccountScope(ID).
type Account struct {
	ID                int64     `db:"id" json:"id"`
	TenantKey         string    `db:"tenant_key" json:"tenant_key"`
	Platform          string    `db:"platform" json:"platform"`
	ExternalAccountID string    `db:"external_account_id" json:"external_account_id"`
	Username          string    `db:"username" json:"username"`
	Name              string    `db:"name" json:"name"`
	ProfilePicture    string    `db:"profile_picture_url" json:"profile_picture"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

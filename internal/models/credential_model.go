package models

import (
	"fmt"
	"time"
)

type CredentialType string

const (
	CredentialAccess         CredentialType = "access"
	CredentialRefresh        CredentialType = "refresh"
	CredentialServiceAccount CredentialType = "service_account"
)

const (
	ServiceInstagram = "instagram"
	ServiceGoogle    = "google"
)

// ScopeGlobal owns the legacy single-account credential.
const ScopeGlobal = "global"

func AccountScope(accountID int64) string {
	return fmt.Sprintf("account:%d", accountID)
}

func TenantScope(tenantKey string) string {
	return "tenant:" + tenantKey
}

// Credential holds an encrypted secret. At most one row exists per
// (service, type, owner_scope).
type Credential struct {
	ID              int64             `db:"id" json:"id"`
	Service         string            `db:"service" json:"service"`
	Type            CredentialType    `db:"credential_type" json:"credential_type"`
	OwnerScope      string            `db:"owner_scope" json:"owner_scope"`
	EncryptedValue  string            `db:"encrypted_value" json:"-"`
	IssuedAt        time.Time         `db:"issued_at" json:"issued_at"`
	ExpiresAt       *time.Time        `db:"expires_at" json:"expires_at,omitempty"`
	LastRefreshedAt *time.Time        `db:"last_refreshed_at" json:"last_refreshed_at,omitempty"`
	Scopes          []string          `db:"scopes" json:"scopes"`
	Metadata        map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

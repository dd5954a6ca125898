package models

import "time"

const (
	SourceInstagram = "instagram"
	SourceLocal     = "local"
	SourceDrive     = "google_drive"
)

// LibraryItem is unique per (tenant_key, source_type, external_id). For
// local and drive sources the external id is the content hash.
type LibraryItem struct {
	ID          int64      `db:"id" json:"id"`
	TenantKey   string     `db:"tenant_key" json:"tenant_key"`
	SourceType  string     `db:"source_type" json:"source_type"`
	ExternalID  string     `db:"external_id" json:"external_id"`
	ContentHash string     `db:"content_hash" json:"content_hash"`
	FileName    string     `db:"file_name" json:"file_name"`
	Location    string     `db:"location" json:"location"`
	MimeType    string     `db:"mime_type" json:"mime_type"`
	FileSize    int64      `db:"file_size" json:"file_size"`
	Category    string     `db:"category" json:"category"`
	Caption     string     `db:"caption" json:"caption,omitempty"`
	Permalink   string     `db:"permalink" json:"permalink,omitempty"`
	Attribution string     `db:"attribution" json:"attribution,omitempty"`
	TakenAt     *time.Time `db:"taken_at" json:"taken_at,omitempty"`
	TimesPosted int        `db:"times_posted" json:"times_posted"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

package transfer

import (
	"time"

	"github.com/maheshrc27/reshare/internal/models"
)

type BackfillRequest struct {
	Limit      int        `json:"limit"`
	Since      *time.Time `json:"since"`
	MediaTypes string     `json:"media_types"`
	DryRun     bool       `json:"dry_run"`
	Category   string     `json:"category"`
}

type BackfillTaskPayload struct {
	RunID     string          `json:"run_id"`
	TenantKey string          `json:"tenant_key"`
	Request   BackfillRequest `json:"request"`
}

type PostTaskPayload struct {
	TenantKey   string `json:"tenant_key"`
	QueueItemID int64  `json:"queue_item_id"`
}

type QueueResponse struct {
	Items []*models.QueueItem `json:"items"`
}

type ForcePostResponse struct {
	ItemID    int64     `json:"item_id"`
	Shifted   int       `json:"shifted"`
	Discarded time.Time `json:"discarded_slot"`
}

type CapacityResponse struct {
	Remaining int           `json:"remaining"`
	Window    time.Duration `json:"window"`
}

type EnqueueRequest struct {
	LibraryItemIDs []int64 `json:"library_item_ids"`
}

// SettingsUpdate carries the settings a tenant may change; nil fields are
// left as they are.
type SettingsUpdate struct {
	PostsPerDay      *int    `json:"posts_per_day"`
	PostingHourStart *int    `json:"posting_hour_start"`
	PostingHourEnd   *int    `json:"posting_hour_end"`
	Category         *string `json:"category"`
}

func (u SettingsUpdate) Apply(s *models.TenantSettings) {
	if u.PostsPerDay != nil {
		s.PostsPerDay = *u.PostsPerDay
	}
	if u.PostingHourStart != nil {
		s.PostingHourStart = *u.PostingHourStart
	}
	if u.PostingHourEnd != nil {
		s.PostingHourEnd = *u.PostingHourEnd
	}
	if u.Category != nil {
		s.Category = *u.Category
	}
}

type IndexRequest struct {
	Source string `json:"source"`
}

package transfer

import (
	"strings"
	"time"
)

const (
	MediaTypeImage    = "IMAGE"
	MediaTypeVideo    = "VIDEO"
	MediaTypeCarousel = "CAROUSEL_ALBUM"
)

type InstagramToken struct {
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type InstagramUserInfo struct {
	UserID         string `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture_url"`
}

// InstagramMedia is one entry of the /media, /stories or /children edges.
type InstagramMedia struct {
	ID        string `json:"id"`
	MediaType string `json:"media_type"`
	MediaURL  string `json:"media_url"`
	Caption   string `json:"caption"`
	Permalink string `json:"permalink"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// TakenAt parses the Graph API timestamp, e.g. 2024-03-01T10:00:00+0000.
func (m *InstagramMedia) TakenAt() (time.Time, bool) {
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if t, err := time.Parse(layout, m.Timestamp); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (m *InstagramMedia) IsCarousel() bool {
	return strings.EqualFold(m.MediaType, MediaTypeCarousel)
}

// InheritFrom fills caption, permalink, username and timestamp from parent
// where m has none of its own.
func (m *InstagramMedia) InheritFrom(parent *InstagramMedia) {
	if m.Caption == "" {
		m.Caption = parent.Caption
	}
	if m.Permalink == "" {
		m.Permalink = parent.Permalink
	}
	if m.Username == "" {
		m.Username = parent.Username
	}
	if m.Timestamp == "" {
		m.Timestamp = parent.Timestamp
	}
}

type InstagramPaging struct {
	Cursors struct {
		Before string `json:"before"`
		After  string `json:"after"`
	} `json:"cursors"`
	Next string `json:"next"`
}

type InstagramMediaPage struct {
	Data   []InstagramMedia `json:"data"`
	Paging InstagramPaging  `json:"paging"`
}

// NextCursor returns the after cursor when another page exists.
func (p *InstagramMediaPage) NextCursor() (string, bool) {
	after := p.Paging.Cursors.After
	return after, after != "" && p.Paging.Next != ""
}

type InstagramErrorResponse struct {
	Error struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		IsTransient    bool   `json:"is_transient"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		FbtraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}

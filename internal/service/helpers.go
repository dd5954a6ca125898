package service

import (
	"time"
)

// expiresAt turns an OAuth expires_in value into a deadline. Zero means the
// provider did not say, which Instagram uses for the 60 day long-lived token.
func expiresAt(now time.Time, expiresIn int64) time.Time {
	if expiresIn <= 0 {
		return now.Add(60 * 24 * time.Hour)
	}
	return now.Add(time.Duration(expiresIn) * time.Second)
}

package player

import (
	"time"

	"github.com/ashspire/songbot/internal/trackid"
)

// Item is a queueable song: a resolved track plus the bookkeeping needed to
// render it in a queue listing and enforce per-user limits.
type Item struct {
	TrackID  trackid.TrackId
	Duration time.Duration
	User     *string
	AddedAt  time.Time
}

// RequestedBy reports whether user requested this item, tolerating a nil
// User (fallback/theme items have none).
func (i Item) RequestedBy(user string) bool {
	return i.User != nil && *i.User == user
}

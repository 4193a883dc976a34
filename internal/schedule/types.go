package schedule

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no item has the requested id.
	ErrNotFound = errors.New("schedule: item not found")

	// ErrConflict is returned for mutations of a non-pending item. Delivered
	// history is immutable; retrying an edit against it is a caller bug.
	ErrConflict = errors.New("schedule: item is not pending")

	// ErrCorrupt is returned when the persisted store exists but cannot be
	// parsed. It is deliberately fatal: fabricating an empty store over
	// genuine corruption would silently drop queued posts.
	ErrCorrupt = errors.New("schedule: store is corrupt")
)

// Status is the delivery state of an item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPosted    Status = "posted"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further delivery attempts will happen.
func (s Status) Terminal() bool {
	return s == StatusPosted || s == StatusFailed || s == StatusCancelled
}

// Item is one queued post.
//
// ScheduledAt is always UTC; Timezone is only a display hint recorded at
// creation time. RemoteID/RemoteURL are set once the post landed.
type Item struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Timezone    string    `json:"tz,omitempty"`
	Status      Status    `json:"status"`
	RetryCount  int       `json:"retry_count"`
	LastError   string    `json:"last_error,omitempty"`
	RemoteID    string    `json:"remote_id,omitempty"`
	RemoteURL   string    `json:"remote_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Patch is a partial update applied to a pending item.
type Patch struct {
	Text        *string
	ScheduledAt *time.Time
	Timezone    *string
}

// Filter narrows List results. Zero value matches everything.
type Filter struct {
	Statuses []Status
	// Since keeps items scheduled at or after this instant.
	Since time.Time
}

func (f Filter) matches(it Item) bool {
	if !f.Since.IsZero() && it.ScheduledAt.Before(f.Since) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if it.Status == s {
			return true
		}
	}
	return false
}

// NewID returns a short opaque item id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

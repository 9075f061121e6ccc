package notifications

import (
	"time"

	"engagement-shop/internal/stories/users"
)

type Type string

const (
	TypeOrderUpdate Type = "order_update"
	TypePayment     Type = "payment"
	TypeSupport     Type = "support"
	TypePromo       Type = "promo"
	TypeSystem      Type = "system"
)

func (t Type) Valid() bool {
	switch t {
	case TypeOrderUpdate, TypePayment, TypeSupport, TypePromo, TypeSystem:
		return true
	}
	return false
}

// Realtime event names on the per-user topic.
const (
	EventNewNotification = "new_notification"
	EventUnreadCount     = "unread_count"
)

// Topic is the private realtime channel of a user.
func Topic(userID string) string {
	return "user_" + userID
}

type Notification struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Type        Type       `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	Link        *string    `json:"link,omitempty"`
	RelatedID   *string    `json:"relatedId,omitempty"`
	RelatedKind *string    `json:"relatedKind,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NotifyOptions are the optional attributes of a single notification.
type NotifyOptions struct {
	Link              string
	RelatedID         string
	RelatedKind       string
	BypassPreferences bool
}

type BroadcastOptions struct {
	BypassPreferences bool
	// Roles narrows the audience; empty means every active user.
	Roles []users.Role
}

type Outcome string

const (
	OutcomeSent                   Outcome = "sent"
	OutcomeSuppressedByPreference Outcome = "suppressed_by_preference"
	OutcomeSuppressedByQuietHours Outcome = "suppressed_by_quiet_hours"
	OutcomeSuppressedByRateLimit  Outcome = "suppressed_by_rate_limit"
)

// Result tells whether a notification was delivered and, if not, why.
// Notification is set only for OutcomeSent.
type Result struct {
	Outcome      Outcome
	Notification *Notification
}

func (r Result) Sent() bool {
	return r.Outcome == OutcomeSent
}

type BroadcastResult struct {
	Sent    int `json:"sent"`
	Blocked int `json:"blocked"`
}

// Payload is published with EventNewNotification.
type Payload struct {
	Notification *Notification `json:"notification"`
	UnreadCount  int           `json:"unreadCount"`
}

type UnreadPayload struct {
	UnreadCount int `json:"unreadCount"`
}

type GetCriteria struct {
	ID     *string
	UserID *string
}

type ListCriteria struct {
	UserID     *string
	UnreadOnly bool
	Type       *Type
	Limit      int
	Offset     int
}

type DeleteCriteria struct {
	ID     *string
	UserID *string
}

type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyHourly    Frequency = "hourly"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

type Preference struct {
	UserID       string     `json:"userId"`
	OrderUpdates bool       `json:"orderUpdates"`
	Payments     bool       `json:"payments"`
	Support      bool       `json:"support"`
	Promotions   bool       `json:"promotions"`
	System       bool       `json:"system"`
	InApp        bool       `json:"inApp"`
	Email        bool       `json:"email"`
	Push         bool       `json:"push"`
	Frequency    Frequency  `json:"frequency"`
	QuietHours   QuietHours `json:"quietHours"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// DefaultPreference is what a user gets before touching the settings.
func DefaultPreference(userID string) Preference {
	return Preference{
		UserID:       userID,
		OrderUpdates: true,
		Payments:     true,
		Support:      true,
		Promotions:   true,
		System:       true,
		InApp:        true,
		Frequency:    FrequencyImmediate,
		QuietHours: QuietHours{
			Enabled:  false,
			Start:    "22:00",
			End:      "08:00",
			Timezone: "UTC",
		},
	}
}

// Allows reports whether the user opted in to notifications of type t.
func (p Preference) Allows(t Type) bool {
	switch t {
	case TypeOrderUpdate:
		return p.OrderUpdates
	case TypePayment:
		return p.Payments
	case TypeSupport:
		return p.Support
	case TypePromo:
		return p.Promotions
	case TypeSystem:
		return p.System
	}
	return false
}

type PreferenceUpdate struct {
	OrderUpdates *bool
	Payments     *bool
	Support      *bool
	Promotions   *bool
	System       *bool
	InApp        *bool
	Email        *bool
	Push         *bool
	Frequency    *Frequency
	QuietHours   *QuietHours
}

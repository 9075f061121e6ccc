package notifications

import (
	"context"
	"time"

	"engagement-shop/internal/stories/users"
)

type (
	Storage interface {
		CreateNotification(ctx context.Context, n Notification) (*Notification, error)
		// CreateNotifications stores the batch and fills in each element's ID and CreatedAt.
		CreateNotifications(ctx context.Context, list []Notification) error
		GetNotification(ctx context.Context, criteria GetCriteria) (*Notification, error)
		ListNotifications(ctx context.Context, criteria ListCriteria) ([]*Notification, error)
		CountNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error)
		CountUnread(ctx context.Context, userID string) (int, error)
		MarkNotificationsRead(ctx context.Context, criteria GetCriteria, readAt time.Time) (int64, error)
		DeleteNotifications(ctx context.Context, criteria DeleteCriteria) (int64, error)

		GetPreference(ctx context.Context, userID string) (*Preference, error)
		UpsertPreference(ctx context.Context, pref Preference) (*Preference, error)
		DeletePreference(ctx context.Context, userID string) error
	}

	UserService interface {
		GetUser(ctx context.Context, id string) (*users.User, error)
		ListUsers(ctx context.Context, criteria users.ListCriteria) ([]*users.User, error)
		ListActiveAdmins(ctx context.Context) ([]*users.User, error)
	}

	// Transport delivers realtime events to connected clients. Delivery is best effort.
	Transport interface {
		Publish(ctx context.Context, topic, event string, payload any) error
	}

	// AdminAlerter mirrors admin notifications to an out-of-band channel.
	AdminAlerter interface {
		SendAlert(ctx context.Context, text string) error
	}
)

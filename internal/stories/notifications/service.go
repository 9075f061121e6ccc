package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"engagement-shop/internal/apperr"
	"engagement-shop/internal/metrics"
	"engagement-shop/internal/stories/users"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("engagement-shop/notifications")

const (
	defaultRateLimit  = 10
	defaultRateWindow = time.Hour
)

type Config struct {
	RateLimit  int
	RateWindow time.Duration
}

// Service writes notifications and fans them out to realtime subscribers
type Service struct {
	storage   Storage
	users     UserService
	transport Transport
	alerter   AdminAlerter
	logger    *slog.Logger
	now       func() time.Time

	rateLimit  int
	rateWindow time.Duration
}

// NewService creates a new notification service. alerter may be nil.
func NewService(
	storage Storage,
	userService UserService,
	transport Transport,
	alerter AdminAlerter,
	cfg Config,
	now func() time.Time,
	logger *slog.Logger,
) *Service {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = defaultRateWindow
	}
	if transport == nil {
		transport = NoopTransport{}
	}
	return &Service{
		storage:    storage,
		users:      userService,
		transport:  transport,
		alerter:    alerter,
		logger:     logger,
		now:        now,
		rateLimit:  cfg.RateLimit,
		rateWindow: cfg.RateWindow,
	}
}

// NoopTransport drops every event. Used where no realtime transport is wired.
type NoopTransport struct{}

func (NoopTransport) Publish(context.Context, string, string, any) error { return nil }

// Notify creates one notification for userID unless the user's preferences,
// quiet hours or the rolling rate limit suppress it.
func (s *Service) Notify(ctx context.Context, userID string, typ Type, title, message string, opts NotifyOptions) (Result, error) {
	ctx, span := tracer.Start(ctx, "notifications.Notify", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("type", string(typ)),
	))
	defer span.End()

	if !typ.Valid() {
		return Result{}, apperr.Validation("invalid notification type %q", typ)
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(message) == "" {
		return Result{}, apperr.Validation("title and message are required")
	}

	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return Result{}, err
	}

	now := s.now()

	if !opts.BypassPreferences {
		pref, err := s.preferenceFor(ctx, userID)
		if err != nil {
			return Result{}, err
		}
		if outcome, blocked := s.checkPreference(pref, typ, now); blocked {
			return s.suppressed(userID, typ, outcome), nil
		}
	}

	limited, err := s.rateLimited(ctx, userID, now)
	if err != nil {
		return Result{}, err
	}
	if limited {
		return s.suppressed(userID, typ, OutcomeSuppressedByRateLimit), nil
	}

	created, err := s.storage.CreateNotification(ctx, newNotification(userID, typ, title, message, opts))
	if err != nil {
		return Result{}, fmt.Errorf("create notification: %w", err)
	}

	s.publishNew(ctx, created)
	metrics.NotificationsTotal.WithLabelValues(string(typ), string(OutcomeSent)).Inc()

	s.logger.Info("Notification sent",
		"notification_id", created.ID,
		"user_id", userID,
		"type", typ,
	)

	return Result{Outcome: OutcomeSent, Notification: created}, nil
}

// Broadcast sends one notification to every active user that passes the checks,
// writing all of them with a single bulk insert.
func (s *Service) Broadcast(ctx context.Context, typ Type, title, message string, opts BroadcastOptions) (BroadcastResult, error) {
	ctx, span := tracer.Start(ctx, "notifications.Broadcast", trace.WithAttributes(attribute.String("type", string(typ))))
	defer span.End()

	if !typ.Valid() {
		return BroadcastResult{}, apperr.Validation("invalid notification type %q", typ)
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(message) == "" {
		return BroadcastResult{}, apperr.Validation("title and message are required")
	}

	recipients, err := s.users.ListUsers(ctx, users.ListCriteria{Status: lo.ToPtr(users.StatusActive)})
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("list users: %w", err)
	}
	if len(opts.Roles) > 0 {
		recipients = lo.Filter(recipients, func(u *users.User, _ int) bool {
			return lo.Contains(opts.Roles, u.Role)
		})
	}

	return s.fanOut(ctx, recipients, typ, title, message, NotifyOptions{BypassPreferences: opts.BypassPreferences})
}

// NotifyAdmins informs every active admin, bypassing preferences, and mirrors the text to the alert channel.
func (s *Service) NotifyAdmins(ctx context.Context, typ Type, title, message string, opts NotifyOptions) (BroadcastResult, error) {
	admins, err := s.users.ListActiveAdmins(ctx)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("list admins: %w", err)
	}

	opts.BypassPreferences = true
	result, err := s.fanOut(ctx, admins, typ, title, message, opts)
	if err != nil {
		return result, err
	}

	if s.alerter != nil {
		if err := s.alerter.SendAlert(ctx, fmt.Sprintf("%s\n\n%s", title, message)); err != nil {
			s.logger.Warn("Failed to send admin alert", "error", err, "title", title)
		}
	}

	return result, nil
}

func (s *Service) fanOut(ctx context.Context, recipients []*users.User, typ Type, title, message string, opts NotifyOptions) (BroadcastResult, error) {
	now := s.now()
	var result BroadcastResult
	batch := make([]Notification, 0, len(recipients))

	for _, user := range recipients {
		if !opts.BypassPreferences {
			pref, err := s.preferenceFor(ctx, user.ID)
			if err != nil {
				return result, err
			}
			if outcome, blocked := s.checkPreference(pref, typ, now); blocked {
				metrics.NotificationsTotal.WithLabelValues(string(typ), string(outcome)).Inc()
				result.Blocked++
				continue
			}
		}

		limited, err := s.rateLimited(ctx, user.ID, now)
		if err != nil {
			return result, err
		}
		if limited {
			metrics.NotificationsTotal.WithLabelValues(string(typ), string(OutcomeSuppressedByRateLimit)).Inc()
			result.Blocked++
			continue
		}

		batch = append(batch, newNotification(user.ID, typ, title, message, opts))
	}

	if len(batch) > 0 {
		if err := s.storage.CreateNotifications(ctx, batch); err != nil {
			return result, fmt.Errorf("bulk create notifications: %w", err)
		}
	}
	result.Sent = len(batch)
	metrics.NotificationsTotal.WithLabelValues(string(typ), string(OutcomeSent)).Add(float64(result.Sent))

	for i := range batch {
		s.publishNew(ctx, &batch[i])
	}

	s.logger.Info("Notification fan-out finished",
		"type", typ,
		"recipients", len(recipients),
		"sent", result.Sent,
		"blocked", result.Blocked,
	)

	return result, nil
}

// checkPreference returns the suppression outcome if pref blocks typ at now.
func (s *Service) checkPreference(pref Preference, typ Type, now time.Time) (Outcome, bool) {
	if !pref.Allows(typ) {
		return OutcomeSuppressedByPreference, true
	}

	quiet, err := pref.QuietHours.Contains(now)
	if err != nil {
		s.logger.Warn("Ignoring malformed quiet hours", "user_id", pref.UserID, "error", err)
		return "", false
	}
	if quiet {
		return OutcomeSuppressedByQuietHours, true
	}
	return "", false
}

// rateLimited counts the user's notifications in the trailing window. Concurrent
// senders may both pass the check; the small overshoot is accepted.
func (s *Service) rateLimited(ctx context.Context, userID string, now time.Time) (bool, error) {
	count, err := s.storage.CountNotificationsSince(ctx, userID, now.Add(-s.rateWindow))
	if err != nil {
		return false, fmt.Errorf("count recent notifications: %w", err)
	}
	return count >= s.rateLimit, nil
}

func (s *Service) suppressed(userID string, typ Type, outcome Outcome) Result {
	metrics.NotificationsTotal.WithLabelValues(string(typ), string(outcome)).Inc()
	s.logger.Info("Notification suppressed", "user_id", userID, "type", typ, "reason", outcome)
	return Result{Outcome: outcome}
}

func (s *Service) publishNew(ctx context.Context, n *Notification) {
	unread, err := s.storage.CountUnread(ctx, n.UserID)
	if err != nil {
		s.logger.Warn("Failed to count unread notifications", "user_id", n.UserID, "error", err)
	}

	payload := Payload{Notification: n, UnreadCount: unread}
	if err := s.transport.Publish(ctx, Topic(n.UserID), EventNewNotification, payload); err != nil {
		s.logger.Warn("Failed to publish notification", "user_id", n.UserID, "notification_id", n.ID, "error", err)
	}
}

func (s *Service) publishUnread(ctx context.Context, userID string) {
	unread, err := s.storage.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to count unread notifications", "user_id", userID, "error", err)
		return
	}
	if err := s.transport.Publish(ctx, Topic(userID), EventUnreadCount, UnreadPayload{UnreadCount: unread}); err != nil {
		s.logger.Warn("Failed to publish unread count", "user_id", userID, "error", err)
	}
}

func newNotification(userID string, typ Type, title, message string, opts NotifyOptions) Notification {
	n := Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
	}
	if opts.Link != "" {
		n.Link = lo.ToPtr(opts.Link)
	}
	if opts.RelatedID != "" {
		n.RelatedID = lo.ToPtr(opts.RelatedID)
	}
	if opts.RelatedKind != "" {
		n.RelatedKind = lo.ToPtr(opts.RelatedKind)
	}
	return n
}

// List returns a page of the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*Notification, error) {
	list, err := s.storage.ListNotifications(ctx, ListCriteria{
		UserID:     &userID,
		UnreadOnly: unreadOnly,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.storage.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) (*Notification, error) {
	n, err := s.owned(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}
	if n.Read {
		return n, nil
	}

	if _, err := s.storage.MarkNotificationsRead(ctx, GetCriteria{ID: &notificationID}, s.now()); err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	s.publishUnread(ctx, userID)

	return s.storage.GetNotification(ctx, GetCriteria{ID: &notificationID})
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.storage.MarkNotificationsRead(ctx, GetCriteria{UserID: &userID}, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	s.publishUnread(ctx, userID)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, userID, notificationID string) error {
	if _, err := s.owned(ctx, userID, notificationID); err != nil {
		return err
	}
	if _, err := s.storage.DeleteNotifications(ctx, DeleteCriteria{ID: &notificationID}); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	s.publishUnread(ctx, userID)
	return nil
}

func (s *Service) ClearAll(ctx context.Context, userID string) (int64, error) {
	deleted, err := s.storage.DeleteNotifications(ctx, DeleteCriteria{UserID: &userID})
	if err != nil {
		return 0, fmt.Errorf("clear notifications: %w", err)
	}
	s.publishUnread(ctx, userID)
	return deleted, nil
}

func (s *Service) owned(ctx context.Context, userID, notificationID string) (*Notification, error) {
	n, err := s.storage.GetNotification(ctx, GetCriteria{ID: &notificationID})
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if n == nil {
		return nil, apperr.NotFound("notification %s not found", notificationID)
	}
	if n.UserID != userID {
		return nil, apperr.Forbidden("not authorized to access this notification")
	}
	return n, nil
}

package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/splashops/service-core/internal/notification/entity"
	notificationrepo "github.com/ovaphlow/splashops/service-core/internal/notification/repo"
	"github.com/ovaphlow/splashops/service-core/pkg/metrics"
)

// RecentLimit caps how many notifications a listing returns.
const RecentLimit = 50

var (
	ErrNotFound     = errors.New("notification not found")
	ErrInvalidInput = errors.New("invalid notification")
)

// Store is the persistence used by Service.
type Store interface {
	Insert(ctx context.Context, n *entity.Notification) error
	Recent(ctx context.Context, userID int64, limit int) ([]entity.Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, id int64) (bool, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

var _ Store = (*notificationrepo.NotificationRepo)(nil)

// Service is the in-app inbox of each employee.
type Service struct {
	store  Store
	clock  clockwork.Clock
	logger *zap.SugaredLogger
}

func New(store Store, clock clockwork.Clock, logger *zap.SugaredLogger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, clock: clock, logger: logger}
}

func NewNotificationService(db *sqlx.DB, logger *zap.SugaredLogger) *Service {
	return New(notificationrepo.NewNotificationRepo(db), nil, logger)
}

// Push stores a notification for userID. An unknown kind falls back to Info.
func (s *Service) Push(ctx context.Context, userID int64, title, message, kind string) error {
	title, message = strings.TrimSpace(title), strings.TrimSpace(message)
	if userID <= 0 || title == "" || message == "" {
		return ErrInvalidInput
	}
	if !entity.IsKind(kind) {
		kind = entity.KindInfo
	}
	n := &entity.Notification{UserID: userID, Title: title, Message: message, Kind: kind}
	if err := s.store.Insert(ctx, n); err != nil {
		metrics.Notifications.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("insert notification: %w", err)
	}
	metrics.Notifications.WithLabelValues(kind, "ok").Inc()
	s.logger.Debugw("notification stored", "user_id", userID, "notification_id", n.ID, "kind", kind)
	return nil
}

// Inbox is a listing of a user's newest notifications.
type Inbox struct {
	Items       []entity.Notification
	UnreadCount int
	Now         time.Time
}

// List returns the newest RecentLimit notifications. UnreadCount covers
// the whole inbox, not just the returned page.
func (s *Service) List(ctx context.Context, userID int64) (*Inbox, error) {
	items, err := s.store.Recent(ctx, userID, RecentLimit)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Inbox{Items: items, UnreadCount: unread, Now: s.clock.Now()}, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

// MarkRead flags one notification. Another user's notification is reported
// as ErrNotFound.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	ok, err := s.store.MarkRead(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

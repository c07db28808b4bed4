package notifications

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mikepea/clubhub/pkg/clubhub/models"
)

// Sender records a notification for a user. Implementations never fail the
// caller; delivery problems are logged.
type Sender interface {
	Notify(ctx context.Context, userID uint, typ models.NotificationType, title, message string, relatedID *uint)
}

// Discard drops every notification
var Discard Sender = discard{}

type discard struct{}

func (discard) Notify(context.Context, uint, models.NotificationType, string, string, *uint) {}

// Notifier stores notifications and forwards them to a broker when one is set
type Notifier struct {
	db        *gorm.DB
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotifier creates a notifier. publisher may be nil.
func NewNotifier(db *gorm.DB, publisher Publisher, logger *zap.Logger) *Notifier {
	return &Notifier{db: db, publisher: publisher, logger: logger, now: time.Now}
}

// Notify inserts the notification row then publishes it
func (n *Notifier) Notify(ctx context.Context, userID uint, typ models.NotificationType, title, message string, relatedID *uint) {
	notification := models.Notification{
		UserID:          userID,
		Title:           title,
		Message:         truncate(message, 1000),
		Type:            typ,
		RelatedEntityID: relatedID,
		SentAt:          n.now().UTC(),
	}
	if err := n.db.WithContext(ctx).Create(&notification).Error; err != nil {
		n.logger.Warn("Failed to store notification",
			zap.Uint("user_id", userID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
		return
	}

	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(ctx, MessageFrom(notification)); err != nil {
		n.logger.Warn("Failed to publish notification",
			zap.Uint("notification_id", notification.ID),
			zap.Error(err),
		)
	}
}

// truncate keeps at most n runes of s
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// NotifyAll sends the same notification to each user
func NotifyAll(ctx context.Context, s Sender, userIDs []uint, typ models.NotificationType, title, message string, relatedID *uint) {
	for _, id := range userIDs {
		s.Notify(ctx, id, typ, title, message, relatedID)
	}
}

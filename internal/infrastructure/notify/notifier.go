// Package notify delivers best-effort operator notifications about delivery
// sheets and invoice groups.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Headline renders a human readable title for a notification, e.g.
// "Delivery Sheet Mismatch Repaired: Route 7".
func Headline(n shared.Notification) string {
	topic := strings.NewReplacer(".", " ", "_", " ").Replace(n.Topic)
	title := cases.Title(language.English).String(topic)
	if n.Subject == "" {
		return title
	}
	return fmt.Sprintf("%s: %s", title, n.Subject)
}

// LogNotifier writes notifications to the application log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify implements shared.Notifier
func (n *LogNotifier) Notify(_ context.Context, msg shared.Notification) error {
	fields := []zap.Field{
		zap.String("topic", msg.Topic),
		zap.String("tenant_id", msg.TenantID.String()),
	}
	if len(msg.Fields) > 0 {
		fields = append(fields, zap.Any("fields", msg.Fields))
	}
	n.logger.Info(Headline(msg), fields...)
	return nil
}

// envelope is the JSON published on the redis channel
type envelope struct {
	shared.Notification
	Headline string    `json:"headline"`
	SentAt   time.Time `json:"sent_at"`
}

// RedisNotifier publishes notifications as JSON on a redis pub/sub channel
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	timeout time.Duration
}

// NewRedisNotifier creates a new RedisNotifier
func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, timeout: 2 * time.Second}
}

// Notify implements shared.Notifier
func (n *RedisNotifier) Notify(ctx context.Context, msg shared.Notification) error {
	payload, err := json.Marshal(envelope{
		Notification: msg,
		Headline:     Headline(msg),
		SentAt:       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification to %s: %w", n.channel, err)
	}
	return nil
}

// Multi fans a notification out to several notifiers. Every notifier is
// attempted; failures are joined.
type Multi []shared.Notifier

// Notify implements shared.Notifier
func (m Multi) Notify(ctx context.Context, msg shared.Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ shared.Notifier = (*LogNotifier)(nil)
	_ shared.Notifier = (*RedisNotifier)(nil)
	_ shared.Notifier = Multi(nil)
)

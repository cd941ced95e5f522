package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NotificationKind classifies a user-facing notification.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is the payload delivered to dashboard clients.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
	SentAt  time.Time        `json:"sent_at"`
}

// Notifier delivers fire-and-forget notifications. Notify returns without
// waiting for delivery; failures are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, message string)
}

// ============================================================================
// Log notifier
// ============================================================================

type logNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a Notifier that writes notifications to the log.
func NewLogNotifier(logger *zap.Logger) Notifier {
	return &logNotifier{logger: logger.Named("notifier")}
}

var _ Notifier = (*logNotifier)(nil)

func (n *logNotifier) Notify(_ context.Context, kind NotificationKind, message string) {
	if kind == NotifyError {
		n.logger.Warn("Notification", zap.String("kind", string(kind)), zap.String("message", message))
		return
	}
	n.logger.Info("Notification", zap.String("kind", string(kind)), zap.String("message", message))
}

// ============================================================================
// Redis notifier
// ============================================================================

// publishTimeout bounds a single PUBLISH.
const publishTimeout = 2 * time.Second

// RedisNotifier publishes notifications from background goroutines.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// NewRedisNotifier creates a Notifier that publishes JSON notifications on a
// Redis pub/sub channel for dashboard clients to relay. Call Close before
// closing the client.
func NewRedisNotifier(client *redis.Client, channel string, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: channel,
		timeout: publishTimeout,
		logger:  logger.Named("notifier"),
	}
}

var _ Notifier = (*RedisNotifier)(nil)

func (n *RedisNotifier) Notify(ctx context.Context, kind NotificationKind, message string) {
	payload, err := json.Marshal(Notification{Kind: kind, Message: message, SentAt: time.Now().UTC()})
	if err != nil {
		n.logger.Error("Failed to encode notification", zap.Error(err))
		return
	}

	// Delivery must not depend on the request context, which may already be done.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()
		if err := n.client.Publish(pubCtx, n.channel, payload).Err(); err != nil {
			n.logger.Warn("Failed to publish notification",
				zap.String("channel", n.channel),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}()
}

// Close waits for in-flight publishes, each bounded by the publish timeout.
func (n *RedisNotifier) Close() {
	n.wg.Wait()
}

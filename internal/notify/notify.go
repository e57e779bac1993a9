package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"moodspace/internal/feed"
)

const defaultInboxCapacity = 50

// Level is the severity of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a user-facing toast.
type Notification struct {
	Level       Level     `json:"level"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Time        time.Time `json:"time"`
}

// Info builds an informational notification.
func Info(title, description string) Notification {
	return Notification{Level: LevelInfo, Title: title, Description: description}
}

// Error builds an error notification.
func Error(title, description string) Notification {
	return Notification{Level: LevelError, Title: title, Description: description}
}

// Center keeps a bounded inbox per user and pushes every notification
// onto the change feed.
type Center struct {
	broker   feed.Broker
	logger   *zap.Logger
	capacity int

	mu      sync.Mutex
	inboxes map[string]*RingBuffer[Notification]
}

// NewCenter creates a notification center. broker may be nil.
func NewCenter(broker feed.Broker, logger *zap.Logger) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Center{
		broker:   broker,
		logger:   logger,
		capacity: defaultInboxCapacity,
		inboxes:  make(map[string]*RingBuffer[Notification]),
	}
}

func (c *Center) inbox(userID string) *RingBuffer[Notification] {
	c.mu.Lock()
	defer c.mu.Unlock()
	rb, ok := c.inboxes[userID]
	if !ok {
		rb = NewRingBuffer[Notification](c.capacity)
		c.inboxes[userID] = rb
	}
	return rb
}

// Notify records n for userID and publishes it. When ctx carries a feed
// origin only that connection receives the toast.
func (c *Center) Notify(ctx context.Context, userID string, n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}
	c.inbox(userID).Write(n)

	if c.broker == nil {
		return
	}
	ev, err := feed.NewEvent(feed.KindNotification, userID, n)
	if err != nil {
		c.logger.Warn("notification not published", zap.Error(err))
		return
	}
	ev.Origin = feed.OriginFrom(ctx)
	if err := c.broker.Publish(ctx, ev); err != nil {
		c.logger.Warn("notification not published", zap.String("user", userID), zap.Error(err))
	}
}

// Recent returns the user's buffered notifications, oldest first.
func (c *Center) Recent(userID string) []Notification {
	return c.inbox(userID).ReadAll()
}

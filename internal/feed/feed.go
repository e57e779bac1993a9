package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultSubscriberBufCap = 100

// Kind distinguishes change events.
type Kind string

const (
	KindSessionInserted Kind = "session.inserted"
	KindNotification    Kind = "notification"
)

// ErrClosed is returned by operations on a closed broker.
var ErrClosed = errors.New("feed: broker closed")

// Event is a single change notification scoped to one user.
type Event struct {
	Kind      Kind            `json:"kind"`
	UserID    string          `json:"userId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	// Origin names the connection that caused the event. Empty means the
	// event concerns every connection of the user.
	Origin string `json:"origin,omitempty"`
}

// For reports whether a subscriber identified by origin should see ev.
func (ev Event) For(origin string) bool {
	return ev.Origin == "" || ev.Origin == origin
}

type originKey struct{}

// WithOrigin marks ctx as acting on behalf of one connection.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the connection recorded by WithOrigin, if any.
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}

// NewEvent marshals payload into an event stamped with the current time.
func NewEvent(kind Kind, userID string, payload interface{}) (Event, error) {
	ev := Event{Kind: kind, UserID: userID, Timestamp: time.Now().UTC()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal payload: %w", err)
		}
		ev.Payload = data
	}
	return ev, nil
}

// Broker is a per-user publish/subscribe change feed.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns a subscription ID and a channel of events for userID.
	// The channel is closed by Unsubscribe or Close.
	Subscribe(ctx context.Context, userID string) (string, <-chan Event, error)
	Unsubscribe(userID, subID string)
	Close() error
}

// LocalBroker fans events out to in-process subscribers.
type LocalBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[string]chan Event // userID → subID → channel
	closed bool
}

// NewLocalBroker creates an in-process broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[string]chan Event)}
}

// Publish delivers ev to every subscriber of ev.UserID.
func (b *LocalBroker) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	b.fanOut(ev)
	return nil
}

// fanOut must be called with b.mu held.
func (b *LocalBroker) fanOut(ev Event) {
	for _, ch := range b.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
			// Subscriber channel full, drop the event.
		}
	}
}

// Subscribe implements Broker.
func (b *LocalBroker) Subscribe(_ context.Context, userID string) (string, <-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", nil, ErrClosed
	}
	subID := uuid.New().String()
	ch := make(chan Event, defaultSubscriberBufCap)
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[string]chan Event)
	}
	b.subs[userID][subID] = ch
	return subID, ch, nil
}

// Unsubscribe implements Broker.
func (b *LocalBroker) Unsubscribe(userID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[userID][subID]; ok {
		close(ch)
		delete(b.subs[userID], subID)
		if len(b.subs[userID]) == 0 {
			delete(b.subs, userID)
		}
	}
}

// Close closes every subscriber channel.
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for userID, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, userID)
	}
	return nil
}

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const channelPrefix = "moodspace:feed:"

// RedisOptions configures the Redis-backed broker.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisBroker relays events through Redis pub/sub so that every server
// instance sees inserts made by any other instance.
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]*redisSub // subID → subscription
}

type redisSub struct {
	userID string
	pubsub *redis.PubSub
	out    chan Event
	done   chan struct{}
}

// NewRedisBroker connects and pings the server.
func NewRedisBroker(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{client: client, logger: logger, subs: make(map[string]*redisSub)}, nil
}

func channelFor(userID string) string {
	return channelPrefix + userID
}

// Publish implements Broker.
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channelFor(ev.UserID), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe implements Broker.
func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (string, <-chan Event, error) {
	pubsub := b.client.Subscribe(ctx, channelFor(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return "", nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := &redisSub{
		userID: userID,
		pubsub: pubsub,
		out:    make(chan Event, defaultSubscriberBufCap),
		done:   make(chan struct{}),
	}
	subID := uuid.New().String()

	b.mu.Lock()
	b.subs[subID] = sub
	b.mu.Unlock()

	go b.relay(sub)
	return subID, sub.out, nil
}

func (b *RedisBroker) relay(sub *redisSub) {
	defer close(sub.out)
	ch := sub.pubsub.Channel()
	for {
		select {
		case <-sub.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("dropping undecodable feed event", zap.Error(err))
				continue
			}
			select {
			case sub.out <- ev:
			default:
			}
		}
	}
}

// Unsubscribe implements Broker.
func (b *RedisBroker) Unsubscribe(userID, subID string) {
	b.mu.Lock()
	sub, ok := b.subs[subID]
	if ok && sub.userID == userID {
		delete(b.subs, subID)
	}
	b.mu.Unlock()
	if ok && sub.userID == userID {
		close(sub.done)
		sub.pubsub.Close()
	}
}

// Close releases every subscription and the client.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*redisSub)
	b.mu.Unlock()
	for _, sub := range subs {
		close(sub.done)
		sub.pubsub.Close()
	}
	return b.client.Close()
}

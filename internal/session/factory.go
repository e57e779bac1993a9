package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"moodspace/internal/feed"
)

// Options selects and configures a storage backend.
type Options struct {
	Backend string // memory, sqlite, postgres, mysql
	DSN     string // file path for sqlite, connection string otherwise
}

// Open builds the configured Store.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(opts.DSN)
	case "postgres":
		return NewPostgresStore(ctx, opts.DSN, logger)
	case "mysql":
		return NewMySQLStore(opts.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// Recorder appends records and announces each insert on the change feed.
type Recorder struct {
	Store
	broker feed.Broker
	logger *zap.Logger
}

// NewRecorder wraps store. broker may be nil.
func NewRecorder(store Store, broker feed.Broker, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{Store: store, broker: broker, logger: logger}
}

// Append persists r and publishes a session.inserted event. A publish
// failure is logged; the record is already durable at that point.
func (r *Recorder) Append(ctx context.Context, rec *Record) error {
	if err := r.Store.Append(ctx, rec); err != nil {
		return err
	}
	if r.broker == nil {
		return nil
	}
	ev, err := feed.NewEvent(feed.KindSessionInserted, rec.UserID, rec)
	if err == nil {
		err = r.broker.Publish(ctx, ev)
	}
	if err != nil {
		r.logger.Warn("session insert not announced",
			zap.String("id", rec.ID),
			zap.String("user", rec.UserID),
			zap.Error(err),
		)
	}
	return nil
}

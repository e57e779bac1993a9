package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"moodspace/internal/mood"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS mood_sessions (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	emotion       TEXT NOT NULL,
	intensity     DOUBLE PRECISION NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	music_action  TEXT NOT NULL DEFAULT '',
	visual_action TEXT NOT NULL DEFAULT '',
	micro_action  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_mood_sessions_user_created ON mood_sessions (user_id, created_at DESC);
`

// PostgresStore persists records through a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to dsn and bootstraps the table.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error("failed to connect to postgres", zap.Error(err))
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Append implements Store.
func (p *PostgresStore) Append(ctx context.Context, r *Record) error {
	if err := prepare(r); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO mood_sessions (id, user_id, emotion, intensity, message, music_action, visual_action, micro_action, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.UserID, string(r.Emotion), r.Intensity, r.Message, r.MusicAction, r.VisualAction, r.MicroAction, r.CreatedAt)
	if err != nil {
		p.logger.Error("failed to insert mood session", zap.Error(err))
		return err
	}
	return nil
}

// Recent implements Store.
func (p *PostgresStore) Recent(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, user_id, emotion, intensity, message, music_action, visual_action, micro_action, created_at
		 FROM mood_sessions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, window(limit))
	if err != nil {
		p.logger.Error("failed to query mood sessions", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r       Record
			emotion string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &emotion, &r.Intensity, &r.Message, &r.MusicAction, &r.VisualAction, &r.MicroAction, &r.CreatedAt); err != nil {
			p.logger.Error("failed to scan mood session", zap.Error(err))
			return nil, err
		}
		r.Emotion = mood.ParseEmotion(emotion)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close implements Store.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)

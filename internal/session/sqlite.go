package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"moodspace/internal/mood"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mood_sessions (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	emotion       TEXT NOT NULL,
	intensity     REAL NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	music_action  TEXT NOT NULL DEFAULT '',
	visual_action TEXT NOT NULL DEFAULT '',
	micro_action  TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mood_sessions_user_created ON mood_sessions(user_id, created_at DESC);
`

// SQLiteStore persists records in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, r *Record) error {
	if err := prepare(r); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mood_sessions (id, user_id, emotion, intensity, message, music_action, visual_action, micro_action, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, string(r.Emotion), r.Intensity, r.Message, r.MusicAction, r.VisualAction, r.MicroAction, r.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert mood session: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *SQLiteStore) Recent(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, emotion, intensity, message, music_action, visual_action, micro_action, created_at
		 FROM mood_sessions WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, window(limit))
	if err != nil {
		return nil, fmt.Errorf("query mood sessions: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r       Record
			emotion string
			created int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &emotion, &r.Intensity, &r.Message, &r.MusicAction, &r.VisualAction, &r.MicroAction, &created); err != nil {
			return nil, fmt.Errorf("scan mood session: %w", err)
		}
		r.Emotion = mood.ParseEmotion(emotion)
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package session

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"moodspace/internal/mood"
)

// moodSessionRow is the gorm model for the mood_sessions table.
type moodSessionRow struct {
	ID           string    `gorm:"type:varchar(50);primaryKey"`
	UserID       string    `gorm:"type:varchar(50);index:idx_user_created,priority:1"`
	Emotion      string    `gorm:"type:varchar(20)"`
	Intensity    float64   `gorm:"not null"`
	Message      string    `gorm:"type:text"`
	MusicAction  string    `gorm:"type:text"`
	VisualAction string    `gorm:"type:text"`
	MicroAction  string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"precision:6;index:idx_user_created,priority:2,sort:desc"`
}

func (moodSessionRow) TableName() string { return "mood_sessions" }

// MySQLStore persists records through gorm.
type MySQLStore struct {
	db *gorm.DB
}

// NewMySQLStore opens dsn and migrates the table.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}
	if err := db.AutoMigrate(&moodSessionRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate mood_sessions: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

// Append implements Store.
func (s *MySQLStore) Append(ctx context.Context, r *Record) error {
	if err := prepare(r); err != nil {
		return err
	}
	row := moodSessionRow{
		ID:           r.ID,
		UserID:       r.UserID,
		Emotion:      string(r.Emotion),
		Intensity:    r.Intensity,
		Message:      r.Message,
		MusicAction:  r.MusicAction,
		VisualAction: r.VisualAction,
		MicroAction:  r.MicroAction,
		CreatedAt:    r.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert mood session: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *MySQLStore) Recent(ctx context.Context, userID string, limit int) ([]Record, error) {
	var rows []moodSessionRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(window(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query mood sessions: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, Record{
			ID:           row.ID,
			UserID:       row.UserID,
			Emotion:      mood.ParseEmotion(row.Emotion),
			Intensity:    row.Intensity,
			Message:      row.Message,
			MusicAction:  row.MusicAction,
			VisualAction: row.VisualAction,
			MicroAction:  row.MicroAction,
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// Close implements Store.
func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*MySQLStore)(nil)

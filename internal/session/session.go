package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"moodspace/internal/mood"
)

// HistoryWindow is the number of sessions shown in the history strip.
const HistoryWindow = 7

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown storage backend")

// ErrMissingUser is returned when a record carries no user identity.
var ErrMissingUser = errors.New("record has no user id")

// Record is the persisted projection of a MoodState. Records are
// append-only.
type Record struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId"`
	Emotion      mood.Emotion `json:"emotion"`
	Intensity    float64      `json:"intensity"`
	Message      string       `json:"message"`
	MusicAction  string       `json:"musicAction"`
	VisualAction string       `json:"visualAction"`
	MicroAction  string       `json:"microAction"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// NewRecord projects a state onto a record for userID. ID and CreatedAt are
// left for the store to assign.
func NewRecord(userID string, s mood.State) *Record {
	return &Record{
		UserID:       userID,
		Emotion:      s.Emotion,
		Intensity:    s.Intensity,
		Message:      s.Message,
		MusicAction:  s.MusicAction,
		VisualAction: s.VisualAction,
		MicroAction:  s.MicroAction,
	}
}

// State returns the mood state the record was made from.
func (r Record) State() mood.State {
	return mood.State{
		Emotion:      r.Emotion,
		Intensity:    r.Intensity,
		Message:      r.Message,
		MusicAction:  r.MusicAction,
		VisualAction: r.VisualAction,
		MicroAction:  r.MicroAction,
	}
}

// Store is the append-only session repository.
type Store interface {
	// Append persists r, assigning ID and CreatedAt when empty.
	Append(ctx context.Context, r *Record) error
	// Recent returns at most limit records for userID, newest first.
	// A non-positive limit means HistoryWindow.
	Recent(ctx context.Context, userID string, limit int) ([]Record, error)
	Close() error
}

// prepare validates r and fills server-assigned fields.
func prepare(r *Record) error {
	if r.UserID == "" {
		return ErrMissingUser
	}
	if err := mood.Validate(r.State()); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}

func window(limit int) int {
	if limit <= 0 {
		return HistoryWindow
	}
	return limit
}

package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"moodspace/internal/breathing"
	"moodspace/internal/mood"
	"moodspace/internal/notify"
	"moodspace/internal/player"
	"moodspace/internal/session"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeMoodUpdate     = "mood.update"
	TypeHistoryUpdate  = "history.update"
	TypeNotification   = "notification"
	TypeGuidanceResult = "guidance.result"
	TypeBreathingTick  = "breathing.tick"
	TypePlayerState    = "player.state"
	TypeError          = "error"
)

// Client → Server message types.
const (
	TypeMoodSubmit      = "mood.submit"
	TypeGuidanceRequest = "guidance.request"
	TypeBreathingStart  = "breathing.start"
	TypeBreathingStop   = "breathing.stop"
	TypePlayerPlay      = "player.play"
	TypePlayerPause     = "player.pause"
	TypePlayerNext      = "player.next"
	TypePlayerEnded     = "player.ended"
	TypePlayerSelect    = "player.select"
	TypeHistoryRequest  = "history.request"
)

// Error codes.
const (
	ErrInvalidMessage   = "INVALID_MESSAGE"
	ErrEmptyInput       = "EMPTY_INPUT"
	ErrBusy             = "BUSY"
	ErrAnalysisFailed   = "ANALYSIS_FAILED"
	ErrGuidanceFailed   = "GUIDANCE_FAILED"
	ErrHistoryFailed    = "HISTORY_FAILED"
	ErrBreathingPattern = "BREATHING_PATTERN"
)

// Server → Client payloads.

type MoodUpdatePayload = mood.State

type HistoryUpdatePayload struct {
	Sessions []session.Record `json:"sessions"`
}

type NotificationPayload = notify.Notification

type GuidanceResultPayload struct {
	ActionType  string `json:"actionType"`
	ActionLabel string `json:"actionLabel"`
	Guidance    string `json:"guidance"`
}

type BreathingTickPayload = breathing.Tick

type PlayerStatePayload = player.State

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client → Server payloads.

type MoodSubmitPayload struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type GuidanceRequestPayload struct {
	ActionType  string `json:"actionType" validate:"required"`
	ActionLabel string `json:"actionLabel" validate:"required"`
	Emotion     string `json:"emotion" validate:"omitempty,oneof=calm happy anxious sad excited neutral"`
}

type BreathingStartPayload struct {
	// Pattern is a pattern name; unknown names fall back to box breathing.
	Pattern string `json:"pattern"`
	// Description selects a pattern from a quick-action description when
	// Pattern is empty.
	Description string `json:"description,omitempty"`
}

type PlayerSelectPayload struct {
	Emotion string `json:"emotion" validate:"required,oneof=calm happy anxious sad excited neutral"`
}

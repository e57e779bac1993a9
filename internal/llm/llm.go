// Package llm adapts hosted chat-completion models to the mood classifier and
// guidance completer contracts.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"moodspace/internal/mood"
)

var (
	// ErrMalformedResponse means the model answered but the structured result
	// was missing or did not decode.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrEmptyCompletion means the model returned no text.
	ErrEmptyCompletion = errors.New("empty model completion")
)

// Completer requests free text from a model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// MoodToolName is the function the model is forced to call.
const MoodToolName = "analyze_mood"

const moodToolDescription = "Analyze user's mood and provide emotional support"

// MoodInstruction is the fixed system prompt for mood classification.
const MoodInstruction = `You are an empathetic mood analysis AI. Analyze the user's text and respond with a JSON object containing:
- emotion: one of ["calm", "happy", "anxious", "sad", "excited", "neutral"]
- intensity: a number between 0 and 1 representing the intensity of the emotion
- message: a short, empathetic response (1-2 sentences)
- musicAction: a brief description of appropriate music (e.g., "Playing calming piano melodies")
- visualAction: a description of the visual environment change
- microAction: a specific actionable suggestion for the user

Be warm, understanding, and supportive. Respond ONLY with valid JSON.`

var moodFields = []string{"emotion", "intensity", "message", "musicAction", "visualAction", "microAction"}

func emotionNames() []string {
	names := make([]string, len(mood.Emotions))
	for i, e := range mood.Emotions {
		names[i] = string(e)
	}
	return names
}

// MoodSchema is the JSON schema for the analyze_mood tool parameters.
func MoodSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"emotion":      map[string]any{"type": "string", "enum": emotionNames()},
			"intensity":    map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"message":      map[string]any{"type": "string"},
			"musicAction":  map[string]any{"type": "string"},
			"visualAction": map[string]any{"type": "string"},
			"microAction":  map[string]any{"type": "string"},
		},
		"required":             moodFields,
		"additionalProperties": false,
	}
}

type moodArguments struct {
	Emotion      *string  `json:"emotion"`
	Intensity    *float64 `json:"intensity"`
	Message      string   `json:"message"`
	MusicAction  string   `json:"musicAction"`
	VisualAction string   `json:"visualAction"`
	MicroAction  string   `json:"microAction"`
}

// ParseMoodArguments decodes the structured payload of an analyze_mood call
// and normalizes it onto the canonical domain.
func ParseMoodArguments(raw string) (mood.State, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return mood.State{}, fmt.Errorf("%w: empty arguments", ErrMalformedResponse)
	}
	var args moodArguments
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return mood.State{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if args.Emotion == nil || args.Intensity == nil {
		return mood.State{}, fmt.Errorf("%w: missing emotion or intensity", ErrMalformedResponse)
	}
	s, err := mood.Normalize(mood.State{
		Emotion:      mood.Emotion(*args.Emotion),
		Intensity:    *args.Intensity,
		Message:      args.Message,
		MusicAction:  args.MusicAction,
		VisualAction: args.VisualAction,
		MicroAction:  args.MicroAction,
	})
	if err != nil {
		return mood.State{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return s, nil
}

func requireText(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

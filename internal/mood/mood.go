package mood

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Emotion is one of the six canonical mood labels.
type Emotion string

const (
	Calm    Emotion = "calm"
	Happy   Emotion = "happy"
	Anxious Emotion = "anxious"
	Sad     Emotion = "sad"
	Excited Emotion = "excited"
	Neutral Emotion = "neutral"
)

// Emotions lists every canonical emotion in schema order.
var Emotions = []Emotion{Calm, Happy, Anxious, Sad, Excited, Neutral}

var validEmotions = map[Emotion]bool{
	Calm:    true,
	Happy:   true,
	Anxious: true,
	Sad:     true,
	Excited: true,
	Neutral: true,
}

// ErrInvalidState is returned when a classifier result falls outside the
// emotion enumeration or the intensity bounds.
var ErrInvalidState = errors.New("invalid mood state")

// Valid reports whether e is one of the canonical emotions.
func (e Emotion) Valid() bool {
	return validEmotions[e]
}

// Title returns the label with its first letter upper-cased.
func (e Emotion) Title() string {
	if e == "" {
		return ""
	}
	return strings.ToUpper(string(e[:1])) + string(e[1:])
}

// ParseEmotion maps a free-form label onto the canonical set. Unknown or
// empty labels become Neutral.
func ParseEmotion(s string) Emotion {
	e := Emotion(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return Neutral
	}
	return e
}

// State is the single displayable classification result.
type State struct {
	Emotion      Emotion `json:"emotion"`
	Intensity    float64 `json:"intensity"`
	Message      string  `json:"message"`
	MusicAction  string  `json:"musicAction"`
	VisualAction string  `json:"visualAction"`
	MicroAction  string  `json:"microAction"`
}

// Welcome is the state shown before the first classification.
func Welcome() State {
	return State{
		Emotion:   Neutral,
		Intensity: 0.5,
		Message:   "Welcome! Tell me how you're feeling today...",
	}
}

// Validate checks the enumeration and intensity bounds.
func Validate(s State) error {
	if !s.Emotion.Valid() {
		return fmt.Errorf("%w: unknown emotion %q", ErrInvalidState, s.Emotion)
	}
	if math.IsNaN(s.Intensity) || s.Intensity < 0 || s.Intensity > 1 {
		return fmt.Errorf("%w: intensity %v outside [0,1]", ErrInvalidState, s.Intensity)
	}
	return nil
}

// Normalize folds an untrusted result into the canonical domain: the emotion
// label is parsed leniently and intensity is clamped. NaN intensity cannot be
// repaired and is rejected.
func Normalize(s State) (State, error) {
	if math.IsNaN(s.Intensity) || math.IsInf(s.Intensity, 0) {
		return State{}, fmt.Errorf("%w: intensity is not a finite number", ErrInvalidState)
	}
	s.Emotion = ParseEmotion(string(s.Emotion))
	s.Intensity = clamp01(s.Intensity)
	return s, nil
}

// Percent renders intensity as a whole percentage.
func (s State) Percent() int {
	return int(math.Round(s.Intensity * 100))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Classifier turns free text into a MoodState.
type Classifier interface {
	Classify(ctx context.Context, text string) (State, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, text string) (State, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string) (State, error) {
	return f(ctx, text)
}

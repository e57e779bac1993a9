package mood

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

type keywordSet struct {
	emotion  Emotion
	keywords []string
}

// keywordTable is scanned in order; earlier rows win ties.
var keywordTable = []keywordSet{
	{Happy, []string{"happy", "joy", "great", "wonderful", "excited", "amazing", "love", "good"}},
	{Sad, []string{"sad", "down", "depressed", "unhappy", "terrible", "awful", "bad"}},
	{Anxious, []string{"anxious", "worried", "stress", "nervous", "panic", "overwhelmed"}},
	{Calm, []string{"calm", "peaceful", "relaxed", "tranquil", "serene", "zen"}},
	{Excited, []string{"excited", "energetic", "pumped", "hyped", "thrilled"}},
}

// KeywordClassifier is the offline heuristic: keyword frequency over a fixed
// dictionary.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the heuristic classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify implements Classifier.
func (k *KeywordClassifier) Classify(ctx context.Context, text string) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	emotion, matches := Detect(text)
	intensity := Intensity(matches, utf8.RuneCountInString(text))
	return Respond(emotion, intensity), nil
}

// Detect returns the emotion with the strictly highest keyword match count
// and that count. All-zero counts yield Neutral.
func Detect(text string) (Emotion, int) {
	lower := strings.ToLower(text)
	detected := Neutral
	best := 0
	for _, row := range keywordTable {
		n := 0
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				n++
			}
		}
		if n > best {
			best = n
			detected = row.emotion
		}
	}
	return detected, best
}

// Intensity is min(1, 0.3 + 0.2*matches + length/200).
func Intensity(matches, length int) float64 {
	return math.Min(1, 0.3+0.2*float64(matches)+float64(length)/200)
}

type response struct {
	message     string
	music       func(intensity float64) string
	visual      string
	microAction string
}

func byIntensity(strong, mild string) func(float64) string {
	return func(intensity float64) string {
		if intensity > 0.7 {
			return strong
		}
		return mild
	}
}

func fixed(s string) func(float64) string {
	return func(float64) string { return s }
}

var responses = map[Emotion]response{
	Happy: {
		message:     "I can feel your joy! Let's amplify this beautiful energy.",
		music:       byIntensity("Playing uplifting high-energy music", "Playing uplifting cheerful music"),
		visual:      "Environment shifting to warm, vibrant colors",
		microAction: "Take a moment to smile and appreciate this feeling",
	},
	Sad: {
		message:     "I'm here with you. It's okay to feel this way.",
		music:       byIntensity("Playing deeply soothing music", "Playing gentle comforting music"),
		visual:      "Creating a soft, embracing atmosphere",
		microAction: "Try a gentle breathing exercise: inhale for 4, hold for 4, exhale for 6",
	},
	Anxious: {
		message:     "Let's work through this together. You're safe here.",
		music:       byIntensity("Playing grounding soundscapes", "Playing calming soundscapes"),
		visual:      "Surrounding you with calming, flowing visuals",
		microAction: "Ground yourself: Name 5 things you can see, 4 you can touch",
	},
	Calm: {
		message:     "Beautiful. Let's maintain this peaceful state.",
		music:       fixed("Playing ambient, tranquil tones"),
		visual:      "Environment flowing with serene, ocean-like movements",
		microAction: "Take 3 deep, mindful breaths",
	},
	Excited: {
		message:     "Your energy is amazing! Let's channel it positively.",
		music:       byIntensity("Playing dynamic, energetic beats", "Playing motivating beats"),
		visual:      "Environment pulsing with vibrant, energetic patterns",
		microAction: "Quick movement: stretch your arms wide and take a power pose",
	},
	Neutral: {
		message:     "Tell me more about how you're feeling...",
		music:       fixed("Playing balanced, exploratory sounds"),
		visual:      "Environment in balanced, exploratory mode",
		microAction: "Journal prompt: What's on your mind right now?",
	},
}

// Respond builds the full state for an emotion from the fixed response table.
func Respond(e Emotion, intensity float64) State {
	r, ok := responses[e]
	if !ok {
		e = Neutral
		r = responses[Neutral]
	}
	return State{
		Emotion:      e,
		Intensity:    clamp01(intensity),
		Message:      r.message,
		MusicAction:  r.music(intensity),
		VisualAction: r.visual,
		MicroAction:  r.microAction,
	}
}

// Summary is the short "Happy • 80%" line shown after detection.
func Summary(s State) string {
	return fmt.Sprintf("%s • %d%%", s.Emotion.Title(), s.Percent())
}

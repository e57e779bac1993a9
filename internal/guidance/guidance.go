package guidance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"moodspace/internal/llm"
	"moodspace/internal/mood"
)

// Category is a pre-classified micro-action kind.
type Category string

const (
	Breathing   Category = "breathing"
	Meditation  Category = "meditation"
	Gratitude   Category = "gratitude"
	Bodywork    Category = "bodywork"
	Grounding   Category = "grounding"
	SelfCare    Category = "selfcare"
	Movement    Category = "movement"
	CheckIn     Category = "checkin"
	Creativity  Category = "creativity"
	Exploration Category = "exploration"
)

// ErrEmptyGuidance is returned when the model produced no guidance text.
var ErrEmptyGuidance = errors.New("no guidance in model response")

var promptSources = map[Category]string{
	Breathing: `You are a breathwork expert. Provide detailed, step-by-step guidance for the breathing exercise "{{.Label}}". Include:
- Brief introduction (why this technique helps)
- Exact steps with timing
- What to focus on during each phase
- Tips for best results
- Duration and frequency recommendations
Format as clear, numbered steps.`,

	Meditation: `You are a meditation guide. Create a complete 5-minute guided meditation script for someone feeling {{.Emotion}}. Include:
- Opening (how to sit/prepare)
- Body scan sequence
- Breathing focus
- Visualization or mantras
- Gentle closing
Make it calming, detailed, and easy to follow.`,

	Gratitude: `You are a gratitude coach. Provide a structured gratitude practice with:
- Why gratitude helps with {{.Emotion}} feelings
- 5 specific prompts to guide reflection
- Tips for deeper engagement
- Suggestion for daily practice
Keep it warm and encouraging.`,

	Bodywork: `You are a physical wellness expert. Provide detailed instructions for "{{.Label}}" including:
- Preparation and positioning
- Step-by-step movements
- Breathing coordination
- What to feel/focus on
- Safety tips and modifications
- Recommended duration`,

	Grounding: `You are a grounding technique specialist. Teach the 5-4-3-2-1 method with:
- Clear explanation of each sense
- Specific examples for each step
- How to engage deeply with each sensation
- Why this helps with {{.Emotion}}
- Tips for when to use it`,

	SelfCare: `You are a self-compassion expert. Guide someone feeling {{.Emotion}} through:
- Self-compassion statements to repeat
- Gentle self-care actions they can take now
- Why being kind to themselves matters
- Affirmations for {{.Emotion}} feelings
- Creating a self-care moment`,

	Movement: `You are a movement therapist. Create a 5-10 minute movement sequence for {{.Emotion}} that includes:
- Warm-up movements
- Main activity suggestions
- Cool-down stretches
- Music/rhythm recommendations
- How movement helps process {{.Emotion}}`,

	CheckIn: `You are an emotional awareness coach. Guide a mindful check-in process:
- Questions to explore current feelings
- Body sensation awareness prompts
- Thought observation techniques
- Emotion naming practice
- Integration and next steps`,

	Creativity: `You are a creativity facilitator. Suggest creative outlets for {{.Emotion}} energy:
- 3 quick creative activities (5-15 min each)
- Materials needed (or none)
- How creativity helps process {{.Emotion}}
- Prompts to get started
- No-pressure approach`,

	Exploration: `You are a mindfulness teacher. Design an exploration practice:
- Curiosity-based awareness exercises
- Sensory exploration activities
- Mindful observation techniques
- Gentle movement with awareness
- Reflection prompts`,
}

// prompts is built once at package init and never mutated.
var prompts = func() map[Category]*template.Template {
	m := make(map[Category]*template.Template, len(promptSources))
	for c, src := range promptSources {
		m[c] = template.Must(template.New(string(c)).Parse(src))
	}
	return m
}()

// Categories returns the closed set of categories.
func Categories() []Category {
	return []Category{Breathing, Meditation, Gratitude, Bodywork, Grounding, SelfCare, Movement, CheckIn, Creativity, Exploration}
}

// ParseCategory maps a raw action type onto a category, falling back to
// CheckIn for anything unrecognized.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := prompts[c]; !ok {
		return CheckIn
	}
	return c
}

// Prompt renders the system prompt for a category.
func Prompt(c Category, label string, emotion mood.Emotion) (string, error) {
	tmpl, ok := prompts[c]
	if !ok {
		tmpl = prompts[CheckIn]
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, struct {
		Label   string
		Emotion mood.Emotion
	}{label, emotion}); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", c, err)
	}
	return b.String(), nil
}

// Generator requests free-text guidance for a micro action.
type Generator struct {
	completer llm.Completer
	logger    *zap.Logger
}

// NewGenerator creates a guidance generator.
func NewGenerator(completer llm.Completer, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{completer: completer, logger: logger}
}

// Guide returns instructional text for the given action.
func (g *Generator) Guide(ctx context.Context, actionType, label string, emotion mood.Emotion) (string, error) {
	category := ParseCategory(actionType)
	g.logger.Info("getting guidance",
		zap.String("category", string(category)),
		zap.String("label", label),
		zap.String("emotion", string(emotion)),
	)

	system, err := Prompt(category, label, emotion)
	if err != nil {
		return "", err
	}
	text, err := g.completer.Complete(ctx, system, "Provide guidance for: "+label)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyCompletion) {
			return "", ErrEmptyGuidance
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyGuidance
	}
	return text, nil
}

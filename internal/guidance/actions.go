package guidance

import "moodspace/internal/mood"

// QuickAction is a one-tap wellness suggestion offered for an emotion.
type QuickAction struct {
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
}

var quickActions = map[mood.Emotion][]QuickAction{
	mood.Calm: {
		{"Box Breathing", "4-4-4-4 pattern", Breathing},
		{"Body Scan", "Release tension", Meditation},
		{"Gentle Stretch", "Neck & shoulders", Bodywork},
	},
	mood.Happy: {
		{"Gratitude", "List 3 things", Gratitude},
		{"Dance Break", "Move freely", Movement},
		{"Share Joy", "Text a friend", SelfCare},
	},
	mood.Anxious: {
		{"4-7-8 Breath", "Calming technique", Breathing},
		{"Ground Yourself", "5-4-3-2-1 method", Grounding},
		{"Self-Compassion", "Kind words", SelfCare},
	},
	mood.Sad: {
		{"Self-Care", "Be gentle", SelfCare},
		{"Slow Breathing", "Find rhythm", Breathing},
		{"Mini Journal", "Express feelings", CheckIn},
	},
	mood.Excited: {
		{"Channel Energy", "Quick workout", Movement},
		{"Create", "Start something", Creativity},
		{"Move", "Physical expression", Movement},
	},
	mood.Neutral: {
		{"Check In", "How do you feel?", CheckIn},
		{"Mindful Breath", "Notice sensations", Breathing},
		{"Explore", "Try something new", Exploration},
	},
}

// QuickActions returns a copy of the actions offered for an emotion.
func QuickActions(e mood.Emotion) []QuickAction {
	src, ok := quickActions[e]
	if !ok {
		src = quickActions[mood.Neutral]
	}
	out := make([]QuickAction, len(src))
	copy(out, src)
	return out
}

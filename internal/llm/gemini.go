package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"moodspace/internal/mood"
)

// GeminiConfig configures direct access to the Gemini API.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Gemini calls the Gemini API with a response schema instead of a tool.
type Gemini struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGemini creates a Gemini-backed classifier and completer.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: gemini api key is not configured")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gemini{client: client, model: cfg.Model, logger: logger}, nil
}

func moodResponseSchema() *genai.Schema {
	var minVal float64 = 0
	var maxVal float64 = 1
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"emotion":      {Type: genai.TypeString, Enum: emotionNames()},
			"intensity":    {Type: genai.TypeNumber, Minimum: &minVal, Maximum: &maxVal},
			"message":      {Type: genai.TypeString},
			"musicAction":  {Type: genai.TypeString},
			"visualAction": {Type: genai.TypeString},
			"microAction":  {Type: genai.TypeString},
		},
		Required:         moodFields,
		PropertyOrdering: moodFields,
	}
}

// Classify implements mood.Classifier.
func (g *Gemini) Classify(ctx context.Context, text string) (mood.State, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(MoodInstruction, genai.RoleUser),
		ResponseSchema:    moodResponseSchema(),
	}
	res, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), config)
	if err != nil {
		g.logger.Error("gemini request failed", zap.Error(err))
		return mood.State{}, fmt.Errorf("gemini error: %w", err)
	}
	raw, ok := firstText(res)
	if !ok {
		return mood.State{}, fmt.Errorf("%w: no candidate in response", ErrMalformedResponse)
	}
	return ParseMoodArguments(raw)
}

// Complete implements Completer.
func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	res, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), config)
	if err != nil {
		g.logger.Error("gemini request failed", zap.Error(err))
		return "", fmt.Errorf("gemini error: %w", err)
	}
	text, ok := firstText(res)
	if !ok {
		return "", ErrEmptyCompletion
	}
	return requireText(text)
}

func firstText(res *genai.GenerateContentResponse) (string, bool) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	return res.Candidates[0].Content.Parts[0].Text, true
}

package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"moodspace/internal/mood"
)

// OpenAIConfig configures an OpenAI-compatible chat-completion gateway.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI talks to any OpenAI-compatible gateway through langchaingo.
type OpenAI struct {
	model  llms.Model
	logger *zap.Logger
}

// NewOpenAI builds a gateway client. The API key is required.
func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is not configured")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAI{model: m, logger: logger}, nil
}

// Classify implements mood.Classifier using a forced function call.
func (o *OpenAI) Classify(ctx context.Context, text string) (mood.State, error) {
	o.logger.Debug("analyzing mood", zap.Int("textLength", len(text)))

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, MoodInstruction),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}
	tools := []llms.Tool{{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        MoodToolName,
			Description: moodToolDescription,
			Parameters:  MoodSchema(),
		},
	}}

	resp, err := o.model.GenerateContent(ctx, messages,
		llms.WithTools(tools),
		llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: MoodToolName},
		}),
	)
	if err != nil {
		o.logger.Error("gateway request failed", zap.Error(err))
		return mood.State{}, fmt.Errorf("gateway error: %w", err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].ToolCalls) == 0 {
		return mood.State{}, fmt.Errorf("%w: no tool call in response", ErrMalformedResponse)
	}
	call := resp.Choices[0].ToolCalls[0]
	if call.FunctionCall == nil {
		return mood.State{}, fmt.Errorf("%w: tool call has no function", ErrMalformedResponse)
	}

	state, err := ParseMoodArguments(call.FunctionCall.Arguments)
	if err != nil {
		return mood.State{}, err
	}
	o.logger.Info("mood analyzed",
		zap.String("emotion", string(state.Emotion)),
		zap.Float64("intensity", state.Intensity),
	)
	return state, nil
}

// Complete implements Completer with an unconstrained chat completion.
func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	resp, err := o.model.GenerateContent(ctx, messages)
	if err != nil {
		o.logger.Error("gateway request failed", zap.Error(err))
		return "", fmt.Errorf("gateway error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return requireText(resp.Choices[0].Content)
}

package classifier

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/example/waste-report/internal/logging"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient classifies images through an OpenAI compatible chat
// completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient creates a classifier for the OpenAI API, or any server
// implementing it when baseURL is set.
func NewOpenAIClient(apiKey, baseURL, model string, logger *zap.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.Named("classifier.openai"),
	}
}

// Classify sends the prompt and the image as one multi-part user message.
func (o *OpenAIClient) Classify(ctx context.Context, prompt string, image Image) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: image.DataURL()},
					},
				},
			},
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		wrapped := logging.NewOperationError("classifier.openai.chat_completion", "", err)
		o.logger.Error("openai call failed", zap.Error(wrapped), zap.String("model", o.model))
		return "", wrapped
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", logging.NewOperationError("classifier.openai.chat_completion", resp.ID, ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

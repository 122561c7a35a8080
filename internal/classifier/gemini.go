package classifier

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/example/waste-report/internal/logging"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiClient classifies images with a Gemini model.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiClient creates a Gemini backed classifier. baseURL overrides the
// API endpoint and is meant for tests.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string, logger *zap.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{client: client, model: model, logger: logger.Named("classifier.gemini")}, nil
}

// Classify sends the prompt and the image in a single user turn.
func (g *GeminiClient) Classify(ctx context.Context, prompt string, image Image) (string, error) {
	data, err := base64.StdEncoding.DecodeString(image.Base64)
	if err != nil {
		return "", logging.NewOperationError("classifier.gemini.decode_image", "", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(data, image.MIMEType),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		wrapped := logging.NewOperationError("classifier.gemini.generate_content", "", err)
		g.logger.Error("gemini call failed", zap.Error(wrapped), zap.String("model", g.model))
		return "", wrapped
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", logging.NewOperationError("classifier.gemini.generate_content", "", ErrEmptyResponse)
	}
	return text, nil
}

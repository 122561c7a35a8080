// Package classifier talks to the remote vision-language model that
// classifies waste images.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/waste-report/internal/config"
)

// Image is an encoded image as sent to the model.
type Image struct {
	// Base64 holds the standard base64 encoding of the image bytes, without a
	// data URL prefix.
	Base64   string
	MIMEType string
}

// DataURL renders the image as a data: URL.
func (i Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIMEType, i.Base64)
}

// Client is the subset of the model API used by the verification workflow.
// Classify returns the raw text the model answered with.
type Client interface {
	Classify(ctx context.Context, prompt string, image Image) (string, error)
}

// ErrEmptyResponse is returned when the model answers without any text.
var ErrEmptyResponse = errors.New("classifier returned an empty response")

// New builds the backend selected by cfg.Provider.
func New(ctx context.Context, cfg config.ClassifierConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, "", logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, logger), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("expected config, got error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if cfg.Classifier.Provider != ProviderGemini || cfg.Classifier.GeminiModel != "gemini-1.5-flash" {
		t.Fatalf("unexpected classifier config: %+v", cfg.Classifier)
	}
	if cfg.Classifier.Timeout != time.Minute {
		t.Fatalf("unexpected classify timeout: %s", cfg.Classifier.Timeout)
	}
	if cfg.Storage.Backend != StorageInline {
		t.Fatalf("unexpected storage backend: %s", cfg.Storage.Backend)
	}
	if cfg.Policy.MaxImageBytes != 0 || cfg.Policy.MaxVerifyAttempts != 0 || len(cfg.Policy.AllowedMIMETypes) != 0 {
		t.Fatalf("expected permissive policy by default, got %+v", cfg.Policy)
	}
}

func TestFromEnvParsesPolicyList(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("POLICY_ALLOWED_MIME_TYPES", "image/png,image/jpeg")
	t.Setenv("POLICY_MAX_VERIFY_ATTEMPTS", "3")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("expected config, got error: %v", err)
	}
	if len(cfg.Policy.AllowedMIMETypes) != 2 || cfg.Policy.AllowedMIMETypes[1] != "image/jpeg" {
		t.Fatalf("unexpected mime types: %v", cfg.Policy.AllowedMIMETypes)
	}
	if cfg.Policy.MaxVerifyAttempts != 3 {
		t.Fatalf("unexpected attempts: %d", cfg.Policy.MaxVerifyAttempts)
	}
}

func TestValidateRejectsMissingCredentials(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "gemini without key", env: map[string]string{"CLASSIFIER_PROVIDER": "gemini"}},
		{name: "openai without key", env: map[string]string{"CLASSIFIER_PROVIDER": "openai"}},
		{name: "unknown provider", env: map[string]string{"CLASSIFIER_PROVIDER": "llama", "GEMINI_API_KEY": "key"}},
		{name: "s3 without bucket", env: map[string]string{"GEMINI_API_KEY": "key", "IMAGE_STORE": "s3"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiProvider implements Provider with the Gemini SDK.
type geminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

func newGeminiProvider(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	name := cfg.Model
	if name == "" {
		name = "gemini-1.5-flash"
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(name)
	temperature := float32(cfg.temperature())
	maxTokens := int32(cfg.maxTokens())
	model.Temperature = &temperature
	model.MaxOutputTokens = &maxTokens

	return &geminiProvider{client: client, model: model, name: name}, nil
}

func (g *geminiProvider) Model() string { return g.name }

// Complete sends the system and user prompts as two text parts.
func (g *geminiProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(system), genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
		if text.Len() > 0 {
			break
		}
	}

	if text.Len() == 0 {
		return "", fmt.Errorf("no response from Gemini API")
	}
	return text.String(), nil
}

// Close releases the underlying SDK client.
func (g *geminiProvider) Close() error {
	return g.client.Close()
}

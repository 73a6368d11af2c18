package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGenAIModel is used when no model name is configured.
const DefaultGenAIModel = "gemini-2.0-flash"

// GenAIProvider calls Google's Gemini API.
type GenAIProvider struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGenAIProvider creates a Gemini provider.
func NewGenAIProvider(ctx context.Context, apiKey, model string, temperature float32) (*GenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = DefaultGenAIModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIProvider{
		client:      client,
		model:       model,
		temperature: temperature,
	}, nil
}

// Name returns the provider name.
func (p *GenAIProvider) Name() string {
	return fmt.Sprintf("genai:%s", p.model)
}

// Complete runs a single generation.
func (p *GenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(p.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	return resp.Text(), nil
}

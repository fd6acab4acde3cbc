package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type GeminiAnswerer struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiAnswerer(ctx context.Context, apiKey, model string, temperature float64) (*GeminiAnswerer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client failed: %w", err)
	}
	return &GeminiAnswerer{client: client, model: model, temperature: float32(temperature)}, nil
}

func (a *GeminiAnswerer) Answer(ctx context.Context, question string, contexts []string) (string, error) {
	temperature := a.temperature
	system := genai.Text(systemPrompt)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: system[0],
		Temperature:       &temperature,
	}

	result, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(BuildPrompt(question, contexts)), cfg)
	if err != nil {
		return "", fmt.Errorf("%w: gemini api call failed: %v", ErrSynthesis, err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrSynthesis)
	}

	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	reply := strings.TrimSpace(b.String())
	if reply == "" {
		return "", fmt.Errorf("%w: empty gemini reply", ErrSynthesis)
	}
	return reply, nil
}

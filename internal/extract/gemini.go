package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"zionic-engine/internal/domain"
	"zionic-engine/internal/lead"
)

//go:embed prompt.md
var promptTemplate string

const (
	defaultModel     = "gemini-2.5-flash"
	maxLogPreviewLen = 200
)

// Gemini extracts lead fields with the Gemini API.
type Gemini struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

// NewGemini creates the extractor. The model name is optional.
func NewGemini(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	return &Gemini{client: client, modelName: model, logger: logger}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Extract(ctx context.Context, p domain.RawPosting) (lead.Fields, error) {
	prompt := buildPrompt(p)

	g.logger.Debug("gemini extract request",
		zap.String("subject", p.Subject),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
	)

	raw, err := g.generate(ctx, prompt)
	if err != nil {
		return lead.EmptyFields(), err
	}

	g.logger.Debug("gemini extract response",
		zap.String("subject", p.Subject),
		zap.String("response_preview", preview(raw)),
	)

	return lead.ParsePayload(raw)
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("gemini extractor is not initialized")
	}

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	out := strings.TrimSpace(builder.String())
	if out == "" {
		return "", errors.New("gemini api returned empty response")
	}
	return out, nil
}

func buildPrompt(p domain.RawPosting) string {
	received := ""
	if !p.ReceivedAt.IsZero() {
		received = p.ReceivedAt.Format(time.RFC3339)
	}
	adURL := p.SourceURL
	if adURL == "" {
		adURL = lead.Sentinel
	}

	prompt := promptTemplate
	prompt = strings.ReplaceAll(prompt, "{{SUBJECT}}", p.Subject)
	prompt = strings.ReplaceAll(prompt, "{{FROM}}", p.From)
	prompt = strings.ReplaceAll(prompt, "{{RECEIVED}}", received)
	prompt = strings.ReplaceAll(prompt, "{{AD_URL}}", adURL)
	prompt = strings.ReplaceAll(prompt, "{{BODY}}", p.Body)
	return prompt
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxLogPreviewLen {
		return s
	}
	return string(runes[:maxLogPreviewLen]) + "..."
}

// Package ai holds the Gemini-backed reply classifier and message enhancer.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/unclebandit/creator-outreach/internal/model"
)

const (
	DefaultModel  = "gemini-2.5-flash"
	FallbackModel = "gemini-2.5-flash-lite"
	// maxMessageRunes bounds enhanced invitations; longer output is rejected.
	maxMessageRunes = 500
)

var ErrEmptyResponse = errors.New("model returned no content")

type generateFunc func(ctx context.Context, modelName, prompt string, cfg *genai.GenerateContentConfig) (string, error)

// Gemini classifies creator replies and rewrites invitations. Models are tried in order;
// a rate-limited or missing model falls through to the next one.
type Gemini struct {
	models   []string
	generate generateFunc
}

func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	if modelName == "" {
		modelName = DefaultModel
	}
	models := []string{modelName}
	if modelName != FallbackModel {
		models = append(models, FallbackModel)
	}

	return &Gemini{
		models: models,
		generate: func(ctx context.Context, modelName, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
			resp, err := client.Models.GenerateContent(ctx, modelName, genai.Text(prompt), cfg)
			if err != nil {
				return "", err
			}
			if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
				len(resp.Candidates[0].Content.Parts) == 0 {
				return "", ErrEmptyResponse
			}
			return resp.Candidates[0].Content.Parts[0].Text, nil
		},
	}, nil
}

const classifyPrompt = `Classify the sentiment of this creator's reply to an affiliate collaboration invitation.

Reply: %q

Answer with JSON only: {"sentiment": "positive" | "negative" | "neutral"}.
"positive" means the creator agrees to collaborate, "negative" means they refuse,
anything else (questions, negotiation, unclear) is "neutral".`

// Classify returns the reply's sentiment.
func (g *Gemini) Classify(ctx context.Context, text string) (model.Sentiment, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.2),
		MaxOutputTokens:  100,
		ResponseMIMEType: "application/json",
	}
	out, err := g.tryModels(ctx, fmt.Sprintf(classifyPrompt, text), cfg)
	if err != nil {
		return "", err
	}

	var result struct {
		Sentiment string `json:"sentiment"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(out)), &result); err != nil {
		return "", fmt.Errorf("decode classification %q: %w", out, err)
	}
	s := model.Sentiment(strings.ToLower(strings.TrimSpace(result.Sentiment)))
	if !s.Valid() {
		return "", fmt.Errorf("unexpected sentiment %q", result.Sentiment)
	}
	return s, nil
}

const enhancePrompt = `Rewrite this affiliate collaboration invitation for a TikTok creator so it reads
personal and warm. Keep every fact, keep it under 300 characters, no hashtags, no emojis
beyond one. Output only the message text.

Creator: %s, %d followers, categories: %s
Message: %s`

// Enhance rewrites an already rendered invitation.
func (g *Gemini) Enhance(ctx context.Context, text string, c *model.Creator) (string, error) {
	name := c.DisplayName
	if name == "" {
		name = c.Username
	}
	prompt := fmt.Sprintf(enhancePrompt, name, c.FollowerCount, strings.Join(c.Categories, ", "), text)
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		MaxOutputTokens: 300,
	}

	out, err := g.tryModels(ctx, prompt, cfg)
	if err != nil {
		return "", err
	}
	out = strings.Trim(strings.TrimSpace(out), `"`)
	if out == "" {
		return "", ErrEmptyResponse
	}
	if utf8.RuneCountInString(out) > maxMessageRunes {
		return "", fmt.Errorf("enhanced message too long (%d runes)", utf8.RuneCountInString(out))
	}
	return out, nil
}

func (g *Gemini) tryModels(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	var lastErr error
	for _, name := range g.models {
		out, err := g.generate(ctx, name, prompt, cfg)
		if err == nil {
			return out, nil
		}
		if !retryable(err) {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		log.Warn().Err(err).Str("model", name).Msg("gemini model unavailable, trying next")
		lastErr = err
	}
	return "", fmt.Errorf("all gemini models failed: %w", lastErr)
}

func retryable(err error) bool {
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "exhausted", "404", "not found"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func cleanJSON(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}

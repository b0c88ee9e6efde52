// Package llm drafts answer explanations through an OpenAI-compatible API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/olympiad/internal/llm/prompts"
	"github.com/pavelanni/olympiad/internal/model"
)

// ErrEmptyExplanation is returned when the model answers with no text.
var ErrEmptyExplanation = errors.New("llm returned an empty explanation")

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
	style prompts.Style
}

// New creates a new LLM client. An empty baseURL uses the OpenAI endpoint.
func New(baseURL, apiKey, modelName string, style prompts.Style) (*Client, error) {
	if !prompts.IsValidStyle(string(style)) {
		return nil, fmt.Errorf("invalid explanation style %q", style)
	}
	if err := prompts.Load(); err != nil {
		return nil, err
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		style: style,
	}, nil
}

// Ping checks that the endpoint answers and knows the configured model.
func (c *Client) Ping(ctx context.Context) error {
	models, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range models.Models {
		if m.ID == c.model {
			return nil
		}
	}
	return fmt.Errorf("model %q not offered by endpoint", c.model)
}

type explanationResponse struct {
	Explanation string `json:"explanation"`
}

// DraftExplanation asks the model to explain why q's answer key is correct.
func (c *Client) DraftExplanation(ctx context.Context, category model.Category, lang string, q model.Question) (string, error) {
	systemPrompt, err := prompts.BuildExplainPrompt(c.style, category, lang, q)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Write the explanation."},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "question", q.ID, "raw", raw)

	var out explanationResponse
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	text := strings.TrimSpace(out.Explanation)
	if text == "" {
		return "", ErrEmptyExplanation
	}
	return text, nil
}

// FillExplanations drafts an explanation for every question of e that has
// none. It returns how many were added; questions drafted before an error
// are kept in e.
func (c *Client) FillExplanations(ctx context.Context, e *model.Exam, lang string) (int, error) {
	added := 0
	for i := range e.Questions {
		q := &e.Questions[i]
		if strings.TrimSpace(q.Explanation) != "" {
			continue
		}
		text, err := c.DraftExplanation(ctx, e.Category, lang, *q)
		if err != nil {
			return added, fmt.Errorf("question %q: %w", q.ID, err)
		}
		q.Explanation = text
		added++
	}
	return added, nil
}

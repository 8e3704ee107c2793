package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/bobarin/muvi/internal/apperr"
)

// ---------------------------------------------------------------------------
// LLM providers
// Two families behind one interface: OpenAI (chat completion, JSON mode) and
// Gemini (generate content, JSON response). The project's llm_preference
// selects which one drives storyboard and scene generation.
// ---------------------------------------------------------------------------

const (
	openaiPlanningModel = "gpt-5-mini"
	geminiPlanningModel = "gemini-2.5-pro"
)

// LLMProvider produces a JSON document from a system+user prompt pair. The
// raw string may still carry markdown fences; use StripJSONFences before
// unmarshalling.
type LLMProvider interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
	Name() string
	Model() string
}

// NewLLMProvider resolves an llm_preference ("openai" or "gemini") against
// the configured keys. Preferring a provider whose key is missing is a
// validation error so misconfiguration surfaces before any storyboard work.
func NewLLMProvider(preference, openaiKey, geminiKey string) (LLMProvider, error) {
	switch strings.ToLower(preference) {
	case "", "openai":
		if openaiKey == "" {
			return nil, apperr.Validation("llm_preference is openai but OPENAI_API_KEY is not set")
		}
		return &openAIProvider{client: openai.NewClient(openaiKey)}, nil
	case "gemini":
		if geminiKey == "" {
			return nil, apperr.Validation("llm_preference is gemini but GEMINI_API_KEY is not set")
		}
		return &geminiProvider{apiKey: geminiKey}, nil
	default:
		return nil, apperr.Validation("unknown llm_preference %q", preference)
	}
}

// StripJSONFences removes a markdown code fence around a JSON payload, which
// both providers occasionally emit despite JSON mode.
func StripJSONFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// ---------------------------------------------------------------------------
// OpenAI
// ---------------------------------------------------------------------------

type openAIProvider struct {
	client *openai.Client
}

func (p *openAIProvider) Name() string  { return "openai" }
func (p *openAIProvider) Model() string { return openaiPlanningModel }

func (p *openAIProvider) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openaiPlanningModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.KindBackendPermanent, "no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 500 {
			return apperr.Wrap(apperr.KindBackendTransient, err, "openai request failed")
		}
		return apperr.Wrap(apperr.KindBackendPermanent, err, "openai request rejected")
	}
	// Transport-level failure
	return apperr.Wrap(apperr.KindBackendTransient, err, "openai request failed")
}

// ---------------------------------------------------------------------------
// Gemini
// ---------------------------------------------------------------------------

type geminiProvider struct {
	apiKey string
}

func (p *geminiProvider) Name() string  { return "gemini" }
func (p *geminiProvider) Model() string { return geminiPlanningModel }

func (p *geminiProvider) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, geminiPlanningModel, genai.Text(user), config)
	if err != nil {
		return "", apperr.Wrap(apperr.KindBackendTransient, err, "gemini request failed")
	}
	text := resp.Text()
	if text == "" {
		return "", apperr.New(apperr.KindBackendPermanent, "gemini returned no text")
	}
	log.Printf("[LLM] gemini response: %d chars", len(text))
	return text, nil
}

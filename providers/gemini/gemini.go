// SPDX-License-Identifier: Apache-2.0

// Package gemini provides a Google Gemini backend for Clade.
package gemini

import (
	"context"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/imoran/clade/pkg/errors"
	"github.com/imoran/clade/pkg/llm"
)

// DefaultModel is used when a request carries no model.
const DefaultModel = "gemini-3-flash-preview"

// Provider implements llm.Provider for the Google Gemini API. Credentials
// arrive per request; clients are cached per key so rotation does not pay a
// handshake on every call.
type Provider struct {
	model string

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// New creates a Gemini provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		model:   DefaultModel,
		clients: make(map[string]*genai.Client),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[apiKey]; ok {
		return client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, "failed to create gemini client", err)
	}
	p.clients[apiKey] = client
	return client, nil
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if req.APIKey == "" {
		return nil, errors.New(errors.CodeConfiguration, "gemini request carries no api key", nil)
	}
	client, err := p.clientFor(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	contents, systemInstruction := convertMessages(req.Messages)
	config := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, classifyError(err)
	}
	return convertResponse(resp), nil
}

// classifyError maps Gemini API failures onto the engine's error taxonomy so
// the invoker knows whether to rotate credentials.
func classifyError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "resource_exhausted", "resource exhausted", "quota", "rate limit"} {
		if strings.Contains(msg, marker) {
			return errors.New(errors.CodeTransientResource, "gemini quota exhausted", err)
		}
	}
	return errors.New(errors.CodePermanentCall, "gemini generate content failed", err)
}

func convertMessages(messages []llm.Message) ([]*genai.Content, string) {
	var systemInstruction string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			systemInstruction = msg.Content
		case llm.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}
	return contents, systemInstruction
}

func convertResponse(resp *genai.GenerateContentResponse) *llm.ChatResponse {
	result := &llm.ChatResponse{}
	if resp.UsageMetadata != nil {
		result.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				result.Content += part.Text
			}
		}
	}
	return result
}

// Package generation adapts the text-generation backends the routing
// engine can hand a conversation to. The gateway passes the routing
// decision through and never interprets the generated text.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/medbridge-ai/medgate/types"
)

// ErrNoBackend is returned when a destination has no configured backend.
var ErrNoBackend = errors.New("no generation backend configured")

// Backend generates text for a routed request.
type Backend interface {
	Generate(ctx context.Context, decision types.RoutingDecision, prompt string) (string, error)
}

// llmBackend wraps a langchaingo model.
type llmBackend struct {
	model llms.Model
}

func (b *llmBackend) Generate(ctx context.Context, decision types.RoutingDecision, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, b.model, prompt)
}

// NewLocal creates the local-only backend against an Ollama server. Local
// generation is the privacy-preserving destination: prompts never leave the
// host.
func NewLocal(serverURL, model string) (Backend, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create local backend: %w", err)
	}
	return &llmBackend{model: llm}, nil
}

// NewRemote creates the remote backend against an OpenAI-compatible API.
func NewRemote(baseURL, model, apiKey string) (Backend, error) {
	opts := []openai.Option{
		openai.WithModel(model),
		openai.WithToken(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create remote backend: %w", err)
	}
	return &llmBackend{model: llm}, nil
}

// Router picks the backend matching a routing decision.
type Router struct {
	Local  Backend
	Remote Backend
}

// For returns the backend for generation destinations, or ErrNoBackend.
// Non-generation destinations (tools, internal handlers) have no backend.
func (r *Router) For(decision types.RoutingDecision) (Backend, error) {
	switch decision.Kind {
	case types.DestLocalGeneration:
		if r.Local == nil {
			return nil, ErrNoBackend
		}
		return r.Local, nil
	case types.DestRemoteGeneration:
		if r.Remote == nil {
			return nil, ErrNoBackend
		}
		return r.Remote, nil
	default:
		return nil, ErrNoBackend
	}
}

// Package llm provides the generative backend implementations behind the
// analyzer's model port.
package llm

import (
	"context"
	"fmt"

	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"

	"github.com/meliorhq/melior/internal/config"
)

// New builds the configured generative backend. A nil model (no error) means
// the backend is disabled and every analysis uses the heuristic path.
func New(ctx context.Context, cfg *config.Config) (model.LLM, error) {
	switch cfg.LLMProvider {
	case "":
		return nil, nil
	case "gemini":
		m, err := gemini.NewModel(ctx, cfg.LLMModel, &genai.ClientConfig{
			APIKey: cfg.GoogleAPIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini model: %w", err)
		}
		return m, nil
	case "openai":
		return NewOpenAIModel(cfg.LLMModel, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

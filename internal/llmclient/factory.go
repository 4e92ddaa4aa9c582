// internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// ProviderGemini is the only provider currently wired.
const ProviderGemini = "gemini"

// NewClient builds the LLM client stack for the configured provider. With a
// single configured model, both tiers route to the same client.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case ProviderGemini:
		client, err := NewGeminiClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewLLMRouter(logger, client, client)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s]", cfg.Provider, ProviderGemini)
	}
}

package extraction

import (
	"fmt"
)

// New creates an extractor for the named provider.
func New(provider string, cfg Config) (Extractor, error) {
	switch provider {
	case "anthropic":
		return newAnthropicExtractor(cfg)
	case "openai":
		return newOpenAIExtractor(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

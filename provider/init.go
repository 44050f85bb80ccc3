package provider

import (
	"log"
	"os"

	"clron/config"
	"clron/model"
)

// InitializeProviders creates provider instances for every enabled
// provider in the configuration.
//
// API keys are read from the environment (ANTHROPIC_API_KEY,
// OPENAI_API_KEY); a provider whose key is missing is skipped with a
// warning rather than failing startup — the service can run with only
// the providers that are actually configured, and an empty map means
// the completion service is unavailable.
func InitializeProviders(cfg *config.Config) map[string]model.Provider {
	providers := make(map[string]model.Provider)

	for _, providerCfg := range cfg.EnabledProviders() {
		baseURL := providerCfg.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultBaseURL(providerCfg.ID)
		}

		p, err := NewProvider(Config{
			Type:    MapProviderIDToType(providerCfg.ID),
			BaseURL: baseURL,
			APIKey:  apiKeyFromEnv(providerCfg.ID),
			Model:   providerCfg.DefaultModel,
		})
		if err != nil {
			// Log warning but don't fail - the service starts degraded
			log.Printf("[Provider] Warning: failed to initialize provider %s: %v", providerCfg.ID, err)
			continue
		}

		providers[providerCfg.ID] = p
		log.Printf("[Provider] Initialized provider: %s (model: %s)", providerCfg.ID, p.GetModel())
	}

	return providers
}

func apiKeyFromEnv(providerID string) string {
	switch providerID {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}

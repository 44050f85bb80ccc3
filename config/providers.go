package config

// ProviderByID returns the configuration entry for a provider, or nil
// if it is not listed.
func (c *Config) ProviderByID(id string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i]
		}
	}
	return nil
}

// EnabledProviders returns the providers the user has switched on.
func (c *Config) EnabledProviders() []ProviderConfig {
	var enabled []ProviderConfig
	for _, p := range c.Providers {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// DefaultBaseURL returns the default API base URL for a provider ID.
func DefaultBaseURL(providerID string) string {
	switch providerID {
	case "anthropic":
		return "https://api.anthropic.com"
	case "openai":
		return "https://api.openai.com/v1"
	case "ollama":
		return "http://localhost:11434"
	default:
		return ""
	}
}

package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/clron",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		ListenAddr:      ":8000",
		DefaultProvider: "anthropic",
		ImageBudgetKB:   4096,
		HistoryLimit:    20,
		Providers: []ProviderConfig{
			{ID: "anthropic", Name: "Anthropic", Enabled: true},
			{ID: "openai", Name: "OpenAI", Enabled: false},
			{ID: "ollama", Name: "Ollama", Enabled: false, BaseURL: "http://localhost:11434", DefaultModel: "llama3.1:latest"},
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# clron System Configuration
# Location: ~/.config/clron/settings.toml
# This file uses TOML format: https://toml.io

# Directory where chat history, uploads and user config are stored
data_directory = "~/.local/share/clron"
`
}

func GenerateUserConfigTemplate() string {
	return `# clron User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Address the HTTP server listens on
listen_addr = ":8000"

# Provider used for completions: "anthropic", "openai" or "ollama".
# API keys are read from the environment (ANTHROPIC_API_KEY,
# OPENAI_API_KEY), never from this file.
default_provider = "anthropic"

# Default system prompt when a request supplies none (optional)
default_system_prompt = ""

# Byte budget for inbound images, in KB. Larger images are re-encoded.
image_budget_kb = 4096

# How many prior messages are loaded when continuing a conversation
history_limit = 20

# Bearer tokens file for authenticated callers (optional).
# Requests without a matching token are served anonymously.
# token_file = "~/.config/clron/tokens.toml"

[[providers]]
id = "anthropic"
name = "Anthropic"
enabled = true

[[providers]]
id = "openai"
name = "OpenAI"
enabled = false

[[providers]]
id = "ollama"
name = "Ollama"
enabled = false
base_url = "http://localhost:11434"
default_model = "llama3.1:latest"
`
}

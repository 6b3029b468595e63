package openailm

import (
	"fmt"
	"log/slog"

	"synapse/pkg/config"
	"synapse/pkg/llm"
)

// OpenAIFactory builds clients for OpenAI and any server speaking its
// chat completions protocol (set base_url).
type OpenAIFactory struct{}

func (f *OpenAIFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	if len(cfg.APIKeys) == 0 && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: api key or base_url required")
	}

	var clients []llm.LLMClient
	for _, cred := range cfg.Credentials() {
		client, err := NewClient("openai", cred.APIKey, cred.Model, cfg.BaseURL, cfg.Options)
		if err != nil {
			slog.Error("Failed to create OpenAI client", "model", cred.Model, "error", err)
			continue
		}
		client.SetDebug(sys != nil && sys.DebugChunks)
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("openai", &OpenAIFactory{})
}

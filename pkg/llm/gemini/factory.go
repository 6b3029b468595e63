package gemini

import (
	"fmt"
	"log/slog"

	"synapse/pkg/config"
	"synapse/pkg/llm"
)

// GeminiFactory builds one client per model/key pair of a "gemini" group.
type GeminiFactory struct{}

func (f *GeminiFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("gemini: api_keys required")
	}
	// thinking_effort "off" 或未設定時不要求 thought summaries
	effort, _ := cfg.Options["thinking_effort"].(string)
	useThought := effort != "" && effort != "off"

	var clients []llm.LLMClient
	for _, cred := range cfg.Credentials() {
		client, err := NewGeminiClient(cred.APIKey, cred.Model, useThought, cfg.Options)
		if err != nil {
			slog.Error("Failed to create Gemini client", "model", cred.Model, "error", err)
			continue
		}
		client.SetDebug(sys != nil && sys.DebugChunks)
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("gemini", &GeminiFactory{})
}

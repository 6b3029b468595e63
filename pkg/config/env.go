package config

import (
	"log/slog"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
)

// Environment keys read by ApplyEnv.
const (
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvGeminiModel     = "GEMINI_MODEL"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvOpenAIModel     = "OPENAI_MODEL"
	EnvOllamaEndpoint  = "OLLAMA_ENDPOINT"
	EnvOllamaModel     = "OLLAMA_MODEL"
	EnvTavilyAPIKey    = "TAVILY_API_KEY"
	EnvGoogleSearchKey = "GOOGLE_SEARCH_API_KEY"
	EnvGoogleSearchCX  = "GOOGLE_SEARCH_CX"
	EnvAzureEndpoint   = "AZURE_OCR_ENDPOINT"
	EnvAzureKey        = "AZURE_OCR_KEY"
	EnvEmailHost       = "EMAIL_HOST"
	EnvEmailPort       = "EMAIL_PORT"
	EnvEmailUser       = "EMAIL_USER"
	EnvEmailPass       = "EMAIL_PASS"
	EnvLogLevel        = "SYNAPSE_LOG_LEVEL"
)

// NewEnv returns a viper instance bound to the process environment.
func NewEnv() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	return v
}

// envProviderGroup mirrors llm.ProviderGroupConfig. It is duplicated here
// because the llm package depends on config.
type envProviderGroup struct {
	Type    string   `json:"type"`
	APIKeys []string `json:"api_keys,omitempty"`
	Models  []string `json:"models"`
	BaseURL string   `json:"base_url,omitempty"`
}

// ApplyEnv fills empty configuration fields from the environment.
// Values already present in the JSON files always win.
func ApplyEnv(cfg *Config, sys *SystemConfig, v *viper.Viper) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = strings.TrimSpace(v.GetString(key))
		}
	}

	fill(&cfg.Tools.Search.TavilyAPIKey, EnvTavilyAPIKey)
	fill(&cfg.Tools.Search.GoogleAPIKey, EnvGoogleSearchKey)
	fill(&cfg.Tools.Search.GoogleCX, EnvGoogleSearchCX)

	fill(&cfg.Tools.OCR.Azure.Endpoint, EnvAzureEndpoint)
	fill(&cfg.Tools.OCR.Azure.Key, EnvAzureKey)
	if cfg.Tools.OCR.Provider == "" && cfg.Tools.OCR.Azure.Endpoint != "" && cfg.Tools.OCR.Azure.Key != "" {
		cfg.Tools.OCR.Provider = "azure"
	}

	fill(&cfg.Tools.Email.Host, EnvEmailHost)
	fill(&cfg.Tools.Email.Username, EnvEmailUser)
	fill(&cfg.Tools.Email.Password, EnvEmailPass)
	if cfg.Tools.Email.Port == 0 {
		cfg.Tools.Email.Port = v.GetInt(EnvEmailPort)
	}

	if sys != nil {
		if lvl := v.GetString(EnvLogLevel); lvl != "" {
			sys.LogLevel = lvl
		}
	}

	if len(cfg.LLM) == 0 {
		if raw := providersFromEnv(v, sys); raw != nil {
			cfg.LLM = raw
		}
	}
}

// providersFromEnv synthesises an llm provider list from API keys found in
// the environment, in gemini, openai, ollama order.
func providersFromEnv(v *viper.Viper, sys *SystemConfig) jsoniter.RawMessage {
	var groups []envProviderGroup

	if key := v.GetString(EnvGeminiAPIKey); key != "" {
		groups = append(groups, envProviderGroup{
			Type:    "gemini",
			APIKeys: []string{key},
			Models:  []string{orDefault(v.GetString(EnvGeminiModel), "gemini-2.5-flash")},
		})
	}
	if key := v.GetString(EnvOpenAIAPIKey); key != "" {
		groups = append(groups, envProviderGroup{
			Type:    "openai",
			APIKeys: []string{key},
			Models:  []string{orDefault(v.GetString(EnvOpenAIModel), "gpt-4o-mini")},
		})
	}
	if model := v.GetString(EnvOllamaModel); model != "" {
		baseURL := v.GetString(EnvOllamaEndpoint)
		if baseURL == "" && sys != nil {
			baseURL = sys.OllamaDefaultURL
		}
		groups = append(groups, envProviderGroup{
			Type:    "ollama",
			Models:  []string{model},
			BaseURL: baseURL,
		})
	}

	if len(groups) == 0 {
		return nil
	}

	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(groups)
	if err != nil {
		slog.Warn("Failed to synthesise llm config from environment", "error", err)
		return nil
	}
	slog.Info("LLM providers configured from environment", "groups", len(groups))
	return raw
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings like channel API keys, LLM provider choices
// and the credentials of the document tools.
type Config struct {
	// Channels contains a map of channel identifiers (e.g., "telegram", "web")
	// to their specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the provider groups used for summarization, analysis,
	// drafting and free-form conversation.
	LLM jsoniter.RawMessage `json:"llm"`
	// RouterLLM optionally holds a separate (usually cheaper) provider group
	// list for intent classification. Falls back to LLM when empty.
	RouterLLM jsoniter.RawMessage `json:"router_llm,omitempty"`
	// SystemPrompt is the persona sent as the system message of every
	// general_query conversation.
	SystemPrompt string `json:"system_prompt"`
	// Tools carries the settings of the external capabilities.
	Tools ToolsConfig `json:"tools"`
}

// ToolsConfig groups the settings of every tool adapter.
type ToolsConfig struct {
	PDF    PDFConfig    `json:"pdf"`
	OCR    OCRConfig    `json:"ocr"`
	Search SearchConfig `json:"search"`
	Email  EmailConfig  `json:"email"`
	Offer  OfferConfig  `json:"offer"`
}

// PDFConfig selects the PDF text engine: "native" (in-process parser) or
// "pdftotext" (poppler CLI).
type PDFConfig struct {
	Engine string `json:"engine"`
	Binary string `json:"binary,omitempty"`
}

// OCRConfig selects one OCR provider by name. Only the section of the
// selected provider is read.
type OCRConfig struct {
	Provider  string          `json:"provider"` // "azure", "tesseract", "vision" or "" (disabled)
	Azure     AzureOCRConfig  `json:"azure"`
	Tesseract TesseractConfig `json:"tesseract"`
}

type AzureOCRConfig struct {
	Endpoint   string `json:"endpoint"`
	Key        string `json:"key"`
	Model      string `json:"model,omitempty"`       // Default: prebuilt-layout
	APIVersion string `json:"api_version,omitempty"` // Default: 2023-07-31
}

type TesseractConfig struct {
	Binary string `json:"binary,omitempty"` // Default: tesseract
	Lang   string `json:"lang,omitempty"`   // Default: eng
}

// SearchConfig holds the web search provider credentials. Providers with
// empty credentials are skipped.
type SearchConfig struct {
	TavilyAPIKey      string  `json:"tavily_api_key"`
	GoogleAPIKey      string  `json:"google_api_key"`
	GoogleCX          string  `json:"google_cx"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
	Burst             int     `json:"burst,omitempty"`
}

// EmailConfig holds the SMTP relay used to deliver confirmed emails.
type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	FromName string `json:"from_name,omitempty"`
}

// OfferConfig holds the letterhead used when drafting offer letters.
type OfferConfig struct {
	Company string `json:"company,omitempty"`
	Sender  string `json:"sender,omitempty"`
}

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	switch c.Tools.OCR.Provider {
	case "", "azure", "tesseract", "vision":
	default:
		return fmt.Errorf("unknown ocr provider %q", c.Tools.OCR.Provider)
	}
	return nil
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control the
// performance, reliability, and technical behavior of the agent.
type SystemConfig struct {
	// MaxRetries is the number of times the system will attempt to
	// recover from a transient LLM or network error before giving up.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for one
	// request. The context will be cancelled if exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// OllamaDefaultURL is the fallback endpoint used when connecting
	// to a local Ollama instance if no specific URL is provided.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// InternalChannelBuffer defines the size of the internal Go channels
	// used for buffering stream chunks and events.
	InternalChannelBuffer int `json:"internal_channel_buffer"`
	// TelegramMessageLimit is the maximum character count for a single
	// Telegram message. Longer responses will be split into multiple chunks.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// DownloadTimeoutMs is the timeout (in milliseconds) applied when
	// fetching uploaded files from Telegram servers.
	DownloadTimeoutMs int `json:"download_timeout_ms"`
	// ShowThinking forwards provider reasoning blocks as thought events.
	ShowThinking bool `json:"show_thinking"`
	// DebugChunks enables saving every raw LLM response chunk to the /debug
	// folder for inspection and troubleshooting purposes.
	DebugChunks bool `json:"debug_chunks"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// SessionTTLMs is the idle time after which a session and its
	// scratchpad are dropped.
	SessionTTLMs int `json:"session_ttl_ms"`
	// MaxSessions bounds the number of live sessions. The least recently
	// used session is evicted when the bound is reached.
	MaxSessions int `json:"max_sessions"`
	// HistoryLimit is the number of conversational messages kept per session
	// for general queries.
	HistoryLimit int `json:"history_limit"`
	// PollMaxAttempts is the attempt ceiling for asynchronous analysis jobs.
	PollMaxAttempts int `json:"poll_max_attempts"`
	// PollDelayMs is the fixed delay between two polls.
	PollDelayMs int `json:"poll_delay_ms"`
	// SearchResultCount is the result count requested by web_search.
	SearchResultCount int `json:"search_result_count"`
	// PDFMinTextChars is the text length under which a PDF is considered
	// scanned and sent to OCR.
	PDFMinTextChars int `json:"pdf_min_text_chars"`
	// MaxUploadBytes caps the size of an uploaded file.
	MaxUploadBytes int64 `json:"max_upload_bytes"`
	// OCRTimeoutMs bounds one HTTP call to a remote OCR provider, including
	// the upload of the document.
	OCRTimeoutMs int `json:"ocr_timeout_ms"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:            3,
		RetryDelayMs:          500,
		LLMTimeoutMs:          600000,
		OllamaDefaultURL:      "http://localhost:11434",
		InternalChannelBuffer: 100,
		TelegramMessageLimit:  4000,
		DownloadTimeoutMs:     10000,
		ShowThinking:          false,
		LogLevel:              "info",
		SessionTTLMs:          30 * 60 * 1000,
		MaxSessions:           1000,
		HistoryLimit:          20,
		PollMaxAttempts:       15,
		PollDelayMs:           2000,
		SearchResultCount:     5,
		PDFMinTextChars:       50,
		MaxUploadBytes:        20 << 20,
		OCRTimeoutMs:          60000,
	}
}

// Load reads and parses the JSON configuration files.
// It first attempts to load the app config. If this file is missing, it returns an error.
// Then it calls LoadSystemConfig to load the system config and finally
// applies the environment overlay.
func Load(appPath, sysPath string) (*Config, *SystemConfig, error) {
	// 1. Load Application Config
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// 2. Load System Config independently
	sysCfg := LoadSystemConfig(sysPath)

	// 3. Environment fills whatever the files left empty
	ApplyEnv(&cfg, sysCfg, NewEnv())

	// 3a. Validate structure integrity
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return &cfg, sysCfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return DefaultSystemConfig() // Parse failed, use defaults
	}

	return cfg
}

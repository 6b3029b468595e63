package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSystemConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg := LoadSystemConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, DefaultSystemConfig(), cfg)
}

func TestLoadSystemConfig_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"poll_max_attempts": 3, "log_level": "debug"}`), 0644))

	cfg := LoadSystemConfig(path)
	assert.Equal(t, 3, cfg.PollMaxAttempts)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2000, cfg.PollDelayMs, "untouched fields keep their defaults")
	assert.Equal(t, 60000, cfg.OCRTimeoutMs)
}

func TestLoadSystemConfig_CorruptFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"poll_max_attempts": `), 0644))

	assert.Equal(t, DefaultSystemConfig(), LoadSystemConfig(path))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "missing llm", cfg: Config{}, wantErr: true},
		{name: "ok", cfg: Config{LLM: jsoniter.RawMessage(`[]`)}},
		{name: "unknown ocr", cfg: Config{LLM: jsoniter.RawMessage(`[]`), Tools: ToolsConfig{OCR: OCRConfig{Provider: "paper"}}}, wantErr: true},
		{name: "tesseract ocr", cfg: Config{LLM: jsoniter.RawMessage(`[]`), Tools: ToolsConfig{OCR: OCRConfig{Provider: "tesseract"}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyEnv_FillsOnlyEmptyFields(t *testing.T) {
	v := viper.New()
	v.Set(EnvTavilyAPIKey, "tv-env")
	v.Set(EnvGoogleSearchKey, "g-env")
	v.Set(EnvEmailHost, "smtp.example.com")
	v.Set(EnvEmailPort, "587")
	v.Set(EnvAzureEndpoint, "https://ocr.example.com")
	v.Set(EnvAzureKey, "az")

	cfg := &Config{LLM: jsoniter.RawMessage(`[{"type":"ollama","models":["m"]}]`)}
	cfg.Tools.Search.GoogleAPIKey = "g-file"
	sys := DefaultSystemConfig()

	ApplyEnv(cfg, sys, v)

	assert.Equal(t, "tv-env", cfg.Tools.Search.TavilyAPIKey)
	assert.Equal(t, "g-file", cfg.Tools.Search.GoogleAPIKey)
	assert.Equal(t, "smtp.example.com", cfg.Tools.Email.Host)
	assert.Equal(t, 587, cfg.Tools.Email.Port)
	assert.Equal(t, "azure", cfg.Tools.OCR.Provider)
	assert.JSONEq(t, `[{"type":"ollama","models":["m"]}]`, string(cfg.LLM))
}

func TestApplyEnv_SynthesisesProviders(t *testing.T) {
	v := viper.New()
	v.Set(EnvGeminiAPIKey, "gk")
	v.Set(EnvOllamaModel, "llama3.1")

	cfg := &Config{}
	ApplyEnv(cfg, DefaultSystemConfig(), v)

	var groups []envProviderGroup
	require.NoError(t, jsoniter.Unmarshal(cfg.LLM, &groups))
	require.Len(t, groups, 2)
	assert.Equal(t, "gemini", groups[0].Type)
	assert.Equal(t, []string{"gk"}, groups[0].APIKeys)
	assert.Equal(t, "ollama", groups[1].Type)
	assert.Equal(t, "http://localhost:11434", groups[1].BaseURL)
}

func TestApplyEnv_NoProvidersLeavesLLMEmpty(t *testing.T) {
	cfg := &Config{}
	ApplyEnv(cfg, DefaultSystemConfig(), viper.New())
	assert.Empty(t, cfg.LLM)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	appPath := filepath.Join(dir, "config.json")
	sysPath := filepath.Join(dir, "system.json")
	require.NoError(t, os.WriteFile(appPath, []byte(`{
		"llm": [{"type":"gemini","api_keys":["k"],"models":["gemini-2.5-flash"]}],
		"tools": {"ocr": {"provider": "tesseract"}, "offer": {"company": "Acme"}}
	}`), 0644))

	cfg, sys, err := Load(appPath, sysPath)
	require.NoError(t, err)
	assert.Equal(t, "tesseract", cfg.Tools.OCR.Provider)
	assert.Equal(t, "Acme", cfg.Tools.Offer.Company)
	assert.Equal(t, 15, sys.PollMaxAttempts)

	_, _, err = Load(filepath.Join(dir, "missing.json"), sysPath)
	assert.Error(t, err)
}

func TestWatchConfig_SignalsOnWrite(t *testing.T) {
	old := watchDebounce
	watchDebounce = 10 * time.Millisecond
	t.Cleanup(func() { watchDebounce = old })

	path := filepath.Join(t.TempDir(), "system.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := WatchConfig(ctx, path)
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"debug"}`), 0644))

	select {
	case _, ok := <-ch:
		assert.True(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload signal")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

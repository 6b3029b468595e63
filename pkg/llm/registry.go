package llm

import (
	"sort"
	"sync"

	"synapse/pkg/config"
)

// ProviderGroupConfig 定義一組模型的配置，作為 Factory 的輸入標準
type ProviderGroupConfig struct {
	Type                string         `json:"type"`
	APIKeys             []string       `json:"api_keys,omitempty"`
	Models              []string       `json:"models"`
	BaseURL             string         `json:"base_url,omitempty"`
	UseThoughtSignature bool           `json:"use_thought_signature,omitempty"`
	Options             map[string]any `json:"options,omitempty"`
}

// Credential is one model/key pair of a provider group.
type Credential struct {
	Model  string
	APIKey string
}

// Credentials expands the group into model x key pairs, models first, so
// every key of the preferred model is tried before the next model. A group
// without keys yields one keyless pair per model.
func (g ProviderGroupConfig) Credentials() []Credential {
	keys := g.APIKeys
	if len(keys) == 0 {
		keys = []string{""}
	}
	out := make([]Credential, 0, len(g.Models)*len(keys))
	for _, model := range g.Models {
		for _, key := range keys {
			out = append(out, Credential{Model: model, APIKey: key})
		}
	}
	return out
}

// ProviderFactory 定義建立 LLM Client 的工廠介面
type ProviderFactory interface {
	// Create 根據配置建立一組 atomic clients
	Create(groupConfig ProviderGroupConfig, systemConfig *config.SystemConfig) ([]LLMClient, error)
}

var (
	providerMu       sync.RWMutex
	providerRegistry = make(map[string]ProviderFactory)
)

// RegisterProvider 註冊一個 Provider Factory
func RegisterProvider(name string, factory ProviderFactory) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[name] = factory
}

// GetProviderFactory 取得指定名稱的 Provider Factory
func GetProviderFactory(name string) (ProviderFactory, bool) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	f, ok := providerRegistry[name]
	return f, ok
}

// Providers 回傳已註冊的 Provider 名稱（排序後）
func Providers() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()
	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

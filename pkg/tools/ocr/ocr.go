// Package ocr provides the OCR providers behind tools.OCRExtractor. A
// provider is chosen by name from configuration through a registry.
package ocr

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"synapse/pkg/config"
	"synapse/pkg/llm"
	"synapse/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Deps are the shared collaborators a provider may need.
type Deps struct {
	System     *config.SystemConfig
	LLM        llm.LLMClient       // vision
	Runner     tools.CommandRunner // tesseract
	HTTPClient *http.Client        // azure; nil uses System.OCRTimeoutMs
}

// Factory builds one provider from its configuration section.
type Factory func(cfg config.OCRConfig, deps Deps) (tools.OCRExtractor, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a provider available under name.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Providers lists registered provider names.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the provider selected by cfg.Provider. An empty provider means
// OCR is disabled and returns (nil, nil).
func New(cfg config.OCRConfig, deps Deps) (tools.OCRExtractor, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	registryMu.RLock()
	f, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
	if deps.System == nil {
		deps.System = config.DefaultSystemConfig()
	}
	return f(cfg, deps)
}

func init() {
	Register("azure", newAzureFromConfig)
	Register("tesseract", newTesseractFromConfig)
	Register("vision", newVisionFromConfig)
}

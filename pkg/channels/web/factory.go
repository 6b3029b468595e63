package web

import (
	"fmt"

	"synapse/pkg/api"
	"synapse/pkg/channels"
	"synapse/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// WebFactory 負責建立 Web Channels
type WebFactory struct{}

// Create 實作 ChannelFactory
func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, system *config.SystemConfig) (api.Channel, error) {
	// 設定預設 Port
	cfg := WebConfig{Port: 8080}

	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse web config: %w", err)
		}
	}
	if system == nil {
		system = config.DefaultSystemConfig()
	}

	return NewWebChannel(cfg, system), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}

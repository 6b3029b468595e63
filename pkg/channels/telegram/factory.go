package telegram

import (
	"fmt"

	"synapse/pkg/api"
	"synapse/pkg/channels"
	"synapse/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramFactory 負責建立 Telegram Channels
type TelegramFactory struct{}

// Create 實作 ChannelFactory
func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, system *config.SystemConfig) (api.Channel, error) {
	var tgCfg TelegramConfig
	if err := json.Unmarshal(rawConfig, &tgCfg); err != nil {
		return nil, fmt.Errorf("failed to parse telegram config: %w", err)
	}

	if tgCfg.Token == "" {
		return nil, fmt.Errorf("missing telegram token")
	}
	if system == nil {
		system = config.DefaultSystemConfig()
	}

	return NewTelegramChannel(tgCfg, system)
}

func init() {
	channels.RegisterChannel("telegram", &TelegramFactory{})
}

package monitor

import "time"

// 監控訊息類型
const (
	MessageTypeUser      = "USER"
	MessageTypeAssistant = "ASSISTANT"
)

// MonitorMessage 代表一則監控訊息
type MonitorMessage struct {
	Timestamp   time.Time
	MessageType string // "USER" or "ASSISTANT"
	ChannelID   string
	SessionID   string
	Username    string
	Tool        string // 本次請求路由到的工具（僅 ASSISTANT）
	Content     string
	Failed      bool // 請求過程中是否出現 error 事件
}

// Monitor 介面定義了監控器的行為
type Monitor interface {
	// Start 啟動監控器
	Start() error

	// Stop 停止監控器
	Stop() error

	// OnMessage 接收並顯示監控訊息
	OnMessage(msg MonitorMessage)
}

// NopMonitor 不做任何事，用於 CLI 單次執行模式
type NopMonitor struct{}

func (NopMonitor) Start() error                 { return nil }
func (NopMonitor) Stop() error                  { return nil }
func (NopMonitor) OnMessage(msg MonitorMessage) {}

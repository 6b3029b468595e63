package llm

import (
	"sync"
)

// ChatHistory 管理對話歷史，支援滑動窗口 (Sliding Window) 限制長度
// 只存在記憶體中，隨 Session 一起過期
type ChatHistory struct {
	messages []Message
	limit    int
	mu       sync.RWMutex
}

// NewChatHistory 建立一個新的歷史管理員，limit <= 0 表示不限制
func NewChatHistory(limit int) *ChatHistory {
	return &ChatHistory{
		messages: make([]Message, 0),
		limit:    limit,
	}
}

// Add 加入一則新訊息，若超過長度則移除最舊的
func (h *ChatHistory) Add(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
	if h.limit > 0 && len(h.messages) > h.limit {
		drop := len(h.messages) - h.limit
		h.messages = append([]Message(nil), h.messages[drop:]...)
	}
}

// GetMessages 取得目前的對話歷史副本
func (h *ChatHistory) GetMessages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cp := make([]Message, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// Len 回傳目前保存的訊息數
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"synapse/pkg/api"
	"synapse/pkg/monitor"
	"synapse/pkg/stream"
	"synapse/pkg/tools"
)

// GatewayManager 負責管理所有的 Channels 並把請求轉交給 RequestHandler
type GatewayManager struct {
	channels map[string]api.Channel
	handler  api.RequestHandler
	monitor  monitor.Monitor // 監控器
	mu       sync.RWMutex
}

// NewGatewayManager 建立一個新的 GatewayManager
func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels: make(map[string]api.Channel),
		monitor:  monitor.NopMonitor{},
	}
}

// SetRequestHandler 設定處理請求的核心邏輯
func (g *GatewayManager) SetRequestHandler(h api.RequestHandler) {
	g.handler = h
}

// SetMonitor 設定監控器
func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	if m != nil {
		g.monitor = m
	}
}

// Register 註冊一個 Channel
func (g *GatewayManager) Register(c api.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel 取得特定的 Channel
func (g *GatewayManager) GetChannel(id string) (api.Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// StartAll 啟動所有已註冊的 Channels
func (g *GatewayManager) StartAll() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Starting channel", "channel", id)
		// 傳入 self 作為 Context
		if err := c.Start(g); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
	}
	return nil
}

// StopAll 停止所有 Channels
func (g *GatewayManager) StopAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Stopping channel", "channel", id)
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "channel", id, "error", err)
		}
	}
	if err := g.monitor.Stop(); err != nil {
		slog.Error("Error stopping monitor", "error", err)
	}
}

// OnRequest 實作 ChannelContext 介面，接收來自 Channel 的請求
func (g *GatewayManager) OnRequest(ctx context.Context, req *api.Request, sink stream.Sink) error {
	content := req.Message
	if req.File != nil {
		content = strings.TrimSpace(fmt.Sprintf("%s [file: %s]", content, req.File.Filename))
	}
	g.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: monitor.MessageTypeUser,
		ChannelID:   req.Session.ChannelID,
		SessionID:   req.Session.Key(),
		Username:    req.Session.Username,
		Content:     content,
	})

	if g.handler == nil {
		slog.Warn("No request handler set", "channel", req.Session.ChannelID)
		if err := sink.Emit(stream.Error(stream.ErrorPayload{Kind: string(tools.KindInternal), Message: "the agent is not ready"})); err != nil {
			return err
		}
		return sink.Emit(stream.End())
	}

	// 同時收集回覆內容廣播到監控器
	tap := &replyTap{}
	out, err := g.handler.Handle(ctx, req, stream.Multi(sink, tap))

	g.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: monitor.MessageTypeAssistant,
		ChannelID:   req.Session.ChannelID,
		SessionID:   req.Session.Key(),
		Username:    req.Session.Username,
		Tool:        string(out.Tool),
		Content:     tap.summary(),
		Failed:      out.Failed,
	})
	return err
}

// SendEmail 實作 ChannelContext 介面
func (g *GatewayManager) SendEmail(ctx context.Context, email tools.Email) (*tools.Delivery, error) {
	if g.handler == nil {
		return nil, tools.Errorf(tools.KindDeliveryFailed, "email", "the agent is not ready")
	}
	return g.handler.SendEmail(ctx, email)
}

// ConfirmEmail 實作 ChannelContext 介面
func (g *GatewayManager) ConfirmEmail(ctx context.Context, session api.SessionContext, id string) (*tools.Delivery, error) {
	if g.handler == nil {
		return nil, tools.Errorf(tools.KindDeliveryFailed, "email", "the agent is not ready")
	}
	d, err := g.handler.ConfirmEmail(ctx, session, id)
	content := ""
	if err != nil {
		content = tools.Message(err)
	} else {
		content = d.Message
	}
	g.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: monitor.MessageTypeAssistant,
		ChannelID:   session.ChannelID,
		SessionID:   session.Key(),
		Username:    session.Username,
		Tool:        "send_email",
		Content:     content,
		Failed:      err != nil,
	})
	return d, err
}

// replyTap 收集一次請求的回覆摘要
type replyTap struct {
	final string
	text  strings.Builder
	other []string
}

func (r *replyTap) Emit(ev stream.Event) error {
	switch ev.Type {
	case stream.KindFinalOutput:
		if s, ok := ev.Data.(string); ok {
			r.final = s
		}
	case stream.KindText:
		if s, ok := ev.Data.(string); ok {
			r.text.WriteString(s)
		}
	case stream.KindError:
		if p, ok := ev.Data.(stream.ErrorPayload); ok {
			r.other = append(r.other, "error: "+p.Message)
		}
	case stream.KindEmailPreview:
		if p, ok := ev.Data.(stream.EmailPreview); ok {
			r.other = append(r.other, fmt.Sprintf("email preview to %s: %s", p.To, p.Subject))
		}
	case stream.KindChart:
		r.other = append(r.other, "chart")
	case stream.KindTable:
		r.other = append(r.other, "table")
	}
	return nil
}

func (r *replyTap) summary() string {
	parts := append([]string(nil), r.other...)
	switch {
	case r.final != "":
		parts = append([]string{r.final}, parts...)
	case r.text.Len() > 0:
		parts = append([]string{r.text.String()}, parts...)
	}
	return strings.Join(parts, " | ")
}

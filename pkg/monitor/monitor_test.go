package monitor

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"synapse/pkg/llm"

	"github.com/stretchr/testify/assert"
)

func TestCustomHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCustomHandler(&buf, slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := llm.WithDebugID(context.Background(), "ab12")
	logger.InfoContext(ctx, "Routed", "tool", "analyze_data", "attempt", 2)

	line := buf.String()
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[INFO\] \[ab12\] Routed`, line)
	assert.Contains(t, line, `tool="analyze_data"`)
	assert.Contains(t, line, "attempt=2")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestCustomHandler_LevelFilterAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCustomHandler(&buf, slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.WithGroup("ocr").With("provider", "azure").Warn("slow", "attempt", 3)
	assert.Contains(t, buf.String(), `ocr.provider="azure"`)
	assert.Contains(t, buf.String(), "ocr.attempt=3")
	assert.NotContains(t, buf.String(), "[] ")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestSetLogLevel(t *testing.T) {
	t.Cleanup(func() { SetLogLevel("info") })
	SetLogLevel("error")
	assert.Equal(t, slog.LevelError, logLevel.Level())
}

func TestCLIMonitor_OnMessage(t *testing.T) {
	var buf bytes.Buffer
	m := NewCLIMonitorTo(&buf)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	m.OnMessage(MonitorMessage{Timestamp: ts, MessageType: MessageTypeUser, ChannelID: "web", Username: "alice", Content: "analyze this"})
	m.OnMessage(MonitorMessage{Timestamp: ts, MessageType: MessageTypeAssistant, Tool: "analyze_data", Content: "done", Failed: true})

	out := buf.String()
	assert.Contains(t, out, "[2026-01-02 03:04:05]")
	assert.Contains(t, out, "[web/alice] analyze this")
	assert.Contains(t, out, "[AI:analyze_data:error] done")
}

package telegram

import (
	"fmt"
	"log/slog"
	"strings"

	"synapse/pkg/api"
	"synapse/pkg/stream"
)

// maxRenderedRows caps how many chart or table rows go into one message.
const maxRenderedRows = 20

// replier is the part of TelegramChannel a reply renders through.
type replier interface {
	Send(session api.SessionContext, message string) error
	SendSignal(session api.SessionContext) error
	sendPreview(session api.SessionContext, id, to, subject, html string) error
}

// reply renders the events of one request as chat messages. Telegram has no
// mid-message streaming, so text is accumulated and flushed before any
// out-of-band message and at the end.
type reply struct {
	out     replier
	session api.SessionContext
	typing  bool
	text    strings.Builder
	final   string
}

func newReply(out replier, session api.SessionContext) *reply {
	return &reply{out: out, session: session}
}

// Emit implements stream.Sink. Delivery problems are logged, not returned,
// so one failed bubble does not cut the request short.
func (r *reply) Emit(ev stream.Event) error {
	switch ev.Type {
	case stream.KindThought:
		if !r.typing {
			r.typing = true
			if err := r.out.SendSignal(r.session); err != nil {
				slog.Debug("Failed to send typing action", "error", err)
			}
		}
	case stream.KindText:
		if s, ok := ev.Data.(string); ok {
			r.text.WriteString(s)
		}
	case stream.KindFinalOutput:
		if s, ok := ev.Data.(string); ok {
			r.final = s
		}
	case stream.KindChart:
		if c, ok := ev.Data.(stream.Chart); ok {
			r.flush()
			r.send(renderChart(c))
		}
	case stream.KindTable:
		if tb, ok := ev.Data.(stream.Table); ok {
			r.flush()
			r.send(renderTable(tb))
		}
	case stream.KindEmailPreview:
		if p, ok := ev.Data.(stream.EmailPreview); ok {
			r.flush()
			if p.Message != "" {
				r.send(p.Message)
			}
			if err := r.out.sendPreview(r.session, p.ID, p.To, p.Subject, p.HTML); err != nil {
				slog.Error("Failed to send email preview", "chat", r.session.ChatID, "error", err)
			}
		}
	case stream.KindError:
		if p, ok := ev.Data.(stream.ErrorPayload); ok {
			r.flush()
			r.send("⚠️ " + p.Message)
		}
	case stream.KindEnd:
		r.flush()
		if r.final != "" {
			r.send(r.final)
			r.final = ""
		}
	}
	return nil
}

// flush sends the accumulated text. A final_output equal to the streamed
// text is not repeated.
func (r *reply) flush() {
	if r.text.Len() == 0 {
		return
	}
	text := r.text.String()
	r.text.Reset()
	if strings.TrimSpace(text) == strings.TrimSpace(r.final) {
		r.final = ""
	}
	r.send(text)
}

func (r *reply) send(msg string) {
	if strings.TrimSpace(msg) == "" {
		return
	}
	if err := r.out.Send(r.session, msg); err != nil {
		slog.Error("Failed to send telegram message", "chat", r.session.ChatID, "error", err)
	}
}

func renderChart(c stream.Chart) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 %s chart of %s by %s\n", c.ChartType, strings.Join(c.ValueFields, ", "), c.CategoryField)
	for i, row := range c.Rows {
		if i == maxRenderedRows {
			fmt.Fprintf(&sb, "… %d more rows\n", len(c.Rows)-i)
			break
		}
		values := make([]string, 0, len(c.ValueFields))
		for _, f := range c.ValueFields {
			values = append(values, fmt.Sprintf("%s=%v", f, row[f]))
		}
		fmt.Fprintf(&sb, "• %v: %s\n", row[c.CategoryField], strings.Join(values, ", "))
	}
	return sb.String()
}

func renderTable(t stream.Table) string {
	var sb strings.Builder
	if t.Caption != "" {
		sb.WriteString("📋 " + t.Caption + "\n")
	}
	for i, row := range t.Rows {
		if i == maxRenderedRows {
			fmt.Fprintf(&sb, "\n… %d more rows\n", len(t.Rows)-i)
			break
		}
		sb.WriteString("\n")
		for j, cell := range row {
			if j < len(t.Headers) {
				sb.WriteString(t.Headers[j] + ": ")
			}
			sb.WriteString(cell + "\n")
		}
	}
	return sb.String()
}

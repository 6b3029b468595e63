package handler

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"synapse/pkg/api"
	"synapse/pkg/config"
	"synapse/pkg/llm"
	"synapse/pkg/orchestrator"
	"synapse/pkg/scratchpad"
	"synapse/pkg/stream"
	"synapse/pkg/tools"
)

// Engine runs one invocation against a session.
type Engine interface {
	Run(ctx context.Context, inv orchestrator.Invocation, sink stream.Sink) (orchestrator.Outcome, error)
}

// RequestHandler binds channel requests to sessions and the orchestrator.
// Every channel goes through the same handler, so debug IDs, upload limits
// and session lookup behave identically on the web, telegram and the CLI.
type RequestHandler struct {
	engine       Engine               // Tool dispatch engine
	sessions     *scratchpad.Store    // Bounded, expiring session map
	email        tools.EmailSender    // Delivers confirmed emails, may be nil
	systemConfig *config.SystemConfig // Upload limit and history window
}

// NewRequestHandler wires the handler. email may be nil when SMTP is not
// configured; send attempts then fail with delivery_failed.
func NewRequestHandler(engine Engine, sessions *scratchpad.Store, email tools.EmailSender, sysCfg *config.SystemConfig) *RequestHandler {
	if sysCfg == nil {
		sysCfg = config.DefaultSystemConfig()
	}
	if sessions == nil {
		sessions = scratchpad.NewStore(
			time.Duration(sysCfg.SessionTTLMs)*time.Millisecond,
			sysCfg.MaxSessions,
			scratchpad.WithHistoryLimit(sysCfg.HistoryLimit),
		)
	}
	return &RequestHandler{
		engine:       engine,
		sessions:     sessions,
		email:        email,
		systemConfig: sysCfg,
	}
}

// Sessions exposes the session store, e.g. to run its sweeper.
func (h *RequestHandler) Sessions() *scratchpad.Store {
	return h.sessions
}

// Handle runs req and writes its events to sink. The stream always ends
// with exactly one end event.
func (h *RequestHandler) Handle(ctx context.Context, req *api.Request, sink stream.Sink) (api.Outcome, error) {
	if req.DebugID == "" {
		req.DebugID = newDebugID()
	}
	ctx = llm.WithDebugID(ctx, req.DebugID)

	key := req.Session.Key()
	fileName, fileBytes := "", 0
	if req.File != nil {
		fileName, fileBytes = req.File.Filename, len(req.File.Data)
	}
	slog.InfoContext(ctx, "Request received", "channel", req.Session.ChannelID, "user", req.Session.Username, "session", key, "message", req.Message, "file", fileName, "bytes", fileBytes)

	if limit := h.systemConfig.MaxUploadBytes; limit > 0 && int64(fileBytes) > limit {
		err := tools.Errorf(tools.KindExtractionFailed, "upload", "%s is too large (%d bytes, limit %d)", fileName, fileBytes, limit)
		return reject(ctx, sink, err)
	}

	session := h.sessions.Get(key)
	out, err := h.engine.Run(ctx, orchestrator.Invocation{
		Session: session,
		Message: req.Message,
		File:    req.File.Document(),
	}, sink)

	slog.InfoContext(ctx, "Request done", "session", key, "tool", out.Tool, "failed", out.Failed, "duration", out.Duration.Round(time.Millisecond))
	return api.Outcome{Tool: out.Tool, Failed: out.Failed, Duration: out.Duration}, err
}

// reject answers a request that never reaches the engine.
func reject(ctx context.Context, sink stream.Sink, err error) (api.Outcome, error) {
	slog.WarnContext(ctx, "Request rejected", "error", err)
	payload := stream.ErrorPayload{Kind: string(tools.KindOf(err)), Message: tools.Message(err)}
	if emitErr := sink.Emit(stream.Error(payload)); emitErr != nil {
		return api.Outcome{Failed: true}, emitErr
	}
	return api.Outcome{Failed: true}, sink.Emit(stream.End())
}

// SendEmail delivers an email the user confirmed from a preview.
func (h *RequestHandler) SendEmail(ctx context.Context, email tools.Email) (*tools.Delivery, error) {
	if h.email == nil {
		return nil, tools.Errorf(tools.KindDeliveryFailed, "email", "email delivery is not configured")
	}
	d, err := h.email.Send(ctx, email)
	if err != nil {
		slog.WarnContext(ctx, "Email delivery failed", "to", email.To, "error", err)
		return nil, err
	}
	slog.InfoContext(ctx, "Email sent", "to", email.To, "message_id", d.MessageID)
	return d, nil
}

// ConfirmEmail sends the pending email with id from the session's
// scratchpad. A failed delivery puts it back so the user can retry.
func (h *RequestHandler) ConfirmEmail(ctx context.Context, sc api.SessionContext, id string) (*tools.Delivery, error) {
	session, ok := h.sessions.Peek(sc.Key())
	if !ok {
		return nil, tools.Errorf(tools.KindMissingInput, "email", "this preview has expired, generate the offer again")
	}
	pending, ok := session.Scratchpad.TakePendingEmail(id)
	if !ok {
		return nil, tools.Errorf(tools.KindMissingInput, "email", "there is no pending email to send")
	}

	d, err := h.SendEmail(ctx, pending.Email)
	if err != nil {
		session.Scratchpad.SetPendingEmail(pending)
		return nil, err
	}
	return d, nil
}

func newDebugID() string {
	b := make([]byte, 2)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

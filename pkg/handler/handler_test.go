package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"synapse/pkg/api"
	"synapse/pkg/config"
	"synapse/pkg/llm"
	"synapse/pkg/orchestrator"
	"synapse/pkg/scratchpad"
	"synapse/pkg/stream"
	"synapse/pkg/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEngine struct {
	invocations []orchestrator.Invocation
	debugIDs    []string
}

func (e *recordingEngine) Run(ctx context.Context, inv orchestrator.Invocation, sink stream.Sink) (orchestrator.Outcome, error) {
	e.invocations = append(e.invocations, inv)
	e.debugIDs = append(e.debugIDs, llm.DebugID(ctx))
	if err := sink.Emit(stream.FinalOutput("done")); err != nil {
		return orchestrator.Outcome{}, err
	}
	return orchestrator.Outcome{Tool: tools.GeneralQuery, Duration: time.Millisecond}, sink.Emit(stream.End())
}

type fakeSender struct {
	sent []tools.Email
	err  error
}

func (f *fakeSender) Send(_ context.Context, e tools.Email) (*tools.Delivery, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, e)
	return &tools.Delivery{MessageID: "<1@test>", Message: "Email successfully sent to " + e.To + "."}, nil
}

func newHandler(engine Engine, sender tools.EmailSender) *RequestHandler {
	sys := config.DefaultSystemConfig()
	sys.MaxUploadBytes = 16
	return NewRequestHandler(engine, nil, sender, sys)
}

func webSession(id string) api.SessionContext {
	return api.SessionContext{ChannelID: "web", UserID: id, ChatID: id, Username: "WebUser"}
}

func TestHandle_AssignsDebugIDAndSession(t *testing.T) {
	engine := &recordingEngine{}
	h := newHandler(engine, nil)
	rec := &stream.Recorder{}

	req := &api.Request{
		Session: webSession("s1"),
		Message: "hello",
		File:    &api.FileAttachment{Filename: "a.csv", MimeType: " text/csv ", Data: []byte("a,b\n1,2\n")},
	}
	out, err := h.Handle(context.Background(), req, rec)
	require.NoError(t, err)

	assert.Equal(t, tools.GeneralQuery, out.Tool)
	assert.Len(t, req.DebugID, 4)
	require.Len(t, engine.invocations, 1)
	assert.Equal(t, req.DebugID, engine.debugIDs[0])

	inv := engine.invocations[0]
	assert.Equal(t, "web:s1", inv.Session.ID)
	require.NotNil(t, inv.File)
	assert.Equal(t, "text/csv", inv.File.MediaType)
	assert.Equal(t, "hello", inv.Message)

	_, err = h.Handle(context.Background(), &api.Request{Session: webSession("s1"), Message: "again"}, rec)
	require.NoError(t, err)
	assert.Same(t, inv.Session, engine.invocations[1].Session, "the same session key reuses its scratchpad")
	assert.Nil(t, engine.invocations[1].File)
}

func TestHandle_RejectsOversizedUpload(t *testing.T) {
	engine := &recordingEngine{}
	h := newHandler(engine, nil)
	rec := &stream.Recorder{}

	req := &api.Request{
		Session: webSession("s1"),
		File:    &api.FileAttachment{Filename: "big.pdf", Data: make([]byte, 17)},
	}
	out, err := h.Handle(context.Background(), req, rec)
	require.NoError(t, err)

	assert.True(t, out.Failed)
	assert.Empty(t, engine.invocations)
	assert.Equal(t, []stream.Kind{stream.KindError, stream.KindEnd}, rec.Kinds())
	payload := rec.Filter(stream.KindError)[0].Data.(stream.ErrorPayload)
	assert.Equal(t, string(tools.KindExtractionFailed), payload.Kind)
	assert.Contains(t, payload.Message, "big.pdf")
}

func TestSendEmail_NotConfigured(t *testing.T) {
	h := newHandler(&recordingEngine{}, nil)
	_, err := h.SendEmail(context.Background(), tools.Email{To: "a@b.c", Subject: "s", HTML: "<p>x</p>"})
	assert.ErrorIs(t, err, tools.ErrDeliveryFailed)
}

func TestConfirmEmail(t *testing.T) {
	sender := &fakeSender{}
	h := newHandler(&recordingEngine{}, sender)
	sc := webSession("s1")

	_, err := h.ConfirmEmail(context.Background(), sc, "p1")
	assert.ErrorIs(t, err, tools.ErrMissingInput, "unknown session")

	session := h.Sessions().Get(sc.Key())
	session.Scratchpad.SetPendingEmail(scratchpad.PendingEmail{
		ID:    "p1",
		Email: tools.Email{To: "jane@example.com", Subject: "Offer", HTML: "<p>Welcome</p>"},
	})

	_, err = h.ConfirmEmail(context.Background(), sc, "other")
	assert.ErrorIs(t, err, tools.ErrMissingInput, "mismatched preview id")

	d, err := h.ConfirmEmail(context.Background(), sc, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Email successfully sent to jane@example.com.", d.Message)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Offer", sender.sent[0].Subject)

	_, ok := session.Scratchpad.PendingEmail()
	assert.False(t, ok, "a sent email is cleared")
}

func TestConfirmEmail_FailureKeepsPending(t *testing.T) {
	sender := &fakeSender{err: tools.Wrap(tools.KindDeliveryFailed, "email", errors.New("dial tcp: refused"))}
	h := newHandler(&recordingEngine{}, sender)
	sc := webSession("s1")

	session := h.Sessions().Get(sc.Key())
	session.Scratchpad.SetPendingEmail(scratchpad.PendingEmail{ID: "p1", Email: tools.Email{To: "a@b.c"}})

	_, err := h.ConfirmEmail(context.Background(), sc, "p1")
	assert.ErrorIs(t, err, tools.ErrDeliveryFailed)

	pending, ok := session.Scratchpad.PendingEmail()
	require.True(t, ok)
	assert.Equal(t, "p1", pending.ID)
}

func TestHandle_WithRealEngine(t *testing.T) {
	engine := orchestrator.NewEngine(tools.Toolbox{}, nil, nil, nil, nil)
	h := newHandler(engine, nil)
	rec := &stream.Recorder{}

	out, err := h.Handle(context.Background(), &api.Request{Session: webSession("s2"), Message: "analyze"}, rec)
	require.NoError(t, err)
	assert.True(t, out.Failed, "general_query without a client is not configured")
	kinds := rec.Kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, stream.KindEnd, kinds[len(kinds)-1])
}

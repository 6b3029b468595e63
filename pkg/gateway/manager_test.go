package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"synapse/pkg/api"
	"synapse/pkg/monitor"
	"synapse/pkg/stream"
	"synapse/pkg/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id      string
	ctx     api.ChannelContext
	stopped bool
	failing bool
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Start(ctx api.ChannelContext) error {
	if c.failing {
		return errors.New("port in use")
	}
	c.ctx = ctx
	return nil
}

func (c *fakeChannel) Stop() error {
	c.stopped = true
	return nil
}

type fakeHandler struct {
	events  []stream.Event
	outcome api.Outcome
	confirm error
}

func (h *fakeHandler) Handle(_ context.Context, _ *api.Request, sink stream.Sink) (api.Outcome, error) {
	for _, ev := range h.events {
		if err := sink.Emit(ev); err != nil {
			return h.outcome, err
		}
	}
	return h.outcome, sink.Emit(stream.End())
}

func (h *fakeHandler) SendEmail(_ context.Context, e tools.Email) (*tools.Delivery, error) {
	return &tools.Delivery{Message: "Email successfully sent to " + e.To + "."}, nil
}

func (h *fakeHandler) ConfirmEmail(context.Context, api.SessionContext, string) (*tools.Delivery, error) {
	if h.confirm != nil {
		return nil, h.confirm
	}
	return &tools.Delivery{Message: "Email successfully sent to jane@example.com."}, nil
}

type captureMonitor struct {
	mu      sync.Mutex
	started bool
	msgs    []monitor.MonitorMessage
}

func (m *captureMonitor) Start() error { m.started = true; return nil }
func (m *captureMonitor) Stop() error  { return nil }
func (m *captureMonitor) OnMessage(msg monitor.MonitorMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

func TestBuild_StartsChannelsAndMonitor(t *testing.T) {
	ch := &fakeChannel{id: "web"}
	mon := &captureMonitor{}

	gw, err := NewGatewayBuilder().
		WithMonitor(mon).
		WithChannel(ch).
		WithHandler(&fakeHandler{}).
		Build()
	require.NoError(t, err)

	assert.True(t, mon.started)
	assert.Same(t, gw, ch.ctx)
	got, ok := gw.GetChannel("web")
	require.True(t, ok)
	assert.Same(t, ch, got)

	gw.StopAll()
	assert.True(t, ch.stopped)
}

func TestBuild_Errors(t *testing.T) {
	_, err := NewGatewayBuilder().WithChannel(&fakeChannel{id: "web"}).Build()
	assert.Error(t, err, "handler is required")

	_, err = NewGatewayBuilder().WithHandler(&fakeHandler{}).WithChannel(&fakeChannel{id: "web", failing: true}).Build()
	assert.ErrorContains(t, err, "web")
}

func TestOnRequest_MonitorsBothSides(t *testing.T) {
	mon := &captureMonitor{}
	gw := NewGatewayManager()
	gw.SetMonitor(mon)
	gw.SetRequestHandler(&fakeHandler{
		events: []stream.Event{
			stream.Thought("Analyzing user request..."),
			stream.Text("Hello "),
			stream.Text("there"),
			stream.Error(stream.ErrorPayload{Tool: "web_search", Kind: "internal", Message: "boom"}),
		},
		outcome: api.Outcome{Tool: tools.WebSearch, Failed: true},
	})

	rec := &stream.Recorder{}
	req := &api.Request{
		Session: api.SessionContext{ChannelID: "web", ChatID: "s1", Username: "WebUser"},
		Message: "hi",
		File:    &api.FileAttachment{Filename: "a.csv"},
	}
	require.NoError(t, gw.OnRequest(context.Background(), req, rec))

	assert.Equal(t, stream.KindEnd, rec.Kinds()[len(rec.Kinds())-1])
	require.Len(t, mon.msgs, 2)

	user, reply := mon.msgs[0], mon.msgs[1]
	assert.Equal(t, monitor.MessageTypeUser, user.MessageType)
	assert.Equal(t, "hi [file: a.csv]", user.Content)
	assert.Equal(t, "web:s1", user.SessionID)

	assert.Equal(t, monitor.MessageTypeAssistant, reply.MessageType)
	assert.Equal(t, "web_search", reply.Tool)
	assert.True(t, reply.Failed)
	assert.Equal(t, "Hello there | error: boom", reply.Content)
}

func TestOnRequest_FinalOutputWins(t *testing.T) {
	mon := &captureMonitor{}
	gw := NewGatewayManager()
	gw.SetMonitor(mon)
	gw.SetRequestHandler(&fakeHandler{events: []stream.Event{
		stream.Text("partial"),
		stream.ChartEvent(stream.Chart{ChartType: "bar"}),
		stream.FinalOutput("Summary"),
	}})

	require.NoError(t, gw.OnRequest(context.Background(), &api.Request{}, &stream.Recorder{}))
	assert.Equal(t, "Summary | chart", mon.msgs[1].Content)
}

func TestOnRequest_NoHandler(t *testing.T) {
	gw := NewGatewayManager()
	rec := &stream.Recorder{}
	require.NoError(t, gw.OnRequest(context.Background(), &api.Request{}, rec))
	assert.Equal(t, []stream.Kind{stream.KindError, stream.KindEnd}, rec.Kinds())

	_, err := gw.SendEmail(context.Background(), tools.Email{})
	assert.ErrorIs(t, err, tools.ErrDeliveryFailed)
}

func TestConfirmEmail_Monitored(t *testing.T) {
	mon := &captureMonitor{}
	gw := NewGatewayManager()
	gw.SetMonitor(mon)
	h := &fakeHandler{}
	gw.SetRequestHandler(h)

	sc := api.SessionContext{ChannelID: "telegram", ChatID: "42"}
	d, err := gw.ConfirmEmail(context.Background(), sc, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Email successfully sent to jane@example.com.", d.Message)

	h.confirm = tools.Errorf(tools.KindMissingInput, "email", "there is no pending email to send")
	_, err = gw.ConfirmEmail(context.Background(), sc, "p1")
	assert.ErrorIs(t, err, tools.ErrMissingInput)

	require.Len(t, mon.msgs, 2)
	assert.False(t, mon.msgs[0].Failed)
	assert.True(t, mon.msgs[1].Failed)
	assert.Equal(t, "there is no pending email to send", mon.msgs[1].Content)
}

// Package orchestrator runs one routed tool per request against the
// session scratchpad and reports progress as stream events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"synapse/pkg/config"
	"synapse/pkg/llm"
	"synapse/pkg/router"
	"synapse/pkg/scratchpad"
	"synapse/pkg/stream"
	"synapse/pkg/tools"
)

// Router picks the tool for a request.
type Router interface {
	Route(ctx context.Context, req router.Request) router.Intent
}

// Invocation is the working record of one request.
type Invocation struct {
	Session *scratchpad.Session
	Message string
	File    *tools.Document
	// Intent skips routing when Tool is set.
	Intent router.Intent
}

// Engine dispatches invocations to the tool adapters.
type Engine struct {
	toolbox tools.Toolbox
	router  Router
	client  llm.LLMClient
	appCfg  *config.Config
	sysCfg  *config.SystemConfig
}

// NewEngine wires the engine. client answers general_query; it may be nil
// in deployments that only run document tools. A nil rt only pre-routes
// attachments and sends everything else to general_query.
func NewEngine(toolbox tools.Toolbox, rt Router, client llm.LLMClient, appCfg *config.Config, sysCfg *config.SystemConfig) *Engine {
	if appCfg == nil {
		appCfg = &config.Config{}
	}
	if sysCfg == nil {
		sysCfg = config.DefaultSystemConfig()
	}
	if rt == nil {
		rt = &router.Router{}
	}
	return &Engine{
		toolbox: toolbox,
		router:  rt,
		client:  client,
		appCfg:  appCfg,
		sysCfg:  sysCfg,
	}
}

// Outcome summarises a finished request.
type Outcome struct {
	Tool     tools.ToolName
	Failed   bool
	Duration time.Duration
}

// Handle runs one request. Tool failures are reported as error events and
// never returned; exactly one end event is emitted last, even after a
// panic. The returned error only reports a broken sink.
func (e *Engine) Handle(ctx context.Context, inv Invocation, sink stream.Sink) error {
	_, err := e.Run(ctx, inv, sink)
	return err
}

// Run is Handle that also reports which tool ran and whether it failed.
func (e *Engine) Run(ctx context.Context, inv Invocation, sink stream.Sink) (out Outcome, err error) {
	if inv.Session == nil {
		inv.Session = scratchpad.NewSession("", e.sysCfg.HistoryLimit)
	}
	inv.Session.Lock()
	defer inv.Session.Unlock()

	if e.sysCfg.LLMTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.sysCfg.LLMTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	r := &run{engine: e, inv: inv, sink: sink, state: StateRouting, start: time.Now()}

	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "Tool dispatch panicked", "tool", r.tool, "error", rec, "stack", string(debug.Stack()))
			r.fail(ctx, tools.Errorf(tools.KindInternal, "orchestrator", "internal error while running %s", r.tool))
		}
		r.finish(ctx)
		out = Outcome{Tool: r.tool, Failed: r.failed, Duration: time.Since(r.start)}
		err = r.emitErr
	}()

	r.route(ctx)
	r.transition(ctx, StateDispatching)
	if derr := r.dispatch(ctx); derr != nil {
		r.fail(ctx, derr)
	}
	return out, nil
}

// run is the state of one Handle call.
type run struct {
	engine  *Engine
	inv     Invocation
	sink    stream.Sink
	tool    tools.ToolName
	state   State
	start   time.Time
	emitErr error
	failed  bool
	ended   bool
}

func (r *run) transition(ctx context.Context, to State) {
	if r.state == to && to != StateStreaming && to != StateAwaitingAdapter {
		return
	}
	if !CanTransition(r.state, to) {
		slog.WarnContext(ctx, "Unexpected state transition", "from", r.state, "to", to, "tool", r.tool)
	}
	slog.DebugContext(ctx, "State", "from", r.state, "to", to, "tool", r.tool)
	r.state = to
}

func (r *run) emit(ctx context.Context, ev stream.Event) {
	if r.emitErr != nil {
		return
	}
	err := r.sink.Emit(ev)
	var encErr *stream.EncodeError
	if errors.As(err, &encErr) && ev.Type != stream.KindError && ev.Type != stream.KindEnd {
		// the event is lost but the transport is fine
		slog.ErrorContext(ctx, "Dropping unencodable event", "type", ev.Type, "error", err)
		r.failed = true
		r.emit(ctx, stream.Error(stream.ErrorPayload{
			Tool:    string(r.tool),
			Kind:    string(tools.KindInternal),
			Message: fmt.Sprintf("the %s result could not be delivered", ev.Type),
		}))
		return
	}
	if err != nil {
		r.emitErr = err
		slog.WarnContext(ctx, "Event sink closed, discarding remaining events", "type", ev.Type, "error", err)
	}
}

func (r *run) thought(ctx context.Context, format string, args ...any) {
	r.emit(ctx, stream.Thought(fmt.Sprintf(format, args...)))
}

// textSink streams adapter tokens as text events.
func (r *run) textSink(ctx context.Context) tools.TokenSink {
	return func(token string) {
		if r.state != StateStreaming {
			r.transition(ctx, StateStreaming)
		}
		r.emit(ctx, stream.Text(token))
	}
}

func (r *run) route(ctx context.Context) {
	intent := r.inv.Intent
	if intent.Tool == "" {
		req := router.Request{
			Message: r.inv.Message,
			Loaded:  r.inv.Session.Scratchpad.Kinds(),
		}
		if r.inv.File != nil {
			req.MediaType = r.inv.File.MediaType
			req.FileName = r.inv.File.Name
		}
		r.thought(ctx, "Analyzing user request...")
		intent = r.engine.router.Route(ctx, req)
	}
	if !intent.Tool.Valid() {
		intent = router.Intent{Tool: tools.GeneralQuery, Argument: r.inv.Message}
	}
	r.inv.Intent = intent
	r.tool = intent.Tool
	slog.InfoContext(ctx, "Routed", "tool", intent.Tool, "argument", intent.Argument, "session", r.inv.Session.ID)
}

func (r *run) fail(ctx context.Context, err error) {
	kind := tools.KindOf(err)
	r.failed = true
	slog.WarnContext(ctx, "Tool failed", "tool", r.tool, "kind", kind, "error", err)
	r.transition(ctx, StateEmitting)
	r.emit(ctx, stream.Error(stream.ErrorPayload{
		Tool:    string(r.tool),
		Kind:    string(kind),
		Message: tools.Message(err),
	}))
}

func (r *run) finish(ctx context.Context) {
	if r.ended {
		return
	}
	r.ended = true
	r.transition(ctx, StateEmitting)
	r.emit(ctx, stream.End())
	r.transition(ctx, StateDone)
	slog.InfoContext(ctx, "Request finished", "tool", r.tool, "duration", time.Since(r.start).Round(time.Millisecond))
}

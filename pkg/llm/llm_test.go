package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"synapse/pkg/config"
	"synapse/pkg/llm"
	"synapse/pkg/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{name: "bare object", in: `{"tool":"web_search"}`, want: `{"tool":"web_search"}`},
		{name: "prose around", in: "Sure! {\"a\":1} hope this helps", want: `{"a":1}`},
		{name: "fenced", in: "```json\n[1,2,{\"b\":[3]}]\n```", want: `[1,2,{"b":[3]}]`},
		{name: "brackets in strings", in: `{"s":"a } b ] \" {"}`, want: `{"s":"a } b ] \" {"}`},
		{name: "nested first wins", in: `{"x":{"y":1}} {"z":2}`, want: `{"x":{"y":1}}`},
		{name: "empty", in: "   ", wantErr: llm.ErrEmptyOutput},
		{name: "no json", in: "I cannot help with that", wantErr: llm.ErrMalformedOutput},
		{name: "unterminated", in: `{"a":[1,2}`, wantErr: llm.ErrMalformedOutput},
		{name: "truncated", in: `{"a":1`, wantErr: llm.ErrMalformedOutput},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := llm.ExtractJSON(tc.in)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "<p>hi</p>", llm.StripCodeFence("```html\n<p>hi</p>\n```"))
	assert.Equal(t, "<p>hi</p>", llm.StripCodeFence("  <p>hi</p>  "))
	assert.Equal(t, "", llm.StripCodeFence("```"))
}

func TestCollect_ConcatenationMatchesSink(t *testing.T) {
	client := llmtest.New(llmtest.Text("The quick brown fox jumps"))
	ch, err := client.StreamChat(context.Background(), nil, nil)
	require.NoError(t, err)

	var got []string
	text, usage, err := llm.Collect(context.Background(), ch, func(tok string) { got = append(got, tok) }, nil)
	require.NoError(t, err)
	assert.NotNil(t, usage)
	assert.Equal(t, "The quick brown fox jumps", text)
	assert.Equal(t, text, strings.Join(got, ""))
	assert.Greater(t, len(got), 1)
}

func TestCollect_StreamErrorStops(t *testing.T) {
	boom := errors.New("connection reset")
	client := llmtest.New(llmtest.Reply{Tokens: []string{"partial "}, StreamErr: boom})
	ch, err := client.StreamChat(context.Background(), nil, nil)
	require.NoError(t, err)

	text, _, err := llm.Collect(context.Background(), ch, nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial ", text)
}

func TestCollect_ThinkingGoesToOwnSink(t *testing.T) {
	ch := make(chan llm.StreamChunk, 3)
	ch <- llm.NewThinkingChunk("hmm")
	ch <- llm.NewTextChunk("answer")
	ch <- llm.NewErrorChunk("truncated", nil, false)
	close(ch)

	var thoughts string
	text, _, err := llm.Collect(context.Background(), ch, nil, func(s string) { thoughts += s })
	require.NoError(t, err)
	assert.Equal(t, "answer", text)
	assert.Equal(t, "hmm", thoughts)
}

func TestCollect_ContextCancelled(t *testing.T) {
	ch := make(chan llm.StreamChunk)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := llm.Collect(ctx, ch, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	close(ch)
}

func TestGenerateJSON(t *testing.T) {
	client := llmtest.New(llmtest.Text(`Here you go: {"tool": "analyze_data", "argument": "by region"}`))
	schema := &llm.ResponseSchema{Name: "route", Schema: map[string]any{"type": "object"}}

	var out struct {
		Tool     string `json:"tool"`
		Argument string `json:"argument"`
	}
	require.NoError(t, llm.GenerateJSON(context.Background(), client, []llm.Message{llm.NewUserMessage("x")}, schema, &out))
	assert.Equal(t, "analyze_data", out.Tool)
	assert.Equal(t, "by region", out.Argument)

	calls := client.Calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Options)
	assert.Equal(t, schema, calls[0].Options.Schema)
}

func TestGenerateJSON_Malformed(t *testing.T) {
	client := llmtest.New(llmtest.Text("no json here"))
	var out map[string]any
	err := llm.GenerateJSON(context.Background(), client, nil, &llm.ResponseSchema{Name: "x"}, &out)
	assert.ErrorIs(t, err, llm.ErrMalformedOutput)
}

func TestFallbackClient(t *testing.T) {
	t.Run("falls through to next provider", func(t *testing.T) {
		first := llmtest.New(llmtest.Reply{Err: errors.New("401 unauthorized")})
		second := llmtest.New(llmtest.Text("ok"))
		fb := &llm.FallbackClient{Clients: []llm.LLMClient{first, second}, MaxRetries: 3}

		text, err := llm.Generate(context.Background(), fb, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
		assert.Len(t, first.Calls(), 1, "non-transient errors are not retried")
	})

	t.Run("retries transient errors", func(t *testing.T) {
		flaky := llmtest.New(llmtest.Reply{Err: errors.New("503")}, llmtest.Text("recovered"))
		flaky.Transient = true
		fb := &llm.FallbackClient{Clients: []llm.LLMClient{flaky}, MaxRetries: 2, RetryDelay: time.Millisecond}

		text, err := llm.Generate(context.Background(), fb, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "recovered", text)
		assert.Len(t, flaky.Calls(), 2)
	})

	t.Run("all fail", func(t *testing.T) {
		boom := errors.New("boom")
		fb := &llm.FallbackClient{Clients: []llm.LLMClient{llmtest.New(llmtest.Reply{Err: boom})}}
		_, err := fb.StreamChat(context.Background(), nil, nil)
		assert.ErrorIs(t, err, boom)
		assert.False(t, fb.IsTransientError(err))
	})

	t.Run("no clients", func(t *testing.T) {
		_, err := (&llm.FallbackClient{}).StreamChat(context.Background(), nil, nil)
		assert.Error(t, err)
	})
}

func TestChatHistory_SlidingWindow(t *testing.T) {
	h := llm.NewChatHistory(3)
	for _, s := range []string{"a", "b", "c", "d"} {
		h.Add(llm.NewUserMessage(s))
	}
	msgs := h.GetMessages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "b", msgs[0].GetTextContent())
	assert.Equal(t, "d", msgs[2].GetTextContent())

	msgs[0] = llm.NewUserMessage("mutated")
	assert.Equal(t, "b", h.GetMessages()[0].GetTextContent(), "GetMessages returns a copy")
}

type stubFactory struct{ clients []llm.LLMClient }

func (f stubFactory) Create(llm.ProviderGroupConfig, *config.SystemConfig) ([]llm.LLMClient, error) {
	return f.clients, nil
}

func TestNewFromConfig(t *testing.T) {
	a, b := llmtest.New(), llmtest.New()
	llm.RegisterProvider("stub-one", stubFactory{clients: []llm.LLMClient{a}})
	llm.RegisterProvider("stub-two", stubFactory{clients: []llm.LLMClient{a, b}})

	single, err := llm.NewFromConfig([]byte(`[{"type":"stub-one","models":["m"]},{"type":"unknown"}]`), nil)
	require.NoError(t, err)
	assert.Same(t, a, single)

	multi, err := llm.NewFromConfig([]byte(`[{"type":"stub-two","models":["m"]}]`), config.DefaultSystemConfig())
	require.NoError(t, err)
	fb, ok := multi.(*llm.FallbackClient)
	require.True(t, ok)
	assert.Len(t, fb.Clients, 2)
	assert.Equal(t, 3, fb.MaxRetries)

	_, err = llm.NewFromConfig(nil, nil)
	assert.Error(t, err)
	_, err = llm.NewFromConfig([]byte(`[{"type":"unknown"}]`), nil)
	assert.Error(t, err)
	assert.Contains(t, llm.Providers(), "stub-one")
}

func TestDebugID(t *testing.T) {
	ctx := llm.WithDebugID(context.Background(), "beef")
	assert.Equal(t, "beef", llm.DebugID(ctx))
	assert.Equal(t, "", llm.DebugID(context.Background()))
}

func TestProviderGroupCredentials(t *testing.T) {
	g := llm.ProviderGroupConfig{Models: []string{"pro", "flash"}, APIKeys: []string{"k1", "k2"}}
	assert.Equal(t, []llm.Credential{
		{Model: "pro", APIKey: "k1"},
		{Model: "pro", APIKey: "k2"},
		{Model: "flash", APIKey: "k1"},
		{Model: "flash", APIKey: "k2"},
	}, g.Credentials())

	keyless := llm.ProviderGroupConfig{Models: []string{"llama3"}}
	assert.Equal(t, []llm.Credential{{Model: "llama3"}}, keyless.Credentials())
}

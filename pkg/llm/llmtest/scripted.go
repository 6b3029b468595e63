// Package llmtest provides an in-memory llm.LLMClient for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"synapse/pkg/llm"
)

// Reply is one scripted response. Tokens are streamed as separate text
// chunks; Err fails the StreamChat call itself and StreamErr interrupts the
// stream after the tokens.
type Reply struct {
	Tokens    []string
	Err       error
	StreamErr error
}

// Text is a convenience reply streaming s split on spaces, keeping the
// separators so the concatenation equals s.
func Text(s string) Reply {
	if s == "" {
		return Reply{}
	}
	parts := strings.SplitAfter(s, " ")
	return Reply{Tokens: parts}
}

// Call records one StreamChat invocation.
type Call struct {
	Messages []llm.Message
	Options  *llm.ChatOptions
}

// Prompt returns the concatenated text of every message in the call.
func (c Call) Prompt() string {
	var sb strings.Builder
	for i := range c.Messages {
		sb.WriteString(c.Messages[i].GetTextContent())
		sb.WriteString("\n")
	}
	return sb.String()
}

// ErrExhausted is returned once every scripted reply has been consumed.
var ErrExhausted = errors.New("llmtest: no scripted replies left")

// Client replays scripted replies in order.
type Client struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
	// Transient marks every error as transient for FallbackClient tests.
	Transient bool
}

// New returns a client that answers with replies in order.
func New(replies ...Reply) *Client {
	return &Client{replies: replies}
}

// Push appends more replies.
func (c *Client) Push(replies ...Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, replies...)
}

// Calls returns a copy of the recorded invocations.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Messages: messages, Options: opts})
	if len(c.replies) == 0 {
		c.mu.Unlock()
		return nil, ErrExhausted
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	c.mu.Unlock()

	if reply.Err != nil {
		return nil, reply.Err
	}

	ch := make(chan llm.StreamChunk, len(reply.Tokens)+2)
	go func() {
		defer close(ch)
		for _, tok := range reply.Tokens {
			select {
			case ch <- llm.NewTextChunk(tok):
			case <-ctx.Done():
				return
			}
		}
		if reply.StreamErr != nil {
			ch <- llm.NewErrorChunk(reply.StreamErr.Error(), reply.StreamErr, true)
			return
		}
		ch <- llm.NewFinalChunk(llm.StopReasonStop, &llm.LLMUsage{})
	}()
	return ch, nil
}

func (c *Client) IsTransientError(err error) bool {
	return c.Transient && err != nil
}

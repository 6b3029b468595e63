// Package summarize streams document summaries from a language model.
package summarize

import (
	"context"
	"strings"

	"synapse/pkg/llm"
	"synapse/pkg/tools"
)

const op = "summarize"

const defaultPrompt = "You are a helpful knowledge agent. Provide a concise, professional summary of the content. " +
	"Keep figures, names and dates that matter. Use short paragraphs or bullet points."

// DefaultMaxInputChars bounds the text sent to the model.
const DefaultMaxInputChars = 60000

// Summarizer implements tools.Summarizer.
type Summarizer struct {
	Client        llm.LLMClient
	SystemPrompt  string
	MaxInputChars int
}

func New(client llm.LLMClient) *Summarizer {
	return &Summarizer{Client: client}
}

func (s *Summarizer) Summarize(ctx context.Context, text string, sink tools.TokenSink) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", tools.Errorf(tools.KindSummarizationFailed, op, "there is no text to summarize")
	}

	prompt := s.SystemPrompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	limit := s.MaxInputChars
	if limit <= 0 {
		limit = DefaultMaxInputChars
	}
	text = Truncate(text, limit)

	messages := []llm.Message{
		llm.NewSystemMessage(prompt),
		llm.NewUserMessage("Summarize this:\n\n" + text),
	}
	out, err := llm.Generate(ctx, s.Client, messages, sink)
	if err != nil {
		return "", &tools.Error{Kind: tools.KindSummarizationFailed, Op: op, Msg: "the summary could not be generated", Err: err}
	}
	if strings.TrimSpace(out) == "" {
		return "", tools.Errorf(tools.KindSummarizationFailed, op, "the model returned an empty summary")
	}
	return out, nil
}

// Truncate cuts s to at most limit bytes on a rune boundary and marks the cut.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n\n[... truncated]"
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrMalformedOutput is returned when a structured response cannot be
// decoded into the requested shape.
var ErrMalformedOutput = errors.New("malformed model output")

// ErrEmptyOutput is returned when a stream finishes without any text.
var ErrEmptyOutput = errors.New("empty model output")

// Collect drains a chunk stream. Text blocks are handed to onText in arrival
// order and thinking blocks to onThinking; either may be nil. The returned
// text is exactly the concatenation of every onText call.
//
// When ctx ends first the remaining chunks are drained in the background so
// the producing goroutine can finish.
func Collect(ctx context.Context, ch <-chan StreamChunk, onText, onThinking func(string)) (string, *LLMUsage, error) {
	var sb strings.Builder
	var usage *LLMUsage

	for {
		select {
		case <-ctx.Done():
			go func() {
				for range ch {
				}
			}()
			return sb.String(), usage, ctx.Err()

		case chunk, ok := <-ch:
			if !ok {
				return sb.String(), usage, nil
			}
			if chunk.RawError != nil {
				go func() {
					for range ch {
					}
				}()
				return sb.String(), usage, chunk.RawError
			}
			for _, block := range chunk.ContentBlocks {
				switch block.Type {
				case BlockTypeText:
					if block.Text == "" {
						continue
					}
					sb.WriteString(block.Text)
					if onText != nil {
						onText(block.Text)
					}
				case BlockTypeThinking:
					if onThinking != nil && block.Text != "" {
						onThinking(block.Text)
					}
				case BlockTypeError:
					slog.WarnContext(ctx, "Provider warning", "message", block.Text)
				}
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
		}
	}
}

// Generate runs one streaming call and forwards text tokens to onText.
func Generate(ctx context.Context, client LLMClient, messages []Message, onText func(string)) (string, error) {
	ch, err := client.StreamChat(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	text, _, err := Collect(ctx, ch, onText, nil)
	return text, err
}

// GenerateJSON asks the model for a single JSON value matching schema and
// decodes it into out. Providers that honour schema-constrained output
// return the bare value; others are parsed with ExtractJSON.
func GenerateJSON(ctx context.Context, client LLMClient, messages []Message, schema *ResponseSchema, out any) error {
	ch, err := client.StreamChat(ctx, messages, &ChatOptions{Schema: schema})
	if err != nil {
		return err
	}
	text, _, err := Collect(ctx, ch, nil, nil)
	if err != nil {
		return err
	}
	return DecodeJSON(text, out)
}

// DecodeJSON extracts the first JSON value from text and unmarshals it.
func DecodeJSON(text string, out any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// ExtractJSON returns the first balanced JSON object or array in text.
//
// Grammar: optional leading prose or a ``` fence, then a value that starts
// at the first '{' or '[' and ends at its matching bracket. Brackets inside
// JSON strings (with backslash escapes) are ignored. Anything after the
// value is discarded.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyOutput
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON value found", ErrMalformedOutput)
	}

	var stack []byte
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", fmt.Errorf("%w: unbalanced %q at offset %d", ErrMalformedOutput, c, i)
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("%w: unterminated JSON value", ErrMalformedOutput)
}

// StripCodeFence removes a surrounding markdown code fence such as
// ```html ... ``` and returns the trimmed body.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = ""
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

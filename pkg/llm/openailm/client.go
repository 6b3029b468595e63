package openailm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"synapse/pkg/llm"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

// Client is a wrapper around the official OpenAI Go SDK (Responses API)
type Client struct {
	client       *openai.Client
	provider     string
	model        string
	debugEnabled bool
	options      map[string]any
}

// NewClient creates a new OpenAI client
func NewClient(provider string, apiKey string, model string, baseURL string, options map[string]any) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider + "/" + c.model
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures
	if strings.Contains(msg, "429") ||
		strings.Contains(msg, "500 internal") ||
		strings.Contains(msg, "502 bad gateway") ||
		strings.Contains(msg, "503 service unavailable") ||
		strings.Contains(msg, "overloaded") {
		return true
	}

	// Everything else (400 Bad Request, 401 Unauthorized, etc.) is non-transient
	return false
}

// buildParams converts messages and options into a Responses API request.
func (c *Client) buildParams(messages []llm.Message, chatOpts *llm.ChatOptions) (responses.ResponseNewParams, []option.RequestOption) {
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: c.convertMessages(messages),
		},
	}

	var opts []option.RequestOption

	// Handle unified "thinking_effort" option
	if effortStr, ok := c.options["thinking_effort"].(string); ok && effortStr != "" && effortStr != "off" {
		var effort shared.ReasoningEffort
		switch effortStr {
		case "low":
			effort = shared.ReasoningEffortLow
		case "high":
			effort = shared.ReasoningEffortHigh
		default:
			effort = shared.ReasoningEffortMedium
		}
		params.Reasoning = shared.ReasoningParam{
			Effort: effort,
		}
	}

	if t, ok := c.options["temperature"].(float64); ok {
		opts = append(opts, option.WithJSONSet("temperature", t))
	}

	if p, ok := c.options["top_p"].(float64); ok {
		opts = append(opts, option.WithJSONSet("top_p", p))
	}

	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		params.MaxOutputTokens = param.NewOpt(int64(maxTok))
	}

	// Schema-constrained output
	if chatOpts != nil && chatOpts.Schema != nil {
		format := &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:   chatOpts.Schema.Name,
			Schema: chatOpts.Schema.Schema,
			Strict: param.NewOpt(true),
		}
		if chatOpts.Schema.Description != "" {
			format.Description = param.NewOpt(chatOpts.Schema.Description)
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: format,
			},
		}
	}

	return params, opts
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, chatOpts *llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	chunkCh := make(chan llm.StreamChunk, 100)
	params, opts := c.buildParams(messages, chatOpts)

	go func() {
		defer close(chunkCh)

		stream := c.client.Responses.NewStreaming(ctx, params, opts...)
		defer stream.Close()

		var lastFinishReason string
		var lastUsage *llm.LLMUsage

		// StreamDebugger handles file creation and lifecycle
		debugger := llm.NewStreamDebugger(ctx, c.provider, c.debugEnabled)
		defer debugger.Close()

		var thinkingLogBuffer strings.Builder

		for stream.Next() {
			event := stream.Current()
			debugger.WriteString(event.RawJSON())

			switch variant := event.AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				chunkCh <- llm.NewTextChunk(variant.Delta)

			case responses.ResponseReasoningTextDeltaEvent:
				thinkingLogBuffer.WriteString(variant.Delta)
				chunkCh <- llm.NewThinkingChunk(variant.Delta)

			case responses.ResponseReasoningSummaryTextDeltaEvent:
				thinkingLogBuffer.WriteString(variant.Delta)
				chunkCh <- llm.NewThinkingChunk(variant.Delta)

			case responses.ResponseCompletedEvent:
				lastFinishReason = "stop"
				if variant.Response.Usage.TotalTokens > 0 {
					lastUsage = &llm.LLMUsage{
						PromptTokens:     int(variant.Response.Usage.InputTokens),
						CompletionTokens: int(variant.Response.Usage.OutputTokens),
						TotalTokens:      int(variant.Response.Usage.TotalTokens),
						CachedTokens:     int(variant.Response.Usage.InputTokensDetails.CachedTokens),
						StopReason:       llm.StopReasonStop,
					}
				}

			case responses.ResponseFailedEvent:
				chunkCh <- llm.NewErrorChunk("API response failed", nil, true)
				return

			case responses.ResponseIncompleteEvent:
				lastFinishReason = "length"
				chunkCh <- llm.NewErrorChunk("API response incomplete", nil, false)

			case responses.ResponseErrorEvent:
				chunkCh <- llm.NewErrorChunk(fmt.Sprintf("API error: %s", variant.Message), nil, true)
				return
			}
		}
		if thinkingLogBuffer.Len() > 0 {
			slog.DebugContext(ctx, "Captured full thinking process", "provider", c.provider, "content", thinkingLogBuffer.String())
		}

		if err := stream.Err(); err != nil {
			chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream error: %v", err), err, true)
			return
		}

		reason := llm.StopReasonStop
		if lastFinishReason != "" {
			reason = normalizeStopReason(lastFinishReason)
		}
		chunkCh <- llm.NewFinalChunk(reason, lastUsage)
		llm.LogUsage(ctx, c.model, lastUsage)
	}()

	return chunkCh, nil
}

func (c *Client) convertMessages(messages []llm.Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.GetTextContent(),
				responses.EasyInputMessageRoleSystem,
			))
		case llm.RoleUser:
			if !m.HasImages() {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					m.GetTextContent(),
					responses.EasyInputMessageRoleUser,
				))
				continue
			}
			var contentParts responses.ResponseInputMessageContentListParam
			for _, block := range m.Content {
				switch block.Type {
				case llm.BlockTypeText:
					contentParts = append(contentParts, responses.ResponseInputContentUnionParam{
						OfInputText: &responses.ResponseInputTextParam{
							Text: block.Text,
						},
					})
				case llm.BlockTypeImage:
					if block.Source == nil {
						continue
					}
					imgURL := block.Source.URL
					if block.Source.Type == "base64" {
						imgURL = fmt.Sprintf("data:%s;base64,%s", block.Source.MediaType, base64.StdEncoding.EncodeToString(block.Source.Data))
					}
					contentParts = append(contentParts, responses.ResponseInputContentUnionParam{
						OfInputImage: &responses.ResponseInputImageParam{
							Detail:   responses.ResponseInputImageDetailAuto,
							ImageURL: param.NewOpt(imgURL),
						},
					})
				}
			}
			items = append(items, responses.ResponseInputItemParamOfMessage(
				contentParts,
				responses.EasyInputMessageRoleUser,
			))
		case llm.RoleAssistant:
			if text := m.GetTextContent(); text != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					text,
					responses.EasyInputMessageRoleAssistant,
				))
			}
		}
	}

	return items
}

// normalizeStopReason converts OpenAI-specific finish_reason to
// a standardized lowercase format.
func normalizeStopReason(reason string) string {
	switch strings.ToLower(reason) {
	case "stop":
		return llm.StopReasonStop
	case "length":
		return llm.StopReasonLength
	default:
		return reason
	}
}

package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"synapse/pkg/llm"

	"google.golang.org/genai"
)

// GeminiClient Google Gemini API client
type GeminiClient struct {
	client       *genai.Client
	model        string
	useThought   bool
	debugEnabled bool
	options      map[string]any
}

// SetDebug 開啟原始 chunk 紀錄
func (g *GeminiClient) SetDebug(enabled bool) {
	g.debugEnabled = enabled
}

// NewGeminiClient creates a Gemini client with a single model and API key
func NewGeminiClient(apiKey string, model string, useThought bool, options map[string]any) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &GeminiClient{
		client:     client,
		model:      model,
		useThought: useThought,
		options:    options,
	}, nil
}

func (g *GeminiClient) Provider() string {
	return "gemini/" + g.model
}

// formatModality formats ModalityTokenCount array for logging
func formatModality(details []*genai.ModalityTokenCount) string {
	if len(details) == 0 {
		return "0"
	}
	var res []string
	for _, d := range details {
		res = append(res, fmt.Sprintf("%v: %d", d.Modality, d.TokenCount))
	}
	return strings.Join(res, " | ")
}

func (g *GeminiClient) buildConfig(systemInstruction *genai.Content, opts *llm.ChatOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
	}

	if g.useThought {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	if t, ok := g.options["temperature"].(float64); ok {
		cfg.Temperature = ptr(float32(t))
	}
	if p, ok := g.options["top_p"].(float64); ok {
		cfg.TopP = ptr(float32(p))
	}
	if maxTok, ok := g.options["max_tokens"].(float64); ok {
		cfg.MaxOutputTokens = int32(maxTok)
	}

	if opts != nil && opts.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = opts.Schema.Schema
	}
	return cfg
}

// StreamChat implements llm.LLMClient.StreamChat
func (g *GeminiClient) StreamChat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	apiMessages, systemInstruction := g.convertMessages(messages)
	config := g.buildConfig(systemInstruction, opts)

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	slog.DebugContext(ctx, "Streaming", "provider", "gemini", "model", g.model, "structured", opts != nil && opts.Schema != nil)

	go func() {
		defer close(chunkCh)

		iter := g.client.Models.GenerateContentStream(ctx, g.model, apiMessages, config)

		started := false
		var lastUsage *llm.LLMUsage

		debugger := llm.NewStreamDebugger(ctx, "gemini", g.debugEnabled)
		defer debugger.Close()

		for resp, err := range iter {
			if resp != nil {
				debugger.WriteJSON(resp)
			}
			if err != nil {
				// SDK 可能同時回傳資料與錯誤
				if resp == nil {
					slog.ErrorContext(ctx, "Stream error", "provider", "gemini", "model", g.model, "error", err)
					if !started {
						startResultCh <- err
					} else {
						chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true)
					}
					return
				}
				slog.WarnContext(ctx, "Stream error with data", "provider", "gemini", "error", err)
			}

			if !started {
				started = true
				startResultCh <- nil
			}

			// Usage 通常在最後一個 chunk
			if resp.UsageMetadata != nil {
				u := resp.UsageMetadata
				lastUsage = &llm.LLMUsage{
					PromptTokens:     int(u.PromptTokenCount),
					PromptDetail:     formatModality(u.PromptTokensDetails),
					CompletionTokens: int(u.CandidatesTokenCount),
					CompletionDetail: formatModality(u.CandidatesTokensDetails),
					TotalTokens:      int(u.TotalTokenCount),
					ThoughtsTokens:   int(u.ThoughtsTokenCount),
					CachedTokens:     int(u.CachedContentTokenCount),
				}
			}

			for _, candidate := range resp.Candidates {
				if candidate.FinishReason != "" && lastUsage != nil {
					lastUsage.StopReason = normalizeStopReason(candidate.FinishReason)
					if candidate.FinishReason == genai.FinishReasonMaxTokens {
						chunkCh <- llm.NewErrorChunk("Response truncated due to max tokens limit.", nil, false)
					}
				}

				if candidate.Content == nil {
					continue
				}
				var blocks []llm.ContentBlock
				for _, part := range candidate.Content.Parts {
					if part.Text == "" {
						continue
					}
					if part.Thought {
						blocks = append(blocks, llm.ContentBlock{Type: llm.BlockTypeThinking, Text: part.Text})
					} else {
						blocks = append(blocks, llm.ContentBlock{Type: llm.BlockTypeText, Text: part.Text})
					}
				}
				if len(blocks) > 0 {
					chunkCh <- llm.StreamChunk{ContentBlocks: blocks}
				}
			}
		}

		if !started {
			// 空串流
			startResultCh <- nil
		}

		reason := llm.StopReasonStop
		if lastUsage != nil && lastUsage.StopReason != "" {
			reason = lastUsage.StopReason
		}
		chunkCh <- llm.NewFinalChunk(reason, lastUsage)
		llm.LogUsage(ctx, g.model, lastUsage)
	}()

	// 等待第一個 chunk 或立即錯誤，讓 FallbackClient 能判斷是否換下一個
	select {
	case err := <-startResultCh:
		if err != nil {
			return nil, err
		}
		return chunkCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func normalizeStopReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return llm.StopReasonStop
	case genai.FinishReasonMaxTokens:
		return llm.StopReasonLength
	default:
		return strings.ToLower(string(reason))
	}
}

// convertMessages converts message list to GenAI format
func (g *GeminiClient) convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var genaiContents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			var parts []*genai.Part
			for _, block := range msg.Content {
				if block.Type == llm.BlockTypeText && block.Text != "" {
					parts = append(parts, &genai.Part{Text: block.Text})
				}
			}
			if len(parts) > 0 {
				systemInstruction = &genai.Content{Parts: parts}
			}
			continue
		}

		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		for _, block := range msg.Content {
			switch block.Type {
			case llm.BlockTypeText:
				if block.Text == "" {
					continue // 略過空文本
				}
				parts = append(parts, &genai.Part{Text: block.Text})

			case llm.BlockTypeThinking:
				if block.Text == "" {
					continue
				}
				parts = append(parts, &genai.Part{Text: block.Text, Thought: true})

			case llm.BlockTypeImage:
				if block.Source != nil && len(block.Source.Data) > 0 {
					parts = append(parts, &genai.Part{
						InlineData: &genai.Blob{
							MIMEType: block.Source.MediaType,
							Data:     block.Source.Data,
						},
					})
				}
			}
		}

		if len(parts) > 0 {
			genaiContents = append(genaiContents, &genai.Content{
				Role:  role,
				Parts: parts,
			})
		}
	}

	return genaiContents, systemInstruction
}

// IsTransientError implements the llm.LLMClient interface
func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	// 1. 503 Service Unavailable / Overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(errMsg, "overloaded") {
		return true
	}

	// 2. 429 Too Many Requests (Rate Limit)
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		return true
	}

	// 3. 500 Internal Error
	if strings.Contains(errMsg, "500") || strings.Contains(errMsg, "internal error") {
		return true
	}

	return false
}

func ptr[T any](v T) *T { return &v }

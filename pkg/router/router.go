// Package router maps a user message and optional attachment to exactly
// one tool invocation.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"synapse/pkg/llm"
	"synapse/pkg/tools"
)

// Default instructions used when a file arrives without a message.
const (
	DefaultPDFInstruction   = "Summarize this document."
	DefaultOCRInstruction   = "Extract and summarize the text in this image."
	DefaultCSVInstruction   = "Analyze this dataset and visualize the key figures."
	DefaultTextInstruction  = "Summarize this document."
	sendEmailWord           = "send_email"
	classificationSchemaKey = "route"
)

// Request is everything the router looks at.
type Request struct {
	Message   string
	MediaType string
	FileName  string
	// Loaded lists the scratchpad kinds the session currently holds.
	Loaded []string
}

// HasFile reports whether an attachment came with the message.
func (r Request) HasFile() bool {
	return r.MediaType != "" || r.FileName != ""
}

// Intent is the routing decision.
type Intent struct {
	Tool     tools.ToolName `json:"tool"`
	Argument string         `json:"argument"`
}

// Router classifies requests with an LLM. A nil Client routes everything
// that is not pre-routed to general_query.
type Router struct {
	Client llm.LLMClient
}

func New(client llm.LLMClient) *Router {
	return &Router{Client: client}
}

// Route never fails. Anything the classifier cannot decide becomes a
// general_query carrying the original message.
func (r *Router) Route(ctx context.Context, req Request) Intent {
	fallback := Intent{Tool: tools.GeneralQuery, Argument: req.Message}

	if strings.TrimSpace(req.Message) == "" {
		if !req.HasFile() {
			return Intent{Tool: tools.GeneralQuery}
		}
		if intent, ok := PreRoute(req.MediaType, req.FileName); ok {
			slog.DebugContext(ctx, "Pre-routed attachment", "tool", intent.Tool, "media_type", req.MediaType)
			return intent
		}
		return fallback
	}

	if r == nil || r.Client == nil {
		return fallback
	}

	var out struct {
		Tool     string `json:"tool"`
		Argument string `json:"argument"`
	}
	err := llm.GenerateJSON(ctx, r.Client, []llm.Message{
		llm.NewSystemMessage(systemPrompt()),
		llm.NewUserMessage(userPrompt(req)),
	}, schema, &out)
	if err != nil {
		slog.WarnContext(ctx, "Intent classification failed, using general_query", "error", err)
		return fallback
	}

	tool, ok := tools.ParseToolName(out.Tool)
	if !ok {
		if !strings.EqualFold(strings.TrimSpace(out.Tool), sendEmailWord) {
			slog.WarnContext(ctx, "Classifier returned unknown tool", "tool", out.Tool)
		}
		return fallback
	}

	arg := strings.TrimSpace(out.Argument)
	if arg == "" || tool == tools.GeneralQuery {
		arg = req.Message
	}
	return Intent{Tool: tool, Argument: arg}
}

// PreRoute picks a tool for a bare attachment from its media type, falling
// back to the file extension.
func PreRoute(mediaType, fileName string) (Intent, bool) {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	name := strings.ToLower(fileName)

	switch {
	case mt == "text/csv" || mt == "application/csv" || strings.HasSuffix(name, ".csv"):
		return Intent{Tool: tools.ExtractCSVData, Argument: DefaultCSVInstruction}, true
	case mt == "application/pdf" || strings.HasSuffix(name, ".pdf"):
		return Intent{Tool: tools.ExtractPDFText, Argument: DefaultPDFInstruction}, true
	case strings.HasPrefix(mt, "image/"):
		return Intent{Tool: tools.RunOCR, Argument: DefaultOCRInstruction}, true
	case strings.HasPrefix(mt, "text/") || strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".md"):
		return Intent{Tool: tools.ExtractPDFText, Argument: DefaultTextInstruction}, true
	}
	return Intent{}, false
}

var schema = &llm.ResponseSchema{
	Name:        classificationSchemaKey,
	Description: "The single best tool for the user's request",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tool": map[string]any{
				"type": "string",
				"enum": append(tools.Names(), sendEmailWord),
			},
			"argument": map[string]any{
				"type":        "string",
				"description": "the instruction or query to pass to the tool",
			},
		},
		"required":             []string{"tool", "argument"},
		"additionalProperties": false,
	},
}

func systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are an intent detection and tool routing agent. Analyze the user's message and any attached file " +
		"and choose the single best tool to run next.\n\nAvailable tools:\n")
	for _, t := range tools.Vocabulary() {
		fmt.Fprintf(&sb, "- %s: %s\n", t, t.Description())
	}
	sb.WriteString("\nReturn ONLY a JSON object with \"tool\" and \"argument\", for example " +
		`{"tool": "extract_pdf_text", "argument": "Summarize the pdf"}` + ". No explanation, no markdown.")
	return sb.String()
}

func userPrompt(req Request) string {
	var sb strings.Builder
	if req.HasFile() {
		fmt.Fprintf(&sb, "CONTEXT: The user has provided a file of type: %s", orUnknown(req.MediaType))
		if req.FileName != "" {
			fmt.Fprintf(&sb, " (%s)", req.FileName)
		}
		sb.WriteString(".\n")
	} else {
		sb.WriteString("CONTEXT: No file has been provided by the user.\n")
	}
	if len(req.Loaded) > 0 {
		fmt.Fprintf(&sb, "Data already loaded in this conversation: %s.\n", strings.Join(req.Loaded, ", "))
	}
	fmt.Fprintf(&sb, "\nUSER MESSAGE: %q", req.Message)
	return sb.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

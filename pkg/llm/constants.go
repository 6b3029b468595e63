package llm

import "context"

// StopReason constants define normalized reasons for LLM generation termination.
// All providers must normalize their native stop reasons to these values.
const (
	StopReasonStop   = "stop"   // Normal completion
	StopReasonLength = "length" // Output truncated due to token limit
)

// ContentBlock Type constants define the supported content block formats
// used throughout the message pipeline.
const (
	BlockTypeText     = "text"     // Plain text content
	BlockTypeThinking = "thinking" // Internal reasoning/chain-of-thought
	BlockTypeImage    = "image"    // Binary image data
	BlockTypeError    = "error"    // Non-fatal provider warning
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type contextKey string

// DebugDirContextKey carries the per-request debug ID. Stream debuggers nest
// their chunk dumps under it and the log handler prints it.
const DebugDirContextKey contextKey = "llm_debug_dir"

// WithDebugID returns a context carrying the request debug ID.
func WithDebugID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, DebugDirContextKey, id)
}

// DebugID returns the request debug ID carried by ctx, or "".
func DebugID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(DebugDirContextKey).(string)
	return id
}

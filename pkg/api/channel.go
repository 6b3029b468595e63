package api

import (
	"context"
	"strings"

	"synapse/pkg/stream"
	"synapse/pkg/tools"
)

// Channel is a platform adapter (web, telegram, ...) that turns platform
// traffic into Requests and renders their events back.
type Channel interface {
	// ID returns the unique identifier of the channel (e.g., "web").
	ID() string

	// Start begins receiving traffic. It must not block.
	Start(ctx ChannelContext) error

	// Stop shuts the channel down.
	Stop() error
}

// ChannelContext is the gateway as seen by a running channel.
type ChannelContext interface {
	// OnRequest handles one request and writes its events to sink. It returns
	// once the end event has been emitted.
	OnRequest(ctx context.Context, req *Request, sink stream.Sink) error

	// SendEmail delivers an email the user has reviewed and confirmed.
	SendEmail(ctx context.Context, email tools.Email) (*tools.Delivery, error)

	// ConfirmEmail delivers the pending email previewed in session under id.
	ConfirmEmail(ctx context.Context, session SessionContext, id string) (*tools.Delivery, error)
}

// SessionContext identifies who sent a request and where replies go.
type SessionContext struct {
	ChannelID string // Source channel, e.g. "telegram"
	UserID    string // Platform user ID
	ChatID    string // Conversation ID; web uses the session ID
	Username  string // Display name, for logs
}

// Key is the scratchpad session key. Conversations on different channels
// never share a key.
func (s SessionContext) Key() string {
	id := s.ChatID
	if id == "" {
		id = s.UserID
	}
	return s.ChannelID + ":" + id
}

// FileAttachment is an uploaded file, held in memory.
type FileAttachment struct {
	Filename string
	MimeType string
	Data     []byte
}

// Document converts the attachment for the tool adapters.
func (f *FileAttachment) Document() *tools.Document {
	if f == nil {
		return nil
	}
	return &tools.Document{
		Data:      f.Data,
		MediaType: strings.TrimSpace(f.MimeType),
		Name:      f.Filename,
	}
}

// Request is a platform independent user request.
type Request struct {
	Session SessionContext
	Message string
	File    *FileAttachment
	DebugID string // Short ID tying the log lines of one request together
}

package api

import (
	"context"
	"time"

	"synapse/pkg/stream"
	"synapse/pkg/tools"
)

// Outcome summarises a handled request for monitoring.
type Outcome struct {
	Tool     tools.ToolName
	Failed   bool
	Duration time.Duration
}

// RequestHandler runs requests for the gateway.
type RequestHandler interface {
	Handle(ctx context.Context, req *Request, sink stream.Sink) (Outcome, error)
	SendEmail(ctx context.Context, email tools.Email) (*tools.Delivery, error)
	ConfirmEmail(ctx context.Context, session SessionContext, id string) (*tools.Delivery, error)
}

package web

import (
	"log/slog"
	"net/http"
	"sync"

	"synapse/pkg/api"
	"synapse/pkg/stream"
	"synapse/pkg/tools"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin is checked by the CORS allow list before upgrading
	},
}

// wsMessage is one inbound websocket frame. Action "confirm_email" sends the
// previewed email; anything else is a chat request.
//
// A chat request is answered with event frames ({type, data}) ending in
// "end". A confirm_email action is answered with one untyped
// {success, message} frame, the same body POST /api/agent/send-email returns.
// It is not a stream event and is never sent while a stream is open.
type wsMessage struct {
	chatBody
	Action    string `json:"action"`
	PreviewID string `json:"previewId"`
}

type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(messageType, data)
}

// Emit implements stream.Sink, one event per text frame.
func (sc *SafeConn) Emit(ev stream.Event) error {
	data, err := stream.Encode(ev)
	if err != nil {
		return err
	}
	return sc.WriteMessage(websocket.TextMessage, data)
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	if origin := r.Header.Get("Origin"); origin != "" && !c.originAllowed(origin) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	sessionID, cookie := c.resolveSession(r, r.URL.Query().Get("sessionId"))
	header := http.Header{sessionHeader: []string{sessionID}}
	if cookie != nil {
		header.Add("Set-Cookie", cookie.String())
	}

	rawConn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		slog.Error("WS Upgrade failed", "error", err)
		return
	}
	if limit := c.system.MaxUploadBytes; limit > 0 {
		rawConn.SetReadLimit(limit*4/3 + 1<<20)
	}

	// Wrap connection
	conn := &SafeConn{Conn: rawConn}
	defer conn.Close()

	slog.Info("WS connected", "session", sessionID, "remote", r.RemoteAddr)

	// Requests of one connection run one after another
	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var in wsMessage
		if err := json.Unmarshal(msgBytes, &in); err != nil {
			// Plain text frames are chat messages
			in = wsMessage{chatBody: chatBody{Message: string(msgBytes)}}
		}

		session := webSession(sessionID)
		if in.Action == "confirm_email" {
			c.confirmOverSocket(r, conn, ctx, session, in.PreviewID)
			continue
		}

		var file *api.FileAttachment
		if in.File != "" {
			data, err := decodeFile(in.File)
			if err != nil {
				_ = conn.Emit(stream.Error(stream.ErrorPayload{Kind: string(tools.KindMissingInput), Message: err.Error()}))
				_ = conn.Emit(stream.End())
				continue
			}
			file = attachment(in.chatBody, data)
		}

		req := &api.Request{Session: session, Message: in.Message, File: file}
		if err := ctx.OnRequest(r.Context(), req, conn); err != nil {
			slog.Warn("WS stream aborted", "session", sessionID, "error", err)
			break
		}
	}

	slog.Info("WS disconnected", "session", sessionID)
}

func (c *WebChannel) confirmOverSocket(r *http.Request, conn *SafeConn, ctx api.ChannelContext, session api.SessionContext, id string) {
	resp := sendEmailResponse{}
	if d, err := ctx.ConfirmEmail(r.Context(), session, id); err != nil {
		resp.Message = tools.Message(err)
	} else {
		resp = sendEmailResponse{Success: true, Message: d.Message}
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("WS write failed", "error", err)
	}
}

package web

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"synapse/pkg/api"
	"synapse/pkg/config"
	"synapse/pkg/stream"
	"synapse/pkg/tools"
	"synapse/pkg/utils"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	channelID     = "web"
	sessionHeader = "X-Session-ID"
	sessionCookie = "synapse_session"
	maxSessionID  = 128
)

type WebConfig struct {
	Port           int      `json:"port"`            // Default: 8080
	AllowedOrigins []string `json:"allowed_origins"` // CORS origins; empty allows any
}

// chatBody is the JSON form of a chat request. File is base64, optionally
// as a data URL.
type chatBody struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	File      string `json:"file"`
	FileType  string `json:"fileType"`
	FileName  string `json:"fileName"`
}

type sendEmailBody struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	PreviewID string `json:"previewId"`
	SessionID string `json:"sessionId"`
}

type sendEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WebChannel serves the agent over HTTP: an NDJSON chat endpoint, the
// email confirmation endpoint and a websocket carrying the same events.
type WebChannel struct {
	config     WebConfig
	system     *config.SystemConfig
	server     *http.Server
	sessionTTL time.Duration
}

func NewWebChannel(cfg WebConfig, system *config.SystemConfig) *WebChannel {
	return &WebChannel{
		config:     cfg,
		system:     system,
		sessionTTL: time.Duration(system.SessionTTLMs) * time.Millisecond,
	}
}

func (c *WebChannel) ID() string {
	return channelID
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	addr := fmt.Sprintf(":%d", c.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", addr, err)
	}

	c.server = &http.Server{
		Handler:           c.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Web API listening", "port", c.config.Port)

	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web API server error", "error", err)
		}
	}()

	return nil
}

func (c *WebChannel) Stop() error {
	if c.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.server.Shutdown(ctx)
}

// Handler returns the HTTP routes of the channel.
func (c *WebChannel) Handler(ctx api.ChannelContext) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/agent/chat", func(w http.ResponseWriter, r *http.Request) {
		c.handleChat(w, r, ctx)
	})
	mux.HandleFunc("POST /api/agent/send-email", func(w http.ResponseWriter, r *http.Request) {
		c.handleSendEmail(w, r, ctx)
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, ctx)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return c.cors(mux)
}

func (c *WebChannel) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && c.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+sessionHeader)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Expose-Headers", sessionHeader)
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *WebChannel) originAllowed(origin string) bool {
	return len(c.config.AllowedOrigins) == 0 || slices.Contains(c.config.AllowedOrigins, origin)
}

func (c *WebChannel) handleChat(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	if limit := c.system.MaxUploadBytes; limit > 0 {
		// base64 bodies run a third larger than the file
		r.Body = http.MaxBytesReader(w, r.Body, limit*4/3+1<<20)
	}

	body, file, err := parseChat(r)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		slog.Warn("Rejected chat request", "status", status, "error", err)
		writeJSON(w, status, sendEmailResponse{Message: err.Error()})
		return
	}

	sessionID, cookie := c.resolveSession(r, body.SessionID)
	if cookie != nil {
		http.SetCookie(w, cookie)
	}
	req := &api.Request{
		Session: webSession(sessionID),
		Message: body.Message,
		File:    file,
	}

	h := w.Header()
	h.Set("Content-Type", stream.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	h.Set(sessionHeader, sessionID)
	w.WriteHeader(http.StatusOK)

	if err := ctx.OnRequest(r.Context(), req, stream.NewWriter(w)); err != nil {
		slog.Warn("Chat stream aborted", "session", sessionID, "error", err)
	}
}

// parseChat reads a multipart form or a JSON body.
func parseChat(r *http.Request) (chatBody, *api.FileAttachment, error) {
	var body chatBody

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return body, nil, fmt.Errorf("invalid multipart form: %w", err)
		}
		body.Message = r.FormValue("message")
		body.SessionID = r.FormValue("sessionId")
		body.FileType = r.FormValue("fileType")
		body.FileName = r.FormValue("fileName")

		f, header, err := r.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			return body, nil, nil
		}
		if err != nil {
			return body, nil, fmt.Errorf("invalid file field: %w", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return body, nil, fmt.Errorf("read upload: %w", err)
		}
		if body.FileType == "" {
			body.FileType = header.Header.Get("Content-Type")
		}
		if body.FileName == "" {
			body.FileName = header.Filename
		}
		return body, attachment(body, data), nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return body, nil, fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return body, nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if body.File == "" {
		return body, nil, nil
	}
	data, err := decodeFile(body.File)
	if err != nil {
		return body, nil, err
	}
	return body, attachment(body, data), nil
}

// decodeFile accepts plain base64 or a data URL.
func decodeFile(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, payload, ok := strings.Cut(s, ","); ok {
			s = payload
		}
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("file is not valid base64: %w", err)
	}
	return data, nil
}

func attachment(body chatBody, data []byte) *api.FileAttachment {
	name := body.FileName
	if name == "" {
		name = "upload"
	}
	return &api.FileAttachment{
		Filename: name,
		MimeType: utils.ResolveMediaType(body.FileType, name, data),
		Data:     data,
	}
}

func (c *WebChannel) handleSendEmail(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	var body sendEmailBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<20)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, sendEmailResponse{Message: "invalid JSON body"})
		return
	}

	var (
		d   *tools.Delivery
		err error
	)
	switch {
	case body.To != "" && body.Subject != "" && body.HTML != "":
		d, err = ctx.SendEmail(r.Context(), tools.Email{To: body.To, Subject: body.Subject, HTML: body.HTML})
	case body.PreviewID != "":
		sessionID := firstNonEmpty(r.Header.Get(sessionHeader), body.SessionID, cookieSession(r))
		d, err = ctx.ConfirmEmail(r.Context(), webSession(sessionID), body.PreviewID)
	default:
		writeJSON(w, http.StatusBadRequest, sendEmailResponse{Message: "Missing required fields: to, subject, html"})
		return
	}

	if err != nil {
		status := http.StatusBadGateway
		if tools.KindOf(err) == tools.KindMissingInput {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, sendEmailResponse{Message: tools.Message(err)})
		return
	}
	writeJSON(w, http.StatusOK, sendEmailResponse{Success: true, Message: d.Message})
}

// resolveSession takes the session from the header, the body or the
// cookie. When none is present it issues a new one and returns the cookie
// to set.
func (c *WebChannel) resolveSession(r *http.Request, fromBody string) (string, *http.Cookie) {
	if id := firstNonEmpty(r.Header.Get(sessionHeader), fromBody, cookieSession(r)); id != "" {
		return id, nil
	}
	id := uuid.NewString()
	cookie := &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if c.sessionTTL > 0 {
		cookie.MaxAge = int(c.sessionTTL.Seconds())
	}
	return id, cookie
}

func cookieSession(r *http.Request) string {
	if ck, err := r.Cookie(sessionCookie); err == nil {
		return ck.Value
	}
	return ""
}

func firstNonEmpty(ids ...string) string {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && len(id) <= maxSessionID {
			return id
		}
	}
	return ""
}

func webSession(id string) api.SessionContext {
	return api.SessionContext{
		ChannelID: channelID,
		UserID:    id,
		ChatID:    id,
		Username:  "WebUser",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write JSON response", "error", err)
	}
}

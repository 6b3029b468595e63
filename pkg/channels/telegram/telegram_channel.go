package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"synapse/pkg/api"
	"synapse/pkg/config"
	"synapse/pkg/tools"
	"synapse/pkg/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	channelID          = "telegram"
	sendCallbackPrefix = "send:"
)

// TelegramConfig encapsulates the credentials required to authenticate with
// the Telegram Bot API.
type TelegramConfig struct {
	Token       string `json:"token"`                  // The secret BOT API string provided by @BotFather
	APIEndpoint string `json:"api_endpoint,omitempty"` // Self-hosted Bot API server, "%s" for token and method
}

// TelegramChannel is the production implementation of api.Channel for
// the Telegram platform. It turns text, captions, documents and photos into
// agent requests and renders the resulting events as chat messages.
type TelegramChannel struct {
	config       TelegramConfig
	bot          *tgbotapi.BotAPI   // Underlying Telegram SDK client
	messageLimit int                // Maximum character count per single message bubble
	maxUpload    int64              // Largest file accepted from a chat
	httpClient   *http.Client       // Client for downloading media from Telegram
	stopCtx      context.Context    // Context used to forcibly abort the long-polling HTTP request
	stopCancel   context.CancelFunc // Function to trigger the abort
}

func NewTelegramChannel(cfg TelegramConfig, system *config.SystemConfig) (*TelegramChannel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// Tie the DialContext to stopCtx so an active long-poll is aborted when
	// Stop() is called; otherwise a restarted bot gets 409 Conflict.
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	botHTTPClient := &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
				mergedCtx, mergedCancel := context.WithCancel(dialCtx)
				go func() {
					select {
					case <-ctx.Done():
						mergedCancel()
					case <-mergedCtx.Done():
					}
				}()
				return dialer.DialContext(mergedCtx, network, addr)
			},
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, botHTTPClient)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	return &TelegramChannel{
		config:       cfg,
		bot:          bot,
		messageLimit: system.TelegramMessageLimit,
		maxUpload:    system.MaxUploadBytes,
		httpClient: &http.Client{
			Timeout: time.Duration(system.DownloadTimeoutMs) * time.Millisecond,
		},
		stopCtx:    ctx,
		stopCancel: cancel,
	}, nil
}

// ID returns the unique platform identifier "telegram".
func (t *TelegramChannel) ID() string {
	return channelID
}

// Start initiates the long-polling update loop in a background goroutine.
func (t *TelegramChannel) Start(ctx api.ChannelContext) error {
	go t.poll(ctx)
	return nil
}

func (t *TelegramChannel) poll(ctx api.ChannelContext) {
	offset := 0
	for {
		select {
		case <-t.stopCtx.Done():
			return
		default:
		}

		reqConfig := tgbotapi.NewUpdate(offset)
		reqConfig.Timeout = 60

		// GetUpdates instead of GetUpdatesChan keeps the offset under our control
		updates, err := t.bot.GetUpdates(reqConfig)
		if err != nil {
			select {
			case <-t.stopCtx.Done():
				return
			default:
				slog.Debug("Failed to get telegram updates", "error", err)
				time.Sleep(3 * time.Second)
				continue
			}
		}

		for _, update := range updates {
			if update.UpdateID < offset {
				continue
			}
			offset = update.UpdateID + 1

			switch {
			case update.CallbackQuery != nil:
				go t.handleCallback(ctx, update.CallbackQuery)
			case update.Message != nil && update.Message.From != nil:
				// Downloads and tool runs must not block the update loop
				go t.handleMessage(ctx, update.Message)
			}
		}
	}
}

func sessionFor(chat *tgbotapi.Chat, from *tgbotapi.User) api.SessionContext {
	s := api.SessionContext{ChannelID: channelID}
	if chat != nil {
		s.ChatID = strconv.FormatInt(chat.ID, 10)
	}
	if from != nil {
		s.UserID = strconv.FormatInt(from.ID, 10)
		s.Username = from.UserName
	}
	return s
}

func (t *TelegramChannel) handleMessage(ctx api.ChannelContext, msg *tgbotapi.Message) {
	session := sessionFor(msg.Chat, msg.From)

	content := msg.Text
	if content == "" {
		content = msg.Caption
	}

	req := &api.Request{Session: session, Message: content}

	file, err := t.attachment(msg)
	if err != nil {
		slog.Error("Telegram download failed", "chat", session.ChatID, "error", err)
		_ = t.Send(session, "⚠️ Could not download your file: "+err.Error())
		return
	}
	req.File = file

	if req.Message == "" && req.File == nil {
		return // stickers, joins and the like
	}

	r := newReply(t, session)
	if err := ctx.OnRequest(t.stopCtx, req, r); err != nil {
		slog.Warn("Telegram reply aborted", "chat", session.ChatID, "error", err)
	}
}

// attachment downloads the document or the largest photo of msg, if any.
func (t *TelegramChannel) attachment(msg *tgbotapi.Message) (*api.FileAttachment, error) {
	var fileID, name, mimeType string
	var size int64
	switch {
	case msg.Document != nil:
		fileID, name, mimeType = msg.Document.FileID, msg.Document.FileName, msg.Document.MimeType
		size = int64(msg.Document.FileSize)
	case len(msg.Photo) > 0:
		photo := msg.Photo[len(msg.Photo)-1]
		fileID, size = photo.FileID, int64(photo.FileSize)
	default:
		return nil, nil
	}

	if t.maxUpload > 0 && size > t.maxUpload {
		return nil, fmt.Errorf("file is larger than %d MB", t.maxUpload>>20)
	}

	data, err := t.download(fileID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		_, ext := utils.DetectMimeAndExt(data)
		name = "photo" + ext
	}
	return &api.FileAttachment{
		Filename: name,
		MimeType: utils.ResolveMediaType(mimeType, name, data),
		Data:     data,
	}, nil
}

// download fetches a Telegram file into memory.
func (t *TelegramChannel) download(fileID string) ([]byte, error) {
	fileURL, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	resp, err := t.httpClient.Get(fileURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file: status code %d", resp.StatusCode)
	}

	var r io.Reader = resp.Body
	if t.maxUpload > 0 {
		r = io.LimitReader(resp.Body, t.maxUpload+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if t.maxUpload > 0 && int64(len(data)) > t.maxUpload {
		return nil, fmt.Errorf("file is larger than %d MB", t.maxUpload>>20)
	}
	return data, nil
}

// handleCallback answers the "Send" button under an email preview.
func (t *TelegramChannel) handleCallback(ctx api.ChannelContext, cb *tgbotapi.CallbackQuery) {
	id, ok := strings.CutPrefix(cb.Data, sendCallbackPrefix)
	if !ok || cb.Message == nil {
		_, _ = t.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
		return
	}
	session := sessionFor(cb.Message.Chat, cb.From)

	d, err := ctx.ConfirmEmail(t.stopCtx, session, id)
	if err != nil {
		slog.Warn("Telegram email confirmation failed", "chat", session.ChatID, "error", err)
		if _, err := t.bot.Request(tgbotapi.NewCallback(cb.ID, "Sending failed")); err != nil {
			slog.Debug("Failed to answer callback", "error", err)
		}
		_ = t.Send(session, "⚠️ "+tools.Message(err))
		return
	}

	if _, err := t.bot.Request(tgbotapi.NewCallback(cb.ID, "Sent")); err != nil {
		slog.Debug("Failed to answer callback", "error", err)
	}
	// Drop the button so the email cannot be sent twice
	strip := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := t.bot.Request(strip); err != nil {
		slog.Debug("Failed to remove send button", "error", err)
	}
	_ = t.Send(session, "✅ "+d.Message)
}

// SendSignal shows the typing indicator while a request runs.
func (t *TelegramChannel) SendSignal(session api.SessionContext) error {
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return err
	}
	_, err = t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func (t *TelegramChannel) Stop() error {
	t.stopCancel() // Cancel our custom long-polling loop immediately

	// HTTP/1.1 connections stuck in Read won't abort via
	// CloseIdleConnections(), but it clears the pool.
	if httpClient, ok := t.bot.Client.(*http.Client); ok && httpClient != nil {
		if transport, ok := httpClient.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}

	return nil
}

// Send delivers a text message, split into chunks of messageLimit runes.
func (t *TelegramChannel) Send(session api.SessionContext, message string) error {
	// Telegram Chat ID must be int64
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id for telegram: %s", session.ChatID)
	}

	msgRunes := []rune(message)
	totalLen := len(msgRunes)
	limit := t.messageLimit
	if limit <= 0 {
		limit = 4000
	}

	for i := 0; i < totalLen; i += limit {
		end := min(i+limit, totalLen)
		msg := tgbotapi.NewMessage(chatID, string(msgRunes[i:end]))
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("telegram send chunk failed at index %d: %w", i, err)
		}
	}

	return nil
}

// sendPreview sends the drafted email as an HTML document with a Send button.
func (t *TelegramChannel) sendPreview(session api.SessionContext, id, to, subject, html string) error {
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id for telegram: %s", session.ChatID)
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  "offer_letter.html",
		Bytes: []byte(html),
	})
	doc.Caption = fmt.Sprintf("To: %s\nSubject: %s", to, subject)
	if id != "" {
		doc.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Send", sendCallbackPrefix+id)),
		)
	}
	_, err = t.bot.Send(doc)
	return err
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nickaq/tg-bot-schedule/pkg/config"
)

// TelegramClient delivers messages through the Telegram Bot API. It
// implements the notifier's Sender interface.
type TelegramClient struct {
	apiURL string
	token  string
	client *http.Client
	// separate client without a fixed timeout so long polls are bounded
	// by context deadlines instead
	pollClient *http.Client
	logger     *zap.Logger
}

// NewTelegram builds a Bot API client from configuration.
func NewTelegram(cfg config.TelegramConfig, logger *zap.Logger) *TelegramClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramClient{
		apiURL:     apiURL,
		token:      cfg.Token,
		client:     &http.Client{Timeout: timeout},
		pollClient: &http.Client{},
		logger:     logger,
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Update is one inbound Bot API update. Only message text is consumed.
type Update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// ChatID returns the originating chat, zero for non-message updates.
func (u Update) ChatID() int64 {
	if u.Message == nil {
		return 0
	}
	return u.Message.Chat.ID
}

// Text returns the message text, empty for non-message updates.
func (u Update) Text() string {
	if u.Message == nil {
		return ""
	}
	return u.Message.Text
}

// Send posts one text message to the chat.
func (c *TelegramClient) Send(ctx context.Context, chatID int64, text string) error {
	_, err := c.call(ctx, c.client, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}
	c.logger.Sugar().Debugw("message delivered", "chat_id", chatID)
	return nil
}

type getUpdatesRequest struct {
	Offset  int64 `json:"offset,omitempty"`
	Timeout int   `json:"timeout,omitempty"`
}

// GetUpdates long-polls the Bot API for inbound updates after the offset.
func (c *TelegramClient) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	seconds := int(timeout / time.Second)
	if seconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout+10*time.Second)
		defer cancel()
	}
	result, err := c.call(ctx, c.pollClient, "getUpdates", getUpdatesRequest{Offset: offset, Timeout: seconds})
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}
	return updates, nil
}

func (c *TelegramClient) call(ctx context.Context, client *http.Client, method string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("telegram %s: read response: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("telegram %s: status %d, unparseable response", method, resp.StatusCode)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram %s: api error %d: %s", method, parsed.ErrorCode, parsed.Description)
	}
	return parsed.Result, nil
}

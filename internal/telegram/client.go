package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAPIBaseURL  = "https://api.telegram.org"
	defaultFileBaseURL = "https://api.telegram.org/file"

	// Bot API rejects message text above this length
	maxMessageLength = 4096
)

// Client is a thin wrapper over the Telegram Bot API methods this service
// calls. All methods take a context and perform a single attempt; resilience
// lives with the caller.
type Client struct {
	token       string
	apiBaseURL  string
	fileBaseURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

// Config contains Bot API client configuration
type Config struct {
	Token       string
	APIBaseURL  string // override for tests
	FileBaseURL string // override for tests
	Timeout     time.Duration
}

// FileInfo is the metadata the platform reports for a file reference
type FileInfo struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
	FilePath string `json:"file_path"`
}

// InlineKeyboardButton is one button of an inline keyboard
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

// InlineKeyboardMarkup is an inline keyboard attached to a message
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// SendMessageParams describes an outgoing chat message
type SendMessageParams struct {
	ChatID           int64
	Text             string
	ReplyToMessageID int64
	Keyboard         *InlineKeyboardMarkup
}

// apiResponse is the Bot API envelope common to all methods
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// NewClient creates a Bot API client
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token cannot be empty")
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.FileBaseURL == "" {
		cfg.FileBaseURL = defaultFileBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		token:       cfg.Token,
		apiBaseURL:  strings.TrimRight(cfg.APIBaseURL, "/"),
		fileBaseURL: strings.TrimRight(cfg.FileBaseURL, "/"),
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// SendMessage sends a text message and returns the new message id
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (int64, error) {
	payload := map[string]interface{}{
		"chat_id":    params.ChatID,
		"text":       truncate(params.Text, maxMessageLength),
		"parse_mode": "Markdown",
	}
	if params.ReplyToMessageID != 0 {
		payload["reply_parameters"] = map[string]interface{}{
			"message_id": params.ReplyToMessageID,
		}
	}
	if params.Keyboard != nil {
		payload["reply_markup"] = params.Keyboard
	}

	result, err := c.call(ctx, "sendMessage", payload)
	if err != nil {
		return 0, err
	}

	var sent struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(result, &sent); err != nil {
		return 0, fmt.Errorf("failed to parse sendMessage result: %w", err)
	}

	return sent.MessageID, nil
}

// EditMessageText replaces the text of an existing message
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	_, err := c.call(ctx, "editMessageText", map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       truncate(text, maxMessageLength),
		"parse_mode": "Markdown",
	})
	return err
}

// DeleteMessage removes a message from a chat
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := c.call(ctx, "deleteMessage", map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
	})
	return err
}

// SendChatAction shows a chat activity indicator such as "typing"
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	_, err := c.call(ctx, "sendChatAction", map[string]interface{}{
		"chat_id": chatID,
		"action":  action,
	})
	return err
}

// AnswerCallbackQuery acknowledges an inline keyboard button press
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	_, err := c.call(ctx, "answerCallbackQuery", map[string]interface{}{
		"callback_query_id": callbackQueryID,
		"text":              text,
		"show_alert":        false,
	})
	return err
}

// SetWebhook registers the webhook URL with the platform
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secretToken string) error {
	payload := map[string]interface{}{
		"url": webhookURL,
	}
	if secretToken != "" {
		payload["secret_token"] = secretToken
	}

	_, err := c.call(ctx, "setWebhook", payload)
	return err
}

// GetFile resolves a file reference to its metadata, including the
// platform-side path needed for download
func (c *Client) GetFile(ctx context.Context, fileID string) (FileInfo, error) {
	result, err := c.call(ctx, "getFile", map[string]interface{}{
		"file_id": fileID,
	})
	if err != nil {
		return FileInfo{}, err
	}

	var info FileInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return FileInfo{}, fmt.Errorf("failed to parse getFile result: %w", err)
	}

	return info, nil
}

// DownloadFile streams file content from the platform into dst
func (c *Client) DownloadFile(ctx context.Context, filePath string, dst io.Writer) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.fileBaseURL, c.token, filePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("file download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("file download HTTP error %d: %s", resp.StatusCode, string(body))
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("failed to stream file content: %w", err)
	}

	return nil
}

// call performs one Bot API method invocation and returns the raw result
func (c *Client) call(ctx context.Context, method string, payload map[string]interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.apiBaseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", method, err)
	}

	if !envelope.OK {
		return nil, fmt.Errorf("%s rejected by Bot API (HTTP %d): %s", method, resp.StatusCode, envelope.Description)
	}

	return envelope.Result, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Package telegram is a minimal Bot API client: sending messages with inline buttons and
// answering button presses.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.telegram.org"

type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	Message *Message `json:"message"`
}

// Update is the webhook body; only button presses are used.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, buttons [][]Button) error
	ProviderID() string
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) ProviderID() string {
	return "telegram"
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, buttons [][]Button) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if len(buttons) > 0 {
		payload["reply_markup"] = map[string]any{"inline_keyboard": buttons}
	}
	return c.call(ctx, "sendMessage", payload)
}

// AnswerCallbackQuery clears the spinner on the pressed button and shows text as a toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
		"text":              text,
	})
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, payload any) error {
	if c.token == "" {
		return errors.New("telegram bot token not configured")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	endpoint := c.baseURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		// The url carries the token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("telegram %s: status %d: %w", method, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !body.OK {
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, body.Description)
	}
	return nil
}

// LogSender drops messages; used when no bot token is configured.
type LogSender struct {
	log func(msg string, args ...any)
}

func NewLogSender(log func(msg string, args ...any)) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) ProviderID() string {
	return "telegram-noop"
}

func (s *LogSender) SendMessage(_ context.Context, chatID int64, text string, _ [][]Button) error {
	s.log("telegram disabled; message dropped", "chat_id", chatID, "text", text)
	return nil
}

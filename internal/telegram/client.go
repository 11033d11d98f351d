// Package telegram is a minimal Telegram Bot API client covering the calls
// nightwatch needs: long-polling updates, sending and deleting messages, and
// the admin lookup for privileged commands.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/nightwatch-dev/nightwatch/internal/nighterrors"
)

// pollMargin is how long a getUpdates request may run past the server-side
// long-poll hold before it is abandoned.
const pollMargin = 10 * time.Second

// Client talks to the Telegram Bot API.
type Client struct {
	baseURL string
	client  *http.Client
	// Long polls hold the connection for the requested timeout, so they get
	// a dedicated client and a per-request deadline instead of the short
	// per-call timeout.
	pollClient *http.Client
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (for tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithTimeout sets the per-call HTTP timeout for short calls. It does not
// apply to GetUpdates, whose deadline follows the long-poll hold.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// NewClient creates a Bot API client for the given token.
func NewClient(token string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    "https://api.telegram.org/bot" + token,
		client:     &http.Client{Timeout: 60 * time.Second},
		pollClient: &http.Client{},
		logger:     logger.With().Str("component", "telegram").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", method, err)
	}

	var api apiResponse
	if err := json.Unmarshal(raw, &api); err != nil {
		return fmt.Errorf("%s: unmarshal: %w", method, err)
	}
	if !api.OK {
		return nighterrors.NewAPIError("telegram", resp.StatusCode, method+": "+api.Description)
	}
	if result != nil && api.Result != nil {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("%s: unmarshal result: %w", method, err)
		}
	}
	return nil
}

// SendMessage posts a text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.SendMessageMarkup(ctx, chatID, text, nil)
}

// SendMessageMarkup posts a text message with an optional reply markup
// (keyboard) attached.
func (c *Client) SendMessageMarkup(ctx context.Context, chatID int64, text string, markup any) error {
	params := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if markup != nil {
		params["reply_markup"] = markup
	}
	return c.call(ctx, "sendMessage", params, nil)
}

// DeleteMessage removes a message from a chat. Failure is expected when the
// message was already removed by its author; callers count it, not retry it.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	params := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	return c.call(ctx, "deleteMessage", params, nil)
}

// AnswerCallbackQuery acknowledges an inline-button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]any{"callback_query_id": callbackID}, nil)
}

// GetChatAdministrators returns the user ids of a chat's administrators.
func (c *Client) GetChatAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	var members []struct {
		User User `json:"user"`
	}
	if err := c.call(ctx, "getChatAdministrators", map[string]any{"chat_id": chatID}, &members); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.User.ID)
	}
	return ids, nil
}

// GetMe verifies the bot token. Used by the health checker.
func (c *Client) GetMe(ctx context.Context) error {
	return c.call(ctx, "getMe", map[string]any{}, nil)
}

// GetUpdates long-polls for updates starting at offset. timeout is the
// long-poll hold in seconds.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := url.Values{
		"offset":          []string{strconv.FormatInt(offset, 10)},
		"timeout":         []string{strconv.Itoa(timeout)},
		"allowed_updates": []string{`["message","callback_query"]`},
	}

	// The deadline must sit above the server-side hold or every idle poll
	// aborts client-side.
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second+pollMargin)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.pollClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var api apiResponse
	if err := json.Unmarshal(raw, &api); err != nil {
		return nil, fmt.Errorf("getUpdates: unmarshal: %w", err)
	}
	if !api.OK {
		return nil, nighterrors.NewAPIError("telegram", resp.StatusCode, "getUpdates: "+api.Description)
	}

	var updates []Update
	if err := json.Unmarshal(api.Result, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: unmarshal result: %w", err)
	}
	return updates, nil
}

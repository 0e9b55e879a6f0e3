package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/errors"
)

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Telegram delivers through the Bot API sendMessage method.
type Telegram struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewTelegram(baseURL, token string) *Telegram {
	if baseURL == "" {
		baseURL = constants.DefaultTelegramBaseURL
	}
	return &Telegram{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *Telegram) Deliver(ctx context.Context, recipientID, text string) error {
	if t.token == "" {
		return errors.Wrap(errors.ErrDelivery, "telegram bot token is not configured")
	}

	jsonData, err := json.Marshal(sendMessageRequest{
		ChatID:    recipientID,
		Text:      text,
		ParseMode: constants.TelegramParseMode,
	})
	if err != nil {
		return errors.Wrap(errors.ErrDelivery, "failed to encode message: %v", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.Wrap(errors.ErrDelivery, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		// The request URL carries the bot token; report the cause only
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return errors.Wrap(errors.ErrDelivery, "telegram request failed: %v", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	var parsed sendMessageResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		desc := strings.TrimSpace(string(body))
		if decodeErr == nil && parsed.Description != "" {
			desc = parsed.Description
		}
		return errors.Wrap(errors.ErrDelivery, "telegram returned status %d: %s", res.StatusCode, desc)
	}
	if decodeErr != nil {
		return errors.Wrap(errors.ErrDelivery, "failed to decode telegram response: %v", decodeErr)
	}
	if !parsed.OK {
		return errors.Wrap(errors.ErrDelivery, "telegram rejected message: %s", parsed.Description)
	}

	return nil
}

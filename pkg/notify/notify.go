// Package notify delivers rendered reports to a Google Chat incoming
// webhook. Delivery is best-effort: the report run already succeeded by
// the time this is called, so failures surface as errors for the caller
// to log, never retried loops.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client posts messages to a webhook URL.
type Client struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient returns a webhook client with a short timeout; chat
// delivery should never stall a report run.
func NewClient() *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Logger:     slog.Default(),
	}
}

// Chat card wire format (cards v1, the incoming-webhook dialect).
type card struct {
	Header   cardHeader    `json:"header"`
	Sections []cardSection `json:"sections"`
}

type cardHeader struct {
	Title string `json:"title"`
}

type cardSection struct {
	Widgets []cardWidget `json:"widgets"`
}

type cardWidget struct {
	TextParagraph textParagraph `json:"textParagraph"`
}

type textParagraph struct {
	Text string `json:"text"`
}

type cardMessage struct {
	Cards []card `json:"cards"`
}

type textMessage struct {
	Text string `json:"text"`
}

// SendCard posts a card message with one widget section per paragraph.
func (c *Client) SendCard(ctx context.Context, webhookURL, title string, sections []string) error {
	msg := cardMessage{Cards: []card{{Header: cardHeader{Title: title}}}}
	for _, text := range sections {
		msg.Cards[0].Sections = append(msg.Cards[0].Sections, cardSection{
			Widgets: []cardWidget{{TextParagraph: textParagraph{Text: text}}},
		})
	}
	return c.post(ctx, webhookURL, msg)
}

// SendText posts a plain text message.
func (c *Client) SendText(ctx context.Context, webhookURL, text string) error {
	return c.post(ctx, webhookURL, textMessage{Text: text})
}

func (c *Client) post(ctx context.Context, webhookURL string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to chat webhook: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	c.Logger.Debug("chat webhook post", "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chat webhook returned HTTP %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

package discord

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

type WebhookMessage struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Color       int       `json:"color"`
	Timestamp   time.Time `json:"timestamp"`
	Fields      []Field   `json:"fields,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Client posts alerts to a Discord webhook. A client without a URL is a no-op.
type Client struct {
	webhookURL string
	httpClient *http.Client
}

func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) SendMessage(msg WebhookMessage) error {
	if c == nil || c.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling webhook message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status: %d", resp.StatusCode)
	}

	return nil
}

// SendLogMessage sends one log event as an embed; fields are listed in key order.
func (c *Client) SendLogMessage(level, message string, fields map[string]interface{}) error {
	embed := Embed{
		Title:       fmt.Sprintf("PATCO next-train %s", level),
		Description: message,
		Color:       colorForLevel(level),
		Timestamp:   time.Now().UTC(),
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		embed.Fields = append(embed.Fields, Field{
			Name:   key,
			Value:  fmt.Sprintf("%v", fields[key]),
			Inline: true,
		})
	}

	return c.SendMessage(WebhookMessage{Embeds: []Embed{embed}})
}

func colorForLevel(level string) int {
	switch level {
	case "ERROR":
		return 0xFF0000
	case "FATAL", "PANIC":
		return 0x8B0000
	case "WARN":
		return 0xFFA500
	default:
		return 0x808080
	}
}

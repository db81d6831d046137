package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Client is the HTTP client for the WhatsApp gateway that owns the messaging
// sessions. It is the system's only outbound delivery channel.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// SendTextRequest is the gateway payload for a text message
type SendTextRequest struct {
	ChatID      string `json:"chatId"`
	Text        string `json:"text"`
	LinkPreview bool   `json:"linkPreview"`
	Session     string `json:"session"`
}

// SendTextResponse is the gateway response for a text message
type SendTextResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// NewClient creates a new gateway client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientFromEnv creates a gateway client configured from the environment
func NewClientFromEnv() *Client {
	baseURL := os.Getenv("GATEWAY_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	return NewClient(baseURL)
}

// SendText sends a text message through a gateway session. The call is
// synchronous: a nil return means the gateway acknowledged the send, so
// pacing against it paces actual deliveries.
func (c *Client) SendText(ctx context.Context, session, chatID, text string) error {
	request := SendTextRequest{
		ChatID:      chatID,
		Text:        text,
		LinkPreview: false,
		Session:     session,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/api/sendText", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var sendResp SendTextResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		// Some gateway versions answer with the raw message object instead
		// of the success wrapper; a 2xx status is enough then
		return nil
	}
	if sendResp.Message != "" && !sendResp.Success {
		return fmt.Errorf("gateway rejected message: %s", sendResp.Message)
	}

	return nil
}

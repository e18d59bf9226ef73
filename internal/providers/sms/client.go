package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// HTTPClient posts messages to a JSON SMS gateway.
type HTTPClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

func NewHTTPClient(apiKey, baseURL, sender string) *HTTPClient {
	return &HTTPClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type sendRequest struct {
	Route   string `json:"route"`
	Sender  string `json:"sender,omitempty"`
	Numbers string `json:"numbers"`
	Message string `json:"message"`
}

// Send never logs the message text, which carries one-time codes.
func (c *HTTPClient) Send(ctx context.Context, phone string, text string, channel Channel) error {
	if c.APIKey == "" {
		return errors.New("sms: API key not configured")
	}
	if c.BaseURL == "" {
		return errors.New("sms: base URL not configured")
	}
	phone = normalizePhone(phone)
	if phone == "" {
		return errors.New("sms: empty phone number")
	}

	route := "otp"
	if channel == ChannelWhatsApp {
		route = "whatsapp"
	}
	raw, err := json.Marshal(sendRequest{
		Route:   route,
		Sender:  c.Sender,
		Numbers: phone,
		Message: text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Package llm calls an OpenAI-compatible chat completions gateway.
package llm

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

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

var ErrGenerationUnavailable = errors.New("language model unavailable")

type Config struct {
	GatewayURL   string
	APIKey       string
	Model        string
	Temperature  float64
	Mock         bool
	HTTPTimeout  time.Duration
	MaxRetryTime time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *logrus.Entry
}

func New(cfg Config, log *logrus.Entry) *Client {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 25 * time.Second
	}
	if cfg.MaxRetryTime == 0 {
		cfg.MaxRetryTime = 45 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.HTTPTimeout}, log: log.WithField("component", "llm")}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// Generate sends prompt as a single user turn and returns the trimmed reply.
// Every failure, including an empty reply, wraps ErrGenerationUnavailable.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.cfg.Mock {
		c.log.Debug("mock LLM mode ON")
		return mockReply(prompt), nil
	}
	if c.cfg.GatewayURL == "" || c.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: gateway not configured", ErrGenerationUnavailable)
	}
	data, _ := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
	})
	c.log.WithField("payload_len", len(data)).Debug("llm request")

	var out string
	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GatewayURL, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.log.WithError(err).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		c.log.WithField("http_status", resp.StatusCode).Debug("llm raw response received")

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			lastErr = fmt.Errorf("gateway rejected request: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
			return backoff.Permanent(lastErr)
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("gateway error: %d", resp.StatusCode)
			return lastErr
		}
		out = strings.TrimSpace(extractContentFromChoices(body))
		if out == "" {
			lastErr = fmt.Errorf("no content in LLM output")
			return lastErr
		}
		lastErr = nil
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.MaxRetryTime
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, lastErr)
	}
	return out, nil
}

// extractContentFromChoices reads choices[0].message.content; an empty string
// means the body was not an OpenAI-style completion.
func extractContentFromChoices(body []byte) string {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return ""
	}
	if s := parsed.Choices[0].Message.Content; s != "" {
		return s
	}
	return parsed.Choices[0].Text
}

func mockReply(prompt string) string {
	if strings.Contains(prompt, "EMI") {
		return "With the given EMI and debt-to-income ratio the loan looks manageable, but keep total obligations under 40% of income."
	}
	if strings.Contains(prompt, "eligib") {
		return "Based on similar past applications you are likely eligible. Keep your CIBIL score above 750 to improve approval chances."
	}
	return "Thanks for your message. I can help with loan questions; send 'help' to see what I can do."
}

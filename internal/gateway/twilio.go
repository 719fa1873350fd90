// Package gateway adapts the Twilio WhatsApp messaging API: inbound webhook
// parsing, TwiML replies, media download and outbound media messages.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"voice-lending-go/internal/types"
)

var (
	ErrMediaFetchFailed = errors.New("media fetch failed")
	ErrDispatchFailed   = errors.New("message dispatch failed")
)

// maxMediaBytes caps a single inbound media download (WhatsApp voice notes are far smaller).
const maxMediaBytes = 32 << 20

type messageAPI interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

type Config struct {
	AccountSID   string
	AuthToken    string
	HTTPTimeout  time.Duration
	MaxRetryTime time.Duration
}

type Client struct {
	messages messageAPI
	http     *http.Client
	cfg      Config
	log      *logrus.Entry
}

func New(cfg Config, log *logrus.Entry) *Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newClient(rest.Api, cfg, log)
}

func newClient(messages messageAPI, cfg Config, log *logrus.Entry) *Client {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.MaxRetryTime == 0 {
		cfg.MaxRetryTime = 15 * time.Second
	}
	return &Client{
		messages: messages,
		http:     &http.Client{Timeout: cfg.HTTPTimeout},
		cfg:      cfg,
		log:      log.WithField("component", "gateway"),
	}
}

// SendMedia sends body with one media attachment. addrs come from
// InboundEvent.ReplyAddresses, so From is the bot number.
func (c *Client) SendMedia(ctx context.Context, addrs types.Addresses, mediaURL, body string) (string, error) {
	params := &openapi.CreateMessageParams{}
	params.SetFrom(addrs.From)
	params.SetTo(addrs.To)
	params.SetMediaUrl([]string{mediaURL})
	if body != "" {
		params.SetBody(body)
	}
	return c.send(ctx, params)
}

func (c *Client) send(ctx context.Context, params *openapi.CreateMessageParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	msg, err := c.messages.CreateMessage(params)
	if err != nil {
		c.log.WithError(err).Warn("twilio create message failed")
		return "", fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	c.log.WithField("message_sid", sid).Info("outbound message queued")
	return sid, nil
}

// FetchMedia downloads mediaURL to dest using the account credentials.
func (c *Client) FetchMedia(ctx context.Context, mediaURL, dest string) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.MaxRetryTime
	var lastErr error
	op := func() error {
		lastErr = c.fetchOnce(ctx, mediaURL, dest)
		return lastErr
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		os.Remove(dest)
		c.log.WithError(lastErr).Warn("media download failed")
		return fmt.Errorf("%w: %v", ErrMediaFetchFailed, lastErr)
	}
	return nil
}

func (c *Client) fetchOnce(ctx context.Context, mediaURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return backoff.Permanent(fmt.Errorf("media server returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("media server returned %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return backoff.Permanent(err)
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, maxMediaBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return backoff.Permanent(fmt.Errorf("empty media body"))
	}
	if n > maxMediaBytes {
		return backoff.Permanent(fmt.Errorf("media exceeds %d bytes", maxMediaBytes))
	}
	c.log.WithFields(logrus.Fields{"bytes": n, "content_type": resp.Header.Get("Content-Type")}).Debug("media downloaded")
	return nil
}

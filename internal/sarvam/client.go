// Package sarvam is a small client for the Sarvam AI REST APIs used by the
// pipeline: text language identification, translation, text-to-speech and
// speech-to-text.
package sarvam

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"voice-lending-go/internal/codec"
	"voice-lending-go/internal/locale"
)

var ErrEmptyResult = errors.New("sarvam: empty result")

type Config struct {
	BaseURL  string
	APIKey   string
	TTSModel string
	STTModel string
	// Mock answers every call locally without network access.
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
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sarvam.ai"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TTSModel == "" {
		cfg.TTSModel = "bulbul:v1"
	}
	if cfg.STTModel == "" {
		cfg.STTModel = "saarika:v2"
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.MaxRetryTime == 0 {
		cfg.MaxRetryTime = 20 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
		log:  log.WithField("component", "sarvam"),
	}
}

type translateRequest struct {
	Input  string `json:"input"`
	Source string `json:"source_language_code"`
	Target string `json:"target_language_code"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

// Translate returns text rendered in target.
func (c *Client) Translate(ctx context.Context, text string, source, target locale.Tag) (string, error) {
	if c.cfg.Mock {
		return text, nil
	}
	var resp translateResponse
	err := c.postJSON(ctx, "/translate", translateRequest{Input: text, Source: source.String(), Target: target.String()}, &resp)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	if strings.TrimSpace(resp.TranslatedText) == "" {
		return "", fmt.Errorf("translate: %w", ErrEmptyResult)
	}
	return resp.TranslatedText, nil
}

type lidRequest struct {
	Input string `json:"input"`
}

type lidResponse struct {
	LanguageCode string `json:"language_code"`
	ScriptCode   string `json:"script_code,omitempty"`
}

// DetectLanguage returns the raw language code the service reports for text.
func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	if c.cfg.Mock {
		return mockDetect(text).String(), nil
	}
	var resp lidResponse
	if err := c.postJSON(ctx, "/text-lid", lidRequest{Input: text}, &resp); err != nil {
		return "", fmt.Errorf("detect language: %w", err)
	}
	if resp.LanguageCode == "" {
		return "", fmt.Errorf("detect language: %w", ErrEmptyResult)
	}
	return resp.LanguageCode, nil
}

type ttsRequest struct {
	Inputs              []string `json:"inputs"`
	TargetLanguageCode  string   `json:"target_language_code"`
	Speaker             string   `json:"speaker"`
	SpeechSampleRate    int      `json:"speech_sample_rate"`
	EnablePreprocessing bool     `json:"enable_preprocessing"`
	Model               string   `json:"model"`
}

type ttsResponse struct {
	Audios []string `json:"audios"`
}

// Synthesize returns decoded WAV bytes for text spoken by speaker in lang.
func (c *Client) Synthesize(ctx context.Context, text string, lang locale.Tag, speaker string) ([]byte, error) {
	if c.cfg.Mock {
		return codec.Silence(500), nil
	}
	req := ttsRequest{
		Inputs:              []string{text},
		TargetLanguageCode:  lang.String(),
		Speaker:             speaker,
		SpeechSampleRate:    codec.CanonicalSampleRate,
		EnablePreprocessing: true,
		Model:               c.cfg.TTSModel,
	}
	var resp ttsResponse
	if err := c.postJSON(ctx, "/text-to-speech", req, &resp); err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	if len(resp.Audios) == 0 || resp.Audios[0] == "" {
		return nil, fmt.Errorf("synthesize: %w", ErrEmptyResult)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.Audios[0])
	if err != nil {
		return nil, fmt.Errorf("synthesize: decode audio: %w", err)
	}
	return audio, nil
}

// Transcript is the speech-to-text answer.
type Transcript struct {
	Text         string `json:"transcript"`
	LanguageCode string `json:"language_code"`
	RequestID    string `json:"request_id,omitempty"`
}

// Transcribe uploads the audio file at path. language "" or "auto" lets the
// service identify the language.
func (c *Client) Transcribe(ctx context.Context, path, language string) (Transcript, error) {
	if c.cfg.Mock {
		return Transcript{Text: "MOCK TRANSCRIPT: I want to know if I can get a home loan.", LanguageCode: locale.Default.String()}, nil
	}
	if language == "" || language == "auto" {
		language = "unknown"
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcribe: read audio: %w", err)
	}

	var out Transcript
	bo := c.backoff(ctx)
	var lastErr error
	op := func() error {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		part, err := w.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			return backoff.Permanent(err)
		}
		part.Write(audio)
		w.WriteField("model", c.cfg.STTModel)
		w.WriteField("language_code", language)
		w.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/speech-to-text", &body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		lastErr = c.do(req, &out)
		return lastErr
	}
	if err := backoff.Retry(op, bo); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return Transcript{}, fmt.Errorf("transcribe: %w", lastErr)
	}
	if strings.TrimSpace(out.Text) == "" {
		return Transcript{}, fmt.Errorf("transcribe: %w", ErrEmptyResult)
	}
	return out, nil
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.cfg.MaxRetryTime
	return backoff.WithContext(bo, ctx)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, target any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		lastErr = c.do(req, target)
		return lastErr
	}
	if err := backoff.Retry(op, c.backoff(ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return lastErr
	}
	return nil
}

// do sends one attempt. 4xx answers are permanent; everything else may be retried.
func (c *Client) do(req *http.Request, target any) error {
	req.Header.Set("api-subscription-key", c.cfg.APIKey)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("path", req.URL.Path).Warn("sarvam request failed")
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	log := c.log.WithFields(logrus.Fields{
		"path":        req.URL.Path,
		"http_status": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		log.Warn("sarvam rejected request")
		return backoff.Permanent(fmt.Errorf("client error %d: %s", resp.StatusCode, snippet(body)))
	}
	if resp.StatusCode >= 500 {
		log.Warn("sarvam server error")
		return fmt.Errorf("server error %d: %s", resp.StatusCode, snippet(body))
	}
	if len(body) == 0 {
		return fmt.Errorf("empty body")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return backoff.Permanent(fmt.Errorf("json decode error: %v body=%s", err, snippet(body)))
	}
	log.Debug("sarvam ok")
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}

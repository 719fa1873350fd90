// Package config reads the process environment once into an immutable Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingSetting = errors.New("missing required setting")

const (
	DefaultLLMGatewayURL = "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"
	DefaultLLMModel      = "gemini-1.5-pro-latest"
	DefaultSarvamBaseURL = "https://api.sarvam.ai"
	DefaultCORSOrigin    = "https://www.stratolending.com"
)

type Config struct {
	Environment string
	LogLevel    string
	LogFile     string

	Port               string
	PublicBaseURL      string
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration

	TempDir        string
	ArtifactMaxAge time.Duration

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioValidateSignature bool

	SarvamAPIKey   string
	SarvamBaseURL  string
	SarvamTTSModel string
	SarvamSTTModel string
	UseMockSpeech  bool

	LLMGatewayURL string
	LLMAPIKey     string
	LLMModel      string
	UseMockLLM    bool

	S3Bucket           string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	FFmpegPath   string
	CodecTimeout time.Duration

	TranscriberCmd     []string
	TranscriberTimeout time.Duration

	LoansDBPath string
}

// Load reads .env (if present) and the environment. The returned value is never mutated.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from an arbitrary lookup; Load uses os.Getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	e := env{get: getenv}
	c := Config{
		Environment: e.str("ENVIRONMENT", "local"),
		LogLevel:    e.str("LOG_LEVEL", "info"),
		LogFile:     e.str("LOG_FILE", ""),

		Port:               e.str("PORT", "8080"),
		PublicBaseURL:      strings.TrimRight(e.first("", "PUBLIC_BASE_URL", "NGROK_URL"), "/"),
		CORSAllowedOrigins: e.list("CORS_ALLOWED_ORIGINS", []string{DefaultCORSOrigin}),
		RequestTimeout:     e.duration("REQUEST_TIMEOUT", 60*time.Second),

		TempDir:        e.str("TEMP_DIR", "./temp"),
		ArtifactMaxAge: e.duration("ARTIFACT_MAX_AGE", 24*time.Hour),

		TwilioAccountSID:        e.str("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:         e.str("TWILIO_AUTH_TOKEN", ""),
		TwilioValidateSignature: e.bool("TWILIO_VALIDATE_SIGNATURE"),

		SarvamAPIKey:   e.str("SARVAM_API_KEY", ""),
		SarvamBaseURL:  strings.TrimRight(e.str("SARVAM_BASE_URL", DefaultSarvamBaseURL), "/"),
		SarvamTTSModel: e.str("SARVAM_TTS_MODEL", "bulbul:v1"),
		SarvamSTTModel: e.str("SARVAM_STT_MODEL", "saarika:v2"),
		UseMockSpeech:  e.bool("USE_MOCK_SPEECH"),

		LLMGatewayURL: e.str("LLM_GATEWAY_URL", DefaultLLMGatewayURL),
		LLMAPIKey:     e.first("", "LLM_API_KEY", "GEMINI_API_KEY"),
		LLMModel:      e.str("LLM_MODEL", DefaultLLMModel),
		UseMockLLM:    e.bool("USE_MOCK_LLM"),

		S3Bucket:           e.str("S3_BUCKET_NAME", ""),
		AWSRegion:          e.str("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     e.str("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: e.str("AWS_SECRET_ACCESS_KEY", ""),

		FFmpegPath:   e.str("FFMPEG_PATH", ""),
		CodecTimeout: e.duration("CODEC_TIMEOUT", 60*time.Second),

		TranscriberCmd:     strings.Fields(e.str("TRANSCRIBER_CMD", "")),
		TranscriberTimeout: e.duration("TRANSCRIBER_TIMEOUT", 90*time.Second),

		LoansDBPath: e.str("LOANS_DB_PATH", "./data/loans.db"),
	}
	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	return c, nil
}

// Validate checks the settings the webhook server cannot run without.
// Mock switches relax the speech and LLM credentials.
func (c Config) Validate() error {
	var errs []error
	need := func(key, val string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingSetting, key))
		}
	}
	need("TWILIO_ACCOUNT_SID", c.TwilioAccountSID)
	need("TWILIO_AUTH_TOKEN", c.TwilioAuthToken)
	if !c.UseMockSpeech {
		need("SARVAM_API_KEY", c.SarvamAPIKey)
	}
	if !c.UseMockLLM {
		need("LLM_API_KEY", c.LLMAPIKey)
	}
	if c.S3Bucket == "" && c.PublicBaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: S3_BUCKET_NAME or PUBLIC_BASE_URL", ErrMissingSetting))
	}
	return errors.Join(errs...)
}

// UseS3 reports whether speech artifacts are published to the bucket rather than served locally.
func (c Config) UseS3() bool { return c.S3Bucket != "" }

type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) first(def string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(e.get(k)); v != "" {
			return v
		}
	}
	return def
}

func (e *env) bool(key string) bool {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	// bare integers are seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) list(key string, def []string) []string {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

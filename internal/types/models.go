package types

import (
	"strings"
	"time"

	"voice-lending-go/internal/locale"
)

// MediaRef is one index-addressed media item of an inbound webhook.
type MediaRef struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// IsAudio reports whether the content type carries the audio marker.
func (m MediaRef) IsAudio() bool {
	return strings.Contains(strings.ToLower(m.ContentType), "audio")
}

// InboundEvent is one webhook delivery.
type InboundEvent struct {
	MessageID string     `json:"message_id"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Body      string     `json:"body,omitempty"`
	Media     []MediaRef `json:"media,omitempty"`
}

// ReplyAddresses swaps sender and recipient: replies go from the bot number back to the user.
func (e InboundEvent) ReplyAddresses() Addresses {
	return Addresses{From: e.To, To: e.From}
}

type Addresses struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MediaAsset is a local file materialized from inbound media. The run that
// created it removes it; the age-based sweep catches anything left behind.
type MediaAsset struct {
	Path        string    `json:"path"`
	MessageID   string    `json:"message_id"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// LanguageSource records where a resolved language came from.
type LanguageSource string

const (
	SourceEmbedded LanguageSource = "embedded"
	SourceDetected LanguageSource = "detected"
	// SourceDefault marks a silent fallback to locale.Default.
	SourceDefault LanguageSource = "default"
)

type TranscriptionResult struct {
	Text     string         `json:"text"`
	Language locale.Tag     `json:"language"`
	Source   LanguageSource `json:"source"`
}

type ReplyKind string

const (
	ReplyGenerated      ReplyKind = "generated"
	ReplyHelp           ReplyKind = "help"
	ReplyEligibility    ReplyKind = "eligibility"
	ReplyInsights       ReplyKind = "insights"
	ReplyParameterError ReplyKind = "parameter_error"
	ReplyApology        ReplyKind = "apology"
)

type ReplyPayload struct {
	Text     string     `json:"text"`
	Language locale.Tag `json:"language"`
	Kind     ReplyKind  `json:"kind"`
}

// Spoken reports whether the reply is worth voicing. Loan command output is
// dense with figures and stays text-only.
func (r ReplyPayload) Spoken() bool {
	switch r.Kind {
	case ReplyGenerated, ReplyHelp, ReplyApology:
		return true
	}
	return false
}

type SpeechArtifact struct {
	Path        string     `json:"path"`
	PublicURL   string     `json:"public_url"`
	Language    locale.Tag `json:"language"`
	ContentType string     `json:"content_type"`
}

type Delivery string

const (
	TextOnly      Delivery = "text_only"
	TextPlusAudio Delivery = "text_plus_audio"
)

// State is a terminal state of one orchestration run.
type State string

const (
	StateResponded               State = "responded"
	StateUnsupported             State = "unsupported"
	StateDownloadOrConvertFailed State = "download_or_convert_failed"
	StateTranscribeFailed        State = "transcribe_failed"
	StateEmpty                   State = "empty"
	StateFailed                  State = "failed"
)

// Result is what the orchestrator hands back to the transport: exactly one text reply.
type Result struct {
	MessageID  string     `json:"message_id"`
	State      State      `json:"state"`
	Reply      string     `json:"reply"`
	Delivery   Delivery   `json:"delivery"`
	Transcript string     `json:"transcript,omitempty"`
	Language   locale.Tag `json:"language,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// LoanRecord is one historical application used as eligibility context.
type LoanRecord struct {
	LoanID     string `json:"loan_id,omitempty"`
	Income     int64  `json:"income_annum"`
	Expenses   int64  `json:"expenses"`
	CIBILScore int    `json:"cibil_score"`
	LoanAmount int64  `json:"loan_amount,omitempty"`
	LoanTerm   int    `json:"loan_term,omitempty"`
	Status     string `json:"loan_status"`
}

// Approved normalizes the free-text status column.
func (r LoanRecord) Approved() bool {
	s := strings.ToLower(strings.TrimSpace(r.Status))
	return s == "approved" || s == "yes" || s == "true" || s == "1"
}

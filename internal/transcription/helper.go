package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"voice-lending-go/internal/sarvam"
)

// SpeechToText is the capability the helper wraps.
type SpeechToText interface {
	Transcribe(ctx context.Context, path, language string) (sarvam.Transcript, error)
}

// RunHelper transcribes path and writes the helper output contract to w:
// one JSON metadata line with language_code, then the transcript on its own line.
// Without a language code only the transcript line is written.
func RunHelper(ctx context.Context, stt SpeechToText, path, language string, w io.Writer) error {
	tr, err := stt.Transcribe(ctx, path, language)
	if err != nil {
		return err
	}
	return FormatOutput(w, tr)
}

// FormatOutput writes the plain transcript alone when no language code is
// known, so the reader falls back to detection.
func FormatOutput(w io.Writer, tr sarvam.Transcript) error {
	text := strings.Join(strings.Fields(tr.Text), " ")
	if tr.LanguageCode == "" {
		_, err := fmt.Fprintf(w, "%s\n", text)
		return err
	}
	meta, err := json.Marshal(map[string]string{
		"language_code": tr.LanguageCode,
		"request_id":    tr.RequestID,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n%s\n", meta, text)
	return err
}

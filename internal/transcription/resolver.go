// Package transcription runs the out-of-process transcription helper and
// resolves the language of what it heard.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"voice-lending-go/internal/executor"
	"voice-lending-go/internal/locale"
	"voice-lending-go/internal/types"
)

var ErrTranscriptionUnavailable = errors.New("transcription unavailable")

// LanguageDetector identifies the language of a piece of text.
type LanguageDetector interface {
	DetectLanguage(ctx context.Context, text string) (string, error)
}

type Resolver struct {
	helper   *executor.Executor
	detector LanguageDetector
	log      *logrus.Entry
}

func NewResolver(helper *executor.Executor, detector LanguageDetector, log *logrus.Entry) *Resolver {
	return &Resolver{helper: helper, detector: detector, log: log.WithField("component", "transcription")}
}

// Resolve transcribes the canonical WAV at path. It is not retried: any
// helper failure or an empty transcript is ErrTranscriptionUnavailable.
func (r *Resolver) Resolve(ctx context.Context, path string) (types.TranscriptionResult, error) {
	log := r.log.WithField("helper", r.helper.Name())
	start := time.Now()
	stdout, stderr, err := r.helper.Execute(ctx, []string{"--file", path, "--language", "auto"}, nil)
	log = log.WithField("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		log.WithError(err).WithField("stderr", strings.TrimSpace(string(stderr))).Warn("transcription helper failed")
		return types.TranscriptionResult{}, fmt.Errorf("%w: %v", ErrTranscriptionUnavailable, err)
	}

	out := ParseOutput(string(stdout))
	if out.Text == "" {
		log.Warn("transcription helper produced no transcript")
		return types.TranscriptionResult{}, fmt.Errorf("%w: empty transcript", ErrTranscriptionUnavailable)
	}

	res := types.TranscriptionResult{Text: out.Text}
	if out.LanguageCode != "" && locale.Supported(out.LanguageCode) {
		res.Language = locale.Resolve(out.LanguageCode)
		res.Source = types.SourceEmbedded
	} else {
		res.Language, res.Source = r.DetectLanguage(ctx, out.Text)
	}
	log.WithFields(logrus.Fields{
		"language": res.Language,
		"source":   res.Source,
		"chars":    len(res.Text),
	}).Info("transcribed audio")
	return res, nil
}

// DetectLanguage never fails: an unusable answer falls back to locale.Default
// and is reported as types.SourceDefault.
func (r *Resolver) DetectLanguage(ctx context.Context, text string) (locale.Tag, types.LanguageSource) {
	code, err := r.detector.DetectLanguage(ctx, text)
	if err != nil {
		r.log.WithError(err).Warn("language detection failed; using default")
		return locale.Default, types.SourceDefault
	}
	if !locale.Supported(code) {
		r.log.WithField("code", code).Warn("unsupported language detected; using default")
		return locale.Default, types.SourceDefault
	}
	return locale.Resolve(code), types.SourceDetected
}

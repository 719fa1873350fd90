// Package processor runs one inbound message through the pipeline and always
// produces exactly one text reply.
package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"voice-lending-go/internal/locale"
	"voice-lending-go/internal/reply"
	"voice-lending-go/internal/speech"
	"voice-lending-go/internal/types"
)

const (
	unsupportedMediaText = "I received your media, but I can only process audio files."
	downloadFailedText   = "Sorry, I couldn't download the audio file."
	convertFailedText    = "Sorry, I couldn't process the audio file."
	transcribeFailedText = "Sorry, I couldn't transcribe the audio."
	emptyMessageText     = "I didn't receive any message."
	internalErrorText    = "Sorry, something went wrong while processing your message."

	ttsSentText        = "Here's your text converted to speech."
	ttsNotSentText     = "Generated speech but couldn't send the audio file."
	ttsFailedText      = "Sorry, I couldn't convert your text to speech."
	ttsEmptyText       = "Please provide some text after 'tts:' to convert to speech."
	ttsPrefix          = "tts:"
	voiceReplyTemplate = "Received: %s\n\nResponse: %s"

	canonicalContentType = "audio/wav"
)

type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaURL, dest string) error
}

type Normalizer interface {
	Normalize(ctx context.Context, input string) (string, error)
}

type Transcriber interface {
	Resolve(ctx context.Context, path string) (types.TranscriptionResult, error)
	DetectLanguage(ctx context.Context, text string) (locale.Tag, types.LanguageSource)
}

type ReplyGenerator interface {
	Generate(ctx context.Context, text string, lang locale.Tag, isCommand bool) types.ReplyPayload
}

type Responder interface {
	Respond(ctx context.Context, owner string, reply types.ReplyPayload, addrs types.Addresses) speech.Outcome
	Speak(ctx context.Context, owner, text string, lang locale.Tag, addrs types.Addresses) (types.SpeechArtifact, error)
}

type Artifacts interface {
	NewPath(owner, prefix, ext string) string
	Remove(path string)
	Sweep() (int, error)
}

type Processor struct {
	fetcher     MediaFetcher
	normalizer  Normalizer
	transcriber Transcriber
	generator   ReplyGenerator
	responder   Responder
	artifacts   Artifacts
	log         *logrus.Entry
}

func New(fetcher MediaFetcher, normalizer Normalizer, transcriber Transcriber, generator ReplyGenerator, responder Responder, artifacts Artifacts, log *logrus.Entry) *Processor {
	return &Processor{
		fetcher:     fetcher,
		normalizer:  normalizer,
		transcriber: transcriber,
		generator:   generator,
		responder:   responder,
		artifacts:   artifacts,
		log:         log.WithField("component", "processor"),
	}
}

// Process handles one webhook event. It never returns an empty reply, and a
// panic in any stage is turned into StateFailed.
func (p *Processor) Process(ctx context.Context, ev types.InboundEvent) (res types.Result) {
	start := time.Now()
	log := p.log.WithField("message_id", ev.MessageID)
	res = types.Result{MessageID: ev.MessageID, Delivery: types.TextOnly}

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("message processing panicked")
			res.State = types.StateFailed
			res.Reply = internalErrorText
			res.Delivery = types.TextOnly
		}
		res.DurationMs = time.Since(start).Milliseconds()
		log.WithFields(logrus.Fields{
			"state":       res.State,
			"delivery":    res.Delivery,
			"language":    res.Language,
			"duration_ms": res.DurationMs,
		}).Info("message processed")
	}()

	switch {
	case len(ev.Media) > 0 && ev.Media[0].IsAudio():
		p.processVoice(ctx, ev, &res, log)
	case len(ev.Media) > 0:
		log.WithField("content_type", ev.Media[0].ContentType).Info("unsupported media")
		res.State = types.StateUnsupported
		res.Reply = unsupportedMediaText
	default:
		p.processText(ctx, ev, &res, log)
	}
	return res
}

func (p *Processor) processVoice(ctx context.Context, ev types.InboundEvent, res *types.Result, log *logrus.Entry) {
	defer p.sweep(log)
	media := ev.Media[0]

	raw := types.MediaAsset{
		Path:        p.artifacts.NewPath(ev.MessageID, "voice", extensionFor(media.ContentType)),
		MessageID:   ev.MessageID,
		ContentType: media.ContentType,
		CreatedAt:   time.Now(),
	}
	defer p.artifacts.Remove(raw.Path)
	if err := p.fetcher.FetchMedia(ctx, media.URL, raw.Path); err != nil {
		log.WithError(err).Warn("media download failed")
		res.State = types.StateDownloadOrConvertFailed
		res.Reply = downloadFailedText
		return
	}

	canonical, err := p.normalize(ctx, raw)
	if err != nil {
		log.WithError(err).WithField("content_type", raw.ContentType).Warn("media normalization failed")
		res.State = types.StateDownloadOrConvertFailed
		res.Reply = convertFailedText
		return
	}
	defer p.artifacts.Remove(canonical.Path)

	tr, err := p.transcriber.Resolve(ctx, canonical.Path)
	if err != nil {
		log.WithError(err).Warn("transcription failed")
		res.State = types.StateTranscribeFailed
		res.Reply = transcribeFailedText
		return
	}
	res.Transcript = tr.Text
	res.Language = tr.Language

	// voice notes never trigger loan commands
	payload := p.generator.Generate(ctx, tr.Text, tr.Language, false)
	res.State = types.StateResponded
	res.Reply = fmt.Sprintf(voiceReplyTemplate, tr.Text, payload.Text)
	if payload.Spoken() {
		res.Delivery = p.respond(ctx, ev, payload, log)
	}
}

// normalize derives the canonical WAV asset from a downloaded one.
func (p *Processor) normalize(ctx context.Context, in types.MediaAsset) (types.MediaAsset, error) {
	path, err := p.normalizer.Normalize(ctx, in.Path)
	if err != nil {
		return types.MediaAsset{}, err
	}
	out := types.MediaAsset{
		Path:        path,
		MessageID:   in.MessageID,
		ContentType: canonicalContentType,
		CreatedAt:   time.Now(),
	}
	p.log.WithFields(logrus.Fields{
		"message_id": out.MessageID,
		"source":     in.ContentType,
		"path":       out.Path,
	}).Debug("media normalized")
	return out, nil
}

func (p *Processor) processText(ctx context.Context, ev types.InboundEvent, res *types.Result, log *logrus.Entry) {
	body := strings.TrimSpace(ev.Body)
	if body == "" {
		res.State = types.StateEmpty
		res.Reply = emptyMessageText
		return
	}
	res.State = types.StateResponded

	if text, ok := cutPrefixFold(body, ttsPrefix); ok {
		p.textToSpeech(ctx, ev, strings.TrimSpace(text), res, log)
		return
	}

	if isCommand(body) {
		payload := p.generator.Generate(ctx, body, locale.Default, true)
		res.Language = payload.Language
		res.Reply = payload.Text
		return
	}

	lang, _ := p.transcriber.DetectLanguage(ctx, body)
	res.Language = lang
	payload := p.generator.Generate(ctx, body, lang, true)
	res.Reply = payload.Text
	if payload.Spoken() {
		res.Delivery = p.respond(ctx, ev, payload, log)
	}
}

func (p *Processor) textToSpeech(ctx context.Context, ev types.InboundEvent, text string, res *types.Result, log *logrus.Entry) {
	if text == "" {
		res.Reply = ttsEmptyText
		return
	}
	lang, _ := p.transcriber.DetectLanguage(ctx, text)
	res.Language = lang
	_, err := p.responder.Speak(ctx, ev.MessageID, text, lang, ev.ReplyAddresses())
	switch {
	case err == nil:
		res.Reply = ttsSentText
		res.Delivery = types.TextPlusAudio
	case errors.Is(err, speech.ErrSynthesisFailed):
		log.WithError(err).Warn("tts synthesis failed")
		res.Reply = ttsFailedText
	default:
		log.WithError(err).Warn("tts audio not delivered")
		res.Reply = ttsNotSentText
	}
}

func (p *Processor) respond(ctx context.Context, ev types.InboundEvent, payload types.ReplyPayload, log *logrus.Entry) types.Delivery {
	out := p.responder.Respond(ctx, ev.MessageID, payload, ev.ReplyAddresses())
	if out.Err != nil {
		log.WithError(out.Err).Info("voice reply skipped; text only")
	}
	return out.Delivery
}

// Chat answers a typed message from the web widget. Replies are text only.
func (p *Processor) Chat(ctx context.Context, message string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", fmt.Sprint(r)).Error("chat panicked")
			out = internalErrorText
		}
	}()
	message = strings.TrimSpace(message)
	if message == "" {
		return emptyMessageText
	}
	lang := locale.Default
	if !isCommand(message) {
		lang, _ = p.transcriber.DetectLanguage(ctx, message)
	}
	return p.generator.Generate(ctx, message, lang, true).Text
}

func (p *Processor) sweep(log *logrus.Entry) {
	n, err := p.artifacts.Sweep()
	if err != nil {
		log.WithError(err).Warn("artifact sweep failed")
		return
	}
	if n > 0 {
		log.WithField("removed", n).Debug("swept expired artifacts")
	}
}

func isCommand(text string) bool {
	return reply.IsLoanCommand(text) || reply.IsInsightsCommand(text)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}

// extensionFor picks a file extension for a media content type so the
// encoder can recognise the container. Unknown types fall back to "bin".
func extensionFor(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "audio/ogg", "audio/opus":
		return "ogg"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/amr":
		return "amr"
	case "audio/mp4", "audio/aac", "audio/x-m4a":
		return "m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/webm":
		return "webm"
	}
	return "bin"
}

// Package speech voices a reply: synthesize, store, re-encode, publish and
// send it as a media message. Any failure leaves the text reply standing alone.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"voice-lending-go/internal/codec"
	"voice-lending-go/internal/locale"
	"voice-lending-go/internal/types"
)

var ErrSynthesisFailed = errors.New("speech synthesis failed")

const (
	contentTypeMP3 = "audio/mpeg"
	contentTypeWAV = "audio/wav"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, lang locale.Tag, speaker string) ([]byte, error)
}

type Encoder interface {
	ToMP3(ctx context.Context, path string) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, path, contentType string) (string, error)
}

type Dispatcher interface {
	SendMedia(ctx context.Context, addrs types.Addresses, mediaURL, body string) (string, error)
}

type ArtifactWriter interface {
	Write(owner, prefix, ext string, data []byte) (string, error)
	Remove(path string)
}

// Outcome always carries the text; Delivery says whether audio went out too.
type Outcome struct {
	Text     string
	Delivery types.Delivery
	Artifact *types.SpeechArtifact
	Err      error
}

type Responder struct {
	synth     Synthesizer
	encoder   Encoder
	publisher Publisher
	sender    Dispatcher
	store     ArtifactWriter
	log       *logrus.Entry
}

func NewResponder(synth Synthesizer, encoder Encoder, publisher Publisher, sender Dispatcher, store ArtifactWriter, log *logrus.Entry) *Responder {
	return &Responder{
		synth:     synth,
		encoder:   encoder,
		publisher: publisher,
		sender:    sender,
		store:     store,
		log:       log.WithField("component", "speech"),
	}
}

// Respond voices reply for the message owner. The returned Outcome is text
// only when any stage fails.
func (r *Responder) Respond(ctx context.Context, owner string, reply types.ReplyPayload, addrs types.Addresses) Outcome {
	out := Outcome{Text: reply.Text, Delivery: types.TextOnly}
	art, err := r.Speak(ctx, owner, reply.Text, reply.Language, addrs)
	if err != nil {
		out.Err = err
		return out
	}
	out.Delivery = types.TextPlusAudio
	out.Artifact = &art
	return out
}

// Speak synthesizes text in lang and dispatches it to addrs as a media message.
func (r *Responder) Speak(ctx context.Context, owner, text string, lang locale.Tag, addrs types.Addresses) (types.SpeechArtifact, error) {
	log := r.log.WithFields(logrus.Fields{"owner": owner, "language": lang})
	start := time.Now()
	if strings.TrimSpace(text) == "" {
		return types.SpeechArtifact{}, fmt.Errorf("%w: empty text", ErrSynthesisFailed)
	}
	if !locale.Supported(lang.String()) {
		lang = locale.Default
	}

	audio, err := r.synth.Synthesize(ctx, text, lang, locale.Voice(lang))
	if err != nil {
		log.WithError(err).Warn("synthesis failed")
		return types.SpeechArtifact{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	if len(audio) == 0 {
		return types.SpeechArtifact{}, fmt.Errorf("%w: no audio", ErrSynthesisFailed)
	}

	ext, contentType := "wav", contentTypeWAV
	if !codec.LooksLikeWAV(audio) && codec.LooksLikeMP3(audio) {
		ext, contentType = "mp3", contentTypeMP3
	}
	path, err := r.store.Write(owner, "tts", ext, audio)
	if err != nil {
		return types.SpeechArtifact{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	if ext == "wav" {
		mp3Path, err := r.encoder.ToMP3(ctx, path)
		if err != nil {
			log.WithError(err).Warn("mp3 re-encode failed; publishing wav")
		} else {
			r.store.Remove(path)
			path, contentType = mp3Path, contentTypeMP3
		}
	}

	art := types.SpeechArtifact{Path: path, Language: lang, ContentType: contentType}
	art.PublicURL, err = r.publisher.Publish(ctx, path, contentType)
	if err != nil {
		log.WithError(err).Warn("publish failed")
		return art, err
	}
	if _, err := r.sender.SendMedia(ctx, addrs, art.PublicURL, ""); err != nil {
		log.WithError(err).Warn("media dispatch failed")
		return art, err
	}
	log.WithFields(logrus.Fields{
		"url":          art.PublicURL,
		"content_type": contentType,
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Info("voice reply sent")
	return art, nil
}

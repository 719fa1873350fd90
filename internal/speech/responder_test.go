package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-lending-go/internal/artifact"
	"voice-lending-go/internal/codec"
	"voice-lending-go/internal/locale"
	"voice-lending-go/internal/logger"
	"voice-lending-go/internal/types"
)

type fakeSynth struct {
	audio   []byte
	err     error
	lang    locale.Tag
	speaker string
}

func (f *fakeSynth) Synthesize(_ context.Context, _ string, lang locale.Tag, speaker string) ([]byte, error) {
	f.lang, f.speaker = lang, speaker
	return f.audio, f.err
}

type fakeEncoder struct{ err error }

func (f fakeEncoder) ToMP3(_ context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	out := strings.TrimSuffix(path, ".wav") + ".mp3"
	return out, os.WriteFile(out, []byte("ID3"), 0o644)
}

type fakePublisher struct {
	err         error
	contentType string
}

func (f *fakePublisher) Publish(_ context.Context, path, contentType string) (string, error) {
	f.contentType = contentType
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example/audio_" + filepath.Base(path), nil
}

type fakeSender struct {
	err   error
	addrs types.Addresses
	url   string
	calls int
}

func (f *fakeSender) SendMedia(_ context.Context, addrs types.Addresses, url, _ string) (string, error) {
	f.calls++
	f.addrs, f.url = addrs, url
	return "SMmedia", f.err
}

type env struct {
	synth *fakeSynth
	enc   fakeEncoder
	pub   *fakePublisher
	send  *fakeSender
	store *artifact.Store
}

func (e *env) responder() *Responder {
	return NewResponder(e.synth, e.enc, e.pub, e.send, e.store, logger.Discard().Entry)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := artifact.New(t.TempDir(), time.Hour, logger.Discard().Entry)
	require.NoError(t, err)
	return &env{
		synth: &fakeSynth{audio: codec.Silence(10)},
		pub:   &fakePublisher{},
		send:  &fakeSender{},
		store: st,
	}
}

var addrs = types.Addresses{From: "whatsapp:+1bot", To: "whatsapp:+91user"}

func artifactsIn(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRespond_TextPlusAudio(t *testing.T) {
	e := newEnv(t)
	out := e.responder().Respond(context.Background(), "SM1", types.ReplyPayload{Text: "नमस्ते", Language: "hi-IN", Kind: types.ReplyGenerated}, addrs)

	require.NoError(t, out.Err)
	assert.Equal(t, types.TextPlusAudio, out.Delivery)
	assert.Equal(t, "नमस्ते", out.Text)
	require.NotNil(t, out.Artifact)
	assert.Equal(t, "audio/mpeg", out.Artifact.ContentType)
	assert.Equal(t, locale.Tag("hi-IN"), e.synth.lang)
	assert.Equal(t, "meera", e.synth.speaker)
	assert.Equal(t, addrs, e.send.addrs)
	assert.Equal(t, out.Artifact.PublicURL, e.send.url)

	// the intermediate wav is gone: one synthesis leaves one artifact
	names := artifactsIn(t, e.store.Dir())
	require.Len(t, names, 1)
	assert.True(t, strings.HasPrefix(names[0], "tts_SM1_"))
	assert.Equal(t, ".mp3", filepath.Ext(names[0]))
}

func TestRespond_EncoderUnavailablePublishesWAV(t *testing.T) {
	e := newEnv(t)
	e.enc = fakeEncoder{err: codec.ErrCodecUnavailable}

	out := e.responder().Respond(context.Background(), "SM1", types.ReplyPayload{Text: "hi", Language: locale.Default}, addrs)
	require.NoError(t, out.Err)
	assert.Equal(t, types.TextPlusAudio, out.Delivery)
	assert.Equal(t, "audio/wav", e.pub.contentType)
	assert.Equal(t, ".wav", filepath.Ext(out.Artifact.Path))
}

func TestRespond_MP3FromServiceSkipsReencode(t *testing.T) {
	e := newEnv(t)
	e.synth.audio = []byte("ID3\x04rest")
	e.enc = fakeEncoder{err: errors.New("must not be called")}

	out := e.responder().Respond(context.Background(), "SM1", types.ReplyPayload{Text: "hi", Language: locale.Default}, addrs)
	require.NoError(t, out.Err)
	assert.Equal(t, "audio/mpeg", e.pub.contentType)
}

func TestRespond_FailuresDowngradeToTextOnly(t *testing.T) {
	boomPublish := errors.New("publish failed")
	boomDispatch := errors.New("dispatch failed")
	cases := map[string]struct {
		setup func(e *env)
		is    error
	}{
		"synthesis error": {func(e *env) { e.synth.err = errors.New("429") }, ErrSynthesisFailed},
		"empty audio":     {func(e *env) { e.synth.audio = nil }, ErrSynthesisFailed},
		"publish error":   {func(e *env) { e.pub.err = boomPublish }, boomPublish},
		"dispatch error":  {func(e *env) { e.send.err = boomDispatch }, boomDispatch},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			tc.setup(e)
			out := e.responder().Respond(context.Background(), "SM1", types.ReplyPayload{Text: "reply", Language: "ta-IN"}, addrs)
			assert.Equal(t, types.TextOnly, out.Delivery)
			assert.Equal(t, "reply", out.Text)
			assert.ErrorIs(t, out.Err, tc.is)
		})
	}
}

func TestSpeak_EmptyTextNeverSynthesizes(t *testing.T) {
	e := newEnv(t)
	e.synth.err = errors.New("should not be reached")
	_, err := e.responder().Speak(context.Background(), "SM1", "   ", locale.Default, addrs)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.Zero(t, e.send.calls)
}

func TestSpeak_UnsupportedLanguageUsesDefault(t *testing.T) {
	e := newEnv(t)
	_, err := e.responder().Speak(context.Background(), "SM1", "bonjour", "fr-FR", addrs)
	require.NoError(t, err)
	assert.Equal(t, locale.Default, e.synth.lang)
}

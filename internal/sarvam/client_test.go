package sarvam

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-lending-go/internal/codec"
	"voice-lending-go/internal/locale"
	"voice-lending-go/internal/logger"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "sk-test", MaxRetryTime: 2 * time.Second}, logger.Discard().Entry)
}

func TestSynthesize(t *testing.T) {
	wav := codec.Silence(20)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("api-subscription-key"))

		var req ttsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"namaste"}, req.Inputs)
		assert.Equal(t, "hi-IN", req.TargetLanguageCode)
		assert.Equal(t, "meera", req.Speaker)
		assert.Equal(t, 16000, req.SpeechSampleRate)
		assert.True(t, req.EnablePreprocessing)
		assert.Equal(t, "bulbul:v1", req.Model)

		json.NewEncoder(w).Encode(ttsResponse{Audios: []string{base64.StdEncoding.EncodeToString(wav)}})
	}))

	got, err := c.Synthesize(context.Background(), "namaste", "hi-IN", "meera")
	require.NoError(t, err)
	assert.Equal(t, wav, got)
}

func TestSynthesize_EmptyAudios(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"audios":[]}`))
	}))
	_, err := c.Synthesize(context.Background(), "x", locale.Default, "meera")
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestPost_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"language_code":"ta-IN"}`))
	}))

	code, err := c.DetectLanguage(context.Background(), "வணக்கம்")
	require.NoError(t, err)
	assert.Equal(t, "ta-IN", code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPost_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":"invalid key"}`, http.StatusForbidden)
	}))

	_, err := c.Translate(context.Background(), "hello", "en-IN", "hi-IN")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTranslate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "en-IN", req.Source)
		assert.Equal(t, "hi-IN", req.Target)
		w.Write([]byte(`{"translated_text":"नमस्ते"}`))
	}))
	got, err := c.Translate(context.Background(), "hello", "en-IN", "hi-IN")
	require.NoError(t, err)
	assert.Equal(t, "नमस्ते", got)
}

func TestTranscribe_Multipart(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "clip_16k.wav")
	require.NoError(t, os.WriteFile(audio, codec.Silence(10), 0o644))

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/speech-to-text", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "saarika:v2", r.FormValue("model"))
		assert.Equal(t, "unknown", r.FormValue("language_code"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "clip_16k.wav", hdr.Filename)
		b, _ := io.ReadAll(f)
		assert.True(t, codec.LooksLikeWAV(b))
		w.Write([]byte(`{"transcript":"mera loan","language_code":"hi-IN","request_id":"r1"}`))
	}))

	tr, err := c.Transcribe(context.Background(), audio, "auto")
	require.NoError(t, err)
	assert.Equal(t, "mera loan", tr.Text)
	assert.Equal(t, "hi-IN", tr.LanguageCode)
}

func TestMockMode(t *testing.T) {
	c := New(Config{Mock: true}, logger.Discard().Entry)
	ctx := context.Background()

	code, err := c.DetectLanguage(ctx, "मुझे लोन चाहिए")
	require.NoError(t, err)
	assert.Equal(t, "hi-IN", code)

	code, err = c.DetectLanguage(ctx, "hello there")
	require.NoError(t, err)
	assert.Equal(t, "en-IN", code)

	audio, err := c.Synthesize(ctx, "hi", "en-IN", "meera")
	require.NoError(t, err)
	assert.True(t, codec.LooksLikeWAV(audio))

	got, err := c.Translate(ctx, "help", "en-IN", "ta-IN")
	require.NoError(t, err)
	assert.Equal(t, "help", got)
}
